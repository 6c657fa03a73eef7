package hierarchy

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/OpenTraceLab/kisync/pkg/kicad/schematic"
)

// Loader reads one schematic file. Missing files must be reported with an
// error wrapping fs.ErrNotExist.
type Loader interface {
	Load(path string) (*schematic.Schematic, error)
}

// FileLoader reads schematics from disk.
type FileLoader struct{}

// Load implements the Loader interface.
func (FileLoader) Load(path string) (*schematic.Schematic, error) {
	return schematic.ParseFile(path)
}

// MemoryLoader serves schematic text held in memory. Useful during tests or
// when the caller already has the file contents.
type MemoryLoader struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryLoader creates an empty loader.
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{files: make(map[string][]byte)}
}

// Add registers the contents of path.
func (m *MemoryLoader) Add(path string, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = []byte(text)
}

// Load implements the Loader interface. Every call parses a fresh tree.
func (m *MemoryLoader) Load(path string) (*schematic.Schematic, error) {
	m.mu.RLock()
	data, ok := m.files[filepath.Clean(path)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("hierarchy: %s: %w", path, fs.ErrNotExist)
	}
	return schematic.ParseBytes(path, data)
}
