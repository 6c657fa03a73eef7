// Package config holds the kisync project configuration, read from
// kisync.yaml next to the root schematic.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// FileName is the configuration file looked up in the project directory.
const FileName = "kisync.yaml"

// Config is the complete project configuration.
type Config struct {
	// Project names the KiCad project; it keys symbol instance blocks and
	// the namespace of generated UUIDs.
	Project string `yaml:"project"`

	// Description is the path or URL of the circuit description.
	Description string `yaml:"description"`

	// OutputDir receives the schematic files.
	OutputDir string `yaml:"output_dir"`

	// LibraryPaths are searched for <nickname>.kicad_sym files.
	LibraryPaths []string `yaml:"library_paths,omitempty"`

	Placement PlacementConfig `yaml:"placement"`
	Log       LogConfig       `yaml:"log"`

	// MetricsFile, when set, receives the run metrics in the Prometheus
	// text format.
	MetricsFile string `yaml:"metrics_file,omitempty"`

	Watch WatchConfig `yaml:"watch"`
}

// PlacementConfig configures the placement engine.
type PlacementConfig struct {
	Strategy    string  `yaml:"strategy"`
	Clearance   float64 `yaml:"clearance"`    // mm between units
	Grid        float64 `yaml:"grid"`         // mm
	CharWidth   float64 `yaml:"char_width"`   // mm per label character
	CanvasWidth float64 `yaml:"canvas_width"` // mm; 0 uses the paper width
	Paper       string  `yaml:"paper"`
	MaxPaper    string  `yaml:"max_paper"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Project:     "kisync",
		Description: "circuit.json",
		OutputDir:   ".",
		Placement: PlacementConfig{
			Strategy:  string(placement.Shelf),
			Clearance: 15,
			Grid:      1.27,
			CharWidth: 1.27,
			Paper:     "A4",
			MaxPaper:  "A0",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate checks ranges and names.
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project is required")
	}
	if _, err := placement.ParseStrategy(c.Placement.Strategy); err != nil {
		return err
	}
	if c.Placement.Clearance < 0 {
		return fmt.Errorf("placement.clearance must be >= 0, got %g", c.Placement.Clearance)
	}
	if c.Placement.Grid <= 0 {
		return fmt.Errorf("placement.grid must be > 0, got %g", c.Placement.Grid)
	}
	if c.Placement.CharWidth <= 0 {
		return fmt.Errorf("placement.char_width must be > 0, got %g", c.Placement.CharWidth)
	}
	if c.Placement.CanvasWidth < 0 {
		return fmt.Errorf("placement.canvas_width must be >= 0, got %g", c.Placement.CanvasWidth)
	}
	paper, ok := paperIndex(c.Placement.Paper)
	if !ok {
		return fmt.Errorf("placement.paper: unknown paper size %q", c.Placement.Paper)
	}
	max, ok := paperIndex(c.Placement.MaxPaper)
	if !ok {
		return fmt.Errorf("placement.max_paper: unknown paper size %q", c.Placement.MaxPaper)
	}
	if max < paper {
		return fmt.Errorf("placement.max_paper %s is smaller than placement.paper %s", c.Placement.MaxPaper, c.Placement.Paper)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be >= 0")
	}
	return nil
}

func paperIndex(name string) (int, bool) {
	for i, p := range placement.Papers {
		if p.Name == name {
			return i, true
		}
	}
	return 0, false
}

// PlacementOptions converts the placement section to engine options for
// the given paper.
func (c *Config) PlacementOptions(paper placement.Paper) placement.Options {
	opts := placement.DefaultOptions()
	opts.Strategy = placement.Strategy(c.Placement.Strategy)
	opts.Clearance = c.Placement.Clearance
	opts.Grid = c.Placement.Grid
	opts.Metrics.CharWidth = c.Placement.CharWidth
	opts.Area = placement.Usable(paper)
	if c.Placement.CanvasWidth > 0 {
		opts.Area.Max.X = opts.Area.Min.X + c.Placement.CanvasWidth
	}
	return opts
}

// Load reads a configuration file. Values missing from the file keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadDir loads FileName from dir, or returns the defaults when there is
// none.
func LoadDir(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// SaveToFile writes the configuration to path.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
