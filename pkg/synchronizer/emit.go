package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/minio/highwayhash"

	"github.com/OpenTraceLab/kisync/internal/ctxlog"
)

// TempPrefix starts the name of every staged file.
const TempPrefix = ".kisync-"

var hashKey = []byte("kisync-schematic-content-hash-k0")

// contentHash fingerprints file content.
func contentHash(data []byte) (uint64, error) {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return 0, err
	}
	_, err = h.Write(data)
	return h.Sum64(), err
}

// snapshot is what a target held when the run read it.
type snapshot struct {
	exists bool
	sum    uint64
}

// takeSnapshot hashes the current content of path. A missing file gives
// the zero snapshot.
func takeSnapshot(path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot{}, nil
	}
	if err != nil {
		return snapshot{}, err
	}
	sum, err := contentHash(data)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{exists: true, sum: sum}, nil
}

// holds reports whether the snapshotted content is data.
func (s snapshot) holds(data []byte) (bool, error) {
	if !s.exists {
		return false, nil
	}
	sum, err := contentHash(data)
	if err != nil {
		return false, err
	}
	return sum == s.sum, nil
}

// ConcurrentEditError reports a target that changed on disk after the run
// read it. Nothing is written.
type ConcurrentEditError struct {
	File string
}

func (e *ConcurrentEditError) Error() string {
	return fmt.Sprintf("%s changed on disk during the run; nothing was written", e.File)
}

// pendingWrite is one output file. base is the target's content when it
// was read.
type pendingWrite struct {
	path string
	data []byte
	base snapshot
	temp string
}

// commit writes every file atomically as a group: all contents are staged
// to temp files next to their targets before the first rename, and a
// failure while staging removes every temp file and leaves the targets
// untouched. Every target is re-hashed before the first rename; one that
// no longer matches its snapshot aborts the commit with a
// *ConcurrentEditError. Cancellation is honored up to the first rename.
func commit(ctx context.Context, writes []*pendingWrite) error {
	log := ctxlog.FromContext(ctx)

	cleanup := func() {
		for _, w := range writes {
			if w.temp != "" {
				os.Remove(w.temp)
				w.temp = ""
			}
		}
	}

	for _, w := range writes {
		if err := stage(w); err != nil {
			cleanup()
			return fmt.Errorf("stage %s: %w", w.path, err)
		}
		log.Debug("staged", "file", w.path, "temp", w.temp)
	}

	if err := ctx.Err(); err != nil {
		cleanup()
		return err
	}

	for _, w := range writes {
		cur, err := takeSnapshot(w.path)
		if err != nil {
			cleanup()
			return err
		}
		if cur != w.base {
			cleanup()
			return &ConcurrentEditError{File: w.path}
		}
	}

	for _, w := range writes {
		if err := os.Rename(w.temp, w.path); err != nil {
			cleanup()
			return fmt.Errorf("rename %s: %w", w.path, err)
		}
		w.temp = ""
		log.Info("wrote", "file", w.path, "bytes", len(w.data))
	}
	return nil
}

// WriteFile replaces path with data the way generated schematics are
// written: staged next to the target and renamed into place. It is a no-op
// when the content is already identical.
func WriteFile(ctx context.Context, path string, data []byte) (bool, error) {
	base, err := takeSnapshot(path)
	if err != nil {
		return false, err
	}
	same, err := base.holds(data)
	if err != nil {
		return false, err
	}
	if same {
		return false, nil
	}
	if err := commit(ctx, []*pendingWrite{{path: path, data: data, base: base}}); err != nil {
		return false, err
	}
	return true, nil
}

func stage(w *pendingWrite) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return err
	}
	w.temp = f.Name()
	if _, err := f.Write(w.data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(w.path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.Chmod(w.temp, mode)
}
