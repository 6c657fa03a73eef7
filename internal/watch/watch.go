// Package watch re-runs a job when any of a set of files changes. Bursts of
// events are collapsed: the job runs once the files have been quiet for the
// debounce delay, and runs never overlap.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/OpenTraceLab/kisync/internal/ctxlog"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Paths are the files to watch. Their directories are watched, so
	// editors that save by renaming a temp file over the original are
	// seen too.
	Paths []string

	// Debounce is how long the files must be quiet before the job runs.
	Debounce time.Duration
}

// Job is run after each burst of changes with the watched paths that
// changed, sorted.
type Job func(ctx context.Context, changed []string) error

// Watcher watches files and runs a job on change.
type Watcher struct {
	config  Config
	watcher *fsnotify.Watcher
	targets map[string]bool // cleaned absolute paths
}

// New starts watching the configured paths.
func New(config Config) (*Watcher, error) {
	if len(config.Paths) == 0 {
		return nil, fmt.Errorf("watch: no paths")
	}
	if config.Debounce == 0 {
		config.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{config: config, watcher: fsw, targets: map[string]bool{}}
	dirs := map[string]bool{}
	for _, p := range config.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run blocks until ctx is done, running job after each burst of changes.
// Job errors are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context, job Job) error {
	log := ctxlog.FromContext(ctx)
	log.Info("watching for changes", "paths", w.config.Paths, "debounce", w.config.Debounce)

	timer := time.NewTimer(w.config.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			path, err := filepath.Abs(event.Name)
			if err != nil || !w.targets[path] {
				continue
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			log.Debug("file change detected", "file", path, "op", event.Op.String())
			pending[path] = true
			timer.Reset(w.config.Debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = map[string]bool{}

			if err := job(ctx, changed); err != nil {
				log.Error("run failed", "error", err)
			}
		}
	}
}
