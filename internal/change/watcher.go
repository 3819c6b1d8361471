// internal/change/watcher.go
package change

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ovc/internal/logging"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports bursts of file system activity below a working tree.
type Watcher struct {
	root     string
	metaDir  string
	filter   *Filter
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher watches every non-ignored directory below root.
func NewWatcher(root, metaDir string, filter *Filter, logger *zap.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		metaDir:  metaDir,
		filter:   filter,
		watcher:  watcher,
		debounce: 200 * time.Millisecond,
		logger:   logging.OrNop(logger),
	}

	if err := w.addTree(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("initializing watches: %w", err)
	}

	return w, nil
}

// addTree sets up watches for dir and its non-ignored subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != w.root && w.ignoredDir(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

func (w *Watcher) ignoredDir(path string) bool {
	name := filepath.Base(path)
	if filepath.Dir(path) == w.root && name == w.metaDir {
		return true
	}
	return w.filter.SkipDir(name)
}

// ignored reports whether an event path is outside the engine's view.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return true
	}
	rel = filepath.ToSlash(rel)
	if rel == w.metaDir || strings.HasPrefix(rel, w.metaDir+"/") {
		return true
	}
	return w.filter.Ignored(rel)
}

// Run calls onChange once per burst of relevant events until ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				// Handle directory creation
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Error("adding new directory to watcher", zap.Error(err))
					}
				}
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

// Close cleans up resources
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
