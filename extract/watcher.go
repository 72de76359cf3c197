package extract

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/logger"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 300 * time.Millisecond

// RunFunc performs one extraction.
type RunFunc func(ctx context.Context) error

// Watcher re-runs extraction when Go files under a root change.
type Watcher struct {
	root           string
	watcher        *fsnotify.Watcher
	run            RunFunc
	log            *zap.SugaredLogger
	debouncePeriod time.Duration

	mu            sync.Mutex
	debounceTimer *time.Timer
	runMu         sync.Mutex // serialises runs
	stopped       bool       // guarded by runMu
}

// NewWatcher watches every package directory under root.
func NewWatcher(root string, run RunFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	w := &Watcher{
		root:           root,
		watcher:        fw,
		run:            run,
		log:            logger.ComponentLogger("capgen.watch"),
		debouncePeriod: DefaultDebounce,
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// SetDebounce changes the debounce period. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debouncePeriod = d
}

// addTree adds root and its subdirectories, skipping the ones extraction skips.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		return nil
	})
}

// Run blocks until ctx is cancelled, re-running extraction after each burst
// of changes. A failed run is logged and the previous registry stays in place.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	w.log.Infow("Watching for changes", logger.FieldPath, w.root)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("Watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !SkipDir(filepath.Base(event.Name)) {
				if err := w.addTree(event.Name); err != nil {
					w.log.Warnw("Failed to watch new directory", logger.FieldPath, event.Name, logger.FieldError, err)
				}
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".go") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.log.Debugw("Change detected", logger.FieldFile, event.Name, logger.FieldOperation, event.Op.String())
	w.schedule(ctx)
}

// schedule debounces rapid file changes into one run
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		if ctx.Err() != nil {
			return
		}
		w.runMu.Lock()
		defer w.runMu.Unlock()
		if w.stopped {
			return
		}
		if err := w.run(ctx); err != nil {
			w.log.Errorw("Extraction failed, keeping previous registry", logger.FieldError, err)
		}
	})
}

// stop cancels a pending run and waits for one in flight to finish, so no
// run starts or outlives Run's return.
func (w *Watcher) stop() {
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	w.runMu.Lock()
	w.stopped = true
	w.runMu.Unlock()

	_ = w.watcher.Close()
}
