package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"FaceDetServer/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ModelWatcher calls OnChange after the watched model file has been
// written or replaced and then stayed quiet for the debounce period.
type ModelWatcher struct {
	path     string
	debounce time.Duration
	onChange func(path string)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

func NewModelWatcher(path string, debounce time.Duration, onChange func(path string)) (*ModelWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory so editors that replace the file by rename are seen.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &ModelWatcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		watcher:  w,
		done:     make(chan struct{}),
	}, nil
}

// Run blocks until ctx is cancelled or Close is called.
func (mw *ModelWatcher) Run(ctx context.Context) {
	defer close(mw.done)
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = mw.Close()
			return
		case ev, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != mw.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(mw.debounce)
			} else {
				timer.Reset(mw.debounce)
			}
			fire = timer.C
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			logger.Log().Warn("model watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			if fileExists(mw.path) {
				logger.Log().Info("model file changed", zap.String("path", mw.path))
				mw.onChange(mw.path)
			}
		}
	}
}

// Close stops the watcher. A running Run returns once the event channels close.
func (mw *ModelWatcher) Close() error {
	var err error
	mw.stopOnce.Do(func() {
		err = mw.watcher.Close()
	})
	return err
}

// Done is closed when Run returns.
func (mw *ModelWatcher) Done() <-chan struct{} {
	return mw.done
}
