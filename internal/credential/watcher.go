package credential

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/aurora-dispenser/aurora-sync/internal/logging"
)

// DefaultDebounce collapses the burst of events produced by one atomic replace.
const DefaultDebounce = 300 * time.Millisecond

// Watcher calls a function when the credential file changes on disk.
//
// The parent directory is watched rather than the file itself: an atomic
// replace swaps the inode, which would silently end a watch on the file.
type Watcher struct {
	path     string
	onChange func()
	debounce time.Duration

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the file at path. onChange runs on the
// watcher's goroutine after each debounced burst of writes, creates, renames
// or removals of that file.
func NewWatcher(path string, onChange func()) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: DefaultDebounce,
		watcher:  w,
	}, nil
}

// SetDebounce overrides DefaultDebounce. Call before Start.
func (cw *Watcher) SetDebounce(d time.Duration) {
	cw.debounce = d
}

// Start begins watching.
func (cw *Watcher) Start() error {
	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(cw.path), err)
	}

	cw.stopChan = make(chan struct{})
	cw.done = make(chan struct{})
	go cw.watchLoop()

	logging.Info("Credential watcher started", zap.String("path", cw.path))
	return nil
}

// Stop halts the watcher and waits for its goroutine to exit.
func (cw *Watcher) Stop() {
	cw.stopOnce.Do(func() {
		if cw.stopChan != nil {
			close(cw.stopChan)
			<-cw.done
		}
		cw.watcher.Close()
		logging.Info("Credential watcher stopped", zap.String("path", cw.path))
	})
}

func (cw *Watcher) watchLoop() {
	defer close(cw.done)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-cw.stopChan:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(cw.debounce, cw.fire)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Credential watcher error", zap.Error(err))
		}
	}
}

func (cw *Watcher) fire() {
	logging.Info("Credential file changed", zap.String("path", cw.path))
	if cw.onChange != nil {
		cw.onChange()
	}
}
