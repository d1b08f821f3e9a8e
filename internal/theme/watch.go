package theme

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const debounceDelay = 150 * time.Millisecond

// Watcher reports changes to terminal config files. It does not touch
// Current itself; the callback is expected to hand the event to the UI
// goroutine, which then calls Refresh.
type Watcher struct {
	watcher  *fsnotify.Watcher
	log      *logrus.Entry
	debounce *time.Timer
	mu       sync.Mutex
	onChange func()
	done     chan struct{}
	once     sync.Once
}

// NewWatcher watches dirs that exist and calls onChange, debounced, after
// writes or creates inside them.
func NewWatcher(dirs []string, log *logrus.Entry, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsw,
		log:      log,
		onChange: onChange,
		done:     make(chan struct{}),
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Debug("cannot watch theme dir")
		}
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Debug("theme watcher error")

		case <-w.done:
			return
		}
	}
}

// scheduleChange coalesces bursts of writes (editors often write twice).
func (w *Watcher) scheduleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceDelay, func() {
		if w.onChange != nil {
			w.onChange()
		}
	})
}

// Stop closes the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.mu.Unlock()
	})
}
