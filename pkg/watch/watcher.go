// Package watch observes a rule source location for changes and triggers
// an asynchronous callback, typically bound to a ruleset store reload.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/scanforge/sigscan/pkg/logging"
)

// DefaultDebounce coalesces bursts of filesystem events (editors often
// write, chmod and rename in quick succession) into one callback.
const DefaultDebounce = 250 * time.Millisecond

// Watcher observes a file or directory (recursively) and invokes its
// callback after changes settle. The callback runs on the watcher's own
// goroutine, decoupled from scan execution.
type Watcher struct {
	fw       *fsnotify.Watcher
	onChange func()
	debounce time.Duration
	log      zerolog.Logger
	target   string // single-file mode: only events for this path count

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the event-settle interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger overrides the watcher's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(w *Watcher) { w.log = log }
}

// New begins observing path and invokes onChange asynchronously after each
// detected modification. Directories are watched recursively, including
// directories created while watching. A single file is observed through
// its parent directory, so saves that replace the file survive.
func New(path string, onChange func(), opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		fw:       fw,
		onChange: onChange,
		debounce: DefaultDebounce,
		log:      logging.Component("watch"),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	info, err := os.Stat(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	if info.IsDir() {
		err = w.addDir(path)
	} else {
		// Editors save by writing a temp file and renaming it over the
		// target, which replaces the inode and orphans a watch on the
		// file itself. Watch the parent directory and filter events to
		// the target path instead.
		w.target = filepath.Clean(path)
		err = fw.Add(filepath.Dir(w.target))
	}
	if err != nil {
		fw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// addDir registers dir and all of its subdirectories with the underlying
// watcher.
func (w *Watcher) addDir(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fw.Add(p); err != nil {
				return fmt.Errorf("watching %s: %w", p, err)
			}
		}
		return nil
	})
}

// loop drains filesystem events, debounces them, and fires the callback.
// The callback executes on this goroutine, so Stop's wg.Wait guarantees no
// invocation begins after Stop returns.
func (w *Watcher) loop() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.target != "" && filepath.Clean(ev.Name) != w.target {
				continue
			}
			// New subdirectories join the watch so rule files added
			// later are still observed.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addDir(ev.Name); err != nil {
						w.log.Warn().Err(err).Str("path", ev.Name).Msg("failed to watch new directory")
					}
				}
			}
			w.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("rule source changed")
			timer.Reset(w.debounce)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")

		case <-timer.C:
			w.onChange()
		}
	}
}

// Stop ceases observation and releases watcher resources. It is idempotent
// and safe to call from any goroutine, including concurrently with an
// in-progress callback: that invocation completes, and no further
// invocations occur after Stop returns.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fw.Close()
		w.wg.Wait()
	})
}
