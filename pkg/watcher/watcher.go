// Package watcher reports changes to a single file, debounced.
//
// The file's directory is watched rather than the file itself so that editors
// which save by writing a temp file and renaming it over the original are
// still seen. When fsnotify cannot be used the watcher falls back to polling
// the file's modification time.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is used by the polling fallback.
const DefaultPollInterval = time.Second

// Options tunes a Watcher.
type Options struct {
	Debounce     time.Duration
	PollInterval time.Duration
	// ForcePoll skips fsnotify entirely.
	ForcePoll bool
	Logger    logrus.FieldLogger
}

// Watcher calls OnChange after the watched file is written, created or
// replaced.
type Watcher struct {
	path     string
	onChange func()
	opts     Options
	log      logrus.FieldLogger
}

// New creates a watcher for path. It does not start watching until Run.
func New(path string, onChange func(), opts Options) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("watcher: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Watcher{
		path:     abs,
		onChange: onChange,
		opts:     opts,
		log:      opts.Logger.WithField("path", abs),
	}, nil
}

// Watch is New followed by Run.
func Watch(ctx context.Context, path string, onChange func()) error {
	w, err := New(path, onChange, Options{})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Run blocks until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	deb := NewDebouncer(w.opts.Debounce, w.onChange)
	defer deb.Cancel()

	if w.opts.ForcePoll {
		return w.poll(ctx, deb)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.WithError(err).Warn("fsnotify unavailable, polling instead")
		return w.poll(ctx, deb)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		w.log.WithError(err).Warn("cannot watch directory, polling instead")
		return w.poll(ctx, deb)
	}
	w.log.Debug("watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.log.WithField("op", ev.Op.String()).Trace("file event")
				deb.Trigger()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) poll(ctx context.Context, deb *Debouncer) error {
	last := w.modTime()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if mt := w.modTime(); !mt.Equal(last) {
				last = mt
				deb.Trigger()
			}
		}
	}
}

func (w *Watcher) modTime() time.Time {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
