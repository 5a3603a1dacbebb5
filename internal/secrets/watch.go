package secrets

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize allowlist watcher")

// Reloader is a Scrubber that rebuilds its detector when the allowlist file
// changes. A reload that fails keeps the previous detector.
type Reloader struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Detector]
	reloads atomic.Int64

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
}

// NewReloader loads the allowlist at path and builds the first detector.
// Call Start to begin watching.
func NewReloader(path string, logger *zap.Logger) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve allowlist path: %w", err)
	}
	r := &Reloader{path: abs, logger: logger, stop: make(chan struct{})}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Scrub implements Scrubber.
func (r *Reloader) Scrub(text string) Result {
	return r.current.Load().Scrub(text)
}

// Reloads returns how many times the detector has been rebuilt after the
// initial load.
func (r *Reloader) Reloads() int64 {
	return r.reloads.Load()
}

func (r *Reloader) reload() error {
	allowlist, err := LoadAllowlist(r.path)
	if err != nil {
		return err
	}
	d, err := NewDetector(allowlist, r.logger)
	if err != nil {
		return err
	}
	if r.current.Swap(d) != nil {
		r.reloads.Add(1)
		r.logger.Info("secrets allowlist reloaded",
			zap.String("path", r.path),
			zap.Int("regexes", len(allowlist.Regexes)),
			zap.Int("stopwords", len(allowlist.StopWords)))
	}
	return nil
}

// Start watches the allowlist's directory, so editors that replace the file
// are seen too. Events stop when ctx is done or Stop is called.
func (r *Reloader) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(r.path), err)
	}
	r.watcher = w
	go r.processEvents(ctx)
	return nil
}

// Stop stops watching. It is safe to call more than once.
func (r *Reloader) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		if r.watcher != nil {
			_ = r.watcher.Close()
		}
	})
}

func (r *Reloader) processEvents(ctx context.Context) {
	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := r.reload(); err != nil {
				r.logger.Warn("allowlist reload failed; keeping previous rules",
					zap.String("path", r.path), zap.Error(err))
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("allowlist watcher error", zap.Error(err))
		}
	}
}
