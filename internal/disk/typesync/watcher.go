// Package typesync keeps the disk types table in line with a YAML file.
package typesync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/faciam-dev/gcdisk/internal/disk"
)

// Upserter stores disk types.
type Upserter interface {
	UpsertType(ctx context.Context, t disk.DiskType) error
}

// Watcher applies the types file on start and whenever it changes.
type Watcher struct {
	path     string
	repo     Upserter
	cache    *disk.SchemaCache
	debounce time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
}

// NewWatcher returns a watcher for path. debounce defaults to 200ms and a nil
// logger to slog.Default.
func NewWatcher(path string, repo Upserter, cache *disk.SchemaCache, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, repo: repo, cache: cache, debounce: debounce, logger: logger}
}

// Sync reads the file once and upserts every type in it.
func (w *Watcher) Sync(ctx context.Context) (int, error) {
	b, err := os.ReadFile(w.path)
	if err != nil {
		return 0, fmt.Errorf("read disk types: %w", err)
	}
	types, err := disk.ParseTypes(b)
	if err != nil {
		return 0, err
	}
	for _, t := range types {
		if err := w.repo.UpsertType(ctx, t); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", t.Code, err)
		}
	}
	if w.cache != nil {
		w.cache.Reset()
	}
	w.logger.Info("disk types synced", "path", w.path, "types", len(types))
	return len(types), nil
}

// Start syncs once and then watches the file's directory. Editors often
// replace files by rename, so events are matched by name. The returned
// function stops watching.
func (w *Watcher) Start(ctx context.Context) (func(), error) {
	if _, err := w.Sync(ctx); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	target := filepath.Clean(w.path)

	go func() {
		defer fw.Close()
		var timer *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				if _, err := w.Sync(ctx); err != nil {
					w.logger.Error("disk types reload failed", "err", err)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("fsnotify error", "err", err)
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			}
		}
	}()

	return func() { w.stopOnce.Do(cancel) }, nil
}
