package pidfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// WaitReleased
// ///////////////////////////////////////////////

// maxPollInterval caps the polling fallback's backoff.
const maxPollInterval = 2 * time.Second

// WaitReleased blocks until the pidfile at path no longer exists or ctx is
// done. It watches the parent directory with fsnotify and falls back to
// polling with exponential backoff when fsnotify is unavailable.
func WaitReleased(ctx context.Context, path string) error {
	if gone(path) {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("fsnotify unavailable, polling pidfile", "path", path, "error", err)
		return pollReleased(ctx, path)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		slog.Debug("cannot watch pidfile directory, polling", "path", path, "error", err)
		return pollReleased(ctx, path)
	}

	// The file may have gone between the first check and the watch being added.
	if gone(path) {
		return nil
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", path, ctx.Err())
		case ev, ok := <-fsw.Events:
			if !ok {
				return pollReleased(ctx, path)
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				if gone(path) {
					return nil
				}
			}
		case werr, ok := <-fsw.Errors:
			if !ok {
				return pollReleased(ctx, path)
			}
			slog.Debug("pidfile watcher error, polling", "path", path, "error", werr)
			return pollReleased(ctx, path)
		}
	}
}

// pollReleased stats path with exponential backoff until it disappears.
func pollReleased(ctx context.Context, path string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = maxPollInterval
	bo.MaxElapsedTime = 0

	errPresent := errors.New("pidfile still present")
	err := backoff.Retry(func() error {
		if gone(path) {
			return nil
		}
		return errPresent
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", path, ctx.Err())
	}
	return nil
}

// gone reports whether path does not exist.
func gone(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}
