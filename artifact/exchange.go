// Package artifact implements the marker-file handshake with the external
// CAD process: the process writes its artifacts, then a ready marker; the
// consumer waits for the marker, reads the data and removes the marker so a
// later wait cannot observe a stale "ready".
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultTimeout      = 5 * time.Second
)

// ErrTimeout reports that the ready marker did not appear in time.
var ErrTimeout = errors.New("artifact: timed out waiting for ready marker")

// Exchange waits for and consumes marker-guarded artifacts. Polling is the
// source of truth; a directory watch only shortens the wait when the
// platform supports it.
type Exchange struct {
	PollInterval time.Duration
	Timeout      time.Duration
	// NoWatch disables the fsnotify wake-up and relies on polling alone.
	NoWatch bool
	Logger  *zap.Logger
}

// AwaitReady blocks until marker exists, timeout elapses (ErrTimeout) or
// ctx is done. A non-positive timeout uses x.Timeout.
func (x *Exchange) AwaitReady(ctx context.Context, marker string, timeout time.Duration) error {
	if marker == "" {
		return errors.New("artifact: empty marker path")
	}
	if timeout <= 0 {
		timeout = x.timeout()
	}
	if exists(marker) {
		return nil
	}

	logger := x.logger().With(zap.String("marker", marker))
	var events <-chan fsnotify.Event
	if !x.NoWatch {
		w, err := watchDir(filepath.Dir(marker))
		if err != nil {
			logger.Debug("marker watch unavailable, polling only", zap.Error(err))
		} else {
			defer w.Close()
			events = w.Events
		}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(x.pollInterval())
	defer ticker.Stop()

	for {
		// A marker created between the first check and the watch being set
		// up is caught here or by the next tick.
		if exists(marker) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if exists(marker) {
				return nil
			}
			logger.Info("ready marker did not appear", zap.Duration("timeout", timeout))
			return fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, marker)
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(marker) && ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				logger.Debug("ready marker event", zap.String("op", ev.Op.String()))
			}
		}
	}
}

// Consume reads dataPath in full, then deletes marker. A marker that is
// already gone is not an error.
func (x *Exchange) Consume(dataPath, marker string) ([]byte, error) {
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("artifact: read %s: %w", dataPath, err)
	}
	if err := os.Remove(marker); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("artifact: remove marker: %w", err)
	}
	x.logger().Debug("artifact consumed", zap.String("path", dataPath), zap.Int("bytes", len(data)))
	return data, nil
}

// ReadWhenReady waits for marker and consumes dataPath. Calling it twice
// without the producer re-creating the marker makes the second call time
// out.
func (x *Exchange) ReadWhenReady(ctx context.Context, dataPath, marker string, timeout time.Duration) ([]byte, error) {
	if err := x.AwaitReady(ctx, marker, timeout); err != nil {
		return nil, err
	}
	return x.Consume(dataPath, marker)
}

func watchDir(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	// Errors are not interesting here; drain them so the watcher never
	// blocks on a full channel.
	go func() {
		for range w.Errors {
		}
	}()
	return w, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (x *Exchange) pollInterval() time.Duration {
	if x == nil || x.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return x.PollInterval
}

func (x *Exchange) timeout() time.Duration {
	if x == nil || x.Timeout <= 0 {
		return DefaultTimeout
	}
	return x.Timeout
}

func (x *Exchange) logger() *zap.Logger {
	if x == nil || x.Logger == nil {
		return zap.NewNop()
	}
	return x.Logger
}
