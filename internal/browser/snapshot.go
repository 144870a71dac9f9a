package browser

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Snapshotter periodically captures diagnostic screenshots of a session.
// It holds a read-only handle: it never navigates or mutates crawl state,
// so it can run alongside the single-threaded crawl. Stop cancels the task
// and blocks until it has finished.
type Snapshotter struct {
	session  Session
	dir      string
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSnapshotter creates a snapshot task writing PNGs into dir.
func NewSnapshotter(session Session, dir string, interval time.Duration) *Snapshotter {
	return &Snapshotter{
		session:  session,
		dir:      dir,
		interval: interval,
	}
}

// Start launches the background task. Capture failures are logged and
// skipped; they never affect the crawl.
func (s *Snapshotter) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "browser: create snapshot dir %s", s.dir)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	log := zap.L().With(zap.String("component", "browser.snapshotter"))
	log.Info("browser: snapshot task started",
		zap.String("dir", s.dir), zap.Duration("interval", s.interval))

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.capture(runCtx, log)
			}
		}
	}()
	return nil
}

// Stop cancels the task and waits for it to exit. Safe to call when the
// task was never started.
func (s *Snapshotter) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	zap.L().Info("browser: snapshot task stopped")
}

func (s *Snapshotter) capture(ctx context.Context, log *zap.Logger) {
	png, err := s.session.Snapshot(ctx)
	if err != nil {
		log.Debug("browser: snapshot capture failed", zap.Error(err))
		return
	}

	name := time.Now().Format("20060102_150405") + ".png"
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		log.Warn("browser: snapshot write failed", zap.String("path", path), zap.Error(err))
	}
}
