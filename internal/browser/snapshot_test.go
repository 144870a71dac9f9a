package browser

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSession implements Session with canned responses for snapshot tests.
type stubSession struct {
	snapshots atomic.Int64
	snapErr   error
}

func (s *stubSession) Navigate(ctx context.Context, url string) error         { return nil }
func (s *stubSession) Fill(ctx context.Context, sel, text string) error       { return nil }
func (s *stubSession) Click(ctx context.Context, sel string) error            { return nil }
func (s *stubSession) Text(ctx context.Context, sel string) (string, error)   { return "", nil }
func (s *stubSession) Back(ctx context.Context) error                         { return nil }
func (s *stubSession) Close() error                                           { return nil }
func (s *stubSession) WaitVisible(ctx context.Context, sel string, d time.Duration) error {
	return nil
}
func (s *stubSession) Attributes(ctx context.Context, sel, attr string) ([]string, error) {
	return nil, nil
}
func (s *stubSession) Snapshot(ctx context.Context) ([]byte, error) {
	s.snapshots.Add(1)
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return []byte("png-bytes"), nil
}

func TestSnapshotterWritesAndStops(t *testing.T) {
	dir := t.TempDir()
	stub := &stubSession{}

	s := NewSnapshotter(stub, dir, 10*time.Millisecond)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return stub.snapshots.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	after := stub.snapshots.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, stub.snapshots.Load(), "no captures after Stop")

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, files)
}

func TestSnapshotterSurvivesCaptureErrors(t *testing.T) {
	stub := &stubSession{snapErr: ErrNavigatedAway}

	s := NewSnapshotter(stub, t.TempDir(), 5*time.Millisecond)
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return stub.snapshots.Load() >= 3
	}, time.Second, time.Millisecond, "task keeps running through failures")
	s.Stop()
}

func TestSnapshotterStopWithoutStart(t *testing.T) {
	s := NewSnapshotter(&stubSession{}, t.TempDir(), time.Second)
	s.Stop() // must not panic or block
}
