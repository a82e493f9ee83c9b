package geosource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delitrack/internal/types"
)

// chanWatcher emits whatever the test pushes into fixes and returns the first
// value pushed into fail.
type chanWatcher struct {
	fixes chan Fix
	fail  chan error
}

func newChanWatcher() *chanWatcher {
	return &chanWatcher{fixes: make(chan Fix), fail: make(chan error, 1)}
}

func (w *chanWatcher) Watch(ctx context.Context, onFix func(Fix)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.fail:
			return err
		case f := <-w.fixes:
			onFix(f)
		}
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	samples []types.PositionSample
	got     chan types.PositionSample
	err     error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{got: make(chan types.PositionSample, 64)}
}

func (p *recordingPublisher) Publish(ctx context.Context, s types.PositionSample) error {
	p.mu.Lock()
	p.samples = append(p.samples, s)
	err := p.err
	p.mu.Unlock()
	p.got <- s
	return err
}

func (p *recordingPublisher) next(t *testing.T) types.PositionSample {
	t.Helper()
	select {
	case s := <-p.got:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no sample published")
		return types.PositionSample{}
	}
}

func fakeClock() func() time.Time {
	var ms atomic.Int64
	ms.Store(1_700_000_000_000)
	return func() time.Time {
		return time.UnixMilli(ms.Add(1000))
	}
}

var here = types.Point{Lat: 12.99, Lng: 77.65}

func TestSource_StartStopLifecycle(t *testing.T) {
	s := New(newChanWatcher(), newRecordingPublisher(), Options{Logger: zerolog.Nop()})

	assert.ErrorIs(t, s.Start(context.Background(), ""), ErrMissingOrder)

	require.NoError(t, s.Start(context.Background(), "ORD-1"))
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(context.Background(), "ORD-1"), ErrAlreadyRunning)

	s.Stop()
	assert.False(t, s.Running())
	s.Stop()

	require.NoError(t, s.Start(context.Background(), "ORD-2"))
	s.Stop()
}

func TestSource_ForwardsFixImmediately(t *testing.T) {
	w := newChanWatcher()
	pub := newRecordingPublisher()
	s := New(w, pub, Options{KeepAlive: time.Hour, Now: fakeClock(), Logger: zerolog.Nop()})
	require.NoError(t, s.Start(context.Background(), "ORD-7"))
	defer s.Stop()

	w.fixes <- Fix{Point: here}
	got := pub.next(t)

	assert.Equal(t, "ORD-7", got.OrderID)
	assert.Equal(t, here, got.Point())
	assert.NotZero(t, got.Timestamp)

	last, ok := s.LastKnown()
	assert.True(t, ok)
	assert.Equal(t, here, last)
}

func TestSource_KeepAliveResendsWithFreshTimestamp(t *testing.T) {
	w := newChanWatcher()
	pub := newRecordingPublisher()
	s := New(w, pub, Options{KeepAlive: 20 * time.Millisecond, Now: fakeClock(), Logger: zerolog.Nop()})
	require.NoError(t, s.Start(context.Background(), "ORD-7"))
	defer s.Stop()

	w.fixes <- Fix{Point: here}
	first := pub.next(t)
	second := pub.next(t)
	third := pub.next(t)

	assert.Equal(t, here, second.Point())
	assert.Greater(t, second.Timestamp, first.Timestamp)
	assert.Greater(t, third.Timestamp, second.Timestamp)
}

func TestSource_KeepAliveWaitsForFirstFix(t *testing.T) {
	pub := newRecordingPublisher()
	s := New(newChanWatcher(), pub, Options{KeepAlive: 10 * time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, s.Start(context.Background(), "ORD-7"))
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Empty(t, pub.got)
}

func TestSource_IgnoresInvalidFix(t *testing.T) {
	w := newChanWatcher()
	pub := newRecordingPublisher()
	s := New(w, pub, Options{KeepAlive: time.Hour, Logger: zerolog.Nop()})
	require.NoError(t, s.Start(context.Background(), "ORD-7"))
	defer s.Stop()

	w.fixes <- Fix{Point: types.Point{}}
	w.fixes <- Fix{Point: here}

	assert.Equal(t, here, pub.next(t).Point())
	assert.Empty(t, pub.got)
}

func TestSource_FatalErrorStopsAndReports(t *testing.T) {
	w := newChanWatcher()
	s := New(w, newRecordingPublisher(), Options{Logger: zerolog.Nop()})

	reported := make(chan error, 1)
	s.OnError(func(err error) { reported <- err })
	require.NoError(t, s.Start(context.Background(), "ORD-7"))

	w.fail <- ErrPermissionDenied

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.Equal(t, "Location permission denied. Please allow location access.", UserMessage(err))
	case <-time.After(2 * time.Second):
		t.Fatal("error handler not called")
	}
	assert.False(t, s.Running())
	s.Stop()
}

func TestSource_PublishFailureIsNotFatal(t *testing.T) {
	w := newChanWatcher()
	pub := newRecordingPublisher()
	pub.err = errors.New("socket closed")
	s := New(w, pub, Options{KeepAlive: time.Hour, Logger: zerolog.Nop()})
	require.NoError(t, s.Start(context.Background(), "ORD-7"))
	defer s.Stop()

	w.fixes <- Fix{Point: here}
	pub.next(t)

	assert.True(t, s.Running())
	assert.Equal(t, int64(0), s.Sent())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrPositionUnavailable, "Location information is unavailable."},
		{ErrTimeout, "Location request timed out."},
		{errors.New("weird"), "An unknown error occurred."},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
