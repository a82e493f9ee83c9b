package geosource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"delitrack/internal/types"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Locate(ctx context.Context) (Fix, error) {
	args := m.Called(ctx)
	return args.Get(0).(Fix), args.Error(1)
}

func newTestWatcher(p Provider, maxFailures int) *PollingWatcher {
	return &PollingWatcher{
		Provider:    p,
		Interval:    time.Millisecond,
		ReadTimeout: time.Second,
		MaxFailures: maxFailures,
		Logger:      zerolog.Nop(),
	}
}

func TestPollingWatcher_ToleratesTransientFailures(t *testing.T) {
	p := new(mockProvider)
	p.On("Locate", mock.Anything).Return(Fix{}, errors.New("no satellites")).Once()
	p.On("Locate", mock.Anything).Return(Fix{Point: here}, nil).Once()
	p.On("Locate", mock.Anything).Return(Fix{}, errors.New("no satellites")).Once()
	p.On("Locate", mock.Anything).Return(Fix{}, errors.New("no satellites")).Once()

	var fixes []Fix
	err := newTestWatcher(p, 2).Watch(context.Background(), func(f Fix) { fixes = append(fixes, f) })

	assert.ErrorIs(t, err, ErrPositionUnavailable)
	assert.Len(t, fixes, 1)
	p.AssertExpectations(t)
}

func TestPollingWatcher_PermissionIsFatal(t *testing.T) {
	p := new(mockProvider)
	p.On("Locate", mock.Anything).Return(Fix{}, ErrPermissionDenied).Once()

	err := newTestWatcher(p, 5).Watch(context.Background(), func(Fix) {})

	assert.ErrorIs(t, err, ErrPermissionDenied)
	p.AssertNumberOfCalls(t, "Locate", 1)
}

func TestPollingWatcher_DeadlineMapsToTimeout(t *testing.T) {
	p := new(mockProvider)
	p.On("Locate", mock.Anything).Return(Fix{}, context.DeadlineExceeded)

	err := newTestWatcher(p, 1).Watch(context.Background(), func(Fix) {})

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPollingWatcher_CancelReturnsNil(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := new(mockProvider)
	p.On("Locate", mock.Anything).Return(Fix{Point: here}, nil)

	calls := 0
	err := newTestWatcher(p, 1).Watch(ctx, func(Fix) {
		calls++
		if calls == 3 {
			cancel()
		}
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStaticProvider_ReplaysAndHolds(t *testing.T) {
	a, b := here, types.Point{Lat: 12.995, Lng: 77.66}
	p := NewStaticProvider(a, b)
	ctx := context.Background()

	f1, _ := p.Locate(ctx)
	f2, _ := p.Locate(ctx)
	f3, _ := p.Locate(ctx)

	assert.Equal(t, a, f1.Point)
	assert.Equal(t, b, f2.Point)
	assert.Equal(t, b, f3.Point)

	_, err := NewStaticProvider().Locate(ctx)
	assert.ErrorIs(t, err, ErrPositionUnavailable)
}
