package geosource

import (
	"context"
	"sync"
	"time"

	"delitrack/internal/types"
)

// StaticProvider replays a fixed list of coordinates, one per call, holding
// the last one once the script is exhausted. Used by demos and tests.
type StaticProvider struct {
	mu     sync.Mutex
	points []types.Point
	next   int
}

func NewStaticProvider(points ...types.Point) *StaticProvider {
	return &StaticProvider{points: points}
}

func (p *StaticProvider) Locate(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, ErrTimeout
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.points) == 0 {
		return Fix{}, ErrPositionUnavailable
	}
	pt := p.points[p.next]
	if p.next < len(p.points)-1 {
		p.next++
	}
	return Fix{Point: pt, At: time.Now()}, nil
}
