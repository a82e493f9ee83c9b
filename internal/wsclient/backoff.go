package wsclient

import (
	"math/rand"
	"time"
)

// Backoff yields exponentially growing delays with up to 10% jitter, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	attempt int
}

func (b *Backoff) Next() time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}

	d := base << b.attempt
	if d <= 0 || d > max {
		d = max
	} else {
		b.attempt++
	}
	if j := int64(d) / 10; j > 0 {
		d += time.Duration(rand.Int63n(j))
	}
	return d
}

func (b *Backoff) Reset() { b.attempt = 0 }

// Sleep waits for the next delay or until done is closed; it reports false
// when done fired first.
func (b *Backoff) Sleep(done <-chan struct{}) bool {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-done:
		return false
	}
}
