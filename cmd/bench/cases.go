// README: Bench checks: store reachability, HTTP contract, relay semantics (isolation, no backlog) and fan-out load.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"delitrack/internal/modules/relay"
	"delitrack/internal/types"
	"delitrack/internal/wsclient"
)

type outcome int

const (
	passed outcome = iota
	degraded
	skipped
	failed
	outcomeCount
)

func (o outcome) String() string {
	return [...]string{"ok", "degraded", "skipped", "failed"}[o]
}

type result struct {
	outcome outcome
	took    time.Duration
	detail  string
}

func (r result) line(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%-8s] %s", r.outcome, name)
	if r.took > 0 {
		fmt.Fprintf(&b, " in %s", r.took.Round(time.Microsecond))
	}
	if r.detail != "" {
		b.WriteString(": " + r.detail)
	}
	return b.String()
}

func fail(err error) result { return result{outcome: failed, detail: err.Error()} }

func failf(format string, args ...any) result {
	return result{outcome: failed, detail: fmt.Sprintf(format, args...)}
}

type check struct {
	name string
	run  func(ctx context.Context, b *bench) result
}

type bench struct {
	cfg   benchConfig
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

func newBench(cfg benchConfig) *bench {
	b := &bench{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}}
	if cfg.DSN != "" {
		if db, err := pgxpool.New(context.Background(), cfg.DSN); err == nil {
			b.db = db
		}
	}
	if cfg.RedisAddr != "" {
		b.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return b
}

func (b *bench) close() {
	if b.db != nil {
		b.db.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func (b *bench) client() *wsclient.Client {
	return wsclient.New("ws"+strings.TrimPrefix(b.cfg.BaseURL, "http")+"/ws", zerolog.Nop())
}

const directionsPath = "/api/maps/directions?start=77.6525905,12.9906677&end=77.6600,12.9750"

func (b *bench) checks() []check {
	return []check{
		{"stores reachable", storesReachable},
		{"GET /health", expectStatus(http.MethodGet, "/health", nil, http.StatusOK)},
		{"GET /metrics", expectStatus(http.MethodGet, "/metrics", nil, http.StatusOK)},
		{"directions proxy", expectStatus(http.MethodGet, directionsPath, nil, http.StatusOK, http.StatusServiceUnavailable)},
		{"directions rejects bad coordinates", expectStatus(http.MethodGet, "/api/maps/directions?start=oops&end=77.66,12.975", nil, http.StatusBadRequest)},
		{"status push rejects unknown status", expectStatus(http.MethodPost, "/api/orders/bench-1/status", map[string]any{"status": "teleported"}, http.StatusBadRequest)},
		{"status push accepted", expectStatus(http.MethodPost, "/api/orders/bench-1/status", map[string]any{"status": "preparing"}, http.StatusAccepted, http.StatusInternalServerError)},
		{"status update reaches tracker", statusReachesTracker},
		{"room isolation", roomIsolation},
		{"late joiner gets no backlog", lateJoiner},
		{"fan-out latency", fanOut},
		{"directions proxy load", func(ctx context.Context, b *bench) result { return proxyLoad(ctx, b, directionsPath) }},
	}
}

// storesReachable pings whichever of the order store and relay broker are configured.
func storesReachable(ctx context.Context, b *bench) result {
	if b.db == nil && b.redis == nil {
		return result{outcome: skipped, detail: "no dsn or redis address"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	if b.db != nil {
		g.Go(func() error { return b.db.Ping(gctx) })
	}
	if b.redis != nil {
		g.Go(func() error { return b.redis.Ping(gctx).Err() })
	}
	if err := g.Wait(); err != nil {
		return fail(err)
	}
	return result{outcome: passed, took: time.Since(start)}
}

// expectStatus sends one request and grades the response code. Codes in
// unavailable mean the server is up but a dependency is not configured.
func expectStatus(method, path string, body any, want int, unavailable ...int) func(context.Context, *bench) result {
	return func(ctx context.Context, b *bench) result {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return fail(err)
			}
			reader = strings.NewReader(string(raw))
		}
		req, err := http.NewRequestWithContext(ctx, method, b.cfg.BaseURL+path, reader)
		if err != nil {
			return fail(err)
		}
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := b.httpc.Do(req)
		if err != nil {
			return fail(err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		res := result{took: time.Since(start), detail: fmt.Sprintf("status=%d", resp.StatusCode)}
		switch {
		case resp.StatusCode == want:
			res.outcome = passed
		case slices.Contains(unavailable, resp.StatusCode):
			res.outcome = degraded
		default:
			res.outcome = failed
			res.detail += fmt.Sprintf(" want=%d", want)
		}
		return res
	}
}

// benchRoom returns a fresh order id so repeated runs never share rooms.
func benchRoom() string {
	return "bench-" + uuid.NewString()[:8]
}

// startRider connects a publisher and waits until it has joined.
func startRider(ctx context.Context, b *bench, orderID string) (*wsclient.Publisher, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(ctx)
	pub := b.client().NewPublisher(orderID, 100*time.Millisecond, time.Second)
	go func() { _ = pub.Run(ctx) }()
	select {
	case <-pub.Ready():
		return pub, cancel, nil
	case <-time.After(5 * time.Second):
		cancel()
		return nil, nil, fmt.Errorf("rider did not join %s", orderID)
	}
}

func sample(orderID string, i int) types.PositionSample {
	return types.PositionSample{
		OrderID:   orderID,
		Lat:       12.9906677 - float64(i)*0.0001,
		Lng:       77.6525905 + float64(i)*0.0001,
		Timestamp: time.Now().UnixMilli(),
	}
}

// settle gives the relay time to process joins sent just before.
func settle() { time.Sleep(200 * time.Millisecond) }

func receiveOne(sub *wsclient.Subscription, wait time.Duration) (relay.Message, bool) {
	select {
	case m, ok := <-sub.Messages():
		return m, ok
	case <-time.After(wait):
		return relay.Message{}, false
	}
}

func statusReachesTracker(ctx context.Context, b *bench) result {
	room := benchRoom()
	sub, err := b.client().Subscribe(ctx, room)
	if err != nil {
		return fail(err)
	}
	defer sub.Close()
	settle()

	body := strings.NewReader(`{"status":"out_for_delivery"}`)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/api/orders/"+room+"/status", body)
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := b.httpc.Do(req)
	if err != nil {
		return fail(err)
	}
	resp.Body.Close()

	m, ok := receiveOne(sub, 3*time.Second)
	if !ok || m.Event != relay.EventStatusUpdate || m.Status.Status != "out_for_delivery" {
		return failf("http=%d got=%q", resp.StatusCode, m.Event)
	}
	return result{outcome: passed, took: time.Since(start)}
}

func roomIsolation(ctx context.Context, b *bench) result {
	roomA, roomB := benchRoom(), benchRoom()
	subA, err := b.client().Subscribe(ctx, roomA)
	if err != nil {
		return fail(err)
	}
	defer subA.Close()
	subB, err := b.client().Subscribe(ctx, roomB)
	if err != nil {
		return fail(err)
	}
	defer subB.Close()

	pub, stop, err := startRider(ctx, b, roomA)
	if err != nil {
		return fail(err)
	}
	defer stop()
	settle()

	if err := pub.Publish(ctx, sample(roomA, 1)); err != nil {
		return fail(err)
	}
	if m, ok := receiveOne(subA, 3*time.Second); !ok || m.Sample.OrderID != roomA {
		return result{outcome: failed, detail: "room A did not receive its sample"}
	}
	if m, ok := receiveOne(subB, 500*time.Millisecond); ok {
		return result{outcome: failed, detail: "room B received " + m.Sample.OrderID}
	}
	return result{outcome: passed}
}

func lateJoiner(ctx context.Context, b *bench) result {
	room := benchRoom()
	pub, stop, err := startRider(ctx, b, room)
	if err != nil {
		return fail(err)
	}
	defer stop()

	for i := 0; i < 3; i++ {
		_ = pub.Publish(ctx, sample(room, i))
	}
	settle()

	sub, err := b.client().Subscribe(ctx, room)
	if err != nil {
		return fail(err)
	}
	defer sub.Close()
	if _, ok := receiveOne(sub, 500*time.Millisecond); ok {
		return result{outcome: failed, detail: "late joiner received an old sample"}
	}

	_ = pub.Publish(ctx, sample(room, 10))
	if _, ok := receiveOne(sub, 3*time.Second); !ok {
		return result{outcome: failed, detail: "late joiner missed a live sample"}
	}
	return result{outcome: passed}
}

func fanOut(ctx context.Context, b *bench) result {
	room := benchRoom()
	var (
		mu        sync.Mutex
		latencies []time.Duration
		wg        sync.WaitGroup
	)

	subs := make([]*wsclient.Subscription, 0, b.cfg.Trackers)
	for i := 0; i < b.cfg.Trackers; i++ {
		sub, err := b.client().Subscribe(ctx, room)
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return failf("tracker %d: %v", i, err)
		}
		subs = append(subs, sub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range sub.Messages() {
				if m.Event != relay.EventDeliveryPosition {
					continue
				}
				d := time.Since(time.UnixMilli(m.Sample.Timestamp))
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}

	pub, stop, err := startRider(ctx, b, room)
	if err != nil {
		for _, s := range subs {
			s.Close()
		}
		wg.Wait()
		return fail(err)
	}
	settle()

	ticker := time.NewTicker(time.Second / time.Duration(b.cfg.Rate))
	deadline := time.After(b.cfg.Duration)
	sent, publishErrs := 0, 0
publish:
	for {
		select {
		case <-ctx.Done():
			break publish
		case <-deadline:
			break publish
		case <-ticker.C:
			if err := pub.Publish(ctx, sample(room, sent)); err != nil {
				publishErrs++
				continue
			}
			sent++
		}
	}
	ticker.Stop()
	// let in-flight samples land before tearing the room down
	time.Sleep(500 * time.Millisecond)
	stop()
	for _, s := range subs {
		s.Close()
	}
	wg.Wait()

	if len(latencies) == 0 {
		return failf("sent=%d delivered=0", sent)
	}
	slices.Sort(latencies)
	p50 := latencies[len(latencies)/2]
	p99 := latencies[len(latencies)*99/100]
	res := result{
		outcome: passed,
		took:    p50,
		detail: fmt.Sprintf("sent=%d publish_errors=%d delivered=%d/%d p99=%s",
			sent, publishErrs, len(latencies), sent*b.cfg.Trackers, p99),
	}
	if len(latencies) < sent*b.cfg.Trackers {
		res.outcome = degraded
	}
	return res
}

// proxyLoad hammers the directions proxy from cfg.Concurrency workers and
// reports completed requests per second.
func proxyLoad(ctx context.Context, b *bench, path string) result {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Duration)
	defer cancel()

	type tally struct{ ok, errs, unavailable int }
	tallies := make([]tally, b.cfg.Concurrency)
	var wg sync.WaitGroup
	for i := range tallies {
		wg.Add(1)
		go func(t *tally) {
			defer wg.Done()
			for ctx.Err() == nil {
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+path, nil)
				resp, err := b.httpc.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						t.errs++
					}
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode == http.StatusServiceUnavailable {
					t.unavailable++
				} else {
					t.ok++
				}
			}
		}(&tallies[i])
	}
	wg.Wait()

	var total tally
	for _, t := range tallies {
		total.ok += t.ok
		total.errs += t.errs
		total.unavailable += t.unavailable
	}
	switch {
	case total.ok == 0 && total.unavailable > 0:
		return result{outcome: degraded, detail: "directions provider not configured"}
	case total.ok == 0:
		return result{outcome: failed, detail: "no requests completed"}
	}
	rps := float64(total.ok) / b.cfg.Duration.Seconds()
	return result{outcome: passed, detail: fmt.Sprintf("rps=%.1f errors=%d", rps, total.errs)}
}
