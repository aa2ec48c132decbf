// Package ratelimit provides an adaptive client-side rate limiter for the
// workflow client pipeline.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"goa.design/pulse/rmap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"goa.design/goa-temporal/runtime/rpc"
	"goa.design/goa-temporal/runtime/telemetry"
)

// MetricRate is the gauge recording the effective calls-per-minute budget.
const MetricRate = "wfclient.ratelimit.cpm"

type (
	// Options configures an AdaptiveLimiter.
	Options struct {
		// InitialRate is the starting budget in calls per minute. Defaults
		// to 600.
		InitialRate float64
		// MaxRate caps the budget when probing upward. Values below
		// InitialRate are clamped to InitialRate.
		MaxRate float64
		// Cost returns the number of budget units consumed by a call to
		// method. Defaults to one unit per call.
		Cost func(method string) int
		// Map shares the budget across processes when set together with
		// Key.
		Map *rmap.Map
		// Key is the replicated map key holding the shared budget.
		Key string
		// Logger receives budget changes.
		Logger telemetry.Logger
		// Metrics records the effective budget.
		Metrics telemetry.Metrics
	}

	// AdaptiveLimiter applies an AIMD token bucket to outgoing calls. The
	// budget is halved every time the server answers RESOURCE_EXHAUSTED and
	// grows by a fixed step after each successful call, within
	// [InitialRate/10, MaxRate].
	//
	// When configured with a replicated map the budget is shared: local
	// adjustments are published to the map and changes made by other
	// processes are applied locally.
	AdaptiveLimiter struct {
		mu sync.Mutex

		limiter *rate.Limiter
		cost    func(string) int

		currentCPM float64
		minCPM     float64
		maxCPM     float64

		recoveryRate float64

		logger  telemetry.Logger
		metrics telemetry.Metrics

		onBackoff func(newCPM float64)
		onProbe   func(newCPM float64)
	}

	// clusterMap is the subset of rmap.Map used by the shared limiter.
	clusterMap interface {
		Get(key string) (string, bool)
		SetIfNotExists(ctx context.Context, key, value string) (bool, error)
		TestAndSet(ctx context.Context, key, test, value string) (string, error)
		Subscribe() <-chan rmap.EventKind
	}

	rmapClusterMap struct {
		m *rmap.Map
	}
)

// DefaultRate is the budget used when Options.InitialRate is not set.
const DefaultRate = 600

// New returns a limiter configured with opts. ctx bounds the initial
// synchronization with the replicated map.
func New(ctx context.Context, opts Options) *AdaptiveLimiter {
	var cm clusterMap
	if opts.Map != nil {
		cm = &rmapClusterMap{m: opts.Map}
	}
	return newCluster(ctx, cm, opts)
}

func newLocal(opts Options) *AdaptiveLimiter {
	initial := opts.InitialRate
	if initial <= 0 {
		initial = DefaultRate
	}
	maxCPM := opts.MaxRate
	if maxCPM < initial {
		maxCPM = initial
	}
	minCPM := initial * 0.1
	if minCPM < 1 {
		minCPM = 1
	}
	recovery := initial * 0.05
	if recovery < 1 {
		recovery = 1
	}
	l := &AdaptiveLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initial/60.0), burst(initial)),
		cost:         opts.Cost,
		currentCPM:   initial,
		minCPM:       minCPM,
		maxCPM:       maxCPM,
		recoveryRate: recovery,
		logger:       telemetry.LoggerOrNoop(opts.Logger),
		metrics:      telemetry.MetricsOrNoop(opts.Metrics),
	}
	if l.cost == nil {
		l.cost = func(string) int { return 1 }
	}
	return l
}

// Interceptor returns a pipeline interceptor that waits for budget before
// each call and adjusts the budget from the call outcome.
//
// The pipeline wraps the client retry loop, so the interceptor sees one
// outcome per logical call. A call retried under an unlimited attempt budget
// never reports RESOURCE_EXHAUSTED; bound MaximumAttempts so the budget can
// back off.
func (l *AdaptiveLimiter) Interceptor() rpc.Interceptor {
	return rpc.InterceptorFunc(func(ctx context.Context, method string, arg any, cc *rpc.CallContext, next rpc.Handler) (any, error) {
		if err := l.Wait(ctx, method); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, status.FromContextError(ctxErr).Err()
			}
			return nil, status.Errorf(codes.ResourceExhausted, "ratelimit: %s: %v", method, err)
		}
		res, err := next(ctx, method, arg, cc)
		l.observe(ctx, err)
		return res, err
	})
}

// Wait blocks until the budget allows a call to method.
func (l *AdaptiveLimiter) Wait(ctx context.Context, method string) error {
	n := l.cost(method)
	if n < 1 {
		n = 1
	}
	return l.limiter.WaitN(ctx, n)
}

// Rate returns the current budget in calls per minute.
func (l *AdaptiveLimiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentCPM
}

func (l *AdaptiveLimiter) observe(ctx context.Context, err error) {
	switch {
	case err == nil:
		l.rampUp()
	case status.Code(err) == codes.ResourceExhausted:
		if cpm, changed := l.backoff(); changed {
			l.logger.Warn(ctx, "server is throttling, reducing call rate", "cpm", cpm)
		}
	}
}

func (l *AdaptiveLimiter) backoff() (float64, bool) {
	l.mu.Lock()
	next := l.currentCPM * 0.5
	if next < l.minCPM {
		next = l.minCPM
	}
	if next == l.currentCPM {
		l.mu.Unlock()
		return next, false
	}
	l.setLocked(next)
	cb := l.onBackoff
	l.mu.Unlock()

	if cb != nil {
		cb(next)
	}
	return next, true
}

func (l *AdaptiveLimiter) rampUp() {
	l.mu.Lock()
	next := l.currentCPM + l.recoveryRate
	if next > l.maxCPM {
		next = l.maxCPM
	}
	if next == l.currentCPM {
		l.mu.Unlock()
		return
	}
	l.setLocked(next)
	cb := l.onProbe
	l.mu.Unlock()

	if cb != nil {
		cb(next)
	}
}

// replace sets the budget to cpm clamped to the configured range.
func (l *AdaptiveLimiter) replace(cpm float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cpm = min(max(cpm, l.minCPM), l.maxCPM)
	if cpm == l.currentCPM {
		return
	}
	l.setLocked(cpm)
}

func (l *AdaptiveLimiter) setLocked(cpm float64) {
	l.currentCPM = cpm
	l.limiter.SetLimit(rate.Limit(cpm / 60.0))
	l.limiter.SetBurst(burst(cpm))
	l.metrics.RecordGauge(MetricRate, cpm)
}

func (l *AdaptiveLimiter) setClusterCallbacks(onBackoff, onProbe func(float64)) {
	l.mu.Lock()
	l.onBackoff = onBackoff
	l.onProbe = onProbe
	l.mu.Unlock()
}

// burst allows up to one second worth of calls at once, at least one.
func burst(cpm float64) int {
	return max(int(cpm/60.0), 1)
}

func (m *rmapClusterMap) Get(key string) (string, bool) {
	return m.m.Get(key)
}

func (m *rmapClusterMap) SetIfNotExists(ctx context.Context, key, value string) (bool, error) {
	return m.m.SetIfNotExists(ctx, key, value)
}

func (m *rmapClusterMap) TestAndSet(ctx context.Context, key, test, value string) (string, error) {
	return m.m.TestAndSet(ctx, key, test, value)
}

func (m *rmapClusterMap) Subscribe() <-chan rmap.EventKind {
	return m.m.Subscribe()
}

func newCluster(ctx context.Context, m clusterMap, opts Options) *AdaptiveLimiter {
	if opts.Key == "" || m == nil {
		return newLocal(opts)
	}
	initial := opts.InitialRate
	if initial <= 0 {
		initial = DefaultRate
	}

	// Seed the shared budget; a concurrent writer may win, the value is read
	// back below.
	if _, ok := m.Get(opts.Key); !ok {
		if _, err := m.SetIfNotExists(ctx, opts.Key, formatCPM(initial)); err != nil {
			if opts.Logger != nil {
				opts.Logger.Warn(ctx, "shared rate budget unavailable, using local limiter", "key", opts.Key, "err", err)
			}
			return newLocal(opts)
		}
	}
	if v, ok := parseCPM(m.Get(opts.Key)); ok {
		opts.InitialRate = v
		if opts.MaxRate < initial {
			opts.MaxRate = initial
		}
	}

	l := newLocal(opts)
	floor, ceiling, step := l.minCPM, l.maxCPM, l.recoveryRate
	l.setClusterCallbacks(
		func(float64) { go globalBackoff(context.Background(), m, opts.Key, floor) },
		func(float64) { go globalProbe(context.Background(), m, opts.Key, step, ceiling) },
	)

	ch := m.Subscribe()
	go func() {
		for range ch {
			if v, ok := parseCPM(m.Get(opts.Key)); ok {
				l.replace(v)
			}
		}
	}()
	return l
}

func globalBackoff(ctx context.Context, m clusterMap, key string, floor float64) {
	update(ctx, m, key, func(cur float64) (float64, bool) {
		return max(cur*0.5, floor), true
	})
}

func globalProbe(ctx context.Context, m clusterMap, key string, step, ceiling float64) {
	update(ctx, m, key, func(cur float64) (float64, bool) {
		if cur >= ceiling {
			return cur, false
		}
		return min(cur+step, ceiling), true
	})
}

// update applies fn to the shared budget with optimistic concurrency,
// giving up after a few conflicting writes.
func update(ctx context.Context, m clusterMap, key string, fn func(float64) (float64, bool)) {
	const maxAttempts = 3

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for range maxAttempts {
		curStr, ok := m.Get(key)
		if !ok {
			return
		}
		cur, ok := parseCPM(curStr, true)
		if !ok {
			return
		}
		next, apply := fn(cur)
		if !apply {
			return
		}
		prev, err := m.TestAndSet(ctx, key, curStr, formatCPM(next))
		if err != nil || prev == curStr {
			return
		}
	}
}

func formatCPM(v float64) string {
	return strconv.Itoa(int(v))
}

func parseCPM(s string, ok bool) (float64, bool) {
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
