// Package health implements liveness and readiness probes for Kubernetes-style
// orchestration.
//
// Registered checks run periodically in the background. Thresholds smooth out
// transient blips: a check flips to unhealthy only after failing three times in
// a row, and recovers after a single success.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. It returns nil when the component is
// healthy.
type CheckFunc func(ctx context.Context) error

const (
	failAfter = 3
	okAfter   = 1
)

// check is one registered probe with its smoothed state.
type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	mu      sync.Mutex
	healthy bool
	lastErr error
	fails   int
	oks     int
}

// observe folds one probe result into the thresholded state.
func (c *check) observe(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = err
	if err != nil {
		c.oks = 0
		c.fails++
		if c.fails >= failAfter {
			c.healthy = false
		}
		return
	}
	c.fails = 0
	c.oks++
	if c.oks >= okAfter {
		c.healthy = true
	}
}

func (c *check) state() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy, c.lastErr
}

// loop runs the probe once immediately, then on every tick until ctx ends.
func (c *check) loop(ctx context.Context, interval time.Duration) {
	run := func() {
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		c.observe(c.fn(probeCtx))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// Health is a registry of liveness and readiness checks with HTTP endpoints
// for both probe kinds.
type Health struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates an empty registry. The service starts not ready; call
// SetReady(true) once initialization is complete.
func New() *Health {
	return &Health{}
}

func newCheck(name string, timeout time.Duration, fn CheckFunc) *check {
	// Healthy until the first observation says otherwise.
	return &check{name: name, timeout: timeout, fn: fn, healthy: true}
}

// AddLivenessCheck registers a check that decides whether the process is
// functioning at all, such as a goroutine count bound.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newCheck(name, timeout, fn))
}

// AddReadinessCheck registers a check that decides whether the service can
// accept traffic, such as database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newCheck(name, timeout, fn))
}

// Start launches one background goroutine per registered check, probing at
// the given interval. Register all checks before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	all := append(append([]*check(nil), h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, c := range all {
		go c.loop(ctx, interval)
	}
}

// Stop cancels all probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Graceful shutdown sets it to
// false so the orchestrator drains traffic before the listener closes.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the manual gate is open and every readiness check
// is passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, c := range h.snapshot(&h.readiness) {
		if ok, _ := c.state(); !ok {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(list *[]*check) []*check {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*check(nil), (*list)...)
}

// statusResponse is the probe endpoint payload.
type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves the liveness probe: 200 when every liveness check
// passes, 503 with per-check errors otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.snapshot(&h.liveness)))
}

// ReadyEndpoint serves the readiness probe: 200 when the service is marked
// ready and every readiness check passes, 503 with details otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	f := failures(h.snapshot(&h.readiness))
	if !h.ready.Load() {
		f["_readiness"] = "service is not ready"
	}
	writeStatus(w, f)
}

func failures(checks []*check) map[string]string {
	f := make(map[string]string)
	for _, c := range checks {
		ok, err := c.state()
		if ok {
			continue
		}
		if err != nil {
			f[c.name] = err.Error()
		} else {
			f[c.name] = "check is unhealthy"
		}
	}
	return f
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	resp := statusResponse{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
