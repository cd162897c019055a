// Package health provides liveness and readiness probes for the token
// gateway.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultProbeTimeout bounds a single readiness check.
const DefaultProbeTimeout = 5 * time.Second

// Check is a named readiness check.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to the Check interface.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckFunc creates a named check from a function.
func NewCheckFunc(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the check name.
func (f *CheckFunc) Name() string { return f.name }

// Check runs the check.
func (f *CheckFunc) Check(ctx context.Context) error { return f.fn(ctx) }

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Status is the aggregate probe response.
type Status struct {
	Status    string                 `json:"status"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker aggregates readiness checks and serves the probe endpoints.
type Checker struct {
	probeTimeout time.Duration
	startTime    time.Time

	mu       sync.RWMutex
	checks   []Check
	draining bool
}

// CheckerOption is a functional option for the checker.
type CheckerOption func(*Checker)

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) {
		if timeout > 0 {
			c.probeTimeout = timeout
		}
	}
}

// NewChecker creates a checker with no registered checks.
func NewChecker(opts ...CheckerOption) *Checker {
	c := &Checker{
		probeTimeout: DefaultProbeTimeout,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a readiness check.
func (c *Checker) Register(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// SetDraining marks the service as shutting down. A draining service fails
// readiness so load balancers stop sending traffic, while liveness stays
// green to avoid a restart mid-drain.
func (c *Checker) SetDraining(draining bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draining = draining
}

// Live is the liveness probe handler.
func (c *Checker) Live(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, Status{
		Status:    "ok",
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	})
}

// Ready is the readiness probe handler. It runs every registered check and
// returns 503 if any fails or the service is draining.
func (c *Checker) Ready(ctx *gin.Context) {
	c.mu.RLock()
	draining := c.draining
	checks := make([]Check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	status := Status{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	code := http.StatusOK

	if draining {
		status.Status = "draining"
		code = http.StatusServiceUnavailable
		ctx.JSON(code, status)
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), c.probeTimeout)
	defer cancel()

	for _, check := range checks {
		if err := check.Check(checkCtx); err != nil {
			status.Checks[check.Name()] = CheckResult{Status: "unhealthy", Error: err.Error()}
			status.Status = "not ready"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[check.Name()] = CheckResult{Status: "healthy"}
	}

	ctx.JSON(code, status)
}
