package main

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hamzazf/shieldwallet/internal/wallet"
)

// HealthStatus is the health of one component or of the service.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

func (s HealthStatus) worse(than HealthStatus) bool {
	rank := map[HealthStatus]int{Healthy: 0, Degraded: 1, Unhealthy: 2}
	return rank[s] > rank[than]
}

// healthCheckTimeout bounds one component check.
const healthCheckTimeout = 5 * time.Second

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// SystemHealth is the aggregate of every check.
type SystemHealth struct {
	OverallStatus HealthStatus      `json:"overall_status"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    []ComponentHealth `json:"components"`
	Uptime        time.Duration     `json:"uptime"`
	Version       string            `json:"version"`
}

// Checker probes a component. Degraded components return a *DegradedError.
type Checker func(ctx context.Context) error

// DegradedError marks a component that works with reduced service.
type DegradedError struct{ Reason string }

func (e *DegradedError) Error() string { return e.Reason }

// WalletChecker reports a wallet whose last operation failed as degraded.
func WalletChecker(w *wallet.Wallet) Checker {
	return func(context.Context) error {
		state, err := w.State()
		if state == wallet.Failed && err != nil {
			return &DegradedError{Reason: "last operation failed: " + err.Error()}
		}
		return nil
	}
}

// HealthChecker runs the registered checks concurrently.
type HealthChecker struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	started  time.Time
	version  string
}

// NewHealthChecker returns a checker with no component.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{checkers: make(map[string]Checker), started: time.Now(), version: version}
}

// RegisterComponent adds or replaces the check of a component.
func (hc *HealthChecker) RegisterComponent(name string, checker Checker) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkers[name] = checker
}

func probe(ctx context.Context, name string, check Checker) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	start := time.Now()
	err := check(ctx)
	out := ComponentHealth{Name: name, Status: Healthy, Message: "OK", CheckedAt: time.Now(), Latency: time.Since(start)}
	var degraded *DegradedError
	switch {
	case err == nil:
	case errors.As(err, &degraded):
		out.Status, out.Message = Degraded, degraded.Reason
	default:
		out.Status, out.Message = Unhealthy, err.Error()
	}
	return out
}

// CheckHealth runs every check and returns the aggregate, components sorted
// by name.
func (hc *HealthChecker) CheckHealth(ctx context.Context) *SystemHealth {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checkers))
	for name := range hc.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	components := make([]ComponentHealth, len(names))
	var g errgroup.Group
	for i, name := range names {
		check := hc.checkers[name]
		g.Go(func() error {
			components[i] = probe(ctx, name, check)
			return nil
		})
	}
	hc.mu.RUnlock()
	_ = g.Wait()

	overall := Healthy
	for _, c := range components {
		if c.Status.worse(overall) {
			overall = c.Status
		}
	}
	return &SystemHealth{
		OverallStatus: overall,
		Timestamp:     time.Now(),
		Components:    components,
		Uptime:        time.Since(hc.started),
		Version:       hc.version,
	}
}

// HealthCheckResponse is the /health body.
type HealthCheckResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Data    *SystemHealth `json:"data,omitempty"`
}

// CreateHealthResponse wraps a health report.
func CreateHealthResponse(health *SystemHealth) *HealthCheckResponse {
	resp := &HealthCheckResponse{Status: "success", Message: "service is healthy", Data: health}
	switch health.OverallStatus {
	case Unhealthy:
		resp.Status, resp.Message = "error", "service is unhealthy"
	case Degraded:
		resp.Status, resp.Message = "warning", "service is degraded"
	}
	return resp
}
