// Package health runs connectivity checks against the stores a context
// graph is read from and written to.
package health

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the outcome of a check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Result is the reported state of one check, or of several combined.
type Result struct {
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Duration time.Duration  `json:"duration_ns,omitempty"`
}

// IsHealthy reports whether the check passed.
func (r Result) IsHealthy() bool { return r.Status == StatusHealthy }

// IsDegraded reports whether an optional dependency failed.
func (r Result) IsDegraded() bool { return r.Status == StatusDegraded }

// IsUnhealthy reports whether a required dependency failed or no probe was set.
func (r Result) IsUnhealthy() bool { return r.Status == StatusUnhealthy }

// Check probes one dependency. A failing probe makes the check unhealthy,
// or degraded when the dependency is Optional.
type Check struct {
	Name     string
	Optional bool
	Probe    func(ctx context.Context) error
}

// Run executes the checks concurrently, each bounded by timeout when it is
// positive. Results are returned in the order of checks. A failing probe
// never cancels the others.
func Run(ctx context.Context, timeout time.Duration, checks ...Check) []Result {
	results := make([]Result, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = run(ctx, timeout, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func run(ctx context.Context, timeout time.Duration, c Check) Result {
	if c.Probe == nil {
		return Result{Name: c.Name, Status: StatusUnhealthy, Message: "no probe configured"}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.Probe(ctx)
	res := Result{Name: c.Name, Duration: time.Since(start)}
	switch {
	case err == nil:
		res.Status = StatusHealthy
		res.Message = "ok"
	case c.Optional:
		res.Status = StatusDegraded
		res.Message = err.Error()
	default:
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	return res
}

// Combine aggregates results: unhealthy if any is unhealthy, otherwise
// degraded if any is degraded, otherwise healthy.
func Combine(results ...Result) Result {
	if len(results) == 0 {
		return Result{Name: "all", Status: StatusHealthy, Message: "no checks provided"}
	}

	var unhealthy, degraded []string
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, r.Name)
		case StatusDegraded:
			degraded = append(degraded, r.Name)
		}
	}

	switch {
	case len(unhealthy) > 0:
		return Result{
			Name:    "all",
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%d check(s) failed", len(unhealthy)),
			Details: map[string]any{
				"total":         len(results),
				"unhealthy":     len(unhealthy),
				"degraded":      len(degraded),
				"failed_checks": unhealthy,
			},
		}
	case len(degraded) > 0:
		return Result{
			Name:    "all",
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d check(s) degraded", len(degraded)),
			Details: map[string]any{
				"total":           len(results),
				"degraded":        len(degraded),
				"degraded_checks": degraded,
			},
		}
	default:
		return Result{
			Name:    "all",
			Status:  StatusHealthy,
			Message: fmt.Sprintf("all %d check(s) passed", len(results)),
		}
	}
}
