package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func fail(context.Context) error { return errors.New("connection refused") }

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		check   Check
		status  Status
		message string
	}{
		{"passing", Check{Name: "a", Probe: ok}, StatusHealthy, "ok"},
		{"failing", Check{Name: "a", Probe: fail}, StatusUnhealthy, "connection refused"},
		{"failing optional", Check{Name: "a", Optional: true, Probe: fail}, StatusDegraded, "connection refused"},
		{"no probe", Check{Name: "a"}, StatusUnhealthy, "no probe configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Run(context.Background(), 0, tt.check)
			require.Len(t, res, 1)
			assert.Equal(t, "a", res[0].Name)
			assert.Equal(t, tt.status, res[0].Status)
			assert.Equal(t, tt.message, res[0].Message)
		})
	}
}

func TestRunKeepsOrderAndRunsConcurrently(t *testing.T) {
	var running atomic.Int32
	release := make(chan struct{})
	probe := func(ctx context.Context) error {
		if running.Add(1) == 3 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	res := Run(context.Background(), 2*time.Second,
		Check{Name: "first", Probe: probe},
		Check{Name: "second", Probe: probe},
		Check{Name: "third", Probe: probe},
	)
	require.Len(t, res, 3)
	for i, name := range []string{"first", "second", "third"} {
		assert.Equal(t, name, res[i].Name)
		assert.True(t, res[i].IsHealthy(), res[i].Message)
	}
}

func TestRunFailureDoesNotCancelOthers(t *testing.T) {
	failed := make(chan struct{})
	res := Run(context.Background(), 2*time.Second,
		Check{Name: "broken", Probe: func(context.Context) error {
			defer close(failed)
			return errors.New("connection refused")
		}},
		Check{Name: "slow", Probe: func(ctx context.Context) error {
			<-failed
			time.Sleep(5 * time.Millisecond)
			return ctx.Err()
		}},
	)
	require.Len(t, res, 2)
	assert.True(t, res[0].IsUnhealthy())
	assert.True(t, res[1].IsHealthy(), res[1].Message)
	assert.False(t, res[1].IsDegraded())
}

func TestRunTimeout(t *testing.T) {
	res := Run(context.Background(), 10*time.Millisecond, Check{
		Name: "slow",
		Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	assert.True(t, res[0].IsUnhealthy())
	assert.Contains(t, res[0].Message, "deadline exceeded")
}

func TestCombine(t *testing.T) {
	healthy := Result{Name: "h", Status: StatusHealthy}
	degraded := Result{Name: "d", Status: StatusDegraded}
	unhealthy := Result{Name: "u", Status: StatusUnhealthy}

	assert.True(t, Combine().IsHealthy())
	assert.True(t, Combine(healthy, healthy).IsHealthy())
	assert.Equal(t, "all 2 check(s) passed", Combine(healthy, healthy).Message)

	got := Combine(healthy, degraded)
	assert.True(t, got.IsDegraded())
	assert.Equal(t, []string{"d"}, got.Details["degraded_checks"])

	got = Combine(degraded, unhealthy, healthy)
	assert.True(t, got.IsUnhealthy())
	assert.Equal(t, "1 check(s) failed", got.Message)
	assert.Equal(t, []string{"u"}, got.Details["failed_checks"])
}
