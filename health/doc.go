// Package health probes the dependencies of a context graph deployment.
//
// A Check wraps a probe function such as opening the snapshot database or
// pinging Redis. Run executes checks concurrently and Combine folds their
// results into one status:
//
//	results := health.Run(ctx, 5*time.Second,
//	    health.Check{Name: "snapshots", Probe: openSnapshots},
//	    health.Check{Name: "redis", Optional: true, Probe: pingRedis},
//	)
//	if health.Combine(results...).IsUnhealthy() {
//	    return errors.New("required dependency unavailable")
//	}
//
// A failing Optional check reports degraded rather than unhealthy.
package health
