// Package retry provides exponential backoff retry logic for transient failures.
//
// The orchestrator uses it to connect each zone a bounded number of times
// before declaring the zone failed:
//
//	cfg := retry.ZoneConnect(3)
//	cfg.Retryable = func(err error) bool { return !errors.IsFatal(err) }
//	err := retry.Do(ctx, cfg, func() error {
//	    return t.Connect(ctx, zone)
//	})
//
// Errors wrapped with NonRetryable, or rejected by Config.Retryable, stop
// the loop immediately and are returned unwrapped. A single-attempt config
// also returns the last error unwrapped.
package retry
