// Package reconnect schedules reconnection attempts with capped
// exponential backoff and drives a small connection state machine.
package reconnect

import "time"

// Policy maps a 1-based attempt number to the delay before that attempt.
// Delay reports false once MaxAttempts is exceeded.
type Policy struct {
	Name        string
	MaxAttempts int
	delay       func(attempt int) time.Duration
}

func (p Policy) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > p.MaxAttempts {
		return 0, false
	}
	return p.delay(attempt), true
}

// Delays lists the whole schedule, mainly for status output.
func (p Policy) Delays() []time.Duration {
	out := make([]time.Duration, 0, p.MaxAttempts)
	for i := 1; i <= p.MaxAttempts; i++ {
		d, _ := p.Delay(i)
		out = append(out, d)
	}
	return out
}

// LiveSubscriptionPolicy: min(1s * 2^attempt, 10s), five attempts.
var LiveSubscriptionPolicy = Policy{
	Name:        "live_subscription",
	MaxAttempts: 5,
	delay: func(attempt int) time.Duration {
		return min(time.Second<<attempt, 10*time.Second)
	},
}

// DrainRetryPolicy: 2s * 2^(attempt-1), five attempts.
var DrainRetryPolicy = Policy{
	Name:        "drain_retry",
	MaxAttempts: 5,
	delay: func(attempt int) time.Duration {
		return 2 * time.Second << (attempt - 1)
	},
}
