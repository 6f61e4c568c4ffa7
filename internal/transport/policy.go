package transport

import "time"

// ReconnectPolicy controls the backoff schedule used to re-establish a
// dropped room subscription. Values are fixed after construction.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultPolicy is the schedule the backend is provisioned for: 1s
// doubling up to 30s, ten attempts before giving up.
var DefaultPolicy = ReconnectPolicy{
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	MaxAttempts:  10,
}

// Delay returns the wait before retry number attempt (zero-based),
// doubling per attempt and capped at MaxDelay.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
