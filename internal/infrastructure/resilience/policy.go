package resilience

import "time"

// Policy bounds the retry loop and the circuit breaker shared by the
// outbound adapters.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	BreakerEnabled      bool
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
	BreakerProbeCalls   uint32
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		BackoffFactor:  2.0,

		BreakerEnabled:      true,
		BreakerMinRequests:  10,
		BreakerFailureRatio: 0.5,
		BreakerOpenFor:      30 * time.Second,
		BreakerProbeCalls:   2,
	}
}

func (p Policy) normalize() Policy {
	out := p
	def := DefaultPolicy()

	if out.MaxAttempts <= 0 {
		out.MaxAttempts = def.MaxAttempts
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = def.InitialBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = def.MaxBackoff
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	if out.BackoffFactor < 1.0 {
		out.BackoffFactor = def.BackoffFactor
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenFor <= 0 {
		out.BreakerOpenFor = def.BreakerOpenFor
	}
	if out.BreakerProbeCalls == 0 {
		out.BreakerProbeCalls = def.BreakerProbeCalls
	}

	return out
}
