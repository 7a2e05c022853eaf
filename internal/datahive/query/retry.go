package query

import "time"

// RetryPolicy is the fixed-delay policy for source lookups. The delay never
// grows between attempts.
type RetryPolicy struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	Delay          time.Duration `yaml:"delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// DefaultRetryPolicy returns 3 attempts, 1s apart, 90s each.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Delay:          time.Second,
		AttemptTimeout: 90 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = d.Delay
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	return p
}
