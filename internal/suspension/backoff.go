package suspension

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy is the exponential retry schedule of the status API. It is
// unrelated to the fixed-delay policy of source queries.
type BackoffPolicy struct {
	// MaxRetries counts retries after the first call.
	MaxRetries int           `yaml:"max_retries"`
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	// Jitter is the upper bound of the random extra delay as a fraction of
	// the exponential delay.
	Jitter float64 `yaml:"jitter"`
}

// DefaultBackoffPolicy is 3 retries starting at 2s, capped at 30s, with up
// to 15% jitter.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxRetries: 3,
		Initial:    2 * time.Second,
		Max:        30 * time.Second,
		Jitter:     0.15,
	}
}

func (p BackoffPolicy) normalized() BackoffPolicy {
	d := DefaultBackoffPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Initial <= 0 {
		p.Initial = d.Initial
	}
	if p.Max <= 0 {
		p.Max = d.Max
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// schedule returns the doubling delays for one call, stopping after
// MaxRetries. Jitter is added separately because it only ever lengthens the
// wait.
func (p BackoffPolicy) schedule() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Initial
	exp.MaxInterval = p.Max
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(p.MaxRetries))
}

// jittered lengthens d by up to Jitter of itself, never beyond Max. frac is
// a random value in [0, 1).
func (p BackoffPolicy) jittered(d time.Duration, frac float64) time.Duration {
	return min(d+time.Duration(float64(d)*p.Jitter*frac), p.Max)
}

func randomFraction() float64 {
	return rand.Float64()
}
