package transfer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/simaogato/transfer-engine/internal/domain"
	"github.com/simaogato/transfer-engine/internal/telemetry"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often a conflicting attempt is re-run
type RetryPolicy struct {
	// MaxAttempts counts the first attempt, so 3 means at most two retries
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultRetryPolicy returns three attempts with a fixed 100ms pause between them
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       100 * time.Millisecond,
		Multiplier:  1,
		MaxDelay:    2 * time.Second,
	}
}

// Validate ensures the policy can drive a coordinator
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry delay cannot be negative, got %s", p.Delay)
	}
	if p.Multiplier != 0 && p.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be at least 1, got %g", p.Multiplier)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("retry max delay cannot be negative, got %s", p.MaxDelay)
	}
	return nil
}

// NewBackOff builds the delay schedule for one coordinator run
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Duration(math.MaxInt64)
	}

	initial := p.Delay
	if initial > maxDelay {
		initial = maxDelay
	}

	return &policyBackOff{
		exp: &backoff.ExponentialBackOff{
			InitialInterval:     initial,
			RandomizationFactor: 0,
			Multiplier:          multiplier,
			MaxInterval:         maxDelay,
		},
		jitter: p.Jitter,
	}
}

// Backoff returns the pause before retry number retry (1-based)
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}

	b := p.NewBackOff()
	b.Reset()

	var d time.Duration
	for i := 0; i < retry; i++ {
		d = b.NextBackOff()
	}
	return d
}

// policyBackOff draws a full-jitter pause in [0, d] from the exponential schedule when enabled
type policyBackOff struct {
	exp    *backoff.ExponentialBackOff
	jitter bool
}

func (b *policyBackOff) Reset() {
	b.exp.Reset()
}

func (b *policyBackOff) NextBackOff() time.Duration {
	d := b.exp.NextBackOff()
	if b.jitter && d > 0 {
		d = time.Duration(rand.Int64N(int64(d) + 1))
	}
	return d
}

// Coordinator re-runs an attempt while it fails with domain.ErrConflict.
// Any other outcome ends the run immediately.
type Coordinator struct {
	policy RetryPolicy
	logger *zap.Logger
	notify backoff.Notify
}

// NewCoordinator creates a Coordinator for a validated policy
func NewCoordinator(policy RetryPolicy, logger *zap.Logger) (*Coordinator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		policy: policy,
		logger: logger,
	}, nil
}

// Run invokes attempt until it succeeds, fails permanently, or conflicts
// MaxAttempts times. Exhaustion is reported as domain.ErrOverloaded.
// Cancelling ctx during a pause returns the context error.
func (c *Coordinator) Run(ctx context.Context, attempt func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tries := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tries++
		telemetry.TransferAttemptsTotal.Inc()

		err := attempt(ctx)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, domain.ErrConflict):
			telemetry.TransferConflictsTotal.Inc()
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(c.policy.NewBackOff()),
		backoff.WithMaxTries(uint(c.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			telemetry.WithTrace(ctx, c.logger).Debug("conflict detected, retrying",
				zap.Int("attempt", tries),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			if c.notify != nil {
				c.notify(err, delay)
			}
		}),
	)

	var permanent *backoff.PermanentError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &permanent):
		// the final try returns its error still wrapped
		return permanent.Unwrap()
	case errors.Is(err, domain.ErrConflict):
		telemetry.TransferOverloadedTotal.Inc()
		telemetry.WithTrace(ctx, c.logger).Warn("retry attempts exhausted",
			zap.Int("attempts", tries),
			zap.NamedError("last_conflict", err),
		)
		return domain.ErrOverloaded
	}
	return err
}
