package publish

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/blacktop/xpublish/internal/logutil"
)

// RetryConfig bounds how often a transport failure is retried.
type RetryConfig struct {
	// Attempts is the total number of tries. Values below 2 disable retry.
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig makes a single attempt.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:        1,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

type retryingPublisher struct {
	delegate Publisher
	cfg      RetryConfig
}

// WithRetry wraps p so transport errors are retried with exponential
// backoff. Configuration and validation errors fail immediately.
func WithRetry(p Publisher, cfg RetryConfig) Publisher {
	if cfg.Attempts < 2 {
		return p
	}
	return &retryingPublisher{delegate: p, cfg: cfg}
}

func (r *retryingPublisher) Platform() Platform { return r.delegate.Platform() }

func (r *retryingPublisher) Publish(ctx context.Context, payload PostPayload) (Result, error) {
	b := backoff.NewExponentialBackOff()
	if r.cfg.InitialInterval > 0 {
		b.InitialInterval = r.cfg.InitialInterval
	}
	if r.cfg.MaxInterval > 0 {
		b.MaxInterval = r.cfg.MaxInterval
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.Attempts-1)), ctx)

	var (
		res     Result
		attempt int
	)
	op := func() error {
		attempt++
		out, err := r.delegate.Publish(ctx, payload)
		if err != nil {
			if KindOf(err) != TransportError {
				return backoff.Permanent(err)
			}
			logutil.Warnf("%s: attempt %d/%d failed: %v", r.Platform(), attempt, r.cfg.Attempts, err)
			return err
		}
		res = out
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return Result{}, err
	}
	return res, nil
}
