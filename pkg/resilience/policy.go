package resilience

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Platform/pkg/errors"
)

// Policy combines retry, a circuit breaker and a per-attempt timeout for
// one downstream. A zero Policy just calls through.
type Policy struct {
	Name    string
	Breaker *CircuitBreaker
	Retry   RetryConfig
	Timeout time.Duration
}

// Do runs fn under the policy. Each attempt gets its own timeout and is
// recorded by the breaker.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	retry := p.Retry
	if retry.Retryable == nil {
		retry.Retryable = func(err error) bool { return Transient(ctx, err) }
	}
	return Retry(ctx, p.Name, retry, func() error {
		attempt := func() error {
			return WithTimeout(ctx, p.Timeout, p.Name, fn)
		}
		if p.Breaker == nil {
			return attempt()
		}
		return p.Breaker.Execute(attempt)
	})
}

// Transient reports whether err is a failure of the downstream rather than
// of the request: caller errors, protocol violations, open breakers and an
// ended ctx are not retried.
func Transient(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, ErrCircuitOpen),
		errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrConfiguration),
		errors.Is(err, apperrors.ErrFieldNotFound),
		errors.Is(err, apperrors.ErrProtocolMismatch),
		errors.Is(err, apperrors.ErrOverflow),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// BreakerFailure counts only downstream failures against a breaker.
func BreakerFailure(err error) bool {
	return Transient(context.Background(), err)
}
