package service

import (
	"math/rand/v2"
	"time"

	"notifyhub/internal/delivery"
)

// RetryPolicy decides what happens to an outbox entry after a failed attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the +/- fraction applied to each delay.
	Jitter float64
}

func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		Jitter:      0.2,
	}
}

// Next reports whether the entry should be retried after its attempts-th failed attempt, and the delay.
func (p RetryPolicy) Next(attempts int, err error) (bool, time.Duration) {
	if delivery.IsPermanent(err) || attempts >= p.MaxAttempts {
		return false, 0
	}
	return true, p.Backoff(attempts)
}

// Backoff is base * 2^(attempt-1), capped at MaxDelay, with jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// BaseDelay<<shift is only taken while it stays within MaxDelay; past that it would overflow
	backoff := p.MaxDelay
	if shift := attempt - 1; shift < 63 && p.BaseDelay > 0 && p.BaseDelay <= p.MaxDelay>>shift {
		backoff = p.BaseDelay << shift
	}

	if p.Jitter > 0 {
		spread := float64(backoff) * p.Jitter
		backoff += time.Duration(spread * (2*rand.Float64() - 1))
	}
	if backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	return backoff
}
