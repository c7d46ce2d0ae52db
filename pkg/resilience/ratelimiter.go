package resilience

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/david1005910/Bio2/pkg/fn"
)

var ErrRateLimited = errors.New("rate limited")

// Limiter is a token-bucket rate limiter backed by golang.org/x/time/rate.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter creates a limiter allowing perSecond events with the given burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether a call may proceed now.
func (l *Limiter) Allow() bool {
	return l.l.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.l.Wait(ctx)
}

// Call runs f if a token is available, otherwise returns ErrRateLimited.
func (l *Limiter) Call(ctx context.Context, f func(context.Context) error) error {
	if !l.Allow() {
		return ErrRateLimited
	}
	return f(ctx)
}

// CallWait waits for a token, then runs f.
func (l *Limiter) CallWait(ctx context.Context, f func(context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return f(ctx)
}

// LimiterStage wraps a stage non-blockingly; limited calls fail fast.
func LimiterStage[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if !l.Allow() {
			return fn.Err[Out](ErrRateLimited)
		}
		return stage(ctx, in)
	}
}

// LimiterStageWait wraps a stage, waiting for a token before running it.
func LimiterStageWait[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if err := l.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}
