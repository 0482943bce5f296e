package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReliableOptions configures NewReliableProvider.
type ReliableOptions struct {
	// Timeout bounds each individual attempt. Zero disables the per-call timeout.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts for retryable failures.
	MaxAttempts int
	// Backoff returns the delay before the given retry (1-based). Nil uses
	// the default schedule.
	Backoff func(attempt int) time.Duration
	Logger  *zap.Logger
}

// ReliableProvider wraps a Provider with a per-call timeout and bounded
// retries with backoff on timeouts, rate limits, and server errors.
type ReliableProvider struct {
	provider Provider
	opts     ReliableOptions
	logger   *zap.Logger
}

// NewReliableProvider wraps provider. Failures that survive the retries come
// back wrapping ErrOracleTimeout or ErrOracleUnavailable.
func NewReliableProvider(provider Provider, opts ReliableOptions) *ReliableProvider {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReliableProvider{provider: provider, opts: opts, logger: logger}
}

func (r *ReliableProvider) Name() string {
	return r.provider.Name()
}

func (r *ReliableProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var (
		lastErr   error
		lastClass failureClass
	)
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		start := time.Now()
		resp, err := r.attempt(ctx, req)
		if err == nil {
			r.logger.Debug("completion finished",
				zap.String("provider", r.provider.Name()),
				zap.String("operation", req.Operation),
				zap.Int("attempt", attempt),
				zap.Duration("duration", time.Since(start)),
				zap.Int("input_tokens", resp.InputTokens),
				zap.Int("output_tokens", resp.OutputTokens),
				zap.Float64("cost_usd", EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens)),
			)
			return resp, nil
		}

		// The caller gave up; that is not the provider's fault.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		lastClass = classifyError(err)
		r.logger.Warn("completion failed",
			zap.String("provider", r.provider.Name()),
			zap.String("operation", req.Operation),
			zap.Int("attempt", attempt),
			zap.String("class", lastClass.String()),
			zap.Error(err),
		)
		if !lastClass.retryable() || attempt == r.opts.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.opts.Backoff(attempt)):
		}
	}

	if lastClass == failureTimeout {
		return nil, fmt.Errorf("%w: %s: %v", ErrOracleTimeout, req.Operation, lastErr)
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrOracleUnavailable, req.Operation, lastErr)
}

func (r *ReliableProvider) attempt(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if r.opts.Timeout <= 0 {
		return r.provider.Complete(ctx, req)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	resp, err := r.provider.Complete(callCtx, req)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("attempt exceeded %s: %w", r.opts.Timeout, context.DeadlineExceeded)
	}
	return resp, err
}

// DefaultBackoff waits 1s, 2s, then 4s between attempts.
func DefaultBackoff(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 1 * time.Second
	case 2:
		return 2 * time.Second
	default:
		return 4 * time.Second
	}
}
