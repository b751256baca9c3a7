package llm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// retrying re-sends failed calls with capped exponential backoff. Auth and
// context errors fail at once; an invalid response gets a single retry.
type retrying struct {
	next Provider
	cfg  RetryConfig
}

// WithRetry wraps p so that transient failures are retried per cfg.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	return &retrying{next: p, cfg: cfg}
}

func (r *retrying) ModelID() string { return r.next.ModelID() }

func (r *retrying) Generate(ctx context.Context, req Request) (*Response, error) {
	invalidSeen := false
	for attempt := 1; ; attempt++ {
		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt >= r.cfg.MaxAttempts || !transient(err) {
			return nil, err
		}
		var inv *ErrInvalidResponse
		if errors.As(err, &inv) {
			if invalidSeen {
				return nil, err
			}
			invalidSeen = true
		}

		wait := r.cfg.delay(attempt-1, err)
		slog.Debug("LLM call failed, retrying", "model", r.next.ModelID(),
			"attempt", attempt, "wait", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// transient reports whether err may go away on its own.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var auth *ErrAuth
	return !errors.As(err, &auth)
}

// delay is the wait before retry n (0-based). A rate limit's Retry-After wins;
// otherwise the wait grows by Multiplier up to MaxWait, with 20% jitter.
func (c RetryConfig) delay(n int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	d := time.Duration(math.Min(
		float64(c.InitialWait)*math.Pow(c.Multiplier, float64(n)),
		float64(c.MaxWait),
	))
	if d <= 0 {
		return 0
	}
	spread := int64(d) / 5
	return d - time.Duration(spread) + time.Duration(rand.Int64N(2*spread+1))
}
