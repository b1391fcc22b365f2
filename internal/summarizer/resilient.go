package summarizer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/Emberfield/autodoc/internal/logging"
)

// Options configures Resilient.
type Options struct {
	// Timeout bounds each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
	// RPS limits calls per second across goroutines. Zero means unlimited.
	RPS float64
	// RetryDelay is the pause before the single retry.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Resilient wraps a Summarizer with a timeout, one retry on transient
// errors and a shared rate limiter. It is safe for concurrent use.
type Resilient struct {
	next       Summarizer
	timeout    time.Duration
	retryDelay time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewResilient wraps next.
func NewResilient(next Summarizer, opts Options) *Resilient {
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	return &Resilient{
		next:       next,
		timeout:    opts.Timeout,
		retryDelay: opts.RetryDelay,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logging.OrDiscard(opts.Logger),
	}
}

// Summarize implements Summarizer.
func (r *Resilient) Summarize(ctx context.Context, prompt string) (string, error) {
	out, err := r.attempt(ctx, prompt)
	if err == nil || !IsTransient(err) || ctx.Err() != nil {
		return out, err
	}

	r.logger.Debug("transient summarizer error, retrying once", "error", err)
	if r.retryDelay > 0 {
		t := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return r.attempt(ctx, prompt)
}

func (r *Resilient) attempt(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.next.Summarize(ctx, prompt)
}

// IsTransient reports whether err is worth one retry: a timeout, a rate
// limit, or a server-side failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
