// Package fetcher performs single-origin HTTP GETs with bounded
// concurrency, retry, and 429-aware backoff.
package fetcher

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// FailureKind enumerates the typed ways a fetch can fail terminally.
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureRateLimited   FailureKind = "rate_limited"
	FailureTransportError FailureKind = "transport_error"
	FailureGiveUp        FailureKind = "giveup"
)

// Error is the typed failure returned by Fetch instead of a raw error,
// per the redesign away from exceptions-as-control-flow.
type Error struct {
	Kind FailureKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.URL + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.URL
}

func (e *Error) Unwrap() error { return e.Err }

// Result is a successful fetch outcome.
type Result struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Elapsed    time.Duration
}

const (
	backoffBase       = 500 * time.Millisecond
	backoffFactor     = 2.0
	jitterFraction    = 0.2
	rateLimitHardCap  = 6
	maxBodyBytes      = 10 * 1024 * 1024
)

// Fetcher is a shared, process-wide HTTP client for one run: one
// *http.Client, a global connection limit equal to MaxConcurrency, and a
// per-request deadline of Timeout.
type Fetcher struct {
	client         *http.Client
	userAgent      string
	timeout        time.Duration
	retryAttempts  int
	sem            chan struct{}
	logger         *slog.Logger
}

// Options configures a new Fetcher.
type Options struct {
	UserAgent      string
	Timeout        time.Duration
	RetryAttempts  int
	MaxConcurrency int
	Logger         *slog.Logger
}

// New builds a Fetcher with its own semaphore and HTTP client, never
// shared across runs (per the concurrency model's shared-resource rule).
func New(opts Options) *Fetcher {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxConnsPerHost:     opts.MaxConcurrency,
				MaxIdleConnsPerHost: opts.MaxConcurrency,
			},
		},
		userAgent:     opts.UserAgent,
		timeout:       opts.Timeout,
		retryAttempts: opts.RetryAttempts,
		sem:           make(chan struct{}, opts.MaxConcurrency),
		logger:        logger,
	}
}

// Fetch acquires a semaphore slot (the only blocking wait beyond the
// caller's own scheduling) and performs the GET with retry/backoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, *Error) {
	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return nil, &Error{Kind: FailureGiveUp, URL: url, Err: ctx.Err()}
	}

	rateLimitRetries := 0
	timeoutRetried := false
	var lastErr error

	for attempt := 0; attempt <= f.retryAttempts; attempt++ {
		res, status, _, err := f.attempt(ctx, url)

		if err == nil && status == http.StatusTooManyRequests {
			if rateLimitRetries >= rateLimitHardCap {
				return nil, &Error{Kind: FailureRateLimited, URL: url}
			}
			wait := retryAfterOrBackoff(res.Headers, rateLimitRetries)
			f.logger.Warn("rate limited, backing off", "url", url, "wait", wait, "attempt", rateLimitRetries)
			if !sleep(ctx, wait) {
				return nil, &Error{Kind: FailureGiveUp, URL: url, Err: ctx.Err()}
			}
			rateLimitRetries++
			attempt-- // 429 backoff does not count against retryAttempts
			continue
		}

		if err == nil && status < 500 {
			return res, nil
		}

		if err != nil {
			lastErr = err
			if isTimeout(err) {
				// Timeout: one retry only, regardless of retryAttempts.
				if !timeoutRetried {
					timeoutRetried = true
					attempt-- // the timeout retry does not count against retryAttempts
					continue
				}
				return nil, &Error{Kind: FailureTimeout, URL: url, Err: err}
			}
			if status != 0 && status < 500 {
				// Non-retryable terminal failure (e.g. unreadable body
				// on a non-5xx response).
				return nil, &Error{Kind: FailureGiveUp, URL: url, Err: err}
			}
		}

		// Transport error or 5xx: exponential backoff, then retry.
		if attempt < f.retryAttempts {
			wait := backoffWithJitter(attempt)
			f.logger.Debug("transport/5xx error, retrying", "url", url, "status", status, "attempt", attempt, "wait", wait)
			if !sleep(ctx, wait) {
				return nil, &Error{Kind: FailureGiveUp, URL: url, Err: ctx.Err()}
			}
			continue
		}
		return nil, &Error{Kind: FailureTransportError, URL: url, Err: err}
	}

	return nil, &Error{Kind: FailureGiveUp, URL: url, Err: lastErr}
}

func (f *Fetcher) attempt(ctx context.Context, url string) (*Result, int, time.Duration, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, 0, elapsed, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, elapsed, err
	}

	return &Result{
		URL:        url,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Elapsed:    elapsed,
	}, resp.StatusCode, elapsed, nil
}

func backoffWithJitter(attempt int) time.Duration {
	base := float64(backoffBase) * pow(backoffFactor, float64(attempt))
	jitter := base * jitterFraction * (2*rand.Float64() - 1)
	return time.Duration(base + jitter)
}

func retryAfterOrBackoff(headers http.Header, attempt int) time.Duration {
	if headers != nil {
		if ra := headers.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				retryAfter := time.Duration(secs) * time.Second
				expBackoff := time.Duration(float64(backoffBase) * pow(2, float64(attempt)))
				if retryAfter > expBackoff {
					return retryAfter
				}
				return expBackoff
			}
		}
	}
	return time.Duration(float64(backoffBase) * pow(2, float64(attempt)))
}

func pow(base float64, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
