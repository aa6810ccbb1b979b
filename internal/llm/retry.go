package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"finsight/internal/logging"
)

// RetryOptions configures the executor for one logical upstream call.
type RetryOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64

	MaxRetries   int           // additional attempts after the first (default 5)
	BaseDelay    time.Duration // default 1s
	MaxDelay     time.Duration // global backoff cap, default 60s
	JitterFactor float64       // default 0.1
	Timeout      time.Duration // per-attempt timeout, default 120s
}

// DefaultRetryOptions returns sensible defaults.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxTokens:    4096,
		Temperature:  0.3,
		MaxRetries:   5,
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		JitterFactor: 0.1,
		Timeout:      120 * time.Second,
	}
}

// AttemptRecord is one entry in the attempt history, appended per failed or
// successful attempt and read-only afterwards.
type AttemptRecord struct {
	Attempt   int
	Kind      ErrorKind
	ElapsedMs int64
	Timestamp time.Time
}

// Executor performs one logical completion call with per-attempt timeout and
// exponential-backoff-with-jitter retries, consulting Classify each attempt.
type Executor struct {
	client CompletionClient
	opts   RetryOptions
	jitter func() float64 // [0,1) jitter source, replaceable in tests
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor around an injected client. Zero-valued
// retry options are filled from DefaultRetryOptions.
func NewExecutor(client CompletionClient, opts RetryOptions) *Executor {
	def := DefaultRetryOptions()
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = def.MaxDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	return &Executor{
		client: client,
		opts:   opts,
		jitter: rand.Float64,
		sleep:  sleepCtx,
	}
}

type callOutcome struct {
	res *CompletionResult
	err error
}

// Execute runs the upstream call, retrying per the classification policy.
// On success it returns the completion and the attempt history; on failure
// the returned error is an *UpstreamError carrying the final classification.
func (e *Executor) Execute(ctx context.Context, prompt Prompt) (*CompletionResult, []AttemptRecord, error) {
	history := make([]AttemptRecord, 0, e.opts.MaxRetries+1)
	var lastErr error
	var lastInfo ErrorInfo

	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		start := time.Now()
		res, err := e.callOnce(ctx, prompt)
		elapsed := time.Since(start)

		if err == nil {
			history = append(history, AttemptRecord{
				Attempt:   attempt,
				ElapsedMs: elapsed.Milliseconds(),
				Timestamp: time.Now(),
			})
			logging.APIDebug("completion succeeded on attempt %d in %v", attempt+1, elapsed)
			return res, history, nil
		}

		info := Classify(err)
		history = append(history, AttemptRecord{
			Attempt:   attempt,
			Kind:      info.Kind,
			ElapsedMs: elapsed.Milliseconds(),
			Timestamp: time.Now(),
		})
		lastErr = err
		lastInfo = info

		logging.APIWarn("attempt %d/%d failed: kind=%s retryable=%v: %v",
			attempt+1, e.opts.MaxRetries+1, info.Kind, info.Retryable, err)

		if !info.Retryable || attempt == e.opts.MaxRetries {
			break
		}

		delay := e.backoffDelay(attempt, info)
		logging.APIDebug("backing off %v before attempt %d", delay, attempt+2)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			lastErr = sleepErr
			lastInfo = Classify(sleepErr)
			break
		}
	}

	return nil, history, &UpstreamError{Info: lastInfo, Attempts: history, Err: lastErr}
}

// callOnce races one upstream call against the per-attempt timeout. The call
// runs in its own goroutine writing to a buffered channel so that a late
// response after the timeout is dropped rather than leaking; the attempt
// context cancel also aborts the in-flight HTTP request.
func (e *Executor) callOnce(ctx context.Context, prompt Prompt) (*CompletionResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	ch := make(chan callOutcome, 1)
	go func() {
		res, err := e.client.Complete(attemptCtx, prompt, CallOptions{
			Model:       e.opts.Model,
			MaxTokens:   e.opts.MaxTokens,
			Temperature: e.opts.Temperature,
		})
		ch <- callOutcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		if out.res == nil || out.res.RawText == "" {
			return nil, fmt.Errorf("empty completion returned")
		}
		return out.res, nil
	case <-attemptCtx.Done():
		return nil, attemptCtx.Err()
	}
}

// backoffDelay computes the wait before the next attempt.
// base*2^attempt plus proportional jitter, amplified per error class
// (rate limits escalate at 3^attempt, server errors at 2.5^attempt),
// floored at an explicit server retry-after hint, and clamped to MaxDelay.
func (e *Executor) backoffDelay(attempt int, info ErrorInfo) time.Duration {
	base := float64(e.opts.BaseDelay)
	delay := base * math.Pow(2, float64(attempt))
	delay += delay * e.opts.JitterFactor * e.jitter()

	switch info.Kind {
	case KindRateLimit:
		delay = math.Max(delay, base*math.Pow(3, float64(attempt)))
	case KindServerUnavailable:
		delay = math.Max(delay, base*math.Pow(2.5, float64(attempt)))
	}

	if info.RetryAfterHint && info.RetryAfter > 0 {
		delay = math.Max(delay, float64(info.RetryAfter))
	}

	if max := float64(e.opts.MaxDelay); delay > max {
		delay = max
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
