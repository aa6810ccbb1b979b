package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finsight/internal/llm"
	"finsight/internal/logging"
	"finsight/internal/scheduler"
	"finsight/internal/usage"
)

// Executor runs one reliable upstream completion call.
type Executor interface {
	Execute(ctx context.Context, prompt llm.Prompt) (*llm.CompletionResult, []llm.AttemptRecord, error)
}

// UsageRecorder receives accounting events. Recording is best-effort.
type UsageRecorder interface {
	Record(usage.Event)
}

// UnexpectedError wraps an uncategorized failure with a correlation id the
// caller can quote when reporting the problem.
type UnexpectedError struct {
	CorrelationID string
	Err           error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error (ref %s): %v", e.CorrelationID, e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// Orchestrator is the public entry point for report generation: it validates
// input, requests admission, runs the upstream call, and assembles the final
// result, degrading to a local report when the upstream is unavailable.
type Orchestrator struct {
	sched    *scheduler.Scheduler
	exec     Executor
	recorder UsageRecorder
	provider string
	model    string
}

// NewOrchestrator wires the orchestrator. recorder may be nil to disable
// usage accounting.
func NewOrchestrator(sched *scheduler.Scheduler, exec Executor, recorder UsageRecorder, provider, model string) *Orchestrator {
	return &Orchestrator{
		sched:    sched,
		exec:     exec,
		recorder: recorder,
		provider: provider,
		model:    model,
	}
}

// QueueStats exposes the scheduler's counters.
func (o *Orchestrator) QueueStats() scheduler.Stats {
	return o.sched.Stats()
}

// genOutcome carries the task's result back to the caller. It is handed over
// through a buffered channel because an abandoned Wait leaves the task
// running; the task must never write into the caller's frame.
type genOutcome struct {
	result   *ReportResult
	tokens   llm.TokenUsage
	attempts int
}

// GenerateReport runs the full pipeline for one request. Validation failures
// return *ValidationError before admission; queue eviction returns
// *scheduler.QueueTimeoutError; exhausted degradable upstream failures return
// a degraded report instead of an error. A usage event is emitted for every
// outcome, rejections included.
func (o *Orchestrator) GenerateReport(ctx context.Context, req *GenerationRequest) (*ReportResult, error) {
	started := time.Now()
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = started
	}

	requestID := uuid.New().String()
	rl := logging.WithRequestID(logging.CategoryReport, requestID).
		WithField("type", string(req.Type))
	timer := logging.StartTimer(logging.CategoryReport, "generate")

	completeness, err := Validate(req)
	if err != nil {
		rl.Warn("rejected request from user %s: %v", req.UserID, err)
		o.emitUsage(req, llm.TokenUsage{}, started, nil, err)
		return nil, err
	}

	prompt, err := BuildPrompt(req)
	if err != nil {
		rl.Error("prompt build failed: %v", err)
		uerr := &UnexpectedError{CorrelationID: requestID, Err: err}
		o.emitUsage(req, llm.TokenUsage{}, started, nil, uerr)
		return nil, uerr
	}

	outcomeCh := make(chan genOutcome, 1)

	task := func(taskCtx context.Context) (taskErr error) {
		var out genOutcome
		defer func() {
			if r := recover(); r != nil {
				taskErr = &UnexpectedError{
					CorrelationID: requestID,
					Err:           fmt.Errorf("panic during generation: %v", r),
				}
				logging.ReportError("generation panicked: %v", r)
			}
			outcomeCh <- out
		}()

		res, history, execErr := o.exec.Execute(taskCtx, prompt)
		out.attempts = len(history)

		if execErr != nil {
			var upErr *llm.UpstreamError
			if errors.As(execErr, &upErr) && upErr.Info.Degradable() {
				out.result = Degrade(req, upErr.Info.UserMessage, completeness, started)
				return nil
			}
			return execErr
		}

		out.tokens = res.Usage
		out.result = assemble(req, res, completeness, started, out.attempts)
		return nil
	}

	ticket := o.sched.Submit(ctx, task, scheduler.WithPriority(Priority(req)))
	waitErr := ticket.Wait(ctx)

	// The outcome is only present once the task itself finished; an abandoned
	// wait, a queue eviction, or a scheduler stop leaves the channel empty.
	var out genOutcome
	select {
	case out = <-outcomeCh:
	default:
	}

	o.emitUsage(req, out.tokens, started, out.result, waitErr)
	timer.StopWithThreshold(30 * time.Second)

	if waitErr != nil {
		return nil, categorize(waitErr)
	}
	rl.Info("completed in %dms after %d attempt(s)", out.result.Metadata.ProcessingTimeMs, out.attempts)
	return out.result, nil
}

// assemble builds the successful result from a parsed completion.
func assemble(req *GenerationRequest, res *llm.CompletionResult, completeness float64, started time.Time, attempts int) *ReportResult {
	sections := ParseSections(res.RawText)
	logging.ReportDebug("parsed %d sections from %d-token completion", len(sections), res.Usage.Total)

	summary := ""
	for _, s := range sections {
		if s.Key == SectionSummary {
			summary = s.Text
			break
		}
	}

	return &ReportResult{
		Title:    fmt.Sprintf("Investment Report (%s)", req.Type),
		Summary:  summary,
		FullText: res.RawText,
		Sections: sections,
		Metadata: Metadata{
			ReportType:       req.Type,
			GeneratedAt:      time.Now(),
			ProcessingTimeMs: time.Since(started).Milliseconds(),
			TokenUsage:       res.Usage,
			DataCompleteness: completeness,
			Attempts:         attempts,
			Model:            res.Model,
		},
	}
}

// categorize keeps known error types intact and tags everything else with a
// correlation id.
func categorize(err error) error {
	var qte *scheduler.QueueTimeoutError
	var upErr *llm.UpstreamError
	var unErr *UnexpectedError
	if errors.As(err, &qte) || errors.As(err, &upErr) || errors.As(err, &unErr) {
		return err
	}
	return &UnexpectedError{CorrelationID: uuid.New().String(), Err: err}
}

// emitUsage fires the accounting event on a separate goroutine so a slow or
// panicking recorder cannot block or fail the caller.
func (o *Orchestrator) emitUsage(req *GenerationRequest, tokens llm.TokenUsage, started time.Time, result *ReportResult, genErr error) {
	if o.recorder == nil {
		return
	}

	event := usage.Event{
		Timestamp:    time.Now(),
		UserID:       req.UserID,
		Provider:     o.provider,
		Model:        o.model,
		ReportType:   string(req.Type),
		InputTokens:  tokens.Prompt,
		OutputTokens: tokens.Completion,
		DurationMs:   time.Since(started).Milliseconds(),
		Success:      genErr == nil,
	}
	if result != nil && result.Degraded {
		event.Degraded = true
	}
	if genErr != nil {
		event.ErrorCode = errorCode(genErr)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.ReportError("usage recorder panicked: %v", r)
			}
		}()
		o.recorder.Record(event)
	}()
}

func errorCode(err error) string {
	var qte *scheduler.QueueTimeoutError
	if errors.As(err, &qte) {
		return "queue_timeout"
	}
	var upErr *llm.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Info.Kind.String()
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	return "unexpected"
}
