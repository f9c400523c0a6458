package graph

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ProviderRequest carries budget-fitted entry text to an extraction backend.
type ProviderRequest struct {
	EntryID             string
	Text                string
	ContextWindowTokens int
	Truncated           bool
}

// ExtractionProvider is the uniform contract all extraction backends expose.
// Extract returns raw structured output as text; the runner owns parsing so
// malformed output is subject to the same fallback-or-fail policy as any
// other provider failure.
type ExtractionProvider interface {
	Name() string
	Extract(ctx context.Context, req ProviderRequest) (string, error)
}

// ParseFunc turns raw provider output into typed candidates.
type ParseFunc func(provider, raw string) ([]EntityCandidate, []RelationCandidate, error)

// runnerState tracks where a run is in its lifecycle; used for logging only.
type runnerState string

const (
	stateIdle        runnerState = "idle"
	stateAssembling  runnerState = "assembling"
	stateCalling     runnerState = "calling"
	stateValidating  runnerState = "validating"
	stateFallingBack runnerState = "falling_back"
	stateSucceeded   runnerState = "succeeded"
	stateFailed      runnerState = "failed"
)

// RunnerConfig wires a Runner. Fallback must be the local heuristic provider,
// which cannot fail by construction.
type RunnerConfig struct {
	Provider            ExtractionProvider
	Fallback            ExtractionProvider
	Parse               ParseFunc
	Assembler           *Assembler
	Timeout             time.Duration
	MaxRetries          int
	BackoffBase         time.Duration
	AllowFallback       bool
	ContextWindowTokens int
	Observers           []Observer
	Logger              *logrus.Logger
}

// Runner executes one extraction: assemble context, call the configured
// provider with timeout/retry policy, validate the output, and fall back to
// the local heuristic when permitted.
type Runner struct {
	cfg   RunnerConfig
	log   *logrus.Entry
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner builds a runner from cfg.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		cfg:   cfg,
		log:   logger.WithField("component", "runner"),
		sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run produces a validated ExtractionResult for the entry, or an error when
// retries and fallback are exhausted or disallowed. On error no graph
// mutation has occurred; the caller records the failure on the entry.
func (r *Runner) Run(ctx context.Context, entry Entry) (ExtractionResult, error) {
	started := time.Now()
	providerName := r.cfg.Provider.Name()
	r.notify(Event{Type: EventStarted, EntryID: entry.ID, Provider: providerName})

	r.transition(entry.ID, stateIdle, stateAssembling)
	assembly, err := r.cfg.Assembler.Assemble(entry.Text)
	if err != nil {
		r.fail(entry.ID, providerName, started, err)
		return ExtractionResult{}, err
	}

	req := ProviderRequest{
		EntryID:             entry.ID,
		Text:                assembly.Prompt(),
		ContextWindowTokens: r.cfg.ContextWindowTokens,
		Truncated:           assembly.Truncated,
	}

	r.transition(entry.ID, stateAssembling, stateCalling)
	result, err := r.callAndValidate(ctx, r.cfg.Provider, req)
	if err != nil {
		if pe, ok := AsProviderError(err); ok && pe.Kind == ProviderCancelled {
			r.fail(entry.ID, providerName, started, err)
			return ExtractionResult{}, err
		}
		if ctx.Err() != nil {
			cancelled := NewProviderError(providerName, ProviderCancelled, ctx.Err())
			r.fail(entry.ID, providerName, started, cancelled)
			return ExtractionResult{}, cancelled
		}
		if !r.cfg.AllowFallback || r.cfg.Fallback == nil {
			r.fail(entry.ID, providerName, started, err)
			return ExtractionResult{}, err
		}

		r.transition(entry.ID, stateCalling, stateFallingBack)
		r.notify(Event{Type: EventFellBack, EntryID: entry.ID, Provider: providerName, Err: err})
		result, err = r.callAndValidate(ctx, r.cfg.Fallback, req)
		if err != nil {
			r.fail(entry.ID, r.cfg.Fallback.Name(), started, err)
			return ExtractionResult{}, err
		}
		result.Degraded = true
	}

	result.Truncated = assembly.Truncated
	result.Latency = time.Since(started)
	r.transition(entry.ID, stateValidating, stateSucceeded)
	r.notify(Event{
		Type:      EventSucceeded,
		EntryID:   entry.ID,
		Provider:  result.Provider,
		Latency:   result.Latency,
		Entities:  len(result.Entities),
		Relations: len(result.Relations),
	})
	return result, nil
}

// callAndValidate drives the retry loop for one provider. Only transient
// failures (timeout, network, rate limit) are retried; each attempt runs
// under its own timeout with exponential backoff between attempts.
func (r *Runner) callAndValidate(ctx context.Context, provider ExtractionProvider, req ProviderRequest) (ExtractionResult, error) {
	attempts := r.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		r.notify(Event{Type: EventProviderCalled, EntryID: req.EntryID, Provider: provider.Name(), Attempt: attempt})

		raw, err := r.extractOnce(ctx, provider, req)
		if err == nil {
			r.transition(req.EntryID, stateCalling, stateValidating)
			entities, relations, parseErr := r.cfg.Parse(provider.Name(), raw)
			if parseErr != nil {
				// Shape mismatch is a provider failure, never silently dropped.
				return ExtractionResult{}, parseErr
			}
			return ExtractionResult{Entities: entities, Relations: relations, Provider: provider.Name()}, nil
		}

		lastErr = err
		pe, ok := AsProviderError(err)
		if !ok || !pe.Retryable() || attempt == attempts {
			break
		}
		backoff := r.cfg.BackoffBase << (attempt - 1)
		r.log.WithFields(logrus.Fields{
			"entry_id": req.EntryID,
			"provider": provider.Name(),
			"attempt":  attempt,
			"backoff":  backoff.String(),
		}).WithError(err).Warn("provider attempt failed, retrying")
		if sleepErr := r.sleep(ctx, backoff); sleepErr != nil {
			return ExtractionResult{}, NewProviderError(provider.Name(), ProviderCancelled, sleepErr)
		}
	}
	return ExtractionResult{}, lastErr
}

func (r *Runner) extractOnce(ctx context.Context, provider ExtractionProvider, req ProviderRequest) (string, error) {
	callCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	return provider.Extract(callCtx, req)
}

func (r *Runner) fail(entryID, provider string, started time.Time, err error) {
	r.transition(entryID, stateCalling, stateFailed)
	r.notify(Event{Type: EventFailed, EntryID: entryID, Provider: provider, Latency: time.Since(started), Err: err})
}

func (r *Runner) transition(entryID string, from, to runnerState) {
	r.log.WithFields(logrus.Fields{"entry_id": entryID, "from": from, "to": to}).Debug("state transition")
}

func (r *Runner) notify(event Event) {
	notifyAll(r.cfg.Observers, r.log, event)
}
