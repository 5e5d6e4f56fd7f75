package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-enricher/internal/model"
	"github.com/sells-group/profile-enricher/internal/provider"
	"github.com/sells-group/profile-enricher/internal/resilience"
)

// errRefused marks a provider that turned an attempt away before any I/O.
var errRefused = errors.New("provider refused attempt")

// Skip reasons recorded in response metadata.
const (
	skipQuota     = "quota_exceeded"
	skipRefused   = "refused"
	skipAbandoned = "abandoned"
)

// Scrape runs one request: cache lookup, budget gate, provider selection and
// the fallback chain. The response is never nil and always explains a
// failure. The error is non-nil only when the request could not be
// attempted at all: an invalid URL, no applicable provider, or a closed
// orchestrator. A provider that applies but is held back by its rate limit or
// quota is not an error; the response reports it under Skipped.
func (o *Orchestrator) Scrape(ctx context.Context, req model.ScrapeRequest, progress model.ProgressFunc) (*model.ScrapeResponse, error) {
	r := &run{
		o:        o,
		req:      req,
		start:    o.nowFunc(),
		progress: &progressReporter{fn: progress},
	}
	r.meta = model.Metadata{
		RequestID: uuid.New().String(),
		Timestamp: r.start.UTC(),
	}
	r.progress.report(model.StageInitialization, 0, map[string]any{"url": req.URL, "request_id": r.meta.RequestID})

	if !o.enter() {
		resp := r.fail(model.NewScrapeError(model.KindConfiguration, ErrClosed.Error(), ErrClosed))
		return o.finish(resp), ErrClosed
	}
	defer o.pending.Done()

	if err := validateRequest(req); err != nil {
		resp := r.fail(err)
		return o.finish(resp), eris.Wrap(err, "orchestrator: invalid request")
	}

	key := req.Fingerprint()
	if o.cfg.CacheEnabled {
		if cached, ok := o.cache.get(key, r.start); ok {
			return o.finish(r.cacheHit(cached)), nil
		}
	}

	if check := o.tracker.CheckBudget(0); !check.Allowed {
		return o.finish(r.budgetExceeded(check.Reason)), nil
	}

	chain, held := o.selectChain(req)
	names := make([]string, 0, len(chain))
	for _, sel := range chain {
		names = append(names, sel.Name)
	}
	r.progress.report(model.StageProviderSelection, 10, map[string]any{"providers": names})

	for _, g := range held {
		r.skip(g.name, g.kind, g.reason)
		o.observer.ProviderSkipped(g.name, string(g.kind))
	}
	if len(chain) == 0 && len(held) > 0 {
		return o.finish(r.exhausted()), nil
	}
	if len(chain) == 0 {
		resp := r.fail(model.NewScrapeError(model.KindConfiguration, ErrNoApplicableProvider.Error(), ErrNoApplicableProvider))
		return o.finish(resp), eris.Wrapf(ErrNoApplicableProvider, "orchestrator: %s", req.URL)
	}

	var resp *model.ScrapeResponse
	if o.cfg.Mode == ModeParallel && len(chain) > 1 {
		resp = r.parallel(ctx, chain)
	} else {
		resp = r.sequential(ctx, chain)
	}
	if resp.Success && o.cfg.CacheEnabled {
		o.cache.set(key, resp, o.nowFunc())
	}
	return o.finish(resp), nil
}

func validateRequest(req model.ScrapeRequest) *model.ScrapeError {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return model.NewScrapeError(model.KindValidation, "url is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return model.NewScrapeError(model.KindValidation, fmt.Sprintf("invalid url %q", req.URL), err)
	}
	if len(req.Options) > 0 {
		if _, err := json.Marshal(req.Options); err != nil {
			return model.NewScrapeError(model.KindValidation, "options must be JSON encodable", err)
		}
	}
	return nil
}

// finish applies session aggregates and notifies the observer.
func (o *Orchestrator) finish(resp *model.ScrapeResponse) *model.ScrapeResponse {
	o.session.record(resp)
	o.observer.RequestFinished(resp)
	return resp
}

// run carries the state of one Scrape call. Only the goroutine that called
// Scrape touches it.
type run struct {
	o        *Orchestrator
	req      model.ScrapeRequest
	start    time.Time
	meta     model.Metadata
	progress *progressReporter

	lastErr  *model.ScrapeError
	lastSkip model.ErrorKind
}

// memberResult is the outcome of one chain member after its retries.
// Abandoned members were cancelled by the caller or by a race that already
// had a winner; they are neither successes nor failures.
type memberResult struct {
	sel       Selection
	resp      *model.ScrapeResponse
	refusal   *model.ScrapeError
	attempts  int
	abandoned bool
	release   func()
}

// attempt runs one chain member through the retry loop. Retries stop at the
// first success, at a terminal error, or when the provider refuses before I/O.
// The returned response sums cost, tokens and duration over the retries.
func (o *Orchestrator) attempt(ctx context.Context, p provider.Provider, req model.ScrapeRequest) memberResult {
	res := memberResult{}
	var (
		last    *model.ScrapeResponse
		cost    float64
		tokens  model.TokenUsage
		elapsed time.Duration
	)

	retry := o.cfg.Retry
	retry.OnRetry = resilience.RetryLogger(p.Name(), "scrape")
	retry.ShouldRetry = func(err error) bool {
		return !errors.Is(err, errRefused) && resilience.IsRetriable(err)
	}

	_, _ = resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.ScrapeResponse, error) {
		resp := p.Scrape(ctx, req)
		if resp == nil {
			resp = model.Failed(p.Name(), model.NewScrapeError(model.KindUnknown, "provider returned no response", nil).WithProvider(p.Name()))
			resp.Metadata.AttemptCount = 1
		}
		if resp.Metadata.AttemptCount == 0 {
			if resp.Error != nil {
				res.refusal = resp.Error
			}
			return nil, errRefused
		}
		res.attempts++
		last = resp
		cost += resp.Metadata.Cost
		tokens.Add(resp.Metadata.Tokens)
		elapsed += resp.Duration
		if resp.Success {
			return resp, nil
		}
		if resp.Error == nil {
			resp.Error = model.NewScrapeError(model.KindUnknown, "attempt failed", nil).WithProvider(p.Name())
		}
		return nil, resp.Error
	})

	if last == nil {
		if res.refusal == nil {
			res.refusal = model.NewScrapeError(model.KindUnknown, "provider refused attempt", nil).WithProvider(p.Name())
		}
		return res
	}
	out := *last
	out.Duration = elapsed
	out.Metadata.Cost = cost
	out.Metadata.Tokens = tokens
	out.Metadata.AttemptCount = res.attempts
	res.resp = &out
	res.abandoned = !out.Success && out.Error != nil && errors.Is(out.Error, context.Canceled)
	return res
}

// account updates provider metrics, the usage tracker and the observer for
// one resolved chain member, then drops its budget reservation. It runs
// exactly once per member.
func (o *Orchestrator) account(req model.ScrapeRequest, requestID string, res memberResult) {
	if res.release != nil {
		defer res.release()
	}
	name := res.sel.Name
	if res.abandoned {
		zap.L().Debug("orchestrator: attempt abandoned",
			zap.String("provider", name),
			zap.String("url", req.URL),
			zap.String("request_id", requestID),
		)
		o.observer.ProviderSkipped(name, skipAbandoned)
		return
	}
	if res.resp == nil {
		reason := skipRefused
		if res.refusal != nil {
			reason = string(res.refusal.Kind)
		}
		o.observer.ProviderSkipped(name, reason)
		return
	}
	res.resp.Metadata.RequestID = requestID

	o.mu.Lock()
	if m, ok := o.metrics[name]; ok {
		m.record(res.resp, o.nowFunc())
	}
	o.mu.Unlock()

	o.tracker.TrackRequest(name, req, res.resp)
	o.observer.AttemptFinished(name, res.resp)
}

// gate reserves the member's estimated cost against the session budget and
// checks the provider's tracker quota before an attempt. It returns a budget
// refusal reason, or a skip reason when only this provider is out of quota.
// On admission the caller owns release and must hand it to account.
func (r *run) gate(sel Selection) (release func(), budgetReason, skipReason string) {
	check, release := r.o.tracker.Reserve(sel.Provider.EstimateCost(r.req))
	if !check.Allowed {
		return nil, check.Reason, ""
	}
	if q := r.o.tracker.CheckProviderQuota(sel.Name); !q.Allowed {
		release()
		return nil, "", q.Reason
	}
	return release, "", ""
}

func (r *run) skip(name string, kind model.ErrorKind, reason string) {
	if r.meta.Skipped == nil {
		r.meta.Skipped = make(map[string]string)
	}
	r.meta.Skipped[name] = reason
	r.lastSkip = kind
	zap.L().Debug("orchestrator: provider skipped",
		zap.String("provider", name),
		zap.String("url", r.req.URL),
		zap.String("reason", reason),
	)
}

// apply folds a resolved member into the run and reports whether it is
// accepted as the final answer.
func (r *run) apply(res memberResult, pct float64) bool {
	name := res.sel.Name
	if res.resp == nil {
		reason := "refused"
		kind := model.KindUnknown
		if res.refusal != nil {
			reason = res.refusal.Message
			kind = res.refusal.Kind
		}
		r.skip(name, kind, reason)
		return false
	}

	resp := res.resp
	r.meta.ProvidersAttempted = append(r.meta.ProvidersAttempted, name)
	r.meta.AttemptCount += res.attempts
	r.meta.Cost += resp.Metadata.Cost
	r.meta.Tokens.Add(resp.Metadata.Tokens)

	if resp.Success && resp.Confidence >= res.sel.Threshold {
		return true
	}

	var failure *model.ScrapeError
	if resp.Success {
		r.meta.Candidates = append(r.meta.Candidates, model.Candidate{
			Provider:   name,
			Confidence: resp.Confidence,
			Threshold:  res.sel.Threshold,
			Record:     resp.Record.Clone(),
		})
		failure = model.NewScrapeError(model.KindExtraction,
			fmt.Sprintf("confidence %.1f below threshold %.1f", resp.Confidence, res.sel.Threshold), nil).WithProvider(name)
	} else {
		failure = resp.Error
	}
	r.lastErr = failure

	zap.L().Warn("orchestrator: provider did not produce an accepted result",
		zap.String("provider", name),
		zap.String("url", r.req.URL),
		zap.String("kind", string(failure.Kind)),
		zap.Float64("confidence", resp.Confidence),
		zap.Error(failure),
	)
	r.progress.report(model.StageProviderFailed, pct, map[string]any{
		"provider":   name,
		"kind":       string(failure.Kind),
		"error":      failure.Message,
		"confidence": resp.Confidence,
	})
	return false
}

// sequential walks the chain in order. The budget is rechecked before every
// member; a refusal halts the chain.
func (r *run) sequential(ctx context.Context, chain []Selection) *model.ScrapeResponse {
	n := float64(len(chain))
	for i, sel := range chain {
		if err := ctx.Err(); err != nil {
			return r.fail(model.AsScrapeError(err))
		}
		release, reason, skip := r.gate(sel)
		if reason != "" {
			return r.budgetExceeded(reason)
		} else if skip != "" {
			r.skip(sel.Name, model.KindQuotaExceeded, skip)
			r.o.observer.ProviderSkipped(sel.Name, skipQuota)
			continue
		}

		r.progress.report(model.StageProviderAttempt, 10+80*float64(i)/n, map[string]any{
			"provider": sel.Name,
			"index":    i,
			"total":    len(chain),
		})
		res := r.o.attempt(ctx, sel.Provider, r.req)
		res.sel = sel
		res.release = release
		r.o.account(r.req, r.meta.RequestID, res)
		if r.apply(res, 10+80*float64(i+1)/n) {
			return r.succeed(res.resp)
		}
	}
	return r.exhausted()
}

// parallel races every chain member that passes the gates. Each launch holds
// its estimate against the budget until it resolves. The first accepted result wins and
// the rest are cancelled; their outcomes are still accounted once they
// resolve but never touch the response. If nothing is accepted the chain is
// retried sequentially.
func (r *run) parallel(ctx context.Context, chain []Selection) *model.ScrapeResponse {
	o := r.o
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan memberResult, len(chain))
	var budgetReason string
	launched := 0
	for _, sel := range chain {
		release, reason, skip := r.gate(sel)
		if reason != "" {
			budgetReason = reason
			break
		}
		if skip != "" {
			r.skip(sel.Name, model.KindQuotaExceeded, skip)
			o.observer.ProviderSkipped(sel.Name, skipQuota)
			continue
		}
		launched++
		o.pending.Add(1)
		go func(sel Selection, release func()) {
			defer o.pending.Done()
			res := o.attempt(raceCtx, sel.Provider, r.req)
			res.sel = sel
			res.release = release
			results <- res
		}(sel, release)
	}

	if launched == 0 {
		if budgetReason != "" {
			return r.budgetExceeded(budgetReason)
		}
		return r.exhausted()
	}
	r.progress.report(model.StageProviderAttempt, 20, map[string]any{
		"mode":     string(ModeParallel),
		"launched": launched,
		"total":    len(chain),
	})

	received := 0
	for received < launched {
		res := <-results
		received++
		o.account(r.req, r.meta.RequestID, res)
		if r.apply(res, 20+40*float64(received)/float64(launched)) {
			cancel()
			if rest := launched - received; rest > 0 {
				o.drain(r.req, r.meta.RequestID, results, rest)
			}
			return r.succeed(res.resp)
		}
	}

	zap.L().Info("orchestrator: race produced no accepted result, falling back to sequential",
		zap.String("url", r.req.URL),
		zap.Int("raced", launched),
	)
	return r.sequential(ctx, chain)
}

// drain accounts race members that resolve after a winner was chosen.
func (o *Orchestrator) drain(req model.ScrapeRequest, requestID string, results <-chan memberResult, n int) {
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		for i := 0; i < n; i++ {
			o.account(req, requestID, <-results)
		}
	}()
}

func (r *run) elapsed() time.Duration {
	return r.o.nowFunc().Sub(r.start)
}

func (r *run) succeed(winner *model.ScrapeResponse) *model.ScrapeResponse {
	out := winner.Clone()
	out.Duration = r.elapsed()
	out.Metadata = r.meta
	out.Error = nil

	zap.L().Info("orchestrator: scrape accepted",
		zap.String("url", r.req.URL),
		zap.String("provider", out.Provider),
		zap.Float64("confidence", out.Confidence),
		zap.Strings("attempted", out.Metadata.ProvidersAttempted),
		zap.Float64("cost", out.Metadata.Cost),
	)
	r.progress.report(model.StageSuccess, 100, map[string]any{
		"provider":   out.Provider,
		"confidence": out.Confidence,
	})
	return out
}

func (r *run) fail(err *model.ScrapeError) *model.ScrapeResponse {
	resp := &model.ScrapeResponse{
		Duration: r.elapsed(),
		Metadata: r.meta,
		Error:    err,
	}
	r.progress.report(model.StageCompleteFailure, 100, map[string]any{
		"kind":  string(err.Kind),
		"error": err.Message,
	})
	return resp
}

func (r *run) budgetExceeded(reason string) *model.ScrapeResponse {
	r.meta.BudgetExceeded = true
	zap.L().Warn("orchestrator: budget exceeded, chain halted",
		zap.String("url", r.req.URL),
		zap.Strings("attempted", r.meta.ProvidersAttempted),
		zap.String("reason", reason),
	)
	r.progress.report(model.StageBudgetExceeded, 100, map[string]any{"reason": reason})
	return &model.ScrapeResponse{
		Duration: r.elapsed(),
		Metadata: r.meta,
		Error:    model.NewScrapeError(model.KindBudgetExceeded, reason, nil),
	}
}

// exhausted reports a chain that ran out of members. Low-confidence
// candidates are kept in metadata but never promoted.
func (r *run) exhausted() *model.ScrapeResponse {
	var err *model.ScrapeError
	switch {
	case len(r.meta.Candidates) > 0:
		best := r.meta.Candidates[0]
		for _, c := range r.meta.Candidates[1:] {
			if c.Confidence > best.Confidence {
				best = c
			}
		}
		err = model.NewScrapeError(model.KindExtraction,
			fmt.Sprintf("no result met the confidence threshold (best %.1f from %s, needed %.1f)",
				best.Confidence, best.Provider, best.Threshold), nil)
	case r.lastErr != nil:
		err = model.NewScrapeError(r.lastErr.Kind, "all providers failed: "+r.lastErr.Message, r.lastErr).
			WithProvider(r.lastErr.Provider).WithStatus(r.lastErr.StatusCode)
	case r.lastSkip != "":
		err = model.NewScrapeError(r.lastSkip, "every applicable provider was refused", nil)
	default:
		err = model.NewScrapeError(model.KindUnknown, "no provider produced a result", nil)
	}
	return r.fail(err)
}

func (r *run) cacheHit(cached *model.ScrapeResponse) *model.ScrapeResponse {
	out := cached
	out.Duration = r.elapsed()
	out.Metadata = model.Metadata{
		RequestID: r.meta.RequestID,
		Timestamp: r.meta.Timestamp,
		CacheHit:  true,
	}
	r.o.observer.CacheHit()
	zap.L().Debug("orchestrator: cache hit",
		zap.String("url", r.req.URL),
		zap.String("provider", out.Provider),
	)
	r.progress.report(model.StageCache, 100, map[string]any{"provider": out.Provider})
	return out
}

// progressReporter keeps reported percentages from decreasing.
type progressReporter struct {
	fn   model.ProgressFunc
	last float64
}

func (p *progressReporter) report(stage model.Stage, pct float64, details map[string]any) {
	if p.fn == nil {
		return
	}
	if pct < p.last {
		pct = p.last
	}
	p.last = pct
	p.fn(model.Progress{Stage: stage, Percent: pct, Details: details})
}
