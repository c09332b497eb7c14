package engine

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	sqlitecache "github.com/responsa-ai/responsa/pkg/cache/sqlite"
	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
)

// Ask answers a natural-language question about the dataset. Validation
// failures never reach a provider. The inference call is a single
// attempt bounded by the provider timeout; failures surface to the
// caller classified, never as a degraded answer.
func (e *Engine) Ask(ctx context.Context, question string) (*models.AskResponse, error) {
	ctx = ensureRequestID(ctx)
	start := time.Now()
	model := e.provider.Model()

	question = strings.TrimSpace(question)
	if question == "" {
		err := fault.New(fault.KindInvalidInput, "ask", "question must not be empty")
		e.record(ctx, "", question, "", models.Usage{}, models.OutcomeInvalid, false, start)
		return nil, err
	}
	if n := utf8.RuneCountInString(question); n > e.cfg.Ask.MaxQuestionLen {
		err := fault.Newf(fault.KindInvalidInput, "ask", "question exceeds %d characters", e.cfg.Ask.MaxQuestionLen)
		e.record(ctx, "", question, "", models.Usage{}, models.OutcomeInvalid, false, start)
		return nil, err
	}

	hash := sqlitecache.HashQuestion(model, question)
	if e.cache != nil {
		if entry, ok := e.cache.Get(hash, model); ok {
			e.metrics.RecordCacheHit()
			e.record(ctx, hash, question, entry.Answer, entry.Usage, models.OutcomeCacheHit, true, start)
			return &models.AskResponse{Answer: entry.Answer}, nil
		}
		e.metrics.RecordCacheMiss()
	}

	if e.enforcer != nil {
		if err := e.enforcer.Check(ctx, model); err != nil {
			return nil, err
		}
	}

	snap, err := e.ensureSnapshot(ctx)
	if err != nil {
		e.record(ctx, hash, question, "", models.Usage{}, outcomeFor(err), false, start)
		return nil, err
	}

	hits, err := e.index.Search(ctx, question, e.cfg.Retrieval.TopK)
	if err != nil {
		e.record(ctx, hash, question, "", models.Usage{}, outcomeFor(err), false, start)
		return nil, err
	}

	system, err := renderSystemPrompt(e.data.Table(), snap.RowCount(), hits)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "ask.prompt", err)
	}

	res, err := e.provider.Complete(ctx, system, question)
	if err != nil {
		if fault.Is(err, fault.KindUpstream) {
			e.metrics.RecordUpstreamError(models.DependencyInference)
		}
		e.record(ctx, hash, question, "", models.Usage{}, outcomeFor(err), false, start)
		return nil, err
	}

	answer := strings.TrimSpace(res.Text)
	if e.cache != nil {
		if err := e.cache.Put(hash, model, answer, res.Usage); err != nil {
			e.log.WarnContext(ctx, "answer cache write failed", "error", err)
		}
	}
	e.metrics.RecordTokens(model, res.Usage)
	e.record(ctx, hash, question, answer, res.Usage, models.OutcomeOK, false, start)
	return &models.AskResponse{Answer: answer}, nil
}

// record writes the usage row synchronously and the audit entry
// asynchronously, mirroring their roles: budget checks read usage
// immediately, audit is an operator trail.
func (e *Engine) record(ctx context.Context, hash, question, answer string, u models.Usage, outcome string, cacheHit bool, start time.Time) {
	now := time.Now().UTC()
	latency := time.Since(start).Milliseconds()

	if e.tracker != nil {
		rec := models.UsageRecord{
			Provider:         e.provider.Name(),
			Model:            e.provider.Model(),
			QuestionHash:     hash,
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
			LatencyMs:        latency,
			CacheHit:         cacheHit,
			Outcome:          outcome,
			CreatedAt:        now,
		}
		if err := e.tracker.Record(ctx, rec); err != nil {
			e.log.WarnContext(ctx, "usage record failed", "error", err)
		}
	}

	if e.auditor != nil {
		entry := models.AuditEntry{
			RequestID:        RequestIDFrom(ctx),
			Provider:         e.provider.Name(),
			Model:            e.provider.Model(),
			Question:         question,
			Answer:           answer,
			Outcome:          outcome,
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
			LatencyMs:        latency,
			CreatedAt:        now,
		}
		go func() {
			if err := e.auditor.Log(context.Background(), entry); err != nil {
				e.log.Warn("audit log failed", "error", err)
			}
		}()
	}
}

func outcomeFor(err error) string {
	switch k := fault.KindOf(err); k {
	case fault.KindInvalidInput:
		return models.OutcomeInvalid
	case fault.KindUpstream:
		return models.OutcomeUpstream
	case fault.KindInference:
		return models.OutcomeInference
	default:
		return string(k)
	}
}
