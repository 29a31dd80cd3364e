package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
	"github.com/manthysbr/aulesearch/internal/metrics"
)

const (
	maxConsensusWords    = 5
	maxDisagreementWords = 3
)

// DebateWithModels runs q on every known model in ids concurrently and
// compares the answers. Unknown IDs are skipped. Any single failure fails the
// whole debate and cancels the remaining calls.
func (o *SearchOrchestrator) DebateWithModels(ctx context.Context, q domain.SearchQuery, ids []string) (domain.DebateResult, error) {
	var backends []ports.ModelBackend
	for _, id := range ids {
		if b, ok := o.registry.GetModel(id); ok {
			backends = append(backends, b)
		}
	}
	if len(backends) == 0 {
		metrics.RecordDebate(metrics.StatusError)
		return domain.DebateResult{}, domain.ErrNoValidModels
	}

	start := time.Now()
	strategy := o.selectStrategy(q)
	ctx, traceID := o.tracer.StartTrace(ctx, "debate: "+truncate(q.Query, traceNameLen), domain.SpanKindSearch, map[string]string{
		"models":   strings.Join(ids, ","),
		"strategy": strategy.Name(),
	})
	o.tracer.SetTraceModel(traceID, "", strategy.Name())

	responses := make([]domain.DebateResponse, len(backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			pctx, spanID := o.tracer.StartSpan(gctx, "debate."+b.ID(), domain.SpanKindDebate, map[string]string{
				"model_id": b.ID(),
			})
			res, err := o.execute(pctx, q, b, strategy)
			o.tracer.EndSpan(spanID, res.Answer, err)
			if err != nil {
				return fmt.Errorf("model %s: %w", b.ID(), err)
			}
			responses[i] = domain.DebateResponse{
				ModelID:    b.ID(),
				ModelName:  b.Name(),
				Response:   res.Answer,
				Confidence: res.Confidence,
			}
			return nil
		})
	}

	err := g.Wait()
	o.tracer.EndTrace(traceID, err)
	metrics.RecordDebate(metrics.Status(err))
	metrics.RecordRequest("debate", strategy.Name(), metrics.Status(err), time.Since(start).Seconds())
	if err != nil {
		o.logger.Error("debate failed", "models", len(backends), "error", err)
		return domain.DebateResult{}, fmt.Errorf("debate: %w", err)
	}

	o.logger.Info("debate completed", "models", len(backends), "strategy", strategy.Name())
	return domain.DebateResult{
		Responses:     responses,
		Consensus:     analyzeConsensus(responses),
		Disagreements: analyzeDisagreements(responses),
		TraceID:       traceID,
	}, nil
}

// distinctWords returns the lower-cased words of s, once each, in order of appearance.
func distinctWords(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, w := range fields {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// analyzeConsensus lists up to five words shared by more than one answer.
func analyzeConsensus(responses []domain.DebateResponse) string {
	if len(responses) < 2 {
		return ""
	}

	counts := make(map[string]int)
	var order []string
	for _, r := range responses {
		for _, w := range distinctWords(r.Response) {
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	var common []string
	for _, w := range order {
		if counts[w] > 1 {
			common = append(common, w)
			if len(common) == maxConsensusWords {
				break
			}
		}
	}
	if len(common) == 0 {
		return ""
	}
	return "Models agree on: " + strings.Join(common, ", ")
}

// analyzeDisagreements reports, per pair of answers, up to three words only one side used.
func analyzeDisagreements(responses []domain.DebateResponse) []string {
	words := make([][]string, len(responses))
	sets := make([]map[string]struct{}, len(responses))
	for i, r := range responses {
		words[i] = distinctWords(r.Response)
		sets[i] = make(map[string]struct{}, len(words[i]))
		for _, w := range words[i] {
			sets[i][w] = struct{}{}
		}
	}

	var out []string
	for i := 0; i < len(responses); i++ {
		for j := i + 1; j < len(responses); j++ {
			var diff []string
			for _, w := range words[i] {
				if _, ok := sets[j][w]; !ok {
					diff = append(diff, w)
				}
			}
			for _, w := range words[j] {
				if _, ok := sets[i][w]; !ok {
					diff = append(diff, w)
				}
			}
			if len(diff) == 0 {
				continue
			}
			diff = diff[:min(len(diff), maxDisagreementWords)]
			out = append(out, fmt.Sprintf("Models %s and %s differ on: %s",
				responses[i].ModelName, responses[j].ModelName, strings.Join(diff, ", ")))
		}
	}
	return out
}
