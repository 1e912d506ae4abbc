package hybrid

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/lockboxhq/lockbox/internal/model"
	"github.com/lockboxhq/lockbox/internal/tools"
)

// analyzeAll analyzes every message, pattern first then LLM, with
// bounded parallelism. Results keep input order. Clustering depends on
// the complete analyzed set, so this returns only after every message
// has settled.
func (e *Extractor) analyzeAll(ctx context.Context, run *llmRun, messages []model.Message, opts Options) []model.AnalyzedMessage {
	out := make([]model.AnalyzedMessage, len(messages))
	panics := make([]any, len(messages))
	var completed atomic.Int64

	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup

	for i, msg := range messages {
		wg.Add(1)
		go func(idx int, m model.Message) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panics[idx] = r
				}
			}()

			// Acquire semaphore
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				out[idx] = model.AnalyzedMessage{Message: m, Method: model.MethodPattern}
				return
			}

			out[idx] = e.analyzeOne(ctx, run, m, opts)
			if opts.Progress != nil {
				opts.Progress(int(completed.Add(1)), len(messages))
			}
		}(i, msg)
	}
	wg.Wait()

	// Worker panics cannot cross goroutines on their own; rethrow the
	// first one here so the top-level recovery sees it.
	for i, r := range panics {
		if r != nil {
			panic(fmt.Sprintf("analyzing message %s: %v", messages[i].ID, r))
		}
	}
	return out
}

// analyzeOne runs the two analysis passes for a single message. The
// pattern result is kept whenever the LLM pass is skipped or fails; one
// message's LLM failure never aborts the batch.
func (e *Extractor) analyzeOne(ctx context.Context, run *llmRun, msg model.Message, opts Options) model.AnalyzedMessage {
	am := model.AnalyzedMessage{Message: msg, Method: model.MethodPattern}

	if e.patternEnabled(opts) {
		pa, err := e.patterns.Analyze(ctx, msg)
		if err != nil {
			e.logger.Warn("pattern analysis failed",
				"message_id", msg.ID,
				"error", err)
		} else if pa != nil {
			am.Pattern = pa
			am.IsRealEstateRelated = pa.IsRealEstateRelated
			am.Confidence = float64(pa.Confidence) / 100
		}
	}

	if !run.available() {
		return am
	}

	res, err := run.analysis.Run(ctx, tools.AnalysisInput{Message: msg})
	if err != nil {
		run.noteFailure(ctx, err)
		e.logger.Warn("llm analysis failed, keeping pattern result",
			"message_id", msg.ID,
			"error", err)
		return am
	}
	run.noteSuccess(ctx, res.TokensUsed)

	analysis := res.Analysis
	am.LLM = &analysis
	am.IsRealEstateRelated = analysis.IsRealEstateRelated
	if am.Pattern != nil {
		am.Method = model.MethodHybrid
		am.Confidence = e.mergeConfidence(am.Pattern.Confidence, analysis.Confidence)
	} else {
		am.Method = model.MethodLLM
		am.Confidence = analysis.Confidence
	}
	return am
}

// mergeConfidence blends the two confidence sources on the 0-1 scale.
// The result is kept inside [min, max] of the inputs so the blend can
// never be more extreme than either source.
func (e *Extractor) mergeConfidence(patternScore int, llmScore float64) float64 {
	p := float64(patternScore) / 100
	merged := e.weights.LLM*llmScore + e.weights.Pattern*p

	if lo := math.Min(p, llmScore); merged < lo {
		merged = lo
	}
	if hi := math.Max(p, llmScore); merged > hi {
		merged = hi
	}
	return merged
}
