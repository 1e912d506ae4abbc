package hybrid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/lockboxhq/lockbox/internal/gate"
	"github.com/lockboxhq/lockbox/internal/llm"
	"github.com/lockboxhq/lockbox/internal/tools"
)

// llmRun is the per-run LLM state: the provider tools when the run is
// entitled to them, plus the accounting every stage shares. A run with
// nil tools is a pattern-only run; all methods are safe on it.
type llmRun struct {
	analysis   *tools.AnalysisTool
	clustering *tools.ClusteringTool
	roles      *tools.RoleTool
	closer     io.Closer
	gate       *gate.Gate
	logger     *slog.Logger
	userID     string
	provider   string

	mu        sync.Mutex
	tokens    int64
	successes int
	errMsg    string

	roleExtraction bool
}

// openLLM evaluates entitlement and, when allowed, builds the provider
// client and the three tools for this run. Denials come back as a run
// with no tools and an explanatory message, never as an error; an error
// here means a configuration bug (unknown provider, unregistered
// prompt) that should fail loudly.
func (e *Extractor) openLLM(ctx context.Context, opts Options) (*llmRun, error) {
	run := &llmRun{gate: e.gate, logger: e.logger, userID: opts.UserID}
	if !opts.UseLLM {
		return run, nil
	}

	decision := e.gate.CanUseProvider(ctx, opts.UserID, opts.Provider)
	if !decision.Allowed {
		run.errMsg = "llm unavailable: " + string(decision.Reason)
		e.logger.Info("llm disabled for this run",
			"user_id", opts.UserID,
			"reason", string(decision.Reason))
		return run, nil
	}

	key, source, ok := e.gate.Credential(ctx, opts.UserID, decision.Provider)
	if !ok {
		run.errMsg = "llm unavailable: " + string(gate.ReasonNoCredential)
		return run, nil
	}

	cfg := e.gate.UserConfig(ctx, opts.UserID)
	run.provider = decision.Provider
	run.roleExtraction = cfg.RoleExtraction

	modelName := opts.Model
	if modelName == "" {
		modelName = cfg.ModelFor(decision.Provider)
	}

	client, err := e.newClient(llm.Config{
		Provider: decision.Provider,
		APIKey:   key,
		Model:    modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("building %s client: %w", decision.Provider, err)
	}
	if c, isCloser := client.(io.Closer); isCloser {
		run.closer = c
	}

	if run.analysis, err = tools.NewAnalysisTool(client, e.registry); err != nil {
		run.close()
		return nil, err
	}
	if run.clustering, err = tools.NewClusteringTool(client, e.registry); err != nil {
		run.close()
		return nil, err
	}
	if run.roles, err = tools.NewRoleTool(client, e.registry); err != nil {
		run.close()
		return nil, err
	}

	e.logger.Info("llm enabled for this run",
		"user_id", opts.UserID,
		"provider", decision.Provider,
		"credential_source", string(source),
		"model", modelName)
	return run, nil
}

func (r *llmRun) available() bool {
	return r.analysis != nil
}

// noteSuccess accounts for a provider call that completed and parsed.
func (r *llmRun) noteSuccess(ctx context.Context, tokens int64) {
	r.charge(ctx, tokens)

	r.mu.Lock()
	r.tokens += tokens
	r.successes++
	r.mu.Unlock()
}

// noteFailure accounts for a failed LLM call. Schema failures happen
// after the provider has already answered, so their token cost is still
// charged; there are no refunds.
func (r *llmRun) noteFailure(ctx context.Context, err error) {
	var tokens int64
	var toolErr *tools.ToolError
	if errors.As(err, &toolErr) {
		tokens = toolErr.TokensUsed
	}
	r.charge(ctx, tokens)

	r.mu.Lock()
	r.tokens += tokens
	if r.errMsg == "" {
		r.errMsg = err.Error()
	}
	r.mu.Unlock()
}

// charge records consumed tokens against the user's budget. Recording
// failures are logged and swallowed; budget bookkeeping must never stop
// a run that already has its answer.
func (r *llmRun) charge(ctx context.Context, tokens int64) {
	if tokens <= 0 {
		return
	}
	if err := r.gate.RecordUsage(ctx, r.userID, r.provider, tokens); err != nil {
		r.logger.Warn("token usage recording failed",
			"user_id", r.userID,
			"provider", r.provider,
			"tokens", tokens,
			"error", err)
	}
}

func (r *llmRun) snapshot() (tokens int64, successes int, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens, r.successes, r.errMsg
}

func (r *llmRun) close() {
	if r.closer == nil {
		return
	}
	if err := r.closer.Close(); err != nil {
		r.logger.Warn("closing llm client failed", "error", err)
	}
}
