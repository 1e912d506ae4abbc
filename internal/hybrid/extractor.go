// Package hybrid orchestrates transaction detection over a batch of
// communications. Every message gets a deterministic pattern baseline,
// with optional LLM enhancement layered on top and a deterministic
// fallback at every stage, so the caller always gets a usable result.
// LLM failures degrade the smallest possible unit (one message's
// analysis, one run's clustering, one cluster's roles) and never
// surface as run errors.
package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lockboxhq/lockbox/internal/gate"
	"github.com/lockboxhq/lockbox/internal/llm"
	"github.com/lockboxhq/lockbox/internal/model"
	"github.com/lockboxhq/lockbox/internal/patterns"
	"github.com/lockboxhq/lockbox/internal/prompt"
	"github.com/lockboxhq/lockbox/internal/service"
)

// Weights controls the confidence merge when both the pattern matcher
// and the LLM analyzed a message. Only the ratio matters; the
// constructor normalizes the pair to sum to 1.
type Weights struct {
	LLM     float64
	Pattern float64
}

// DefaultWeights favors the LLM over the pattern matcher, without
// letting either side dominate outright.
func DefaultWeights() Weights {
	return Weights{LLM: 0.6, Pattern: 0.4}
}

func (w Weights) normalized() Weights {
	sum := w.LLM + w.Pattern
	if w.LLM < 0 || w.Pattern < 0 || sum <= 0 {
		return DefaultWeights()
	}
	return Weights{LLM: w.LLM / sum, Pattern: w.Pattern / sum}
}

const defaultWorkers = 5

// Options selects the mode of one run. The zero value analyzes nothing
// useful; callers set at least one of UsePatternMatching or UseLLM.
type Options struct {
	// Progress, when set, is called once per completed message during
	// analysis. It may be called from concurrent workers.
	Progress func(completed, total int)

	UserID string

	// Provider overrides the user's preferred provider for this run.
	Provider string

	// Model overrides the provider's default model for this run.
	Model string

	// Workers bounds message-analysis parallelism. Zero means
	// defaultWorkers.
	Workers int

	UsePatternMatching bool
	UseLLM             bool
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	return o
}

func (o Options) patternOnly() Options {
	o.UsePatternMatching = true
	o.UseLLM = false
	return o
}

// Result is what every run produces. Success is true whenever a usable
// detection result exists, including runs where the LLM failed outright
// and everything degraded to the pattern baseline; LLMError carries the
// first LLM-path failure so callers can tell the user that AI
// enhancement was unavailable this run.
type Result struct {
	AnalyzedMessages     []model.AnalyzedMessage     `json:"analyzedMessages"`
	DetectedTransactions []model.DetectedTransaction `json:"detectedTransactions"`
	Method               model.ExtractionMethod      `json:"extractionMethod"`
	LLMError             string                      `json:"llmError,omitempty"`
	TokensUsed           int64                       `json:"tokensUsed,omitempty"`
	LatencyMS            int64                       `json:"latencyMs"`
	Success              bool                        `json:"success"`
	LLMUsed              bool                        `json:"llmUsed"`
}

// Extractor sequences pattern matching, LLM analysis, clustering, and
// role extraction over one batch of messages.
type Extractor struct {
	patterns  patterns.Analyzer
	gate      *gate.Gate
	registry  *prompt.Registry
	contacts  service.ContactsSource
	newClient func(llm.Config) (llm.Client, error)
	logger    *slog.Logger
	weights   Weights
}

// Config holds the optional collaborators of an Extractor.
type Config struct {
	// Contacts grounds role extraction when the caller passes no
	// explicit contact list.
	Contacts service.ContactsSource

	// NewClient builds the provider client for a run. Defaults to
	// llm.NewClient.
	NewClient func(llm.Config) (llm.Client, error)

	Logger  *slog.Logger
	Weights Weights
}

// New creates an extractor with default configuration. The analyzer may
// be nil when no pattern matcher is available; runs then skip the
// pattern stage.
func New(analyzer patterns.Analyzer, g *gate.Gate, registry *prompt.Registry) *Extractor {
	return NewWithConfig(analyzer, g, registry, Config{})
}

// NewWithConfig creates an extractor with custom configuration.
func NewWithConfig(analyzer patterns.Analyzer, g *gate.Gate, registry *prompt.Registry, cfg Config) *Extractor {
	if cfg.NewClient == nil {
		cfg.NewClient = llm.NewClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Extractor{
		patterns:  analyzer,
		gate:      g,
		registry:  registry,
		contacts:  cfg.Contacts,
		newClient: cfg.NewClient,
		logger:    cfg.Logger,
		weights:   cfg.Weights.normalized(),
	}
}

// Extract runs the full pipeline over one batch. It never fails under
// normal operation: entitlement denials and provider failures degrade to
// the pattern baseline. A panic anywhere inside the run is caught here,
// once, and the whole batch is retried in forced pattern-only mode; only
// a failure of that retry surfaces as an error.
func (e *Extractor) Extract(ctx context.Context, messages []model.Message, existing []model.DetectedTransaction, contacts []model.Contact, opts Options) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked, retrying in pattern-only mode",
				"panic", fmt.Sprint(r),
				"messages", len(messages))
			res, err = e.retryPatternOnly(ctx, messages, existing, contacts, opts,
				fmt.Sprintf("extraction panicked: %v", r))
		}
	}()
	return e.run(ctx, messages, existing, contacts, opts)
}

// retryPatternOnly is the last-resort path after a panic. A second panic
// means even the deterministic pipeline is broken, and that does surface
// as an error.
func (e *Extractor) retryPatternOnly(ctx context.Context, messages []model.Message, existing []model.DetectedTransaction, contacts []model.Contact, opts Options, reason string) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("pattern-only retry panicked: %v", r)
		}
	}()

	res, err = e.run(ctx, messages, existing, contacts, opts.patternOnly())
	if res != nil && res.LLMError == "" {
		res.LLMError = reason
	}
	return res, err
}

func (e *Extractor) run(ctx context.Context, messages []model.Message, existing []model.DetectedTransaction, contacts []model.Contact, opts Options) (*Result, error) {
	start := time.Now()
	opts = opts.withDefaults()

	run, err := e.openLLM(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer run.close()

	e.logger.Info("extraction started",
		"user_id", opts.UserID,
		"messages", len(messages),
		"existing_transactions", len(existing),
		"pattern_matching", e.patternEnabled(opts),
		"llm", run.available())

	analyzed := e.analyzeAll(ctx, run, messages, opts)
	transactions := e.clusterStage(ctx, run, analyzed, existing)
	e.roleStage(ctx, run, transactions, analyzed, contacts, opts)

	tokens, successes, errMsg := run.snapshot()
	method := runMethod(e.patternEnabled(opts), successes)
	for i := range transactions {
		transactions[i].Method = method
	}
	if transactions == nil {
		transactions = []model.DetectedTransaction{}
	}

	e.logger.Info("extraction finished",
		"user_id", opts.UserID,
		"method", string(method),
		"transactions", len(transactions),
		"llm_calls_succeeded", successes,
		"tokens_used", tokens,
		"duration", time.Since(start))

	return &Result{
		Success:              true,
		AnalyzedMessages:     analyzed,
		DetectedTransactions: transactions,
		Method:               method,
		LLMUsed:              successes > 0,
		LLMError:             errMsg,
		TokensUsed:           tokens,
		LatencyMS:            time.Since(start).Milliseconds(),
	}, nil
}

// AnalyzeMessages runs only the per-message analysis stage, for callers
// driving the pipeline incrementally.
func (e *Extractor) AnalyzeMessages(ctx context.Context, messages []model.Message, opts Options) ([]model.AnalyzedMessage, error) {
	opts = opts.withDefaults()

	run, err := e.openLLM(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer run.close()

	return e.analyzeAll(ctx, run, messages, opts), nil
}

// ClusterIntoTransactions runs only the clustering stage over already
// analyzed messages.
func (e *Extractor) ClusterIntoTransactions(ctx context.Context, analyzed []model.AnalyzedMessage, existing []model.DetectedTransaction, opts Options) ([]model.DetectedTransaction, error) {
	opts = opts.withDefaults()

	run, err := e.openLLM(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer run.close()

	transactions := e.clusterStage(ctx, run, analyzed, existing)
	_, successes, _ := run.snapshot()
	method := runMethod(e.patternEnabled(opts), successes)
	for i := range transactions {
		transactions[i].Method = method
	}
	if transactions == nil {
		transactions = []model.DetectedTransaction{}
	}
	return transactions, nil
}

// ExtractContactRoles runs only role extraction, returning copies of the
// given transactions with suggested roles attached. Transactions that
// already carry roles keep them.
func (e *Extractor) ExtractContactRoles(ctx context.Context, transactions []model.DetectedTransaction, analyzed []model.AnalyzedMessage, contacts []model.Contact, opts Options) ([]model.DetectedTransaction, error) {
	opts = opts.withDefaults()

	run, err := e.openLLM(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer run.close()

	out := make([]model.DetectedTransaction, len(transactions))
	copy(out, transactions)
	for i := range out {
		if out[i].Roles == nil {
			out[i].Roles = []model.RoleAssignment{}
		}
	}

	e.roleStage(ctx, run, out, analyzed, contacts, opts)
	return out, nil
}

func (e *Extractor) patternEnabled(opts Options) bool {
	return opts.UsePatternMatching && e.patterns != nil
}

// runMethod derives the run-level extraction method: hybrid needs both
// the pattern baseline and at least one successful LLM call, and a run
// without any successful LLM call is pattern regardless of intent.
func runMethod(patternRan bool, llmSuccesses int) model.ExtractionMethod {
	switch {
	case patternRan && llmSuccesses > 0:
		return model.MethodHybrid
	case llmSuccesses > 0:
		return model.MethodLLM
	default:
		return model.MethodPattern
	}
}
