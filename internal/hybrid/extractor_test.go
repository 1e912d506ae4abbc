package hybrid

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockboxhq/lockbox/internal/common"
	"github.com/lockboxhq/lockbox/internal/gate"
	"github.com/lockboxhq/lockbox/internal/llm"
	"github.com/lockboxhq/lockbox/internal/model"
	"github.com/lockboxhq/lockbox/internal/patterns"
	"github.com/lockboxhq/lockbox/internal/prompt"
)

// scriptedClient plays back canned responses keyed by the system prompt
// of the incoming request, which identifies the calling tool.
type scriptedClient struct {
	mu       sync.Mutex
	handlers map[string]func(llm.Request) (*llm.Response, error)
	failure  error
	requests []llm.Request
	calls    int
	closed   bool
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{handlers: make(map[string]func(llm.Request) (*llm.Response, error))}
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.calls++
	c.requests = append(c.requests, req)
	failure := c.failure
	handler := c.handlers[req.System]
	c.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if handler == nil {
		return nil, &llm.ProviderError{Provider: "scripted", Kind: llm.KindBadResponse, Err: errors.New("no scripted handler")}
	}
	return handler(req)
}

func (c *scriptedClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptedClient) respond(system string, handler func(llm.Request) (*llm.Response, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[system] = handler
}

func (c *scriptedClient) respondJSON(system, content string, tokens int64) {
	c.respond(system, func(llm.Request) (*llm.Response, error) {
		return textResponse(content, tokens), nil
	})
}

func (c *scriptedClient) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = err
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *scriptedClient) wasClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *scriptedClient) requestsFor(system string) []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []llm.Request
	for _, req := range c.requests {
		if req.System == system {
			out = append(out, req)
		}
	}
	return out
}

func textResponse(content string, tokens int64) *llm.Response {
	return &llm.Response{Content: content, Model: "test-model", TokensUsed: tokens}
}

// memConfigStore is a threadsafe in-memory gate.ConfigStore.
type memConfigStore struct {
	mu      sync.Mutex
	configs map[string]*model.UserConfig
}

func (s *memConfigStore) GetUserConfig(_ context.Context, userID string) (*model.UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (s *memConfigStore) SaveUserConfig(_ context.Context, cfg *model.UserConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configs == nil {
		s.configs = make(map[string]*model.UserConfig)
	}
	cp := *cfg
	s.configs[cfg.UserID] = &cp
	return nil
}

func (s *memConfigStore) AddUsage(_ context.Context, userID string, tokens int64, fromAllowance bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[userID]
	if !ok {
		return common.ErrNotFound
	}
	cfg.TokensUsed += tokens
	if fromAllowance {
		cfg.PlatformAllowance -= tokens
		if cfg.PlatformAllowance < 0 {
			cfg.PlatformAllowance = 0
		}
	}
	return nil
}

// memCredStore is a threadsafe in-memory gate.CredentialStore.
type memCredStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func (s *memCredStore) Get(_ context.Context, userID, provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[userID+"/"+provider], nil
}

func (s *memCredStore) Set(_ context.Context, userID, provider, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]string)
	}
	s.keys[userID+"/"+provider] = key
	return nil
}

type extractorEnv struct {
	extractor    *Extractor
	client       *scriptedClient
	configs      *memConfigStore
	creds        *memCredStore
	gate         *gate.Gate
	factoryCalls int
}

func newTestRegistry(t *testing.T) *prompt.Registry {
	t.Helper()
	reg := prompt.NewRegistry(nil)
	for name, content := range map[string]string{
		prompt.MessageAnalysis:       "analysis-system",
		prompt.TransactionClustering: "clustering-system",
		prompt.ContactRoles:          "roles-system",
	} {
		_, err := reg.Register(name, "1.0.0", content)
		require.NoError(t, err)
	}
	return reg
}

func newEnv(t *testing.T, analyzer patterns.Analyzer) *extractorEnv {
	t.Helper()
	env := &extractorEnv{
		client:  newScriptedClient(),
		configs: &memConfigStore{},
		creds:   &memCredStore{},
	}
	env.gate = gate.New(env.configs, env.creds, gate.Config{})
	env.extractor = NewWithConfig(analyzer, env.gate, newTestRegistry(t), Config{
		NewClient: func(llm.Config) (llm.Client, error) {
			env.factoryCalls++
			return env.client, nil
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return env
}

// grantLLM gives a user everything the gate needs to allow a call.
func (env *extractorEnv) grantLLM(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.gate.RecordConsent(ctx, userID, true))
	require.NoError(t, env.creds.Set(ctx, userID, llm.ProviderAnthropic, "sk-ant-REDACTED"))
}

func mainStMessages() []model.Message {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mk := func(id, subject, body string, day int) model.Message {
		return model.Message{
			ID:         id,
			Subject:    subject,
			Sender:     "agent@example.com",
			Recipients: []string{"buyer@example.com"},
			Body:       body,
			Timestamp:  base.AddDate(0, 0, day),
		}
	}
	return []model.Message{
		mk("m1", "Offer for 123 Main St", "We would like to submit an offer for 123 Main St at $450,000.", 0),
		mk("m2", "Re: Offer for 123 Main St", "The seller will review the offer for 123 Main St today.", 1),
		mk("m3", "Inspection at 123 Main Street", "Scheduling the inspection at 123 Main Street for Friday.", 2),
		mk("m4", "Counter offer - 123 Main St", "Counter offer received for 123 Main St: $462,000.", 3),
		mk("m5", "Appraisal for 123 Main Street", "The appraisal for 123 Main Street came back at value.", 4),
		mk("m6", "Closing date for 123 Main St", "Closing for 123 Main St is set for April 12.", 5),
		mk("m7", "Lunch on Tuesday?", "Want to grab lunch on Tuesday?", 0),
		mk("m8", "Quarterly newsletter", "Here is our quarterly newsletter.", 1),
		mk("m9", "Your invoice", "Attached is your invoice for March.", 2),
		mk("m10", "Weekend plans", "Are we still on for the weekend?", 3),
	}
}

func mainStAnalyses() patterns.Static {
	related := func(conf int, addr string) model.PatternAnalysis {
		return model.PatternAnalysis{
			IsRealEstateRelated: true,
			Confidence:          conf,
			Addresses:           []string{addr},
		}
	}
	return patterns.Static{
		"m1": related(80, "123 Main St"),
		"m2": related(75, "123 Main St"),
		"m3": related(90, "123 Main Street"),
		"m4": related(70, "123 Main St"),
		"m5": related(85, "123 Main Street"),
		"m6": related(72, "123 Main St"),
	}
}

// respondHybridSuccess scripts a clean run: six related analyses, one
// cluster, one role.
func respondHybridSuccess(c *scriptedClient) {
	c.respond("analysis-system", func(req llm.Request) (*llm.Response, error) {
		if strings.Contains(req.Prompt, "123 Main S") {
			return textResponse(`{"isRealEstateRelated": true, "confidence": 0.9, "propertyAddress": "123 Main St", "transactionType": "purchase", "stage": "active"}`, 40), nil
		}
		return textResponse(`{"isRealEstateRelated": false, "confidence": 0.2}`, 30), nil
	})
	c.respondJSON("clustering-system", `{"transactions": [{
		"propertyAddress": "123 Main St",
		"transactionType": "purchase",
		"stage": "active",
		"summary": "Purchase of 123 Main St",
		"confidence": 0.85,
		"messageIds": ["m1", "m2", "m3", "m4", "m5", "m6"]
	}]}`, 120)
	c.respondJSON("roles-system", `{"roles": [{
		"name": "Jane Agent",
		"email": "jane@broker.example",
		"role": "listing_agent",
		"confidence": 0.8,
		"evidence": ["signed the listing agreement"]
	}]}`, 90)
}

// assertRelatedOnly checks that no transaction references a message from
// this run whose relatedness flag is false.
func assertRelatedOnly(t *testing.T, res *Result) {
	t.Helper()
	related := make(map[string]bool, len(res.AnalyzedMessages))
	for _, am := range res.AnalyzedMessages {
		related[am.ID] = am.IsRealEstateRelated
	}
	for _, tx := range res.DetectedTransactions {
		for _, id := range tx.CommunicationIDs {
			if r, known := related[id]; known {
				assert.True(t, r, "transaction %s references unrelated message %s", tx.ID, id)
			}
		}
	}
}

func TestExtractPatternOnly(t *testing.T) {
	env := newEnv(t, mainStAnalyses())

	res, err := env.extractor.Extract(context.Background(), mainStMessages(), nil, nil, Options{
		UserID:             "user-1",
		UsePatternMatching: true,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, model.MethodPattern, res.Method)
	assert.False(t, res.LLMUsed)
	assert.Empty(t, res.LLMError)
	assert.Zero(t, res.TokensUsed)
	assert.Zero(t, env.factoryCalls)
	assert.Zero(t, env.client.callCount())

	require.Len(t, res.AnalyzedMessages, 10)
	for _, am := range res.AnalyzedMessages {
		assert.Equal(t, model.MethodPattern, am.Method)
		assert.Nil(t, am.LLM)
	}

	require.Len(t, res.DetectedTransactions, 1)
	tx := res.DetectedTransactions[0]
	assert.Equal(t, "123 Main St", tx.PropertyAddress)
	assert.Len(t, tx.CommunicationIDs, 6)
	assert.Equal(t, model.MethodPattern, tx.Method)
	assert.Equal(t, "6 related messages about 123 Main St", tx.Summary)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), tx.DateRange.Start)
	assert.Equal(t, time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC), tx.DateRange.End)
	assertRelatedOnly(t, res)
}

func TestExtractNothingEnabled(t *testing.T) {
	env := newEnv(t, mainStAnalyses())

	res, err := env.extractor.Extract(context.Background(), mainStMessages(), nil, nil, Options{UserID: "user-1"})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, model.MethodPattern, res.Method)
	assert.Empty(t, res.DetectedTransactions)
	require.Len(t, res.AnalyzedMessages, 10)
	for _, am := range res.AnalyzedMessages {
		assert.Equal(t, model.MethodPattern, am.Method)
		assert.Zero(t, am.Confidence)
		assert.False(t, am.IsRealEstateRelated)
		assert.Nil(t, am.Pattern)
		assert.Nil(t, am.LLM)
	}
}

func TestExtractLLMTotalFailure(t *testing.T) {
	env := newEnv(t, mainStAnalyses())
	env.grantLLM(t, "user-1")
	env.client.failWith(&llm.ProviderError{
		Provider: llm.ProviderAnthropic,
		Kind:     llm.KindNetwork,
		Err:      errors.New("connection refused"),
	})

	res, err := env.extractor.Extract(context.Background(), mainStMessages(), nil, nil, Options{
		UserID:             "user-1",
		UsePatternMatching: true,
		UseLLM:             true,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, model.MethodPattern, res.Method)
	assert.False(t, res.LLMUsed)
	assert.Contains(t, res.LLMError, "connection refused")
	assert.Zero(t, res.TokensUsed)

	require.Len(t, res.DetectedTransactions, 1)
	tx := res.DetectedTransactions[0]
	assert.Equal(t, model.MethodPattern, tx.Method)
	assert.Equal(t, "123 Main St", tx.PropertyAddress)
	assert.Len(t, tx.CommunicationIDs, 6)
	assert.Empty(t, tx.Roles)

	for _, am := range res.AnalyzedMessages {
		assert.Nil(t, am.LLM)
		assert.Equal(t, model.MethodPattern, am.Method)
	}

	assert.True(t, env.client.wasClosed())
	cfg := env.gate.UserConfig(context.Background(), "user-1")
	assert.Zero(t, cfg.TokensUsed, "failed calls consume no tokens")
}

func TestExtractHybrid(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, mainStAnalyses())
	env.grantLLM(t, "user-1")
	respondHybridSuccess(env.client)

	contacts := []model.Contact{{Name: "Jane Agent", Email: "jane@broker.example"}}
	res, err := env.extractor.Extract(ctx, mainStMessages(), nil, contacts, Options{
		UserID:             "user-1",
		UsePatternMatching: true,
		UseLLM:             true,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, model.MethodHybrid, res.Method)
	assert.True(t, res.LLMUsed)
	assert.Empty(t, res.LLMError)

	// m1: pattern 80 and LLM 0.9 merge to 0.6*0.9 + 0.4*0.8.
	first := res.AnalyzedMessages[0]
	assert.Equal(t, "m1", first.ID)
	assert.Equal(t, model.MethodHybrid, first.Method)
	require.NotNil(t, first.LLM)
	assert.InDelta(t, 0.86, first.Confidence, 1e-9)
	assert.True(t, first.IsRealEstateRelated)

	require.Len(t, res.DetectedTransactions, 1)
	tx := res.DetectedTransactions[0]
	assert.Equal(t, model.MethodHybrid, tx.Method)
	assert.Equal(t, "123 Main St", tx.PropertyAddress)
	assert.Equal(t, model.TypePurchase, tx.Type)
	assert.Equal(t, model.StageActive, tx.Stage)
	assert.Len(t, tx.CommunicationIDs, 6)
	require.Len(t, tx.Roles, 1)
	assert.Equal(t, model.RoleListingAgent, tx.Roles[0].Role)
	assert.Equal(t, "Jane Agent", tx.Roles[0].Name)
	assertRelatedOnly(t, res)

	// 6 related analyses at 40, 4 unrelated at 30, clustering 120, roles 90.
	assert.Equal(t, int64(6*40+4*30+120+90), res.TokensUsed)
	cfg := env.gate.UserConfig(ctx, "user-1")
	assert.Equal(t, res.TokensUsed, cfg.TokensUsed, "every completed call is charged")

	roleReqs := env.client.requestsFor("roles-system")
	require.Len(t, roleReqs, 1)
	assert.Contains(t, roleReqs[0].Prompt, "Jane Agent")

	assert.True(t, env.client.wasClosed())
	assert.Equal(t, 1, env.factoryCalls)
}

func TestExtractDeniedSetsLLMError(t *testing.T) {
	env := newEnv(t, mainStAnalyses())
	// No consent recorded for this user.

	res, err := env.extractor.Extract(context.Background(), mainStMessages(), nil, nil, Options{
		UserID:             "user-3",
		UsePatternMatching: true,
		UseLLM:             true,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, "llm unavailable: no_consent", res.LLMError)
	assert.Equal(t, model.MethodPattern, res.Method)
	assert.False(t, res.LLMUsed)
	assert.Zero(t, env.factoryCalls)
	require.Len(t, res.DetectedTransactions, 1)
}

func TestExtractClusteringFallback(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, mainStAnalyses())
	env.grantLLM(t, "user-1")
	respondHybridSuccess(env.client)
	// Clustering answers prose instead of JSON; the tokens are spent
	// regardless.
	env.client.respondJSON("clustering-system", "I could not find any transactions, sorry!", 120)

	res, err := env.extractor.Extract(ctx, mainStMessages(), nil, nil, Options{
		UserID:             "user-1",
		UsePatternMatching: true,
		UseLLM:             true,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, model.MethodHybrid, res.Method, "analysis succeeded, so the run is hybrid")
	assert.NotEmpty(t, res.LLMError)

	require.Len(t, res.DetectedTransactions, 1)
	tx := res.DetectedTransactions[0]
	assert.Equal(t, "123 Main St", tx.PropertyAddress)
	assert.Len(t, tx.CommunicationIDs, 6)
	assert.Equal(t, model.TypePurchase, tx.Type, "fallback keeps the type the analyses agreed on")
	require.Len(t, tx.Roles, 1, "roles still run after a clustering fallback")

	cfg := env.gate.UserConfig(ctx, "user-1")
	assert.Equal(t, res.TokensUsed, cfg.TokensUsed)
	assert.Equal(t, int64(6*40+4*30+120+90), res.TokensUsed, "schema failure tokens are still charged")
}

func TestExtractRoleFailureKeepsTransaction(t *testing.T) {
	env := newEnv(t, mainStAnalyses())
	env.grantLLM(t, "user-1")
	respondHybridSuccess(env.client)
	env.client.respond("roles-system", func(llm.Request) (*llm.Response, error) {
		return nil, &llm.ProviderError{Provider: llm.ProviderAnthropic, Kind: llm.KindTimeout, Err: errors.New("deadline exceeded")}
	})

	res, err := env.extractor.Extract(context.Background(), mainStMessages(), nil, nil, Options{
		UserID:             "user-1",
		UsePatternMatching: true,
		UseLLM:             true,
	})
	require.NoError(t, err)

	assert.Equal(t, model.MethodHybrid, res.Method)
	assert.NotEmpty(t, res.LLMError)
	require.Len(t, res.DetectedTransactions, 1)
	tx := res.DetectedTransactions[0]
	assert.NotNil(t, tx.Roles)
	assert.Empty(t, tx.Roles)
}

func TestExtractExtendsExistingTransaction(t *testing.T) {
	priorStart := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)
	existing := []model.DetectedTransaction{{
		ID:               "tx-1",
		PropertyAddress:  "123 Main Street",
		Summary:          "Purchase of 123 Main St",
		Type:             model.TypePurchase,
		Stage:            model.StageActive,
		Method:           model.MethodHybrid,
		CommunicationIDs: []string{"old-1", "old-2"},
		Roles:            []model.RoleAssignment{{Name: "Jane Agent", Role: model.RoleListingAgent, Confidence: 0.9}},
		Confidence:       0.9,
		DateRange:        model.DateRange{Start: priorStart, End: priorStart},
	}}

	t.Run("fallback matches by normalized address", func(t *testing.T) {
		env := newEnv(t, mainStAnalyses())

		res, err := env.extractor.Extract(context.Background(), mainStMessages(), existing, nil, Options{
			UserID:             "user-1",
			UsePatternMatching: true,
		})
		require.NoError(t, err)

		require.Len(t, res.DetectedTransactions, 1)
		tx := res.DetectedTransactions[0]
		assert.Equal(t, "tx-1", tx.ID)
		assert.Equal(t, "123 Main Street", tx.PropertyAddress)
		assert.Equal(t, "Purchase of 123 Main St", tx.Summary)
		assert.Len(t, tx.CommunicationIDs, 8)
		assert.Equal(t, model.TypePurchase, tx.Type)
		require.Len(t, tx.Roles, 1, "prior roles are preserved")
		assert.Equal(t, priorStart, tx.DateRange.Start)
		assert.Equal(t, time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC), tx.DateRange.End)

		// The caller's slice is untouched.
		assert.Len(t, existing[0].CommunicationIDs, 2)
	})

	t.Run("llm clustering references the known id", func(t *testing.T) {
		env := newEnv(t, mainStAnalyses())
		env.grantLLM(t, "user-1")
		respondHybridSuccess(env.client)
		env.client.respondJSON("clustering-system", `{"transactions": [{
			"existingTransactionId": "tx-1",
			"propertyAddress": "123 Main St",
			"transactionType": "purchase",
			"stage": "closing",
			"summary": "Purchase of 123 Main St, heading to closing",
			"confidence": 0.95,
			"messageIds": ["m1", "m2", "m3", "m4", "m5", "m6"]
		}]}`, 110)

		res, err := env.extractor.Extract(context.Background(), mainStMessages(), existing, nil, Options{
			UserID:             "user-1",
			UsePatternMatching: true,
			UseLLM:             true,
		})
		require.NoError(t, err)

		require.Len(t, res.DetectedTransactions, 1)
		tx := res.DetectedTransactions[0]
		assert.Equal(t, "tx-1", tx.ID)
		assert.Equal(t, model.StageClosing, tx.Stage, "stage follows the newest evidence")
		assert.Equal(t, model.TypePurchase, tx.Type)
		assert.Len(t, tx.CommunicationIDs, 8)
		assert.InDelta(t, 0.95, tx.Confidence, 1e-9)
		require.Len(t, tx.Roles, 1, "prior roles are preserved")
		assert.Empty(t, env.client.requestsFor("roles-system"), "no role call for an already-roled transaction")
	})
}

func TestExtractPanicFallsBackToPatternOnly(t *testing.T) {
	env := newEnv(t, mainStAnalyses())
	env.grantLLM(t, "user-1")
	env.client.respond("analysis-system", func(llm.Request) (*llm.Response, error) {
		panic("scripted explosion")
	})

	res, err := env.extractor.Extract(context.Background(), mainStMessages(), nil, nil, Options{
		UserID:             "user-1",
		UsePatternMatching: true,
		UseLLM:             true,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, model.MethodPattern, res.Method)
	assert.Contains(t, res.LLMError, "panicked")
	require.Len(t, res.DetectedTransactions, 1)
	assert.Len(t, res.DetectedTransactions[0].CommunicationIDs, 6)
	for _, am := range res.AnalyzedMessages {
		assert.Nil(t, am.LLM)
	}
}

type panickyAnalyzer struct{}

func (panickyAnalyzer) Analyze(context.Context, model.Message) (*model.PatternAnalysis, error) {
	panic("broken analyzer")
}

func (panickyAnalyzer) GroupByProperty([]model.AnalyzedMessage) map[string][]model.AnalyzedMessage {
	panic("broken analyzer")
}

func TestExtractPanicTwiceSurfacesError(t *testing.T) {
	env := newEnv(t, panickyAnalyzer{})

	res, err := env.extractor.Extract(context.Background(), mainStMessages(), nil, nil, Options{
		UserID:             "user-1",
		UsePatternMatching: true,
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "retry panicked")
}

func TestExtractReportsProgress(t *testing.T) {
	env := newEnv(t, mainStAnalyses())

	var mu sync.Mutex
	calls := 0
	highest := 0
	res, err := env.extractor.Extract(context.Background(), mainStMessages(), nil, nil, Options{
		UserID:             "user-1",
		UsePatternMatching: true,
		Progress: func(completed, total int) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			assert.Equal(t, 10, total)
			if completed > highest {
				highest = completed
			}
		},
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, calls)
	assert.Equal(t, 10, highest)
}

func TestExtractEmptyBatch(t *testing.T) {
	env := newEnv(t, mainStAnalyses())
	env.grantLLM(t, "user-1")

	res, err := env.extractor.Extract(context.Background(), nil, nil, nil, Options{
		UserID:             "user-1",
		UsePatternMatching: true,
		UseLLM:             true,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Empty(t, res.AnalyzedMessages)
	assert.NotNil(t, res.DetectedTransactions)
	assert.Empty(t, res.DetectedTransactions)
	assert.Zero(t, env.client.callCount(), "no provider calls for an empty batch")
}
