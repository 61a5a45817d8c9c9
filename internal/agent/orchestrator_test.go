package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/service/knowledge"
	"github.com/zhouzirui/lifeline/backend/internal/service/llm"
	"github.com/zhouzirui/lifeline/backend/internal/service/tools"
)

const premiumQuestion = "Calculate premium for a 35 year old, $500k coverage, 20 year term, non-smoker"

func testToolsConfig() config.ToolsConfig {
	return config.ToolsConfig{
		DefaultAge:       30,
		DefaultCoverage:  250000,
		DefaultTerm:      20,
		PremiumBaseRate:  0.05,
		SmokerMultiplier: 2.5,
		PremiumFormula:   "(coverage / 1000) * base_rate * smoker_factor",
		CriteriaK:        3,
	}
}

type pipeline struct {
	orchestrator *Orchestrator
	retriever    *stubRetriever
}

// newPipeline wires the real stages and tools around gw.
func newPipeline(t *testing.T, gw llm.Gateway, observer Observer) pipeline {
	t.Helper()
	ctx := context.Background()
	r := &stubRetriever{passages: samplePassages()}
	cfg := testToolsConfig()

	premium, err := tools.NewPremiumCalculator(gw, r, cfg, nil)
	require.NoError(t, err)
	eligibility := tools.NewEligibilityAssessor(gw, r, cfg, nil)
	comparator := tools.NewKnowledgeComparator(r, 3)

	classifier, err := NewIntentClassifier(ctx, gw, 0.1, nil)
	require.NoError(t, err)
	selector, err := NewToolSelector(ctx, gw, 0.1, nil)
	require.NoError(t, err)
	generator, err := NewResponseGenerator(ctx, gw, nil, nil, 4, nil)
	require.NoError(t, err)

	o, err := NewOrchestrator(Stages{
		Classifier: classifier,
		Retriever:  NewContextRetriever(r, nil, 3, 2, nil),
		Selector:   selector,
		Executor: NewToolExecutor(premium, eligibility, comparator,
			Defaults{Age: cfg.DefaultAge, Coverage: cfg.DefaultCoverage, Term: cfg.DefaultTerm}, nil, nil),
		Generator: generator,
	}, observer, nil)
	require.NoError(t, err)
	return pipeline{orchestrator: o, retriever: r}
}

type eventLog struct {
	mu       sync.Mutex
	started  int
	stages   []Stage
	finished []Result
}

func (e *eventLog) TurnStarted(ctx context.Context, _, _ string) context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started++
	return ctx
}

func (e *eventLog) StageCompleted(_ context.Context, ev StageEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stages = append(e.stages, ev.Stage)
}

func (e *eventLog) TurnFinished(_ context.Context, res Result, _ time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = append(e.finished, res)
}

func TestScenarioPolicyTypesAnsweredFromContext(t *testing.T) {
	gw := &scriptedGateway{replies: map[string]string{
		markIntent:   "POLICY_TYPES",
		markToolNeed: "NO",
		markAnswer:   "There are term, whole, universal and variable policies.",
	}}
	events := &eventLog{}
	p := newPipeline(t, gw, events)

	res := p.orchestrator.ProcessMessage(context.Background(), "What types of life insurance are available?", "")

	assert.True(t, res.Success)
	assert.Equal(t, PolicyTypes, res.Intent)
	assert.Empty(t, res.ToolsUsed)
	assert.Equal(t, "Intent: POLICY_TYPES", res.Reasoning)
	assert.Equal(t, "There are term, whole, universal and variable policies.", res.Answer)
	assert.Equal(t, []string{"policy_types.md", "premiums.md"}, res.Sources)
	assert.NotContains(t, gw.promptFor(markAnswer), "Tool Results")
	assert.Empty(t, gw.promptFor(markPremium))

	assert.Equal(t, 1, events.started)
	assert.Equal(t, []Stage{StageIntentClassified, StageContextRetrieved, StageAnswerGenerated}, events.stages)
	require.Len(t, events.finished, 1)
	assert.Equal(t, res, events.finished[0])
}

func TestScenarioPremiumCalculation(t *testing.T) {
	gw := &scriptedGateway{replies: map[string]string{
		markIntent:   "PREMIUMS",
		markToolNeed: "YES",
		markPremium:  "Here you go:\n{\"monthly_premium\": 31.33, \"annual_premium\": 1, \"explanation\": \"age 35 standard\"}",
		markAnswer:   "Your estimated premium is $31.33 per month.",
	}}
	events := &eventLog{}
	p := newPipeline(t, gw, events)

	res := p.orchestrator.ProcessMessage(context.Background(), premiumQuestion, "")

	assert.True(t, res.Success)
	assert.Equal(t, Premiums, res.Intent)
	assert.Equal(t, []string{ToolPremiumEstimate}, res.ToolsUsed)
	assert.Equal(t, "Intent: PREMIUMS | Tools Used: premium_estimate", res.Reasoning)

	premiumPrompt := gw.promptFor(markPremium)
	assert.Contains(t, premiumPrompt, "- Age: 35 years")
	assert.Contains(t, premiumPrompt, "- Coverage Amount: $500,000")
	assert.Contains(t, premiumPrompt, "- Term Length: 20 years")
	assert.Contains(t, premiumPrompt, "- Smoker: No")

	answerPrompt := gw.promptFor(markAnswer)
	assert.Contains(t, answerPrompt, "PREMIUM_ESTIMATE:")
	assert.Contains(t, answerPrompt, `"monthly_premium": 31.33`)
	assert.Contains(t, answerPrompt, `"annual_premium": 375.96`)
	assert.Contains(t, answerPrompt, `"total_term_cost": 7519.2`)

	assert.Equal(t, []Stage{StageIntentClassified, StageContextRetrieved, StageToolsExecuted, StageAnswerGenerated}, events.stages)
}

func TestScenarioEligibilityWithCondition(t *testing.T) {
	gw := &scriptedGateway{replies: map[string]string{
		markIntent:      "ELIGIBILITY",
		markToolNeed:    "YES",
		markEligibility: `{"eligibility": "moderate", "likely_approved": true, "issues": ["diabetes"], "recommendations": ["Keep A1C records"], "reasoning": "Controlled diabetes is insurable."}`,
		markAnswer:      "Yes, many insurers cover people with diabetes.",
	}}
	p := newPipeline(t, gw, nil)

	res := p.orchestrator.ProcessMessage(context.Background(), "Can I get insurance if I have diabetes?", "")

	assert.True(t, res.Success)
	assert.Equal(t, Eligibility, res.Intent)
	assert.Equal(t, []string{ToolEligibility}, res.ToolsUsed)
	assert.Contains(t, gw.promptFor(markEligibility), "- Health Conditions: diabetes")
	assert.Contains(t, gw.promptFor(markAnswer), `"eligibility": "Moderate"`)
}

func TestScenarioGatewayDownStillAnswers(t *testing.T) {
	events := &eventLog{}
	p := newPipeline(t, failingGateway(), events)

	var res Result
	require.NotPanics(t, func() {
		res = p.orchestrator.ProcessMessage(context.Background(), premiumQuestion, "s-unknown")
	})

	assert.True(t, res.Success)
	assert.Equal(t, GenerationFailed, res.Answer)
	assert.Equal(t, General, res.Intent)
	assert.Equal(t, []string{ToolPremiumEstimate}, res.ToolsUsed)
	assert.Equal(t, "Intent: GENERAL | Tools Used: premium_estimate", res.Reasoning)
	assert.NotEmpty(t, res.Sources)
	require.Len(t, events.finished, 1)
}

func TestPremiumFallbackIdentitiesThroughExecutor(t *testing.T) {
	r := &stubRetriever{}
	premium, err := tools.NewPremiumCalculator(failingGateway(), r, testToolsConfig(), nil)
	require.NoError(t, err)
	x := NewToolExecutor(premium, nil, nil, testDefaults(), nil, nil)

	for _, q := range []string{
		premiumQuestion,
		"calculate for a 52 year old smoker, $1200k coverage, 30 year term",
		"calculate something",
	} {
		est := x.Execute(context.Background(), q).Premium
		require.NotNil(t, est, q)
		term := Extract(q, KindTerm, 20)
		assert.InDelta(t, est.MonthlyPremium*12, est.AnnualPremium, 0.01, q)
		assert.InDelta(t, est.AnnualPremium*float64(term), est.TotalTermCost, 0.01, q)
	}
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(context.Context, string, string, ToolResults, string) string {
	panic("generator exploded")
}

type fixedStages struct{ useTools bool }

func (fixedStages) Classify(context.Context, string) Category { return Claims }
func (fixedStages) Retrieve(context.Context, string, Category, string) string {
	return "[Source 1: claims.md]\nFile within 30 days.\n\n[Source 2: claims.md]\nBring a death certificate.\n"
}
func (f fixedStages) ShouldUseTools(context.Context, string, Category) bool { return f.useTools }
func (fixedStages) Execute(context.Context, string) ToolResults                { return ToolResults{} }
func (fixedStages) Generate(context.Context, string, string, ToolResults, string) string {
	return "answer"
}

func TestOrchestratorBoundaryReportsFailure(t *testing.T) {
	events := &eventLog{}
	f := fixedStages{}
	o, err := NewOrchestrator(Stages{Classifier: f, Retriever: f, Selector: f, Executor: f, Generator: panickingGenerator{}}, events, nil)
	require.NoError(t, err)

	res := o.ProcessMessage(context.Background(), "How do I file a claim?", "s1")
	assert.False(t, res.Success)
	assert.Equal(t, TurnFailed, res.Answer)
	assert.Empty(t, res.Sources)
	assert.Equal(t, "Error: generator exploded", res.Reasoning)
	require.Len(t, events.finished, 1)
	assert.False(t, events.finished[0].Success)
}

type explodingObserver struct {
	onStart, onFinish bool
}

func (e explodingObserver) TurnStarted(ctx context.Context, _, _ string) context.Context {
	if e.onStart {
		panic("observer exploded")
	}
	return ctx
}

func (explodingObserver) StageCompleted(context.Context, StageEvent) {}

func (e explodingObserver) TurnFinished(context.Context, Result, time.Duration) {
	if e.onFinish {
		panic("observer exploded")
	}
}

func TestOrchestratorContainsObserverPanics(t *testing.T) {
	f := fixedStages{}
	o, err := NewOrchestrator(Stages{Classifier: f, Retriever: f, Selector: f, Executor: f, Generator: f}, nil, nil)
	require.NoError(t, err)

	t.Run("turn started", func(t *testing.T) {
		events := &eventLog{}
		var res Result
		require.NotPanics(t, func() {
			res = o.ProcessMessage(context.Background(), "q", "s1", WithObserver(explodingObserver{onStart: true}), WithObserver(events))
		})
		assert.False(t, res.Success)
		assert.Equal(t, TurnFailed, res.Answer)
		assert.Equal(t, "Error: observer exploded", res.Reasoning)
		require.Len(t, events.finished, 1)
		assert.False(t, events.finished[0].Success)
	})

	t.Run("turn finished", func(t *testing.T) {
		var res Result
		require.NotPanics(t, func() {
			res = o.ProcessMessage(context.Background(), "q", "s1", WithObserver(explodingObserver{onFinish: true}))
		})
		assert.True(t, res.Success)
		assert.Equal(t, "Intent: CLAIMS", res.Reasoning)
	})
}

func TestOrchestratorEmptyToolRunStillReportsStage(t *testing.T) {
	f := fixedStages{useTools: true}
	turn := &eventLog{}
	o, err := NewOrchestrator(Stages{Classifier: f, Retriever: f, Selector: f, Executor: f, Generator: f}, nil, nil)
	require.NoError(t, err)

	res := o.ProcessMessage(context.Background(), "q", "", WithObserver(turn))
	assert.True(t, res.Success)
	assert.Equal(t, "Intent: CLAIMS", res.Reasoning)
	assert.Equal(t, []string{"claims.md"}, res.Sources)
	assert.Contains(t, turn.stages, StageToolsExecuted)
}

func TestNewOrchestratorRequiresStages(t *testing.T) {
	f := fixedStages{}
	_, err := NewOrchestrator(Stages{Classifier: f, Retriever: f, Selector: f, Executor: f}, nil, nil)
	assert.Error(t, err)
}

func TestOrchestratorConcurrentTurns(t *testing.T) {
	gw := &scriptedGateway{replies: map[string]string{
		markIntent:   "COVERAGE",
		markToolNeed: "NO",
		markAnswer:   "Coverage depends on your needs.",
	}}
	p := newPipeline(t, gw, nil)

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.orchestrator.ProcessMessage(context.Background(), "How much coverage do I need?", "")
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.True(t, res.Success)
		assert.Equal(t, Coverage, res.Intent)
	}
}

func TestExtractSources(t *testing.T) {
	ctx := knowledge.FormatContext(samplePassages())
	assert.Equal(t, []string{"policy_types.md", "premiums.md"}, ExtractSources(ctx))
	assert.Empty(t, ExtractSources(NoInformationFound))
}
