package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/lifeline/backend/internal/service/knowledge"
	"github.com/zhouzirui/lifeline/backend/internal/service/llm"
	"github.com/zhouzirui/lifeline/backend/internal/service/tools"
)

var errUnavailable = errors.New("model unavailable")

func failingGateway() llm.Gateway {
	return llm.GatewayFunc(func(context.Context, []*schema.Message, ...llm.Option) (string, error) {
		return "", llm.NewTransient("stub", errUnavailable)
	})
}

func replyGateway(reply string) llm.Gateway {
	return llm.GatewayFunc(func(context.Context, []*schema.Message, ...llm.Option) (string, error) {
		return reply, nil
	})
}

// scriptedGateway answers each prompt by matching a marker in the last message.
type scriptedGateway struct {
	mu      sync.Mutex
	replies map[string]string
	calls   []*schema.Message
	temps   []*float32
}

const (
	markIntent      = "classify it into one of these categories"
	markToolNeed    = "determine if specialized tools are needed"
	markPremium     = "calculate an estimated premium"
	markEligibility = "assess the eligibility for this applicant"
	markAnswer      = "provide a comprehensive and helpful answer"
)

func (g *scriptedGateway) Invoke(_ context.Context, msgs []*schema.Message, opts ...llm.Option) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	last := msgs[len(msgs)-1]
	g.calls = append(g.calls, last)
	g.temps = append(g.temps, llm.ApplyOptions(opts...).Temperature)
	for marker, reply := range g.replies {
		if strings.Contains(last.Content, marker) {
			return reply, nil
		}
	}
	return "", llm.NewFatal("stub", errors.New("unexpected prompt"))
}

func (g *scriptedGateway) promptFor(marker string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.calls {
		if strings.Contains(m.Content, marker) {
			return m.Content
		}
	}
	return ""
}

type stubRetriever struct {
	mu       sync.Mutex
	passages []knowledge.Passage
	err      error
	queries  []string
}

func (s *stubRetriever) Search(_ context.Context, query string, _ int) ([]knowledge.Passage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.passages, s.err
}

func samplePassages() []knowledge.Passage {
	return []knowledge.Passage{
		{Content: "Term life covers a fixed period.", SourceID: "knowledge_base/policy_types.md", Score: 0.9},
		{Content: "Whole life lasts for life.", SourceID: "knowledge_base/policy_types.md", Score: 0.8},
		{Content: "Premiums depend on age.", SourceID: "knowledge_base/premiums.md", Score: 0.7},
	}
}

type recordingTools struct {
	mu          sync.Mutex
	premium     []tools.PremiumRequest
	eligibility []tools.EligibilityRequest
	compared    [][]string
	err         error
	panicOn     string
}

func (r *recordingTools) Estimate(_ context.Context, req tools.PremiumRequest) (*tools.PremiumEstimate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicOn == ToolPremiumEstimate {
		panic("estimator exploded")
	}
	r.premium = append(r.premium, req)
	if r.err != nil {
		return nil, r.err
	}
	return &tools.PremiumEstimate{MonthlyPremium: 25, AnnualPremium: 300, TotalTermCost: 6000}, nil
}

func (r *recordingTools) Check(_ context.Context, req tools.EligibilityRequest) (*tools.EligibilityAssessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eligibility = append(r.eligibility, req)
	if r.err != nil {
		return nil, r.err
	}
	return &tools.EligibilityAssessment{Status: tools.StatusModerate, LikelyApproved: true}, nil
}

func (r *recordingTools) Compare(_ context.Context, types []string) (*tools.PolicyComparison, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compared = append(r.compared, types)
	if r.err != nil {
		return nil, r.err
	}
	return &tools.PolicyComparison{Comparison: "term is cheaper", Sources: []string{"policy_types.md"}}, nil
}

func testDefaults() Defaults {
	return Defaults{Age: 30, Coverage: 250000, Term: 20}
}
