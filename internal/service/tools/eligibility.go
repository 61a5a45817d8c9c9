package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/service/knowledge"
	"github.com/zhouzirui/lifeline/backend/internal/service/llm"
)

const eligibilityCriteriaQuery = "life insurance eligibility criteria risk assessment health conditions age requirements"

var (
	suggestedActions = []string{
		"Get quotes from multiple insurers",
		"Prepare medical records and documentation",
		"Consider working with an independent insurance broker",
		"Review different policy types for your situation",
	}
	fallbackRecommendation = "Consult with an insurance agent for detailed assessment"
)

// EligibilityAssessor runs an underwriting-style assessment through the model.
// An unusable reply yields a neutral Moderate assessment.
type EligibilityAssessor struct {
	gateway         llm.Gateway
	retriever       knowledge.Retriever
	template        prompt.ChatTemplate
	defaultCoverage int
	criteriaK       int
	log             *zap.Logger
}

func NewEligibilityAssessor(gw llm.Gateway, r knowledge.Retriever, cfg config.ToolsConfig, log *zap.Logger) *EligibilityAssessor {
	return &EligibilityAssessor{
		gateway:         gw,
		retriever:       r,
		template:        newEligibilityTemplate(),
		defaultCoverage: cfg.DefaultCoverage,
		criteriaK:       4,
		log:             logger.OrNop(log).Named("tools.eligibility"),
	}
}

type eligibilityReply struct {
	Eligibility     string   `json:"eligibility"`
	LikelyApproved  *bool    `json:"likely_approved"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	Reasoning       string   `json:"reasoning"`
}

func (e *EligibilityAssessor) Check(ctx context.Context, req EligibilityRequest) (*EligibilityAssessment, error) {
	if req.Occupation == "" {
		req.Occupation = "standard"
	}
	if req.Coverage <= 0 {
		req.Coverage = e.defaultCoverage
	}

	reply, ok := e.askModel(ctx, req)
	if !ok {
		return &EligibilityAssessment{
			Status:           StatusModerate,
			LikelyApproved:   true,
			Issues:           []string{},
			Recommendations:  []string{fallbackRecommendation},
			SuggestedActions: append([]string(nil), suggestedActions[:2]...),
		}, nil
	}

	out := &EligibilityAssessment{
		Status:           normalizeStatus(reply.Eligibility),
		LikelyApproved:   true,
		Issues:           nonNil(reply.Issues),
		Recommendations:  nonNil(reply.Recommendations),
		Reasoning:        reply.Reasoning,
		SuggestedActions: append([]string(nil), suggestedActions...),
	}
	if reply.LikelyApproved != nil {
		out.LikelyApproved = *reply.LikelyApproved
	}
	return out, nil
}

func (e *EligibilityAssessor) askModel(ctx context.Context, req EligibilityRequest) (eligibilityReply, bool) {
	if e.gateway == nil {
		return eligibilityReply{}, false
	}
	crit := searchCriteria(ctx, e.retriever, eligibilityCriteriaQuery, e.criteriaK, e.log)

	conditions := "none reported"
	if len(req.HealthConditions) > 0 {
		conditions = strings.Join(req.HealthConditions, ", ")
	}

	msgs, err := e.template.Format(ctx, map[string]any{
		"criteria":   crit.context,
		"age":        req.Age,
		"conditions": conditions,
		"smoker":     yesNo(req.Smoker),
		"occupation": req.Occupation,
		"coverage":   formatThousands(req.Coverage),
	})
	if err != nil {
		e.log.Error("failed to render eligibility prompt", zap.Error(err))
		return eligibilityReply{}, false
	}

	raw, err := e.gateway.Invoke(ctx, msgs)
	if err != nil {
		e.log.Warn("eligibility model call failed", zap.Error(err))
		return eligibilityReply{}, false
	}
	payload, ok := extractJSON(raw)
	if !ok {
		e.log.Warn("eligibility reply had no JSON")
		return eligibilityReply{}, false
	}
	var reply eligibilityReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		e.log.Warn("eligibility reply was not valid JSON", zap.Error(err))
		return eligibilityReply{}, false
	}
	return reply, true
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good":
		return StatusGood
	case "challenging":
		return StatusChallenging
	default:
		return StatusModerate
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
