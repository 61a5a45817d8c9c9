package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/Knetic/govaluate"
	"github.com/cloudwego/eino/components/prompt"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/service/knowledge"
	"github.com/zhouzirui/lifeline/backend/internal/service/llm"
)

const (
	notePremiumLLM      = "This is an estimate based on industry standards. Actual premiums may vary."
	notePremiumFallback = "This is a basic estimate. Actual premiums may vary based on detailed underwriting."
	defaultHealthRating = "standard"
)

// PremiumCalculator asks the model to apply rating criteria from the knowledge
// base and falls back to the configured formula when the model is unavailable
// or returns nothing usable. Annual and total cost are always derived from the
// monthly figure.
type PremiumCalculator struct {
	gateway   llm.Gateway
	retriever knowledge.Retriever
	template  prompt.ChatTemplate
	formula   *govaluate.EvaluableExpression
	baseRate  float64
	smokerMul float64
	criteriaK int
	log       *zap.Logger
}

func NewPremiumCalculator(gw llm.Gateway, r knowledge.Retriever, cfg config.ToolsConfig, log *zap.Logger) (*PremiumCalculator, error) {
	formula, err := govaluate.NewEvaluableExpression(cfg.PremiumFormula)
	if err != nil {
		return nil, fmt.Errorf("parse premium formula: %w", err)
	}
	k := cfg.CriteriaK
	if k < 1 {
		k = 3
	}
	return &PremiumCalculator{
		gateway:   gw,
		retriever: r,
		template:  newPremiumTemplate(),
		formula:   formula,
		baseRate:  cfg.PremiumBaseRate,
		smokerMul: cfg.SmokerMultiplier,
		criteriaK: k,
		log:       logger.OrNop(log).Named("tools.premium"),
	}, nil
}

type premiumReply struct {
	MonthlyPremium float64 `json:"monthly_premium"`
	Explanation    string  `json:"explanation"`
}

func (p *PremiumCalculator) Estimate(ctx context.Context, req PremiumRequest) (*PremiumEstimate, error) {
	if req.Coverage < 0 || req.Term < 0 || req.Age < 0 {
		return nil, fmt.Errorf("invalid premium request: %+v", req)
	}
	if req.HealthRating == "" {
		req.HealthRating = defaultHealthRating
	}
	factors := PremiumFactors{
		Age:            req.Age,
		CoverageAmount: "$" + formatThousands(req.Coverage),
		TermLength:     fmt.Sprintf("%d years", req.Term),
		SmokerStatus:   "Non-smoker",
		HealthRating:   req.HealthRating,
	}
	if req.Smoker {
		factors.SmokerStatus = "Smoker"
	}

	if reply, ok := p.askModel(ctx, req); ok {
		return p.build(reply.MonthlyPremium, req.Term, factors, reply.Explanation, notePremiumLLM), nil
	}

	monthly, err := p.formulaMonthly(req)
	if err != nil {
		return nil, err
	}
	return p.build(monthly, req.Term, factors, "", notePremiumFallback), nil
}

func (p *PremiumCalculator) askModel(ctx context.Context, req PremiumRequest) (premiumReply, bool) {
	if p.gateway == nil {
		return premiumReply{}, false
	}
	query := fmt.Sprintf("premium rating factors for age %d, term %d years, health rating %s, smoker status %t",
		req.Age, req.Term, req.HealthRating, req.Smoker)
	crit := searchCriteria(ctx, p.retriever, query, p.criteriaK, p.log)

	msgs, err := p.template.Format(ctx, map[string]any{
		"criteria":      crit.context,
		"age":           req.Age,
		"coverage":      formatThousands(req.Coverage),
		"term":          req.Term,
		"smoker":        yesNo(req.Smoker),
		"health_rating": req.HealthRating,
		"base_rate":     strconv.FormatFloat(p.baseRate, 'f', -1, 64),
	})
	if err != nil {
		p.log.Error("failed to render premium prompt", zap.Error(err))
		return premiumReply{}, false
	}

	raw, err := p.gateway.Invoke(ctx, msgs)
	if err != nil {
		p.log.Warn("premium model call failed, using formula", zap.Error(err))
		return premiumReply{}, false
	}

	payload, ok := extractJSON(raw)
	if !ok {
		p.log.Warn("premium reply had no JSON, using formula")
		return premiumReply{}, false
	}
	var reply premiumReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		p.log.Warn("premium reply was not valid JSON, using formula", zap.Error(err))
		return premiumReply{}, false
	}
	if reply.MonthlyPremium <= 0 || math.IsNaN(reply.MonthlyPremium) || math.IsInf(reply.MonthlyPremium, 0) {
		p.log.Warn("premium reply out of range, using formula", zap.Float64("monthly", reply.MonthlyPremium))
		return premiumReply{}, false
	}
	return reply, true
}

func (p *PremiumCalculator) formulaMonthly(req PremiumRequest) (float64, error) {
	smokerFactor := 1.0
	if req.Smoker {
		smokerFactor = p.smokerMul
	}
	out, err := p.formula.Evaluate(map[string]interface{}{
		"coverage":      float64(req.Coverage),
		"base_rate":     p.baseRate,
		"smoker_factor": smokerFactor,
		"age":           float64(req.Age),
		"term":          float64(req.Term),
	})
	if err != nil {
		return 0, fmt.Errorf("evaluate premium formula: %w", err)
	}
	monthly, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("premium formula returned %T", out)
	}
	return math.Max(monthly, 0), nil
}

func (p *PremiumCalculator) build(monthly float64, term int, factors PremiumFactors, explanation, note string) *PremiumEstimate {
	monthly = roundCents(monthly)
	annual := roundCents(monthly * 12)
	return &PremiumEstimate{
		MonthlyPremium: monthly,
		AnnualPremium:  annual,
		TotalTermCost:  roundCents(annual * float64(term)),
		Factors:        factors,
		Explanation:    explanation,
		Note:           note,
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
