package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/service/tools"
)

var (
	premiumTriggers     = []string{"calculate", "estimate", "cost"}
	eligibilityTriggers = []string{"eligible", "qualify", "can i get"}
	comparisonTriggers  = []string{"compare"}
)

// Defaults are used when a number cannot be extracted from the question.
type Defaults struct {
	Age      int
	Coverage int
	Term     int
}

// ToolRecorder receives one observation per tool invocation.
type ToolRecorder interface {
	RecordTool(tool, outcome string)
}

// ToolExecutor runs the domain tools a question triggers. A failing tool is
// logged and left out of the results.
type ToolExecutor struct {
	premium     tools.PremiumEstimator
	eligibility tools.EligibilityChecker
	comparator  tools.PolicyComparator
	defaults    Defaults
	recorder    ToolRecorder
	log         *zap.Logger
}

func NewToolExecutor(p tools.PremiumEstimator, e tools.EligibilityChecker, c tools.PolicyComparator, d Defaults, rec ToolRecorder, log *zap.Logger) *ToolExecutor {
	return &ToolExecutor{
		premium:     p,
		eligibility: e,
		comparator:  c,
		defaults:    d,
		recorder:    rec,
		log:         logger.OrNop(log).Named("agent.executor"),
	}
}

// ExtractParams reads every tool parameter from the question.
func (x *ToolExecutor) ExtractParams(question string) Params {
	q := strings.ToLower(question)
	return Params{
		Age:              Extract(q, KindAge, x.defaults.Age),
		Coverage:         Extract(q, KindCoverage, x.defaults.Coverage),
		Term:             Extract(q, KindTerm, x.defaults.Term),
		Smoker:           IsSmoker(q),
		Occupation:       Occupation(q),
		HealthConditions: HealthConditions(q),
	}
}

func (x *ToolExecutor) Execute(ctx context.Context, question string) ToolResults {
	q := strings.ToLower(question)
	params := x.ExtractParams(q)
	var results ToolResults

	if containsAny(q, premiumTriggers) && x.premium != nil {
		x.run(ToolPremiumEstimate, func() error {
			est, err := x.premium.Estimate(ctx, tools.PremiumRequest{
				Age:      params.Age,
				Coverage: params.Coverage,
				Term:     params.Term,
				Smoker:   params.Smoker,
			})
			if err == nil {
				results.Premium = est
			}
			return err
		})
	}

	if containsAny(q, eligibilityTriggers) && x.eligibility != nil {
		x.run(ToolEligibility, func() error {
			a, err := x.eligibility.Check(ctx, tools.EligibilityRequest{
				Age:              params.Age,
				HealthConditions: params.HealthConditions,
				Smoker:           params.Smoker,
				Occupation:       params.Occupation,
				Coverage:         params.Coverage,
			})
			if err == nil {
				results.Eligibility = a
			}
			return err
		})
	}

	if containsAny(q, comparisonTriggers) && x.comparator != nil {
		if types := MatchPolicyTypes(q); len(types) >= 2 {
			x.run(ToolComparison, func() error {
				c, err := x.comparator.Compare(ctx, types)
				if err == nil {
					results.Comparison = c
				}
				return err
			})
		} else {
			x.log.Info("comparison skipped, fewer than two policy types", zap.Strings("types", types))
		}
	}

	return results
}

// run invokes fn and turns a panic into an error.
func (x *ToolExecutor) run(name string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()

	outcome := "ok"
	if err != nil {
		outcome = "error"
		x.log.Error("tool failed", zap.String("tool", name), zap.Error(err))
	} else {
		x.log.Info("tool completed", zap.String("tool", name))
	}
	if x.recorder != nil {
		x.recorder.RecordTool(name, outcome)
	}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
