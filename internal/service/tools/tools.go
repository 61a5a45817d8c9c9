// Package tools implements the premium, eligibility and comparison helpers the
// assistant runs for calculation-style questions.
package tools

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// Eligibility statuses.
const (
	StatusGood        = "Good"
	StatusModerate    = "Moderate"
	StatusChallenging = "Challenging"
)

type PremiumRequest struct {
	Age          int
	Coverage     int
	Term         int
	Smoker       bool
	HealthRating string
}

type PremiumFactors struct {
	Age            int    `json:"age"`
	CoverageAmount string `json:"coverage_amount"`
	TermLength     string `json:"term_length"`
	SmokerStatus   string `json:"smoker_status"`
	HealthRating   string `json:"health_rating"`
}

type PremiumEstimate struct {
	MonthlyPremium float64        `json:"monthly_premium"`
	AnnualPremium  float64        `json:"annual_premium"`
	TotalTermCost  float64        `json:"total_term_cost"`
	Factors        PremiumFactors `json:"factors"`
	Explanation    string         `json:"explanation,omitempty"`
	Note           string         `json:"note"`
}

type EligibilityRequest struct {
	Age              int
	HealthConditions []string
	Smoker           bool
	Occupation       string
	Coverage         int
}

type EligibilityAssessment struct {
	Status           string   `json:"eligibility"`
	LikelyApproved   bool     `json:"likely_approved"`
	Issues           []string `json:"issues"`
	Recommendations  []string `json:"recommendations"`
	Reasoning        string   `json:"reasoning,omitempty"`
	SuggestedActions []string `json:"suggested_actions"`
}

type PolicyComparison struct {
	Comparison string   `json:"comparison"`
	Sources    []string `json:"sources"`
}

type PremiumEstimator interface {
	Estimate(ctx context.Context, req PremiumRequest) (*PremiumEstimate, error)
}

type EligibilityChecker interface {
	Check(ctx context.Context, req EligibilityRequest) (*EligibilityAssessment, error)
}

type PolicyComparator interface {
	Compare(ctx context.Context, policyTypes []string) (*PolicyComparison, error)
}

// Render formats a tool record for inclusion in a prompt.
func Render(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(raw)
}

// extractJSON returns the text between the first '{' and the last '}'.
func extractJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// formatThousands renders n with comma separators, e.g. 500000 -> "500,000".
func formatThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
