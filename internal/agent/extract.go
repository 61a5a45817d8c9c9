package agent

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind selects the extraction patterns for a number.
type Kind string

const (
	KindAge      Kind = "age"
	KindCoverage Kind = "coverage"
	KindTerm     Kind = "term"
)

// Patterns are tried in order; the first capture wins.
var numberPatterns = map[Kind][]*regexp.Regexp{
	KindAge: {
		regexp.MustCompile(`(\d+)\s*year`),
		regexp.MustCompile(`age\s*(\d+)`),
		regexp.MustCompile(`i'm\s*(\d+)`),
		regexp.MustCompile(`i am\s*(\d+)`),
	},
	KindCoverage: {
		regexp.MustCompile(`\$?(\d+)k`),
		regexp.MustCompile(`\$?(\d+),?\d*,?\d*\s*coverage`),
		regexp.MustCompile(`\$(\d+)`),
	},
	KindTerm: {
		regexp.MustCompile(`(\d+)[\s-]*years?[\s-]+term`),
		regexp.MustCompile(`(\d+)\s*year.*term`),
		regexp.MustCompile(`(\d+)-year`),
	},
}

var (
	occupationPattern = regexp.MustCompile(`(?:work in|occupation|job)(?:\s+(?:is|as))?\s+(\w+)`)
	nonSmokerPattern  = regexp.MustCompile(`non[\s-]?smok|not\s+a\s+smok|never\s+smok|don'?t\s+smok|do\s+not\s+smok`)

	healthConditions = []string{"diabetes", "high blood pressure", "cholesterol", "cancer", "heart disease", "asthma"}
	policyTypes      = []string{"term", "whole", "universal", "variable"}
)

// Extract pulls a number of the given kind from text, or returns def.
// For coverage, the value is multiplied by 1000 whenever the text contains a
// "k" anywhere, not only next to the number.
func Extract(text string, kind Kind, def int) int {
	text = strings.ToLower(text)
	for _, re := range numberPatterns[kind] {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			return def
		}
		if kind == KindCoverage && strings.Contains(text, "k") {
			if n > math.MaxInt/1000 {
				return def
			}
			n *= 1000
		}
		return n
	}
	return def
}

// IsSmoker reports a smoking mention that is not negated.
func IsSmoker(text string) bool {
	text = strings.ToLower(text)
	if !strings.Contains(text, "smok") {
		return false
	}
	return !nonSmokerPattern.MatchString(text)
}

// Occupation returns the word after "work in", "occupation is" or "job as".
func Occupation(text string) string {
	if m := occupationPattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
		return m[1]
	}
	return "standard"
}

// HealthConditions lists the recognized conditions mentioned in text.
func HealthConditions(text string) []string {
	return matchVocabulary(strings.ToLower(text), healthConditions)
}

// MatchPolicyTypes lists the policy types mentioned in text.
func MatchPolicyTypes(text string) []string {
	return matchVocabulary(strings.ToLower(text), policyTypes)
}

func matchVocabulary(text string, vocab []string) []string {
	var out []string
	for _, term := range vocab {
		if strings.Contains(text, term) {
			out = append(out, term)
		}
	}
	return out
}
