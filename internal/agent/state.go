package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/lifeline/backend/internal/service/tools"
)

// Category is the closed set of question intents.
type Category string

const (
	PolicyTypes Category = "POLICY_TYPES"
	Eligibility Category = "ELIGIBILITY"
	Claims      Category = "CLAIMS"
	Premiums    Category = "PREMIUMS"
	Coverage    Category = "COVERAGE"
	General     Category = "GENERAL"
)

var categories = []Category{PolicyTypes, Eligibility, Claims, Premiums, Coverage, General}

// searchKeywords are appended to retrieval queries for specific intents.
var searchKeywords = map[Category]string{
	PolicyTypes: "policy types",
	Eligibility: "eligibility",
	Claims:      "claims",
	Premiums:    "premiums",
	Coverage:    "coverage",
}

// ParseCategory trims and uppercases raw model output. Anything outside the
// closed set becomes General.
func ParseCategory(raw string) Category {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	if c.Valid() {
		return c
	}
	return General
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Categories lists every intent in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Stage is a position in the turn state machine.
type Stage int

const (
	StageStart Stage = iota
	StageIntentClassified
	StageContextRetrieved
	StageToolsExecuted
	StageAnswerGenerated
	StageEnd
)

var stageNames = map[Stage]string{
	StageStart:            "start",
	StageIntentClassified: "intent_classified",
	StageContextRetrieved: "context_retrieved",
	StageToolsExecuted:    "tools_executed",
	StageAnswerGenerated:  "answer_generated",
	StageEnd:              "end",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Params are the values extracted from a question for the domain tools.
type Params struct {
	Age              int
	Coverage         int
	Term             int
	Smoker           bool
	Occupation       string
	HealthConditions []string
}

// Tool result keys, in reporting order.
const (
	ToolPremiumEstimate = "premium_estimate"
	ToolEligibility     = "eligibility"
	ToolComparison      = "comparison"
)

// ToolResults holds the output of each tool that ran successfully.
type ToolResults struct {
	Premium     *tools.PremiumEstimate       `json:"premium_estimate,omitempty"`
	Eligibility *tools.EligibilityAssessment `json:"eligibility,omitempty"`
	Comparison  *tools.PolicyComparison      `json:"comparison,omitempty"`
}

// Names returns the keys of the populated results in fixed order.
func (t ToolResults) Names() []string {
	var names []string
	t.each(func(name string, _ any) { names = append(names, name) })
	return names
}

func (t ToolResults) Empty() bool {
	return t.Premium == nil && t.Eligibility == nil && t.Comparison == nil
}

func (t ToolResults) each(fn func(name string, v any)) {
	if t.Premium != nil {
		fn(ToolPremiumEstimate, t.Premium)
	}
	if t.Eligibility != nil {
		fn(ToolEligibility, t.Eligibility)
	}
	if t.Comparison != nil {
		fn(ToolComparison, t.Comparison)
	}
}

// ErrFieldAlreadySet is returned when a turn field is written twice.
var ErrFieldAlreadySet = errors.New("turn field already set")

// TurnState carries one question through the pipeline. Each result field is
// written once, in pipeline order.
type TurnState struct {
	question  string
	sessionID string
	stage     Stage

	intent  Category
	context string
	tools   ToolResults
	answer  string

	intentSet, contextSet, toolsSet, answerSet bool
}

func NewTurnState(question, sessionID string) *TurnState {
	return &TurnState{question: question, sessionID: sessionID, stage: StageStart}
}

func (s *TurnState) Question() string   { return s.question }
func (s *TurnState) SessionID() string  { return s.sessionID }
func (s *TurnState) Stage() Stage       { return s.stage }
func (s *TurnState) Intent() Category   { return s.intent }
func (s *TurnState) Context() string    { return s.context }
func (s *TurnState) Tools() ToolResults { return s.tools }
func (s *TurnState) Answer() string     { return s.answer }

func (s *TurnState) SetIntent(c Category) error {
	if s.intentSet {
		return fmt.Errorf("intent: %w", ErrFieldAlreadySet)
	}
	s.intent, s.intentSet = c, true
	return nil
}

func (s *TurnState) SetContext(text string) error {
	if !s.intentSet {
		return errors.New("context set before intent")
	}
	if s.contextSet {
		return fmt.Errorf("context: %w", ErrFieldAlreadySet)
	}
	s.context, s.contextSet = text, true
	return nil
}

func (s *TurnState) SetTools(t ToolResults) error {
	if !s.contextSet {
		return errors.New("tools set before context")
	}
	if s.toolsSet {
		return fmt.Errorf("tools: %w", ErrFieldAlreadySet)
	}
	s.tools, s.toolsSet = t, true
	return nil
}

func (s *TurnState) SetAnswer(a string) error {
	if !s.contextSet {
		return errors.New("answer set before context")
	}
	if s.answerSet {
		return fmt.Errorf("answer: %w", ErrFieldAlreadySet)
	}
	s.answer, s.answerSet = a, true
	return nil
}

// advance moves the state machine forward. Stages never move backwards.
func (s *TurnState) advance(next Stage) error {
	if next <= s.stage {
		return fmt.Errorf("invalid transition %s -> %s", s.stage, next)
	}
	s.stage = next
	return nil
}
