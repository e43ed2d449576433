package quality

import (
	"strings"
	"unicode/utf8"
)

// Flags — результат оценки одного ответа ассистента по рубрике.
type Flags struct {
	HasQuestion bool `json:"has_question"`
	InTargetLen bool `json:"in_target_len"`
	HasEmpathy  bool `json:"has_empathy"`
	HasBanned   bool `json:"has_banned"`
}

// Score is the mean of the three positive rubric outcomes.
// HasBanned is tracked separately as a safety signal.
func (f Flags) Score() float64 {
	n := 0
	if f.HasQuestion {
		n++
	}
	if f.InTargetLen {
		n++
	}
	if f.HasEmpathy {
		n++
	}
	return float64(n) / 3.0
}

// DefaultEmpathyTerms seeds the empathy lexicon with English markers and
// their Russian equivalents used by the bot's reply templates.
var DefaultEmpathyTerms = []string{
	"hear you", "see you", "understand", "with you", "important",
	"слышу тебя", "вижу тебя", "понимаю", "рядом", "важно",
}

// DefaultBannedTerms seeds the banned-topic lexicon: politics, religion,
// violence, medical and suicide-related vocabulary.
var DefaultBannedTerms = []string{
	"politic", "religi", "violen", "medication", "diagnos", "suicide",
	"политик", "религ", "насили", "медицинск", "вакцин", "диагноз", "лекарств", "суицид",
}

// Evaluator computes quality flags from reply text. It is pure: the same
// text always yields the same flags, so flags never need to be stored.
type Evaluator struct {
	minLen  int
	maxLen  int
	empathy []string
	banned  []string
}

func NewEvaluator(minLen, maxLen int, empathy, banned []string) *Evaluator {
	if empathy == nil {
		empathy = DefaultEmpathyTerms
	}
	if banned == nil {
		banned = DefaultBannedTerms
	}
	return &Evaluator{
		minLen:  minLen,
		maxLen:  maxLen,
		empathy: lowerAll(empathy),
		banned:  lowerAll(banned),
	}
}

// Default returns an evaluator with the seed lexicons and the 90..350 length band.
func Default() *Evaluator {
	return NewEvaluator(90, 350, nil, nil)
}

func (e *Evaluator) Evaluate(text string) Flags {
	lower := strings.ToLower(text)
	n := utf8.RuneCountInString(text)
	return Flags{
		HasQuestion: strings.Contains(text, "?"),
		InTargetLen: n >= e.minLen && n <= e.maxLen,
		HasEmpathy:  containsAny(lower, e.empathy),
		HasBanned:   containsAny(lower, e.banned),
	}
}

// Banned reports only the banned-topic outcome; used by the reply quality gate.
func (e *Evaluator) Banned(text string) bool {
	return containsAny(strings.ToLower(text), e.banned)
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func lowerAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		out = append(out, strings.ToLower(t))
	}
	return out
}
