package persona

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/apresai/personagen/internal/contract"
)

// Issue categories. Each carries its own score penalty.
const (
	CategoryStructural = "structural"
	CategoryContent    = "content"
	CategoryWarning    = "warning"
)

// Issue describes one quality problem found in a persona.
type Issue struct {
	Rule     string `json:"rule"`
	Category string `json:"category"` // "structural", "content", "warning"
	Severity string `json:"severity"` // "error" or "warning"
	Message  string `json:"message"`
}

// Check is the outcome of one named rule.
type Check struct {
	Passed bool `json:"passed"`
	Count  int  `json:"count"`
}

// Validation is the scored result of one validation pass.
type Validation struct {
	Score      int              `json:"score"`
	Accepted   bool             `json:"accepted"`
	Threshold  int              `json:"threshold"`
	Checks     map[string]Check `json:"checks"`
	Issues     []Issue          `json:"issues"`
	Structural int              `json:"structural_failures"`
	Content    int              `json:"content_failures"`
	Warnings   int              `json:"warnings"`

	guidance []string
}

// Failed returns the issues that are not warnings.
func (res *Validation) Failed() []Issue {
	var out []Issue
	for _, is := range res.Issues {
		if is.Category != CategoryWarning {
			out = append(out, is)
		}
	}
	return out
}

// Feedback renders the issues as instructions for the next attempt.
func (res *Validation) Feedback() string {
	if len(res.Issues) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The previous output scored %d/100 (minimum %d). Fix every issue below:\n", res.Score, res.Threshold)
	failed := res.Failed()
	for _, is := range failed {
		fmt.Fprintf(&b, "- [%s] %s\n", is.Severity, is.Message)
	}
	if len(failed) < len(res.Issues) {
		b.WriteString("Also clean up these warnings:\n")
		for _, is := range res.Issues {
			if is.Category == CategoryWarning {
				fmt.Fprintf(&b, "- [%s] %s\n", is.Severity, is.Message)
			}
		}
	}
	if len(res.guidance) > 0 {
		b.WriteString("Focus extra attention on:\n")
		for _, g := range res.guidance {
			fmt.Fprintf(&b, "- %s\n", g)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Validator scores personas against a contract.
type Validator struct {
	c         *contract.Contract
	emotional []*regexp.Regexp
	narrative []*regexp.Regexp
}

// NewValidator compiles the contract's marker word lists.
func NewValidator(c *contract.Contract) *Validator {
	return &Validator{
		c:         c,
		emotional: wordStarts(c.Markers.Emotional),
		narrative: wordStarts(c.Markers.Narrative),
	}
}

func wordStarts(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)))
		}
	}
	return out
}

// Validate runs structural and content checks and computes the score.
func (v *Validator) Validate(p *Persona) *Validation {
	res := &Validation{
		Threshold: v.c.Scoring.Threshold,
		Checks:    map[string]Check{},
		guidance:  v.c.RetryGuidance,
	}

	for _, s := range v.c.Sections {
		got, _ := p.Get(s.Name)
		v.checkSection(res, s, got)
	}
	v.checkContent(res, p.AllText())

	sc := v.c.Scoring
	score := 100 - sc.StructuralPenalty*res.Structural - sc.ContentPenalty*res.Content - sc.WarningPenalty*res.Warnings
	if score < 0 {
		score = 0
	}
	res.Score = score
	res.Accepted = score >= res.Threshold && res.Content == 0
	return res
}

func (v *Validator) checkSection(res *Validation, s contract.Section, got Section) {
	present := !got.Empty()
	res.Checks[s.Name+".present"] = Check{Passed: present}
	if !present {
		res.add(Issue{Rule: s.Name + ".present", Category: CategoryStructural, Message: s.Name + ": missing"})
		return
	}

	if s.IsList() {
		n := len(got.Items)
		ok := n == s.List.Expected
		res.Checks[s.Name+".count"] = Check{Passed: ok, Count: n}
		if !ok {
			res.add(Issue{
				Rule:     s.Name + ".count",
				Category: CategoryStructural,
				Message:  fmt.Sprintf("%s: expected %d, found %d", s.Name, s.List.Expected, n),
			})
		}
		if !s.List.ItemWords.IsZero() {
			for i, h := range got.Items {
				if wc := WordCount(h.Text); !s.List.ItemWords.Contains(wc) {
					res.add(Issue{
						Rule:     s.Name + ".item_words",
						Category: CategoryWarning,
						Message:  fmt.Sprintf("%s[%d]: %d words, expected %s", s.Name, i+1, wc, s.List.ItemWords),
					})
				}
			}
		}
		return
	}

	wc := WordCount(got.Text)
	ok := s.Words.Contains(wc)
	res.Checks[s.Name+".words"] = Check{Passed: ok, Count: wc}
	if !ok {
		res.add(Issue{
			Rule:     s.Name + ".words",
			Category: CategoryStructural,
			Message:  fmt.Sprintf("%s: %d words, expected %s", s.Name, wc, s.Words),
		})
	}
}

func (v *Validator) checkContent(res *Validation, text string) {
	lower := strings.ToLower(text)

	forbidden := 0
	for _, phrase := range v.c.Forbidden {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			forbidden++
			res.add(Issue{Rule: "forbidden", Category: CategoryContent, Message: fmt.Sprintf("forbidden: %q", phrase)})
		}
	}
	res.Checks["forbidden"] = Check{Passed: forbidden == 0, Count: forbidden}

	discouraged := 0
	for _, phrase := range v.c.Discouraged {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			discouraged++
			res.add(Issue{Rule: "discouraged", Category: CategoryWarning, Message: fmt.Sprintf("discouraged: %q", phrase)})
		}
	}
	res.Checks["discouraged"] = Check{Passed: discouraged == 0, Count: discouraged}

	m := v.c.Markers
	if len(v.emotional) > 0 {
		n := countMatches(v.emotional, text)
		ok := n >= m.MinEmotional
		res.Checks["emotional_specificity"] = Check{Passed: ok, Count: n}
		if !ok {
			res.add(Issue{
				Rule:     "emotional_specificity",
				Category: CategoryWarning,
				Message:  fmt.Sprintf("emotional_specificity: %d emotional words, expected at least %d", n, m.MinEmotional),
			})
		}
	}
	if len(v.narrative) > 0 {
		n := countMatches(v.narrative, text)
		ok := n >= m.MinNarrative
		res.Checks["narrative_flow"] = Check{Passed: ok, Count: n}
		if !ok {
			res.add(Issue{
				Rule:     "narrative_flow",
				Category: CategoryWarning,
				Message:  fmt.Sprintf("narrative_flow: %d narrative words, expected at least %d", n, m.MinNarrative),
			})
		}
	}
}

// countMatches counts how many distinct words occur at least once.
func countMatches(words []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range words {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

func (res *Validation) add(is Issue) {
	switch is.Category {
	case CategoryStructural:
		res.Structural++
		is.Severity = "error"
	case CategoryContent:
		res.Content++
		is.Severity = "error"
	default:
		res.Warnings++
		is.Severity = "warning"
	}
	res.Issues = append(res.Issues, is)
}

// ValidateSummary checks the therapist-facing summary. Its issues are
// reported alongside the persona and never affect the persona score.
func ValidateSummary(text string, c *contract.Contract) []Issue {
	if c.Summary == nil {
		return nil
	}
	var issues []Issue
	text = strings.TrimSpace(text)
	if text == "" {
		return []Issue{{Rule: "summary.present", Category: CategoryStructural, Severity: "error", Message: "summary: missing"}}
	}
	if wc := WordCount(text); !c.Summary.Words.Contains(wc) {
		issues = append(issues, Issue{
			Rule:     "summary.words",
			Category: CategoryStructural,
			Severity: "error",
			Message:  fmt.Sprintf("summary: %d words, expected %s", wc, c.Summary.Words),
		})
	}
	if !strings.HasPrefix(text, "You") {
		issues = append(issues, Issue{
			Rule:     "summary.opening",
			Category: CategoryWarning,
			Severity: "warning",
			Message:  `summary: should begin with "You"`,
		})
	}
	lower := strings.ToLower(text)
	for _, phrase := range c.Forbidden {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			issues = append(issues, Issue{Rule: "forbidden", Category: CategoryContent, Severity: "error", Message: fmt.Sprintf("forbidden: %q", phrase)})
		}
	}
	return issues
}
