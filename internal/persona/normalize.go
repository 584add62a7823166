package persona

import (
	"regexp"
	"strings"
)

// Rule is one deterministic rewrite for a known generation defect.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	rewrite func(match []string) string
}

// Detect reports whether s contains the defect.
func (r Rule) Detect(s string) bool {
	return r.Pattern.MatchString(s)
}

// Apply rewrites every occurrence of the defect. Text outside the matched
// spans is left untouched.
func (r Rule) Apply(s string) string {
	return r.Pattern.ReplaceAllStringFunc(s, func(m string) string {
		return r.rewrite(r.Pattern.FindStringSubmatch(m))
	})
}

const (
	scaffoldTail = `\s+is\s+(?:(?:a|an)\s+(?:person|individual|client)|someone)\s+who\s+`
	titleWord    = `[A-Z][\p{L}'’-]*`
	joinWord     = `(?:of|the|and|in|on|for|to|with|from|at|a|an|by)`
)

var (
	// "Quiet Reactor is a person who ..." at the start of a body field. The
	// leading title is capitalized words, optionally joined by short
	// lowercase words ("Weight of the World Carrier"), ending on a
	// capitalized word.
	LeakedScaffolding = Rule{
		Name:    "leaked_scaffolding",
		Pattern: regexp.MustCompile(`^\s*(?:` + titleWord + `\s+(?:` + joinWord + `\s+){0,3}){0,5}` + titleWord + scaffoldTail),
		rewrite: func([]string) string { return "They are someone who " },
	}

	// "You needs" -> "You need", "they is" -> "they are". Only pronouns in
	// subject position are touched: at the start of the text or a line,
	// after sentence or clause punctuation, or after a clause conjunction.
	// "what worked for you has" is left alone.
	VerbAgreement = Rule{
		Name: "verb_agreement",
		Pattern: regexp.MustCompile(`(^\s*|\n\s*|[.!?;:]["”’)]?\s+|\b(?:and|but|so|because|since|when|whenever|while|if|unless|until|although|though|yet|or|before|after|once)\s+)` +
			`(You|you|They|they)\s+(needs|seeks|values|wants|feels|struggles|hopes|fears|tries|carries|knows|has|is|was|does|doesn't|doesn’t|isn't|isn’t|wasn't|wasn’t|hasn't|hasn’t)\b`),
		rewrite: func(m []string) string {
			return m[1] + m[2] + " " + pluralVerb(m[3])
		},
	}

	// "who sitting" -> "who is sitting".
	MissingLinkingVerb = Rule{
		Name:    "missing_linking_verb",
		Pattern: regexp.MustCompile(`\b([Ww]ho)\s+([a-z]+ing)\b`),
		rewrite: func(m []string) string {
			if notGerund[m[2]] {
				return m[0]
			}
			return m[1] + " is " + m[2]
		},
	}

	// "[Insert 45-60 words here]" left over from the output skeleton.
	TemplatePlaceholder = Rule{
		Name:    "template_placeholder",
		Pattern: regexp.MustCompile(`(?i)[ \t]*\[[^\]\n]*(?:words?|paragraph|quote|insert|description|placeholder|title|hook|headline|subline|item)[^\]\n]*\]`),
		rewrite: func([]string) string { return "" },
	}
)

// ScaffoldingFor returns a leaked-scaffolding rule that matches the given
// persona title at the start of a field, with or without a leading "The".
// Matching is case-insensitive and tolerant of spacing differences.
func ScaffoldingFor(title string) (Rule, bool) {
	words := strings.Fields(title)
	if len(words) > 0 && strings.EqualFold(words[0], "the") {
		words = words[1:]
	}
	if len(words) == 0 {
		return Rule{}, false
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return Rule{
		Name:    LeakedScaffolding.Name,
		Pattern: regexp.MustCompile(`(?i)^\s*(?:the\s+)?` + strings.Join(words, `\s+`) + scaffoldTail),
		rewrite: LeakedScaffolding.rewrite,
	}, true
}

// DefaultRules is the ordered rule list applied by Normalize.
var DefaultRules = []Rule{LeakedScaffolding, VerbAgreement, MissingLinkingVerb, TemplatePlaceholder}

var irregularPlural = map[string]string{
	"has":     "have",
	"is":      "are",
	"was":     "were",
	"does":    "do",
	"doesn't": "don't",
	"doesn’t": "don’t",
	"isn't":   "aren't",
	"isn’t":   "aren’t",
	"wasn't":  "weren't",
	"wasn’t":  "weren’t",
	"hasn't":  "haven't",
	"hasn’t":  "haven’t",
	"tries":   "try",
	"carries": "carry",
}

func pluralVerb(v string) string {
	if p, ok := irregularPlural[v]; ok {
		return p
	}
	return strings.TrimSuffix(v, "s")
}

// -ing words that are not gerunds, or already read correctly after "who".
var notGerund = map[string]bool{
	"bring": true, "thing": true, "nothing": true, "something": true,
	"anything": true, "everything": true, "sing": true, "king": true,
	"ring": true, "spring": true, "string": true, "swing": true,
	"cling": true, "sting": true, "wing": true, "sling": true,
	"fling": true, "wring": true, "during": true, "ping": true,
}

// Fix records one rule firing on one section.
type Fix struct {
	Rule    string `json:"rule"`
	Section string `json:"section"`
}

// Normalizer applies an ordered rule list to the text sections of a persona.
// List sections are never rewritten. When TitleSection holds text, the
// persona's own title is also stripped from leaked scaffolding.
type Normalizer struct {
	Rules        []Rule
	TitleSection string
}

// NewNormalizer returns a normalizer using DefaultRules.
func NewNormalizer() *Normalizer {
	return &Normalizer{Rules: DefaultRules, TitleSection: "title"}
}

const maxPasses = 4

// Normalize returns a corrected copy of p and the fixes applied. Rules are
// re-run until nothing changes, so normalizing the output again is a no-op.
func (n *Normalizer) Normalize(p *Persona) (*Persona, []Fix) {
	out := p.Clone()
	rules := n.Rules
	if n.TitleSection != "" {
		if r, ok := ScaffoldingFor(out.Text(n.TitleSection)); ok {
			rules = append([]Rule{r}, rules...)
		}
	}

	var fixes []Fix
	for i := range out.Sections {
		s := &out.Sections[i]
		if s.List || s.Text == "" {
			continue
		}
		text, fired := normalize(s.Text, rules)
		s.Text = text
		for _, name := range fired {
			fixes = append(fixes, Fix{Rule: name, Section: s.Name})
		}
	}
	return out, fixes
}

// NormalizeText applies the rules to a single string.
func (n *Normalizer) NormalizeText(s string) string {
	out, _ := normalize(s, n.Rules)
	return out
}

func normalize(s string, rules []Rule) (string, []string) {
	seen := map[string]bool{}
	var fired []string
	for pass := 0; pass < maxPasses; pass++ {
		before := s
		for _, r := range rules {
			if !r.Detect(s) {
				continue
			}
			next := r.Apply(s)
			if next == s {
				continue
			}
			s = tidy(next)
			if !seen[r.Name] {
				seen[r.Name] = true
				fired = append(fired, r.Name)
			}
		}
		if s == before {
			break
		}
	}
	return s, fired
}

// tidy trims each paragraph after a rewrite removed text at its edges.
func tidy(s string) string {
	paras := strings.Split(s, "\n\n")
	out := paras[:0]
	for _, p := range paras {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
