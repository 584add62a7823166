package persona

import (
	"regexp"
	"strings"

	"github.com/apresai/personagen/internal/contract"
)

// ResolveFraming returns the request's framing when set, otherwise the first
// contract framing rule whose keywords match, otherwise the contract default.
// Keywords match whole words, case-insensitively, so "kid" does not match
// "kidney".
func ResolveFraming(req Request, c *contract.Contract) string {
	if f := strings.ToLower(strings.TrimSpace(req.Framing)); f != "" {
		return f
	}
	for _, rule := range c.Framing.Rules {
		for _, field := range rule.Fields {
			var value string
			switch field {
			case "target":
				value = req.TargetClient
			case "focus":
				value = req.Focus
			}
			if containsKeyword(value, rule.Keywords) {
				return rule.Framing
			}
		}
	}
	return c.Framing.Default
}

func containsKeyword(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	for _, kw := range keywords {
		if wordPattern(kw).MatchString(text) {
			return true
		}
	}
	return false
}

// wordPattern matches kw as a whole word, allowing a plural "s".
func wordPattern(kw string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(kw)) + `s?\b`)
}
