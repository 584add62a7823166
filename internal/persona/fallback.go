package persona

import (
	"strings"

	"github.com/apresai/personagen/internal/contract"
)

// ApplyFallbacks fills empty text sections that have a contract fallback and
// returns the names of the sections it filled. p is modified in place.
func ApplyFallbacks(p *Persona, c *contract.Contract, req Request) []string {
	if len(c.Fallbacks) == 0 {
		return nil
	}
	vars := templateVars(req)
	vars["{{target}}"] = strings.ToLower(req.TargetClient)

	var filled []string
	for i := range p.Sections {
		s := &p.Sections[i]
		if s.List || !s.Empty() {
			continue
		}
		text, ok := c.Fallbacks[s.Name]
		if !ok {
			continue
		}
		s.Text = expand(text, vars)
		filled = append(filled, s.Name)
	}
	return filled
}
