package persona

import (
	"fmt"
	"strings"

	"github.com/apresai/personagen/internal/contract"
)

// RenderMarkdown formats a persona with the contract's section labels.
// summary is rendered first under the contract's summary label when set.
func RenderMarkdown(p *Persona, c *contract.Contract, summary string) string {
	var b strings.Builder

	if summary = strings.TrimSpace(summary); summary != "" && c.Summary != nil {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", c.Summary.Label, summary)
	}

	for _, s := range c.Sections {
		got, _ := p.Get(s.Name)
		if s.Name == "title" {
			if got.Text != "" {
				fmt.Fprintf(&b, "# %s\n\n", got.Text)
			}
			continue
		}

		fmt.Fprintf(&b, "## %s\n\n", s.DisplayLabel())
		if got.Empty() {
			b.WriteString("_(missing)_\n\n")
			continue
		}
		if s.IsList() {
			for _, h := range got.Items {
				fmt.Fprintf(&b, "- **%s**\n", h.Text)
				if h.Subline != "" {
					fmt.Fprintf(&b, "  %s\n", h.Subline)
				}
			}
			b.WriteString("\n")
			continue
		}
		b.WriteString(got.Text + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
