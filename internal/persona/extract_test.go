package persona

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/personagen/internal/contract"
)

func TestExtractAllSections(t *testing.T) {
	c := contract.Default()
	p := NewExtractor(c).Extract(rawOutput())

	assert.Equal(t, fxTitle, p.Text("title"))
	assert.Equal(t, fxNarrative1+"\n\n"+fxNarrative2, p.Text("narrative"))
	assert.Equal(t, fxNeeds, p.Text("needs"))
	assert.Equal(t, fxFit, p.Text("fit"))
	assert.Equal(t, fxHooks, p.Items("hooks"))

	for _, s := range p.Sections {
		assert.False(t, s.Empty(), "section %s should not be empty", s.Name)
	}
}

func TestExtractPreservesSourceOrder(t *testing.T) {
	c := contract.Default()
	raw := rawOutput()
	p := NewExtractor(c).Extract(raw)

	last := -1
	for _, s := range p.Sections {
		needle := s.Text
		if s.List {
			needle = s.Items[0].Text
		}
		if i := strings.Index(needle, "\n\n"); i >= 0 {
			needle = needle[:i]
		}
		pos := strings.Index(raw, needle)
		require.GreaterOrEqual(t, pos, 0, "section %s not found in source", s.Name)
		assert.Greater(t, pos, last, "section %s out of order", s.Name)
		last = pos
	}
}

func TestExtractMissingMarkerLeavesOnlyThatFieldEmpty(t *testing.T) {
	c := contract.Default()
	full := NewExtractor(c).Extract(rawOutput())

	for _, missing := range c.SectionNames() {
		t.Run(missing, func(t *testing.T) {
			p := NewExtractor(c).Extract(rawOutput(missing))
			for _, s := range p.Sections {
				want, _ := full.Get(s.Name)
				if s.Name == missing {
					assert.True(t, s.Empty())
					continue
				}
				assert.Equal(t, want, s)
			}
		})
	}
}

func TestExtractEmptyInput(t *testing.T) {
	c := contract.Default()
	p := NewExtractor(c).Extract("")
	require.Len(t, p.Sections, len(c.Sections))
	for _, s := range p.Sections {
		assert.True(t, s.Empty())
	}
}

func TestExtractAliasesAndCase(t *testing.T) {
	c := contract.Default()
	raw := `**persona title:** "Midnight Planner"

**PERSONA:**
They lie awake rearranging tomorrow.

**MARKETING HOOKS:**

**Hook 1:** Your mind does not have to run the night shift
(anxiety therapy for high achievers)

**Hook 2:** Rest is not something you earn
(insomnia and anxiety counseling)
`
	p := NewExtractor(c).Extract(raw)

	assert.Equal(t, "Midnight Planner", p.Text("title"))
	assert.Equal(t, "They lie awake rearranging tomorrow.", p.Text("narrative"))
	assert.Empty(t, p.Text("needs"))

	hooks, _ := p.Get("hooks")
	require.Len(t, hooks.Items, 2)
	assert.Equal(t, Hook{Text: "Your mind does not have to run the night shift", Subline: "anxiety therapy for high achievers"}, hooks.Items[0])
	assert.Equal(t, "Rest is not something you earn", hooks.Items[1].Text)
	assert.Equal(t, "insomnia and anxiety counseling", hooks.Items[1].Subline)
}

func TestExtractHooksTrimmedToExpected(t *testing.T) {
	c := contract.Default()
	raw := "**KEY HOOKS:**\n- one two three four\n- five six seven eight\n- nine ten eleven twelve\n- thirteen fourteen fifteen sixteen\n"
	p := NewExtractor(c).Extract(raw)
	assert.Equal(t, []string{"one two three four", "five six seven eight", "nine ten eleven twelve"}, p.Items("hooks"))
}

func TestExtractHookContinuationAndTrailingProse(t *testing.T) {
	c := contract.Default()
	raw := "**KEY HOOKS:**\nHere are your hooks:\n- I say yes when\n  I mean no.\n- \n- Nobody sees how tired I am.\n\nUse these on your website.\n"
	p := NewExtractor(c).Extract(raw)
	assert.Equal(t, []string{"I say yes when I mean no.", "Nobody sees how tired I am."}, p.Items("hooks"))
}

func TestExtractSublineContinuation(t *testing.T) {
	c := contract.Default()
	raw := "**KEY HOOKS:**\n" +
		"**Hook 1:** Your mind does not have to run the night shift\n(anxiety therapy\nfor high achievers)\n\n" +
		"**Hook 2:** Rest is not something you earn\n(insomnia counseling)\nin Portland and online\n\n" +
		"**Hook 3:** Nobody sees how tired I am\n"
	p := NewExtractor(c).Extract(raw)

	hooks, _ := p.Get("hooks")
	require.Len(t, hooks.Items, 3)
	assert.Equal(t, Hook{Text: "Your mind does not have to run the night shift", Subline: "anxiety therapy for high achievers"}, hooks.Items[0])
	assert.Equal(t, Hook{Text: "Rest is not something you earn", Subline: "insomnia counseling in Portland and online"}, hooks.Items[1])
	assert.Equal(t, Hook{Text: "Nobody sees how tired I am"}, hooks.Items[2])
}

func TestExtractStripsMarkdown(t *testing.T) {
	c := contract.Default()
	raw := "**WHAT THEY NEED:**\n  **Structure** and\n   patience.  \n\n\n**THERAPIST FIT:** ## You understand.\n"
	p := NewExtractor(c).Extract(raw)
	assert.Equal(t, "Structure and patience.", p.Text("needs"))
	assert.Equal(t, "You understand.", p.Text("fit"))
}
