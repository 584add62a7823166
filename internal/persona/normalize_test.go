package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/personagen/internal/contract"
)

func TestRules(t *testing.T) {
	tests := []struct {
		rule Rule
		in   string
		want string
	}{
		{LeakedScaffolding, "Quiet Overthinker is a person who replays every conversation.", "They are someone who replays every conversation."},
		{LeakedScaffolding, "The Midnight Planner is someone who never rests. Later text.", "They are someone who never rests. Later text."},
		{LeakedScaffolding, "They arrive early. Quiet Overthinker is a person who waits.", "They arrive early. Quiet Overthinker is a person who waits."},
		{LeakedScaffolding, "Weight of the World Carrier is a person who carries everything alone.", "They are someone who carries everything alone."},
		{LeakedScaffolding, "Everyone in the room is someone who notices.", "Everyone in the room is someone who notices."},
		{VerbAgreement, "You needs a plan and they seeks comfort.", "You need a plan and they seek comfort."},
		{VerbAgreement, "They is tired because you has been there.", "They are tired because you have been there."},
		{VerbAgreement, "They doesn't know and you carries it.", "They don't know and you carry it."},
		{VerbAgreement, "They need a plan.", "They need a plan."},
		{VerbAgreement, "What worked for you has stopped working.", "What worked for you has stopped working."},
		{VerbAgreement, "Everything they knew of you has shifted.", "Everything they knew of you has shifted."},
		{VerbAgreement, "Nobody asks about you has become a joke.", "Nobody asks about you has become a joke."},
		{VerbAgreement, "It hurts. They feels alone; you knows why.", "It hurts. They feel alone; you know why."},
		{VerbAgreement, "First line.\nYou wants quiet.", "First line.\nYou want quiet."},
		{VerbAgreement, "\"Help me.\" They hopes so.", "\"Help me.\" They hope so."},
		{MissingLinkingVerb, "A parent who sitting with fear.", "A parent who is sitting with fear."},
		{MissingLinkingVerb, "Someone who bring nothing.", "Someone who bring nothing."},
		{MissingLinkingVerb, "Someone who is waiting.", "Someone who is waiting."},
		{TemplatePlaceholder, "They wait. [Insert 45-60 words here] Then they speak.", "They wait. Then they speak."},
		{TemplatePlaceholder, "They wait [sic].", "They wait [sic]."},
	}

	for _, tt := range tests {
		t.Run(tt.rule.Name+"/"+tt.in, func(t *testing.T) {
			got := tt.rule.Apply(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.want != tt.in {
				assert.True(t, tt.rule.Detect(tt.in))
			}
		})
	}
}

func TestRulesRemoveTheirDefect(t *testing.T) {
	inputs := map[string]Rule{
		"Quiet Overthinker is a person who waits.": LeakedScaffolding,
		"You needs help.":                          VerbAgreement,
		"They struggles daily.":                    VerbAgreement,
		"A man who running late.":                  MissingLinkingVerb,
		"Hello [paragraph two] world":              TemplatePlaceholder,
	}
	for in, rule := range inputs {
		out := rule.Apply(in)
		assert.False(t, rule.Detect(out), "%s still detected in %q", rule.Name, out)
	}
}

func TestNormalizeAppliesToTextFieldsOnly(t *testing.T) {
	c := contract.Default()
	p := New(c)
	p.Set("narrative", "Quiet Overthinker is a person who sitting alone. You needs rest.")
	p.Set("fit", "You understand them.")
	p.Sections[4].Items = []Hook{{Text: "You needs this hook untouched"}}

	out, fixes := NewNormalizer().Normalize(p)

	assert.Equal(t, "They are someone who is sitting alone. You need rest.", out.Text("narrative"))
	assert.Equal(t, "You understand them.", out.Text("fit"))
	assert.Equal(t, []string{"You needs this hook untouched"}, out.Items("hooks"))
	assert.Equal(t, []Fix{
		{Rule: "leaked_scaffolding", Section: "narrative"},
		{Rule: "verb_agreement", Section: "narrative"},
		{Rule: "missing_linking_verb", Section: "narrative"},
	}, fixes)

	// input is not modified
	assert.Equal(t, "Quiet Overthinker is a person who sitting alone. You needs rest.", p.Text("narrative"))
}

func TestScaffoldingFor(t *testing.T) {
	r, ok := ScaffoldingFor("The Over-Functioning Fixer")
	require.True(t, ok)
	assert.Equal(t, "They are someone who fixes it.", r.Apply("over-functioning  fixer is a person who fixes it."))
	assert.Equal(t, "They are someone who fixes it.", r.Apply("The Over-Functioning Fixer is an individual who fixes it."))
	assert.Equal(t, "The Fixer is a person who fixes it.", r.Apply("The Fixer is a person who fixes it."))

	_, ok = ScaffoldingFor("  ")
	assert.False(t, ok)
	_, ok = ScaffoldingFor("The")
	assert.False(t, ok)
}

func TestNormalizeStripsOwnTitle(t *testing.T) {
	c := contract.Default()
	p := New(c)
	p.Set("title", "Weight of the World Carrier")
	p.Set("narrative", "Weight of the World Carrier is a person who carries everything alone.")
	p.Set("needs", "the weight of the world carrier is someone who needs rest. They seek relief.")
	p.Set("fit", "What worked for you has stopped working. Everything they knew of you has shifted.")

	out, fixes := NewNormalizer().Normalize(p)

	assert.Equal(t, "Weight of the World Carrier", out.Text("title"))
	assert.Equal(t, "They are someone who carries everything alone.", out.Text("narrative"))
	assert.Equal(t, "They are someone who needs rest. They seek relief.", out.Text("needs"))
	assert.Equal(t, p.Text("fit"), out.Text("fit"))
	assert.Equal(t, []Fix{
		{Rule: "leaked_scaffolding", Section: "narrative"},
		{Rule: "leaked_scaffolding", Section: "needs"},
	}, fixes)
}

func TestNormalizeIdempotent(t *testing.T) {
	c := contract.Default()
	n := NewNormalizer()

	samples := []string{
		"Quiet Overthinker is a person who sitting alone. You needs rest.",
		"[Insert title here] They is here, who waiting.\n\nYou seeks calm. [two paragraphs]",
		fxNarrative1 + "\n\n" + fxNarrative2,
		"",
	}
	for _, s := range samples {
		p := New(c)
		p.Set("narrative", s)
		once, _ := n.Normalize(p)
		twice, fixes := n.Normalize(once)
		require.Equal(t, once, twice)
		assert.Empty(t, fixes)
		assert.Equal(t, n.NormalizeText(s), n.NormalizeText(n.NormalizeText(s)))
	}
}

func TestNormalizeLeavesCleanTextAlone(t *testing.T) {
	c := contract.Default()
	p := goodPersona(c)
	out, fixes := NewNormalizer().Normalize(p)
	assert.Empty(t, fixes)
	assert.Equal(t, p, out)
}
