package persona

import (
	"strings"

	"github.com/apresai/personagen/internal/contract"
)

const (
	fxTitle = "Quiet Overthinker"

	fxNarrative1 = "They arrive early and sit near the door, scanning your face before they say a word. " +
		"For years they have managed their anxiety by preparing for every possible disaster, rehearsing " +
		"conversations in the shower and replaying them again at night. People at work see someone calm " +
		"and capable. Nobody sees the racing heart before every meeting or the fear that one mistake will " +
		"undo everything."

	fxNarrative2 = "When they finally speak, it comes out in careful pieces. They have read the books and " +
		"tried the apps, and still the worry follows them home. What they want now is not another technique " +
		"but a place where they can stop performing, say the messy thing out loud, and feel what it is like " +
		"to be understood without having to earn it first."

	fxNeeds = "They need a steady, practical therapist who can slow the spiral without dismissing it. " +
		"Someone who explains how anxiety works in the body, offers concrete tools they can practice " +
		"between sessions, and notices the perfectionism underneath the worry. Above all they need " +
		"patience while trust builds at its own pace."

	fxFit = "You understand how anxiety affects adults who look fine from the outside and feel anything " +
		"but fine within. Your calm, direct style gives them structure without pressure, and your years of " +
		"practice help you spot the patterns they cannot yet name. You make room for both skill building " +
		"and honest conversation."
)

var fxHooks = []string{
	"I keep waiting for the moment everything falls apart.",
	"Everyone thinks I have it together, and I am exhausted from pretending.",
	"I want to stop bracing for the worst and actually enjoy my life.",
}

// rawOutput renders a model response in the default contract's format.
// Sections listed in skip are omitted entirely, marker included.
func rawOutput(skip ...string) string {
	omit := map[string]bool{}
	for _, s := range skip {
		omit[s] = true
	}

	var b strings.Builder
	if !omit["title"] {
		b.WriteString("**PERSONA TITLE:** " + fxTitle + "\n\n")
	}
	if !omit["narrative"] {
		b.WriteString("**WHO THEY ARE:**\n" + fxNarrative1 + "\n\n" + fxNarrative2 + "\n\n")
	}
	if !omit["needs"] {
		b.WriteString("**WHAT THEY NEED:**\n" + fxNeeds + "\n\n")
	}
	if !omit["fit"] {
		b.WriteString("**THERAPIST FIT:**\n" + fxFit + "\n\n")
	}
	if !omit["hooks"] {
		b.WriteString("**KEY HOOKS:**\n")
		for _, h := range fxHooks {
			b.WriteString(`* *"` + h + `"*` + "\n")
		}
	}
	return b.String()
}

func goodPersona(c *contract.Contract) *Persona {
	return NewExtractor(c).Extract(rawOutput())
}
