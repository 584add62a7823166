package persona

import (
	"fmt"
	"strings"

	"github.com/apresai/personagen/internal/contract"
)

// FeedbackHeader introduces the feedback block appended on regeneration.
const FeedbackHeader = "ADDITIONAL QUALITY ENHANCEMENT INSTRUCTIONS BASED ON PREVIOUS FEEDBACK:"

// BuildPrompt assembles the persona prompt. feedback, when non-empty, is
// appended verbatim after FeedbackHeader; nothing else about the prompt
// changes between attempts.
func BuildPrompt(req Request, c *contract.Contract, feedback string) string {
	framing := ResolveFraming(req, c)
	vars := templateVars(req)

	var b strings.Builder
	fmt.Fprintf(&b, "You are creating an ideal client persona for therapist %s, who specializes in %s and works with %s.\n\n",
		req.Name, req.Focus, req.TargetClient)
	if d := c.FramingDescription(framing); d != "" {
		b.WriteString(d + "\n\n")
	}

	b.WriteString("THERAPIST INFORMATION:\n")
	fmt.Fprintf(&b, "- Name: %s\n", req.Name)
	fmt.Fprintf(&b, "- Focus: %s\n", req.Focus)
	if req.Years > 0 {
		fmt.Fprintf(&b, "- Years of practice: %d\n", req.Years)
	}
	fmt.Fprintf(&b, "- Preferred client: %s\n", req.TargetClient)
	if len(req.Energizing) > 0 {
		fmt.Fprintf(&b, "- Client traits that energize them: %s\n", strings.Join(req.Energizing, ", "))
	}
	if len(req.Draining) > 0 {
		fmt.Fprintf(&b, "- Client traits that drain them: %s\n", strings.Join(req.Draining, ", "))
	}
	if len(req.Topics) > 0 {
		fmt.Fprintf(&b, "- Topics they love discussing: %s\n", strings.Join(req.Topics, ", "))
	}

	b.WriteString("\nSECTIONS (write every section, in this order, each introduced by its exact marker):\n")
	for i, s := range c.Sections {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, s.Marker, sectionLength(s))
		if s.Instruction != "" {
			fmt.Fprintf(&b, "   %s\n", expand(s.Instruction, vars))
		}
		if s.IsList() {
			fmt.Fprintf(&b, "   Put each item on its own line starting with %q. No numbering.\n", s.List.ItemMarker)
		}
	}

	if len(c.Voice) > 0 {
		b.WriteString("\nVOICE:\n")
		for _, v := range c.Voice {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}

	if len(c.Forbidden) > 0 {
		b.WriteString("\nFORBIDDEN LANGUAGE (never use these words or phrases):\n")
		fmt.Fprintf(&b, "- %s\n", quoteJoin(c.Forbidden))
	}
	if len(c.Discouraged) > 0 {
		b.WriteString("\nAVOID THESE CLICHES:\n")
		fmt.Fprintf(&b, "- %s\n", quoteJoin(c.Discouraged))
	}

	if c.Exemplar != "" {
		b.WriteString("\nGOLD STANDARD EXAMPLE (match this style, not its content):\n")
		fmt.Fprintf(&b, "\"%s\"\n", strings.TrimSpace(c.Exemplar))
	}

	b.WriteString("\nOUTPUT FORMAT (follow exactly):\n\n")
	for _, s := range c.Sections {
		b.WriteString(s.Marker + "\n")
		if s.IsList() {
			for i := 1; i <= s.List.Expected; i++ {
				fmt.Fprintf(&b, "%s[item %d]\n", s.List.ItemMarker, i)
			}
		} else {
			fmt.Fprintf(&b, "[%s]\n", strings.ToLower(s.DisplayLabel()))
		}
		b.WriteString("\n")
	}
	b.WriteString("Stop immediately after the last item of the final section. Do not add any other text, notes, or usage instructions.")

	if feedback = strings.TrimSpace(feedback); feedback != "" {
		b.WriteString("\n\n" + FeedbackHeader + "\n")
		b.WriteString(feedback)
	}
	return b.String()
}

// BuildSummaryPrompt assembles the therapist-facing summary prompt. It
// returns "" when the contract has no summary block.
func BuildSummaryPrompt(req Request, c *contract.Contract) string {
	if c.Summary == nil {
		return ""
	}
	vars := templateVars(req)

	var b strings.Builder
	fmt.Fprintf(&b, "Write a short profile for therapist %s, who specializes in %s and works with %s.\n\n",
		req.Name, req.Focus, req.TargetClient)
	if req.Years > 0 {
		fmt.Fprintf(&b, "They have %d years of practice.\n", req.Years)
	}
	if len(req.Energizing) > 0 {
		fmt.Fprintf(&b, "Clients who energize them: %s.\n", strings.Join(req.Energizing, ", "))
	}
	if len(req.Topics) > 0 {
		fmt.Fprintf(&b, "Topics they love discussing: %s.\n", strings.Join(req.Topics, ", "))
	}
	b.WriteString("\n")
	if c.Summary.Instruction != "" {
		b.WriteString(expand(c.Summary.Instruction, vars) + "\n")
	}
	if !c.Summary.Words.IsZero() {
		fmt.Fprintf(&b, "Length: %s words.\n", c.Summary.Words)
	}
	if len(c.Forbidden) > 0 {
		fmt.Fprintf(&b, "Never use: %s.\n", quoteJoin(c.Forbidden))
	}
	b.WriteString("Return only the paragraph.")
	return b.String()
}

// EstimateTokens gives a rough token count for logging.
func EstimateTokens(prompt string) int {
	return (len(prompt) + 3) / 4
}

func sectionLength(s contract.Section) string {
	switch {
	case s.IsList():
		out := fmt.Sprintf("(exactly %d items", s.List.Expected)
		if !s.List.ItemWords.IsZero() {
			out += fmt.Sprintf(", %s words each", s.List.ItemWords)
		}
		return out + ")"
	case s.Paragraphs > 1 && !s.Words.IsZero():
		return fmt.Sprintf("(%s words in %d paragraphs)", s.Words, s.Paragraphs)
	case !s.Words.IsZero():
		return fmt.Sprintf("(%s words)", s.Words)
	default:
		return ""
	}
}

func templateVars(req Request) map[string]string {
	return map[string]string{
		"{{name}}":   req.Name,
		"{{focus}}":  req.Focus,
		"{{target}}": req.TargetClient,
	}
}

func expand(s string, vars map[string]string) string {
	for k, v := range vars {
		s = strings.ReplaceAll(s, k, v)
	}
	return s
}

func quoteJoin(phrases []string) string {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return strings.Join(quoted, ", ")
}
