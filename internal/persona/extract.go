package persona

import (
	"regexp"
	"sort"
	"strings"

	"github.com/apresai/personagen/internal/contract"
)

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
	ordinalPrefix  = regexp.MustCompile(`^\d+\s*[:.)]\s*`)
	spaceRun       = regexp.MustCompile(`[ \t]+`)
)

// Extractor splits raw model text into persona sections by locating the
// contract's section markers. It holds no per-call state and is safe for
// concurrent use.
type Extractor struct {
	c       *contract.Contract
	markers []*regexp.Regexp
}

// NewExtractor compiles one case-insensitive pattern per section that
// matches its marker or any alias.
func NewExtractor(c *contract.Contract) *Extractor {
	e := &Extractor{c: c, markers: make([]*regexp.Regexp, len(c.Sections))}
	for i, s := range c.Sections {
		e.markers[i] = markerPattern(s.AllMarkers())
	}
	return e
}

func markerPattern(markers []string) *regexp.Regexp {
	sorted := append([]string(nil), markers...)
	// Longest first so that a marker never loses to its own prefix.
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	alts := make([]string, len(sorted))
	for i, m := range sorted {
		alts[i] = regexp.QuoteMeta(m)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
}

// Extract never fails: a section whose marker is absent is left empty and
// the scan continues from where the previous section ended.
func (e *Extractor) Extract(raw string) *Persona {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	p := New(e.c)

	cursor := 0
	for i, s := range e.c.Sections {
		loc := e.markers[i].FindStringIndex(text[cursor:])
		if loc == nil {
			continue
		}
		start := cursor + loc[1]
		end := len(text)
		for j := i + 1; j < len(e.markers); j++ {
			if next := e.markers[j].FindStringIndex(text[start:]); next != nil && start+next[0] < end {
				end = start + next[0]
			}
		}

		body := text[start:end]
		if s.IsList() {
			p.Sections[i].Items = cleanItems(body, s.List)
		} else {
			p.Sections[i].Text = cleanText(body)
		}
		cursor = end
	}
	return p
}

// cleanText strips markdown emphasis and marker residue, collapses each
// paragraph onto one line and separates paragraphs with a blank line.
func cleanText(body string) string {
	var paras []string
	for _, para := range paragraphBreak.Split(body, -1) {
		lines := strings.Split(para, "\n")
		for i := range lines {
			lines[i] = strings.TrimSpace(lines[i])
		}
		joined := strings.Join(lines, " ")
		joined = strings.ReplaceAll(joined, "**", "")
		joined = spaceRun.ReplaceAllString(joined, " ")
		joined = strings.TrimLeft(joined, " \t*_#:")
		joined = strings.TrimRight(joined, " \t*_#")
		if joined != "" {
			paras = append(paras, joined)
		}
	}
	return unquote(strings.Join(paras, "\n\n"))
}

// cleanItems splits a list section into items. A line beginning with an
// item marker starts an item; following lines continue it until a blank
// line. A line opening with "(" directly under an item starts its subline,
// and once a subline exists later lines continue the subline instead of
// the item text. Text before the first item is ignored. Extra items beyond the expected
// count are dropped; fewer are left as found.
func cleanItems(body string, spec *contract.ListSpec) []Hook {
	itemMarkers := spec.ItemMarkers()
	sort.SliceStable(itemMarkers, func(i, j int) bool { return len(itemMarkers[i]) > len(itemMarkers[j]) })

	var (
		items []Hook
		open  bool
	)
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			open = false
			continue
		}

		if rest, ok := cutItemMarker(trimmed, itemMarkers); ok {
			items = append(items, Hook{Text: rest})
			open = true
			continue
		}
		if !open {
			continue
		}

		last := &items[len(items)-1]
		t := strings.TrimSpace(trimmed)
		switch {
		case last.Subline == "" && strings.HasPrefix(t, "(") && (isParenthesized(t) || !strings.Contains(t, ")")):
			last.Subline = trimParens(t)
		case last.Subline != "":
			last.Subline = strings.TrimSpace(last.Subline + " " + trimParens(t))
		default:
			last.Text += " " + t
		}
	}

	out := make([]Hook, 0, len(items))
	for _, h := range items {
		h.Text = cleanItemText(h.Text)
		if h.Text == "" {
			continue
		}
		out = append(out, h)
	}
	if spec.Expected > 0 && len(out) > spec.Expected {
		out = out[:spec.Expected]
	}
	return out
}

func cutItemMarker(line string, markers []string) (string, bool) {
	for _, m := range markers {
		if len(line) >= len(m) && strings.EqualFold(line[:len(m)], m) {
			return line[len(m):], true
		}
	}
	return "", false
}

func cleanItemText(s string) string {
	s = strings.TrimSpace(s)
	s = ordinalPrefix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "**", "")
	s = spaceRun.ReplaceAllString(s, " ")
	s = strings.Trim(s, " \t*_\"“”")
	return strings.TrimSpace(s)
}

func isParenthesized(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
}

// trimParens drops a leading "(" and trailing ")" from a subline fragment.
func trimParens(s string) string {
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	return strings.TrimSpace(s)
}

// unquote removes one pair of quotes wrapping the whole value.
func unquote(s string) string {
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}} {
		if len(s) > len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			inner := s[len(pair[0]) : len(s)-len(pair[1])]
			if !strings.ContainsAny(inner, "\"“”") {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}
