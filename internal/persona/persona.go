package persona

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apresai/personagen/internal/contract"
)

// Framing values understood by the default contract.
const (
	FramingAdult  = "adult"
	FramingParent = "parent"
)

// Request is the therapist's input to one generation.
type Request struct {
	Name         string   `json:"name" yaml:"name"`
	Focus        string   `json:"focus" yaml:"focus"`
	Years        int      `json:"years,omitempty" yaml:"years,omitempty"`
	TargetClient string   `json:"target_client" yaml:"target_client"`
	Energizing   []string `json:"energizing" yaml:"energizing"`
	Draining     []string `json:"draining" yaml:"draining"`
	Topics       []string `json:"topics" yaml:"topics"`
	// Framing is "adult" or "parent". Empty lets the contract's framing
	// rules decide.
	Framing string `json:"framing,omitempty" yaml:"framing,omitempty"`
}

// Normalized returns a trimmed copy with list fields never nil.
func (r Request) Normalized() Request {
	out := Request{
		Name:         strings.TrimSpace(r.Name),
		Focus:        strings.TrimSpace(r.Focus),
		Years:        r.Years,
		TargetClient: strings.TrimSpace(r.TargetClient),
		Energizing:   cleanList(r.Energizing),
		Draining:     cleanList(r.Draining),
		Topics:       cleanList(r.Topics),
		Framing:      strings.ToLower(strings.TrimSpace(r.Framing)),
	}
	return out
}

// Validate reports missing required fields.
func (r Request) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(r.Focus) == "" {
		errs = append(errs, errors.New("focus is required"))
	}
	if strings.TrimSpace(r.TargetClient) == "" {
		errs = append(errs, errors.New("target client is required"))
	}
	if r.Years < 0 {
		errs = append(errs, fmt.Errorf("years of practice %d must not be negative", r.Years))
	}
	return errors.Join(errs...)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Hook is one marketing hook. Subline holds an optional parenthesized
// second line.
type Hook struct {
	Text    string `json:"text"`
	Subline string `json:"subline,omitempty"`
}

// Section is the extracted value of one contract section.
type Section struct {
	Name  string `json:"name"`
	Text  string `json:"text,omitempty"`
	Items []Hook `json:"items,omitempty"`
	List  bool   `json:"list,omitempty"`
}

// Empty reports whether nothing was extracted for the section.
func (s Section) Empty() bool {
	if s.List {
		return len(s.Items) == 0
	}
	return strings.TrimSpace(s.Text) == ""
}

// Persona holds one field per contract section, in contract order.
// Missing markers leave a field empty.
type Persona struct {
	Sections []Section `json:"sections"`
}

// Get returns the named section.
func (p *Persona) Get(name string) (Section, bool) {
	for _, s := range p.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Text returns the text of the named section, or "".
func (p *Persona) Text(name string) string {
	s, _ := p.Get(name)
	return s.Text
}

// Items returns the item texts of the named list section.
func (p *Persona) Items(name string) []string {
	s, _ := p.Get(name)
	out := make([]string, len(s.Items))
	for i, h := range s.Items {
		out[i] = h.Text
	}
	return out
}

// Set replaces the text of the named section.
func (p *Persona) Set(name, text string) {
	for i := range p.Sections {
		if p.Sections[i].Name == name {
			p.Sections[i].Text = text
			return
		}
	}
}

// Clone returns a deep copy.
func (p *Persona) Clone() *Persona {
	if p == nil {
		return nil
	}
	out := &Persona{Sections: make([]Section, len(p.Sections))}
	for i, s := range p.Sections {
		s.Items = append([]Hook(nil), s.Items...)
		out.Sections[i] = s
	}
	return out
}

// AllText concatenates every field, items included, one per line.
func (p *Persona) AllText() string {
	var parts []string
	for _, s := range p.Sections {
		if s.List {
			for _, h := range s.Items {
				parts = append(parts, h.Text)
				if h.Subline != "" {
					parts = append(parts, h.Subline)
				}
			}
			continue
		}
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Card is the typed view of a persona produced by the default contract.
type Card struct {
	Title     string `json:"title"`
	Narrative string `json:"narrative"`
	Needs     string `json:"needs"`
	Fit       string `json:"fit"`
	Hooks     []Hook `json:"hooks"`
}

// Card maps the persona onto the default section names. Sections the
// contract does not declare stay empty.
func (p *Persona) Card() Card {
	hooks, _ := p.Get("hooks")
	return Card{
		Title:     p.Text("title"),
		Narrative: p.Text("narrative"),
		Needs:     p.Text("needs"),
		Fit:       p.Text("fit"),
		Hooks:     append([]Hook{}, hooks.Items...),
	}
}

// New returns an empty persona shaped by the contract.
func New(c *contract.Contract) *Persona {
	p := &Persona{Sections: make([]Section, len(c.Sections))}
	for i, s := range c.Sections {
		p.Sections[i] = Section{Name: s.Name, List: s.IsList()}
	}
	return p
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
