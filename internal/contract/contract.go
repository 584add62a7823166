package contract

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Contract describes the shape a generated persona must take: which sections
// the model emits, how each one is marked, how long it may be, and which
// language is off limits. It is versioned data, never user input.
type Contract struct {
	Version       string            `yaml:"version" json:"version"`
	Name          string            `yaml:"name" json:"name"`
	Sections      []Section         `yaml:"sections" json:"sections"`
	Forbidden     []string          `yaml:"forbidden" json:"forbidden"`
	Discouraged   []string          `yaml:"discouraged" json:"discouraged"`
	Markers       Markers           `yaml:"markers" json:"markers"`
	Scoring       Scoring           `yaml:"scoring" json:"scoring"`
	MaxRetries    int               `yaml:"max_retries" json:"max_retries"`
	Generation    Generation        `yaml:"generation" json:"generation"`
	Voice         []string          `yaml:"voice" json:"voice"`
	Exemplar      string            `yaml:"exemplar" json:"exemplar"`
	RetryGuidance []string          `yaml:"retry_guidance" json:"retry_guidance"`
	Framing       Framing           `yaml:"framing" json:"framing"`
	Summary       *Summary          `yaml:"summary,omitempty" json:"summary,omitempty"`
	Fallbacks     map[string]string `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty"`
}

// Section is one named field of the persona.
type Section struct {
	Name        string    `yaml:"name" json:"name"`
	Label       string    `yaml:"label" json:"label"`
	Marker      string    `yaml:"marker" json:"marker"`
	Aliases     []string  `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Words       Range     `yaml:"words" json:"words"`
	Paragraphs  int       `yaml:"paragraphs,omitempty" json:"paragraphs,omitempty"`
	Instruction string    `yaml:"instruction" json:"instruction"`
	List        *ListSpec `yaml:"list,omitempty" json:"list,omitempty"`
}

// ListSpec marks a section whose content is a list of short items (hooks).
type ListSpec struct {
	ItemMarker  string   `yaml:"item_marker" json:"item_marker"`
	ItemAliases []string `yaml:"item_aliases,omitempty" json:"item_aliases,omitempty"`
	Expected    int      `yaml:"expected" json:"expected"`
	ItemWords   Range    `yaml:"item_words,omitempty" json:"item_words,omitempty"`
}

// Range is an inclusive word-count range. A zero bound is unbounded.
type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Markers holds the word lists behind the emotional-specificity and
// narrative-flow heuristics.
type Markers struct {
	Emotional    []string `yaml:"emotional" json:"emotional"`
	MinEmotional int      `yaml:"min_emotional" json:"min_emotional"`
	Narrative    []string `yaml:"narrative" json:"narrative"`
	MinNarrative int      `yaml:"min_narrative" json:"min_narrative"`
}

// Scoring configures the quality score.
type Scoring struct {
	StructuralPenalty int `yaml:"structural_penalty" json:"structural_penalty"`
	ContentPenalty    int `yaml:"content_penalty" json:"content_penalty"`
	WarningPenalty    int `yaml:"warning_penalty" json:"warning_penalty"`
	Threshold         int `yaml:"threshold" json:"threshold"`
}

// Generation holds model call parameters.
type Generation struct {
	MaxTokens       int64         `yaml:"max_tokens" json:"max_tokens"`
	Temperature     float64       `yaml:"temperature" json:"temperature"`
	GatewayAttempts int           `yaml:"gateway_attempts" json:"gateway_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// Framing is the versioned rule set that decides whether the client persona
// is an adult seeking therapy or a parent seeking help for a child.
type Framing struct {
	Version      string            `yaml:"version" json:"version"`
	Default      string            `yaml:"default" json:"default"`
	Descriptions map[string]string `yaml:"descriptions" json:"descriptions"`
	Rules        []FramingRule     `yaml:"rules" json:"rules"`
}

// FramingRule selects Framing when any keyword appears in any of Fields.
// Fields name request attributes: "target" or "focus".
type FramingRule struct {
	Framing  string   `yaml:"framing" json:"framing"`
	Fields   []string `yaml:"fields" json:"fields"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Summary configures the therapist-facing summary sub-task.
type Summary struct {
	Label       string `yaml:"label" json:"label"`
	Words       Range  `yaml:"words" json:"words"`
	Instruction string `yaml:"instruction" json:"instruction"`
}

// MarshalYAML writes RetryDelay as a duration string; yaml.v3 only decodes
// durations from strings.
func (g Generation) MarshalYAML() (interface{}, error) {
	return struct {
		MaxTokens       int64   `yaml:"max_tokens"`
		Temperature     float64 `yaml:"temperature"`
		GatewayAttempts int     `yaml:"gateway_attempts"`
		RetryDelay      string  `yaml:"retry_delay"`
	}{g.MaxTokens, g.Temperature, g.GatewayAttempts, g.RetryDelay.String()}, nil
}

func (r Range) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// Contains reports whether n falls inside the range.
func (r Range) Contains(n int) bool {
	if r.Min > 0 && n < r.Min {
		return false
	}
	if r.Max > 0 && n > r.Max {
		return false
	}
	return true
}

func (r Range) String() string {
	switch {
	case r.Min > 0 && r.Max > 0:
		return fmt.Sprintf("%d-%d", r.Min, r.Max)
	case r.Min > 0:
		return fmt.Sprintf("at least %d", r.Min)
	case r.Max > 0:
		return fmt.Sprintf("at most %d", r.Max)
	default:
		return "any length"
	}
}

// IsList reports whether the section holds a list of items.
func (s Section) IsList() bool { return s.List != nil }

// AllMarkers returns the primary marker followed by its aliases.
func (s Section) AllMarkers() []string {
	out := make([]string, 0, 1+len(s.Aliases))
	out = append(out, s.Marker)
	out = append(out, s.Aliases...)
	return out
}

// DisplayLabel returns Label, falling back to the section name.
func (s Section) DisplayLabel() string {
	if s.Label != "" {
		return s.Label
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

// ItemMarkers returns the primary item marker followed by its aliases.
func (l ListSpec) ItemMarkers() []string {
	out := make([]string, 0, 1+len(l.ItemAliases))
	out = append(out, l.ItemMarker)
	out = append(out, l.ItemAliases...)
	return out
}

// Section returns the named section.
func (c *Contract) Section(name string) (Section, bool) {
	for _, s := range c.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// SectionNames returns section names in declared order.
func (c *Contract) SectionNames() []string {
	names := make([]string, len(c.Sections))
	for i, s := range c.Sections {
		names[i] = s.Name
	}
	return names
}

// Attempts is the maximum number of generation attempts: the first one plus
// MaxRetries regenerations.
func (c *Contract) Attempts() int {
	return 1 + c.MaxRetries
}

// FramingDescription returns the prompt line for a framing value.
func (c *Contract) FramingDescription(framing string) string {
	if d, ok := c.Framing.Descriptions[framing]; ok {
		return d
	}
	return c.Framing.Descriptions[c.Framing.Default]
}

func (c *Contract) applyDefaults() {
	if c.Scoring.StructuralPenalty == 0 {
		c.Scoring.StructuralPenalty = 10
	}
	if c.Scoring.ContentPenalty == 0 {
		c.Scoring.ContentPenalty = 15
	}
	if c.Scoring.WarningPenalty == 0 {
		c.Scoring.WarningPenalty = 5
	}
	if c.Scoring.Threshold == 0 {
		c.Scoring.Threshold = 95
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = 2000
	}
	if c.Generation.GatewayAttempts == 0 {
		c.Generation.GatewayAttempts = 3
	}
	if c.Generation.RetryDelay == 0 {
		c.Generation.RetryDelay = time.Second
	}
	if c.Framing.Default == "" {
		c.Framing.Default = "adult"
	}
	for i := range c.Sections {
		if l := c.Sections[i].List; l != nil && l.ItemMarker == "" {
			l.ItemMarker = "- "
		}
	}
}

// Validate checks the contract for internal consistency.
func (c *Contract) Validate() error {
	var errs []error
	if len(c.Sections) == 0 {
		errs = append(errs, errors.New("no sections declared"))
	}

	names := map[string]bool{}
	markers := map[string]string{}
	lists := 0
	for i, s := range c.Sections {
		if strings.TrimSpace(s.Name) == "" {
			errs = append(errs, fmt.Errorf("section %d has no name", i))
			continue
		}
		if names[s.Name] {
			errs = append(errs, fmt.Errorf("section %q declared twice", s.Name))
		}
		names[s.Name] = true

		for _, m := range s.AllMarkers() {
			if strings.TrimSpace(m) == "" {
				errs = append(errs, fmt.Errorf("section %q has an empty marker", s.Name))
				continue
			}
			key := strings.ToLower(m)
			if owner, ok := markers[key]; ok {
				errs = append(errs, fmt.Errorf("marker %q used by both %q and %q", m, owner, s.Name))
			}
			markers[key] = s.Name
		}

		if s.Words.Min < 0 || s.Words.Max < 0 || (s.Words.Max > 0 && s.Words.Min > s.Words.Max) {
			errs = append(errs, fmt.Errorf("section %q has invalid word range %d-%d", s.Name, s.Words.Min, s.Words.Max))
		}
		if s.List != nil {
			lists++
			if s.List.Expected <= 0 {
				errs = append(errs, fmt.Errorf("list section %q needs a positive expected item count", s.Name))
			}
			for _, m := range s.List.ItemMarkers() {
				if strings.TrimSpace(m) == "" {
					errs = append(errs, fmt.Errorf("list section %q has an empty item marker", s.Name))
				}
			}
		}
	}
	if lists > 1 {
		errs = append(errs, fmt.Errorf("at most one list section is supported, found %d", lists))
	}

	if c.Scoring.Threshold < 0 || c.Scoring.Threshold > 100 {
		errs = append(errs, fmt.Errorf("acceptance threshold %d outside 0-100", c.Scoring.Threshold))
	}
	if c.Scoring.StructuralPenalty < 0 || c.Scoring.ContentPenalty < 0 || c.Scoring.WarningPenalty < 0 {
		errs = append(errs, errors.New("penalties must not be negative"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries %d must not be negative", c.MaxRetries))
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %.2f outside 0-2", c.Generation.Temperature))
	}

	for _, r := range c.Framing.Rules {
		if _, ok := c.Framing.Descriptions[r.Framing]; !ok {
			errs = append(errs, fmt.Errorf("framing rule references undescribed framing %q", r.Framing))
		}
		for _, f := range r.Fields {
			if f != "target" && f != "focus" {
				errs = append(errs, fmt.Errorf("framing rule field %q must be target or focus", f))
			}
		}
	}
	if len(c.Framing.Descriptions) > 0 {
		if _, ok := c.Framing.Descriptions[c.Framing.Default]; !ok {
			errs = append(errs, fmt.Errorf("default framing %q has no description", c.Framing.Default))
		}
	}

	for name := range c.Fallbacks {
		if !names[name] {
			errs = append(errs, fmt.Errorf("fallback for unknown section %q", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid contract %s: %w", c.Version, errors.Join(errs...))
	}
	return nil
}
