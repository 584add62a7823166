package cli

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/apresai/personagen/internal/gateway"
	"github.com/apresai/personagen/internal/persona"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindNumber
	kindList // comma-separated
	kindChoice
	kindSubmit
)

type choice struct {
	label string
	value string
}

// field is one row of the setup wizard.
type field struct {
	label       string
	kind        fieldKind
	value       string
	placeholder string
	choices     []choice
	required    bool
	pick        int // highlighted choice while open
}

func (f *field) open() {
	for i, c := range f.choices {
		if c.value == f.value {
			f.pick = i
			return
		}
	}
	f.pick = 0
}

func (f *field) movePick(delta int) {
	f.pick = min(max(f.pick+delta, 0), len(f.choices)-1)
}

func (f *field) display() string {
	for _, c := range f.choices {
		if c.value == f.value {
			return c.label
		}
	}
	return f.value
}

// typeKey edits a text-like field. It reports whether the key was consumed.
func (f *field) typeKey(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyBackspace:
		if r := []rune(f.value); len(r) > 0 {
			f.value = string(r[:len(r)-1])
		}
	case tea.KeyCtrlU:
		f.value = ""
	case tea.KeyRunes, tea.KeySpace:
		if f.kind == kindNumber && strings.TrimFunc(string(msg.Runes), isDigit) != "" {
			return true
		}
		f.value += string(msg.Runes)
	default:
		return false
	}
	return true
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

type wizardMode int

const (
	browsing wizardMode = iota
	editing
)

// wizard is the bubbletea model behind --tui.
type wizard struct {
	fields []field
	row    int
	mode   wizardMode
	err    error
	done   bool
	quit   bool
}

type wizardStyles struct {
	title, label, value, dim, pointer, star lipgloss.Style
	choice, picked, button, buttonIdle      lipgloss.Style
	help, failure, rule                     lipgloss.Style
}

var ui = wizardStyles{
	title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).MarginBottom(1),
	label:      lipgloss.NewStyle().Width(16).Align(lipgloss.Right).MarginRight(2),
	value:      lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
	dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("#555555")).Italic(true),
	pointer:    lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true),
	star:       lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
	choice:     lipgloss.NewStyle().PaddingLeft(4),
	picked:     lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true).PaddingLeft(2),
	button:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 3),
	buttonIdle: lipgloss.NewStyle().Foreground(lipgloss.Color("#555555")).Padding(0, 3),
	help:       lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")).MarginTop(1),
	failure:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
	rule: lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).
		BorderForeground(lipgloss.Color("#7D56F4")).MarginBottom(1),
}

// Row order of the wizard.
const (
	rowName = iota
	rowFocus
	rowTarget
	rowYears
	rowEnergizing
	rowDraining
	rowTopics
	rowFraming
	rowModel
	rowSummary
	rowOutput
	rowSubmit
)

func modelChoices() []choice {
	names := gateway.ModelNames()
	out := make([]choice, 0, len(names))
	for _, name := range names {
		label := name + " (" + gateway.ProviderFor(name) + ")"
		if name == gateway.DefaultModel {
			label += " (default)"
		}
		out = append(out, choice{label: label, value: name})
	}
	return out
}

func newWizard(req persona.Request) wizard {
	years := ""
	if req.Years > 0 {
		years = strconv.Itoa(req.Years)
	}
	model := flagModel
	if model == "" {
		model = gateway.DefaultModel
	}
	summary := "yes"
	if flagNoSummary {
		summary = "no"
	}

	return wizard{fields: []field{
		rowName:       {label: "Name", value: req.Name, required: true},
		rowFocus:      {label: "Focus", value: req.Focus, required: true, placeholder: "e.g. anxiety, grief, couples"},
		rowTarget:     {label: "Target client", value: req.TargetClient, required: true, placeholder: "e.g. adults, parents of teens"},
		rowYears:      {label: "Years", kind: kindNumber, value: years, placeholder: "optional"},
		rowEnergizing: {label: "Energizing", kind: kindList, value: strings.Join(req.Energizing, ", "), placeholder: "qualities, comma-separated"},
		rowDraining:   {label: "Draining", kind: kindList, value: strings.Join(req.Draining, ", "), placeholder: "qualities, comma-separated"},
		rowTopics:     {label: "Topics", kind: kindList, value: strings.Join(req.Topics, ", "), placeholder: "comma-separated"},
		rowFraming: {label: "Framing", kind: kindChoice, value: req.Framing, choices: []choice{
			{"Infer from target client", ""},
			{"Adult: the client is the person in therapy", persona.FramingAdult},
			{"Parent: the client seeks help for a child", persona.FramingParent},
		}},
		rowModel: {label: "Model", kind: kindChoice, value: model, choices: modelChoices()},
		rowSummary: {label: "Summary", kind: kindChoice, value: summary, choices: []choice{
			{"Also write the therapist summary", "yes"},
			{"Persona only", "no"},
		}},
		rowOutput: {label: "Output", value: flagOutput, placeholder: "optional result JSON path"},
		rowSubmit: {kind: kindSubmit},
	}}
}

func (w wizard) Init() tea.Cmd { return nil }

func (w wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return w, nil
	}
	if w.mode == editing {
		w.edit(key)
		return w, nil
	}

	switch key.String() {
	case "ctrl+c", "q":
		w.quit = true
		return w, tea.Quit
	case "up", "k":
		w.row = max(w.row-1, 0)
	case "down", "j", "tab":
		w.row = min(w.row+1, len(w.fields)-1)
	case "enter", " ":
		if w.fields[w.row].kind == kindSubmit {
			if w.err = w.check(); w.err == nil {
				w.done = true
				return w, tea.Quit
			}
			return w, nil
		}
		w.err = nil
		w.mode = editing
		w.fields[w.row].open()
	}
	return w, nil
}

// edit handles a key while the current row is open.
func (w *wizard) edit(key tea.KeyMsg) {
	f := &w.fields[w.row]
	switch key.String() {
	case "esc":
		w.mode = browsing
		return
	case "enter":
		if f.kind == kindChoice {
			f.value = f.choices[f.pick].value
		}
		w.mode = browsing
		w.row = min(w.row+1, len(w.fields)-1)
		return
	}

	if f.kind != kindChoice {
		f.typeKey(key)
		return
	}
	switch key.String() {
	case "up", "k":
		f.movePick(-1)
	case "down", "j":
		f.movePick(1)
	case " ":
		f.value = f.choices[f.pick].value
		w.mode = browsing
		w.row = min(w.row+1, len(w.fields)-1)
	}
}

func (w wizard) check() error {
	if v := strings.TrimSpace(w.fields[rowYears].value); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("years must be a number, got %q", v)
		}
	}
	return w.request().Validate()
}

// request reads the persona fields back out of the wizard.
func (w wizard) request() persona.Request {
	years, _ := strconv.Atoi(strings.TrimSpace(w.fields[rowYears].value))
	return persona.Request{
		Name:         w.fields[rowName].value,
		Focus:        w.fields[rowFocus].value,
		TargetClient: w.fields[rowTarget].value,
		Years:        years,
		Energizing:   splitList(w.fields[rowEnergizing].value),
		Draining:     splitList(w.fields[rowDraining].value),
		Topics:       splitList(w.fields[rowTopics].value),
		Framing:      w.fields[rowFraming].value,
	}.Normalized()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (w wizard) View() string {
	var b strings.Builder
	b.WriteString(ui.rule.Render(ui.title.Render("Persona Generator")) + "\n")

	for i, f := range w.fields {
		active := i == w.row
		if f.kind == kindSubmit {
			btn := ui.buttonIdle
			if active {
				btn = ui.button
			}
			b.WriteString("\n  " + btn.Render(" Generate ") + "\n")
			continue
		}
		b.WriteString(w.viewRow(f, active) + "\n")
		if active && w.mode == editing && f.kind == kindChoice {
			for j, c := range f.choices {
				if j == f.pick {
					b.WriteString(ui.picked.Render("> "+c.label) + "\n")
				} else {
					b.WriteString(ui.choice.Render("  "+c.label) + "\n")
				}
			}
		}
	}

	if w.err != nil {
		b.WriteString("\n" + ui.failure.Render("  Error: "+w.err.Error()) + "\n")
	}
	b.WriteString(ui.help.Render("  " + w.hint()))
	b.WriteString("\n")
	return b.String()
}

func (w wizard) viewRow(f field, active bool) string {
	pointer := "  "
	if active {
		pointer = ui.pointer.Render("> ")
	}
	label := f.label
	if f.required {
		label += ui.star.Render("*")
	}

	var value string
	switch {
	case active && w.mode == editing && f.kind != kindChoice:
		value = ui.value.Render(f.value + "_")
	case f.kind == kindChoice:
		value = ui.value.Render(f.display())
		if f.value == "" {
			value = ui.dim.Render(f.display())
		}
	case f.value == "" && f.placeholder != "":
		value = ui.dim.Render("(" + f.placeholder + ")")
	case f.value == "":
		value = ui.dim.Render("(not set)")
	default:
		value = ui.value.Render(f.value)
	}
	return pointer + ui.label.Render(label) + " " + value
}

func (w wizard) hint() string {
	switch {
	case w.mode == browsing:
		return "j/k or arrows to move | enter to edit | q to quit"
	case w.fields[w.row].kind == kindChoice:
		return "j/k or arrows to pick | enter to select | esc to cancel"
	default:
		return "type | enter to confirm | esc to leave | ctrl+u to clear"
	}
}

// runInteractiveSetup opens the wizard prefilled with req and returns the
// edited request. Model, summary and output choices land in the generate flags.
func runInteractiveSetup(req persona.Request) (persona.Request, error) {
	out, err := tea.NewProgram(newWizard(req), tea.WithAltScreen()).Run()
	if err != nil {
		return req, fmt.Errorf("TUI error: %w", err)
	}
	w := out.(wizard)
	switch {
	case w.quit:
		return req, fmt.Errorf("cancelled")
	case !w.done:
		return req, fmt.Errorf("generation cancelled")
	}

	flagModel = w.fields[rowModel].value
	flagNoSummary = w.fields[rowSummary].value == "no"
	flagOutput = strings.TrimSpace(w.fields[rowOutput].value)
	return w.request(), nil
}
