package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/personagen/internal/contract"
	"github.com/apresai/personagen/internal/gateway"
	"github.com/apresai/personagen/internal/persona"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadRequestYAML(t *testing.T) {
	path := writeFile(t, "req.yaml", `
name: Dr. Maya Chen
focus: anxiety
target_client: young professionals
years: 8
energizing: [curious, self-aware]
topics:
  - perfectionism
`)
	req, err := loadRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Maya Chen", req.Name)
	assert.Equal(t, 8, req.Years)
	assert.Equal(t, []string{"curious", "self-aware"}, req.Energizing)
	assert.Equal(t, []string{"perfectionism"}, req.Topics)
}

func TestLoadRequestJSON(t *testing.T) {
	path := writeFile(t, "req.json", `{"name":"Sam","focus":"grief","target_client":"parents of teens","draining":["blame"]}`)
	req, err := loadRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "parents of teens", req.TargetClient)
	assert.Equal(t, []string{"blame"}, req.Draining)
}

func TestLoadRequestRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "req.yaml", "name: Sam\nspecialty: grief\n")
	_, err := loadRequest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "specialty")
}

func TestLoadRequestEmpty(t *testing.T) {
	_, err := loadRequest(writeFile(t, "req.yaml", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestBuildRequestFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "req.yaml", "name: File Name\nfocus: anxiety\ntarget_client: adults\n")
	t.Cleanup(func() {
		flagRequest, flagName, flagTopics = "", "", nil
	})

	cmd := generateCmd
	require.NoError(t, cmd.ParseFlags([]string{"--request", path, "--name", "Flag Name", "--topics", "burnout,sleep"}))
	req, err := buildRequest(cmd)
	require.NoError(t, err)
	assert.Equal(t, "Flag Name", req.Name)
	assert.Equal(t, "anxiety", req.Focus)
	assert.Equal(t, []string{"burnout", "sleep"}, req.Topics)
}

func TestCheckAPIKeys(t *testing.T) {
	err := checkAPIKeys("sonnet", gateway.Keys{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	assert.NoError(t, checkAPIKeys("sonnet", gateway.Keys{Anthropic: "k"}))
	for _, name := range gateway.ModelNames() {
		if gateway.ProviderFor(name) == gateway.ProviderBedrock {
			assert.NoError(t, checkAPIKeys(name, gateway.Keys{}), name)
		}
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PERSONAGEN_CONTRACT", contract.DefaultSource)
	t.Setenv("PERSONAGEN_MODEL", gateway.DefaultModel)
	t.Setenv("SECRET_PREFIX", "")
	t.Cleanup(func() {
		flagJSON, flagFailBelow = false, false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommandJSON(t *testing.T) {
	path := writeFile(t, "raw.txt", "**PERSONA TITLE:** Quiet Overthinker\n\nnothing else here")
	out, err := runCLI(t, "validate", "--json", path)
	require.NoError(t, err)

	var got struct {
		Validation persona.Validation `json:"validation"`
		Persona    persona.Card       `json:"persona"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Validation.Accepted)
	assert.NotEmpty(t, got.Validation.Issues)
}

func TestValidateCommandStrict(t *testing.T) {
	path := writeFile(t, "raw.txt", "no markers at all")
	_, err := runCLI(t, "validate", "--strict", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below the acceptance threshold")
}

func TestContractShow(t *testing.T) {
	out, err := runCLI(t, "contract", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "name: ideal-client-persona")
	assert.Contains(t, out, "**KEY HOOKS:**")
}

func TestContractCheckReportsInvalid(t *testing.T) {
	bad := writeFile(t, "bad.yaml", "name: broken\nsections: []\n")
	out, err := runCLI(t, "contract", "check", contract.DefaultSource, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 contracts invalid")
	assert.Contains(t, out, "default: ok")
}

func press(w wizard, keys ...tea.KeyMsg) wizard {
	for _, k := range keys {
		next, _ := w.Update(k)
		w = next.(wizard)
	}
	return w
}

func typeText(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	down  = tea.KeyMsg{Type: tea.KeyDown}
)

func TestWizardRequiresFields(t *testing.T) {
	w := newWizard(persona.Request{})
	w.row = rowSubmit
	w = press(w, enter)
	require.Error(t, w.err)
	assert.False(t, w.done)
}

func TestWizardEditsRequest(t *testing.T) {
	w := newWizard(persona.Request{Focus: "anxiety", TargetClient: "adults"})
	w = press(w, enter, typeText("Dr. Lee"), enter)
	assert.Equal(t, "Dr. Lee", w.fields[rowName].value)
	assert.Equal(t, rowFocus, w.row)

	w.row = rowTopics
	w = press(w, enter, typeText("burnout, sleep ,"), enter)

	w.row = rowFraming
	w = press(w, enter, down, down, enter)
	assert.Equal(t, persona.FramingParent, w.fields[rowFraming].value)

	w.row = rowSubmit
	w = press(w, enter)
	require.NoError(t, w.err)
	assert.True(t, w.done)

	req := w.request()
	assert.Equal(t, "Dr. Lee", req.Name)
	assert.Equal(t, []string{"burnout", "sleep"}, req.Topics)
	assert.Equal(t, persona.FramingParent, req.Framing)
}

func TestWizardEscapeKeepsChoice(t *testing.T) {
	w := newWizard(persona.Request{})
	w.row = rowModel
	before := w.fields[rowModel].value
	w = press(w, enter, down, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, before, w.fields[rowModel].value)
	assert.Equal(t, browsing, w.mode)
}

func TestWizardYearsAcceptsDigitsOnly(t *testing.T) {
	w := newWizard(persona.Request{Name: "A", Focus: "b", TargetClient: "c"})
	w.row = rowYears
	w = press(w, enter, typeText("ten"), typeText("12"), enter)
	assert.Equal(t, "12", w.fields[rowYears].value)
	assert.Equal(t, 12, w.request().Years)

	w.fields[rowYears].value = "1 2"
	err := w.check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "years")
}

func TestWizardQuit(t *testing.T) {
	w := press(newWizard(persona.Request{}), typeText("q"))
	assert.True(t, w.quit)
}
