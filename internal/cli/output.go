package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/apresai/personagen/internal/contract"
	"github.com/apresai/personagen/internal/persona"
	"github.com/apresai/personagen/internal/pipeline"
)

var (
	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	bodyStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Width(88)

	hookStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			PaddingLeft(2)

	sublineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Italic(true).
			PaddingLeft(6)

	acceptedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	exhaustedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))

	issueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			PaddingLeft(2)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C")).
			PaddingLeft(2)
)

// loadRequest reads a generation request from YAML or JSON.
func loadRequest(path string) (persona.Request, error) {
	var req persona.Request
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read request from %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			return req, fmt.Errorf("request %s is empty", path)
		}
		return req, fmt.Errorf("parse request from %s: %w", path, err)
	}
	return req, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult renders the persona, its score and any issues for a terminal.
func printResult(w io.Writer, res *pipeline.Result, c *contract.Contract) {
	fmt.Fprintln(w)
	if res.Summary != "" && c.Summary != nil {
		fmt.Fprintln(w, sectionStyle.Render(strings.ToUpper(c.Summary.Label)))
		fmt.Fprintln(w, bodyStyle.Render(res.Summary))
		fmt.Fprintln(w)
	}
	printPersona(w, res.Persona, c)

	status := acceptedStyle.Render(fmt.Sprintf("Accepted: %d/100", res.Validation.Score))
	if !res.Accepted() {
		status = exhaustedStyle.Render(fmt.Sprintf("Below threshold: best score %d/100 (minimum %d), attempt %d of %d",
			res.Validation.Score, res.Validation.Threshold, res.BestAttempt, len(res.Attempts)))
	}
	fmt.Fprintln(w, status)
	printIssues(w, res.Validation.Issues)
	for _, name := range res.Fallbacks {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%s: filled with fallback text", name)))
	}
	for _, is := range res.SummaryIssues {
		fmt.Fprintln(w, warnStyle.Render(is.Message))
	}
	if res.SummaryError != "" {
		fmt.Fprintln(w, warnStyle.Render("summary failed: "+res.SummaryError))
	}
	fmt.Fprintf(w, "\n  %s  |  %s  |  contract %s@%s  |  %s\n",
		res.RequestID, res.Model, res.ContractName, res.ContractVersion, res.Elapsed.Round(1e6))
}

func printPersona(w io.Writer, p *persona.Persona, c *contract.Contract) {
	for _, s := range c.Sections {
		got, _ := p.Get(s.Name)
		fmt.Fprintln(w, sectionStyle.Render(strings.ToUpper(s.DisplayLabel())))
		switch {
		case got.Empty():
			fmt.Fprintln(w, bodyStyle.Render("(missing)"))
		case s.IsList():
			for _, h := range got.Items {
				fmt.Fprintln(w, hookStyle.Render("- "+h.Text))
				if h.Subline != "" {
					fmt.Fprintln(w, sublineStyle.Render(h.Subline))
				}
			}
		default:
			fmt.Fprintln(w, bodyStyle.Render(got.Text))
		}
		fmt.Fprintln(w)
	}
}

func printIssues(w io.Writer, issues []persona.Issue) {
	for _, is := range issues {
		style := issueStyle
		if is.Category == persona.CategoryWarning {
			style = warnStyle
		}
		fmt.Fprintln(w, style.Render(fmt.Sprintf("[%s] %s", is.Category, is.Message)))
	}
}
