package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/apresai/personagen/internal/persona"
)

var flagFailBelow bool

var validateCmd = &cobra.Command{
	Use:   "validate [raw.txt]",
	Short: "Score saved model output against the content contract without calling a model",
	Long: "Runs the section extractor, normalizer and quality validator over raw model text.\n" +
		"Reads standard input when no file is given or the file is \"-\".",
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&flagJSON, "json", false, "Print the validation JSON")
	validateCmd.Flags().BoolVar(&flagFailBelow, "strict", false, "Exit non-zero when the persona is not accepted")
}

func runValidate(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read raw output: %w", err)
	}

	sess, err := newSession(cmd.Context(), cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	c, err := sess.contract(cmd.Context())
	if err != nil {
		return err
	}

	p, fixes := persona.NewNormalizer().Normalize(persona.NewExtractor(c).Extract(string(raw)))
	v := persona.NewValidator(c).Validate(p)

	out := cmd.OutOrStdout()
	if flagJSON {
		if err := printJSON(out, map[string]any{"persona": p.Card(), "validation": v, "fixes": fixes}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out)
		printPersona(out, p, c)
		for _, f := range fixes {
			fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("fixed %s in %s", f.Rule, f.Section)))
		}
		if v.Accepted {
			fmt.Fprintln(out, acceptedStyle.Render(fmt.Sprintf("Accepted: %d/100", v.Score)))
		} else {
			fmt.Fprintln(out, exhaustedStyle.Render(fmt.Sprintf("Rejected: %d/100 (minimum %d)", v.Score, v.Threshold)))
		}
		printIssues(out, v.Issues)
	}

	if flagFailBelow && !v.Accepted {
		return fmt.Errorf("persona scored %d, below the acceptance threshold %d", v.Score, v.Threshold)
	}
	return nil
}
