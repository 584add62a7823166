package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apresai/personagen/internal/contract"
)

var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Inspect and check content contracts",
}

var contractShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved content contract as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd.Context(), cmd.ErrOrStderr(), false)
		if err != nil {
			return err
		}
		c, err := sess.contract(cmd.Context())
		if err != nil {
			return err
		}
		data, err := contract.Marshal(c)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var contractCheckCmd = &cobra.Command{
	Use:   "check <file|s3://bucket/key>...",
	Short: "Validate one or more contract files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd.Context(), cmd.ErrOrStderr(), false)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		failed := 0
		for _, src := range args {
			c, err := sess.loader.Load(cmd.Context(), src)
			if err != nil {
				failed++
				fmt.Fprintln(out, issueStyle.Render(fmt.Sprintf("%s: %v", src, err)))
				continue
			}
			fmt.Fprintln(out, acceptedStyle.Render(fmt.Sprintf("%s: ok (%s@%s, %d sections, %d attempts)",
				src, c.Name, c.Version, len(c.Sections), c.Attempts())))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d contracts invalid", failed, len(args))
		}
		return nil
	},
}

func init() {
	contractCmd.AddCommand(contractShowCmd)
	contractCmd.AddCommand(contractCheckCmd)
}
