package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"amm-lab/internal/artifact"
)

func newCompileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Obtain contract artifacts and print a summary",
		Long: `compile resolves every contract through the configured artifact source
(--artifacts-dir, --contracts-dir with solc, or the embedded sources) and
reports the ABI and bytecode it produced. Compiler diagnostics are printed
on failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load(false)
			if err != nil {
				return err
			}
			provider, err := newProvider(cfg)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tABI ENTRIES\tBYTECODE")
			for _, kind := range artifact.Kinds {
				art, err := provider.Artifact(cmd.Context(), kind)
				if err != nil {
					return err
				}
				var entries []json.RawMessage
				if err := json.Unmarshal(art.ABI, &entries); err != nil {
					return fmt.Errorf("%s: decode ABI: %w", kind, err)
				}
				fmt.Fprintf(tw, "%s\t%d\t%d bytes\n", kind, len(entries), len(art.Bytecode))
			}
			return tw.Flush()
		},
	}
}
