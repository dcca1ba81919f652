package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xab-mack/contractscan/internal/plugins"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rules", Short: "List available rules"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List built-in detectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range plugins.Builtin().Metas() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", m.ID, m.Severity, m.Title, strings.Join(m.References, ","))
			}
			return nil
		},
	})
	return cmd
}
