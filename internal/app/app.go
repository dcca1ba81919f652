package app

import (
	"github.com/spf13/cobra"

	"github.com/xab-mack/contractscan/internal/cli"
)

func BuildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "contractscan",
		Short:        "Static analyzer for Solidity smart contracts",
		SilenceUsage: true,
	}
	cli.AddCommands(root)
	return root
}
