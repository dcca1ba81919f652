package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

func newCfgCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cfg <file> <Contract.function>",
		Short: "Print the control-flow graph of a function in DOT format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return model.ReadError(args[0], err)
			}
			return writeCFG(cmd.OutOrStdout(), args[0], string(src), args[1])
		},
	}
}

// writeCFG renders the CFG of entity (Contract.function) in src. Overloads
// are rendered one after the other.
func writeCFG(w io.Writer, path, src, entity string) error {
	contractName, fnName, ok := strings.Cut(entity, ".")
	if !ok {
		return fmt.Errorf("want Contract.function, got %q", entity)
	}
	unit, errs := solidity.Parse(path, src)
	if err := errs.Err(); err != nil {
		return err
	}
	tbl, _ := semantic.Resolve(unit)
	c := tbl.Contract(contractName)
	if c == nil {
		return fmt.Errorf("%s: no contract %s", path, contractName)
	}
	var found bool
	for _, sym := range c.FindFunctions(fnName) {
		fn := sym.FunctionDecl()
		if fn == nil || fn.Body == nil {
			continue
		}
		if tbl.Excluded(fn) {
			return fmt.Errorf("%s: %s has unresolved references", path, entity)
		}
		found = true
		if err := analysis.BuildCFG(fn, c, tbl).WriteDOT(w); err != nil {
			return model.WriteError("", err)
		}
	}
	if !found {
		return fmt.Errorf("%s: no function %s with a body in %s", path, fnName, contractName)
	}
	return nil
}
