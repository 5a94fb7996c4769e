package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/talgya/reson/internal/economy"
	"github.com/talgya/reson/internal/parser"
)

// ValidateResult summarises a definitions file.
type ValidateResult struct {
	Resources int               `json:"resources"`
	Processes int               `json:"processes"`
	Pools     int               `json:"pools"`
	Problems  []economy.Problem `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definitions>",
		Short: "Check a definitions file",
		Long: `Parse a .reson or YAML definitions file and report processes that can
never run (unknown names, bad periods, a resource used as both input and
catalyst).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := parser.ParseFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to parse definitions", err)
			}
			ledger := economy.NewLedger(defs.Resources)
			reg := economy.NewRegistry(ledger, defs.Processes, defs.OnUse)

			res := ValidateResult{
				Resources: ledger.Len(),
				Processes: len(defs.Processes),
				Pools:     len(defs.OnUse),
				Problems:  reg.Problems(),
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%d resources, %d processes, %d pools\n", res.Resources, res.Processes, res.Pools)
				for _, p := range res.Problems {
					fmt.Fprintf(out, "  cannot run: %s\n", p)
				}
				if len(res.Problems) == 0 {
					fmt.Fprintln(out, "definitions ok")
				}
			}

			if len(res.Problems) > 0 {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d process(es) cannot run", len(res.Problems))}
			}
			return nil
		},
	}
}
