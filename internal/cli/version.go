package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/formsync/internal/ir"
)

// VersionInfo is the version command's JSON payload.
type VersionInfo struct {
	Engine string `json:"engine"`
	Record string `json:"record"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print the engine and journal record versions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			info := VersionInfo{Engine: ir.EngineVersion, Record: ir.IRVersion}
			if formatter.IsJSON() {
				return formatter.Success(info)
			}
			fmt.Fprintf(formatter.Writer, "formsync %s (record version %s)\n", info.Engine, info.Record)
			return nil
		},
	}
}
