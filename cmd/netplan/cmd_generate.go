package main

import (
	"github.com/spf13/cobra"

	"github.com/netplan-go/netplan/pkg/netplan"
	"github.com/netplan-go/netplan/pkg/parser"
)

func newGenerateCmd() *cobra.Command {
	var ignoreErrors, validateOnly bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile the YAML hierarchy into backend configuration",
		Long: `Generate deletes all previously generated backend configuration and
compiles a fresh set from the merged YAML hierarchy. Generation is
idempotent: unchanged input produces byte-identical output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var flags parser.Flags
			if ignoreErrors {
				flags |= parser.IgnoreErrors
			}
			if validateOnly {
				flags |= parser.ValidationOnly
			}
			_, err := netplan.Generate(rootDirFlag, flags)
			return err
		},
	}
	cmd.Flags().BoolVar(&ignoreErrors, "ignore-errors", false, "Drop invalid definitions with a warning instead of failing")
	cmd.Flags().BoolVar(&validateOnly, "validate-only", false, "Run the full pipeline but write no files")
	return cmd
}
