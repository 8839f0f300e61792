package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/condorhq/condor/internal/taxid"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rut>",
		Short: "Validate a Chilean RUT/RUN",
		Long: `Check a tax identifier against the Modulo-11 checksum.
Exits non-zero when the identifier is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !taxid.Validate(args[0]) {
				return fmt.Errorf("invalid RUT: %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", taxid.Format(args[0]))
			return nil
		},
	}
}

// NewFormatCommand creates the format command.
func NewFormatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "format <rut>",
		Short: "Format a RUT/RUN for display",
		Long: `Print the canonical display form (12.345.678-5). Formatting does not
validate; use the validate command for that.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), taxid.Format(args[0]))
			return nil
		},
	}
}
