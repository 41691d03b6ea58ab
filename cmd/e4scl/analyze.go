package main

import (
	"github.com/spf13/cobra"

	"github.com/nhanford/e4s-cl/internal/pkg/introspect"
)

// newAnalyzeCmd builds the inner "analyze" command (C6): it runs inside
// the container, given the host's closure sonames through the --libraries
// flag, and writes a single JSON Report to the inherited control fd.
func newAnalyzeCmd() *cobra.Command {
	var libs []string

	cmd := &cobra.Command{
		Use:    "analyze --libraries soname [soname...]",
		Short:  "Describe this container's libc and library closure (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return introspect.Run(cmd.Context(), libs)
		},
	}
	cmd.Flags().StringSliceVar(&libs, "libraries", nil, "sonames to resolve inside the guest")
	return cmd
}
