package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
)

// newExecuteCmd builds the hidden "execute" command: it looks the given
// program up on PATH and replaces itself with it, keeping its own pid,
// signal delivery and environment. launch.Plan does not route programs
// through this command; the backend drivers run the final argv directly,
// with the plan's environment passed by their own flags.
func newExecuteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "execute -- <command> [args]",
		Short:              "Run the real program inside the container (internal)",
		Hidden:             true,
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			binary, err := exec.LookPath(args[0])
			if err != nil {
				return e4serr.New(e4serr.LauncherError, args[0], fmt.Errorf("program not found in container: %w", err))
			}
			return syscall.Exec(binary, args, os.Environ())
		},
	}
	return cmd
}
