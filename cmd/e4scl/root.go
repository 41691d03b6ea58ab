// Package main implements the e4scl command-line front end: argument
// parsing and dispatch over the internal/pkg orchestration packages.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nhanford/e4s-cl/internal/pkg/container/containerd"
	"github.com/nhanford/e4s-cl/internal/pkg/container/docker"
	"github.com/nhanford/e4s-cl/internal/pkg/container/shifter"
	"github.com/nhanford/e4s-cl/internal/pkg/container/singularity"

	e4scontainer "github.com/nhanford/e4s-cl/internal/pkg/container"
	"github.com/nhanford/e4s-cl/pkg/e4sclconf"
	"github.com/nhanford/e4s-cl/pkg/sylog"
)

var (
	flagVerbose bool
	flagQuiet   bool
	flagDebug   bool
	flagDryRun  bool

	cfg = e4sclconf.Default()
)

// newRegistry builds the backend registry explicitly, at the point of
// use, rather than relying on any package-level init side effect.
func newRegistry() *e4scontainer.Registry {
	r := e4scontainer.NewRegistry()
	r.Register(singularity.New())
	r.Register(docker.New())
	r.Register(shifter.New())
	r.Register(containerd.New())
	return r
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "e4scl",
		Short:         "Launch MPI-parallel programs inside containers with host MPI libraries imported",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "quiet output")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "debug output")
	root.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "compute and print the plan without executing it")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		colorize := term.IsTerminal(int(os.Stderr.Fd()))

		level := sylog.InfoLevel
		switch {
		case flagDebug:
			level = sylog.DebugLevel
		case flagVerbose:
			level = sylog.VerboseLevel
		case flagQuiet:
			level = sylog.ErrorLevel
		}
		sylog.SetLevel(int(level), colorize)
		cfg.MessageLevel = sylog.GetLevel()
		cfg.DryRun = flagDryRun
	}

	root.AddCommand(newLaunchCmd())
	root.AddCommand(newExecuteCmd())
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newProfileCmd())
	root.AddCommand(newInitCmd())

	return root
}

func exitCodeFor(err error) int {
	return e4serrExitCode(err)
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
