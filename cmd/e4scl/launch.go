package main

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
	libelf "github.com/nhanford/e4s-cl/internal/pkg/elf"
	"github.com/nhanford/e4s-cl/internal/pkg/launch"
	"github.com/nhanford/e4s-cl/internal/pkg/profile"
	"github.com/nhanford/e4s-cl/pkg/sylog"
	"github.com/nhanford/e4s-cl/pkg/version"
)

func newLaunchCmd() *cobra.Command {
	var (
		profileName string
		image       string
		backend     string
		libs        []string
		files       []string
		hostLibc    string
		vendor      string
	)

	cmd := &cobra.Command{
		Use:   "launch [launcher args] -- <command> [command args]",
		Short: "Launch a process inside a container, importing host MPI libraries",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return e4serr.New(e4serr.ConfigurationError, "launch", fmt.Errorf("no command given"))
			}

			store, err := profile.Load(cfg.ProfileStorePath())
			if err != nil {
				return err
			}

			opts := launch.Options{
				Image:           image,
				Backend:         backend,
				ExtraLibraries:  libs,
				ExtraFiles:      files,
				RequestedVendor: libelf.CompilerVendor(vendor),
			}
			if profileName != "" {
				p, ok := store.Get(profileName)
				if !ok {
					return e4serr.New(e4serr.ConfigurationError, profileName, fmt.Errorf("no such profile"))
				}
				opts.Profile = p
			}

			libc := version.Parse(hostLibc)
			if libc.IsZero() {
				libc, err = detectHostLibc(cmd.Context())
				if err != nil {
					return err
				}
			}

			registry := newRegistry()
			plan, finalArgv, err := launch.Plan(cmd.Context(), args, opts, registry, libc, launch.ContainerIntrospector{})
			if err != nil {
				return err
			}

			sylog.Debugf("%s", plan.String())
			if cfg.DryRun {
				fmt.Println(plan.String())
				return nil
			}

			driver, _ := registry.Get(plan.Backend)
			code, err := driver.Execute(cmd.Context(), plan, finalArgv)
			if err != nil {
				return err
			}
			if code != 0 {
				return e4serr.New(e4serr.LauncherError, plan.Backend, fmt.Errorf("exited with status %d", code))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profileName, "profile", "", "name of the profile to use")
	cmd.Flags().StringVar(&image, "image", "", "container image to use")
	cmd.Flags().StringVar(&backend, "backend", "", "container backend to use")
	cmd.Flags().StringSliceVar(&libs, "libraries", nil, "extra libraries to bind, comma-separated")
	cmd.Flags().StringSliceVar(&files, "files", nil, "extra files to bind, comma-separated")
	cmd.Flags().StringVar(&hostLibc, "host-libc", "", "override the detected host libc version")
	cmd.Flags().StringVar(&vendor, "vendor", string(libelf.VendorGNU), "compiler vendor of the MPI stack to import")

	return cmd
}

// detectHostLibc shells out to `ldd --version` on the host and parses its
// leading version number, the same parsing the guest side of C6 applies.
func detectHostLibc(ctx context.Context) (version.Version, error) {
	out, err := exec.CommandContext(ctx, "ldd", "--version").Output()
	if err != nil {
		return version.Version{}, e4serr.New(e4serr.ConfigurationError, "ldd", err)
	}
	firstLine := strings.SplitN(string(out), "\n", 2)[0]
	return version.Parse(firstLine), nil
}
