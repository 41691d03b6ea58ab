// Package containerd implements the container.Driver for runtimes driven
// by an OCI runtime bundle (config.json + rootfs), such as runc or crun
// invoked through containerd's shim. Unlike the other backends this one
// does not shell out to a high-level CLI: it writes a config.json derived
// from the plan and invokes the low-level OCI runtime directly.
package containerd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/nhanford/e4s-cl/internal/pkg/container"
	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
	"github.com/nhanford/e4s-cl/pkg/sylog"
)

const Name = "containerd"

var runtimes = []string{"runc", "crun"}

// Driver drives a low-level OCI runtime over a generated bundle directory,
// the same Create/Delete shape as the teacher's ocibundle.Bundle
// interface, specialized to an already-unpacked rootfs rather than an
// image reference.
type Driver struct {
	binary string
	// RootfsFor resolves plan.Image to an already-extracted OCI rootfs
	// directory; runtimes in this family do not unpack images themselves.
	RootfsFor func(image string) (string, error)
}

func New() *Driver {
	return &Driver{RootfsFor: func(image string) (string, error) { return image, nil }}
}

func (d *Driver) Name() string  { return Name }
func (d *Driver) Exposed() bool { return false } // debug/advanced backend, not shown in --help

func (d *Driver) Available() bool {
	_, err := d.resolveBinary()
	return err == nil
}

func (d *Driver) resolveBinary() (string, error) {
	if d.binary != "" {
		return d.binary, nil
	}
	for _, name := range runtimes {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no runc/crun executable on PATH")
}

// spec builds the OCI runtime spec for one invocation: a minimal process
// description plus the plan's binds as additional mounts.
func spec(rootfs string, plan *container.ExecPlan, argv []string) *specs.Spec {
	env := make([]string, 0, len(plan.Env))
	for k, v := range plan.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	mounts := make([]specs.Mount, 0, len(plan.Binds()))
	for _, b := range plan.Binds() {
		options := []string{"bind"}
		if b.Mode == container.ReadOnly {
			options = append(options, "ro")
		} else {
			options = append(options, "rw")
		}
		mounts = append(mounts, specs.Mount{
			Destination: b.Dest,
			Type:        "bind",
			Source:      b.Source,
			Options:     options,
		})
	}

	return &specs.Spec{
		Version: "1.0.2",
		Root: &specs.Root{
			Path: rootfs,
		},
		Process: &specs.Process{
			Args: argv,
			Env:  env,
			Cwd:  "/",
		},
		Mounts: mounts,
	}
}

// Create writes the bundle's config.json, the Bundle.Create half of the
// teacher's interface.
func Create(bundleDir string, s *specs.Spec) error {
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(bundleDir, "config.json"), data, 0o644)
}

// Delete removes the bundle directory, the Bundle.Delete half.
func Delete(bundleDir string) error {
	return os.RemoveAll(bundleDir)
}

func (d *Driver) Execute(ctx context.Context, plan *container.ExecPlan, argv []string) (int, error) {
	binary, err := d.resolveBinary()
	if err != nil {
		return 0, e4serr.New(e4serr.BackendUnavailable, Name, err)
	}

	rootfs, err := d.RootfsFor(plan.Image)
	if err != nil {
		return 0, e4serr.New(e4serr.BackendUnavailable, Name, err)
	}

	bundleDir := filepath.Join(os.TempDir(), "e4s-cl-bundle-"+uuid.NewString())
	if err := Create(bundleDir, spec(rootfs, plan, argv)); err != nil {
		return 0, e4serr.New(e4serr.LauncherError, Name, err)
	}
	defer Delete(bundleDir)

	id := uuid.NewString()
	args := []string{"run", "--bundle", bundleDir, id}
	sylog.Debugf("%s %v", binary, args)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = plan.ExtraFiles

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 0, e4serr.New(e4serr.LauncherError, Name, err)
	}
	return 0, nil
}
