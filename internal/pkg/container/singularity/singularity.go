// Package singularity implements the container.Driver for Singularity and
// Apptainer, the backends e4s-cl was originally built around.
package singularity

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/nhanford/e4s-cl/internal/pkg/container"
	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
	"github.com/nhanford/e4s-cl/pkg/sylog"
)

const Name = "singularity"

// executables lists the binary names this driver accepts, in preference
// order: a singularity install is also a valid apptainer-compatible one,
// but apptainer is tried first since it is the maintained successor.
var executables = []string{"apptainer", "singularity"}

// Driver runs containers through an apptainer or singularity binary found
// on PATH.
type Driver struct {
	// binary overrides executable lookup; empty means "search PATH".
	binary string
}

func New() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string { return Name }

func (d *Driver) Exposed() bool { return true }

func (d *Driver) Available() bool {
	_, err := d.resolveBinary()
	return err == nil
}

func (d *Driver) resolveBinary() (string, error) {
	if d.binary != "" {
		return d.binary, nil
	}
	for _, name := range executables {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no apptainer/singularity executable on PATH")
}

// Guess claims images ending in .sif or .simg, singularity's native image
// formats.
func (d *Driver) Guess(imagePath string) bool {
	switch filepath.Ext(imagePath) {
	case ".sif", ".simg":
		return true
	}
	return false
}

func (d *Driver) Execute(ctx context.Context, plan *container.ExecPlan, argv []string) (int, error) {
	binary, err := d.resolveBinary()
	if err != nil {
		return 0, e4serr.New(e4serr.BackendUnavailable, Name, err)
	}

	args := []string{"exec"}
	for _, bind := range plan.Binds() {
		args = append(args, "--bind", fmt.Sprintf("%s:%s:%s", bind.Source, bind.Dest, bind.Mode))
	}
	for key, value := range plan.Env {
		args = append(args, "--env", fmt.Sprintf("%s=%s", key, value))
	}
	args = append(args, plan.Image)
	args = append(args, argv...)

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
