// Package docker implements the container.Driver for Docker and
// Podman, which both accept the docker CLI's run flag grammar.
package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"

	e4scontainer "github.com/nhanford/e4s-cl/internal/pkg/container"
	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
	"github.com/nhanford/e4s-cl/pkg/sylog"
)

const Name = "docker"

var executables = []string{"docker", "podman"}

// Driver runs containers through the docker or podman CLI. The backend
// reuses the official Docker API types to build the run configuration so
// that binds and environment translate through the same structures the
// daemon itself understands, even though dispatch happens through the CLI
// rather than the HTTP API.
type Driver struct {
	binary string
}

func New() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string  { return Name }
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
	return "", fmt.Errorf("no docker/podman executable on PATH")
}

// Guess claims OCI/Docker archive images.
func (d *Driver) Guess(imagePath string) bool {
	switch filepath.Ext(imagePath) {
	case ".tar", ".oci":
		return true
	}
	return false
}

func mounts(binds []e4scontainer.BindRequest) []mount.Mount {
	out := make([]mount.Mount, 0, len(binds))
	for _, b := range binds {
		out = append(out, mount.Mount{
			Type:     mount.TypeBind,
			Source:   b.Source,
			Target:   b.Dest,
			ReadOnly: b.Mode == e4scontainer.ReadOnly,
		})
	}
	return out
}

func config(plan *e4scontainer.ExecPlan, argv []string) *container.Config {
	env := make([]string, 0, len(plan.Env))
	for k, v := range plan.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return &container.Config{
		Image: plan.Image,
		Cmd:   strslice.StrSlice(argv),
		Env:   env,
	}
}

func (d *Driver) Execute(ctx context.Context, plan *e4scontainer.ExecPlan, argv []string) (int, error) {
	binary, err := d.resolveBinary()
	if err != nil {
		return 0, e4serr.New(e4serr.BackendUnavailable, Name, err)
	}

	cfg := config(plan, argv)

	args := []string{"run", "--rm"}
	for _, m := range mounts(plan.Binds()) {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", m.Source, m.Target, mode))
	}
	for _, kv := range cfg.Env {
		args = append(args, "-e", kv)
	}
	args = append(args, cfg.Image)
	args = append(args, []string(cfg.Cmd)...)

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
