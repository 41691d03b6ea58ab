// Package shifter implements the container.Driver for NERSC's Shifter,
// which only binds directories and refuses binds under /etc, requiring a
// staging area for file-level imports.
package shifter

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nhanford/e4s-cl/internal/pkg/container"
	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
	"github.com/nhanford/e4s-cl/pkg/sylog"
)

const Name = "shifter"

var DefaultConfigPath = "/etc/shifter/udiRoot.conf"

// Driver runs containers through the shifter binary, staging non-directory
// binds into a temporary directory since shifter only accepts directory
// volumes.
type Driver struct {
	binary     string
	configPath string
}

func New() *Driver {
	return &Driver{configPath: DefaultConfigPath}
}

func (d *Driver) Name() string  { return Name }
func (d *Driver) Exposed() bool { return false } // site-specific, not advertised by default

func (d *Driver) Available() bool {
	_, err := d.resolveBinary()
	return err == nil
}

func (d *Driver) resolveBinary() (string, error) {
	if d.binary != "" {
		return d.binary, nil
	}
	path, err := exec.LookPath("shifter")
	if err != nil {
		return "", fmt.Errorf("no shifter executable on PATH")
	}
	return path, nil
}

// SiteLibraryPath reads udiRoot.conf's defaultModules and the corresponding
// module_<name>_siteEnvPrepend directives, returning every LD_LIBRARY_PATH
// fragment the site prepends for the guest's default module set. Shifter
// sites use this to inject vendor MPI libraries already staged inside the
// image; the merge result's own library path is appended after it.
func SiteLibraryPath(configPath string) []string {
	directives, err := parseConfig(configPath)
	if err != nil {
		sylog.Warningf("shifter: could not read %s: %s", configPath, err)
		return nil
	}

	var path []string
	for _, module := range strings.Split(directives["defaultModules"], ",") {
		module = strings.TrimSpace(module)
		if module == "" {
			continue
		}
		prepend, ok := directives[fmt.Sprintf("module_%s_siteEnvPrepend", module)]
		if !ok {
			continue
		}
		for _, assignment := range strings.Fields(prepend) {
			if !strings.HasPrefix(assignment, "LD_LIBRARY_PATH") {
				continue
			}
			if idx := strings.IndexByte(assignment, '='); idx >= 0 {
				path = append(path, strings.Split(assignment[idx+1:], string(os.PathListSeparator))...)
			}
		}
	}
	return path
}

// parseConfig reads a udiRoot.conf-style file: "KEY=value" lines, with a
// trailing backslash continuing the value onto the next line, and '#'
// comment lines dropped.
func parseConfig(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	var buf strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		buf.WriteString(line)
		if strings.HasSuffix(buf.String(), `\`) {
			s := buf.String()
			buf.Reset()
			buf.WriteString(strings.TrimSuffix(s, `\`))
			continue
		}
		lines = append(lines, buf.String())
		buf.Reset()
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	directives := make(map[string]string)
	for _, line := range lines {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			sylog.Warningf("shifter: unrecognized directive: %q", line)
			continue
		}
		directives[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return directives, nil
}

// stageImport copies any bind whose destination falls under
// container.ImportDir into a staging directory, since shifter only mounts
// whole directories: bound files and the library import directory are
// copied instead, and the staging directory itself is bound in their
// place. Binds under /etc are dropped, and non-directory binds outside the
// import directory are dropped with a warning since shifter has no
// file-bind equivalent.
func stageImport(stagingDir string, binds []container.BindRequest, importDir string) ([]string, error) {
	volumes := []string{fmt.Sprintf("%s:%s", stagingDir, importDir)}

	for _, b := range binds {
		switch {
		case strings.HasPrefix(b.Dest, importDir+"/") || b.Dest == importDir:
			rel, err := filepath.Rel(importDir, b.Dest)
			if err != nil {
				return nil, err
			}
			target := filepath.Join(stagingDir, rel)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, err
			}
			if err := copyPath(b.Source, target); err != nil {
				return nil, err
			}
		case strings.HasPrefix(b.Dest, "/etc"):
			sylog.Errorf("shifter: backend does not support binding to '/etc': %s", b.Dest)
		default:
			info, err := os.Stat(b.Source)
			if err == nil && info.IsDir() {
				volumes = append(volumes, fmt.Sprintf("%s:%s", b.Source, b.Dest))
			} else {
				sylog.Warningf("shifter: failed to bind %q: backend does not support file binding; performance may be impacted", b.Source)
			}
		}
	}

	return volumes, nil
}

func copyPath(src, dst string) error {
	cmd := exec.Command("cp", "-r", src, dst)
	return cmd.Run()
}

func (d *Driver) Execute(ctx context.Context, plan *container.ExecPlan, argv []string) (int, error) {
	binary, err := d.resolveBinary()
	if err != nil {
		return 0, e4serr.New(e4serr.BackendUnavailable, Name, err)
	}

	stagingDir, err := os.MkdirTemp("", "e4s-cl-shifter-"+uuid.NewString())
	if err != nil {
		return 0, e4serr.New(e4serr.LauncherError, Name, err)
	}
	defer os.RemoveAll(stagingDir)

	volumes, err := stageImport(stagingDir, plan.Binds(), "/.e4s-cl")
	if err != nil {
		return 0, e4serr.New(e4serr.LauncherError, Name, err)
	}

	env := plan.Env
	if site := SiteLibraryPath(d.configPath); len(site) > 0 {
		env = make(map[string]string, len(plan.Env)+1)
		for k, v := range plan.Env {
			env[k] = v
		}
		env["LD_LIBRARY_PATH"] = strings.Join(append(site, plan.LDLibraryPath...), string(os.PathListSeparator))
	}

	args := []string{fmt.Sprintf("--image=%s", plan.Image)}
	for key, value := range env {
		// the original backend mistakenly emitted "--env=KEY=KEY"; the
		// value belongs on the right-hand side.
		args = append(args, fmt.Sprintf("--env=%s=%s", key, value))
	}
	for _, v := range volumes {
		args = append(args, fmt.Sprintf("--volume=%s", v))
	}
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
