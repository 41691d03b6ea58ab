// Package launch implements the orchestrator (C7): it chains argument
// splitting, the host library closure, a single guest introspection pass,
// the merge decision, and the final ExecPlan a backend driver runs.
package launch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/nhanford/e4s-cl/internal/pkg/container"
	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
	libelf "github.com/nhanford/e4s-cl/internal/pkg/elf"
	"github.com/nhanford/e4s-cl/internal/pkg/introspect"
	"github.com/nhanford/e4s-cl/internal/pkg/libraries"
	"github.com/nhanford/e4s-cl/internal/pkg/merge"
	"github.com/nhanford/e4s-cl/internal/pkg/profile"
	"github.com/nhanford/e4s-cl/internal/pkg/wi4mpi"
	"github.com/nhanford/e4s-cl/pkg/sylog"
	"github.com/nhanford/e4s-cl/pkg/version"
)

// Options gathers every CLI/profile input the orchestrator needs. Any
// field left unset falls back to the associated Profile field, per spec
// §4.8 ("CLI flags override individual fields").
type Options struct {
	Profile *profile.Profile

	Image           string
	Backend         string
	ExtraLibraries  []string
	ExtraFiles      []string
	ForceHost       map[string]bool
	PreloadNeeded   map[string]bool
	RequestedVendor libelf.CompilerVendor
}

// resolved merges Options over the profile, CLI taking priority.
type resolved struct {
	image     string
	backend   string
	libraries []string
	files     []string
}

func (o Options) resolve() resolved {
	r := resolved{}
	if o.Profile != nil {
		r.image = o.Profile.Image
		r.backend = o.Profile.Backend
		r.libraries = append(r.libraries, o.Profile.Libraries...)
		r.files = append(r.files, o.Profile.Files...)
	}
	if o.Image != "" {
		r.image = o.Image
	}
	if o.Backend != "" {
		r.backend = o.Backend
	}
	r.libraries = append(r.libraries, o.ExtraLibraries...)
	r.files = append(r.files, o.ExtraFiles...)
	return r
}

// Introspector abstracts step 4 of spec §4.7 ("run C6 once inside the
// container") so the orchestrator can be tested without spawning a real
// container runtime.
type Introspector interface {
	Introspect(ctx context.Context, driver container.Driver, plan *container.ExecPlan, requested []string) (introspect.Report, error)
}

// ContainerIntrospector drives the production path: it opens a pipe,
// hands the write end to the guest process as an inherited fd via
// ExecPlan.ExtraFiles, points __E4S_CL_JSON_FD at it, runs `analyze` in
// the guest, and reads the report back from the host's read end.
type ContainerIntrospector struct{}

func (ContainerIntrospector) Introspect(ctx context.Context, driver container.Driver, plan *container.ExecPlan, requested []string) (introspect.Report, error) {
	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		return introspect.Report{}, e4serr.New(e4serr.AnalysisFailed, "introspect", err)
	}
	defer readEnd.Close()

	analyzePlan := *plan
	analyzePlan.ExtraFiles = append(append([]*os.File{}, plan.ExtraFiles...), writeEnd)
	// the guest sees inherited fds starting at 3; ExtraFiles[0] always
	// lands at fd 3 in the child regardless of how many were already
	// present on the parent, since exec.Cmd renumbers them contiguously.
	fdNumber := 3 + len(plan.ExtraFiles)
	analyzePlan.Env = cloneEnv(plan.Env)
	analyzePlan.Env[introspect.ChannelEnvVar] = fmt.Sprintf("%d", fdNumber)
	if kv := strings.SplitN(sylog.GetEnvVar(), "=", 2); len(kv) == 2 {
		analyzePlan.Env[kv[0]] = kv[1]
	}

	argv := []string{"e4scl", "analyze"}
	if len(requested) > 0 {
		argv = append(argv, "--libraries", strings.Join(requested, ","))
	}

	code, err := driver.Execute(ctx, &analyzePlan, argv)
	writeEnd.Close()
	if err != nil {
		if e, ok := err.(*e4serr.Error); ok {
			return introspect.Report{}, e.Annotate("running guest analyze pass")
		}
		return introspect.Report{}, e4serr.New(e4serr.AnalysisFailed, "introspect", err)
	}
	if code != 0 {
		return introspect.Report{}, e4serr.New(e4serr.AnalysisFailed, "introspect", fmt.Errorf("guest analyze exited %d", code))
	}

	return introspect.Read(readEnd)
}

func cloneEnv(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Plan runs the full C7 pipeline and returns the materialized ExecPlan
// plus the program argv to run inside it, ready for a Driver.Execute
// call.
func Plan(ctx context.Context, argv []string, opts Options, registry *container.Registry, hostLibc version.Version, introspector Introspector) (*container.ExecPlan, []string, error) {
	r := opts.resolve()
	if r.image == "" {
		return nil, nil, e4serr.New(e4serr.ConfigurationError, "launch", fmt.Errorf("no image configured"))
	}

	launcherArgv, programArgv := Split(argv)
	if len(programArgv) == 0 {
		return nil, nil, e4serr.New(e4serr.ConfigurationError, "launch", fmt.Errorf("no command given"))
	}

	var driver container.Driver
	var ok bool
	if r.backend != "" {
		driver, ok = registry.Get(r.backend)
	} else {
		driver, ok = registry.Guess(r.image)
	}
	if !ok {
		return nil, nil, e4serr.New(e4serr.ConfigurationError, r.backend, fmt.Errorf("no matching backend registered"))
	}
	if !driver.Available() {
		return nil, nil, e4serr.New(e4serr.BackendUnavailable, driver.Name(), fmt.Errorf("backend runtime not found on PATH"))
	}

	hostSet, warnings := libraries.Closure(r.libraries, libraries.OriginHost, libraries.HostResolver{})
	for _, w := range warnings {
		sylog.Warningf("launch: could not resolve requested library %q on host", w)
	}

	plan := container.NewExecPlan(r.image, driver.Name())
	for _, f := range r.files {
		if _, err := os.Stat(f); err != nil {
			sylog.Warningf("launch: dropping bind of %s: %v", f, err)
			continue
		}
		plan.AddBind(container.BindRequest{Source: f, Dest: f, Mode: container.ReadOnly})
	}

	report, err := introspector.Introspect(ctx, driver, plan, hostSet.Sonames())
	if err != nil {
		return nil, nil, err
	}
	guestSet := introspect.ToLibrarySet(report)
	guestLibc := version.Parse(report.LibcVersion)

	// The host's dynamic loader is always origin-bound to the host (spec
	// §4.4/§4.7 step 6): the host kernel's execve interprets it regardless
	// of per-library vendor rules, so it must enter hostSet directly rather
	// than through the requested-library closure.
	addHostLoader(hostSet, programArgv[0], libraries.HostResolver{})

	result := merge.Merge(hostSet, guestSet, hostLibc, guestLibc, merge.Options{
		RequestedVendor: opts.RequestedVendor,
		ForceHost:       opts.ForceHost,
		PreloadNeeded:   opts.PreloadNeeded,
	})

	materialize(plan, hostSet, result)

	if wi4mpi.Enabled() {
		if err := applyWi4MPI(plan); err != nil {
			return nil, nil, err
		}
	}

	finalArgv := append(append([]string{}, launcherArgv...), programArgv...)
	return plan, finalArgv, nil
}

// addHostLoader resolves programPath to an absolute location, reads its
// ELF .interp, and adds the host's dynamic loader to hostSet under its own
// soname so the merge's loader-forcing rule (merge.go) has a member to act
// on. A program with no interpreter (statically linked) or one whose
// loader cannot be read is left alone; the launch still proceeds without a
// forced loader bind in that case.
func addHostLoader(hostSet *libraries.Set, programPath string, resolver libraries.Resolver) {
	resolved, err := exec.LookPath(programPath)
	if err != nil {
		resolved = programPath
	}

	obj, err := resolver.Open(resolved)
	if err != nil || obj.Interpreter == "" {
		return
	}

	loaderObj, err := resolver.Open(obj.Interpreter)
	if err != nil {
		sylog.Warningf("launch: could not read host loader %s: %v", obj.Interpreter, err)
		return
	}

	lib := libraries.FromObject(loaderObj, libraries.OriginHost)
	hostSet.Add(lib)
}

// applyWi4MPI reads and validates the WI4MPI_* environment, binds the
// install directory (and every configured vendor *_ROOT), preloads the
// ABI translation wrapper and the vendor MPI libraries it bridges,
// extends LD_LIBRARY_PATH, and forwards the four variables into the
// guest, per spec §6's read-and-forward contract.
func applyWi4MPI(plan *container.ExecPlan) error {
	env, err := wi4mpi.ParseEnv()
	if err != nil {
		return err
	}

	dirs, ldLibraryPath := wi4mpi.BindDirectives(env)
	for _, dir := range dirs {
		plan.AddBind(container.BindRequest{Source: dir, Dest: dir, Mode: container.ReadOnly})
	}
	for _, dir := range wi4mpi.LibraryPathEntries(env.Root) {
		plan.AddBind(container.BindRequest{Source: dir, Dest: dir, Mode: container.ReadOnly})
		ldLibraryPath = append(ldLibraryPath, dir)
	}

	plan.LDLibraryPath = append(plan.LDLibraryPath, ldLibraryPath...)
	if len(plan.LDLibraryPath) > 0 {
		plan.SetEnv("LD_LIBRARY_PATH", joinPath(plan.LDLibraryPath))
	}

	// Enabled() (the caller's guard) only checks that WI4MPI_VERSION is
	// present, and ParseEnv validates the four vars all-or-none, so From/To
	// are set here unless all four are empty; Libraries rejects that case.
	layout, err := wi4mpi.Libraries(env)
	if err != nil {
		return err
	}
	for _, lib := range []string{layout.Wrapper, layout.Source, layout.Target} {
		if lib != "" {
			plan.LDPreload = append(plan.LDPreload, lib)
		}
	}
	if len(plan.LDPreload) > 0 {
		plan.SetEnv("LD_PRELOAD", joinPath(plan.LDPreload))
	}

	plan.SetEnv("WI4MPI_ROOT", env.Root)
	plan.SetEnv("WI4MPI_FROM", env.From)
	plan.SetEnv("WI4MPI_TO", env.To)
	plan.SetEnv("WI4MPI_VERSION", env.Version)
	return nil
}

// materialize turns merge decisions into binds and environment on plan:
// every import-from-host library is bound at an identical host path
// inside the guest (per spec §4.7 step 6), so host-resolved absolute
// paths — baked into other host libraries' own DT_NEEDED/RPATH — remain
// valid without any path rewriting.
func materialize(plan *container.ExecPlan, hostSet *libraries.Set, result merge.Result) {
	// hostSet.Sonames() walks in closure insertion order, which is
	// deterministic for a given seed/resolver; ranging result.Decisions
	// directly would iterate map order instead, making two runs of the
	// same launch produce differently-ordered (but equivalent) plans.
	for _, soname := range hostSet.Sonames() {
		if result.Decisions[soname] != merge.ImportFromHost {
			continue
		}
		lib, ok := hostSet.Get(soname)
		if !ok || lib.Missing {
			continue
		}
		plan.AddBind(container.BindRequest{Source: lib.Path, Dest: lib.Path, Mode: container.ReadOnly})
		for _, link := range lib.Symlinks {
			plan.AddBind(container.BindRequest{Source: lib.Path, Dest: link, Mode: container.ReadOnly})
		}
	}

	plan.LDLibraryPath = result.LDLibraryPath
	plan.LDPreload = result.LDPreload
	if len(result.LDLibraryPath) > 0 {
		plan.SetEnv("LD_LIBRARY_PATH", joinPath(result.LDLibraryPath))
	}
	if len(result.LDPreload) > 0 {
		plan.SetEnv("LD_PRELOAD", joinPath(result.LDPreload))
	}
}

func joinPath(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += string(os.PathListSeparator)
		}
		out += p
	}
	return out
}
