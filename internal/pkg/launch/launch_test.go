package launch

import (
	"context"
	"fmt"
	"testing"

	"github.com/nhanford/e4s-cl/internal/pkg/container"
	libelf "github.com/nhanford/e4s-cl/internal/pkg/elf"
	"github.com/nhanford/e4s-cl/internal/pkg/introspect"
	"github.com/nhanford/e4s-cl/internal/pkg/libraries"
	"github.com/nhanford/e4s-cl/internal/pkg/resolve"
	"github.com/nhanford/e4s-cl/pkg/version"
	"gotest.tools/v3/assert"
)

type fakeDriver struct {
	name      string
	available bool
}

func (f *fakeDriver) Name() string     { return f.name }
func (f *fakeDriver) Available() bool  { return f.available }
func (f *fakeDriver) Exposed() bool    { return true }
func (f *fakeDriver) Execute(ctx context.Context, p *container.ExecPlan, argv []string) (int, error) {
	return 0, nil
}

type fakeIntrospector struct {
	report introspect.Report
	err    error
}

func (f fakeIntrospector) Introspect(ctx context.Context, driver container.Driver, plan *container.ExecPlan, requested []string) (introspect.Report, error) {
	return f.report, f.err
}

func TestPlanRequiresImage(t *testing.T) {
	registry := container.NewRegistry()
	_, _, err := Plan(context.Background(), []string{"./a.out"}, Options{}, registry, version.Version{}, fakeIntrospector{})
	assert.Assert(t, err != nil)
}

func TestPlanRequiresProgram(t *testing.T) {
	registry := container.NewRegistry()
	registry.Register(&fakeDriver{name: "singularity", available: true})

	_, _, err := Plan(context.Background(), nil, Options{Image: "mpi.sif", Backend: "singularity"}, registry, version.Version{}, fakeIntrospector{})
	assert.Assert(t, err != nil)
}

func TestPlanFailsWhenBackendUnavailable(t *testing.T) {
	registry := container.NewRegistry()
	registry.Register(&fakeDriver{name: "singularity", available: false})

	_, _, err := Plan(context.Background(), []string{"./a.out"}, Options{Image: "mpi.sif", Backend: "singularity"}, registry, version.Version{}, fakeIntrospector{})
	assert.Assert(t, err != nil)
}

func TestPlanBuildsExecPlanAndFinalArgv(t *testing.T) {
	registry := container.NewRegistry()
	registry.Register(&fakeDriver{name: "singularity", available: true})

	introspector := fakeIntrospector{report: introspect.Report{
		LibcVersion: "2.17",
		Libraries:   nil,
	}}

	plan, argv, err := Plan(
		context.Background(),
		[]string{"mpirun", "-np", "4", "./a.out"},
		Options{Image: "mpi.sif", Backend: "singularity"},
		registry,
		version.Version{Major: 2, Minor: 28},
		introspector,
	)

	assert.NilError(t, err)
	assert.Equal(t, plan.Image, "mpi.sif")
	assert.DeepEqual(t, argv, []string{"mpirun", "-np", "4", "./a.out"})
}

func TestPlanPropagatesIntrospectionFailure(t *testing.T) {
	registry := container.NewRegistry()
	registry.Register(&fakeDriver{name: "singularity", available: true})

	introspector := fakeIntrospector{err: assertErr{}}

	_, _, err := Plan(context.Background(), []string{"./a.out"}, Options{Image: "mpi.sif", Backend: "singularity"}, registry, version.Version{}, introspector)
	assert.Assert(t, err != nil)
}

type assertErr struct{}

func (assertErr) Error() string { return "introspection failed" }

// fakeLoaderResolver serves fixed ELF objects by path, so addHostLoader can
// be tested without touching the real filesystem.
type fakeLoaderResolver struct {
	objects map[string]*libelf.Object // path -> object
}

func (f fakeLoaderResolver) Resolve(soname string, _ resolve.Context) (resolve.Resolution, bool) {
	return resolve.Resolution{}, false
}

func (f fakeLoaderResolver) Open(path string) (*libelf.Object, error) {
	obj, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", path)
	}
	return obj, nil
}

func TestAddHostLoaderAddsInterpreterUnderItsOwnSoname(t *testing.T) {
	resolver := fakeLoaderResolver{objects: map[string]*libelf.Object{
		"/usr/bin/a.out": {Path: "/usr/bin/a.out", Interpreter: "/lib64/ld-linux-x86-64.so.2"},
		"/lib64/ld-linux-x86-64.so.2": {
			Path:   "/lib64/ld-linux-x86-64.so.2",
			Soname: "ld-linux-x86-64.so.2",
		},
	}}

	hostSet := libraries.NewSet()
	addHostLoader(hostSet, "/usr/bin/a.out", resolver)

	lib, ok := hostSet.Get("ld-linux-x86-64.so.2")
	assert.Assert(t, ok)
	assert.Equal(t, lib.Path, "/lib64/ld-linux-x86-64.so.2")
	assert.Assert(t, libraries.IsLoader(lib.Soname))
}

func TestAddHostLoaderNoopWhenProgramHasNoInterpreter(t *testing.T) {
	resolver := fakeLoaderResolver{objects: map[string]*libelf.Object{
		"/usr/bin/static": {Path: "/usr/bin/static"},
	}}

	hostSet := libraries.NewSet()
	addHostLoader(hostSet, "/usr/bin/static", resolver)

	assert.Equal(t, hostSet.Len(), 0)
}

func TestAddHostLoaderNoopWhenProgramUnreadable(t *testing.T) {
	hostSet := libraries.NewSet()
	addHostLoader(hostSet, "/does/not/exist", fakeLoaderResolver{objects: map[string]*libelf.Object{}})

	assert.Equal(t, hostSet.Len(), 0)
}

func TestApplyWi4MPIForwardsEnvAndBindsInstallDir(t *testing.T) {
	t.Setenv("WI4MPI_ROOT", "/opt/wi4mpi")
	t.Setenv("WI4MPI_FROM", "OMPI")
	t.Setenv("WI4MPI_TO", "MPICH")
	t.Setenv("WI4MPI_VERSION", "3.6.0")

	plan := container.NewExecPlan("mpi.sif", "singularity")
	err := applyWi4MPI(plan)
	assert.NilError(t, err)

	assert.Equal(t, plan.Env["WI4MPI_ROOT"], "/opt/wi4mpi")
	assert.Equal(t, plan.Env["WI4MPI_FROM"], "OMPI")
	assert.Equal(t, plan.Env["WI4MPI_TO"], "MPICH")
	assert.Equal(t, plan.Env["WI4MPI_VERSION"], "3.6.0")

	found := false
	for _, b := range plan.Binds() {
		if b.Source == "/opt/wi4mpi" {
			found = true
		}
	}
	assert.Assert(t, found)
}

func TestMaterializeBindOrderIsDeterministicAcrossRuns(t *testing.T) {
	registry := container.NewRegistry()
	registry.Register(&fakeDriver{name: "singularity", available: true})

	introspector := fakeIntrospector{report: introspect.Report{LibcVersion: "2.28"}}

	var first []string
	for i := 0; i < 5; i++ {
		plan, _, err := Plan(
			context.Background(),
			[]string{"./a.out"},
			Options{Image: "mpi.sif", Backend: "singularity", ExtraLibraries: []string{"libc.so.6", "libmpi.so.12"}},
			registry,
			version.Version{Major: 2, Minor: 28},
			introspector,
		)
		assert.NilError(t, err)

		var dests []string
		for _, b := range plan.Binds() {
			dests = append(dests, b.Dest)
		}
		if i == 0 {
			first = dests
		} else {
			assert.DeepEqual(t, dests, first)
		}
	}
}
