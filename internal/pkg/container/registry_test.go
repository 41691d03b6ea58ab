package container

import (
	"context"
	"testing"

	"gotest.tools/v3/assert"
)

type fakeDriver struct {
	name      string
	available bool
	exposed   bool
	guessExt  string
}

func (f *fakeDriver) Name() string     { return f.name }
func (f *fakeDriver) Available() bool  { return f.available }
func (f *fakeDriver) Exposed() bool    { return f.exposed }
func (f *fakeDriver) Execute(ctx context.Context, p *ExecPlan, argv []string) (int, error) {
	return 0, nil
}
func (f *fakeDriver) Guess(path string) bool {
	return f.guessExt != "" && len(path) >= len(f.guessExt) && path[len(path)-len(f.guessExt):] == f.guessExt
}

func TestRegistryAvailableFiltersUnavailable(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeDriver{name: "a", available: true, exposed: true})
	r.Register(&fakeDriver{name: "b", available: false, exposed: true})

	avail := r.Available()
	assert.Equal(t, len(avail), 1)
	assert.Equal(t, avail[0].Name(), "a")
}

func TestRegistryExposedFiltersDebugBackends(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeDriver{name: "a", exposed: true})
	r.Register(&fakeDriver{name: "debugonly", exposed: false})

	exposed := r.Exposed()
	assert.Equal(t, len(exposed), 1)
	assert.Equal(t, exposed[0].Name(), "a")
}

func TestRegistryGuessMatchesBySuffix(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeDriver{name: "sif", guessExt: ".sif"})
	r.Register(&fakeDriver{name: "tar", guessExt: ".tar"})

	d, ok := r.Guess("/images/foo.tar")
	assert.Assert(t, ok)
	assert.Equal(t, d.Name(), "tar")

	_, ok = r.Guess("/images/foo.unknown")
	assert.Assert(t, !ok)
}

func TestRegistryGetReturnsFalseForUnknown(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nope")
	assert.Assert(t, !ok)
}
