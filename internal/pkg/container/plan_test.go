package container

import (
	"sort"
	"testing"

	"gotest.tools/v3/assert"
)

func TestAddBindCollapsesOnDest(t *testing.T) {
	p := NewExecPlan("image.sif", "singularity")
	p.AddBind(BindRequest{Source: "/host/a", Dest: "/guest/a", Mode: ReadOnly})
	p.AddBind(BindRequest{Source: "/host/b", Dest: "/guest/a", Mode: ReadWrite})

	binds := p.Binds()
	assert.Equal(t, len(binds), 1)
	assert.Equal(t, binds[0].Source, "/host/b")
	assert.Equal(t, binds[0].Mode, ReadWrite)
}

func TestAddBindPreservesOrderForDistinctDests(t *testing.T) {
	p := NewExecPlan("image.sif", "singularity")
	p.AddBind(BindRequest{Source: "/a", Dest: "/x"})
	p.AddBind(BindRequest{Source: "/b", Dest: "/y"})
	p.AddBind(BindRequest{Source: "/c", Dest: "/x"})

	binds := p.Binds()
	assert.Equal(t, len(binds), 2)
	assert.Equal(t, binds[0].Source, "/c")
	assert.Equal(t, binds[1].Source, "/b")
}

func TestModeString(t *testing.T) {
	assert.Equal(t, ReadOnly.String(), "ro")
	assert.Equal(t, ReadWrite.String(), "rw")
}

func TestExpandRelativeBindSimpleCase(t *testing.T) {
	got := ExpandRelativeBind("/a/b/../c/f")
	sort.Strings(got)
	assert.DeepEqual(t, got, []string{"/a/b", "/a/c/f"})
}

func TestExpandRelativeBindNoDotDotReturnsCleanPathOnly(t *testing.T) {
	got := ExpandRelativeBind("/a/b/c")
	assert.DeepEqual(t, got, []string{"/a/b/c"})
}

func TestExpandRelativeBindMultipleAncestors(t *testing.T) {
	got := ExpandRelativeBind("/jsm_pmix/container/../lib/../bin/file")
	sort.Strings(got)
	// visits /jsm_pmix/container and /jsm_pmix/lib on the way, resolves to
	// /jsm_pmix/bin/file
	assert.Assert(t, contains(got, "/jsm_pmix/bin/file"))
	assert.Assert(t, contains(got, "/jsm_pmix/container"))
	assert.Assert(t, contains(got, "/jsm_pmix/lib"))
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func TestExecPlanStringIncludesBindsAndEnv(t *testing.T) {
	p := NewExecPlan("image.sif", "singularity")
	p.AddBind(BindRequest{Source: "/host/lib", Dest: "/guest/lib", Mode: ReadOnly})
	p.SetEnv("FOO", "bar")
	p.LDPreload = []string{"/host/libshim.so"}

	out := p.String()
	assert.Assert(t, len(out) > 0)
}
