package profile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestReadFromEmptyReaderReturnsEmptyStore(t *testing.T) {
	s, err := ReadFrom(strings.NewReader(""))
	assert.NilError(t, err)
	assert.Equal(t, s.Schema, SchemaVersion)
	assert.Equal(t, len(s.Profiles), 0)
}

func TestWriteToThenReadFromRoundTrips(t *testing.T) {
	s := &Store{Profiles: map[string]*Profile{
		"mpi": {Image: "mpi.sif", Backend: "singularity", Libraries: []string{"libmpi.so.12"}},
	}}

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	assert.NilError(t, err)

	got, err := ReadFrom(&buf)
	assert.NilError(t, err)
	p, ok := got.Get("mpi")
	assert.Assert(t, ok)
	assert.Equal(t, p.Image, "mpi.sif")
}

func TestReadFromRejectsNewerSchema(t *testing.T) {
	_, err := ReadFrom(strings.NewReader("schema: 999\nprofiles: {}\n"))
	assert.Assert(t, err != nil)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")

	s := &Store{Profiles: map[string]*Profile{
		"mpi": {Image: "mpi.sif", Backend: "docker"},
	}}
	assert.NilError(t, Save(path, s))

	loaded, err := Load(path)
	assert.NilError(t, err)
	p, ok := loaded.Get("mpi")
	assert.Assert(t, ok)
	assert.Equal(t, p.Backend, "docker")
}

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NilError(t, err)
	assert.Equal(t, len(s.Profiles), 0)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	s := &Store{Profiles: map[string]*Profile{"mpi": {Image: "a.sif"}}}
	err := s.Create("mpi", &Profile{Image: "b.sif"})
	assert.Assert(t, err != nil)
}

func TestDeleteUnknownProfileFails(t *testing.T) {
	s := &Store{Profiles: map[string]*Profile{}}
	assert.Assert(t, s.Delete("nope") != nil)
}

func TestCopyDuplicatesProfileIndependently(t *testing.T) {
	s := &Store{Profiles: map[string]*Profile{
		"mpi": {Image: "a.sif", Libraries: []string{"libmpi.so.12"}},
	}}
	assert.NilError(t, s.Copy("mpi", "mpi2"))

	cp, ok := s.Get("mpi2")
	assert.Assert(t, ok)
	cp.Libraries[0] = "changed"

	original, _ := s.Get("mpi")
	assert.Equal(t, original.Libraries[0], "libmpi.so.12")
}

func TestEditMutatesExistingProfile(t *testing.T) {
	s := &Store{Profiles: map[string]*Profile{"mpi": {Image: "a.sif"}}}
	err := s.Edit("mpi", func(p *Profile) { p.Image = "b.sif" })
	assert.NilError(t, err)

	p, _ := s.Get("mpi")
	assert.Equal(t, p.Image, "b.sif")
}

func TestListReturnsAllNames(t *testing.T) {
	s := &Store{Profiles: map[string]*Profile{"a": {}, "b": {}}}
	names := s.List()
	assert.Equal(t, len(names), 2)
}
