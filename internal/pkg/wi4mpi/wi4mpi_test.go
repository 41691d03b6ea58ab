package wi4mpi

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"WI4MPI_ROOT", "WI4MPI_FROM", "WI4MPI_TO", "WI4MPI_VERSION"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestParseEnvAllUnsetSucceedsEmpty(t *testing.T) {
	clearEnv(t)
	env, err := ParseEnv()
	assert.NilError(t, err)
	assert.Equal(t, env.Root, "")
}

func TestParseEnvPartialFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("WI4MPI_ROOT", "/opt/wi4mpi")
	_, err := ParseEnv()
	assert.Assert(t, err != nil)
}

func TestParseEnvAllSetSucceeds(t *testing.T) {
	clearEnv(t)
	t.Setenv("WI4MPI_ROOT", "/opt/wi4mpi")
	t.Setenv("WI4MPI_FROM", "OMPI")
	t.Setenv("WI4MPI_TO", "INTEL")
	t.Setenv("WI4MPI_VERSION", "3.4")

	env, err := ParseEnv()
	assert.NilError(t, err)
	assert.Equal(t, env.From, "OMPI")
	assert.Equal(t, env.To, "INTEL")
}

func TestEnabledTracksVersionVar(t *testing.T) {
	clearEnv(t)
	assert.Assert(t, !Enabled())
	t.Setenv("WI4MPI_VERSION", "3.4")
	assert.Assert(t, Enabled())
}

func TestConfigMergesGlobalAndUser(t *testing.T) {
	installDir := t.TempDir()
	assert.NilError(t, os.MkdirAll(filepath.Join(installDir, "etc"), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(installDir, "etc", "wi4mpi.cfg"),
		[]byte("OPENMPI_DEFAULT_ROOT=\"/opt/ompi\"\n# comment\nMPICH_DEFAULT_ROOT=\"/opt/mpich\"\n"), 0o644))

	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.NilError(t, os.WriteFile(filepath.Join(home, ".wi4mpi.cfg"),
		[]byte("MPICH_DEFAULT_ROOT=/home/user/mpich\n"), 0o644))

	config := Config(installDir)
	assert.Equal(t, config["OPENMPI_DEFAULT_ROOT"], "/opt/ompi")
	assert.Equal(t, config["MPICH_DEFAULT_ROOT"], "/home/user/mpich")
}

func TestLibrariesRequiresFromAndTo(t *testing.T) {
	_, err := Libraries(Env{Root: "/opt/wi4mpi"})
	assert.Assert(t, err != nil)
}

func TestLibrariesDerivesPaths(t *testing.T) {
	installDir := t.TempDir()
	assert.NilError(t, os.MkdirAll(filepath.Join(installDir, "etc"), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(installDir, "etc", "wi4mpi.cfg"),
		[]byte("OPENMPI_DEFAULT_ROOT=/opt/ompi\nINTELMPI_DEFAULT_ROOT=/opt/intel\n"), 0o644))

	layout, err := Libraries(Env{Root: installDir, From: "OMPI", To: "INTEL"})
	assert.NilError(t, err)
	assert.Equal(t, layout.Wrapper, filepath.Join(installDir, "libexec", "wi4mpi", "libwi4mpi_OMPI_INTEL.so"))
	assert.Equal(t, layout.Source, filepath.Join("/opt/ompi", "lib", "libmpi.so"))
	assert.Equal(t, layout.Target, filepath.Join("/opt/intel", "lib", "libmpi.so"))
}

func TestLibraryPathEntriesFiltersByInstallDir(t *testing.T) {
	t.Setenv("LD_LIBRARY_PATH", "/opt/wi4mpi/lib:/usr/lib64:/opt/wi4mpi/lib64")
	got := LibraryPathEntries("/opt/wi4mpi")
	assert.Equal(t, len(got), 2)
}

func TestBindDirectivesIncludesRootAndConfiguredRoots(t *testing.T) {
	installDir := t.TempDir()
	assert.NilError(t, os.MkdirAll(filepath.Join(installDir, "etc"), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(installDir, "etc", "wi4mpi.cfg"),
		[]byte("OPENMPI_DEFAULT_ROOT=/opt/ompi\n"), 0o644))

	dirs, ldpath := BindDirectives(Env{Root: installDir})
	assert.Assert(t, contains(dirs, installDir))
	assert.Assert(t, contains(dirs, "/opt/ompi"))
	assert.Assert(t, contains(ldpath, filepath.Join("/opt/ompi", "lib")))
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
