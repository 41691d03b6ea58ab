// Package wi4mpi implements optional support for the Wi4MPI ABI
// translation layer: when a user has a Wi4MPI install active in their
// environment, e4s-cl binds it into the guest and preloads the ABI wrapper
// and the vendor MPI libraries it bridges. This happens after the merge
// stage; the merge does not see these libraries.
package wi4mpi

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
	"github.com/nhanford/e4s-cl/pkg/sylog"
)

// translate maps a Wi4MPI identifier to the config-key prefix used in
// wi4mpi.cfg for that MPI vendor's default root.
var translate = map[string]string{
	"OMPI":  "OPENMPI",
	"INTEL": "INTELMPI",
	"MPICH": "MPICH",
}

// Env is the parsed, validated set of Wi4MPI environment variables.
// WI4MPI_ROOT, WI4MPI_FROM, WI4MPI_TO and WI4MPI_VERSION are validated
// all-or-none: a partially set group is a configuration error, since a
// Wi4MPI invocation needs every one of them to pick the right wrapper
// library and source/target vendor libraries.
type Env struct {
	Root    string
	From    string
	To      string
	Version string
}

// Enabled reports whether WI4MPI_VERSION is set, the same check the
// original implementation uses to decide whether to engage Wi4MPI
// support at all.
func Enabled() bool {
	_, ok := os.LookupEnv("WI4MPI_VERSION")
	return ok
}

// ParseEnv reads and validates the four WI4MPI_* environment variables.
func ParseEnv() (Env, error) {
	vars := map[string]string{
		"WI4MPI_ROOT":    os.Getenv("WI4MPI_ROOT"),
		"WI4MPI_FROM":    os.Getenv("WI4MPI_FROM"),
		"WI4MPI_TO":      os.Getenv("WI4MPI_TO"),
		"WI4MPI_VERSION": os.Getenv("WI4MPI_VERSION"),
	}

	names := []string{"WI4MPI_ROOT", "WI4MPI_FROM", "WI4MPI_TO", "WI4MPI_VERSION"}

	set, unset := 0, 0
	for _, v := range vars {
		if v != "" {
			set++
		} else {
			unset++
		}
	}
	if set > 0 && unset > 0 {
		var missing []string
		for _, name := range names {
			if vars[name] == "" {
				missing = append(missing, name)
			}
		}
		return Env{}, e4serr.New(e4serr.ConfigurationError, "wi4mpi",
			fmt.Errorf("partial Wi4MPI configuration: missing %s", strings.Join(missing, ", ")))
	}

	return Env{
		Root:    vars["WI4MPI_ROOT"],
		From:    vars["WI4MPI_FROM"],
		To:      vars["WI4MPI_TO"],
		Version: vars["WI4MPI_VERSION"],
	}, nil
}

// readConfig parses a wi4mpi.cfg-style file: "KEY=value" lines, quotes
// around the value stripped, '#' comments and malformed lines skipped.
func readConfig(path string) map[string]string {
	config := make(map[string]string)

	f, err := os.Open(path)
	if err != nil {
		sylog.Debugf("wi4mpi: error accessing configuration %s: %s", path, err)
		return config
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		config[parts[0]] = strings.Trim(strings.TrimSpace(parts[1]), `"`)
	}
	return config
}

// Config merges the global install-wide wi4mpi.cfg with the user's
// ~/.wi4mpi.cfg override, the user's values winning.
func Config(installDir string) map[string]string {
	global := readConfig(filepath.Join(installDir, "etc", "wi4mpi.cfg"))

	home, err := os.UserHomeDir()
	if err == nil {
		user := readConfig(filepath.Join(home, ".wi4mpi.cfg"))
		for k, v := range user {
			global[k] = v
		}
	}
	return global
}

// DefaultLayout derives the default Wi4MPI wrapper and source/target MPI
// library paths from env and the install's configuration, mirroring the
// original's wi4mpi_libraries.
type DefaultLayout struct {
	Wrapper string
	Source  string
	Target  string
}

func libraryFor(config map[string]string, identifier string) string {
	key := translate[identifier] + "_DEFAULT_ROOT"
	root := config[key]
	if root == "" {
		return ""
	}
	return filepath.Join(root, "lib", "libmpi.so")
}

// Libraries returns the wrapper shim and the two vendor MPI libraries it
// translates between, per WI4MPI_FROM/WI4MPI_TO.
func Libraries(env Env) (DefaultLayout, error) {
	if env.From == "" || env.To == "" {
		return DefaultLayout{}, e4serr.New(e4serr.ConfigurationError, "wi4mpi",
			fmt.Errorf("missing WI4MPI_FROM/WI4MPI_TO"))
	}

	config := Config(env.Root)

	return DefaultLayout{
		Wrapper: filepath.Join(env.Root, "libexec", "wi4mpi", fmt.Sprintf("libwi4mpi_%s_%s.so", env.From, env.To)),
		Source:  libraryFor(config, env.From),
		Target:  libraryFor(config, env.To),
	}, nil
}

// LibraryPathEntries selects every entry of the calling process's
// LD_LIBRARY_PATH that contains the Wi4MPI install directory; the launcher
// binds each one into the guest and adds it to the guest's LD_LIBRARY_PATH.
func LibraryPathEntries(installDir string) []string {
	raw := os.Getenv("LD_LIBRARY_PATH")
	if raw == "" {
		return nil
	}

	var out []string
	for _, entry := range strings.Split(raw, string(os.PathListSeparator)) {
		if strings.Contains(entry, installDir) {
			out = append(out, entry)
		}
	}
	return out
}

// BindDirectives returns the directory binds and LD_LIBRARY_PATH
// fragments an ExecPlan needs to make a Wi4MPI install usable inside the
// guest: the install directory itself and the directory of every non-empty
// config entry whose key contains ROOT are bound, and each such entry's lib
// subdirectory is returned as an LD_LIBRARY_PATH fragment.
func BindDirectives(env Env) (dirs []string, ldLibraryPath []string) {
	dirs = append(dirs, env.Root)

	config := Config(env.Root)
	keys := make([]string, 0, len(config))
	for key := range config {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := config[key]
		if value == "" || !strings.Contains(key, "ROOT") {
			continue
		}
		dirs = append(dirs, value)
		ldLibraryPath = append(ldLibraryPath, filepath.Join(value, "lib"))
	}
	return dirs, ldLibraryPath
}
