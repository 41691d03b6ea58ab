// Package resolve implements the ELF dynamic-linker search order: given a
// soname and the RPATH/RUNPATH context inherited from its dependents, it
// locates the on-disk file that would be loaded for it.
package resolve

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	libelf "github.com/nhanford/e4s-cl/internal/pkg/elf"
	"github.com/nhanford/e4s-cl/pkg/sylog"
)

// Context carries the search-path state accumulated while walking a
// library closure: a parent's RPATH/RUNPATH becomes visible to the
// resolution of its own DT_NEEDED entries.
type Context struct {
	RPath   []string
	RunPath []string
}

// Resolution is the outcome of resolving one soname: the realpath that was
// opened, plus the symlink name it was found under, if any (the bind step
// needs both to reproduce the symlink inside the guest).
type Resolution struct {
	Soname      string
	RealPath    string
	SymlinkPath string // equals RealPath when the soname was found directly
}

var standardLibDirs = []string{"/lib", "/lib64", "/usr/lib", "/usr/lib64"}

// LdSoConfPath is the path consulted for the standard search directories.
// Overridable in tests; production code never changes it.
var LdSoConfPath = "/etc/ld.so.conf"

// Resolve locates soname using the exact ELF dynamic-linker search order:
//  1. DT_RPATH, only when no DT_RUNPATH is present anywhere in ctx.
//  2. LD_LIBRARY_PATH directories, from the ambient process environment.
//  3. DT_RUNPATH.
//  4. Standard directories from /etc/ld.so.conf (and its includes), plus
//     /lib, /lib64, /usr/lib, /usr/lib64.
//
// It returns false if no directory in the search order contains a match.
func Resolve(soname string, ctx Context) (Resolution, bool) {
	var order []string

	if len(ctx.RunPath) == 0 {
		order = append(order, ctx.RPath...)
	}
	order = append(order, splitEnvPath(os.Getenv("LD_LIBRARY_PATH"))...)
	order = append(order, ctx.RunPath...)
	order = append(order, standardDirs()...)

	for _, dir := range order {
		if dir == "" {
			continue
		}
		if res, ok := searchDir(dir, soname); ok {
			return res, true
		}
	}

	return Resolution{}, false
}

func searchDir(dir, soname string) (Resolution, bool) {
	direct := filepath.Join(dir, soname)
	if info, err := os.Lstat(direct); err == nil {
		return resolveCandidate(direct, soname, info)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Resolution{}, false
	}

	for _, entry := range entries {
		if entry.Name() == soname {
			continue // already tried above
		}
		candidate := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		obj, err := libelf.Open(realTarget(candidate, info))
		if err != nil {
			continue
		}
		if obj.Soname == soname {
			res, ok := resolveCandidate(candidate, soname, info)
			if ok {
				return res, true
			}
		}
	}

	return Resolution{}, false
}

// resolveCandidate follows symlinks to a realpath, remembering the
// symlink's own name so the bind step can reproduce it inside the guest.
func resolveCandidate(path, soname string, info os.FileInfo) (Resolution, bool) {
	real := path
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			sylog.Debugf("unable to resolve symlink %s: %v", path, err)
			return Resolution{}, false
		}
		real = target
	}

	if fi, err := os.Stat(real); err != nil || fi.IsDir() {
		return Resolution{}, false
	}

	return Resolution{Soname: soname, RealPath: real, SymlinkPath: path}, true
}

func realTarget(path string, info os.FileInfo) string {
	if info.Mode()&os.ModeSymlink == 0 {
		return path
	}
	if target, err := filepath.EvalSymlinks(path); err == nil {
		return target
	}
	return path
}

func splitEnvPath(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ":")
}

// standardDirs reads /etc/ld.so.conf (and any "include" directives within
// it) plus the hard-coded fallback directories.
func standardDirs() []string {
	dirs := ldSoConf(LdSoConfPath, map[string]bool{})
	dirs = append(dirs, standardLibDirs...)
	return dirs
}

func ldSoConf(path string, visited map[string]bool) []string {
	if visited[path] {
		return nil
	}
	visited[path] = true

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var dirs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "include "); ok {
			pattern := strings.TrimSpace(rest)
			if !filepath.IsAbs(pattern) {
				pattern = filepath.Join(filepath.Dir(path), pattern)
			}
			matches, _ := filepath.Glob(pattern)
			for _, m := range matches {
				dirs = append(dirs, ldSoConf(m, visited)...)
			}
			continue
		}

		dirs = append(dirs, line)
	}

	return dirs
}
