// Package container defines the backend-agnostic container abstraction: a
// uniform execution plan (image, bind list, environment, LD_PRELOAD,
// LD_LIBRARY_PATH) consumed by one of several pluggable backend drivers.
package container

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Mode is the read/write mode a BindRequest is mounted with.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "rw"
	}
	return "ro"
}

// BindRequest describes one host path to make visible at a guest path.
// launch.Plan drops, with a warning, a requested extra file whose Source
// does not exist; AddBind itself does not check Source. Two requests with
// equal Dest collapse; the later one wins.
type BindRequest struct {
	Source string
	Dest   string
	Mode   Mode
}

// ExecPlan is the sole output of the core: the immutable specification a
// backend driver consumes to launch one container invocation.
type ExecPlan struct {
	Image   string
	Backend string

	binds    []BindRequest
	bindIdx  map[string]int // dest -> index into binds, for collapsing

	Env map[string]string

	LDPreload     []string
	LDLibraryPath []string

	Argv []string

	// ExtraFiles are additional open files inherited by the guest
	// process beyond stdio, used to hand the introspection pass its
	// control-channel write end. A driver that execs the backend binary
	// passes these through as os/exec.Cmd.ExtraFiles; the guest sees
	// them starting at fd 3.
	ExtraFiles []*os.File
}

// NewExecPlan returns an empty, ready-to-use ExecPlan.
func NewExecPlan(image, backend string) *ExecPlan {
	return &ExecPlan{
		Image:   image,
		Backend: backend,
		Env:     make(map[string]string),
		bindIdx: make(map[string]int),
	}
}

// AddBind appends req to the plan's bind list. If a request with the same
// Dest already exists, it is replaced in place (the later request wins)
// rather than appended, keeping the ordered set free of duplicate
// destinations.
func (p *ExecPlan) AddBind(req BindRequest) {
	if i, ok := p.bindIdx[req.Dest]; ok {
		p.binds[i] = req
		return
	}
	p.bindIdx[req.Dest] = len(p.binds)
	p.binds = append(p.binds, req)
}

// Binds returns the ordered, deduplicated bind list.
func (p *ExecPlan) Binds() []BindRequest {
	out := make([]BindRequest, len(p.binds))
	copy(out, p.binds)
	return out
}

// SetEnv records an environment variable to set in the guest, without
// overwriting the ambient LD_LIBRARY_PATH/LD_PRELOAD wholesale — callers
// merge with the ambient value before calling SetEnv on those two keys.
func (p *ExecPlan) SetEnv(key, value string) {
	p.Env[key] = value
}

// String renders a human-readable description of the plan, used by the
// core to log the plan before dispatch (the interceptor hook that
// replaces the original per-backend verbose-dump decorator).
func (p *ExecPlan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ExecPlan(backend=%s):\n", p.Backend)
	if p.Image != "" {
		fmt.Fprintf(&b, "- image: %s\n", p.Image)
	}
	if len(p.binds) > 0 {
		b.WriteString("- binds:\n")
		for _, bind := range p.binds {
			fmt.Fprintf(&b, "\t%s -> %s (%s)\n", bind.Source, bind.Dest, bind.Mode)
		}
	}
	if len(p.Env) > 0 {
		b.WriteString("- env:\n")
		keys := make([]string, 0, len(p.Env))
		for k := range p.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\t%s=%s\n", k, p.Env[k])
		}
	}
	if len(p.LDPreload) > 0 {
		fmt.Fprintf(&b, "- LD_PRELOAD: %s\n", strings.Join(p.LDPreload, ":"))
	}
	if len(p.LDLibraryPath) > 0 {
		fmt.Fprintf(&b, "- LD_LIBRARY_PATH: %s\n", strings.Join(p.LDLibraryPath, ":"))
	}
	return b.String()
}

// ExpandRelativeBind returns every ancestor directory a relative bind path
// visits via ".." components, plus the resolved target itself. Deleting
// the visited ".." ancestors from the bind set would remove directories
// the guest still needs to traverse the relative reference, so both the
// resolved path and each visited ancestor are bound.
//
// For example "/a/b/../c/f" visits "/a/b" (before the ".." is applied) and
// resolves to "/a/c/f"; both are returned.
func ExpandRelativeBind(path string) []string {
	clean := filepath.Clean(path)
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	isAbs := strings.HasPrefix(path, "/")

	visited := map[string]bool{clean: true}

	cur := ""
	if isAbs {
		cur = "/"
	}
	for _, part := range parts {
		if part == ".." {
			visited[filepath.Clean(cur)] = true
		}
		if cur == "/" || cur == "" {
			cur = cur + part
		} else {
			cur = cur + "/" + part
		}
	}

	// Drop any visited path that is a strict ancestor of another visited
	// path — only the deepest paths along each branch need a bind.
	var all []string
	for p := range visited {
		all = append(all, p)
	}

	var out []string
	for _, p := range all {
		contained := false
		for _, other := range all {
			if other != p && isStrictAncestor(p, other) {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, p)
		}
	}

	// deterministic order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	return out
}

func isStrictAncestor(ancestor, path string) bool {
	if ancestor == path {
		return false
	}
	rel, err := filepath.Rel(ancestor, path)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..") && rel != "."
}
