// Package introspect implements the guest-side analysis pass and the
// host-side reader for its output: a single JSON document describing the
// container's libc version and the resolved shape of a requested set of
// shared libraries, exchanged over a file descriptor inherited across the
// container boundary.
package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	libelf "github.com/nhanford/e4s-cl/internal/pkg/elf"
	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
	"github.com/nhanford/e4s-cl/internal/pkg/libraries"
	"github.com/nhanford/e4s-cl/internal/pkg/resolve"
	"github.com/nhanford/e4s-cl/pkg/sylog"
	"github.com/nhanford/e4s-cl/pkg/version"
)

// ChannelEnvVar names the environment variable carrying the introspection
// file descriptor number, set by the orchestrator before the guest
// process starts.
const ChannelEnvVar = "__E4S_CL_JSON_FD"

// Library is the wire representation of one resolved shared object, a
// subset of libraries.Library that survives JSON round-tripping.
type Library struct {
	Soname  string   `json:"soname"`
	Path    string   `json:"path"`
	Needed  []string `json:"needed"`
	RPath   []string `json:"rpath"`
	RunPath []string `json:"runpath"`
	BuildID string   `json:"build_id,omitempty"`
}

// Report is the single JSON document written to the control fd.
type Report struct {
	LibcVersion string    `json:"libc_version"`
	Libraries   []Library `json:"libraries"`
}

// Run is the guest-side entry point ("analyze" mode): it resolves every
// requested soname inside the guest's own filesystem, reads the guest's
// libc version from `ldd --version`, and writes a single Report to the fd
// named by ChannelEnvVar.
func Run(ctx context.Context, requested []string) error {
	fd, err := channelFD()
	if err != nil {
		return e4serr.New(e4serr.AnalysisFailed, "introspect", err)
	}
	out := os.NewFile(uintptr(fd), "introspect-channel")
	defer out.Close()

	report, err := build(ctx, requested)
	if err != nil {
		return e4serr.New(e4serr.AnalysisFailed, "introspect", err)
	}

	if err := writeReport(out, report); err != nil {
		return e4serr.New(e4serr.AnalysisFailed, "introspect", err)
	}
	return nil
}

// writeReport encodes report as the single JSON document the wire format
// requires.
func writeReport(w io.Writer, report Report) error {
	return json.NewEncoder(w).Encode(report)
}

func channelFD() (int, error) {
	raw := os.Getenv(ChannelEnvVar)
	if raw == "" {
		return 0, fmt.Errorf("%s not set", ChannelEnvVar)
	}
	fd, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid file descriptor: %w", ChannelEnvVar, err)
	}
	return fd, nil
}

// guestResolver resolves sonames against the guest filesystem, exactly
// like libraries.HostResolver but named distinctly since it runs with the
// container's own root.
type guestResolver struct{}

func (guestResolver) Resolve(soname string, ctx resolve.Context) (resolve.Resolution, bool) {
	return resolve.Resolve(soname, ctx)
}

func (guestResolver) Open(path string) (*libelf.Object, error) {
	return libelf.Open(path)
}

func build(ctx context.Context, requested []string) (Report, error) {
	libc, err := lddVersion(ctx)
	if err != nil {
		return Report{}, err
	}

	set, _ := libraries.Closure(requested, libraries.OriginGuest, guestResolver{})

	report := Report{LibcVersion: libc.String()}
	for _, lib := range set.Libraries() {
		report.Libraries = append(report.Libraries, Library{
			Soname:  lib.Soname,
			Path:    lib.Path,
			Needed:  lib.Needed,
			RPath:   lib.RPath,
			RunPath: lib.RunPath,
			BuildID: lib.BuildID,
		})
	}
	return report, nil
}

// lddVersion runs `ldd --version` inside the guest and parses the leading
// version number of its first line (e.g. "ldd (GNU libc) 2.28").
func lddVersion(ctx context.Context) (version.Version, error) {
	out, err := exec.CommandContext(ctx, "ldd", "--version").Output()
	if err != nil {
		return version.Version{}, fmt.Errorf("running ldd --version: %w", err)
	}
	firstLine := strings.SplitN(string(out), "\n", 2)[0]
	return version.Parse(firstLine), nil
}

// Read is the host-side counterpart: it reads r to EOF and decodes the
// single Report written by Run. The first read is wrapped in a bounded
// exponential backoff since the guest process may not have started
// writing yet when the host begins draining the pipe.
func Read(r io.Reader) (Report, error) {
	var first []byte

	// The guest may not have written anything yet when the host starts
	// draining the pipe; retry the first read with a bounded backoff
	// rather than treating a zero-byte read as EOF.
	op := func() error {
		buf := make([]byte, 4096)
		n, err := r.Read(buf)
		if n > 0 {
			first = buf[:n]
			return nil
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("no data read yet")
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		return Report{}, e4serr.New(e4serr.AnalysisFailed, "introspect", err)
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return Report{}, e4serr.New(e4serr.AnalysisFailed, "introspect", err)
	}
	data := append(first, rest...)

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		sylog.Errorf("introspect: malformed JSON from guest: %s", err)
		return Report{}, e4serr.New(e4serr.AnalysisFailed, "introspect", err)
	}
	return report, nil
}

// ToLibrarySet converts a guest Report into a libraries.Set the merger
// can compare against the host's closure.
func ToLibrarySet(report Report) *libraries.Set {
	set := libraries.NewSet()
	for _, lib := range report.Libraries {
		set.Add(libraries.Library{
			Soname:  lib.Soname,
			Path:    lib.Path,
			Needed:  lib.Needed,
			RPath:   lib.RPath,
			RunPath: lib.RunPath,
			BuildID: lib.BuildID,
			Origin:  libraries.OriginGuest,
		})
	}
	return set
}
