// Package elf reads ELF shared objects and programs, extracting the
// dynamic-section metadata (soname, needed list, rpath/runpath,
// interpreter, build-id, compiler vendor) the resolver and library graph
// build on.
package elf

import (
	"bytes"
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
)

// CompilerVendor tags the toolchain that produced an object, detected from
// its .comment section.
type CompilerVendor string

const (
	VendorGNU      CompilerVendor = "gnu"
	VendorLLVM     CompilerVendor = "llvm"
	VendorIntel    CompilerVendor = "intel"
	VendorAMD      CompilerVendor = "amd"
	VendorPGI      CompilerVendor = "pgi"
	VendorArmClang CompilerVendor = "armclang"
	VendorFujitsu  CompilerVendor = "fujitsu"
	VendorUnknown  CompilerVendor = "unknown"
)

// Object is the opaque record for one parsed ELF shared object or program,
// matching the Library data model's ELF-derived fields. It carries no
// origin tag; the caller (the library graph) attaches that.
type Object struct {
	Path           string
	Soname         string
	Needed         []string
	RPath          []string
	RunPath        []string
	Interpreter    string
	BuildID        string
	CompilerVendor CompilerVendor
	Machine        elf.Machine
}

// ErrNotAnELF is returned when the file lacks the ELF magic bytes.
var ErrNotAnELF = errors.New("not an ELF file")

// ErrTruncated is returned when section or program headers lie outside the
// file.
var ErrTruncated = errors.New("truncated ELF file")

// Open parses the ELF file at path. On any failure it returns (nil, err);
// the caller decides whether to skip or propagate — no partial Object is
// ever returned.
func Open(path string) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, e4serr.New(e4serr.ELFError, path, err)
	}
	defer f.Close()

	return Read(path, f)
}

// Read parses an already-open ELF byte stream, attributing errors to name
// (typically the path the stream came from, for diagnostics).
func Read(name string, r io.ReaderAt) (*Object, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		if isMagicError(err) {
			return nil, e4serr.New(e4serr.ELFError, name, ErrNotAnELF)
		}
		if isRangeError(err) {
			return nil, e4serr.New(e4serr.ELFError, name, ErrTruncated)
		}
		return nil, e4serr.New(e4serr.ELFError, name, err)
	}
	defer ef.Close()

	obj := &Object{
		Path:    name,
		Machine: ef.Machine,
	}

	if needed, err := ef.DynString(elf.DT_NEEDED); err == nil {
		obj.Needed = needed
	}
	if soname, err := ef.DynString(elf.DT_SONAME); err == nil && len(soname) > 0 {
		obj.Soname = soname[0]
	} else {
		obj.Soname = filepath.Base(name)
	}

	// DT_RPATH is only consulted by the loader when DT_RUNPATH is absent;
	// we still capture both and let the resolver apply that precedence.
	if rpath, err := ef.DynString(elf.DT_RPATH); err == nil {
		obj.RPath = splitSearchPath(rpath)
	}
	if runpath, err := ef.DynString(elf.DT_RUNPATH); err == nil {
		obj.RunPath = splitSearchPath(runpath)
	}

	if interp := interpSection(ef); interp != "" {
		obj.Interpreter = interp
	}

	obj.BuildID = buildID(ef)
	obj.CompilerVendor = vendorOf(comment(ef))

	return obj, nil
}

func splitSearchPath(entries []string) []string {
	var out []string
	for _, e := range entries {
		for _, p := range strings.Split(e, ":") {
			if p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func interpSection(ef *elf.File) string {
	sec := ef.Section(".interp")
	if sec == nil {
		return ""
	}
	data, err := sec.Data()
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\x00")
}

func buildID(ef *elf.File) string {
	sec := ef.Section(".note.gnu.build-id")
	if sec == nil {
		return ""
	}
	data, err := sec.Data()
	if err != nil {
		return ""
	}
	return parseBuildIDNote(data)
}

// parseBuildIDNote extracts the descriptor bytes of an ELF note whose name
// is "GNU" and renders them as hex, per the .note.gnu.build-id layout:
// namesz, descsz, type, name (padded to 4), desc (padded to 4).
func parseBuildIDNote(data []byte) string {
	for len(data) >= 12 {
		namesz := le32(data[0:4])
		descsz := le32(data[4:8])
		off := 12
		nameEnd := off + int(namesz)
		if nameEnd > len(data) {
			return ""
		}
		name := strings.TrimRight(string(data[off:nameEnd]), "\x00")
		off = align4(nameEnd)
		descEnd := off + int(descsz)
		if descEnd > len(data) {
			return ""
		}
		if name == "GNU" {
			return hex.EncodeToString(data[off:descEnd])
		}
		data = data[align4(descEnd):]
	}
	return ""
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func align4(n int) int {
	return (n + 3) &^ 3
}

func comment(ef *elf.File) string {
	var parts []string
	for _, sec := range ef.Sections {
		if sec.Name != ".comment" {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}
		for _, s := range bytes.Split(data, []byte{0}) {
			if len(s) > 0 {
				parts = append(parts, string(s))
			}
		}
	}
	return strings.Join(parts, " - ")
}

// vendorOf applies the precedence list documented in the ELF Reader
// contract: AMD substring wins over clang, which wins over GCC, because
// ROCm binaries carry all three strings in their .comment section.
func vendorOf(comment string) CompilerVendor {
	switch {
	case strings.Contains(comment, "AMD"):
		return VendorAMD
	case strings.Contains(comment, "clang"):
		return VendorLLVM
	case strings.Contains(comment, "GCC"):
		return VendorGNU
	default:
		return VendorGNU
	}
}

func isMagicError(err error) bool {
	return strings.Contains(err.Error(), "bad magic number")
}

func isRangeError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "out of range") || strings.Contains(msg, "too short") || fmt.Sprintf("%T", err) == "*elf.FormatError"
}
