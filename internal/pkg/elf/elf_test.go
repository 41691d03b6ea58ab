package elf

import (
	"encoding/binary"
	"testing"

	"gotest.tools/v3/assert"
)

func TestVendorPrecedence(t *testing.T) {
	// ROCm binaries contain all three substrings; AMD must win.
	assert.Equal(t, vendorOf("AMD clang GCC"), VendorAMD)
	assert.Equal(t, vendorOf("clang version 14.0.0"), VendorLLVM)
	assert.Equal(t, vendorOf("GCC: (GNU) 11.3.0"), VendorGNU)
	assert.Equal(t, vendorOf(""), VendorGNU)
}

func TestSplitSearchPath(t *testing.T) {
	got := splitSearchPath([]string{"/a:/b", "", "/c"})
	assert.DeepEqual(t, got, []string{"/a", "/b", "/c"})
}

func buildNote(name string, desc []byte) []byte {
	buf := make([]byte, 0, 64)
	namePadded := name + "\x00"
	for len(namePadded)%4 != 0 {
		namePadded += "\x00"
	}
	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(name)+1))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(desc)))
	binary.LittleEndian.PutUint32(header[8:12], 3) // NT_GNU_BUILD_ID
	buf = append(buf, header...)
	buf = append(buf, namePadded...)
	buf = append(buf, desc...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func TestParseBuildIDNote(t *testing.T) {
	desc := []byte{0xab, 0x12, 0xcd, 0x34}
	note := buildNote("GNU", desc)
	assert.Equal(t, parseBuildIDNote(note), "ab12cd34")
}

func TestParseBuildIDNoteIgnoresOtherOwners(t *testing.T) {
	note := buildNote("rust", []byte{0x01})
	assert.Equal(t, parseBuildIDNote(note), "")
}
