package implib_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"dlltool/pkg/implib"
	"dlltool/pkg/machine"
	"dlltool/pkg/moddef"
)

const headerSize = 60

func parseMemberNames(t *testing.T, data []byte) []string {
	t.Helper()
	if string(data[:8]) != "!<arch>\n" {
		t.Fatalf("bad signature %q", data[:8])
	}
	var names []string
	pos := 8
	for pos+headerSize <= len(data) {
		hdr := data[pos : pos+headerSize]
		name := bytes.TrimRight(hdr[:16], " ")
		sizeField := bytes.TrimSpace(hdr[48:58])
		size := 0
		for _, b := range sizeField {
			size = size*10 + int(b-'0')
		}
		names = append(names, string(name))
		pos += headerSize + size
		if size%2 == 1 {
			pos++
		}
	}
	return names
}

func buildMinimal(t *testing.T, arch machine.Type) []byte {
	t.Helper()
	def, err := moddef.Parse("LIBRARY A.DLL\nEXPORTS\nfoo", arch)
	if err != nil {
		t.Fatalf("moddef.Parse: %v", err)
	}
	out, err := implib.Build(def, arch)
	if err != nil {
		t.Fatalf("implib.Build: %v", err)
	}
	return out
}

func TestMinimalDefHasSixMembers(t *testing.T) {
	data := buildMinimal(t, machine.AMD64)
	names := parseMemberNames(t, data)
	// "/", "/", "//" (the three special members), then the
	// import-descriptor, null-thunk and short-import objects.
	if len(names) != 6 {
		t.Fatalf("got %d members %v, want 6", len(names), names)
	}
	for i, want := range []string{"/", "/", "//", "A.DLL", "A.DLL", "A.DLL"} {
		if names[i] != want {
			t.Errorf("member[%d] name = %q, want %q", i, names[i], want)
		}
	}
}

func TestMinimalDefFirstLinkerMemberOrder(t *testing.T) {
	data := buildMinimal(t, machine.AMD64)
	pos := 8 + headerSize
	count := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	namesStart := pos + 4 + 4*count
	var got []string
	p := namesStart
	for i := 0; i < count; i++ {
		start := p
		for data[p] != 0 {
			p++
		}
		got = append(got, string(data[start:p]))
		p++
	}
	want := []string{
		"__IMPORT_DESCRIPTOR_A",
		"__NULL_IMPORT_DESCRIPTOR",
		"A_NULL_THUNK_DATA",
		"__imp_foo",
		"foo",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbol[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOrdinalDataExportOnlyRegistersImpSymbol(t *testing.T) {
	def, err := moddef.Parse("LIBRARY B.DLL\nEXPORTS\nbar @ 7 NONAME DATA", machine.AMD64)
	if err != nil {
		t.Fatalf("moddef.Parse: %v", err)
	}
	out, err := implib.Build(def, machine.AMD64)
	if err != nil {
		t.Fatalf("implib.Build: %v", err)
	}

	pos := 8 + headerSize
	count := int(binary.BigEndian.Uint32(out[pos : pos+4]))
	namesStart := pos + 4 + 4*count
	var got []string
	p := namesStart
	for i := 0; i < count; i++ {
		start := p
		for out[p] != 0 {
			p++
		}
		got = append(got, string(out[start:p]))
		p++
	}
	want := []string{
		"__IMPORT_DESCRIPTOR_B",
		"__NULL_IMPORT_DESCRIPTOR",
		"B_NULL_THUNK_DATA",
		"__imp_bar",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbol[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestI386DecorationAppliesBeforeImplib(t *testing.T) {
	def, err := moddef.Parse("LIBRARY C.DLL\nEXPORTS\nbaz", machine.I386)
	if err != nil {
		t.Fatalf("moddef.Parse: %v", err)
	}
	out, err := implib.Build(def, machine.I386)
	if err != nil {
		t.Fatalf("implib.Build: %v", err)
	}
	if !bytes.Contains(out, []byte("__imp__baz\x00")) {
		t.Error("output does not contain __imp__baz")
	}
	if !bytes.Contains(out, []byte("_baz\x00")) {
		t.Error("output does not contain _baz")
	}
}

func TestEmptyExportsStillEmitsPerLibraryMembers(t *testing.T) {
	def, err := moddef.Parse("LIBRARY D.DLL\nEXPORTS", machine.AMD64)
	if err != nil {
		t.Fatalf("moddef.Parse: %v", err)
	}
	out, err := implib.Build(def, machine.AMD64)
	if err != nil {
		t.Fatalf("implib.Build: %v", err)
	}
	names := parseMemberNames(t, out)
	if len(names) != 5 { // three special + import-descriptor + null-thunk
		t.Fatalf("got %d members %v, want 5", len(names), names)
	}
}

func TestDeterministicAcrossRuns(t *testing.T) {
	a := buildMinimal(t, machine.AMD64)
	b := buildMinimal(t, machine.AMD64)
	if !bytes.Equal(a, b) {
		t.Fatal("implib.Build is not deterministic for identical input")
	}
}
