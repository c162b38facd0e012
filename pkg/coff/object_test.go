package coff

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestFinalizeEmptyObject(t *testing.T) {
	w := New(0x8664)
	data, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	const wantLen = fileHeaderSize + 4 // header plus the always-present 4-byte strtab length prefix
	if len(data) != wantLen {
		t.Fatalf("got %d bytes, want %d", len(data), wantLen)
	}

	hdr, err := readFileHeader(data)
	if err != nil {
		t.Fatalf("decoding file header: %v", err)
	}
	if hdr.Machine != 0x8664 {
		t.Errorf("Machine = %#x, want 0x8664", hdr.Machine)
	}
	if hdr.NumberOfSections != 0 || hdr.NumberOfSymbols != 0 {
		t.Errorf("NumberOfSections=%d NumberOfSymbols=%d, want 0,0", hdr.NumberOfSections, hdr.NumberOfSymbols)
	}
	if hdr.TimeDateStamp != 0 {
		t.Errorf("TimeDateStamp = %d, want 0 (spec.md §4.B reproducibility)", hdr.TimeDateStamp)
	}
	// strtab is always present, even if empty: a 4-byte length prefix.
	if hdr.PointerToSymbolTable != fileHeaderSize {
		t.Errorf("PointerToSymbolTable = %d, want %d", hdr.PointerToSymbolTable, fileHeaderSize)
	}
}

func readFileHeader(data []byte) (fileHeader, error) {
	var h fileHeader
	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h)
	return h, err
}

func TestAddSectionAndSymbolLayout(t *testing.T) {
	w := New(0x014c)
	data := []byte{1, 2, 3, 4}
	sec := w.AddSection(".text", 0x60000020, data)
	if sec != 1 {
		t.Fatalf("first section number = %d, want 1", sec)
	}

	symIdx := w.AddSymbol(Symbol{Name: "main", Section: sec, StorageClass: 2})
	if symIdx != 0 {
		t.Fatalf("first symbol index = %d, want 0", symIdx)
	}

	w.AddRelocation(sec, Relocation{Offset: 0, Symbol: symIdx, Type: 6})

	out, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	wantHeaderAndSectionTable := fileHeaderSize + sectionHeaderSize
	if len(out) < wantHeaderAndSectionTable+len(data)+relocationSize+symbolRecordSize {
		t.Fatalf("output too short: got %d bytes", len(out))
	}

	// Section data starts right after the file+section headers.
	gotData := out[wantHeaderAndSectionTable : wantHeaderAndSectionTable+len(data)]
	for i, b := range gotData {
		if b != data[i] {
			t.Errorf("section data[%d] = %d, want %d", i, b, data[i])
		}
	}
}

func TestNameTooLongUsesStringTable(t *testing.T) {
	w := New(0x8664)
	longName := "this_name_is_longer_than_eight_bytes"
	w.AddSymbol(Symbol{Name: longName, Section: 0})

	out, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// The string table must contain the long name, null terminated.
	idx := indexOf(out, []byte(longName+"\x00"))
	if idx < 0 {
		t.Fatalf("string table does not contain %q", longName)
	}
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
