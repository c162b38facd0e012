// Package coff builds a single COFF object file in memory: headers,
// section table, section contents, relocations, symbol table and string
// table (spec.md §4.B, component B).
//
// Grounded on AimiP02-tinyLinker/pkg/linker/Inputfile.go and
// outputehdr.go/outputshdr.go/outputphdr.go: fixed-layout records declared
// as plain Go structs, serialized with encoding/binary over a
// bytes.Buffer via pkg/utils.Write, and a "compute the layout, then
// back-patch offsets into it" two-pass style (mirroring
// AimiP02-tinyLinker/pkg/linker/outputshdr.go's UpdateShdr/CopyBuf split).
package coff

import (
	"fmt"

	"dlltool/pkg/utils"
)

const (
	fileHeaderSize      = 20
	sectionHeaderSize   = 40
	relocationSize      = 10
	symbolRecordSize = 18
	maxUint32        = 1<<32 - 1 // NameTooLong/SizeOverflow bound, see §7
)

// fileHeader is the 20-byte COFF file header (winnt.h IMAGE_FILE_HEADER).
type fileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// sectionHeader is the 40-byte COFF section header
// (winnt.h IMAGE_SECTION_HEADER), with Name already resolved to either an
// inline 8-byte name or a string-table reference.
type sectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

// relocationRecord is the 10-byte COFF relocation (IMAGE_RELOCATION).
type relocationRecord struct {
	VirtualAddress   uint32
	SymbolTableIndex uint32
	Type             uint16
}

// symbolRecord is the 18-byte COFF symbol table entry (IMAGE_SYMBOL).
type symbolRecord struct {
	Name               [8]byte
	Value              uint32
	SectionNumber      int16
	Type               uint16
	StorageClass       uint8
	NumberOfAuxSymbols uint8
}

// Relocation is a COFF relocation to be added against a section's data,
// referencing a symbol by the index AddSymbol returned for it.
type Relocation struct {
	Offset uint32
	Symbol int
	Type   uint16
}

// Symbol is one entry the caller wants in the object's symbol table.
// Section is 0 for undefined/external, -1 for absolute, or a section
// number returned by AddSection. AuxBytes, if non-empty, must be a
// multiple of 18 bytes; each 18-byte group occupies one more symbol-table
// slot immediately following this entry, per spec.md §4.B.
type Symbol struct {
	Name         string
	Value        uint32
	Section      int
	Type         uint16
	StorageClass uint8
	AuxBytes     []byte
}

type section struct {
	name            string
	characteristics uint32
	data            []byte
	relocations     []Relocation
}

// Writer accumulates sections, symbols and relocations for one COFF
// object file and serializes them with Finalize.
//
// Section numbers are assigned in insertion order starting at 1, and
// symbol-table indices are assigned in insertion order starting at 0 -
// both are stable for the lifetime of the Writer, so relocations and aux
// data can reference them before Finalize lays out the final buffer.
type Writer struct {
	machine  uint16
	sections []*section
	symbols  []Symbol
}

// New creates a Writer for the given COFF machine number (machine.Type's
// Descriptor().Machine).
func New(machineNumber uint16) *Writer {
	return &Writer{machine: machineNumber}
}

// AddSection appends a section with the given name and characteristics
// flags, returning its 1-based section number.
func (w *Writer) AddSection(name string, characteristics uint32, data []byte) int {
	w.sections = append(w.sections, &section{name: name, characteristics: characteristics, data: data})
	return len(w.sections)
}

// AddRelocation attaches a relocation to the section with the given
// 1-based number, in the order AddSection returned it.
func (w *Writer) AddRelocation(sectionNumber int, r Relocation) {
	utils.Assert(sectionNumber >= 1 && sectionNumber <= len(w.sections))
	s := w.sections[sectionNumber-1]
	s.relocations = append(s.relocations, r)
}

// AddSymbol appends a symbol table entry, returning its symbol-table
// index for use as a Relocation.Symbol.
func (w *Writer) AddSymbol(sym Symbol) int {
	w.symbols = append(w.symbols, sym)
	return len(w.symbols) - 1
}

// NameTooLongError reports a name whose string-table offset cannot be
// represented in the 32-bit offset field (spec.md §7).
type NameTooLongError struct {
	Name string
}

func (e *NameTooLongError) Error() string {
	return fmt.Sprintf("coff: name %q too long to intern", e.Name)
}

// SizeOverflowError reports a computed size exceeding what its field can
// hold (spec.md §7).
type SizeOverflowError struct {
	What string
}

func (e *SizeOverflowError) Error() string {
	return fmt.Sprintf("coff: %s overflows its size field", e.What)
}

// stringTable accumulates names longer than 8 bytes. The serialized form
// is a 4-byte little-endian length (including the length field itself)
// followed by the concatenated null-terminated names; offsets recorded
// in encodeName are measured from the start of that 4-byte prefix.
type stringTable struct {
	buf []byte
}

func (st *stringTable) encodeName(name string) ([8]byte, error) {
	var field [8]byte
	if len(name) <= 8 {
		copy(field[:], name)
		return field, nil
	}
	offset := uint64(4 + len(st.buf))
	if offset > maxUint32 {
		return field, &NameTooLongError{name}
	}
	// field is {0,0,0,0, offsetLE32}
	field[4] = byte(offset)
	field[5] = byte(offset >> 8)
	field[6] = byte(offset >> 16)
	field[7] = byte(offset >> 24)
	st.buf = append(st.buf, name...)
	st.buf = append(st.buf, 0)
	return field, nil
}

func (st *stringTable) bytes() []byte {
	size := uint32(4 + len(st.buf))
	out := make([]byte, 0, size)
	out = append(out, byte(size), byte(size>>8), byte(size>>16), byte(size>>24))
	return append(out, st.buf...)
}

// Finalize serializes the accumulated sections, relocations and symbols
// into a complete COFF object file, per the layout in spec.md §4.B:
// file header, section table, then for each section its raw data
// immediately followed by its relocations, then the symbol table, then
// the string table. The timestamp is written as 0 for reproducibility.
func (w *Writer) Finalize() ([]byte, error) {
	strtab := &stringTable{}

	sectionNames := make([][8]byte, len(w.sections))
	for i, s := range w.sections {
		field, err := strtab.encodeName(s.name)
		if err != nil {
			return nil, err
		}
		sectionNames[i] = field
	}

	symbolNames := make([][8]byte, len(w.symbols))
	for i, sym := range w.symbols {
		field, err := strtab.encodeName(sym.Name)
		if err != nil {
			return nil, err
		}
		symbolNames[i] = field
	}

	// Lay out offsets. Sections carry their data directly followed by
	// their relocations, in section-table order.
	offset := uint32(fileHeaderSize + sectionHeaderSize*len(w.sections))
	headers := make([]sectionHeader, len(w.sections))
	for i, s := range w.sections {
		if len(s.data) > maxUint32 || len(s.relocations) > 0xFFFF {
			return nil, &SizeOverflowError{fmt.Sprintf("section %q", s.name)}
		}
		headers[i] = sectionHeader{
			Name:                sectionNames[i],
			SizeOfRawData:       uint32(len(s.data)),
			PointerToRawData:    offset,
			NumberOfRelocations: uint16(len(s.relocations)),
			Characteristics:     s.characteristics,
		}
		offset += uint32(len(s.data))
		if len(s.relocations) > 0 {
			headers[i].PointerToRelocations = offset
			offset += uint32(relocationSize * len(s.relocations))
		}
	}

	symbolTableOffset := offset
	numSymbolSlots := 0
	for _, sym := range w.symbols {
		utils.Assert(len(sym.AuxBytes)%symbolRecordSize == 0)
		numSymbolSlots += 1 + len(sym.AuxBytes)/symbolRecordSize
	}

	hdr := fileHeader{
		Machine:              w.machine,
		NumberOfSections:     uint16(len(w.sections)),
		TimeDateStamp:        0,
		PointerToSymbolTable: symbolTableOffset,
		NumberOfSymbols:      uint32(numSymbolSlots),
	}

	buf := make([]byte, 0, symbolTableOffset)
	buf = append(buf, utils.Write(hdr)...)
	for _, h := range headers {
		buf = append(buf, utils.Write(h)...)
	}
	for _, s := range w.sections {
		buf = append(buf, s.data...)
		for _, r := range s.relocations {
			utils.Assert(r.Symbol >= 0 && r.Symbol < len(w.symbols))
			buf = append(buf, utils.Write(relocationRecord{
				VirtualAddress:   r.Offset,
				SymbolTableIndex: uint32(r.Symbol),
				Type:             r.Type,
			})...)
		}
	}
	for i, sym := range w.symbols {
		sectionNumber := int16(sym.Section)
		buf = append(buf, utils.Write(symbolRecord{
			Name:               symbolNames[i],
			Value:              sym.Value,
			SectionNumber:      sectionNumber,
			Type:               sym.Type,
			StorageClass:       sym.StorageClass,
			NumberOfAuxSymbols: uint8(len(sym.AuxBytes) / symbolRecordSize),
		})...)
		buf = append(buf, sym.AuxBytes...)
	}
	buf = append(buf, strtab.bytes()...)

	return buf, nil
}
