// Package archive assembles COFF object members into a Microsoft-format
// archive: the global signature, the first and second linker symbol-index
// members, the long-names member, and the object members themselves
// (spec.md §4.D, component D).
//
// Grounded on AimiP02-tinyLinker/pkg/linker/archive.go, which reads this
// same container format (skip "!<arch>\n", walk 60-byte headers, resolve
// long names through the "//" member); this package inverts that into a
// writer, following the same "compute layout, then emit" two-pass style
// pkg/coff uses for the object it packages.
package archive

import (
	"fmt"
	"sort"

	"dlltool/pkg/utils"
)

const (
	headerSize  = 60
	maxSizeDigits = 9999999999 // 10-digit decimal Size field, see §7
)

// Member is one object file to place in the archive, plus the public
// symbol names it defines. Name is the archive member's own name field
// (for import libraries this is the target DLL's name, reused across
// every member - spec.md §4.D.4); Defines is the list of symbol names,
// in the order they should appear in the first linker member, that this
// member's header offset resolves to in the symbol-index tables.
type Member struct {
	Name    string
	Data    []byte
	Defines []string
}

// Writer accumulates members in the order they'll appear in the archive
// and produces the final byte stream with Build.
type Writer struct {
	members []Member
}

// New creates an empty archive Writer.
func New() *Writer {
	return &Writer{}
}

// AddMember appends an object member, returning its archive order index.
func (w *Writer) AddMember(m Member) int {
	w.members = append(w.members, m)
	return len(w.members) - 1
}

// SizeOverflowError reports a member or table whose length cannot be
// represented in the 10-digit decimal Size header field (spec.md §7).
type SizeOverflowError struct {
	What string
}

func (e *SizeOverflowError) Error() string {
	return fmt.Sprintf("archive: %s overflows the 10-digit size field", e.What)
}

type memberHeader struct {
	Name    [16]byte
	ModTime [12]byte
	UID     [6]byte
	GID     [6]byte
	Mode    [8]byte
	Size    [10]byte
	End     [2]byte
}

func asciiField(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	for i := len(s); i < width; i++ {
		b[i] = ' '
	}
	return b
}

func fixedField(s string, width int) (out [16]byte) {
	copy(out[:], asciiField(s, width))
	return out
}

// longNames accumulates member names longer than 15 bytes (spec.md
// §4.D.4), deduplicated by offset into the eventual "//" member body.
type longNames struct {
	buf     []byte
	offsets map[string]uint32
}

func (ln *longNames) intern(name string) uint32 {
	if off, ok := ln.offsets[name]; ok {
		return off
	}
	off := uint32(len(ln.buf))
	ln.offsets[name] = off
	ln.buf = append(ln.buf, name...)
	ln.buf = append(ln.buf, 0)
	return off
}

// nameField encodes an archive member's Name header field: inline and
// space-padded if it is 15 bytes or fewer, otherwise a "/<offset>"
// reference into the long-names member (spec.md §4.D.4, §3).
func nameField(ln *longNames, name string) [16]byte {
	if len(name) <= 15 {
		return fixedField(name, 16)
	}
	off := ln.intern(name)
	return fixedField(fmt.Sprintf("/%d", off), 16)
}

// buildHeader encodes a 60-byte archive member header. UID/GID/Mode are
// fixed at "0"/"0"/"644" - this format carries no real ownership
// information, matching what the reference tool writes for synthesized
// import-library members.
func buildHeader(name [16]byte, modTime string, size int) ([]byte, error) {
	if size > maxSizeDigits {
		return nil, &SizeOverflowError{"member body"}
	}
	hdr := memberHeader{
		Name:    name,
		ModTime: to12(modTime),
		UID:     to6("0"),
		GID:     to6("0"),
		Mode:    to8("644"),
		Size:    to10(fmt.Sprintf("%d", size)),
		End:     [2]byte{'`', '\n'},
	}
	return utils.Write(hdr), nil
}

func to6(s string) (f [6]byte)   { copy(f[:], asciiField(s, 6)); return f }
func to8(s string) (f [8]byte)   { copy(f[:], asciiField(s, 8)); return f }
func to10(s string) (f [10]byte) { copy(f[:], asciiField(s, 10)); return f }
func to12(s string) (f [12]byte) { copy(f[:], asciiField(s, 12)); return f }

func padded(body []byte) []byte {
	if len(body)%2 == 1 {
		return append(append([]byte{}, body...), '\n')
	}
	return body
}

type symRef struct {
	name        string
	memberIndex int
}

// Build lays out and serializes the archive: signature, first linker
// member, second linker member, long-names member, then every object
// member in the order AddMember recorded it (spec.md §4.D).
//
// This is a straight size-then-emit pass per spec.md §9: member-header
// offsets for the object members depend only on the sizes of the members
// that precede them, and the three special members' sizes depend only on
// the member count and symbol names already known up front - so there is no
// speculative write-and-patch, just arithmetic followed by one
// sequential emit.
func (w *Writer) Build() ([]byte, error) {
	ln := &longNames{offsets: map[string]uint32{}}

	memberNameFields := make([][16]byte, len(w.members))
	for i, m := range w.members {
		memberNameFields[i] = nameField(ln, m.Name)
	}

	var insertionSyms []symRef
	for i, m := range w.members {
		for _, name := range m.Defines {
			insertionSyms = append(insertionSyms, symRef{name, i})
		}
	}

	sortedSyms := append([]symRef(nil), insertionSyms...)
	sort.SliceStable(sortedSyms, func(i, j int) bool {
		return sortedSyms[i].name < sortedSyms[j].name
	})

	firstBody := make([]byte, 0, 4+4*len(insertionSyms))
	// placeholder count+offsets, backfilled once member header offsets are
	// known below; sized now so later offsets are correct.
	firstBody = append(firstBody, make([]byte, 4+4*len(insertionSyms))...)
	for _, s := range insertionSyms {
		firstBody = append(firstBody, s.name...)
		firstBody = append(firstBody, 0)
	}

	secondBody := make([]byte, 0)
	secondBody = append(secondBody, make([]byte, 4+4*len(w.members))...)
	secondBody = append(secondBody, make([]byte, 4+2*len(sortedSyms))...)
	for _, s := range sortedSyms {
		secondBody = append(secondBody, s.name...)
		secondBody = append(secondBody, 0)
	}

	longBody := append([]byte{}, ln.buf...)

	firstHdr, err := buildHeader(fixedField("/", 16), "-1", len(firstBody))
	if err != nil {
		return nil, err
	}
	secondHdr, err := buildHeader(fixedField("/", 16), "-1", len(secondBody))
	if err != nil {
		return nil, err
	}
	longHdr, err := buildHeader(fixedField("//", 16), "0", len(longBody))
	if err != nil {
		return nil, err
	}

	offset := 8 // "!<arch>\n"
	offset += len(firstHdr) + len(padded(firstBody))
	offset += len(secondHdr) + len(padded(secondBody))
	offset += len(longHdr) + len(padded(longBody))

	memberHeaderOffset := make([]uint32, len(w.members))
	memberHeaders := make([][]byte, len(w.members))
	memberBodies := make([][]byte, len(w.members))
	for i, m := range w.members {
		memberHeaderOffset[i] = uint32(offset)
		body := padded(m.Data)
		hdr, err := buildHeader(memberNameFields[i], "0", len(m.Data))
		if err != nil {
			return nil, err
		}
		memberHeaders[i] = hdr
		memberBodies[i] = body
		offset += len(hdr) + len(body)
	}

	// Backfill the first linker member: big-endian count, then one
	// big-endian offset per symbol in insertion order.
	putBE := func(b []byte, at int, v uint32) {
		b[at] = byte(v >> 24)
		b[at+1] = byte(v >> 16)
		b[at+2] = byte(v >> 8)
		b[at+3] = byte(v)
	}
	putBE(firstBody, 0, uint32(len(insertionSyms)))
	for i, s := range insertionSyms {
		putBE(firstBody, 4+4*i, memberHeaderOffset[s.memberIndex])
	}

	// Backfill the second linker member: little-endian member count and
	// offsets table, then little-endian symbol count and 1-based member
	// indices in sorted-name order.
	putLE32 := func(b []byte, at int, v uint32) {
		b[at] = byte(v)
		b[at+1] = byte(v >> 8)
		b[at+2] = byte(v >> 16)
		b[at+3] = byte(v >> 24)
	}
	putLE16 := func(b []byte, at int, v uint16) {
		b[at] = byte(v)
		b[at+1] = byte(v >> 8)
	}
	putLE32(secondBody, 0, uint32(len(w.members)))
	for i, off := range memberHeaderOffset {
		putLE32(secondBody, 4+4*i, off)
	}
	symTableBase := 4 + 4*len(w.members)
	putLE32(secondBody, symTableBase, uint32(len(sortedSyms)))
	for i, s := range sortedSyms {
		putLE16(secondBody, symTableBase+4+2*i, uint16(s.memberIndex+1))
	}

	out := make([]byte, 0, offset)
	out = append(out, "!<arch>\n"...)
	out = append(out, firstHdr...)
	out = append(out, padded(firstBody)...)
	out = append(out, secondHdr...)
	out = append(out, padded(secondBody)...)
	out = append(out, longHdr...)
	out = append(out, padded(longBody)...)
	for i := range w.members {
		out = append(out, memberHeaders[i]...)
		out = append(out, memberBodies[i]...)
	}

	return out, nil
}
