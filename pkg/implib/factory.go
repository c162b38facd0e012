// Package implib is the import-member factory (component C) and
// import-library façade (component E) of spec.md §4.C/§4.E: for each
// export it builds the COFF objects a linker needs to resolve that
// import, and orchestrates pkg/machine, pkg/coff and pkg/archive into
// the final archive byte stream.
package implib

import (
	"fmt"
	"path"
	"strings"

	"dlltool/pkg/coff"
	"dlltool/pkg/machine"
	"dlltool/pkg/moddef"
	"dlltool/pkg/utils"
)

// COFF section characteristics for the .idata sections (winnt.h):
// initialized data, readable, writable.
const idataCharacteristics = 0xC0000040

// IMPORT_OBJECT_HEADER Type field values (winnt.h IMPORT_OBJECT_CODE/
// DATA/CONST).
const (
	importTypeCode = 0
	importTypeData = 1
)

// IMPORT_OBJECT_HEADER NameType field values (winnt.h
// IMPORT_OBJECT_ORDINAL/NAME/NAME_NOPREFIX/NAME_UNDECORATE).
const (
	nameTypeOrdinal = 0
	nameTypeName    = 1
)

const (
	symClassExternal = 2
	symClassStatic   = 3
)

// InvalidExportError reports an export whose by-ordinal flag and ordinal
// value are inconsistent (spec.md §7).
type InvalidExportError struct {
	Name string
	Why  string
}

func (e *InvalidExportError) Error() string {
	return fmt.Sprintf("implib: export %q: %s", e.Name, e.Why)
}

// exportName returns the name a linker resolves this export by: the
// alias/external name when one was given, otherwise the plain name
// (mirrors ImportLibrary::from_def's ext_name fold in original_source/
// src/lib.rs - the .def file's internal/object-side name is irrelevant
// once only an import library, not the DLL itself, is being produced).
func exportName(e moddef.Export) string {
	if e.ExtName != nil {
		return *e.ExtName
	}
	return e.Name
}

// importDescriptorObject builds the once-per-library head object:
// .idata$2 holds an IMAGE_IMPORT_DESCRIPTOR shell, .idata$6 holds the
// DLL name (spec.md §4.C.1).
func importDescriptorObject(libName string, desc machine.Descriptor) (data []byte, defines []string, err error) {
	w := coff.New(desc.Machine)
	// Per-library symbol names use the library name without its extension
	// ("A.DLL" -> "A"); .idata$6 keeps the full DLL name.
	stem := strings.TrimSuffix(libName, path.Ext(libName))

	dllNameBytes := append([]byte(libName), 0)
	idata6 := w.AddSection(".idata$6", idataCharacteristics, dllNameBytes)

	shell := make([]byte, 20) // IMAGE_IMPORT_DESCRIPTOR, all zero fields
	idata2 := w.AddSection(".idata$2", idataCharacteristics, shell)

	dllNameSym := w.AddSymbol(coff.Symbol{
		Name:         ".idata$6",
		Value:        0,
		Section:      idata6,
		StorageClass: symClassStatic,
	})
	w.AddRelocation(idata2, coff.Relocation{Offset: 12, Symbol: dllNameSym, Type: desc.AbsReloc})

	nullThunkSym := w.AddSymbol(coff.Symbol{
		Name:         stem + "_NULL_THUNK_DATA",
		Section:      0, // undefined external, defined by the null-thunk object
		StorageClass: symClassExternal,
	})
	w.AddRelocation(idata2, coff.Relocation{Offset: 16, Symbol: nullThunkSym, Type: desc.AbsReloc})

	// Forces the linker to pull in the one real __NULL_IMPORT_DESCRIPTOR
	// definition (from the null-thunk object) whenever this library's
	// descriptor is referenced; not itself relocated against.
	w.AddSymbol(coff.Symbol{
		Name:         "__NULL_IMPORT_DESCRIPTOR",
		Section:      0,
		StorageClass: symClassExternal,
	})

	descriptorName := "__IMPORT_DESCRIPTOR_" + stem
	w.AddSymbol(coff.Symbol{
		Name:         descriptorName,
		Value:        0,
		Section:      idata2,
		StorageClass: symClassExternal,
	})

	data, err = w.Finalize()
	if err != nil {
		return nil, nil, err
	}
	return data, []string{descriptorName}, nil
}

// nullThunkObject builds the once-per-library null-terminator object:
// one pointer-width of zeros in .idata$4 and .idata$5 (spec.md §4.C.2).
//
// It also defines __NULL_IMPORT_DESCRIPTOR, resolving spec.md's minimal
// 4-member seed scenario (§8): that symbol has no section data of its
// own anywhere in the spec, so the only member left to define it is the
// other per-library singleton, immediately after the import-descriptor
// object in insertion order - see DESIGN.md.
func nullThunkObject(libName string, desc machine.Descriptor) (data []byte, defines []string, err error) {
	w := coff.New(desc.Machine)

	zero := make([]byte, desc.PointerSize)
	w.AddSection(".idata$4", idataCharacteristics, zero)
	idata5 := w.AddSection(".idata$5", idataCharacteristics, append([]byte{}, zero...))

	w.AddSymbol(coff.Symbol{
		Name:         "__NULL_IMPORT_DESCRIPTOR",
		Value:        0,
		Section:      -1, // absolute: no concrete address, just a link-time marker
		StorageClass: symClassExternal,
	})

	thunkName := strings.TrimSuffix(libName, path.Ext(libName)) + "_NULL_THUNK_DATA"
	w.AddSymbol(coff.Symbol{
		Name:         thunkName,
		Value:        0,
		Section:      idata5,
		StorageClass: symClassExternal,
	})

	data, err = w.Finalize()
	if err != nil {
		return nil, nil, err
	}
	return data, []string{"__NULL_IMPORT_DESCRIPTOR", thunkName}, nil
}

// shortImportHeader is the 20-byte IMPORT_OBJECT_HEADER (winnt.h): the
// compact archive-member form for a single import, signature
// 0x0000/0xFFFF instead of a real COFF machine number.
type shortImportHeader struct {
	Sig1          uint16
	Sig2          uint16
	Version       uint16
	Machine       uint16
	TimeDateStamp uint32
	SizeOfData    uint32
	OrdinalOrHint uint16
	TypeBits      uint16
}

const (
	importSig1 = 0x0000
	importSig2 = 0xFFFF
)

// shortImportObject builds the per-export short-import archive member
// (spec.md §4.C.3): a compact member carrying the import's type and
// name-resolution bits plus the DLL and imported names, with no section
// table or symbol table of its own - it is not a full COFF object.
func shortImportObject(libName string, e moddef.Export, desc machine.Descriptor) (data []byte, defines []string, err error) {
	if e.NoName && e.Ordinal == 0 {
		return nil, nil, &InvalidExportError{exportName(e), "imported by ordinal but no ordinal was given"}
	}

	name := exportName(e)

	nameType := nameTypeName
	ordinalOrHint := uint16(0)
	if e.NoName {
		nameType = nameTypeOrdinal
		ordinalOrHint = e.Ordinal
	}

	importType := importTypeCode
	if e.Data {
		importType = importTypeData
	}

	typeBits := uint16(importType&0x3) | uint16(nameType&0x7)<<2

	var body []byte
	body = append(body, name...)
	body = append(body, 0)
	body = append(body, libName...)
	body = append(body, 0)

	hdr := shortImportHeader{
		Sig1:          importSig1,
		Sig2:          importSig2,
		Version:       0,
		Machine:       desc.Machine,
		TimeDateStamp: 0,
		SizeOfData:    uint32(len(body)),
		OrdinalOrHint: ordinalOrHint,
		TypeBits:      typeBits,
	}

	data = append(utils.Write(hdr), body...)

	importName := "__imp_" + name
	if e.Data {
		defines = []string{importName}
	} else {
		defines = []string{importName, name}
	}

	return data, defines, nil
}
