package implib

import (
	"dlltool/pkg/archive"
	"dlltool/pkg/machine"
	"dlltool/pkg/moddef"
)

// Build is the import-library façade (spec.md §4.E): given a parsed
// module definition and a target machine, it synthesizes the
// import-descriptor member, the null-thunk member, one short-import
// member per export in definition order, and assembles them into the
// final archive byte stream.
//
// Errors propagate from the writer's integer-range checks (NameTooLong,
// SizeOverflow) and from per-export validation (InvalidExport); parser
// errors never reach here, since def is already a parsed ModuleDef by
// the time Build sees it.
func Build(def *moddef.ModuleDef, arch machine.Type) ([]byte, error) {
	desc := arch.Descriptor()
	libName := def.ImportName

	aw := archive.New()

	descData, descDefines, err := importDescriptorObject(libName, desc)
	if err != nil {
		return nil, err
	}
	aw.AddMember(archive.Member{Name: libName, Data: descData, Defines: descDefines})

	thunkData, thunkDefines, err := nullThunkObject(libName, desc)
	if err != nil {
		return nil, err
	}
	aw.AddMember(archive.Member{Name: libName, Data: thunkData, Defines: thunkDefines})

	for _, export := range def.Exports {
		impData, impDefines, err := shortImportObject(libName, export, desc)
		if err != nil {
			return nil, err
		}
		aw.AddMember(archive.Member{Name: libName, Data: impData, Defines: impDefines})
	}

	return aw.Build()
}
