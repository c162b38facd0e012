package main

// CLI entry point, in the shape of AimiP02-tinyLinker/rvld.go (read
// arguments, build, fail loudly via pkg/utils) combined with the
// flag-based argument parsing aclements-go-misc/obj/objbrowse/main.go
// uses: -m/--machine selects the target architecture, -d is the input
// .def path, -l is the output .lib path.

import (
	"flag"
	"fmt"
	"os"

	"dlltool/pkg/implib"
	"dlltool/pkg/machine"
	"dlltool/pkg/moddef"
	"dlltool/pkg/utils"
)

func main() {
	machineFlag := flag.String("m", "amd64", "target machine: i386, amd64, arm64, or armnt")
	flag.StringVar(machineFlag, "machine", "amd64", "long form of -m")
	defFlag := flag.String("d", "", "input module-definition (.def) file")
	outFlag := flag.String("l", "", "output import library (.lib) path")
	flag.Parse()

	if *defFlag == "" || *outFlag == "" {
		utils.Fatal("usage: godlltool -m {i386,amd64,arm64,armnt} -d input.def -l output.lib")
	}

	arch, err := machine.Parse(*machineFlag)
	utils.MustNo(err)

	defText, err := os.ReadFile(*defFlag)
	utils.MustNo(err)

	def, err := moddef.Parse(string(defText), arch)
	utils.MustNo(err)

	out, err := implib.Build(def, arch)
	utils.MustNo(err)

	utils.MustNo(os.WriteFile(*outFlag, out, 0644))

	fmt.Printf("godlltool: wrote %s (%d bytes)\n", *outFlag, len(out))
}
