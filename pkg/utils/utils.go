package utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"runtime/debug"
)

func Fatal(v any) {
	fmt.Printf("godlltool:\n\t\033[0;1;31mfatal\033[0m: %v\n", v)
	debug.PrintStack()
	os.Exit(1)
}

func MustNo(err error) {
	if err != nil {
		Fatal(err.Error())
	}
}

// Read decodes a little-endian fixed-layout value out of data. A decode
// failure is reported through MustNo, the same fatal path Assert uses.
// No package of this program currently calls Read.
func Read[T any](data []byte) (val T) {
	reader := bytes.NewReader(data)
	err := binary.Read(reader, binary.LittleEndian, &val)

	MustNo(err)

	return val
}

// Write encodes val in little-endian fixed layout and returns the bytes.
func Write[T any](val T) []byte {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, binary.LittleEndian, val)
	MustNo(err)
	return buf.Bytes()
}

func Assert(condition bool) {
	if !condition {
		Fatal("Assert Failed")
	}
}
