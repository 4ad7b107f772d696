package errors

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// A StackFrame contains all necessary information about to generate a line
// in a callstack.
type StackFrame struct {
	// The path to the file containing this ProgramCounter
	File string
	// The LineNumber in that file
	LineNumber int
	// The Name of the function that contains this ProgramCounter
	Name string
	// The Package that contains this function
	Package string
	// The underlying ProgramCounter
	ProgramCounter uintptr
}

func newStackFrame(f runtime.Frame) StackFrame {
	pkg, name := packageAndName(f.Function)
	return StackFrame{
		File:           f.File,
		LineNumber:     f.Line,
		Name:           name,
		Package:        pkg,
		ProgramCounter: f.PC,
	}
}

// String returns the stackframe formatted in the same way as go does
// in runtime/debug.Stack()
func (frame *StackFrame) String() string {
	return fmt.Sprintf("%s:%d (0x%x)\n\t%s\n", frame.File, frame.LineNumber, frame.ProgramCounter, frame.Name)
}

// Short returns a single line "pkg.Func file:line" rendering, used in logs.
func (frame *StackFrame) Short() string {
	return fmt.Sprintf("%s.%s %s:%d", filepath.Base(frame.Package), frame.Name, filepath.Base(frame.File), frame.LineNumber)
}

func packageAndName(name string) (string, string) {
	pkg := ""

	// The name includes the path name to the package, which is unnecessary
	// since the file name is already included.  Plus, it has center dots.
	// That is, we see
	//  runtime/debug.*T·ptrmethod
	// and want
	//  *T.ptrmethod
	// Since the package path might contains dots (e.g. code.google.com/...),
	// we first remove the path prefix if there is one.
	if lastslash := strings.LastIndex(name, "/"); lastslash >= 0 {
		pkg += name[:lastslash] + "/"
		name = name[lastslash+1:]
	}
	if period := strings.Index(name, "."); period >= 0 {
		pkg += name[:period]
		name = name[period+1:]
	}

	name = strings.Replace(name, "·", ".", -1)
	return pkg, name
}
