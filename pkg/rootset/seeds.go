package rootset

import (
	"bufio"
	"io"
	"slices"
	"strings"

	"github.com/715d/shrinkroot/pkg/program"
)

// WriteSeeds writes one line per pinned reference whose holder is accepted
// by include, in sorted order:
//
//	com.example.Foo
//	com.example.Foo: int count
//	com.example.Foo: void bar(int,java.lang.String)
//	com.example.Foo: Foo(int)
//	com.example.Foo: <clinit>()
//
// Method references without a definition in app are skipped.
func WriteSeeds(w io.Writer, app *program.App, pinned []program.Reference, include func(*program.Type) bool) error {
	lines := make([]string, 0, len(pinned))
	for _, ref := range pinned {
		if line, ok := seedLine(app, ref, include); ok {
			lines = append(lines, line)
		}
	}
	slices.Sort(lines)

	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func seedLine(app *program.App, ref program.Reference, include func(*program.Type) bool) (string, bool) {
	switch r := ref.(type) {
	case *program.Type:
		if !include(r) {
			return "", false
		}
		return r.String(), true
	case *program.FieldRef:
		if !include(r.Holder) {
			return "", false
		}
		return r.Holder.String() + ": " + r.Type.String() + " " + r.Name, true
	case *program.MethodRef:
		if !include(r.Holder) {
			return "", false
		}
		def := app.DefinitionForMethod(r)
		if def == nil {
			return "", false
		}
		var b strings.Builder
		b.WriteString(r.Holder.String() + ": ")
		switch {
		case def.IsClassInitializer():
			b.WriteString(program.ClassInitializerName)
		case def.IsInstanceInitializer():
			b.WriteString(r.Holder.SimpleName())
		default:
			b.WriteString(r.Proto.Return.String() + " " + r.Name)
		}
		b.WriteString("(" + r.Proto.ParamList() + ")")
		return b.String(), true
	}
	return "", false
}

// IncludeAll accepts every type.
func IncludeAll(*program.Type) bool { return true }
