package shrinkroot

import (
	"sync"

	"github.com/715d/shrinkroot/pkg/program"
)

// objectModel is the java.lang.Object added to programs that do not bring
// their own library definition of it.
var objectModel = sync.OnceValue(func() program.ClassModel {
	return program.ClassModel{
		Name:  program.ObjectName,
		Kind:  "library",
		Flags: []string{"public"},
		Methods: []program.MethodModel{
			{Name: program.InstanceInitializerName, Flags: []string{"public"}},
			{Name: "equals", Params: []string{program.ObjectName}, Returns: "boolean", Flags: []string{"public"}},
			{Name: "hashCode", Returns: "int", Flags: []string{"public", "native"}},
			{Name: "toString", Returns: "java.lang.String", Flags: []string{"public"}},
			{Name: "getClass", Returns: "java.lang.Class", Flags: []string{"public", "final", "native"}},
		},
	}
})

// withObject returns m with java.lang.Object added when m does not declare it.
func withObject(m *program.Model) *program.Model {
	if m.Has(program.ObjectName) {
		return m
	}
	out := &program.Model{Merged: m.Merged}
	out.Classes = append(make([]program.ClassModel, 0, len(m.Classes)+1), objectModel())
	out.Classes = append(out.Classes, m.Classes...)
	return out
}
