// Package program holds the in-memory model of a closed-world application:
// interned types and member references, class definitions with their
// members, and the App that maps types to definitions.
package program

import (
	"strings"
)

// Kind classifies a Type.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindVoid
	KindClass
	KindArray
)

// Type is an interned type identity. Two *Type values denote the same type
// iff they are the same pointer; never compare types structurally.
type Type struct {
	id         int
	kind       Kind
	descriptor string // JVM descriptor, e.g. "Ljava/lang/String;" or "[I"
	name       string // source form, e.g. "java.lang.String" or "int[]"
	base       *Type  // innermost element type for arrays, nil otherwise
	dims       int
}

// ID returns a small integer handle unique to this type within its Factory.
func (t *Type) ID() int { return t.id }

func (t *Type) Kind() Kind { return t.kind }

// Descriptor returns the JVM descriptor of the type.
func (t *Type) Descriptor() string { return t.descriptor }

// String returns the source form of the type ("java.lang.String", "int[]").
func (t *Type) String() string { return t.name }

func (t *Type) IsPrimitive() bool { return t.kind == KindPrimitive }
func (t *Type) IsVoid() bool      { return t.kind == KindVoid }
func (t *Type) IsClass() bool     { return t.kind == KindClass }
func (t *Type) IsArray() bool     { return t.kind == KindArray }

// BaseType returns the innermost element type of an array, or t itself.
func (t *Type) BaseType() *Type {
	if t.kind == KindArray {
		return t.base
	}
	return t
}

// Dimensions returns the array dimension count, zero for non-array types.
func (t *Type) Dimensions() int { return t.dims }

// Package returns the dot-separated package of a class type ("" for the
// default package and for non-class types).
func (t *Type) Package() string {
	if t.kind != KindClass {
		return ""
	}
	if i := strings.LastIndexByte(t.name, '.'); i >= 0 {
		return t.name[:i]
	}
	return ""
}

// SimpleName returns the class name without its package. Nested classes keep
// their '$' separated outer names.
func (t *Type) SimpleName() string {
	if i := strings.LastIndexByte(t.name, '.'); i >= 0 {
		return t.name[i+1:]
	}
	return t.name
}

func (t *Type) isReference() {}

var primitiveDescriptors = map[string]string{
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
}

// IsPrimitiveName reports whether name is a Java primitive type keyword.
func IsPrimitiveName(name string) bool {
	_, ok := primitiveDescriptors[name]
	return ok
}

// descriptorFor converts a source-form type name to its JVM descriptor.
func descriptorFor(name string) string {
	dims := 0
	for strings.HasSuffix(name, "[]") {
		name = strings.TrimSuffix(name, "[]")
		dims++
	}
	var b strings.Builder
	b.Grow(dims + len(name) + 2)
	for range dims {
		b.WriteByte('[')
	}
	switch {
	case name == "void":
		b.WriteByte('V')
	case IsPrimitiveName(name):
		b.WriteString(primitiveDescriptors[name])
	default:
		b.WriteByte('L')
		b.WriteString(strings.ReplaceAll(name, ".", "/"))
		b.WriteByte(';')
	}
	return b.String()
}
