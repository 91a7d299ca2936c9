package program

import (
	"iter"
	"slices"
)

// Provenance tags where a class definition came from.
type Provenance uint8

const (
	ProvenanceProgram Provenance = iota
	ProvenanceClasspath
	ProvenanceLibrary
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceProgram:
		return "program"
	case ProvenanceClasspath:
		return "classpath"
	case ProvenanceLibrary:
		return "library"
	}
	return "unknown"
}

// Definition is a class, field or method definition. Definitions are compared
// by pointer identity and are usable as map keys.
type Definition interface {
	Reference() Reference
	String() string
	isDefinition()
}

// ClassDef is the definition of a class or interface.
type ClassDef struct {
	Type        *Type
	Super       *Type // nil only for java.lang.Object
	Interfaces  []*Type
	Flags       AccessFlags
	Annotations []*Type
	Provenance  Provenance
	Fields      []*FieldDef
	Methods     []*MethodDef

	methodIndex map[Signature]*MethodDef
	fieldIndex  map[fieldSig]*FieldDef
}

type fieldSig struct {
	name string
	typ  *Type
}

// index builds the member lookup tables; called once by NewApp.
func (c *ClassDef) index() {
	c.methodIndex = make(map[Signature]*MethodDef, len(c.Methods))
	for _, m := range c.Methods {
		if _, dup := c.methodIndex[m.Ref.Signature()]; !dup {
			c.methodIndex[m.Ref.Signature()] = m
		}
	}
	c.fieldIndex = make(map[fieldSig]*FieldDef, len(c.Fields))
	for _, f := range c.Fields {
		key := fieldSig{name: f.Ref.Name, typ: f.Ref.Type}
		if _, dup := c.fieldIndex[key]; !dup {
			c.fieldIndex[key] = f
		}
	}
}

func (c *ClassDef) Reference() Reference { return c.Type }
func (c *ClassDef) String() string       { return c.Type.name }
func (c *ClassDef) isDefinition()        {}

func (c *ClassDef) IsInterface() bool  { return c.Flags.IsInterface() }
func (c *ClassDef) IsAbstract() bool   { return c.Flags.IsAbstract() }
func (c *ClassDef) IsEnum() bool       { return c.Flags.Has(AccEnum) }
func (c *ClassDef) IsAnnotation() bool { return c.Flags.Has(AccAnnotation) }

func (c *ClassDef) IsProgramClass() bool   { return c.Provenance == ProvenanceProgram }
func (c *ClassDef) IsClasspathClass() bool { return c.Provenance == ProvenanceClasspath }
func (c *ClassDef) IsLibraryClass() bool   { return c.Provenance == ProvenanceLibrary }

// LookupMethod finds a method declared directly on this class.
func (c *ClassDef) LookupMethod(sig Signature) *MethodDef {
	if c.methodIndex == nil {
		for _, m := range c.Methods {
			if m.Ref.Name == sig.Name && m.Ref.Proto == sig.Proto {
				return m
			}
		}
		return nil
	}
	return c.methodIndex[sig]
}

// LookupField finds a field declared directly on this class.
func (c *ClassDef) LookupField(name string, typ *Type) *FieldDef {
	if c.fieldIndex == nil {
		for _, f := range c.Fields {
			if f.Ref.Name == name && f.Ref.Type == typ {
				return f
			}
		}
		return nil
	}
	return c.fieldIndex[fieldSig{name: name, typ: typ}]
}

// DirectMethods yields static, private and constructor methods.
func (c *ClassDef) DirectMethods() iter.Seq[*MethodDef] {
	return func(yield func(*MethodDef) bool) {
		for _, m := range c.Methods {
			if m.IsDirect() && !yield(m) {
				return
			}
		}
	}
}

// VirtualMethods yields the dispatchable instance methods.
func (c *ClassDef) VirtualMethods() iter.Seq[*MethodDef] {
	return func(yield func(*MethodDef) bool) {
		for _, m := range c.Methods {
			if !m.IsDirect() && !yield(m) {
				return
			}
		}
	}
}

// HasAnnotation reports whether t is among the class annotations.
func (c *ClassDef) HasAnnotation(t *Type) bool {
	return slices.Contains(c.Annotations, t)
}

// FieldDef is the definition of a field.
type FieldDef struct {
	Ref         *FieldRef
	Flags       AccessFlags
	Annotations []*Type
	// Origin is the holder before vertical class merging; nil if unchanged.
	Origin *Type
}

func (f *FieldDef) Reference() Reference { return f.Ref }
func (f *FieldDef) String() string       { return f.Ref.String() }
func (f *FieldDef) isDefinition()        {}

func (f *FieldDef) Holder() *Type  { return f.Ref.Holder }
func (f *FieldDef) IsStatic() bool { return f.Flags.IsStatic() }

// OriginalHolder returns the pre-merge holder of the field.
func (f *FieldDef) OriginalHolder() *Type {
	if f.Origin != nil {
		return f.Origin
	}
	return f.Ref.Holder
}

// MethodDef is the definition of a method.
type MethodDef struct {
	Ref         *MethodRef
	Flags       AccessFlags
	Annotations []*Type
	// Origin is the holder before vertical class merging; nil if unchanged.
	Origin *Type
	// Code summarizes the instructions relevant to liveness; nil for abstract
	// and native methods.
	Code *Code
}

func (m *MethodDef) Reference() Reference { return m.Ref }
func (m *MethodDef) String() string       { return m.Ref.String() }
func (m *MethodDef) isDefinition()        {}

func (m *MethodDef) Holder() *Type     { return m.Ref.Holder }
func (m *MethodDef) IsStatic() bool    { return m.Flags.IsStatic() }
func (m *MethodDef) IsPrivate() bool   { return m.Flags.IsPrivate() }
func (m *MethodDef) IsAbstract() bool  { return m.Flags.IsAbstract() }
func (m *MethodDef) IsSynthetic() bool { return m.Flags.IsSynthetic() }

func (m *MethodDef) IsInstanceInitializer() bool {
	return m.Ref.Name == InstanceInitializerName
}

func (m *MethodDef) IsClassInitializer() bool {
	return m.Ref.Name == ClassInitializerName
}

// IsConstructor covers both instance and class initializers.
func (m *MethodDef) IsConstructor() bool {
	return m.Flags.Has(AccConstructor) || m.IsInstanceInitializer() || m.IsClassInitializer()
}

// IsDirect reports whether the method is not subject to virtual dispatch.
func (m *MethodDef) IsDirect() bool {
	return m.IsStatic() || m.IsPrivate() || m.IsConstructor()
}

// OriginalHolder returns the pre-merge holder of the method.
func (m *MethodDef) OriginalHolder() *Type {
	if m.Origin != nil {
		return m.Origin
	}
	return m.Ref.Holder
}

// IsStaticMember reports whether def is a static field or static method.
func IsStaticMember(def Definition) bool {
	switch d := def.(type) {
	case *FieldDef:
		return d.IsStatic()
	case *MethodDef:
		return d.IsStatic()
	}
	return false
}

// InvokeKind is the dispatch kind of an invoke instruction.
type InvokeKind uint8

const (
	InvokeStatic InvokeKind = iota
	InvokeVirtual
	InvokeInterface
	InvokeSuper
	InvokeDirect
)

var invokeKindNames = map[string]InvokeKind{
	"static":    InvokeStatic,
	"virtual":   InvokeVirtual,
	"interface": InvokeInterface,
	"super":     InvokeSuper,
	"direct":    InvokeDirect,
}

// ParseInvokeKind maps a keyword such as "virtual" to its InvokeKind.
func ParseInvokeKind(name string) (InvokeKind, bool) {
	k, ok := invokeKindNames[name]
	return k, ok
}

// Invoke is one call instruction of a Code summary.
type Invoke struct {
	Kind   InvokeKind
	Method *MethodRef
}

// Code is the liveness-relevant summary of a method body.
type Code struct {
	NewInstances []*Type
	Invokes      []Invoke
	FieldReads   []*FieldRef
	FieldWrites  []*FieldRef
}
