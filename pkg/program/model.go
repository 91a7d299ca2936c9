package program

import (
	"fmt"
	"strings"
)

// Model is the serializable form of a program: its classes in declaration
// order and the vertical-class-merging oracle. Models are decoded from YAML,
// produced by source front ends and stored in program caches.
type Model struct {
	Classes []ClassModel `yaml:"classes" msgpack:"classes"`
	// Merged maps a merge target to the types merged into it.
	Merged map[string][]string `yaml:"merged,omitempty" msgpack:"merged,omitempty"`
}

// ClassModel describes one class. Kind is "program", "classpath" or
// "library" and defaults to program; Super defaults to java.lang.Object.
type ClassModel struct {
	Name        string        `yaml:"name" msgpack:"name"`
	Kind        string        `yaml:"kind,omitempty" msgpack:"kind,omitempty"`
	Super       string        `yaml:"super,omitempty" msgpack:"super,omitempty"`
	Interfaces  []string      `yaml:"interfaces,omitempty" msgpack:"interfaces,omitempty"`
	Flags       []string      `yaml:"flags,omitempty" msgpack:"flags,omitempty"`
	Annotations []string      `yaml:"annotations,omitempty" msgpack:"annotations,omitempty"`
	Fields      []FieldModel  `yaml:"fields,omitempty" msgpack:"fields,omitempty"`
	Methods     []MethodModel `yaml:"methods,omitempty" msgpack:"methods,omitempty"`
}

type FieldModel struct {
	Name        string   `yaml:"name" msgpack:"name"`
	Type        string   `yaml:"type" msgpack:"type"`
	Flags       []string `yaml:"flags,omitempty" msgpack:"flags,omitempty"`
	Annotations []string `yaml:"annotations,omitempty" msgpack:"annotations,omitempty"`
	Origin      string   `yaml:"origin,omitempty" msgpack:"origin,omitempty"`
}

// MethodModel describes one method. Returns defaults to void. Methods named
// <init> are flagged as constructors.
type MethodModel struct {
	Name        string     `yaml:"name" msgpack:"name"`
	Params      []string   `yaml:"params,omitempty" msgpack:"params,omitempty"`
	Returns     string     `yaml:"returns,omitempty" msgpack:"returns,omitempty"`
	Flags       []string   `yaml:"flags,omitempty" msgpack:"flags,omitempty"`
	Annotations []string   `yaml:"annotations,omitempty" msgpack:"annotations,omitempty"`
	Origin      string     `yaml:"origin,omitempty" msgpack:"origin,omitempty"`
	Code        *CodeModel `yaml:"code,omitempty" msgpack:"code,omitempty"`
}

// CodeModel is the serializable form of Code.
type CodeModel struct {
	New    []string        `yaml:"new,omitempty" msgpack:"new,omitempty"`
	Invoke []InvokeModel   `yaml:"invoke,omitempty" msgpack:"invoke,omitempty"`
	Read   []FieldRefModel `yaml:"read,omitempty" msgpack:"read,omitempty"`
	Write  []FieldRefModel `yaml:"write,omitempty" msgpack:"write,omitempty"`
}

type InvokeModel struct {
	Kind    string   `yaml:"kind" msgpack:"kind"`
	Holder  string   `yaml:"holder" msgpack:"holder"`
	Name    string   `yaml:"name" msgpack:"name"`
	Params  []string `yaml:"params,omitempty" msgpack:"params,omitempty"`
	Returns string   `yaml:"returns,omitempty" msgpack:"returns,omitempty"`
}

type FieldRefModel struct {
	Holder string `yaml:"holder" msgpack:"holder"`
	Name   string `yaml:"name" msgpack:"name"`
	Type   string `yaml:"type" msgpack:"type"`
}

// Append adds the classes and merge entries of other to m.
func (m *Model) Append(other *Model) {
	m.Classes = append(m.Classes, other.Classes...)
	for target, sources := range other.Merged {
		if m.Merged == nil {
			m.Merged = make(map[string][]string)
		}
		m.Merged[target] = append(m.Merged[target], sources...)
	}
}

// Has reports whether m declares a class named name.
func (m *Model) Has(name string) bool {
	for i := range m.Classes {
		if m.Classes[i].Name == name {
			return true
		}
	}
	return false
}

// MergedClasses interns the merge oracle of m.
func (m *Model) MergedClasses(f *Factory) MergedClasses {
	if len(m.Merged) == 0 {
		return nil
	}
	out := make(MergedClasses, len(m.Merged))
	for target, sources := range m.Merged {
		out[f.Type(target)] = f.Types(sources)
	}
	return out
}

var provenances = map[string]Provenance{
	"":          ProvenanceProgram,
	"program":   ProvenanceProgram,
	"classpath": ProvenanceClasspath,
	"library":   ProvenanceLibrary,
}

// Build interns c into a ClassDef. It is safe to call concurrently with a
// shared Factory.
func (c *ClassModel) Build(f *Factory) (*ClassDef, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("class without name")
	}
	t := f.Type(c.Name)
	if !t.IsClass() {
		return nil, fmt.Errorf("class %s: not a class type", c.Name)
	}
	prov, ok := provenances[strings.ToLower(c.Kind)]
	if !ok {
		return nil, fmt.Errorf("class %s: unknown kind %q", c.Name, c.Kind)
	}
	flags, err := parseFlags(c.Flags)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", c.Name, err)
	}
	def := &ClassDef{
		Type:        t,
		Super:       f.ObjectType,
		Interfaces:  f.Types(c.Interfaces),
		Flags:       flags,
		Annotations: f.Types(c.Annotations),
		Provenance:  prov,
	}
	switch {
	case c.Super != "":
		def.Super = f.Type(c.Super)
	case t == f.ObjectType:
		def.Super = nil
	}

	for i := range c.Fields {
		fd, err := c.Fields[i].build(f, t)
		if err != nil {
			return nil, fmt.Errorf("class %s: field %s: %w", c.Name, c.Fields[i].Name, err)
		}
		def.Fields = append(def.Fields, fd)
	}
	for i := range c.Methods {
		md, err := c.Methods[i].build(f, t)
		if err != nil {
			return nil, fmt.Errorf("class %s: method %s: %w", c.Name, c.Methods[i].Name, err)
		}
		def.Methods = append(def.Methods, md)
	}
	return def, nil
}

func (m *FieldModel) build(f *Factory, holder *Type) (*FieldDef, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("missing type")
	}
	flags, err := parseFlags(m.Flags)
	if err != nil {
		return nil, err
	}
	return &FieldDef{
		Ref:         f.Field(holder, m.Name, f.Type(m.Type)),
		Flags:       flags,
		Annotations: f.Types(m.Annotations),
		Origin:      optionalType(f, m.Origin),
	}, nil
}

func (m *MethodModel) build(f *Factory, holder *Type) (*MethodDef, error) {
	flags, err := parseFlags(m.Flags)
	if err != nil {
		return nil, err
	}
	if m.Name == InstanceInitializerName {
		flags |= AccConstructor
	}
	def := &MethodDef{
		Ref:         f.Method(holder, m.Name, f.Proto(returnType(f, m.Returns), f.Types(m.Params)...)),
		Flags:       flags,
		Annotations: f.Types(m.Annotations),
		Origin:      optionalType(f, m.Origin),
	}
	if m.Code != nil {
		if def.Code, err = m.Code.build(f); err != nil {
			return nil, err
		}
	}
	return def, nil
}

func (m *CodeModel) build(f *Factory) (*Code, error) {
	code := &Code{NewInstances: f.Types(m.New)}
	for _, inv := range m.Invoke {
		kind, ok := ParseInvokeKind(inv.Kind)
		if !ok {
			return nil, fmt.Errorf("unknown invoke kind %q", inv.Kind)
		}
		ref := f.Method(f.Type(inv.Holder), inv.Name, f.Proto(returnType(f, inv.Returns), f.Types(inv.Params)...))
		code.Invokes = append(code.Invokes, Invoke{Kind: kind, Method: ref})
	}
	for _, r := range m.Read {
		code.FieldReads = append(code.FieldReads, f.Field(f.Type(r.Holder), r.Name, f.Type(r.Type)))
	}
	for _, w := range m.Write {
		code.FieldWrites = append(code.FieldWrites, f.Field(f.Type(w.Holder), w.Name, f.Type(w.Type)))
	}
	return code, nil
}

func parseFlags(names []string) (AccessFlags, error) {
	var flags AccessFlags
	for _, name := range names {
		flag, ok := ParseAccessFlag(name)
		if !ok {
			return 0, fmt.Errorf("unknown access flag %q", name)
		}
		flags |= flag
	}
	return flags, nil
}

func returnType(f *Factory, name string) *Type {
	if name == "" {
		return f.VoidType
	}
	return f.Type(name)
}

func optionalType(f *Factory, name string) *Type {
	if name == "" {
		return nil
	}
	return f.Type(name)
}
