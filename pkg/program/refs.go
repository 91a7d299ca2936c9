package program

import (
	"strings"
)

// Reference is a symbolic reference to a type, field or method. Implemented
// by *Type, *FieldRef and *MethodRef.
type Reference interface {
	String() string
	isReference()
}

// Proto is an interned method prototype.
type Proto struct {
	Return     *Type
	Params     []*Type
	descriptor string
}

// Descriptor returns the JVM method descriptor, e.g. "(ILjava/lang/String;)V".
func (p *Proto) Descriptor() string { return p.descriptor }

// ParamList renders the parameters in source form separated by commas.
func (p *Proto) ParamList() string {
	var b strings.Builder
	for i, t := range p.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.name)
	}
	return b.String()
}

// MethodRef is an interned (holder, name, proto) method reference. The holder
// need not declare the method; resolution recovers the definition.
type MethodRef struct {
	Holder *Type
	Name   string
	Proto  *Proto
}

// String renders the reference as "returnType holder.name(params)".
func (m *MethodRef) String() string {
	return m.Proto.Return.name + " " + m.Holder.name + "." + m.Name + "(" + m.Proto.ParamList() + ")"
}

// Signature identifies a method independently of its holder.
type Signature struct {
	Name  string
	Proto *Proto
}

func (m *MethodRef) Signature() Signature { return Signature{Name: m.Name, Proto: m.Proto} }

func (m *MethodRef) isReference() {}

// FieldRef is an interned (holder, name, type) field reference.
type FieldRef struct {
	Holder *Type
	Name   string
	Type   *Type
}

// String renders the reference as "type holder.name".
func (f *FieldRef) String() string {
	return f.Type.name + " " + f.Holder.name + "." + f.Name
}

func (f *FieldRef) isReference() {}
