package program

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// Well-known type names.
const (
	ObjectName         = "java.lang.Object"
	EnumName           = "java.lang.Enum"
	SerializableName   = "java.io.Serializable"
	ExternalizableName = "java.io.Externalizable"

	InstanceInitializerName = "<init>"
	ClassInitializerName    = "<clinit>"
)

type methodKey struct {
	holder *Type
	name   string
	proto  *Proto
}

type fieldKey struct {
	holder *Type
	name   string
	typ    *Type
}

// Factory interns types, prototypes and member references. It is safe for
// concurrent use so that front ends can load classes in parallel.
type Factory struct {
	types   *xsync.Map[string, *Type]
	protos  *xsync.Map[string, *Proto]
	methods *xsync.Map[methodKey, *MethodRef]
	fields  *xsync.Map[fieldKey, *FieldRef]
	nextID  atomic.Int64

	ObjectType *Type
	VoidType   *Type
}

// NewFactory creates an empty interning table.
func NewFactory() *Factory {
	f := &Factory{
		types:   xsync.NewMap[string, *Type](),
		protos:  xsync.NewMap[string, *Proto](),
		methods: xsync.NewMap[methodKey, *MethodRef](),
		fields:  xsync.NewMap[fieldKey, *FieldRef](),
	}
	f.ObjectType = f.Type(ObjectName)
	f.VoidType = f.Type("void")
	return f
}

// Type returns the interned type for a source-form name such as
// "com.example.Foo", "int" or "java.lang.String[][]".
func (f *Factory) Type(name string) *Type {
	name = strings.TrimSpace(name)
	desc := descriptorFor(name)
	if t, ok := f.types.Load(desc); ok {
		return t
	}

	t := &Type{
		id:         int(f.nextID.Add(1)),
		descriptor: desc,
		name:       name,
	}
	switch {
	case strings.HasSuffix(name, "[]"):
		t.kind = KindArray
		base := name
		for strings.HasSuffix(base, "[]") {
			base = strings.TrimSuffix(base, "[]")
			t.dims++
		}
		t.base = f.Type(base)
	case name == "void":
		t.kind = KindVoid
	case IsPrimitiveName(name):
		t.kind = KindPrimitive
	default:
		t.kind = KindClass
	}

	// Losing the race burns an id; handles only need to be unique.
	actual, _ := f.types.LoadOrStore(desc, t)
	return actual
}

// Types returns the interned types for the given names.
func (f *Factory) Types(names []string) []*Type {
	if len(names) == 0 {
		return nil
	}
	out := make([]*Type, len(names))
	for i, n := range names {
		out[i] = f.Type(n)
	}
	return out
}

// Proto returns the interned method prototype.
func (f *Factory) Proto(returnType *Type, params ...*Type) *Proto {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range params {
		b.WriteString(p.descriptor)
	}
	b.WriteByte(')')
	b.WriteString(returnType.descriptor)
	desc := b.String()
	if p, ok := f.protos.Load(desc); ok {
		return p
	}
	p := &Proto{Return: returnType, Params: params, descriptor: desc}
	actual, _ := f.protos.LoadOrStore(desc, p)
	return actual
}

// Method returns the interned method reference.
func (f *Factory) Method(holder *Type, name string, proto *Proto) *MethodRef {
	key := methodKey{holder: holder, name: name, proto: proto}
	if m, ok := f.methods.Load(key); ok {
		return m
	}
	actual, _ := f.methods.LoadOrStore(key, &MethodRef{Holder: holder, Name: name, Proto: proto})
	return actual
}

// Field returns the interned field reference.
func (f *Factory) Field(holder *Type, name string, typ *Type) *FieldRef {
	key := fieldKey{holder: holder, name: name, typ: typ}
	if r, ok := f.fields.Load(key); ok {
		return r
	}
	actual, _ := f.fields.LoadOrStore(key, &FieldRef{Holder: holder, Name: name, Type: typ})
	return actual
}

// ParseMethod parses a method reference in the form MethodRef.String
// prints, "returnType holder.name(params)". A missing return type means void.
func (f *Factory) ParseMethod(s string) (*MethodRef, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("malformed method reference %q", s)
	}
	head, list := strings.TrimSpace(s[:open]), s[open+1:len(s)-1]

	returns := f.VoidType
	if i := strings.LastIndexByte(head, ' '); i >= 0 {
		returns = f.Type(strings.TrimSpace(head[:i]))
		head = head[i+1:]
	}
	dot := strings.LastIndexByte(head, '.')
	if dot <= 0 || dot == len(head)-1 {
		return nil, fmt.Errorf("malformed method reference %q: missing holder", s)
	}
	holder := f.Type(head[:dot])
	if !holder.IsClass() && !holder.IsArray() {
		return nil, fmt.Errorf("malformed method reference %q: holder %s is not a reference type", s, holder)
	}

	var params []*Type
	if strings.TrimSpace(list) != "" {
		for _, p := range strings.Split(list, ",") {
			params = append(params, f.Type(strings.TrimSpace(p)))
		}
	}
	return f.Method(holder, head[dot+1:], f.Proto(returns, params...)), nil
}

// NumTypes returns how many types have been interned so far.
func (f *Factory) NumTypes() int {
	return f.types.Size()
}
