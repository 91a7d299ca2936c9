package hierarchy

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/shrinkroot/pkg/program"
)

type appBuilder struct {
	f       *program.Factory
	classes []*program.ClassDef
}

func newAppBuilder() *appBuilder {
	b := &appBuilder{f: program.NewFactory()}
	object := &program.ClassDef{Type: b.f.ObjectType, Flags: program.AccPublic}
	b.classes = append(b.classes, object)
	b.method(object, "hashCode", program.AccPublic)
	b.method(object, "registerNatives", program.AccPrivate|program.AccStatic)
	return b
}

func (b *appBuilder) class(name string, flags program.AccessFlags, super string, interfaces ...string) *program.ClassDef {
	c := &program.ClassDef{
		Type:       b.f.Type(name),
		Super:      b.f.Type(super),
		Interfaces: b.f.Types(interfaces),
		Flags:      flags | program.AccPublic,
	}
	b.classes = append(b.classes, c)
	return c
}

func (b *appBuilder) iface(name string, supers ...string) *program.ClassDef {
	return b.class(name, program.AccInterface|program.AccAbstract, program.ObjectName, supers...)
}

func (b *appBuilder) method(c *program.ClassDef, name string, flags program.AccessFlags) *program.MethodDef {
	m := &program.MethodDef{Ref: b.ref(c.Type.String(), name), Flags: flags}
	c.Methods = append(c.Methods, m)
	return m
}

func (b *appBuilder) ref(holder, name string) *program.MethodRef {
	ret := b.f.VoidType
	if name == "hashCode" {
		ret = b.f.Type("int")
	}
	return b.f.Method(b.f.Type(holder), name, b.f.Proto(ret))
}

func (b *appBuilder) build() *Hierarchy {
	return New(program.NewApp(b.f, b.classes, nil))
}

func names[T interface{ String() string }](items []T) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.String()
	}
	slices.Sort(out)
	return out
}

func TestTraverseSuperTypesVisitsDiamondOnce(t *testing.T) {
	b := newAppBuilder()
	b.iface("K")
	b.iface("I", "K")
	b.iface("J", "K")
	b.class("B", 0, program.ObjectName, "J")
	a := b.class("A", 0, "B", "I", "J")
	h := b.build()

	visits := map[string]int{}
	h.ForEachSuperType(a, func(ty *program.Type, isInterface bool) {
		visits[ty.String()]++
		require.Equal(t, ty.String() != "B" && ty.String() != program.ObjectName, isInterface, ty.String())
	})
	require.Equal(t, map[string]int{"B": 1, program.ObjectName: 1, "I": 1, "J": 1, "K": 1}, visits)
}

func TestTraverseSuperTypesBreak(t *testing.T) {
	b := newAppBuilder()
	b.iface("I")
	b.class("B", 0, program.ObjectName, "I")
	a := b.class("A", 0, "B")
	h := b.build()

	var seen []string
	res := h.TraverseSuperTypes(a, func(t *program.Type, _ bool) Traversal {
		seen = append(seen, t.String())
		if t.String() == "B" {
			return Break
		}
		return Continue
	})
	require.Equal(t, Break, res)
	require.Equal(t, []string{"B"}, seen)

	res = h.TraverseSuperTypes(a, func(*program.Type, bool) Traversal { return Continue })
	require.Equal(t, Continue, res)
}

func TestTraverseSuperTypesBrokenHierarchy(t *testing.T) {
	b := newAppBuilder()
	a := b.class("A", 0, "Missing", "MissingI")
	h := b.build()

	var seen []string
	h.ForEachSuperType(a, func(t *program.Type, _ bool) { seen = append(seen, t.String()) })
	require.ElementsMatch(t, []string{"Missing", "MissingI"}, seen)
}

func TestSubtypeQueries(t *testing.T) {
	b := newAppBuilder()
	b.iface("I")
	b.iface("J", "I")
	b.class("A", 0, program.ObjectName, "J")
	b.class("B", 0, "A")
	h := b.build()
	f := h.App().Factory
	object := f.ObjectType

	tests := []struct {
		sub, sup string
		strict   bool
		subtype  bool
	}{
		{sub: "B", sup: "A", strict: true, subtype: true},
		{sub: "B", sup: "I", strict: true, subtype: true},
		{sub: "A", sup: "A", strict: false, subtype: true},
		{sub: "A", sup: "B", strict: false, subtype: false},
		{sub: "A", sup: object.String(), strict: true, subtype: true},
		{sub: object.String(), sup: "A", strict: false, subtype: false},
		{sub: object.String(), sup: object.String(), strict: false, subtype: true},
		{sub: "Unknown", sup: object.String(), strict: true, subtype: true},
		{sub: "Unknown", sup: "A", strict: false, subtype: false},
		{sub: "int", sup: "A", strict: false, subtype: false},
	}
	for _, tt := range tests {
		t.Run(tt.sub+"<:"+tt.sup, func(t *testing.T) {
			require.Equal(t, tt.strict, h.IsStrictSubtype(f.Type(tt.sub), f.Type(tt.sup)))
			require.Equal(t, tt.subtype, h.IsSubtype(f.Type(tt.sub), f.Type(tt.sup)))
		})
	}

	require.True(t, h.IsRelatedBySubtyping(f.Type("I"), f.Type("B")))
	require.False(t, h.IsRelatedBySubtyping(f.Type("Unknown"), f.Type("B")))
	require.ElementsMatch(t, []string{"J", "A", "B"}, names(h.Subtypes(f.Type("I"))))
	require.ElementsMatch(t, []string{"J"}, names(h.DirectSubtypes(f.Type("I"))))
	require.Empty(t, h.Subtypes(f.Type("B")))
	require.Empty(t, h.Subtypes(f.Type("Unknown")))

	ifaces := h.ImplementedInterfaces(f.Type("B"))
	require.Len(t, ifaces, 2)
	require.True(t, ifaces.Has(f.Type("I")))
	require.True(t, ifaces.Has(f.Type("J")))
	require.True(t, h.ImplementedInterfaces(f.Type("I")).Has(f.Type("I")))
	require.Empty(t, h.ImplementedInterfaces(object))
}

func TestSerializable(t *testing.T) {
	b := newAppBuilder()
	b.iface(program.SerializableName)
	b.iface(program.ExternalizableName, program.SerializableName)
	b.class("A", 0, program.ObjectName, program.ExternalizableName)
	b.class("B", 0, program.ObjectName)
	h := b.build()
	f := h.App().Factory

	require.True(t, h.IsSerializable(f.Type("A")))
	require.True(t, h.IsExternalizable(f.Type("A")))
	require.False(t, h.IsSerializable(f.Type("B")))
}

func TestInterfaceTargets(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(b *appBuilder)
		holder string
		want   []string
	}{
		{
			name: "default without top",
			setup: func(b *appBuilder) {
				b.method(b.iface("I"), "foo", program.AccPublic|program.AccAbstract)
				b.method(b.iface("J", "I"), "foo", program.AccPublic)
				b.class("A", 0, program.ObjectName, "J")
			},
			holder: "I",
			want:   []string{"void J.foo()"},
		},
		{
			name: "overriding default shadows the default it overrides",
			setup: func(b *appBuilder) {
				b.method(b.iface("I"), "foo", program.AccPublic)
				b.method(b.iface("J", "I"), "foo", program.AccPublic)
				b.class("A", 0, program.ObjectName, "J")
			},
			holder: "I",
			want:   []string{"void J.foo()"},
		},
		{
			name: "subtypes override an abstract method",
			setup: func(b *appBuilder) {
				b.method(b.iface("I"), "foo", program.AccPublic|program.AccAbstract)
				b.class("A", program.AccAbstract, program.ObjectName, "I")
				b.method(b.class("B", 0, "A"), "foo", program.AccPublic)
				b.method(b.class("C", 0, "A"), "foo", program.AccPublic)
			},
			holder: "I",
			want:   []string{"void B.foo()", "void C.foo()"},
		},
		{
			name: "target in default method",
			setup: func(b *appBuilder) {
				b.method(b.iface("I"), "foo", program.AccPublic)
				b.class("A", program.AccAbstract, program.ObjectName, "I")
				b.method(b.class("B", 0, "A"), "foo", program.AccPublic)
				b.class("C", 0, "A")
			},
			holder: "I",
			want:   []string{"void B.foo()", "void I.foo()"},
		},
		{
			name: "ambiguous defaults contribute every candidate",
			setup: func(b *appBuilder) {
				b.method(b.iface("I"), "foo", program.AccPublic)
				b.method(b.iface("J"), "foo", program.AccPublic)
				b.iface("K", "I")
				b.class("A", 0, program.ObjectName, "K", "J")
			},
			holder: "I",
			want:   []string{"void I.foo()", "void J.foo()"},
		},
		{
			name: "no implementations",
			setup: func(b *appBuilder) {
				b.method(b.iface("I"), "foo", program.AccPublic|program.AccAbstract)
			},
			holder: "I",
			want:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newAppBuilder()
			tt.setup(b)
			h := b.build()

			ref := b.ref(tt.holder, "foo")
			res := h.ResolveMethod(ref.Holder, ref, true)
			require.IsType(t, &SingleResolution{}, res)
			require.Equal(t, tt.want, names(res.LookupInterfaceTargets(h)))
		})
	}
}

func TestInvokeVirtualToInterfaceDefinition(t *testing.T) {
	b := newAppBuilder()
	foo := b.method(b.iface("I"), "foo", program.AccPublic)
	b.class("A", 0, program.ObjectName, "I")
	h := b.build()

	ref := b.ref("A", "foo")
	res := h.ResolveMethod(ref.Holder, ref, false)
	single, ok := res.(*SingleResolution)
	require.True(t, ok)
	require.Same(t, foo, single.Method)
	require.Equal(t, "I", single.ResolvedHolder.String())
	require.Equal(t, "A", single.InitialHolder.String())
	require.Equal(t, []string{"void I.foo()"}, names(res.LookupVirtualDispatchTargets(h)))
}

func TestVirtualDispatchTargets(t *testing.T) {
	b := newAppBuilder()
	a := b.class("A", 0, program.ObjectName)
	b.method(a, "foo", program.AccPublic)
	secret := b.method(a, "secret", program.AccPrivate)
	b.method(a, "util", program.AccPublic|program.AccStatic)
	b.method(b.class("B", 0, "A"), "foo", program.AccPublic)
	b.class("C", 0, "B")
	b.method(b.class("D", program.AccAbstract, "A"), "foo", program.AccPublic|program.AccAbstract)
	b.method(b.class("E", 0, "D"), "foo", program.AccPublic)
	h := b.build()

	res := h.ResolveMethodOn(b.ref("A", "foo"))
	require.Equal(t, []string{"void A.foo()", "void B.foo()", "void E.foo()"}, names(res.LookupVirtualDispatchTargets(h)))

	res = h.ResolveMethodOn(b.ref("B", "foo"))
	require.Equal(t, []string{"void B.foo()"}, names(res.LookupVirtualDispatchTargets(h)))

	res = h.ResolveMethodOn(b.ref("A", "secret"))
	require.Equal(t, []*program.MethodDef{secret}, res.LookupVirtualDispatchTargets(h))

	res = h.ResolveMethodOn(b.ref("A", "util"))
	require.Empty(t, res.LookupVirtualDispatchTargets(h))
}

func TestResolveMethodFailures(t *testing.T) {
	b := newAppBuilder()
	b.method(b.iface("I"), "foo", program.AccPublic)
	b.method(b.iface("J"), "foo", program.AccPublic)
	b.class("A", 0, program.ObjectName, "I", "J")
	b.class("C", 0, program.ObjectName)
	h := b.build()

	t.Run("ambiguous", func(t *testing.T) {
		ref := b.ref("A", "foo")
		res := h.ResolveMethod(ref.Holder, ref, false)
		amb, ok := res.(*AmbiguousResolution)
		require.True(t, ok)
		require.Equal(t, []string{"void I.foo()", "void J.foo()"}, names(amb.Methods))
		require.Nil(t, res.SingleTarget())
		require.Empty(t, res.LookupVirtualDispatchTargets(h))
	})
	t.Run("interface invoke on class", func(t *testing.T) {
		ref := b.ref("C", "foo")
		require.IsType(t, &IncompatibleClassResolution{}, h.ResolveMethod(ref.Holder, ref, true))
	})
	t.Run("class invoke on interface", func(t *testing.T) {
		ref := b.ref("I", "foo")
		require.IsType(t, &IncompatibleClassResolution{}, h.ResolveMethod(ref.Holder, ref, false))
	})
	t.Run("missing class", func(t *testing.T) {
		ref := b.ref("Missing", "foo")
		res := h.ResolveMethodOn(ref)
		require.Equal(t, &NoResolution{Reason: ClassNotFound}, res)
		require.Nil(t, res.LookupInvokeStaticTarget(h.ContextFor(ref.Holder), h))
	})
	t.Run("missing method", func(t *testing.T) {
		res := h.ResolveMethodOn(b.ref("C", "foo"))
		require.Equal(t, &NoResolution{Reason: NoSuchMethod}, res)
	})
}

func TestResolveObjectMembers(t *testing.T) {
	b := newAppBuilder()
	b.iface("I")
	h := b.build()

	ref := b.ref("I", "hashCode")
	res := h.ResolveMethod(ref.Holder, ref, true)
	single, ok := res.(*SingleResolution)
	require.True(t, ok)
	require.Equal(t, program.ObjectName, single.ResolvedHolder.String())
	require.Equal(t, "I", single.InitialHolder.String())

	arrayRef := b.f.Method(b.f.Type("int[]"), "hashCode", b.f.Proto(b.f.Type("int")))
	res = h.ResolveMethod(arrayRef.Holder, arrayRef, false)
	require.Equal(t, "int java.lang.Object.hashCode()", res.SingleTarget().String())

	// Private statics on Object are not interface members.
	ref = b.ref("I", "registerNatives")
	require.IsType(t, &NoResolution{}, h.ResolveMethod(ref.Holder, ref, true))
}

func TestResolveMaximallySpecificMethods(t *testing.T) {
	b := newAppBuilder()
	i := b.iface("I")
	abstract := b.method(i, "foo", program.AccPublic|program.AccAbstract)
	j := b.iface("J", "I")
	def := b.method(j, "foo", program.AccPublic)
	a := b.class("A", 0, program.ObjectName, "J")
	h := b.build()

	require.Same(t, abstract, h.ResolveMaximallySpecificMethods(i, b.ref("I", "foo")).SingleTarget())
	require.Same(t, def, h.ResolveMaximallySpecificMethods(a, b.ref("A", "foo")).SingleTarget())
}

func TestLookupInvokeSuperTarget(t *testing.T) {
	b := newAppBuilder()
	a := b.class("A", 0, program.ObjectName)
	aFoo := b.method(a, "foo", program.AccPublic)
	b.method(a, "<init>", program.AccPublic|program.AccConstructor)
	bb := b.class("B", 0, "A")
	bFoo := b.method(bb, "foo", program.AccPublic)
	c := b.class("C", 0, "B")
	d := b.class("D", program.AccAbstract, program.ObjectName)
	b.method(d, "bar", program.AccPublic|program.AccAbstract)
	e := b.class("E", 0, "D")
	i := b.iface("I")
	iFoo := b.method(i, "baz", program.AccPublic)
	k := b.class("K", 0, program.ObjectName, "I")
	h := b.build()

	tests := []struct {
		name    string
		ref     *program.MethodRef
		context *program.ClassDef
		want    *program.MethodDef
	}{
		{name: "direct super", ref: b.ref("B", "foo"), context: c, want: bFoo},
		{name: "selection starts at the context super class", ref: b.ref("A", "foo"), context: c, want: bFoo},
		{name: "holder is the context super", ref: b.ref("A", "foo"), context: bb, want: aFoo},
		{name: "abstract target", ref: b.ref("D", "bar"), context: e, want: nil},
		{name: "default method", ref: b.ref("I", "baz"), context: k, want: iFoo},
		{name: "initializer", ref: b.ref("A", "<init>"), context: bb, want: a.LookupMethod(b.ref("A", "<init>").Signature())},
		{name: "unresolvable", ref: b.ref("A", "missing"), context: bb, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Same(t, tt.want, h.LookupSuperMethod(tt.ref, tt.context))
		})
	}
}

func TestLookupStaticAndDirectTargets(t *testing.T) {
	b := newAppBuilder()
	a := b.class("com.a.A", 0, program.ObjectName)
	util := b.method(a, "util", program.AccPublic|program.AccStatic)
	hidden := b.method(a, "hidden", program.AccStatic)
	secret := b.method(a, "secret", program.AccPrivate)
	run := b.method(a, "run", program.AccPublic)
	local := b.class("com.a.Local", 0, program.ObjectName)
	h := b.build()
	remote := h.ContextFor(b.f.Type("com.b.Remote"))

	require.Same(t, util, h.LookupStaticMethod(util.Ref, remote))
	require.Nil(t, h.LookupStaticMethod(run.Ref, remote), "instance method")
	require.Nil(t, h.LookupStaticMethod(hidden.Ref, remote), "package-private from another package")
	require.Same(t, hidden, h.LookupStaticMethod(hidden.Ref, local))

	require.Same(t, secret, h.LookupDirectMethod(secret.Ref, a))
	require.Nil(t, h.LookupDirectMethod(secret.Ref, local), "private from another class")
	require.Nil(t, h.LookupDirectMethod(run.Ref, a), "virtual method")
}

func TestIsAccessible(t *testing.T) {
	b := newAppBuilder()
	a := b.class("com.a.A", 0, program.ObjectName)
	hiddenClass := &program.ClassDef{Type: b.f.Type("com.a.Hidden"), Super: b.f.ObjectType}
	b.classes = append(b.classes, hiddenClass)
	sub := b.class("com.b.Sub", 0, "com.a.A")
	other := b.class("com.b.Other", 0, program.ObjectName)
	h := b.build()

	tests := []struct {
		name    string
		holder  *program.ClassDef
		flags   program.AccessFlags
		context *program.ClassDef
		want    bool
	}{
		{name: "public", holder: a, flags: program.AccPublic, context: other, want: true},
		{name: "private same class", holder: a, flags: program.AccPrivate, context: a, want: true},
		{name: "private other class", holder: a, flags: program.AccPrivate, context: other, want: false},
		{name: "protected subclass", holder: a, flags: program.AccProtected, context: sub, want: true},
		{name: "protected unrelated", holder: a, flags: program.AccProtected, context: other, want: false},
		{name: "package-private same package", holder: a, flags: 0, context: h.ContextFor(b.f.Type("com.a.X")), want: true},
		{name: "package-private other package", holder: a, flags: 0, context: sub, want: false},
		{name: "public member of hidden class", holder: hiddenClass, flags: program.AccPublic, context: other, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, h.IsAccessible(tt.holder, tt.flags, tt.context))
		})
	}
}

func TestResolveField(t *testing.T) {
	b := newAppBuilder()
	i := b.iface("I")
	constant := &program.FieldDef{Ref: b.f.Field(i.Type, "MAX", b.f.Type("int")), Flags: program.AccPublic | program.AccStatic | program.AccFinal}
	i.Fields = append(i.Fields, constant)
	a := b.class("A", 0, program.ObjectName, "I")
	count := &program.FieldDef{Ref: b.f.Field(a.Type, "count", b.f.Type("int")), Flags: program.AccProtected}
	a.Fields = append(a.Fields, count)
	b.class("B", 0, "A")
	h := b.build()

	viaB := b.f.Field(b.f.Type("B"), "count", b.f.Type("int"))
	require.Same(t, count, h.ResolveField(viaB.Holder, viaB))
	require.Same(t, count, h.LookupInstanceTarget(viaB))
	require.Nil(t, h.LookupStaticTarget(viaB))

	maxViaB := b.f.Field(b.f.Type("B"), "MAX", b.f.Type("int"))
	require.Same(t, constant, h.LookupStaticTarget(maxViaB))
	require.Nil(t, h.LookupInstanceTarget(maxViaB))

	wrongType := b.f.Field(b.f.Type("B"), "count", b.f.Type("long"))
	require.Nil(t, h.ResolveField(wrongType.Holder, wrongType))
	missing := b.f.Field(b.f.Type("Missing"), "count", b.f.Type("int"))
	require.Nil(t, h.ResolveField(missing.Holder, missing))
}
