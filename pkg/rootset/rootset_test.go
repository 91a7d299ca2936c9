package rootset

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/shrinkroot/pkg/program"
	"github.com/715d/shrinkroot/pkg/rules"
)

type appBuilder struct {
	f       *program.Factory
	classes []*program.ClassDef
	merged  program.MergedClasses
}

func newAppBuilder() *appBuilder {
	b := &appBuilder{f: program.NewFactory()}
	obj := b.library("java.lang.Object", "", program.AccPublic)
	obj.Super = nil
	b.library("java.lang.String", "", program.AccPublic|program.AccFinal)
	return b
}

func (b *appBuilder) class(name, super string, flags program.AccessFlags, interfaces ...string) *program.ClassDef {
	c := &program.ClassDef{
		Type:       b.f.Type(name),
		Super:      b.f.ObjectType,
		Interfaces: b.f.Types(interfaces),
		Flags:      flags,
	}
	if super != "" {
		c.Super = b.f.Type(super)
	}
	b.classes = append(b.classes, c)
	return c
}

func (b *appBuilder) library(name, super string, flags program.AccessFlags) *program.ClassDef {
	c := b.class(name, super, flags)
	c.Provenance = program.ProvenanceLibrary
	return c
}

func (b *appBuilder) method(c *program.ClassDef, name string, flags program.AccessFlags, ret string, params ...string) *program.MethodDef {
	m := &program.MethodDef{
		Ref:   b.f.Method(c.Type, name, b.f.Proto(b.f.Type(ret), b.f.Types(params)...)),
		Flags: flags,
	}
	c.Methods = append(c.Methods, m)
	return m
}

func (b *appBuilder) field(c *program.ClassDef, name, typ string, flags program.AccessFlags) *program.FieldDef {
	f := &program.FieldDef{Ref: b.f.Field(c.Type, name, b.f.Type(typ)), Flags: flags}
	c.Fields = append(c.Fields, f)
	return f
}

func (b *appBuilder) build() *program.App {
	return program.NewApp(b.f, b.classes, b.merged)
}

func parseRules(t *testing.T, config string) []rules.Rule {
	t.Helper()
	rs, err := rules.Parse([]byte(config))
	require.NoError(t, err)
	return rs
}

func run(t *testing.T, app *program.App, config string) *RootSet {
	t.Helper()
	return NewBuilder(app, parseRules(t, config), BuilderOptions{Workers: 2}).Run()
}

func keys[V any](m map[Item]V) []string {
	var out []string
	for item := range m {
		out = append(out, item.String())
	}
	slices.Sort(out)
	return out
}

func members[T interface {
	comparable
	String() string
}](s program.Set[T]) []string {
	var out []string
	for v := range s {
		out = append(out, v.String())
	}
	slices.Sort(out)
	return out
}

// precondition fixture: one class with a static and an instance member of
// each kind.
func preconditionApp() (*program.App, *program.ClassDef) {
	b := newAppBuilder()
	c := b.class("com.example.C", "", program.AccPublic)
	b.field(c, "COUNT", "int", program.AccStatic)
	b.field(c, "name", "java.lang.String", program.AccPrivate)
	b.method(c, "<init>", program.AccPublic|program.AccConstructor, "void")
	b.method(c, "main", program.AccPublic|program.AccStatic, "void", "java.lang.String[]")
	b.method(c, "run", program.AccPublic, "void")
	return b.build(), c
}

func TestKeepPreconditions(t *testing.T) {
	for _, class := range []string{"com.example.C", "com.example.*"} {
		t.Run(class, func(t *testing.T) {
			app, c := preconditionApp()
			rs := run(t, app, `
rules:
  - kind: keep
    class: "`+class+`"
    members: [{kind: fields}, {kind: methods}]
`)
			require.Equal(t, []string{
				"com.example.C",
				"int com.example.C.COUNT",
				"void com.example.C.<init>()",
				"void com.example.C.main(java.lang.String[])",
			}, keys(rs.NoShrinking))
			require.Equal(t, []string{"com.example.C"}, keys(rs.DependentNoShrinking))
			require.Equal(t, []string{
				"java.lang.String com.example.C.name",
				"void com.example.C.run()",
			}, keys(rs.DependentItems(c)))
			require.Equal(t, members(rs.NoOptimization), members(rs.NoObfuscation))
			require.Len(t, rs.NoOptimization, 6)
		})
	}
}

func TestKeepClassMembersDependOnHolder(t *testing.T) {
	app, c := preconditionApp()
	rs := run(t, app, `
rules:
  - kind: keepclassmembers
    class: com.example.C
    members: [{kind: fields}]
`)
	require.Empty(t, rs.NoShrinking)
	require.Equal(t, []string{
		"int com.example.C.COUNT",
		"java.lang.String com.example.C.name",
	}, keys(rs.DependentItems(c)))
}

func TestKeepClassesWithMembers(t *testing.T) {
	b := newAppBuilder()
	a := b.class("com.example.A", "", program.AccPublic)
	b.method(a, "run", program.AccPublic, "void")
	b.class("com.example.B", "", program.AccPublic)
	app := b.build()

	rs := run(t, app, `
rules:
  - kind: keepclasseswithmembers
    class: com.example.*
    members: [{kind: method, name: run, returns: void, args: []}]
`)
	require.Equal(t, []string{"com.example.A"}, keys(rs.NoShrinking))
	require.Equal(t, []string{"void com.example.A.run()"}, keys(rs.DependentItems(a)))
}

func TestVisibleMethodsWalkSuperClasses(t *testing.T) {
	b := newAppBuilder()
	base := b.class("com.example.Base", "", program.AccPublic)
	b.method(base, "run", program.AccPublic, "void")
	b.method(base, "inherited", program.AccPublic, "void")
	b.method(base, "helper", program.AccPrivate, "void")
	b.method(base, "util", program.AccStatic, "void")
	sub := b.class("com.example.Sub", "com.example.Base", program.AccPublic)
	b.method(sub, "run", program.AccPublic, "void")
	b.method(sub, "own", program.AccPrivate, "void")

	lib := b.library("android.app.Activity", "", program.AccPublic)
	b.method(lib, "onCreate", program.AccPublic, "void")
	activity := b.class("com.example.MainActivity", "android.app.Activity", program.AccPublic)
	app := b.build()

	rs := run(t, app, `
rules:
  - kind: keep
    class: com.example.Sub
    members: [{kind: methods}]
  - kind: keep
    class: com.example.MainActivity
    members: [{kind: methods}]
  - kind: assumenosideeffects
    class: com.example.MainActivity
    members: [{kind: method, name: onCreate}]
`)
	require.Equal(t, []string{
		"void com.example.Base.inherited()",
		"void com.example.Sub.own()",
		"void com.example.Sub.run()",
	}, keys(rs.DependentItems(sub)))
	require.Equal(t, []string{"com.example.MainActivity", "com.example.Sub"}, keys(rs.NoShrinking))
	require.Empty(t, rs.DependentItems(activity))
	require.Equal(t, []string{"void android.app.Activity.onCreate()"}, keys(rs.NoSideEffects))
}

func TestLibraryClasses(t *testing.T) {
	b := newAppBuilder()
	str := b.classes[1]
	b.method(str, "length", program.AccPublic, "int")
	app := b.build()

	rs := run(t, app, `
rules:
  - kind: keep
    class: java.lang.String
  - kind: keep
    class: java.lang.*
  - kind: assumevalues
    class: java.lang.*
    members: [{kind: method, name: length, value: "0..100"}]
  - kind: checkdiscard
    class: java.lang.*
`)
	require.Empty(t, rs.NoShrinking)
	require.Empty(t, rs.CheckDiscarded, "scans only include library classes when the rule kind asks for it")
	require.Equal(t, []string{"int java.lang.String.length()"}, keys(rs.AssumedValues))
	for _, rule := range rs.AssumedValues {
		require.Equal(t, "0..100", rule.ReturnValue)
	}
}

func TestSyntheticMethodsAreNotKept(t *testing.T) {
	b := newAppBuilder()
	c := b.class("com.example.C", "", program.AccPublic)
	b.method(c, "access$000", program.AccStatic|program.AccSynthetic, "int")
	b.method(c, "get", program.AccStatic, "int")
	app := b.build()

	rs := run(t, app, `
rules:
  - kind: keep
    class: com.example.C
    members: [{kind: methods}]
`)
	require.Equal(t, []string{"com.example.C", "int com.example.C.get()"}, keys(rs.NoShrinking))
}

func TestKeepModifiers(t *testing.T) {
	b := newAppBuilder()
	c := b.class("com.example.C", "", program.AccPublic)
	b.field(c, "value", "int", program.AccStatic)
	convert := b.method(c, "convert", program.AccPublic|program.AccStatic,
		"com.example.D[]", "com.example.E", "int", "java.lang.String", "com.example.Missing")
	b.class("com.example.D", "", 0)
	b.class("com.example.E", "", 0)
	app := b.build()

	t.Run("allowshrinking", func(t *testing.T) {
		rs := run(t, app, `
rules:
  - kind: keep
    modifiers: [allowshrinking, allowobfuscation]
    class: com.example.C
    members: [{kind: fields}]
`)
		require.Empty(t, rs.NoShrinking)
		require.Empty(t, rs.DependentNoShrinking)
		require.Empty(t, rs.NoObfuscation)
		require.Equal(t, []string{"com.example.C", "int com.example.C.value"}, members(rs.NoOptimization))
	})

	t.Run("includedescriptorclasses", func(t *testing.T) {
		rs := run(t, app, `
rules:
  - kind: keep
    modifiers: [includedescriptorclasses]
    class: com.example.C
    members: [{kind: method, name: convert}]
`)
		require.Equal(t, []string{
			"com.example.C",
			"com.example.D[] com.example.C.convert(com.example.E,int,java.lang.String,com.example.Missing)",
		}, keys(rs.NoShrinking))
		require.Equal(t, []string{"com.example.D", "com.example.E"}, keys(rs.DependentItems(convert)))
		require.Equal(t, []string{
			"com.example.C",
			"com.example.D",
			"com.example.D[] com.example.C.convert(com.example.E,int,java.lang.String,com.example.Missing)",
			"com.example.E",
		}, members(rs.NoObfuscation))
	})
}

func TestRuleKinds(t *testing.T) {
	b := newAppBuilder()
	a := b.class("com.example.A", "", program.AccPublic)
	b.field(a, "f", "int", 0)
	b.method(a, "m", program.AccPublic, "void")
	b.method(a, "s", program.AccStatic, "int")
	app := b.build()

	rs := run(t, app, `
rules:
  - {kind: checkdiscard, class: com.example.A}
  - {kind: checkdiscard, class: com.example.A, members: [{kind: method, name: m}]}
  - {kind: whyareyoukeeping, class: com.example.A, members: [{kind: field, name: f}]}
  - {kind: keeppackagenames, class: com.example.A}
  - {kind: assumevalues, class: com.example.A, members: [{kind: method, name: s, value: "1"}]}
  - {kind: nevermerge, class: com.example.A}
  - {kind: neverclassinline, class: com.example.A, members: [{kind: method, name: missing}]}
  - {kind: alwaysinline, class: com.example.A, members: [{kind: method, name: m}]}
  - {kind: forceinline, class: com.example.A, members: [{kind: method, name: s}]}
  - {kind: neverinline, class: com.example.*, members: [{kind: methods}]}
  - {kind: keepconstantarguments, class: com.example.A, members: [{kind: method, name: m}]}
  - {kind: keepunusedarguments, class: com.example.A, members: [{kind: method, name: s}]}
  - {kind: identifiernamestring, class: com.example.A, members: [{kind: all}]}
`)
	require.Empty(t, rs.NoShrinking)
	require.Equal(t, []string{"com.example.A", "void com.example.A.m()"}, members(rs.CheckDiscarded))

	var asked []string
	for _, item := range rs.ReasonAsked {
		asked = append(asked, item.String())
	}
	require.ElementsMatch(t, []string{"com.example.A", "int com.example.A.f"}, asked)

	require.Equal(t, []string{"com.example.A"}, members(rs.KeepPackageName))
	require.Equal(t, []string{"int com.example.A.s()"}, keys(rs.AssumedValues))
	require.Equal(t, []string{"com.example.A"}, members(rs.NeverMerge))
	require.Empty(t, rs.NeverClassInline, "member rules of the class must all be satisfied")
	require.Equal(t, []string{"void com.example.A.m()"}, members(rs.AlwaysInline))
	require.Equal(t, []string{"int com.example.A.s()"}, members(rs.ForceInline))
	require.Equal(t, []string{"int com.example.A.s()", "void com.example.A.m()"}, members(rs.NeverInline))
	require.Equal(t, []string{"void com.example.A.m()"}, members(rs.KeepConstantArguments))
	require.Equal(t, []string{"int com.example.A.s()"}, members(rs.KeepUnusedArguments))
	require.Equal(t, []string{
		"int com.example.A.f",
		"int com.example.A.s()",
		"void com.example.A.m()",
	}, members(rs.IdentifierNameStrings))
}

func TestInheritanceMisuseIsWarnedOncePerRule(t *testing.T) {
	b := newAppBuilder()
	b.class("com.example.Iface", "", program.AccPublic|program.AccInterface|program.AccAbstract)
	b.class("com.example.One", "", program.AccPublic, "com.example.Iface")
	b.class("com.example.Two", "", program.AccPublic, "com.example.Iface")
	app := b.build()

	builder := NewBuilder(app, parseRules(t, `
rules:
  - {kind: keep, class: "com.example.*", extends: com.example.Iface}
  - {kind: keep, class: "com.example.*", implements: com.example.Iface}
`), BuilderOptions{})
	rs := builder.Run()
	require.Equal(t, []string{"com.example.One", "com.example.Two"}, keys(rs.NoShrinking))
	require.Equal(t, 1, builder.misused.Size())
	for item, keepRules := range rs.NoShrinking {
		require.Len(t, keepRules, 2, item.String())
	}
}

func TestIfRulesAreDeferred(t *testing.T) {
	b := newAppBuilder()
	b.class("com.example.A", "", program.AccPublic)
	b.class("com.example.B", "", program.AccPublic)
	app := b.build()

	rs := run(t, app, `
rules:
  - {kind: keep, class: com.example.A}
  - {kind: if, class: com.example.A, then: {kind: keep, class: com.example.B}}
`)
	require.Len(t, rs.IfRules, 1)
	require.Equal(t, "RootSet"+
		"\nnoShrinking: 1"+
		"\nnoOptimization: 1"+
		"\nnoObfuscation: 1"+
		"\nreasonAsked: 0"+
		"\nkeepPackageName: 0"+
		"\ncheckDiscarded: 0"+
		"\nnoSideEffects: 0"+
		"\nassumedValues: 0"+
		"\ndependentNoShrinking: 0"+
		"\nidentifierNameStrings: 0"+
		"\nifRules: 1"+
		"\n\nNo Shrinking:"+
		"\ncom.example.A [-keep class com.example.A]"+
		"\n", rs.String())
}

func TestProcessPanicsOnIfRule(t *testing.T) {
	b := newAppBuilder()
	a := b.class("com.example.A", "", program.AccPublic)
	app := b.build()
	rs := parseRules(t, `rules: [{kind: if, class: com.example.A, then: {kind: keep, class: com.example.A}}]`)

	p := NewBuilder(app, rs, BuilderOptions{}).newPass()
	defer p.wait()
	require.Panics(t, func() { p.process(a, rs[0]) })
}

func TestMergeConsequentRootSet(t *testing.T) {
	app, c := preconditionApp()
	rs := run(t, app, `rules: [{kind: keep, class: com.example.C}]`)

	rule := parseRules(t, `rules: [{kind: keep, class: com.example.C}]`)[0].(*rules.KeepRule)
	runMethod := c.Methods[2]
	consequent := &ConsequentRootSet{
		NeverInline:      program.Set[*program.MethodDef]{runMethod: {}},
		NeverClassInline: program.Set[*program.Type]{c.Type: {}},
		NoShrinking:      map[Item]program.Set[*rules.KeepRule]{runMethod: {rule: {}}},
		NoOptimization:   program.Set[Item]{runMethod: {}},
		NoObfuscation:    program.Set[Item]{},
		DependentNoShrinking: map[Item]Dependents{
			c: {c.Fields[1]: {rule: {}}},
		},
	}
	require.False(t, consequent.IsEmpty())
	require.True(t, rs.Merge(consequent))
	require.False(t, rs.Merge(consequent), "merging twice adds nothing")

	require.Equal(t, []string{"com.example.C", "void com.example.C.run()"}, keys(rs.NoShrinking))
	require.Equal(t, []string{"void com.example.C.run()"}, members(rs.NeverInline))
	require.Equal(t, []string{"com.example.C"}, members(rs.NeverClassInline))
	require.Equal(t, []string{"java.lang.String com.example.C.name"}, keys(rs.DependentItems(c)))

	require.True(t, rs.AddDependentItems(map[Item]Dependents{c: {c.Fields[0]: {rule: {}}}}))
	require.Len(t, rs.DependentItems(c), 2)
}

func TestVerify(t *testing.T) {
	b := newAppBuilder()
	c := b.class("com.example.C", "", program.AccPublic)
	count := b.field(c, "count", "int", program.AccStatic)
	runMethod := b.method(c, "run", program.AccPublic|program.AccStatic, "void")
	abstract := b.class("com.example.Abstract", "", program.AccPublic|program.AccAbstract)
	b.method(abstract, "todo", program.AccPublic|program.AccAbstract, "void")
	app := b.build()

	rs := run(t, app, `
rules:
  - {kind: keep, class: com.example.C, members: [{kind: all}]}
  - {kind: keep, class: com.example.Abstract, members: [{kind: methods}]}
`)
	todo := abstract.Methods[0]
	require.Contains(t, keys(rs.DependentItems(abstract)), todo.String())
	// Abstract methods are exempt from the liveness check but not from
	// being targeted.
	rs.NoShrinking[todo] = program.Set[*rules.KeepRule]{}

	live := &Liveness{
		LiveTypes:       program.Set[*program.Type]{c.Type: {}, abstract.Type: {}},
		LiveFields:      program.Set[*program.FieldDef]{count: {}},
		LiveMethods:     program.Set[*program.MethodDef]{runMethod: {}},
		TargetedMethods: program.Set[*program.MethodDef]{runMethod: {}, todo: {}},
	}
	require.NoError(t, rs.VerifyKeptTypesAreLive(live))
	require.NoError(t, rs.VerifyKeptFieldsAreLive(app, live))
	require.NoError(t, rs.VerifyKeptMethodsAreTargetedAndLive(app, live))
	require.NoError(t, rs.VerifyKeptItemsArePresent(app))

	delete(live.LiveTypes, abstract.Type)
	require.EqualError(t, rs.VerifyKeptTypesAreLive(live), "kept type com.example.Abstract is not live")
	delete(live.LiveFields, count)
	require.EqualError(t, rs.VerifyKeptFieldsAreLive(app, live), "kept field int com.example.C.count is not live")
	delete(live.TargetedMethods, todo)
	require.EqualError(t, rs.VerifyKeptMethodsAreTargetedAndLive(app, live), "kept method void com.example.Abstract.todo() is not targeted")
	live.TargetedMethods.Add(todo)
	delete(live.LiveMethods, runMethod)
	require.EqualError(t, rs.VerifyKeptMethodsAreTargetedAndLive(app, live), "kept method void com.example.C.run() is not live")

	other := newAppBuilder().build()
	require.Error(t, rs.VerifyKeptItemsArePresent(other))
}

func TestWriteSeeds(t *testing.T) {
	b := newAppBuilder()
	foo := b.class("com.example.Foo", "", program.AccPublic)
	bar := b.method(foo, "bar", program.AccPublic|program.AccStatic, "void", "int", "java.lang.String")
	ctor := b.method(foo, "<init>", program.AccPublic|program.AccConstructor, "void", "int")
	clinit := b.method(foo, "<clinit>", program.AccStatic|program.AccConstructor, "void")
	count := b.field(foo, "count", "int", 0)
	other := b.class("com.other.Bar", "", program.AccPublic)
	app := b.build()

	missing := b.f.Method(foo.Type, "baz", b.f.Proto(b.f.VoidType))
	pinned := []program.Reference{bar.Ref, missing, other.Type, count.Ref, ctor.Ref, foo.Type, clinit.Ref}
	include := func(typ *program.Type) bool { return typ.Package() == "com.example" }

	var out strings.Builder
	require.NoError(t, WriteSeeds(&out, app, pinned, include))
	require.Equal(t, ""+
		"com.example.Foo\n"+
		"com.example.Foo: <clinit>()\n"+
		"com.example.Foo: Foo(int)\n"+
		"com.example.Foo: int count\n"+
		"com.example.Foo: void bar(int,java.lang.String)\n", out.String())

	out.Reset()
	require.NoError(t, WriteSeeds(&out, app, []program.Reference{bar.Ref}, IncludeAll))
	require.Equal(t, "com.example.Foo: void bar(int,java.lang.String)\n", out.String())
}
