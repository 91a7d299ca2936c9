package program

import (
	"testing"

	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"
)

const modelYAML = `
classes:
  - name: java.lang.Object
    kind: library
    flags: [public]
    methods:
      - {name: <init>, flags: [public]}
  - name: com.example.Foo
    interfaces: [com.example.I]
    flags: [public]
    annotations: [com.example.Keep]
    fields:
      - {name: count, type: int, flags: [private, static]}
    methods:
      - name: bar
        params: [int, java.lang.String]
        flags: [public, static]
        origin: com.example.Merged
        code:
          new: [com.example.Impl]
          invoke:
            - {kind: virtual, holder: com.example.I, name: run}
          read: [{holder: com.example.Foo, name: count, type: int}]
merged:
  com.example.Foo: [com.example.Merged]
`

func TestModelBuild(t *testing.T) {
	var m Model
	require.NoError(t, yaml.Unmarshal([]byte(modelYAML), &m))
	require.True(t, m.Has("com.example.Foo"))
	require.False(t, m.Has("com.example.Impl"))

	f := NewFactory()
	object, err := m.Classes[0].Build(f)
	require.NoError(t, err)
	require.Nil(t, object.Super)
	require.True(t, object.IsLibraryClass())
	require.True(t, object.Methods[0].IsInstanceInitializer())
	require.True(t, object.Methods[0].Flags.Has(AccConstructor))

	foo, err := m.Classes[1].Build(f)
	require.NoError(t, err)
	require.True(t, foo.IsProgramClass())
	require.Same(t, f.ObjectType, foo.Super)
	require.Equal(t, []*Type{f.Type("com.example.I")}, foo.Interfaces)
	require.True(t, foo.HasAnnotation(f.Type("com.example.Keep")))
	require.Equal(t, "int com.example.Foo.count", foo.Fields[0].String())
	require.True(t, foo.Fields[0].IsStatic())

	bar := foo.Methods[0]
	require.Equal(t, "void com.example.Foo.bar(int,java.lang.String)", bar.String())
	require.Same(t, f.Type("com.example.Merged"), bar.OriginalHolder())
	require.Equal(t, []*Type{f.Type("com.example.Impl")}, bar.Code.NewInstances)
	require.Equal(t, InvokeVirtual, bar.Code.Invokes[0].Kind)
	require.Equal(t, "void com.example.I.run()", bar.Code.Invokes[0].Method.String())
	require.Same(t, foo.Fields[0].Ref, bar.Code.FieldReads[0])

	merged := m.MergedClasses(f)
	require.Equal(t, []*Type{f.Type("com.example.Merged")}, merged.SourcesFor(foo.Type))
}

func TestModelBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		class ClassModel
		want  string
	}{
		{name: "no name", class: ClassModel{}, want: "class without name"},
		{name: "primitive", class: ClassModel{Name: "int"}, want: "not a class type"},
		{name: "kind", class: ClassModel{Name: "A", Kind: "system"}, want: `unknown kind "system"`},
		{name: "class flag", class: ClassModel{Name: "A", Flags: []string{"sealed"}}, want: `unknown access flag "sealed"`},
		{
			name:  "field type",
			class: ClassModel{Name: "A", Fields: []FieldModel{{Name: "x"}}},
			want:  "class A: field x: missing type",
		},
		{
			name: "invoke kind",
			class: ClassModel{Name: "A", Methods: []MethodModel{{
				Name: "m",
				Code: &CodeModel{Invoke: []InvokeModel{{Kind: "dynamic", Holder: "B", Name: "n"}}},
			}}},
			want: `class A: method m: unknown invoke kind "dynamic"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.class.Build(NewFactory())
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestModelAppend(t *testing.T) {
	m := &Model{Classes: []ClassModel{{Name: "A"}}}
	m.Append(&Model{
		Classes: []ClassModel{{Name: "B"}},
		Merged:  map[string][]string{"A": {"C"}},
	})
	m.Append(&Model{Merged: map[string][]string{"A": {"D"}}})
	require.True(t, m.Has("B"))
	require.Equal(t, []string{"C", "D"}, m.Merged["A"])
}
