package rootset

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/shrinkroot/pkg/program"
)

type ifFixture struct {
	app   *program.App
	model *program.ClassDef
	id    *program.FieldDef
	save  *program.MethodDef
}

func newIfFixture() *ifFixture {
	b := newAppBuilder()
	model := b.class("com.example.Model", "", program.AccPublic)
	fx := &ifFixture{
		model: model,
		id:    b.field(model, "id", "int", program.AccPrivate),
		save:  b.method(model, "save", program.AccPublic, "void"),
	}
	b.class("com.example.Kept", "", program.AccPublic)
	b.class("com.example.Never", "", program.AccPublic)
	fx.app = b.build()
	return fx
}

func evaluateIfRules(t *testing.T, app *program.App, config string, live *Liveness) *ConsequentRootSet {
	t.Helper()
	rs := run(t, app, config)
	return NewIfRuleEvaluator(app, rs, live, BuilderOptions{Workers: 2}).Run()
}

func TestIfRuleWithoutMembers(t *testing.T) {
	fx := newIfFixture()
	live := &Liveness{LiveTypes: program.Set[*program.Type]{fx.model.Type: {}}}

	c := evaluateIfRules(t, fx.app, `
rules:
  - {kind: if, class: com.example.Model, then: {kind: keep, class: com.example.Kept}}
  - {kind: if, class: com.example.Never, then: {kind: keep, class: com.example.Model}}
`, live)
	require.Equal(t, []string{"com.example.Kept"}, keys(c.NoShrinking))
	require.Equal(t, []string{"com.example.Model"}, members(c.NeverClassInline))
	require.Empty(t, c.NeverInline)
	for _, keepRules := range c.NoShrinking {
		for r := range keepRules {
			require.Equal(t, "-keep class com.example.Kept", r.String())
		}
	}
}

func TestIfRuleThatNeverFires(t *testing.T) {
	fx := newIfFixture()
	live := &Liveness{LiveTypes: program.Set[*program.Type]{fx.model.Type: {}}}

	c := evaluateIfRules(t, fx.app, `
rules:
  - {kind: if, class: com.example.Never, then: {kind: keep, class: com.example.Kept}}
`, live)
	require.True(t, c.IsEmpty())
}

func TestIfRuleMembers(t *testing.T) {
	tests := []struct {
		name   string
		config string
		fields []string
		method bool
		want   bool
	}{
		{
			name:   "dead method",
			config: `{kind: if, class: com.example.Model, members: [{kind: method, name: save}], then: {kind: keep, class: com.example.Kept}}`,
		},
		{
			name:   "live method",
			config: `{kind: if, class: com.example.Model, members: [{kind: method, name: save}], then: {kind: keep, class: com.example.Kept}}`,
			method: true,
			want:   true,
		},
		{
			name:   "one of two members live",
			config: `{kind: if, class: com.example.Model, members: [{kind: field, name: id}, {kind: method, name: save}], then: {kind: keep, class: com.example.Kept}}`,
			method: true,
		},
		{
			name:   "both members live",
			config: `{kind: if, class: com.example.Model, members: [{kind: field, name: id}, {kind: method, name: save}], then: {kind: keep, class: com.example.Kept}}`,
			fields: []string{"id"},
			method: true,
			want:   true,
		},
		{
			name:   "one member satisfies two rules",
			config: `{kind: if, class: com.example.Model, members: [{kind: methods}, {kind: method, name: save}], then: {kind: keep, class: com.example.Kept}}`,
			fields: []string{"id"},
			method: true,
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newIfFixture()
			live := &Liveness{
				LiveTypes:       program.Set[*program.Type]{fx.model.Type: {}},
				LiveFields:      make(program.Set[*program.FieldDef]),
				LiveMethods:     make(program.Set[*program.MethodDef]),
				TargetedMethods: make(program.Set[*program.MethodDef]),
			}
			if slices.Contains(tt.fields, "id") {
				live.LiveFields.Add(fx.id)
			}
			if tt.method {
				live.TargetedMethods.Add(fx.save)
			}

			c := evaluateIfRules(t, fx.app, "rules: ["+tt.config+"]", live)
			if !tt.want {
				require.True(t, c.IsEmpty())
				return
			}
			require.Equal(t, []string{"com.example.Kept"}, keys(c.NoShrinking))
			require.Equal(t, []string{"com.example.Model"}, members(c.NeverClassInline))
			require.Equal(t, []string{"void com.example.Model.save()"}, members(c.NeverInline))
		})
	}
}

func TestIfRuleOnMergedSource(t *testing.T) {
	b := newAppBuilder()
	b.class("com.example.Source", "", program.AccPublic|program.AccAbstract)
	target := b.class("com.example.Target", "", program.AccPublic)
	save := b.method(target, "save", program.AccPublic, "void")
	save.Origin = b.f.Type("com.example.Source")
	own := b.method(target, "own", program.AccPublic, "void")
	b.class("com.example.Kept", "", program.AccPublic)
	b.merged = program.MergedClasses{target.Type: {b.f.Type("com.example.Source")}}
	app := b.build()

	live := &Liveness{
		LiveTypes:   program.Set[*program.Type]{target.Type: {}},
		LiveFields:  make(program.Set[*program.FieldDef]),
		LiveMethods: program.Set[*program.MethodDef]{save: {}, own: {}},
	}

	c := evaluateIfRules(t, app, `
rules:
  - kind: if
    class: com.example.Source
    flags: [abstract]
    members: [{kind: method, name: save}]
    then: {kind: keep, class: com.example.Kept}
`, live)
	require.Equal(t, []string{"com.example.Kept"}, keys(c.NoShrinking))

	c = evaluateIfRules(t, app, `
rules:
  - kind: if
    class: com.example.Source
    members: [{kind: method, name: own}]
    then: {kind: keep, class: com.example.Kept}
`, live)
	require.True(t, c.IsEmpty(), "members declared on the merge target do not satisfy the source")
}

func TestIfRuleSubsequentPreconditions(t *testing.T) {
	app, c := preconditionApp()
	live := &Liveness{LiveTypes: program.Set[*program.Type]{c.Type: {}}}

	consequent := evaluateIfRules(t, app, `
rules:
  - kind: if
    class: com.example.C
    then: {kind: keep, class: com.example.C, members: [{kind: fields}]}
`, live)
	require.Equal(t, []string{"com.example.C", "int com.example.C.COUNT"}, keys(consequent.NoShrinking))
	require.Equal(t, []string{"java.lang.String com.example.C.name"}, keys(consequent.DependentNoShrinking[c]))
}

func TestForEachCombination(t *testing.T) {
	var got [][]int
	forEachCombination(4, 2, func(idx []int) bool {
		got = append(got, slices.Clone(idx))
		return true
	})
	require.Equal(t, [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}, got)

	calls := 0
	forEachCombination(5, 3, func([]int) bool {
		calls++
		return calls < 2
	})
	require.Equal(t, 2, calls)

	forEachCombination(2, 3, func([]int) bool {
		t.Fatal("no combination of 3 out of 2")
		return false
	})
}
