// Package rootset evaluates retention rules against a program.App and
// records which program elements are pinned, and why.
package rootset

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/715d/shrinkroot/pkg/program"
	"github.com/715d/shrinkroot/pkg/rules"
)

// Item is a pinned program element: a *program.ClassDef, *program.FieldDef
// or *program.MethodDef.
type Item = program.Definition

// Dependents maps an item to the keep rules that pin it once the owner of the
// map is kept.
type Dependents map[Item]program.Set[*rules.KeepRule]

// RootSet is the result of running the ordinary rules over an App. It is
// not modified after Builder.Run returns, except through Merge and
// AddDependentItems by the component driving the liveness analysis.
type RootSet struct {
	// NoShrinking maps each unconditionally kept item to the rules keeping it.
	NoShrinking     map[Item]program.Set[*rules.KeepRule]
	NoOptimization  program.Set[Item]
	NoObfuscation   program.Set[Item]
	KeepPackageName program.Set[Item]
	CheckDiscarded  program.Set[Item]
	// ReasonAsked is in discovery order, which varies between runs.
	ReasonAsked []Item

	AlwaysInline          program.Set[*program.MethodDef]
	ForceInline           program.Set[*program.MethodDef]
	NeverInline           program.Set[*program.MethodDef]
	NeverClassInline      program.Set[*program.Type]
	NeverMerge            program.Set[*program.Type]
	KeepConstantArguments program.Set[*program.MethodDef]
	KeepUnusedArguments   program.Set[*program.MethodDef]

	NoSideEffects         map[Item]*rules.MemberRule
	AssumedValues         map[Item]*rules.MemberRule
	IdentifierNameStrings program.Set[Item]

	// DependentNoShrinking maps a precondition to the items kept only while
	// the precondition is kept.
	DependentNoShrinking map[Item]Dependents

	IfRules []*rules.IfRule
}

// ConsequentRootSet holds the effects of the if-rules fired in one
// evaluation pass.
type ConsequentRootSet struct {
	NeverInline          program.Set[*program.MethodDef]
	NeverClassInline     program.Set[*program.Type]
	NoShrinking          map[Item]program.Set[*rules.KeepRule]
	NoOptimization       program.Set[Item]
	NoObfuscation        program.Set[Item]
	DependentNoShrinking map[Item]Dependents
}

// IsEmpty reports whether no if-rule fired.
func (c *ConsequentRootSet) IsEmpty() bool {
	return len(c.NeverInline) == 0 && len(c.NeverClassInline) == 0 &&
		len(c.NoShrinking) == 0 && len(c.NoOptimization) == 0 &&
		len(c.NoObfuscation) == 0 && len(c.DependentNoShrinking) == 0
}

// DependentItems returns the items whose retention depends on item.
func (r *RootSet) DependentItems(item Item) Dependents {
	return r.DependentNoShrinking[item]
}

// AddDependentItems merges dependent entries into the root set and reports
// whether anything new was added.
func (r *RootSet) AddDependentItems(deps map[Item]Dependents) bool {
	if r.DependentNoShrinking == nil {
		r.DependentNoShrinking = make(map[Item]Dependents, len(deps))
	}
	changed := false
	for precondition, items := range deps {
		dst := r.DependentNoShrinking[precondition]
		if dst == nil {
			dst = make(Dependents, len(items))
			r.DependentNoShrinking[precondition] = dst
		}
		for item, keepRules := range items {
			changed = addRules(dst, item, keepRules) || changed
		}
	}
	return changed
}

// Merge folds a consequent root set into r and reports whether r changed.
func (r *RootSet) Merge(c *ConsequentRootSet) bool {
	changed := false
	for item, keepRules := range c.NoShrinking {
		changed = addRules(r.NoShrinking, item, keepRules) || changed
	}
	changed = addAll(r.NoOptimization, c.NoOptimization) || changed
	changed = addAll(r.NoObfuscation, c.NoObfuscation) || changed
	changed = addAll(r.NeverInline, c.NeverInline) || changed
	changed = addAll(r.NeverClassInline, c.NeverClassInline) || changed
	changed = r.AddDependentItems(c.DependentNoShrinking) || changed
	return changed
}

func addRules(dst map[Item]program.Set[*rules.KeepRule], item Item, keepRules program.Set[*rules.KeepRule]) bool {
	set := dst[item]
	if set == nil {
		set = make(program.Set[*rules.KeepRule], len(keepRules))
		dst[item] = set
	}
	changed := false
	for r := range keepRules {
		changed = set.Add(r) || changed
	}
	return changed
}

func addAll[T comparable](dst, src program.Set[T]) bool {
	changed := false
	for v := range src {
		changed = dst.Add(v) || changed
	}
	return changed
}

// IsKeptDirectlyOrIndirectly reports whether t or one of its super classes
// is pinned.
func (r *RootSet) IsKeptDirectlyOrIndirectly(app *program.App, t *program.Type) bool {
	for t != nil {
		c := app.DefinitionFor(t)
		if c == nil {
			return false
		}
		if _, ok := r.NoShrinking[c]; ok {
			return true
		}
		t = c.Super
	}
	return false
}

// PinnedReferences returns the references of all unconditionally kept items.
func (r *RootSet) PinnedReferences() []program.Reference {
	refs := make([]program.Reference, 0, len(r.NoShrinking))
	for _, item := range sortedItems(r.NoShrinking) {
		refs = append(refs, item.Reference())
	}
	return refs
}

func sortedItems[V any](m map[Item]V) []Item {
	items := make([]Item, 0, len(m))
	for item := range m {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b Item) int { return cmp.Compare(a.String(), b.String()) })
	return items
}

func (r *RootSet) String() string {
	var b strings.Builder
	b.WriteString("RootSet")
	fmt.Fprintf(&b, "\nnoShrinking: %d", len(r.NoShrinking))
	fmt.Fprintf(&b, "\nnoOptimization: %d", len(r.NoOptimization))
	fmt.Fprintf(&b, "\nnoObfuscation: %d", len(r.NoObfuscation))
	fmt.Fprintf(&b, "\nreasonAsked: %d", len(r.ReasonAsked))
	fmt.Fprintf(&b, "\nkeepPackageName: %d", len(r.KeepPackageName))
	fmt.Fprintf(&b, "\ncheckDiscarded: %d", len(r.CheckDiscarded))
	fmt.Fprintf(&b, "\nnoSideEffects: %d", len(r.NoSideEffects))
	fmt.Fprintf(&b, "\nassumedValues: %d", len(r.AssumedValues))
	fmt.Fprintf(&b, "\ndependentNoShrinking: %d", len(r.DependentNoShrinking))
	fmt.Fprintf(&b, "\nidentifierNameStrings: %d", len(r.IdentifierNameStrings))
	fmt.Fprintf(&b, "\nifRules: %d", len(r.IfRules))
	b.WriteString("\n\nNo Shrinking:")
	for _, item := range sortedItems(r.NoShrinking) {
		b.WriteString("\n" + item.String() + " " + formatRules(r.NoShrinking[item]))
	}
	b.WriteString("\n")
	return b.String()
}

func formatRules(set program.Set[*rules.KeepRule]) string {
	parts := make([]string, 0, len(set))
	for r := range set {
		parts = append(parts, r.String())
	}
	slices.Sort(parts)
	return "[" + strings.Join(parts, ", ") + "]"
}
