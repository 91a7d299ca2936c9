package rootset

import (
	"cmp"
	"log/slog"
	"slices"
	"time"

	"github.com/715d/shrinkroot/pkg/program"
	"github.com/715d/shrinkroot/pkg/rules"
)

// IfRuleEvaluator fires the if-rules of a RootSet against the result of a
// liveness pass.
type IfRuleEvaluator struct {
	builder *Builder
	ifRules []*rules.IfRule
	live    *Liveness
}

// NewIfRuleEvaluator creates an evaluator for the if-rules of rs.
func NewIfRuleEvaluator(app *program.App, rs *RootSet, live *Liveness, opts BuilderOptions) *IfRuleEvaluator {
	return &IfRuleEvaluator{
		builder: NewBuilder(app, nil, opts),
		ifRules: rs.IfRules,
		live:    live,
	}
}

// Run tries every pair of if-rule and live type once and returns the effects
// of the rules that fired. Fired rules are not re-evaluated against their own
// consequences; the caller alternates liveness passes and Run instead.
func (e *IfRuleEvaluator) Run() *ConsequentRootSet {
	start := time.Now()
	app := e.builder.app
	liveTypes := make([]*program.Type, 0, len(e.live.LiveTypes))
	for t := range e.live.LiveTypes {
		liveTypes = append(liveTypes, t)
	}
	slices.SortFunc(liveTypes, func(a, b *program.Type) int { return cmp.Compare(a.String(), b.String()) })

	p := e.builder.newPass()
	fired := 0
	for _, rule := range e.ifRules {
		for _, t := range liveTypes {
			target := app.DefinitionFor(t)
			if target == nil {
				continue
			}
			if e.evaluate(p, rule, target, target) {
				fired++
			}
			for _, src := range app.Merged().SourcesFor(t) {
				// Merged sources keep their definitions until the next round.
				if source := app.DefinitionFor(src); source != nil && e.evaluate(p, rule, source, target) {
					fired++
				}
			}
		}
	}
	c := p.wait().consequentRootSet()
	slog.Info("evaluated if rules",
		"rules", len(e.ifRules),
		"liveTypes", len(liveTypes),
		"fired", fired,
		"duration", time.Since(start))
	return c
}

// evaluate matches rule with source as the condition class. Members are
// taken from target, restricted to those originally declared on source.
func (e *IfRuleEvaluator) evaluate(p *pass, rule *rules.IfRule, source, target *program.ClassDef) bool {
	spec := rule.Spec()
	if !spec.SatisfiesClassType(source) || !spec.SatisfiesAccessFlags(source) ||
		!spec.SatisfiesAnnotation(source) || !spec.ClassNames.Matches(source.Type) {
		return false
	}
	if spec.HasInheritanceClassName() {
		inheritance := e.builder.matcher.SatisfiesInheritance(target, spec)
		if inheritance == rules.InheritanceMisused {
			p.warnMisused(rule)
		}
		if !inheritance.Matched() {
			return false
		}
	}

	if len(spec.MemberRules) == 0 {
		e.materialize(p, rule)
		return true
	}

	var fields []*program.FieldDef
	for _, f := range target.Fields {
		if e.live.LiveFields.Has(f) && f.OriginalHolder() == source.Type {
			fields = append(fields, f)
		}
	}
	var methods []*program.MethodDef
	for _, m := range target.Methods {
		if (e.live.LiveMethods.Has(m) || e.live.TargetedMethods.Has(m)) && m.OriginalHolder() == source.Type {
			methods = append(methods, m)
		}
	}
	k := len(spec.MemberRules)
	n := len(fields) + len(methods)
	if n < k {
		return false
	}

	// Combinations are bounded by the number of member rules, which is
	// small in practice; many member rules on a class with many live
	// members is expensive.
	satisfied := false
	forEachCombination(n, k, func(idx []int) bool {
		var fs []*program.FieldDef
		var ms []*program.MethodDef
		for _, i := range idx {
			if i < len(fields) {
				fs = append(fs, fields[i])
			} else {
				ms = append(ms, methods[i-len(fields)])
			}
		}
		for _, member := range spec.MemberRules {
			if !rules.RuleSatisfiedByFields(member, fs) && !rules.RuleSatisfiedByMethods(member, ms) {
				return true
			}
		}
		satisfied = true
		return false
	})
	if satisfied {
		e.materialize(p, rule)
	}
	return satisfied
}

func (e *IfRuleEvaluator) materialize(p *pass, rule *rules.IfRule) {
	materialized := rule.Materialize()
	slog.Debug("if rule fired", "rule", rule.String())
	// The condition must still match in the next round, so its classes
	// and methods are kept out of inlining.
	p.runPerRule(materialized.NeverClassInlineRuleForCondition())
	if neverInline := materialized.NeverInlineRuleForCondition(); neverInline != nil {
		p.runPerRule(neverInline)
	}
	p.runPerRule(materialized.Subsequent)
}

// forEachCombination calls fn with every k-subset of [0, n) in
// lexicographic order until fn returns false.
func forEachCombination(n, k int, fn func(idx []int) bool) {
	if k > n || k <= 0 {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if !fn(idx) {
			return
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
