package rootset

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/715d/shrinkroot/pkg/program"
	"github.com/715d/shrinkroot/pkg/rules"
)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Workers bounds the number of rules scanned concurrently. Zero means
	// runtime.NumCPU().
	Workers int
}

func (o BuilderOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}

// Builder computes the RootSet of an App for an ordered list of rules.
type Builder struct {
	app     *program.App
	rules   []rules.Rule
	matcher *rules.Matcher
	opts    BuilderOptions

	// misused holds the rules already warned about for mixing up extends
	// and implements.
	misused *xsync.Map[rules.Rule, struct{}]
}

// NewBuilder creates a Builder for the given rules.
func NewBuilder(app *program.App, rs []rules.Rule, opts BuilderOptions) *Builder {
	return &Builder{
		app:     app,
		rules:   rs,
		matcher: rules.NewMatcher(app),
		opts:    opts,
		misused: xsync.NewMap[rules.Rule, struct{}](),
	}
}

// Run evaluates all ordinary rules and collects the if-rules for later
// evaluation by an IfRuleEvaluator.
func (b *Builder) Run() *RootSet {
	start := time.Now()
	p := b.newPass()
	var ifRules []*rules.IfRule
	for _, r := range b.rules {
		if ifRule, ok := r.(*rules.IfRule); ok {
			ifRules = append(ifRules, ifRule)
			continue
		}
		p.runPerRule(r)
	}
	rs := p.wait().rootSet()
	rs.IfRules = ifRules

	slog.Info("built root set",
		"rules", len(b.rules),
		"ifRules", len(ifRules),
		"noShrinking", len(rs.NoShrinking),
		"dependent", len(rs.DependentNoShrinking),
		"duration", time.Since(start))
	return rs
}

// discovery is one (item, rule) pair found by a rule task.
type discovery struct {
	item   Item
	rule   rules.Rule
	member *rules.MemberRule
	// precondition gates retention of item; nil keeps it unconditionally.
	precondition Item
}

// pass runs rule tasks on a bounded worker pool. Tasks only match; every
// discovery is sent to a single consumer goroutine that owns the sets.
type pass struct {
	*Builder
	g    errgroup.Group
	out  chan discovery
	done chan struct{}
	sets *sets
}

func (b *Builder) newPass() *pass {
	p := &pass{
		Builder: b,
		out:     make(chan discovery, 256),
		done:    make(chan struct{}),
		sets:    newSets(b.app),
	}
	p.g.SetLimit(b.opts.workers())
	go func() {
		defer close(p.done)
		for d := range p.out {
			p.sets.add(d)
		}
	}()
	return p
}

// wait blocks until every submitted task finished and the consumer drained
// the discoveries.
func (p *pass) wait() *sets {
	_ = p.g.Wait()
	close(p.out)
	<-p.done
	return p.sets
}

// runPerRule processes rule against the classes it can match. Rules naming
// only specific types look those up directly; all others scan the program,
// and the library too when the rule asks for it, on a worker.
func (p *pass) runPerRule(rule rules.Rule) {
	if names := rule.Spec().ClassNames.AsSpecificTypes(); names != nil {
		for _, name := range names {
			if c := p.app.DefinitionFor(p.app.Factory.Type(name)); c != nil {
				p.process(c, rule)
			}
		}
		return
	}
	p.g.Go(func() error {
		for _, c := range p.app.ProgramClasses() {
			p.process(c, rule)
		}
		if rule.ApplyToLibraryClasses() {
			for _, c := range p.app.LibraryClasses() {
				p.process(c, rule)
			}
		}
		return nil
	})
}

// preconditionFunc picks the precondition of a kept member.
type preconditionFunc func(def Item) Item

func unconditional(Item) Item { return nil }

func dependsOn(c *program.ClassDef) preconditionFunc {
	return func(Item) Item { return c }
}

// keepPrecondition pins static members and instance initializers outright.
// Other instance members are kept only once c is instantiated.
func keepPrecondition(c *program.ClassDef) preconditionFunc {
	return func(def Item) Item {
		if program.IsStaticMember(def) {
			return nil
		}
		if m, ok := def.(*program.MethodDef); ok && m.IsInstanceInitializer() {
			return nil
		}
		return c
	}
}

func (p *pass) process(c *program.ClassDef, rule rules.Rule) {
	spec := rule.Spec()
	ok, inheritance := p.matcher.MatchesClass(c, spec)
	if inheritance == rules.InheritanceMisused {
		p.warnMisused(rule)
	}
	if !ok {
		return
	}
	members := spec.MemberRules

	switch r := rule.(type) {
	case *rules.KeepRule:
		if !c.IsProgramClass() {
			return
		}
		switch r.Type {
		case rules.KeepClassMembers:
			p.markMatchingVisibleMethods(c, members, rule, dependsOn(c), false)
			p.markMatchingVisibleFields(c, members, rule, dependsOn(c), false)
		case rules.KeepClassesWithMembers:
			if !rules.AllRulesSatisfied(members, c) {
				return
			}
			fallthrough
		case rules.Keep:
			p.markClass(c, rule)
			p.markMatchingVisibleMethods(c, members, rule, keepPrecondition(c), false)
			p.markMatchingVisibleFields(c, members, rule, keepPrecondition(c), false)
		default:
			panic(fmt.Sprintf("unexpected keep type %v", r.Type))
		}
	case *rules.IfRule:
		panic("if rules are evaluated by IfRuleEvaluator")
	case *rules.CheckDiscardRule:
		if len(members) == 0 {
			p.markClass(c, rule)
			return
		}
		p.markMatchingFields(c, members, rule, dependsOn(c))
		p.markMatchingMethods(c, members, rule, dependsOn(c))
	case *rules.WhyAreYouKeepingRule, *rules.KeepPackageNamesRule:
		p.markClass(c, rule)
		p.markMatchingVisibleMethods(c, members, rule, unconditional, true)
		p.markMatchingVisibleFields(c, members, rule, unconditional, true)
	case *rules.AssumeNoSideEffectsRule, *rules.AssumeValuesRule:
		p.markMatchingVisibleMethods(c, members, rule, unconditional, true)
		p.markMatchingVisibleFields(c, members, rule, unconditional, true)
	case *rules.ClassMergingRule, *rules.ClassInlineRule:
		if rules.AllRulesSatisfied(members, c) {
			p.markClass(c, rule)
		}
	case *rules.InlineRule, *rules.ConstantArgumentRule, *rules.UnusedArgumentRule:
		p.markMatchingMethods(c, members, rule, unconditional)
	case *rules.IdentifierNameStringRule:
		p.markMatchingFields(c, members, rule, unconditional)
		p.markMatchingMethods(c, members, rule, unconditional)
	default:
		panic(fmt.Sprintf("unexpected rule type %T", rule))
	}
}

func (p *pass) warnMisused(rule rules.Rule) {
	if _, loaded := p.misused.LoadOrStore(rule, struct{}{}); loaded {
		return
	}
	relation := "implements"
	if rule.Spec().InheritanceIsExtends {
		relation = "extends"
	}
	slog.Warn("rule matches a class through the relation it does not name; "+
		"extends and implements are treated alike",
		"rule", rule.String(), "relation", relation)
}

func (p *pass) emit(item Item, rule rules.Rule, member *rules.MemberRule, precondition Item) {
	p.out <- discovery{item: item, rule: rule, member: member, precondition: precondition}
}

func (p *pass) markClass(c *program.ClassDef, rule rules.Rule) {
	slog.Debug("marking class", "class", c.String(), "rule", rule.Keyword())
	p.emit(c, rule, nil, nil)
}

// markMatchingVisibleMethods walks the super class chain of c. Direct
// methods are only considered on c itself, and a virtual method is skipped
// once a subclass method of the same signature was marked.
func (p *pass) markMatchingVisibleMethods(c *program.ClassDef, members []*rules.MemberRule, rule rules.Rule, precondition preconditionFunc, includeLibrary bool) {
	if len(members) == 0 {
		return
	}
	marked := make(program.Set[program.Signature])
	for cur := c; cur != nil; cur = p.app.DefinitionFor(cur.Super) {
		if !includeLibrary && !cur.IsProgramClass() {
			return
		}
		if cur == c {
			for m := range cur.DirectMethods() {
				p.markMethod(m, members, marked, rule, precondition(m))
			}
		}
		for m := range cur.VirtualMethods() {
			p.markMethod(m, members, marked, rule, precondition(m))
		}
	}
}

func (p *pass) markMethod(m *program.MethodDef, members []*rules.MemberRule, marked program.Set[program.Signature], rule rules.Rule, precondition Item) {
	sig := m.Ref.Signature()
	if marked.Has(sig) {
		return
	}
	for _, member := range members {
		if member.MatchesMethod(m) {
			marked.Add(sig)
			slog.Debug("marking method", "method", m.String(), "rule", rule.Keyword())
			p.emit(m, rule, member, precondition)
		}
	}
}

func (p *pass) markMatchingVisibleFields(c *program.ClassDef, members []*rules.MemberRule, rule rules.Rule, precondition preconditionFunc, includeLibrary bool) {
	if len(members) == 0 {
		return
	}
	for cur := c; cur != nil; cur = p.app.DefinitionFor(cur.Super) {
		if !includeLibrary && !cur.IsProgramClass() {
			return
		}
		for _, f := range cur.Fields {
			p.markField(f, members, rule, precondition(f))
		}
	}
}

func (p *pass) markMatchingMethods(c *program.ClassDef, members []*rules.MemberRule, rule rules.Rule, precondition preconditionFunc) {
	for _, m := range c.Methods {
		for _, member := range members {
			if member.MatchesMethod(m) {
				slog.Debug("marking method", "method", m.String(), "rule", rule.Keyword())
				p.emit(m, rule, member, precondition(m))
			}
		}
	}
}

func (p *pass) markMatchingFields(c *program.ClassDef, members []*rules.MemberRule, rule rules.Rule, precondition preconditionFunc) {
	for _, f := range c.Fields {
		p.markField(f, members, rule, precondition(f))
	}
}

func (p *pass) markField(f *program.FieldDef, members []*rules.MemberRule, rule rules.Rule, precondition Item) {
	for _, member := range members {
		if member.MatchesField(f) {
			slog.Debug("marking field", "field", f.String(), "rule", rule.Keyword())
			p.emit(f, rule, member, precondition)
		}
	}
}
