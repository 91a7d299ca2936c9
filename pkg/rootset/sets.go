package rootset

import (
	"fmt"

	"github.com/715d/shrinkroot/pkg/program"
	"github.com/715d/shrinkroot/pkg/rules"
)

// sets accumulates discoveries. It is owned by the consumer goroutine of a
// pass and never touched concurrently.
type sets struct {
	app *program.App

	noShrinking           map[Item]program.Set[*rules.KeepRule]
	noOptimization        program.Set[Item]
	noObfuscation         program.Set[Item]
	reasonAsked           []Item
	reasonAskedSeen       program.Set[Item]
	keepPackageName       program.Set[Item]
	checkDiscarded        program.Set[Item]
	alwaysInline          program.Set[*program.MethodDef]
	forceInline           program.Set[*program.MethodDef]
	neverInline           program.Set[*program.MethodDef]
	neverClassInline      program.Set[*program.Type]
	neverMerge            program.Set[*program.Type]
	keepConstantArguments program.Set[*program.MethodDef]
	keepUnusedArguments   program.Set[*program.MethodDef]
	noSideEffects         map[Item]*rules.MemberRule
	assumedValues         map[Item]*rules.MemberRule
	identifierNameStrings program.Set[Item]
	dependentNoShrinking  map[Item]Dependents
}

func newSets(app *program.App) *sets {
	return &sets{
		app:                   app,
		noShrinking:           make(map[Item]program.Set[*rules.KeepRule]),
		noOptimization:        make(program.Set[Item]),
		noObfuscation:         make(program.Set[Item]),
		reasonAskedSeen:       make(program.Set[Item]),
		keepPackageName:       make(program.Set[Item]),
		checkDiscarded:        make(program.Set[Item]),
		alwaysInline:          make(program.Set[*program.MethodDef]),
		forceInline:           make(program.Set[*program.MethodDef]),
		neverInline:           make(program.Set[*program.MethodDef]),
		neverClassInline:      make(program.Set[*program.Type]),
		neverMerge:            make(program.Set[*program.Type]),
		keepConstantArguments: make(program.Set[*program.MethodDef]),
		keepUnusedArguments:   make(program.Set[*program.MethodDef]),
		noSideEffects:         make(map[Item]*rules.MemberRule),
		assumedValues:         make(map[Item]*rules.MemberRule),
		identifierNameStrings: make(program.Set[Item]),
		dependentNoShrinking:  make(map[Item]Dependents),
	}
}

// add records one discovery. Adding the same discovery twice has no effect.
func (s *sets) add(d discovery) {
	switch r := d.rule.(type) {
	case *rules.KeepRule:
		if m, ok := d.item.(*program.MethodDef); ok && m.IsSynthetic() {
			return
		}
		if !r.Modifiers.AllowShrinking {
			if d.precondition != nil {
				s.addDependent(d.precondition, d.item, r)
			} else {
				keepRules := s.noShrinking[d.item]
				if keepRules == nil {
					keepRules = make(program.Set[*rules.KeepRule], 1)
					s.noShrinking[d.item] = keepRules
				}
				keepRules.Add(r)
			}
		}
		if !r.Modifiers.AllowOptimization {
			s.noOptimization.Add(d.item)
		}
		if !r.Modifiers.AllowObfuscation {
			s.noObfuscation.Add(d.item)
		}
		if r.Modifiers.IncludeDescriptorClasses {
			s.includeDescriptorClasses(d.item, r)
		}
	case *rules.AssumeNoSideEffectsRule:
		if isMember(d.item) {
			s.noSideEffects[d.item] = d.member
		}
	case *rules.WhyAreYouKeepingRule:
		if s.reasonAskedSeen.Add(d.item) {
			s.reasonAsked = append(s.reasonAsked, d.item)
		}
	case *rules.KeepPackageNamesRule:
		s.keepPackageName.Add(d.item)
	case *rules.AssumeValuesRule:
		if isMember(d.item) {
			s.assumedValues[d.item] = d.member
		}
	case *rules.CheckDiscardRule:
		s.checkDiscarded.Add(d.item)
	case *rules.InlineRule:
		m, ok := d.item.(*program.MethodDef)
		if !ok {
			return
		}
		switch r.Type {
		case rules.InlineAlways:
			s.alwaysInline.Add(m)
		case rules.InlineForce:
			s.forceInline.Add(m)
		case rules.InlineNever:
			s.neverInline.Add(m)
		default:
			panic(fmt.Sprintf("unexpected inline type %v", r.Type))
		}
	case *rules.ClassInlineRule:
		if c, ok := d.item.(*program.ClassDef); ok {
			s.neverClassInline.Add(c.Type)
		}
	case *rules.ClassMergingRule:
		if c, ok := d.item.(*program.ClassDef); ok {
			s.neverMerge.Add(c.Type)
		}
	case *rules.ConstantArgumentRule:
		if m, ok := d.item.(*program.MethodDef); ok {
			s.keepConstantArguments.Add(m)
		}
	case *rules.UnusedArgumentRule:
		if m, ok := d.item.(*program.MethodDef); ok {
			s.keepUnusedArguments.Add(m)
		}
	case *rules.IdentifierNameStringRule:
		if isMember(d.item) {
			s.identifierNameStrings.Add(d.item)
		}
	default:
		panic(fmt.Sprintf("unexpected rule type %T", d.rule))
	}
}

func isMember(item Item) bool {
	switch item.(type) {
	case *program.FieldDef, *program.MethodDef:
		return true
	}
	return false
}

func (s *sets) addDependent(precondition, item Item, r *rules.KeepRule) {
	deps := s.dependentNoShrinking[precondition]
	if deps == nil {
		deps = make(Dependents)
		s.dependentNoShrinking[precondition] = deps
	}
	keepRules := deps[item]
	if keepRules == nil {
		keepRules = make(program.Set[*rules.KeepRule], 1)
		deps[item] = keepRules
	}
	keepRules.Add(r)
}

// includeDescriptorClasses keeps the program classes mentioned in the
// signature of a kept member for as long as the member is kept.
func (s *sets) includeDescriptorClasses(item Item, r *rules.KeepRule) {
	switch d := item.(type) {
	case *program.MethodDef:
		s.includeDescriptor(item, d.Ref.Proto.Return, r)
		for _, param := range d.Ref.Proto.Params {
			s.includeDescriptor(item, param, r)
		}
	case *program.FieldDef:
		s.includeDescriptor(item, d.Ref.Type, r)
	}
}

func (s *sets) includeDescriptor(item Item, t *program.Type, r *rules.KeepRule) {
	t = t.BaseType()
	if !t.IsClass() {
		return
	}
	c := s.app.DefinitionFor(t)
	if c == nil || !c.IsProgramClass() {
		return
	}
	s.addDependent(item, c, r)
	// Only consulted for surviving items, so no precondition is needed.
	s.noObfuscation.Add(c)
}

func (s *sets) rootSet() *RootSet {
	return &RootSet{
		NoShrinking:           s.noShrinking,
		NoOptimization:        s.noOptimization,
		NoObfuscation:         s.noObfuscation,
		KeepPackageName:       s.keepPackageName,
		CheckDiscarded:        s.checkDiscarded,
		ReasonAsked:           s.reasonAsked,
		AlwaysInline:          s.alwaysInline,
		ForceInline:           s.forceInline,
		NeverInline:           s.neverInline,
		NeverClassInline:      s.neverClassInline,
		NeverMerge:            s.neverMerge,
		KeepConstantArguments: s.keepConstantArguments,
		KeepUnusedArguments:   s.keepUnusedArguments,
		NoSideEffects:         s.noSideEffects,
		AssumedValues:         s.assumedValues,
		IdentifierNameStrings: s.identifierNameStrings,
		DependentNoShrinking:  s.dependentNoShrinking,
	}
}

func (s *sets) consequentRootSet() *ConsequentRootSet {
	return &ConsequentRootSet{
		NeverInline:          s.neverInline,
		NeverClassInline:     s.neverClassInline,
		NoShrinking:          s.noShrinking,
		NoOptimization:       s.noOptimization,
		NoObfuscation:        s.noObfuscation,
		DependentNoShrinking: s.dependentNoShrinking,
	}
}
