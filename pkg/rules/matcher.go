package rules

import (
	"strings"

	"github.com/715d/shrinkroot/pkg/program"
)

// MemberKind selects which members a member rule applies to.
type MemberKind uint8

const (
	// MemberAll is "*": every field and method.
	MemberAll MemberKind = iota
	// MemberAllFields is "<fields>".
	MemberAllFields
	// MemberAllMethods is "<methods>": every method except <clinit>.
	MemberAllMethods
	// MemberInit is "<init>(...)": instance initializers.
	MemberInit
	MemberField
	MemberMethod
)

var memberKindNames = []string{"all", "fields", "methods", "init", "field", "method"}

func (k MemberKind) String() string {
	if int(k) < len(memberKindNames) {
		return memberKindNames[k]
	}
	return "unknown"
}

func (k MemberKind) IncludesMethods() bool {
	return k == MemberAll || k == MemberAllMethods || k == MemberInit || k == MemberMethod
}

func (k MemberKind) IncludesFields() bool {
	return k == MemberAll || k == MemberAllFields || k == MemberField
}

// MemberRule matches fields or methods of a class.
type MemberRule struct {
	Kind               MemberKind
	Annotation         *Pattern
	AccessFlags        program.AccessFlags
	NegatedAccessFlags program.AccessFlags
	// Name is used by MemberField and MemberMethod.
	Name *Pattern
	// Type is the field type or the method return type.
	Type *Pattern
	// Arguments are the parameter patterns; "..." matches any run.
	Arguments []*Pattern
	// ReturnValue is the value clause of assumevalues and
	// assumenosideeffects rules, kept verbatim.
	ReturnValue string
}

func (r *MemberRule) matchesFlagsAndAnnotations(flags program.AccessFlags, annotations []*program.Type) bool {
	if !flags.Has(r.AccessFlags) || flags.HasAny(r.NegatedAccessFlags) {
		return false
	}
	return containsAnnotation(r.Annotation, annotations)
}

// MatchesMethod reports whether m is selected by the rule.
func (r *MemberRule) MatchesMethod(m *program.MethodDef) bool {
	switch r.Kind {
	case MemberAllMethods:
		if m.IsClassInitializer() {
			return false
		}
		return r.matchesFlagsAndAnnotations(m.Flags, m.Annotations)
	case MemberAll:
		return r.matchesFlagsAndAnnotations(m.Flags, m.Annotations)
	case MemberInit:
		if !m.IsInstanceInitializer() {
			return false
		}
	case MemberMethod:
		if !r.Type.MatchesType(m.Ref.Proto.Return) || !r.Name.MatchesMemberName(m.Ref.Name) {
			return false
		}
	default:
		return false
	}
	return r.matchesFlagsAndAnnotations(m.Flags, m.Annotations) &&
		matchArguments(r.Arguments, m.Ref.Proto.Params)
}

// MatchesField reports whether f is selected by the rule.
func (r *MemberRule) MatchesField(f *program.FieldDef) bool {
	switch r.Kind {
	case MemberAll, MemberAllFields:
		return r.matchesFlagsAndAnnotations(f.Flags, f.Annotations)
	case MemberField:
		return r.Type.MatchesType(f.Ref.Type) &&
			r.Name.MatchesMemberName(f.Ref.Name) &&
			r.matchesFlagsAndAnnotations(f.Flags, f.Annotations)
	}
	return false
}

// Matches dispatches on the kind of definition.
func (r *MemberRule) Matches(def program.Definition) bool {
	switch d := def.(type) {
	case *program.MethodDef:
		return r.MatchesMethod(d)
	case *program.FieldDef:
		return r.MatchesField(d)
	}
	return false
}

func matchArguments(patterns []*Pattern, params []*program.Type) bool {
	if len(patterns) == 0 {
		return len(params) == 0
	}
	if patterns[0].anyArgs {
		for i := 0; i <= len(params); i++ {
			if matchArguments(patterns[1:], params[i:]) {
				return true
			}
		}
		return false
	}
	if len(params) == 0 || !patterns[0].MatchesType(params[0]) {
		return false
	}
	return matchArguments(patterns[1:], params[1:])
}

func (r *MemberRule) String() string {
	var b strings.Builder
	if r.Annotation != nil {
		b.WriteString("@" + r.Annotation.String() + " ")
	}
	writeFlags(&b, r.AccessFlags, r.NegatedAccessFlags)
	switch r.Kind {
	case MemberAll:
		b.WriteString("*")
	case MemberAllFields:
		b.WriteString("<fields>")
	case MemberAllMethods:
		b.WriteString("<methods>")
	case MemberInit:
		b.WriteString(program.InstanceInitializerName + "(" + joinPatterns(r.Arguments) + ")")
	case MemberField:
		b.WriteString(r.Type.String() + " " + r.Name.String())
	case MemberMethod:
		b.WriteString(r.Type.String() + " " + r.Name.String() + "(" + joinPatterns(r.Arguments) + ")")
	}
	if r.ReturnValue != "" {
		b.WriteString(" return " + r.ReturnValue)
	}
	return b.String()
}

func joinPatterns(ps []*Pattern) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

func containsAnnotation(p *Pattern, annotations []*program.Type) bool {
	if p == nil {
		return true
	}
	for _, a := range annotations {
		if p.MatchesType(a) {
			return true
		}
	}
	return false
}

// SatisfiesClassType checks the class/interface/enum/@interface keyword.
func (s *ClassSpec) SatisfiesClassType(c *program.ClassDef) bool {
	return s.ClassType.Matches(c) != s.ClassTypeNegated
}

// SatisfiesAccessFlags checks the required and forbidden class flags.
func (s *ClassSpec) SatisfiesAccessFlags(c *program.ClassDef) bool {
	return c.Flags.Has(s.ClassAccessFlags) && !c.Flags.HasAny(s.NegatedClassAccessFlags)
}

// SatisfiesAnnotation checks the class annotation, if any.
func (s *ClassSpec) SatisfiesAnnotation(c *program.ClassDef) bool {
	return containsAnnotation(s.ClassAnnotation, c.Annotations)
}

// RuleSatisfied reports whether some member declared directly on c matches r.
func RuleSatisfied(r *MemberRule, c *program.ClassDef) bool {
	return RuleSatisfiedByMethods(r, c.Methods) || RuleSatisfiedByFields(r, c.Fields)
}

// AllRulesSatisfied reports whether every member rule is matched by some
// member declared directly on c. Super classes are not consulted.
func AllRulesSatisfied(members []*MemberRule, c *program.ClassDef) bool {
	for _, r := range members {
		if !RuleSatisfied(r, c) {
			return false
		}
	}
	return true
}

func RuleSatisfiedByMethods(r *MemberRule, methods []*program.MethodDef) bool {
	if !r.Kind.IncludesMethods() {
		return false
	}
	for _, m := range methods {
		if r.MatchesMethod(m) {
			return true
		}
	}
	return false
}

func RuleSatisfiedByFields(r *MemberRule, fields []*program.FieldDef) bool {
	if !r.Kind.IncludesFields() {
		return false
	}
	for _, f := range fields {
		if r.MatchesField(f) {
			return true
		}
	}
	return false
}

// Matcher evaluates the hierarchy-dependent parts of a class specification.
// It only reads the App and is safe for concurrent use.
type Matcher struct {
	app *program.App
}

func NewMatcher(app *program.App) *Matcher {
	return &Matcher{app: app}
}

// InheritanceMatch is the outcome of an extends/implements check.
type InheritanceMatch uint8

const (
	InheritanceNoMatch InheritanceMatch = iota
	InheritanceMatched
	// InheritanceMisused matched only through the relation the rule did not
	// name, e.g. an extends clause satisfied by an implemented interface.
	// The class still matches.
	InheritanceMisused
)

// Matched reports whether the class satisfies the clause in either reading.
func (m InheritanceMatch) Matched() bool { return m != InheritanceNoMatch }

// MatchesClass applies the class type, access flag, annotation, inheritance
// and name checks of s to c, in that order.
func (m *Matcher) MatchesClass(c *program.ClassDef, s *ClassSpec) (bool, InheritanceMatch) {
	if !s.SatisfiesClassType(c) || !s.SatisfiesAccessFlags(c) || !s.SatisfiesAnnotation(c) {
		return false, InheritanceNoMatch
	}
	inheritance := InheritanceMatched
	if s.HasInheritanceClassName() {
		inheritance = m.SatisfiesInheritance(c, s)
		if !inheritance.Matched() {
			return false, inheritance
		}
	}
	return s.ClassNames.Matches(c.Type), inheritance
}

// SatisfiesInheritance checks the extends/implements clause of s against c.
// Either relation is accepted. InheritanceMisused is only reported for
// clauses naming one specific type, since no pattern can express "extends or
// implements something in package p".
func (m *Matcher) SatisfiesInheritance(c *program.ClassDef, s *ClassSpec) InheritanceMatch {
	extendsMatched := m.satisfiesExtends(c, s)
	implementsMatched := !extendsMatched && m.satisfiesImplements(c, s)
	if !extendsMatched && !implementsMatched {
		return InheritanceNoMatch
	}
	if s.InheritanceClassName.MatchesSpecificType() {
		if s.InheritanceIsExtends && implementsMatched {
			return InheritanceMisused
		}
		if !s.InheritanceIsExtends && extendsMatched {
			return InheritanceMisused
		}
	}
	return InheritanceMatched
}

func (m *Matcher) satisfiesExtends(c *program.ClassDef, s *ClassSpec) bool {
	for t := c.Super; t != nil; {
		def := m.app.DefinitionFor(t)
		if def == nil {
			break
		}
		if s.InheritanceClassName.Matches(t) && containsAnnotation(s.InheritanceAnnotation, def.Annotations) {
			return true
		}
		t = def.Super
	}
	// The class may have absorbed its former super class through merging.
	return m.anySourceMatches(c, s, false)
}

func (m *Matcher) satisfiesImplements(c *program.ClassDef, s *ClassSpec) bool {
	if m.anyInterfaceMatches(c, s) {
		return true
	}
	return m.anySourceMatches(c, s, true)
}

func (m *Matcher) anyInterfaceMatches(c *program.ClassDef, s *ClassSpec) bool {
	for _, iface := range c.Interfaces {
		def := m.app.DefinitionFor(iface)
		if def == nil {
			continue
		}
		if s.InheritanceClassName.Matches(iface) && containsAnnotation(s.InheritanceAnnotation, def.Annotations) {
			return true
		}
		if m.anyInterfaceMatches(def, s) {
			return true
		}
	}
	super := m.app.DefinitionFor(c.Super)
	if super == nil {
		return false
	}
	return m.anyInterfaceMatches(super, s)
}

func (m *Matcher) anySourceMatches(c *program.ClassDef, s *ClassSpec, isInterface bool) bool {
	for _, src := range m.app.Merged().SourcesFor(c.Type) {
		def := m.app.DefinitionFor(src)
		if def == nil || def.IsInterface() != isInterface {
			continue
		}
		if s.InheritanceClassName.Matches(src) {
			return true
		}
	}
	return false
}
