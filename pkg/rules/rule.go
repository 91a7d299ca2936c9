// Package rules models retention rules and matches them against classes and
// members of a program.App.
//
// A Rule is a closed sum type: *KeepRule, *IfRule, *CheckDiscardRule,
// *WhyAreYouKeepingRule, *KeepPackageNamesRule, *AssumeNoSideEffectsRule,
// *AssumeValuesRule, *ClassMergingRule, *ClassInlineRule, *InlineRule,
// *ConstantArgumentRule, *UnusedArgumentRule and *IdentifierNameStringRule.
// Consumers type-switch over these and panic on anything else.
package rules

import (
	"strings"

	"github.com/715d/shrinkroot/pkg/program"
)

// Rule is a class specification plus a retention effect. Rules are compared
// by pointer identity.
type Rule interface {
	// Spec returns the class specification the rule matches with.
	Spec() *ClassSpec
	// Keyword is the configuration keyword of the rule, e.g. "keep".
	Keyword() string
	// ApplyToLibraryClasses reports whether scans include library classes.
	ApplyToLibraryClasses() bool
	String() string

	isRule()
}

// ClassType is the kind of class a specification selects.
type ClassType uint8

const (
	// ClassTypeClass selects classes and interfaces alike.
	ClassTypeClass ClassType = iota
	ClassTypeInterface
	ClassTypeEnum
	ClassTypeAnnotation
)

var classTypeNames = map[string]ClassType{
	"class":      ClassTypeClass,
	"interface":  ClassTypeInterface,
	"enum":       ClassTypeEnum,
	"@interface": ClassTypeAnnotation,
}

func (t ClassType) String() string {
	for name, v := range classTypeNames {
		if v == t {
			return name
		}
	}
	return "class"
}

// Matches reports whether c is of this class type.
func (t ClassType) Matches(c *program.ClassDef) bool {
	switch t {
	case ClassTypeInterface:
		return c.IsInterface()
	case ClassTypeEnum:
		return c.IsEnum()
	case ClassTypeAnnotation:
		return c.IsAnnotation()
	}
	return true
}

// ClassSpec is the class-level predicate shared by all rule kinds.
type ClassSpec struct {
	ClassAnnotation         *Pattern
	ClassAccessFlags        program.AccessFlags
	NegatedClassAccessFlags program.AccessFlags
	ClassType               ClassType
	ClassTypeNegated        bool
	ClassNames              ClassNameList

	// InheritanceClassName is nil when the rule has no extends/implements clause.
	InheritanceAnnotation *Pattern
	InheritanceClassName  ClassNameList
	InheritanceIsExtends  bool

	MemberRules []*MemberRule
}

// HasInheritanceClassName reports whether the spec has an extends or
// implements clause.
func (s *ClassSpec) HasInheritanceClassName() bool { return len(s.InheritanceClassName) > 0 }

func (s *ClassSpec) String() string {
	var b strings.Builder
	if s.ClassAnnotation != nil {
		b.WriteString("@" + s.ClassAnnotation.String() + " ")
	}
	writeFlags(&b, s.ClassAccessFlags, s.NegatedClassAccessFlags)
	if s.ClassTypeNegated {
		b.WriteByte('!')
	}
	b.WriteString(s.ClassType.String())
	b.WriteString(" " + s.ClassNames.String())
	if s.HasInheritanceClassName() {
		if s.InheritanceIsExtends {
			b.WriteString(" extends ")
		} else {
			b.WriteString(" implements ")
		}
		if s.InheritanceAnnotation != nil {
			b.WriteString("@" + s.InheritanceAnnotation.String() + " ")
		}
		b.WriteString(s.InheritanceClassName.String())
	}
	if len(s.MemberRules) > 0 {
		b.WriteString(" {")
		for _, m := range s.MemberRules {
			b.WriteString(" " + m.String() + ";")
		}
		b.WriteString(" }")
	}
	return b.String()
}

func writeFlags(b *strings.Builder, flags, negated program.AccessFlags) {
	if flags != 0 {
		b.WriteString(flags.String() + " ")
	}
	if negated != 0 {
		for _, f := range strings.Fields(negated.String()) {
			b.WriteString("!" + f + " ")
		}
	}
}

// KeepType distinguishes the three keep variants.
type KeepType uint8

const (
	Keep KeepType = iota
	KeepClassMembers
	KeepClassesWithMembers
)

func (t KeepType) String() string {
	switch t {
	case KeepClassMembers:
		return "keepclassmembers"
	case KeepClassesWithMembers:
		return "keepclasseswithmembers"
	}
	return "keep"
}

// Modifiers weaken a keep rule.
type Modifiers struct {
	AllowShrinking           bool
	AllowOptimization        bool
	AllowObfuscation         bool
	IncludeDescriptorClasses bool
}

func (m Modifiers) String() string {
	var parts []string
	if m.AllowShrinking {
		parts = append(parts, "allowshrinking")
	}
	if m.AllowOptimization {
		parts = append(parts, "allowoptimization")
	}
	if m.AllowObfuscation {
		parts = append(parts, "allowobfuscation")
	}
	if m.IncludeDescriptorClasses {
		parts = append(parts, "includedescriptorclasses")
	}
	return strings.Join(parts, ",")
}

type KeepRule struct {
	ClassSpec
	Type      KeepType
	Modifiers Modifiers
}

func (r *KeepRule) Keyword() string { return r.Type.String() }

func (r *KeepRule) String() string {
	head := "-" + r.Keyword()
	if mods := r.Modifiers.String(); mods != "" {
		head += "," + mods
	}
	return head + " " + r.ClassSpec.String()
}

// IfRule keeps Subsequent once its own specification is matched by live
// program elements.
type IfRule struct {
	ClassSpec
	Subsequent *KeepRule
}

func (r *IfRule) Keyword() string { return "if" }

func (r *IfRule) String() string {
	return "-if " + r.ClassSpec.String() + " " + r.Subsequent.String()
}

// Materialize returns a fresh copy of the rule and its subsequent rule, so
// that elements kept by one firing are attributed to a distinct rule value.
func (r *IfRule) Materialize() *IfRule {
	subsequent := *r.Subsequent
	return &IfRule{ClassSpec: r.ClassSpec, Subsequent: &subsequent}
}

// NeverClassInlineRuleForCondition prevents class inlining of classes that
// match the condition; an inlined class could not be matched again.
func (r *IfRule) NeverClassInlineRuleForCondition() *ClassInlineRule {
	return &ClassInlineRule{ClassSpec: r.ClassSpec, Type: ClassInlineNever}
}

// NeverInlineRuleForCondition prevents inlining of the methods named by the
// condition, or returns nil when the condition has no method rules.
func (r *IfRule) NeverInlineRuleForCondition() *InlineRule {
	var methods []*MemberRule
	for _, m := range r.MemberRules {
		if m.Kind.IncludesMethods() {
			methods = append(methods, m)
		}
	}
	if len(methods) == 0 {
		return nil
	}
	spec := r.ClassSpec
	spec.MemberRules = methods
	return &InlineRule{ClassSpec: spec, Type: InlineNever}
}

type CheckDiscardRule struct{ ClassSpec }

func (r *CheckDiscardRule) Keyword() string { return "checkdiscard" }
func (r *CheckDiscardRule) String() string  { return "-checkdiscard " + r.ClassSpec.String() }

type WhyAreYouKeepingRule struct{ ClassSpec }

func (r *WhyAreYouKeepingRule) Keyword() string { return "whyareyoukeeping" }
func (r *WhyAreYouKeepingRule) String() string  { return "-whyareyoukeeping " + r.ClassSpec.String() }

type KeepPackageNamesRule struct{ ClassSpec }

func (r *KeepPackageNamesRule) Keyword() string { return "keeppackagenames" }
func (r *KeepPackageNamesRule) String() string  { return "-keeppackagenames " + r.ClassSpec.String() }

type AssumeNoSideEffectsRule struct{ ClassSpec }

func (r *AssumeNoSideEffectsRule) Keyword() string { return "assumenosideeffects" }
func (r *AssumeNoSideEffectsRule) String() string {
	return "-assumenosideeffects " + r.ClassSpec.String()
}
func (r *AssumeNoSideEffectsRule) ApplyToLibraryClasses() bool { return true }

type AssumeValuesRule struct{ ClassSpec }

func (r *AssumeValuesRule) Keyword() string             { return "assumevalues" }
func (r *AssumeValuesRule) String() string              { return "-assumevalues " + r.ClassSpec.String() }
func (r *AssumeValuesRule) ApplyToLibraryClasses() bool { return true }

type ClassMergingType uint8

const ClassMergingNever ClassMergingType = iota

type ClassMergingRule struct {
	ClassSpec
	Type ClassMergingType
}

func (r *ClassMergingRule) Keyword() string { return "nevermerge" }
func (r *ClassMergingRule) String() string  { return "-nevermerge " + r.ClassSpec.String() }

type ClassInlineType uint8

const ClassInlineNever ClassInlineType = iota

type ClassInlineRule struct {
	ClassSpec
	Type ClassInlineType
}

func (r *ClassInlineRule) Keyword() string { return "neverclassinline" }
func (r *ClassInlineRule) String() string  { return "-neverclassinline " + r.ClassSpec.String() }

type InlineType uint8

const (
	InlineAlways InlineType = iota
	InlineForce
	InlineNever
)

func (t InlineType) String() string {
	switch t {
	case InlineForce:
		return "forceinline"
	case InlineNever:
		return "neverinline"
	}
	return "alwaysinline"
}

type InlineRule struct {
	ClassSpec
	Type InlineType
}

func (r *InlineRule) Keyword() string { return r.Type.String() }
func (r *InlineRule) String() string  { return "-" + r.Keyword() + " " + r.ClassSpec.String() }

type ConstantArgumentRule struct{ ClassSpec }

func (r *ConstantArgumentRule) Keyword() string { return "keepconstantarguments" }
func (r *ConstantArgumentRule) String() string {
	return "-keepconstantarguments " + r.ClassSpec.String()
}

type UnusedArgumentRule struct{ ClassSpec }

func (r *UnusedArgumentRule) Keyword() string { return "keepunusedarguments" }
func (r *UnusedArgumentRule) String() string {
	return "-keepunusedarguments " + r.ClassSpec.String()
}

type IdentifierNameStringRule struct{ ClassSpec }

func (r *IdentifierNameStringRule) Keyword() string { return "identifiernamestring" }
func (r *IdentifierNameStringRule) String() string {
	return "-identifiernamestring " + r.ClassSpec.String()
}

// Every rule embeds a ClassSpec, which supplies Spec and the default
// ApplyToLibraryClasses.

func (s *ClassSpec) Spec() *ClassSpec           { return s }
func (s *ClassSpec) ApplyToLibraryClasses() bool { return false }
func (s *ClassSpec) isRule()                     {}
