package rules

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/shrinkroot/pkg/program"
)

// Config is the YAML form of an ordered rule list.
type Config struct {
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig is one rule in YAML form.
type RuleConfig struct {
	Kind                  string         `yaml:"kind"`
	Modifiers             []string       `yaml:"modifiers,omitempty"`
	Class                 string         `yaml:"class"`
	Type                  string         `yaml:"type,omitempty"`
	Flags                 []string       `yaml:"flags,omitempty"`
	Annotation            string         `yaml:"annotation,omitempty"`
	Extends               string         `yaml:"extends,omitempty"`
	Implements            string         `yaml:"implements,omitempty"`
	InheritanceAnnotation string         `yaml:"inheritance_annotation,omitempty"`
	Members               []MemberConfig `yaml:"members,omitempty"`
	Then                  *RuleConfig    `yaml:"then,omitempty"`
}

// MemberConfig is one member rule in YAML form. Omitting args matches any
// argument list; an empty list matches only methods without parameters.
type MemberConfig struct {
	Kind       string   `yaml:"kind"`
	Name       string   `yaml:"name,omitempty"`
	Type       string   `yaml:"type,omitempty"`
	Returns    string   `yaml:"returns,omitempty"`
	Args       []string `yaml:"args,omitempty"`
	Flags      []string `yaml:"flags,omitempty"`
	Annotation string   `yaml:"annotation,omitempty"`
	Value      string   `yaml:"value,omitempty"`
}

// LoadFile reads and builds the rules in a YAML file.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules %s: %w", path, err)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing rules %s: %w", path, err)
	}
	return rules, nil
}

// Parse decodes a YAML rule configuration.
func Parse(data []byte) ([]Rule, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return cfg.Build()
}

// Build turns the configuration into rules, preserving their order.
func (c *Config) Build() ([]Rule, error) {
	out := make([]Rule, 0, len(c.Rules))
	for i := range c.Rules {
		r, err := c.Rules[i].Build()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Build turns one rule configuration into a Rule.
func (c *RuleConfig) Build() (Rule, error) {
	spec, err := c.spec()
	if err != nil {
		return nil, err
	}
	if len(c.Modifiers) > 0 && !isKeepKind(c.Kind) {
		return nil, fmt.Errorf("modifiers are only allowed on keep rules, not %q", c.Kind)
	}
	if c.Then != nil && c.Kind != "if" {
		return nil, fmt.Errorf("then is only allowed on if rules, not %q", c.Kind)
	}

	switch c.Kind {
	case "keep", "keepclassmembers", "keepclasseswithmembers":
		return c.keepRule(spec)
	case "if":
		if c.Then == nil {
			return nil, fmt.Errorf("if rule without then")
		}
		if !isKeepKind(c.Then.Kind) {
			return nil, fmt.Errorf("then must be a keep rule, not %q", c.Then.Kind)
		}
		thenSpec, err := c.Then.spec()
		if err != nil {
			return nil, fmt.Errorf("then: %w", err)
		}
		subsequent, err := c.Then.keepRule(thenSpec)
		if err != nil {
			return nil, fmt.Errorf("then: %w", err)
		}
		return &IfRule{ClassSpec: spec, Subsequent: subsequent}, nil
	case "checkdiscard":
		return &CheckDiscardRule{ClassSpec: spec}, nil
	case "whyareyoukeeping":
		return &WhyAreYouKeepingRule{ClassSpec: spec}, nil
	case "keeppackagenames":
		return &KeepPackageNamesRule{ClassSpec: spec}, nil
	case "assumenosideeffects":
		return &AssumeNoSideEffectsRule{ClassSpec: spec}, nil
	case "assumevalues":
		return &AssumeValuesRule{ClassSpec: spec}, nil
	case "nevermerge":
		return &ClassMergingRule{ClassSpec: spec, Type: ClassMergingNever}, nil
	case "neverclassinline":
		return &ClassInlineRule{ClassSpec: spec, Type: ClassInlineNever}, nil
	case "alwaysinline":
		return &InlineRule{ClassSpec: spec, Type: InlineAlways}, nil
	case "forceinline":
		return &InlineRule{ClassSpec: spec, Type: InlineForce}, nil
	case "neverinline":
		return &InlineRule{ClassSpec: spec, Type: InlineNever}, nil
	case "keepconstantarguments":
		return &ConstantArgumentRule{ClassSpec: spec}, nil
	case "keepunusedarguments":
		return &UnusedArgumentRule{ClassSpec: spec}, nil
	case "identifiernamestring":
		return &IdentifierNameStringRule{ClassSpec: spec}, nil
	}
	return nil, fmt.Errorf("unknown rule kind %q", c.Kind)
}

func isKeepKind(kind string) bool {
	return kind == "keep" || kind == "keepclassmembers" || kind == "keepclasseswithmembers"
}

func (c *RuleConfig) keepRule(spec ClassSpec) (*KeepRule, error) {
	r := &KeepRule{ClassSpec: spec}
	switch c.Kind {
	case "keepclassmembers":
		r.Type = KeepClassMembers
	case "keepclasseswithmembers":
		r.Type = KeepClassesWithMembers
	}
	for _, m := range c.Modifiers {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case "allowshrinking":
			r.Modifiers.AllowShrinking = true
		case "allowoptimization":
			r.Modifiers.AllowOptimization = true
		case "allowobfuscation":
			r.Modifiers.AllowObfuscation = true
		case "includedescriptorclasses":
			r.Modifiers.IncludeDescriptorClasses = true
		default:
			return nil, fmt.Errorf("unknown modifier %q", m)
		}
	}
	return r, nil
}

func (c *RuleConfig) spec() (ClassSpec, error) {
	var spec ClassSpec
	if c.Class == "" {
		return spec, fmt.Errorf("missing class")
	}
	names, err := ParseClassNameList(c.Class)
	if err != nil {
		return spec, err
	}
	spec.ClassNames = names

	if c.Type != "" {
		t := strings.TrimSpace(c.Type)
		spec.ClassTypeNegated = strings.HasPrefix(t, "!")
		ct, ok := classTypeNames[strings.TrimPrefix(t, "!")]
		if !ok {
			return spec, fmt.Errorf("unknown class type %q", c.Type)
		}
		spec.ClassType = ct
	}

	if spec.ClassAccessFlags, spec.NegatedClassAccessFlags, err = parseFlags(c.Flags); err != nil {
		return spec, err
	}
	if spec.ClassAnnotation, err = optionalPattern(c.Annotation); err != nil {
		return spec, err
	}

	switch {
	case c.Extends != "" && c.Implements != "":
		return spec, fmt.Errorf("both extends and implements given")
	case c.Extends != "":
		spec.InheritanceIsExtends = true
		spec.InheritanceClassName, err = ParseClassNameList(c.Extends)
	case c.Implements != "":
		spec.InheritanceClassName, err = ParseClassNameList(c.Implements)
	}
	if err != nil {
		return spec, err
	}
	if spec.InheritanceAnnotation, err = optionalPattern(c.InheritanceAnnotation); err != nil {
		return spec, err
	}

	for i := range c.Members {
		m, err := c.Members[i].build()
		if err != nil {
			return spec, fmt.Errorf("member %d: %w", i, err)
		}
		spec.MemberRules = append(spec.MemberRules, m)
	}
	return spec, nil
}

var memberKinds = map[string]MemberKind{
	"all":     MemberAll,
	"fields":  MemberAllFields,
	"methods": MemberAllMethods,
	"init":    MemberInit,
	"field":   MemberField,
	"method":  MemberMethod,
}

func (c *MemberConfig) build() (*MemberRule, error) {
	kind, ok := memberKinds[c.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown member kind %q", c.Kind)
	}
	r := &MemberRule{Kind: kind, ReturnValue: c.Value}

	var err error
	if r.AccessFlags, r.NegatedAccessFlags, err = parseFlags(c.Flags); err != nil {
		return nil, err
	}
	if r.Annotation, err = optionalPattern(c.Annotation); err != nil {
		return nil, err
	}

	switch kind {
	case MemberField:
		if r.Name, err = CompilePattern(orDefault(c.Name, "*")); err != nil {
			return nil, err
		}
		if r.Type, err = CompilePattern(orDefault(c.Type, "***")); err != nil {
			return nil, err
		}
	case MemberMethod:
		if r.Name, err = CompilePattern(orDefault(c.Name, "*")); err != nil {
			return nil, err
		}
		if r.Type, err = CompilePattern(orDefault(c.Returns, "***")); err != nil {
			return nil, err
		}
		fallthrough
	case MemberInit:
		if r.Arguments, err = compileArguments(c.Args); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func compileArguments(args []string) ([]*Pattern, error) {
	if args == nil {
		return []*Pattern{MustCompilePattern("...")}, nil
	}
	out := make([]*Pattern, 0, len(args))
	for _, a := range args {
		p, err := CompilePattern(a)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseFlags(names []string) (flags, negated program.AccessFlags, err error) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		neg := strings.HasPrefix(name, "!")
		f, ok := program.ParseAccessFlag(strings.TrimPrefix(name, "!"))
		if !ok {
			return 0, 0, fmt.Errorf("unknown access flag %q", name)
		}
		if neg {
			negated |= f
		} else {
			flags |= f
		}
	}
	return flags, negated, nil
}

func optionalPattern(s string) (*Pattern, error) {
	if s == "" {
		return nil, nil
	}
	return CompilePattern(s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
