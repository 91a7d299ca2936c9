package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/715d/shrinkroot/pkg/program"
)

// Pattern is a compiled ProGuard-style name pattern:
//
//	?    one character other than '.'
//	*    any run of characters without '.'
//	**   any run of characters
//	***  any type, primitive or reference, array or not
//	%    any primitive type
//
// A pattern without wildcards is specific: it names exactly one thing.
type Pattern struct {
	source string
	re     *regexp.Regexp
	// anyType is set for "***"; classTypes for a lone "*" or "**" used as a type.
	anyType    bool
	classTypes bool
	// anyArgs is set for "...", which matches any argument list.
	anyArgs  bool
	specific bool
}

const primitiveAlternation = `(?:boolean|byte|char|short|int|long|float|double)`

// wildcards are the characters that make a pattern non-specific.
const wildcards = "*?%"

// CompilePattern compiles a name or type pattern.
func CompilePattern(source string) (*Pattern, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	p := &Pattern{source: source}
	switch source {
	case "***":
		p.anyType = true
		return p, nil
	case "...":
		p.anyArgs = true
		return p, nil
	case "*", "**":
		p.classTypes = true
	}
	p.specific = !strings.ContainsAny(source, wildcards)

	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(source); {
		switch c := source[i]; c {
		case '*':
			n := 0
			for i < len(source) && source[i] == '*' {
				n++
				i++
			}
			if n == 1 {
				b.WriteString(`[^.]*`)
			} else {
				b.WriteString(`.*`)
			}
			continue
		case '?':
			b.WriteString(`[^.]`)
		case '%':
			b.WriteString(primitiveAlternation)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
		i++
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", source, err)
	}
	p.re = re
	return p, nil
}

// MustCompilePattern is CompilePattern that panics on error.
func MustCompilePattern(source string) *Pattern {
	p, err := CompilePattern(source)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) String() string { return p.source }

// IsSpecific reports whether the pattern contains no wildcards.
func (p *Pattern) IsSpecific() bool { return p.specific }

// MatchesName matches a plain name such as a class or member name.
func (p *Pattern) MatchesName(name string) bool {
	if p.anyType || p.anyArgs {
		return true
	}
	return p.re.MatchString(name)
}

// MatchesMemberName matches a member name. Wildcards never match the special
// initializer names; those have to be spelled out.
func (p *Pattern) MatchesMemberName(name string) bool {
	if !p.specific && strings.HasPrefix(name, "<") {
		return false
	}
	return p.MatchesName(name)
}

// MatchesType matches a type in source form. A lone "*" or "**" matches any
// class type, "***" matches everything.
func (p *Pattern) MatchesType(t *program.Type) bool {
	switch {
	case p.anyType, p.anyArgs:
		return true
	case p.classTypes:
		return t.IsClass()
	}
	return p.re.MatchString(t.String())
}

// ClassNameEntry is one element of a comma-separated class name list.
type ClassNameEntry struct {
	Negated bool
	Pattern *Pattern
}

// ClassNameList is an ordered list of possibly negated class name patterns.
// The first entry matching a type decides: it matches iff the entry is not
// negated.
type ClassNameList []ClassNameEntry

// ParseClassNameList parses "com.example.**, !com.example.internal.*".
func ParseClassNameList(s string) (ClassNameList, error) {
	var list ClassNameList
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		negated := strings.HasPrefix(part, "!")
		p, err := CompilePattern(strings.TrimPrefix(part, "!"))
		if err != nil {
			return nil, err
		}
		list = append(list, ClassNameEntry{Negated: negated, Pattern: p})
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("empty class name list %q", s)
	}
	return list, nil
}

// Matches reports whether t is selected by the list.
func (l ClassNameList) Matches(t *program.Type) bool {
	for _, e := range l {
		if e.Pattern.MatchesType(t) {
			return !e.Negated
		}
	}
	return false
}

// AsSpecificTypes returns the type names of a list made only of specific,
// non-negated entries, or nil when some entry needs a scan over all classes.
func (l ClassNameList) AsSpecificTypes() []string {
	if len(l) == 0 {
		return nil
	}
	names := make([]string, 0, len(l))
	for _, e := range l {
		if e.Negated || !e.Pattern.IsSpecific() {
			return nil
		}
		names = append(names, e.Pattern.source)
	}
	return names
}

// MatchesSpecificType reports whether the list is a single specific type.
func (l ClassNameList) MatchesSpecificType() bool {
	return len(l) == 1 && !l[0].Negated && l[0].Pattern.IsSpecific()
}

func (l ClassNameList) String() string {
	parts := make([]string, len(l))
	for i, e := range l {
		if e.Negated {
			parts[i] = "!" + e.Pattern.source
		} else {
			parts[i] = e.Pattern.source
		}
	}
	return strings.Join(parts, ",")
}
