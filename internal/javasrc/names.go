package javasrc

import (
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/715d/shrinkroot/pkg/program"
)

// javaLang holds the java.lang types a source file may use unqualified.
var javaLang = map[string]bool{
	"AutoCloseable": true, "Boolean": true, "Byte": true, "CharSequence": true,
	"Character": true, "Class": true, "ClassLoader": true, "Cloneable": true,
	"Comparable": true, "Deprecated": true, "Double": true, "Enum": true,
	"Error": true, "Exception": true, "Float": true, "FunctionalInterface": true,
	"IllegalArgumentException": true, "IllegalStateException": true,
	"IndexOutOfBoundsException": true, "Integer": true, "Iterable": true,
	"Long": true, "Math": true, "NullPointerException": true, "Number": true,
	"Object": true, "Override": true, "Record": true, "Runnable": true,
	"RuntimeException": true, "SafeVarargs": true, "Short": true,
	"String": true, "StringBuilder": true, "SuppressWarnings": true,
	"System": true, "Thread": true, "Throwable": true,
	"UnsupportedOperationException": true, "Void": true,
}

// typeName returns the source-form name of a type node with generics
// erased and simple names resolved.
func (p *fileParser) typeName(n *sitter.Node) string {
	if n == nil {
		return program.ObjectName
	}
	switch n.Type() {
	case "integral_type", "floating_point_type", "boolean_type", "void_type":
		return p.text(n)
	case "array_type":
		return p.typeName(n.ChildByFieldName("element")) + strings.Repeat("[]", p.dims(n.ChildByFieldName("dimensions")))
	case "generic_type":
		for _, c := range namedChildren(n) {
			if c.Type() == "type_identifier" || c.Type() == "scoped_type_identifier" {
				return p.typeName(c)
			}
		}
	case "annotated_type":
		children := namedChildren(n)
		if len(children) > 0 {
			return p.typeName(children[len(children)-1])
		}
	case "type_identifier", "scoped_type_identifier":
		return p.resolve(eraseGenerics(p.text(n)))
	}
	return program.ObjectName
}

// typeList returns the types of a superclass, super_interfaces or
// extends_interfaces clause.
func (p *fileParser) typeList(n *sitter.Node) []string {
	var out []string
	for _, c := range namedChildren(n) {
		if c.Type() == "type_list" {
			out = append(out, p.typeList(c)...)
			continue
		}
		out = append(out, p.typeName(c))
	}
	return out
}

// resolve maps a name as written in the source to a binary class name.
// Simple names are looked up in type variables, single-type imports, the
// declarations of the file and java.lang, and otherwise taken to be in the
// package of the file. A qualified name whose first segment is capitalized
// names a nested class.
func (p *fileParser) resolve(name string) string {
	name = strings.Join(strings.Fields(name), "")
	if name == "" {
		return program.ObjectName
	}
	head, rest, qualified := strings.Cut(name, ".")
	if qualified {
		if isTypeSegment(head) {
			return p.resolve(head) + "$" + strings.ReplaceAll(rest, ".", "$")
		}
		segments := strings.Split(name, ".")
		for i, s := range segments {
			if isTypeSegment(s) {
				return strings.Join(segments[:i+1], ".") + nestedSuffix(segments[i+1:])
			}
		}
		return name
	}

	for i := len(p.typeParams) - 1; i >= 0; i-- {
		if p.typeParams[i] == name {
			return program.ObjectName
		}
	}
	if full, ok := p.imports[name]; ok {
		return full
	}
	if binary, ok := p.declared[name]; ok {
		return binary
	}
	if javaLang[name] {
		return "java.lang." + name
	}
	if p.out.Package == "" {
		return name
	}
	return p.out.Package + "." + name
}

func nestedSuffix(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	return "$" + strings.Join(segments, "$")
}

func isTypeSegment(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// eraseGenerics drops type arguments, as in Outer<String>.Inner.
func eraseGenerics(name string) string {
	if !strings.Contains(name, "<") {
		return name
	}
	var b strings.Builder
	depth := 0
	for _, r := range name {
		switch {
		case r == '<':
			depth++
		case r == '>':
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (p *fileParser) pushTypeParams(n *sitter.Node) int {
	pushed := 0
	for _, tp := range namedChildren(n) {
		if tp.Type() != "type_parameter" {
			continue
		}
		for _, c := range namedChildren(tp) {
			if c.Type() == "type_identifier" || c.Type() == "identifier" {
				p.typeParams = append(p.typeParams, p.text(c))
				pushed++
				break
			}
		}
	}
	return pushed
}

func (p *fileParser) popTypeParams(n int) {
	p.typeParams = p.typeParams[:len(p.typeParams)-n]
}
