package javasrc

import (
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/715d/shrinkroot/pkg/program"
)

// declKinds are the node types declaring a class-like type.
var declKinds = map[string]bool{
	"class_declaration":           true,
	"interface_declaration":       true,
	"enum_declaration":            true,
	"annotation_type_declaration": true,
}

type fileParser struct {
	src []byte
	out *File

	imports  map[string]string
	declared map[string]string
	// typeParams is the stack of type variable names in scope; they erase
	// to java.lang.Object.
	typeParams []string
}

func newFileParser(path string, src []byte) *fileParser {
	return &fileParser{
		src:      src,
		out:      &File{Path: path},
		imports:  make(map[string]string),
		declared: make(map[string]string),
	}
}

func (p *fileParser) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(p.src)
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

func (p *fileParser) parse(root *sitter.Node) *File {
	for _, n := range namedChildren(root) {
		switch n.Type() {
		case "package_declaration":
			for _, c := range namedChildren(n) {
				if c.Type() == "identifier" || c.Type() == "scoped_identifier" {
					p.out.Package = p.text(c)
				}
			}
		case "import_declaration":
			p.addImport(n)
		}
	}
	for _, n := range namedChildren(root) {
		if declKinds[n.Type()] {
			p.declare(n, p.packagePrefix())
		}
	}
	for _, n := range namedChildren(root) {
		if declKinds[n.Type()] {
			p.class(n, p.packagePrefix(), nil)
		}
	}
	return p.out
}

func (p *fileParser) packagePrefix() string {
	if p.out.Package == "" {
		return ""
	}
	return p.out.Package + "."
}

// addImport records single-type imports. Static and on-demand imports do
// not name types.
func (p *fileParser) addImport(n *sitter.Node) {
	var name string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "static", "asterisk":
			return
		case "identifier", "scoped_identifier":
			name = p.text(c)
		}
	}
	if name == "" {
		return
	}
	simple := name[strings.LastIndexByte(name, '.')+1:]
	p.imports[simple] = name
}

// declare registers the binary names of n and its nested types.
func (p *fileParser) declare(n *sitter.Node, prefix string) {
	name := p.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	binary := prefix + name
	if _, ok := p.declared[name]; !ok {
		p.declared[name] = binary
	}
	for _, member := range bodyMembers(n) {
		if declKinds[member.Type()] {
			p.declare(member, binary+"$")
		}
	}
}

// bodyMembers returns the declarations in the body of a type declaration,
// including those after the constants of an enum.
func bodyMembers(n *sitter.Node) []*sitter.Node {
	body := n.ChildByFieldName("body")
	var out []*sitter.Node
	for _, c := range namedChildren(body) {
		if c.Type() == "enum_body_declarations" {
			out = append(out, namedChildren(c)...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// class appends the model of the declaration n, then those of its nested
// types. outerFlags holds the flags of the enclosing class, nil for
// top-level types.
func (p *fileParser) class(n *sitter.Node, prefix string, outerFlags []string) {
	name := p.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	pushed := p.pushTypeParams(n.ChildByFieldName("type_parameters"))
	defer p.popTypeParams(pushed)

	mods := p.modifiers(n)
	c := program.ClassModel{
		Name:        prefix + name,
		Super:       program.ObjectName,
		Flags:       mods.flags,
		Annotations: mods.annotations,
	}
	nested := outerFlags != nil
	if slices.Contains(outerFlags, "interface") {
		c.Flags = addFlag(c.Flags, "public")
		c.Flags = addFlag(c.Flags, "static")
	}
	kind := n.Type()
	switch kind {
	case "class_declaration":
		if super := n.ChildByFieldName("superclass"); super != nil {
			if types := p.typeList(super); len(types) > 0 {
				c.Super = types[0]
			}
		}
		c.Interfaces = p.typeList(n.ChildByFieldName("interfaces"))
	case "interface_declaration":
		c.Flags = addFlag(addFlag(c.Flags, "interface"), "abstract")
		if nested {
			c.Flags = addFlag(c.Flags, "static")
		}
		for _, ch := range namedChildren(n) {
			if ch.Type() == "extends_interfaces" {
				c.Interfaces = p.typeList(ch)
			}
		}
	case "enum_declaration":
		c.Super = "java.lang.Enum"
		c.Flags = addFlag(c.Flags, "enum")
		if nested {
			c.Flags = addFlag(c.Flags, "static")
		}
		c.Interfaces = p.typeList(n.ChildByFieldName("interfaces"))
	case "annotation_type_declaration":
		c.Flags = addFlag(addFlag(addFlag(c.Flags, "interface"), "abstract"), "annotation")
		c.Interfaces = []string{"java.lang.annotation.Annotation"}
	}

	idx := len(p.out.Classes)
	p.out.Classes = append(p.out.Classes, c)
	var members []*sitter.Node
	hasConstructor := false
	for _, member := range bodyMembers(n) {
		switch member.Type() {
		case "field_declaration", "constant_declaration":
			p.fields(idx, member)
		case "method_declaration":
			p.method(idx, member)
		case "annotation_type_element_declaration":
			p.annotationElement(idx, member)
		case "constructor_declaration":
			hasConstructor = true
			p.constructor(idx, member)
		case "enum_constant":
			p.enumConstant(idx, member)
		case "static_initializer":
			p.classInitializer(idx, member)
		default:
			if declKinds[member.Type()] {
				members = append(members, member)
			}
		}
	}
	if kind == "enum_declaration" {
		p.enumMethods(idx)
	}
	if !hasConstructor && (kind == "class_declaration" || kind == "enum_declaration") {
		p.defaultConstructor(idx, kind == "enum_declaration")
	}
	self := p.out.Classes[idx]
	flags := self.Flags
	if flags == nil {
		flags = []string{}
	}
	for _, member := range members {
		p.class(member, self.Name+"$", flags)
	}
}

func addFlag(flags []string, flag string) []string {
	if slices.Contains(flags, flag) {
		return flags
	}
	return append(flags, flag)
}

type modifiers struct {
	flags       []string
	annotations []string
}

// modifiers reads the modifier keywords and annotations of a declaration.
// Keywords without an access flag, such as default or sealed, are dropped.
func (p *fileParser) modifiers(n *sitter.Node) modifiers {
	var out modifiers
	for _, c := range namedChildren(n) {
		if c.Type() != "modifiers" {
			continue
		}
		for i := 0; i < int(c.ChildCount()); i++ {
			m := c.Child(i)
			switch m.Type() {
			case "marker_annotation", "annotation":
				out.annotations = append(out.annotations, p.resolve(p.text(m.ChildByFieldName("name"))))
			default:
				if _, ok := program.ParseAccessFlag(m.Type()); ok {
					out.flags = append(out.flags, m.Type())
				}
			}
		}
	}
	return out
}

func (p *fileParser) isInterface(idx int) bool {
	return slices.Contains(p.out.Classes[idx].Flags, "interface")
}

func (p *fileParser) fields(idx int, n *sitter.Node) {
	mods := p.modifiers(n)
	flags := mods.flags
	if p.isInterface(idx) {
		flags = addFlag(addFlag(addFlag(flags, "public"), "static"), "final")
	}
	base := p.typeName(n.ChildByFieldName("type"))
	for _, d := range namedChildren(n) {
		if d.Type() != "variable_declarator" {
			continue
		}
		typ := base + strings.Repeat("[]", p.dims(d.ChildByFieldName("dimensions")))
		c := &p.out.Classes[idx]
		c.Fields = append(c.Fields, program.FieldModel{
			Name:        p.text(d.ChildByFieldName("name")),
			Type:        typ,
			Flags:       flags,
			Annotations: mods.annotations,
		})
	}
}

func (p *fileParser) enumConstant(idx int, n *sitter.Node) {
	c := &p.out.Classes[idx]
	c.Fields = append(c.Fields, program.FieldModel{
		Name:  p.text(n.ChildByFieldName("name")),
		Type:  c.Name,
		Flags: []string{"public", "static", "final", "enum"},
	})
}

// enumMethods adds the static methods the compiler generates for an enum.
func (p *fileParser) enumMethods(idx int) {
	c := &p.out.Classes[idx]
	c.Methods = append(c.Methods,
		program.MethodModel{Name: "values", Returns: c.Name + "[]", Flags: []string{"public", "static"}, Code: &program.CodeModel{}},
		program.MethodModel{Name: "valueOf", Params: []string{"java.lang.String"}, Returns: c.Name, Flags: []string{"public", "static"}, Code: &program.CodeModel{}},
	)
}

func (p *fileParser) method(idx int, n *sitter.Node) {
	pushed := p.pushTypeParams(n.ChildByFieldName("type_parameters"))
	defer p.popTypeParams(pushed)

	mods := p.modifiers(n)
	flags := mods.flags
	body := n.ChildByFieldName("body")
	if p.isInterface(idx) {
		if !slices.Contains(flags, "private") {
			flags = addFlag(flags, "public")
		}
		if body == nil && !slices.Contains(flags, "static") {
			flags = addFlag(flags, "abstract")
		}
	}
	params, varargs := p.params(n.ChildByFieldName("parameters"))
	if varargs {
		flags = addFlag(flags, "varargs")
	}
	ret := p.typeName(n.ChildByFieldName("type")) + strings.Repeat("[]", p.dims(n.ChildByFieldName("dimensions")))
	m := program.MethodModel{
		Name:        p.text(n.ChildByFieldName("name")),
		Params:      params,
		Returns:     ret,
		Flags:       flags,
		Annotations: mods.annotations,
	}
	if body != nil && !slices.Contains(flags, "abstract") && !slices.Contains(flags, "native") {
		m.Code = p.code(idx, len(p.out.Classes[idx].Methods), body)
	}
	c := &p.out.Classes[idx]
	c.Methods = append(c.Methods, m)
}

func (p *fileParser) annotationElement(idx int, n *sitter.Node) {
	c := &p.out.Classes[idx]
	ret := p.typeName(n.ChildByFieldName("type")) + strings.Repeat("[]", p.dims(n.ChildByFieldName("dimensions")))
	c.Methods = append(c.Methods, program.MethodModel{
		Name:    p.text(n.ChildByFieldName("name")),
		Returns: ret,
		Flags:   []string{"public", "abstract"},
	})
}

func (p *fileParser) constructor(idx int, n *sitter.Node) {
	pushed := p.pushTypeParams(n.ChildByFieldName("type_parameters"))
	defer p.popTypeParams(pushed)

	mods := p.modifiers(n)
	params, varargs := p.params(n.ChildByFieldName("parameters"))
	flags := mods.flags
	if varargs {
		flags = addFlag(flags, "varargs")
	}
	methodIdx := len(p.out.Classes[idx].Methods)
	body := n.ChildByFieldName("body")
	m := program.MethodModel{
		Name:        program.InstanceInitializerName,
		Params:      params,
		Flags:       flags,
		Annotations: mods.annotations,
		Code:        p.code(idx, methodIdx, body),
	}
	c := &p.out.Classes[idx]
	c.Methods = append(c.Methods, m)

	explicit := false
	for _, s := range namedChildren(body) {
		if s.Type() != "explicit_constructor_invocation" {
			continue
		}
		explicit = true
		holder := c.Super
		if p.text(s.ChildByFieldName("constructor")) == "this" {
			holder = c.Name
		}
		p.call(idx, methodIdx, holder, s.ChildByFieldName("arguments"))
	}
	if !explicit && !slices.Contains(c.Flags, "enum") {
		p.out.calls = append(p.out.calls, ctorCall{class: idx, method: methodIdx, holder: c.Super})
	}
}

// defaultConstructor adds the constructor the compiler generates for a
// class without one. It takes the access of its class; an enum's is
// private.
func (p *fileParser) defaultConstructor(idx int, enum bool) {
	c := &p.out.Classes[idx]
	var flags []string
	switch {
	case enum:
		flags = []string{"private"}
	case slices.Contains(c.Flags, "public"):
		flags = []string{"public"}
	case slices.Contains(c.Flags, "protected"):
		flags = []string{"protected"}
	case slices.Contains(c.Flags, "private"):
		flags = []string{"private"}
	}
	c.Methods = append(c.Methods, program.MethodModel{
		Name:  program.InstanceInitializerName,
		Flags: flags,
		Code:  &program.CodeModel{},
	})
	if !enum {
		p.out.calls = append(p.out.calls, ctorCall{class: idx, method: len(c.Methods) - 1, holder: c.Super})
	}
}

func (p *fileParser) classInitializer(idx int, n *sitter.Node) {
	c := &p.out.Classes[idx]
	for i := range c.Methods {
		if c.Methods[i].Name == program.ClassInitializerName {
			// Several static blocks form one initializer.
			p.collect(idx, i, n, c.Methods[i].Code)
			return
		}
	}
	code := &program.CodeModel{}
	c.Methods = append(c.Methods, program.MethodModel{
		Name:  program.ClassInitializerName,
		Flags: []string{"static"},
		Code:  code,
	})
	p.collect(idx, len(c.Methods)-1, n, code)
}

// params returns the parameter types of a formal parameter list and
// whether it ends in a variable arity parameter.
func (p *fileParser) params(n *sitter.Node) ([]string, bool) {
	var out []string
	varargs := false
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "formal_parameter":
			out = append(out, p.typeName(c.ChildByFieldName("type"))+strings.Repeat("[]", p.dims(c.ChildByFieldName("dimensions"))))
		case "spread_parameter":
			for _, t := range namedChildren(c) {
				if t.Type() != "modifiers" && t.Type() != "variable_declarator" {
					out = append(out, p.typeName(t)+"[]")
					break
				}
			}
			varargs = true
		}
	}
	return out, varargs
}

func (p *fileParser) code(idx, method int, body *sitter.Node) *program.CodeModel {
	code := &program.CodeModel{}
	if body != nil {
		p.collect(idx, method, body, code)
	}
	return code
}

// collect records the instantiations below n.
func (p *fileParser) collect(idx, method int, n *sitter.Node, code *program.CodeModel) {
	// Anonymous classes are not modeled, so their creation is skipped.
	if n.Type() == "object_creation_expression" && !hasAnonymousBody(n) {
		typ := p.typeName(n.ChildByFieldName("type"))
		if !slices.Contains(code.New, typ) {
			code.New = append(code.New, typ)
		}
		p.call(idx, method, typ, n.ChildByFieldName("arguments"))
	}
	for _, c := range namedChildren(n) {
		p.collect(idx, method, c, code)
	}
}

func hasAnonymousBody(n *sitter.Node) bool {
	return slices.ContainsFunc(namedChildren(n), func(c *sitter.Node) bool { return c.Type() == "class_body" })
}

func (p *fileParser) call(idx, method int, holder string, args *sitter.Node) {
	n := 0
	if args != nil {
		n = int(args.NamedChildCount())
	}
	p.out.calls = append(p.out.calls, ctorCall{class: idx, method: method, holder: holder, args: n})
}

func (p *fileParser) dims(n *sitter.Node) int {
	return strings.Count(p.text(n), "[")
}
