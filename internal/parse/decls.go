package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/includecheck/internal/syntax"
)

func scopeJoin(scope []string, name string) string {
	if len(scope) == 0 {
		return name
	}
	return strings.Join(scope, "::") + "::" + name
}

// handleDecl registers declarations for nodes that introduce names. It
// returns true when it fully consumed the node, including recursion into its
// children; false hands the node back to the generic scan.
func (fs *fileScanner) handleDecl(n *sitter.Node, st scanState) bool {
	switch n.Type() {
	case "namespace_definition":
		name := ""
		if nn := n.ChildByFieldName("name"); nn != nil {
			name = fs.text(nn)
		}
		inner := st.nested()
		if name != "" {
			d := fs.register(&syntax.Decl{
				Name:         name,
				Qualified:    scopeJoin(st.scope, name),
				Kind:         syntax.Namespace,
				IsDefinition: true,
			}, n)
			fs.deliver(d, n, st)
			inner = st.withScope(name)
			inner.class = false
		}
		if body := n.ChildByFieldName("body"); body != nil {
			fs.scanChildren(body, inner)
		}
		return true

	case "class_specifier", "struct_specifier", "union_specifier", "enum_specifier":
		if !inDeclContext(n) {
			return false // a type reference, the walker's business
		}
		d := fs.registerTag(n, st)
		if d != nil {
			fs.deliver(d, n, st)
		}
		return true

	case "declaration":
		fs.handleDeclaration(n, st)
		return true

	case "function_definition":
		fs.handleFunction(n, st, true)
		return true

	case "field_declaration":
		fs.handleFieldDecl(n, st)
		return true

	case "type_definition":
		var first *syntax.Decl
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			tn := n.ChildByFieldName("type")
			if c.Type() == "type_identifier" && (tn == nil || !c.Equal(tn)) {
				name := fs.text(c)
				d := fs.register(&syntax.Decl{
					Name:         name,
					Qualified:    scopeJoin(st.scope, name),
					Kind:         syntax.Typedef,
					IsDefinition: true,
				}, c)
				if first == nil {
					first = d
				}
			}
		}
		if first != nil {
			fs.deliver(first, n, st)
		}
		// The aliased type may reference macros.
		if t := n.ChildByFieldName("type"); t != nil {
			fs.scan(t, st.nested())
		}
		return true

	case "alias_declaration":
		nn := n.ChildByFieldName("name")
		if nn == nil {
			return false
		}
		name := fs.text(nn)
		d := fs.register(&syntax.Decl{
			Name:         name,
			Qualified:    scopeJoin(st.scope, name),
			Kind:         syntax.Alias,
			IsDefinition: true,
		}, nn)
		fs.deliver(d, n, st)
		if t := n.ChildByFieldName("type"); t != nil {
			fs.scan(t, st.nested())
		}
		return true

	case "using_declaration":
		// `using std::vector;` introduces the last path component.
		target := ""
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "qualified_identifier" || c.Type() == "identifier" {
				target = fs.text(c)
			}
		}
		if target == "" {
			return false
		}
		name := target
		if i := strings.LastIndex(target, "::"); i >= 0 {
			name = target[i+2:]
		}
		d := fs.register(&syntax.Decl{
			Name:      name,
			Qualified: scopeJoin(st.scope, name),
			Kind:      syntax.Using,
		}, n)
		d.UsingTarget = target
		fs.deliver(d, n, st)
		return true

	case "template_declaration":
		inner := st
		inner.template = true
		fs.scanChildren(n, inner)
		return true

	case "friend_declaration":
		// `friend class X;` names X directly, without a class_specifier. The
		// befriended class belongs to the scope enclosing the class.
		for i := 0; i+1 < int(n.ChildCount()); i++ {
			kind, isTag := tagKinds[n.Child(i).Type()+"_specifier"]
			if nn := n.Child(i + 1); isTag && nn.Type() == "type_identifier" {
				scope := st.scope
				if st.class && len(scope) > 0 {
					scope = scope[:len(scope)-1]
				}
				name := fs.text(nn)
				fs.register(&syntax.Decl{Name: name, Qualified: scopeJoin(scope, name), Kind: kind, IsFriend: true}, nn)
				return true
			}
		}
		inner := st.nested()
		inner.friend = true
		fs.scanChildren(n, inner)
		return true

	case "linkage_specification":
		// extern "C" { ... } keeps its contents at the same level.
		if body := n.ChildByFieldName("body"); body != nil {
			if body.Type() == "declaration_list" {
				fs.scanChildren(body, st)
			} else {
				fs.scan(body, st)
			}
		}
		return true

	case "enumerator":
		nn := n.ChildByFieldName("name")
		if nn == nil {
			return false
		}
		name := fs.text(nn)
		fs.register(&syntax.Decl{
			Name:         name,
			Qualified:    scopeJoin(st.scope, name),
			Kind:         syntax.EnumConstant,
			IsDefinition: true,
		}, nn)
		// The value expression may reference macros.
		if v := n.ChildByFieldName("value"); v != nil {
			fs.scan(v, st.nested())
		}
		return true
	}
	return false
}

// inDeclContext reports whether a tag specifier node is itself a declaration
// rather than a type written inside another declaration.
func inDeclContext(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return true
	}
	switch p.Type() {
	case "translation_unit", "declaration_list", "field_declaration_list",
		"template_declaration", "linkage_specification", "friend_declaration",
		"preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif":
		return true
	}
	return false
}

func (fs *fileScanner) register(d *syntax.Decl, nameNode *sitter.Node) *syntax.Decl {
	d.Loc = fs.loc(nameNode)
	return fs.pp.decls.Add(d)
}

func (fs *fileScanner) deliver(d *syntax.Decl, n *sitter.Node, st scanState) {
	if !st.topLevel || !fs.isMain || fs.pp.astObs == nil || d == nil {
		return
	}
	d.Node = n
	d.Src = fs.src
	d.File = fs.fid
	fs.pp.astObs.HandleTopLevelDecl(d)
}

var tagKinds = map[string]syntax.DeclKind{
	"class_specifier":  syntax.Class,
	"struct_specifier": syntax.Struct,
	"union_specifier":  syntax.Union,
	"enum_specifier":   syntax.Enum,
}

// registerTag records a class/struct/union/enum declaration or definition and,
// for definitions, its members.
func (fs *fileScanner) registerTag(n *sitter.Node, st scanState) *syntax.Decl {
	nn := n.ChildByFieldName("name")
	if nn == nil {
		// Anonymous aggregate: only its members matter.
		if body := n.ChildByFieldName("body"); body != nil {
			fs.scanChildren(body, st.nested())
		}
		return nil
	}
	name := fs.text(nn)
	body := n.ChildByFieldName("body")
	d := fs.register(&syntax.Decl{
		Name:         name,
		Qualified:    scopeJoin(st.scope, name),
		Kind:         tagKinds[n.Type()],
		IsDefinition: body != nil,
		IsTemplate:   st.template,
		IsFriend:     st.friend,
	}, nn)
	if body == nil {
		return d
	}
	if n.Type() == "enum_specifier" {
		// Unscoped enumerators land in the enclosing scope; scoped ones
		// (enum class) are qualified by the enum's name.
		inner := st.nested()
		if scopedEnum(n) {
			inner = st.withScope(name)
		}
		inner.class = false
		fs.scanChildren(body, inner)
		return d
	}
	inner := st.withScope(name)
	inner.class = true
	fs.scanChildren(body, inner)
	return d
}

func scopedEnum(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		switch n.Child(i).Type() {
		case "class", "struct":
			return true
		}
	}
	return false
}

// handleDeclaration processes a `declaration` node: an optional tag specifier
// in type position, then one declarator per declared name.
func (fs *fileScanner) handleDeclaration(n *sitter.Node, st scanState) {
	var first *syntax.Decl
	if t := n.ChildByFieldName("type"); t != nil {
		if _, isTag := tagKinds[t.Type()]; isTag {
			first = fs.registerTag(t, st)
		} else {
			fs.scan(t, st.nested())
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if tn := n.ChildByFieldName("type"); tn != nil && c.Equal(tn) {
			continue
		}
		if d := fs.handleDeclarator(c, st, false); d != nil && first == nil {
			first = d
		}
	}
	fs.deliver(first, n, st)
}

// handleDeclarator unwraps a declarator to its declared name and registers a
// function or variable. definition marks function bodies.
func (fs *fileScanner) handleDeclarator(c *sitter.Node, st scanState, definition bool) *syntax.Decl {
	switch c.Type() {
	case "init_declarator":
		d := fs.handleDeclarator(c.ChildByFieldName("declarator"), st, definition)
		if v := c.ChildByFieldName("value"); v != nil {
			fs.scan(v, st.nested())
		}
		return d
	case "pointer_declarator", "reference_declarator", "array_declarator", "parenthesized_declarator":
		if inner := c.ChildByFieldName("declarator"); inner != nil {
			return fs.handleDeclarator(inner, st, definition)
		}
		for i := 0; i < int(c.NamedChildCount()); i++ {
			if d := fs.handleDeclarator(c.NamedChild(i), st, definition); d != nil {
				return d
			}
		}
		return nil
	case "function_declarator":
		inner := c.ChildByFieldName("declarator")
		if inner == nil {
			return nil
		}
		name, qualified := fs.declaratorName(inner, st)
		if name == "" {
			return nil
		}
		params := 0
		var paramTypes []string
		if pl := c.ChildByFieldName("parameters"); pl != nil {
			for i := 0; i < int(pl.NamedChildCount()); i++ {
				p := pl.NamedChild(i)
				switch p.Type() {
				case "parameter_declaration", "optional_parameter_declaration", "variadic_parameter_declaration":
					params++
					written := ""
					if t := p.ChildByFieldName("type"); t != nil {
						written = fs.text(t)
					}
					paramTypes = append(paramTypes, written)
				}
			}
			fs.scan(pl, st.nested())
		}
		return fs.register(&syntax.Decl{
			Name:         name,
			Qualified:    qualified,
			Kind:         syntax.Function,
			IsDefinition: definition,
			IsTemplate:   st.template,
			IsFriend:     st.friend,
			ParamCount:   params,
			ParamTypes:   paramTypes,
		}, inner)
	case "identifier", "field_identifier":
		name := fs.text(c)
		kind := syntax.Variable
		if st.class {
			kind = syntax.Field
		}
		return fs.register(&syntax.Decl{
			Name:         name,
			Qualified:    scopeJoin(st.scope, name),
			Kind:         kind,
			IsDefinition: true,
			IsFriend:     st.friend,
		}, c)
	case "qualified_identifier", "operator_name":
		name, qualified := fs.declaratorName(c, st)
		if name == "" {
			return nil
		}
		return fs.register(&syntax.Decl{
			Name:         name,
			Qualified:    qualified,
			Kind:         syntax.Variable,
			IsDefinition: true,
		}, c)
	}
	return nil
}

// declaratorName resolves the declared name and its qualified form from the
// core of a declarator.
func (fs *fileScanner) declaratorName(c *sitter.Node, st scanState) (name, qualified string) {
	switch c.Type() {
	case "identifier", "field_identifier", "type_identifier", "operator_name", "destructor_name":
		name = fs.text(c)
		return name, scopeJoin(st.scope, name)
	case "qualified_identifier":
		qualified = fs.text(c)
		name = qualified
		if i := strings.LastIndex(qualified, "::"); i >= 0 {
			name = qualified[i+2:]
		}
		// An out-of-line member written at namespace scope still belongs
		// to its class: keep the written qualifier as the identity.
		return name, scopeJoin(st.scope, qualified)
	}
	return "", ""
}

// handleFunction registers a function definition (or method definition) and
// scans its parameters and body.
func (fs *fileScanner) handleFunction(n *sitter.Node, st scanState, topNode bool) {
	decl := n.ChildByFieldName("declarator")
	var d *syntax.Decl
	for c := decl; c != nil; {
		switch c.Type() {
		case "pointer_declarator", "reference_declarator":
			c = c.ChildByFieldName("declarator")
			continue
		case "function_declarator":
			d = fs.handleDeclarator(c, st, true)
		}
		break
	}
	if topNode {
		fs.deliver(d, n, st)
	}
	if t := n.ChildByFieldName("type"); t != nil {
		fs.scan(t, st.nested())
	}
	if body := n.ChildByFieldName("body"); body != nil {
		fs.scanChildren(body, st.nested())
	}
}

// handleFieldDecl processes a class member: nested tags, method declarations,
// and data members.
func (fs *fileScanner) handleFieldDecl(n *sitter.Node, st scanState) {
	if t := n.ChildByFieldName("type"); t != nil {
		if _, isTag := tagKinds[t.Type()]; isTag {
			fs.registerTag(t, st)
		} else {
			fs.scan(t, st.nested())
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if tn := n.ChildByFieldName("type"); tn != nil && c.Equal(tn) {
			continue
		}
		switch c.Type() {
		case "function_declarator", "field_identifier", "pointer_declarator",
			"reference_declarator", "array_declarator", "init_declarator":
			fs.handleDeclarator(c, st, false)
		default:
			fs.scan(c, st.nested())
		}
	}
}
