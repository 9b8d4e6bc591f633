package analyze

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/includecheck/internal/record"
	"github.com/phobologic/includecheck/internal/source"
	"github.com/phobologic/includecheck/internal/syntax"
	"github.com/phobologic/includecheck/internal/types"
)

// declCallback receives one (use location, referenced declaration) pair.
// The declaration is already canonicalized.
type declCallback func(loc source.Loc, d *syntax.Decl, hint types.Hint)

// walkAST traverses one top-level declaration's subtree and reports the
// declarations it references.
func walkAST(ctx *record.Context, root *syntax.Decl, cb declCallback) {
	// A function definition that redeclares an earlier prototype counts as
	// a reference to that declaration.
	if root.Kind == syntax.Function && root.IsDefinition && root.Canonical() != root {
		w := &walker{ctx: ctx, cb: cb}
		w.report(root.Loc, root.Canonical())
	}
	if root.Node == nil {
		return
	}
	w := &walker{
		ctx:  ctx,
		cb:   cb,
		src:  root.Src,
		file: root.File,
	}
	w.walk(root.Node)
}

type walker struct {
	ctx  *record.Context
	cb   declCallback
	src  []byte
	file source.FileID

	// typeLoc is the begin location of the nearest enclosing written type;
	// tag and typedef references report there rather than at their own
	// token. Saved and restored around descent into nested types.
	typeLoc source.Loc
	inType  bool
}

func (w *walker) loc(n *sitter.Node) source.Loc {
	return source.Loc{File: w.file, Offset: int(n.StartByte())}
}

func (w *walker) text(n *sitter.Node) string {
	return string(w.src[n.StartByte():n.EndByte()])
}

func (w *walker) walk(n *sitter.Node) {
	switch n.Type() {
	case "comment",
		"preproc_include", "preproc_def", "preproc_function_def", "preproc_call",
		"string_literal", "char_literal", "number_literal", "raw_string_literal":
		return

	case "identifier":
		if isDeclaratorName(n) {
			return
		}
		w.reportName(w.loc(n), w.text(n), false)
		return

	case "field_identifier":
		if isDeclaratorName(n) {
			return
		}
		// Member accesses count only under the Members policy; so do
		// unresolved member overload sets.
		if !w.ctx.Policy().Members {
			return
		}
		w.reportName(w.loc(n), w.text(n), true)
		return

	case "type_identifier":
		if isTagDeclName(n) || isDeclaratorName(n) {
			return
		}
		w.reportName(w.typeLocOr(n), w.text(n), false)
		return

	case "qualified_identifier":
		at := w.loc(n)
		if w.inType {
			at = w.typeLoc
		}
		name := w.text(n)
		if len(w.ctx.Resolve(name)) > 0 {
			w.reportName(at, name, false)
			return
		}
		// Unknown as a whole: fall back to the trailing name.
		if nm := n.ChildByFieldName("name"); nm != nil {
			w.walk(nm)
		}
		return

	case "template_type":
		// Both the primary template and any specialized record unify in
		// the declaration table, so one report covers both.
		if nm := n.ChildByFieldName("name"); nm != nil {
			w.reportName(w.typeLocOr(nm), w.text(nm), false)
		}
		if args := n.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				w.walkType(args.NamedChild(i))
			}
		}
		return

	case "operator_name":
		if !w.ctx.Policy().Operators {
			return
		}
		w.reportName(w.loc(n), w.text(n), false)
		return

	case "binary_expression", "unary_expression", "update_expression":
		if w.ctx.Policy().Operators {
			if op := n.ChildByFieldName("operator"); op != nil {
				w.reportName(w.loc(op), "operator"+w.text(op), false)
			}
		}
		w.walkChildren(n)
		return

	case "using_declaration":
		// Report every target the using-declaration shadows, at the
		// using-declaration itself.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "qualified_identifier" || c.Type() == "identifier" {
				for _, d := range w.ctx.Resolve(w.text(c)) {
					w.report(w.loc(n), d)
				}
			}
		}
		return

	case "call_expression":
		if w.ctx.Policy().Construction {
			w.reportBracedArgs(n)
		}
		w.walkChildren(n)
		return

	case "type_descriptor":
		w.walkChildren(n)
		return

	case "base_class_clause":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "type_identifier", "template_type", "qualified_identifier":
				w.walkType(c)
			}
		}
		return
	}

	w.walkChildren(n)
}

// walkChildren descends generically, wrapping children in type position so
// that type references report at the enclosing type's begin location.
func (w *walker) walkChildren(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if n.FieldNameForChild(i) == "type" {
			w.walkType(c)
			continue
		}
		w.walk(c)
	}
}

// walkType visits a written type. Each nested type location overrides the
// report location for the references inside it; the previous state is
// restored afterwards.
func (w *walker) walkType(n *sitter.Node) {
	savedLoc, savedIn := w.typeLoc, w.inType
	w.typeLoc, w.inType = w.loc(n), true
	w.walk(n)
	w.typeLoc, w.inType = savedLoc, savedIn
}

func (w *walker) typeLocOr(n *sitter.Node) source.Loc {
	if w.inType && w.typeLoc.IsValid() {
		return w.typeLoc
	}
	return w.loc(n)
}

// reportBracedArgs counts a braced initializer passed to a known function as
// a construction of the parameter's type. The constructed type is never
// written at the call site, so nothing else reports it.
func (w *walker) reportBracedArgs(n *sitter.Node) {
	args := n.ChildByFieldName("arguments")
	fn := n.ChildByFieldName("function")
	if args == nil || fn == nil {
		return
	}
	var callee *syntax.Decl
	switch fn.Type() {
	case "identifier", "qualified_identifier":
		nargs := int(args.NamedChildCount())
		for _, d := range w.ctx.Resolve(w.text(fn)) {
			if d.Kind != syntax.Function {
				continue
			}
			if callee == nil || d.ParamCount == nargs {
				callee = d
			}
			if d.ParamCount == nargs {
				break
			}
		}
	}
	if callee == nil {
		return
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		a := args.NamedChild(i)
		if a.Type() != "initializer_list" || i >= len(callee.ParamTypes) {
			continue
		}
		if d := w.resolveTypeName(callee.ParamTypes[i]); d != nil {
			w.report(w.loc(a), d)
		}
	}
}

// resolveTypeName maps a written parameter type to its declaration, cutting
// template arguments off when the full spelling is unknown.
func (w *walker) resolveTypeName(name string) *syntax.Decl {
	if name == "" {
		return nil
	}
	if ds := w.ctx.Resolve(name); len(ds) > 0 {
		return ds[0]
	}
	if i := strings.Index(name, "<"); i > 0 {
		if ds := w.ctx.Resolve(name[:i]); len(ds) > 0 {
			return ds[0]
		}
	}
	return nil
}

// reportName resolves a name against the declaration table and reports the
// result. A name resolving to several declarations is an overload set; every
// candidate is reported.
func (w *walker) reportName(at source.Loc, name string, member bool) {
	cands := w.ctx.Resolve(name)
	if len(cands) == 0 {
		return
	}
	if len(cands) == 1 {
		d := cands[0]
		if !w.ctx.Policy().Operators && d.Kind == syntax.Function && isOperatorName(d.Name) {
			return
		}
		w.report(at, d)
		return
	}
	if member && !w.ctx.Policy().Members {
		return
	}
	for _, d := range cands {
		w.report(at, d)
	}
}

// report hands one reference to the callback. A location inside a recorded
// macro invocation's argument is first resolved to its expansion entry; macro
// locations are then walked up through macro-argument expansions to the
// spelling written by the caller, and references spelled inside macro bodies
// are dropped, the recorder captures those at definition time.
func (w *walker) report(loc source.Loc, d *syntax.Decl) {
	sm := w.ctx.SourceManager()
	if mloc, ok := w.ctx.MacroArgLoc(loc); ok {
		loc = mloc
	}
	for sm.IsMacroID(loc) {
		exp, ok := sm.ExpansionInfo(loc.File)
		if !ok || !exp.MacroArg {
			return
		}
		loc = exp.Spelling.WithOffset(loc.Offset)
	}
	if d == nil {
		return
	}
	w.cb(loc, d.Canonical(), types.HintNone)
}

func isOperatorName(name string) bool {
	return strings.HasPrefix(name, "operator") && len(name) > len("operator") &&
		!isIdentByte(name[len("operator")])
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// isDeclaratorName reports whether an identifier node is the name being
// declared rather than a use of an existing name.
func isDeclaratorName(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	switch p.Type() {
	case "init_declarator", "function_declarator", "parameter_declaration",
		"optional_parameter_declaration", "array_declarator",
		"pointer_declarator", "reference_declarator", "declaration",
		"field_declaration", "enumerator", "type_definition":
		for i := 0; i < int(p.ChildCount()); i++ {
			c := p.Child(i)
			if !c.Equal(n) {
				continue
			}
			switch p.FieldNameForChild(i) {
			case "declarator", "name":
				return true
			}
		}
	}
	return false
}

// isTagDeclName reports whether a type_identifier is the name field of a tag
// specifier that declares the tag (a definition, or a standalone forward
// declaration) rather than an elaborated type reference like `struct S x;`.
func isTagDeclName(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	switch p.Type() {
	case "class_specifier", "struct_specifier", "union_specifier", "enum_specifier":
	default:
		return false
	}
	nm := p.ChildByFieldName("name")
	if nm == nil || !nm.Equal(n) {
		return false
	}
	// With a body it is a definition; without one, it is only a reference
	// when written in type position inside another declaration.
	if p.ChildByFieldName("body") != nil {
		return true
	}
	gp := p.Parent()
	if gp == nil {
		return true
	}
	switch gp.Type() {
	case "translation_unit", "declaration_list", "field_declaration_list",
		"template_declaration":
		return true // forward declaration
	}
	return false
}
