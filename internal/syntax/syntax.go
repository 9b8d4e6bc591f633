// Package syntax models named C/C++ declarations extracted from a parse.
// Redeclarations of one entity are linked through a canonical declaration so
// that a reference to any redecl identifies the same symbol.
package syntax

import (
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/includecheck/internal/source"
)

// DeclKind is the syntactic kind of a named declaration.
type DeclKind string

const (
	Class        DeclKind = "class"
	Struct       DeclKind = "struct"
	Union        DeclKind = "union"
	Enum         DeclKind = "enum"
	EnumConstant DeclKind = "enumerator"
	Typedef      DeclKind = "typedef"
	Alias        DeclKind = "type alias"
	Using        DeclKind = "using"
	Function     DeclKind = "function"
	Variable     DeclKind = "variable"
	Field        DeclKind = "field"
	Namespace    DeclKind = "namespace"
)

// Decl is one written declaration of a named entity.
type Decl struct {
	Name      string // unqualified name
	Qualified string // name with enclosing namespaces, e.g. std::vector
	Kind      DeclKind
	Loc       source.Loc // location of the name token

	IsDefinition bool     // this redecl is the entity's definition
	IsFriend     bool     // written as a friend declaration
	IsTemplate   bool     // class or function template
	ParamCount   int      // functions: number of parameters
	ParamTypes   []string // functions: written type per parameter
	UsingTarget  string   // using-declarations: the qualified target name

	// IsImplicitInstantiation marks compiler-generated template
	// instantiations; SemanticallyNested marks declarations that are
	// syntactically top-level but belong to an enclosing entity. The
	// recorder rejects both from the top-level list.
	IsImplicitInstantiation bool
	SemanticallyNested      bool

	// Subtree for the AST walk; set on declarations handed to the walker.
	Node *sitter.Node
	Src  []byte
	File source.FileID

	canonical *Decl
	redecls   []*Decl // only on the canonical decl, in declaration order
}

// Canonical returns the first-seen declaration of this entity.
func (d *Decl) Canonical() *Decl {
	if d.canonical == nil {
		return d
	}
	return d.canonical
}

// Redecls returns all declarations of this entity in declaration order.
func (d *Decl) Redecls() []*Decl {
	c := d.Canonical()
	if len(c.redecls) == 0 {
		return []*Decl{c}
	}
	return c.redecls
}

// IsTagKind reports whether the declaration introduces a tag type.
func (d *Decl) IsTagKind() bool {
	switch d.Kind {
	case Class, Struct, Union, Enum:
		return true
	}
	return false
}

// unifyKey groups redeclarations of one entity. Functions carry their arity
// so overloads stay distinct entities.
func (d *Decl) unifyKey() string {
	key := d.Qualified
	switch d.Kind {
	case Function:
		key += "#" + strconv.Itoa(d.ParamCount)
	case Typedef, Alias:
		key += "@type"
	case Variable, Field:
		key += "@var"
	case Namespace:
		key += "@ns"
	case EnumConstant:
		key += "@enum"
	case Using:
		key += "@using"
	}
	// Tag kinds share a key: `struct S;` and `class S { ... };` redeclare
	// the same entity.
	return key
}

// Table indexes canonical declarations by name.
type Table struct {
	byKey       map[string]*Decl
	byName      map[string][]*Decl
	byQualified map[string][]*Decl
}

// NewTable returns an empty declaration table.
func NewTable() *Table {
	return &Table{
		byKey:       map[string]*Decl{},
		byName:      map[string][]*Decl{},
		byQualified: map[string][]*Decl{},
	}
}

// Add records a declaration, linking it to the canonical declaration of its
// entity if one was seen before. It returns d with canonical links in place.
func (t *Table) Add(d *Decl) *Decl {
	key := d.unifyKey()
	if c, ok := t.byKey[key]; ok {
		d.canonical = c
		c.redecls = append(c.redecls, d)
		return d
	}
	d.canonical = nil
	d.redecls = []*Decl{d}
	t.byKey[key] = d
	t.byName[d.Name] = append(t.byName[d.Name], d)
	if d.Qualified != d.Name {
		t.byQualified[d.Qualified] = append(t.byQualified[d.Qualified], d)
	}
	return d
}

// Resolve returns the canonical declarations matching name, which may be
// qualified. Multiple results form an overload set.
func (t *Table) Resolve(name string) []*Decl {
	if ds := t.byQualified[name]; len(ds) > 0 {
		return ds
	}
	return t.byName[name]
}

// ResolveOne returns the first canonical declaration matching name, or nil.
func (t *Table) ResolveOne(name string) *Decl {
	ds := t.Resolve(name)
	if len(ds) == 0 {
		return nil
	}
	return ds[0]
}
