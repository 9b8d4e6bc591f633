// Package types defines the sum types of the include analysis:
//
//	AST node => Symbol => Location => Header => matched #include
//
// A Symbol is a declaration or a macro; a Location is a physical position or
// a logical standard-library symbol; a Header is an includable unit in one of
// five flavors. Header values are comparable, so they can be used as map keys
// directly.
package types

import (
	"strings"

	"github.com/phobologic/includecheck/internal/source"
	"github.com/phobologic/includecheck/internal/stdlib"
	"github.com/phobologic/includecheck/internal/syntax"
)

// DefinedMacro identifies a macro together with one particular definition of
// it. Redefinitions under the same name are distinct symbols.
type DefinedMacro struct {
	Name       string
	Definition source.Loc
}

// SymbolKind discriminates Symbol.
type SymbolKind uint8

const (
	Macro SymbolKind = iota
	Declaration
)

// Symbol is an entity that can be referenced: a named declaration or a
// defined macro.
type Symbol struct {
	decl  *syntax.Decl
	macro *DefinedMacro
}

// DeclSymbol wraps a named declaration.
func DeclSymbol(d *syntax.Decl) Symbol { return Symbol{decl: d} }

// MacroSymbol wraps a macro definition.
func MacroSymbol(m *DefinedMacro) Symbol { return Symbol{macro: m} }

// Kind reports which variant the symbol holds.
func (s Symbol) Kind() SymbolKind {
	if s.decl != nil {
		return Declaration
	}
	return Macro
}

// Declaration returns the declaration variant; nil for macros.
func (s Symbol) Declaration() *syntax.Decl { return s.decl }

// Macro returns the macro variant; nil for declarations.
func (s Symbol) Macro() *DefinedMacro { return s.macro }

// Name returns the symbol's user-visible name.
func (s Symbol) Name() string {
	if s.decl != nil {
		return s.decl.Name
	}
	if s.macro != nil {
		return s.macro.Name
	}
	return ""
}

// NodeName returns the symbol's kind for diagnostics, e.g. "macro" or
// "function".
func (s Symbol) NodeName() string {
	if s.decl != nil {
		return string(s.decl.Kind)
	}
	return "macro"
}

// SymbolReference is a usage of a symbol at a particular location.
type SymbolReference struct {
	Location source.Loc
	Target   Symbol
}

// LocationKind discriminates Location.
type LocationKind uint8

const (
	PhysicalLoc LocationKind = iota
	StandardLibraryLoc
)

// Location is a place where a symbol can be provided: a physical part of the
// translation unit or a logical standard-library location.
type Location struct {
	kind     LocationKind
	physical source.Loc
	stdlib   stdlib.Symbol
}

// PhysicalLocation wraps a source location.
func PhysicalLocation(l source.Loc) Location {
	return Location{kind: PhysicalLoc, physical: l}
}

// StdlibLocation wraps a standard-library symbol.
func StdlibLocation(s stdlib.Symbol) Location {
	return Location{kind: StandardLibraryLoc, stdlib: s}
}

// Kind reports which variant the location holds.
func (l Location) Kind() LocationKind { return l.kind }

// Physical returns the source-location variant.
func (l Location) Physical() source.Loc { return l.physical }

// Stdlib returns the standard-library variant.
func (l Location) Stdlib() stdlib.Symbol { return l.stdlib }

// Name renders the location for diagnostics.
func (l Location) Name(sm *source.Manager) string {
	switch l.kind {
	case PhysicalLoc:
		return sm.LocString(l.physical)
	case StandardLibraryLoc:
		return l.stdlib.Name()
	}
	return ""
}

// HeaderKind discriminates Header.
type HeaderKind uint8

const (
	PhysicalHeader HeaderKind = iota
	StandardLibraryHeader
	VerbatimHeader
	BuiltinHeader
	MainFileHeader
)

// Header is an includable unit that can provide access to locations.
// The zero value is an empty physical header and is not meaningful.
type Header struct {
	kind     HeaderKind
	physical *source.FileEntry
	stdlib   stdlib.Header
	verbatim string
}

// PhysicalH wraps a concrete file.
func PhysicalH(fe *source.FileEntry) Header {
	return Header{kind: PhysicalHeader, physical: fe}
}

// StdlibH wraps a logical standard header.
func StdlibH(h stdlib.Header) Header {
	return Header{kind: StandardLibraryHeader, stdlib: h}
}

// VerbatimH wraps a textual spelling emitted as-is.
func VerbatimH(spelling string) Header {
	return Header{kind: VerbatimHeader, verbatim: spelling}
}

// Builtin is the compiler's predefines region.
func Builtin() Header { return Header{kind: BuiltinHeader} }

// MainFile is the translation unit's own primary file.
func MainFile() Header { return Header{kind: MainFileHeader} }

// Kind reports which variant the header holds.
func (h Header) Kind() HeaderKind { return h.kind }

// Physical returns the file variant.
func (h Header) Physical() *source.FileEntry { return h.physical }

// Stdlib returns the standard-header variant.
func (h Header) Stdlib() stdlib.Header { return h.stdlib }

// Verbatim returns the verbatim spelling variant.
func (h Header) Verbatim() string { return h.verbatim }

// Name renders the header for diagnostics.
func (h Header) Name() string {
	switch h.kind {
	case PhysicalHeader:
		return h.physical.Path
	case StandardLibraryHeader:
		return h.stdlib.Name()
	case VerbatimHeader:
		return h.verbatim
	case BuiltinHeader:
		return "<built-in>"
	case MainFileHeader:
		return "<main-file>"
	}
	return ""
}

// Less is a total order over headers: by kind, then by payload. Used for the
// ranker's dedupe pass; equal headers are adjacent after a stable sort.
func (h Header) Less(o Header) bool {
	if h.kind != o.kind {
		return h.kind < o.kind
	}
	switch h.kind {
	case PhysicalHeader:
		return h.physical.Path < o.physical.Path
	case StandardLibraryHeader:
		return h.stdlib < o.stdlib
	case VerbatimHeader:
		return h.verbatim < o.verbatim
	}
	return false // Builtin and MainFile carry no payload
}

// Hint carries advisory ranking bits for a candidate header. Hints never
// affect whether a header is a correct provider, only preference order.
type Hint uint8

const (
	HintNone Hint = 0
	// HintComplete marks a provider that is the entity's definition.
	HintComplete Hint = 1 << 0
	// HintNameMatch marks a header whose name matches the symbol's.
	HintNameMatch Hint = 1 << 1
)

// Include is one #include directive written in the main file.
type Include struct {
	Spelled  string            // text between the delimiters, e.g. vector
	Resolved *source.FileEntry // file the preprocessor found, or nil
	HashLoc  source.Loc        // location of the #
	Line     int               // 1-based line of the #
	Angled   bool              // written with <> rather than ""
	Keep     bool              // carries a keep annotation
}

// RecordedIncludes is the table of #include directives recorded from the
// main file, in textual order, with secondary indices by spelling and by
// resolved file. Duplicate directives keep separate ordinals.
type RecordedIncludes struct {
	all        []Include
	bySpelling map[string][]int
	byFile     map[*source.FileEntry][]int
}

// Add appends a directive and updates both indices.
func (r *RecordedIncludes) Add(inc Include) {
	if r.bySpelling == nil {
		r.bySpelling = map[string][]int{}
		r.byFile = map[*source.FileEntry][]int{}
	}
	ord := len(r.all)
	r.all = append(r.all, inc)
	r.bySpelling[inc.Spelled] = append(r.bySpelling[inc.Spelled], ord)
	if inc.Resolved != nil {
		r.byFile[inc.Resolved] = append(r.byFile[inc.Resolved], ord)
	}
}

// All returns the directives in the order they appear.
func (r *RecordedIncludes) All() []Include { return r.all }

// At returns the directive with the given ordinal.
func (r *RecordedIncludes) At(ord int) *Include { return &r.all[ord] }

// Match returns the ordinals of directives that satisfy a header:
// physical headers match on the resolved file, standard and verbatim headers
// on the spelling. Builtin and the main file never match. The result is
// sorted and free of duplicates.
func (r *RecordedIncludes) Match(h Header) []int {
	var ords []int
	switch h.Kind() {
	case PhysicalHeader:
		ords = r.byFile[h.Physical()]
	case StandardLibraryHeader:
		ords = r.bySpelling[strings.Trim(h.Stdlib().Name(), "<>")]
	case VerbatimHeader:
		ords = r.bySpelling[h.Verbatim()]
	case BuiltinHeader, MainFileHeader:
		return nil
	}
	// Each index list is already sorted and duplicate-free: ordinals are
	// appended in increasing order and each ordinal lands in one bucket.
	out := make([]int, len(ords))
	copy(out, ords)
	return out
}
