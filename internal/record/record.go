// Package record captures the preprocessor and parser events one analysis
// run needs: the #include directives of the main file, macro references from
// the main file, and the main file's top-level declarations. Recorded state
// is mutated only through the observer hooks during parsing and is frozen
// once parsing completes.
package record

import (
	"slices"

	"github.com/phobologic/includecheck/internal/parse"
	"github.com/phobologic/includecheck/internal/source"
	"github.com/phobologic/includecheck/internal/syntax"
	"github.com/phobologic/includecheck/internal/types"
)

// Policy tunes what counts as a use of a symbol.
//
// Marking more things used reduces false-positive "unused include"
// diagnostics at the cost of "missing include" ones; coding styles also
// differ on which includes a reference requires.
type Policy struct {
	// Construction counts constructing a type as a use even when the type
	// is not named at the construction site.
	Construction bool
	// Members counts member accesses as references to the member.
	Members bool
	// Operators counts overloaded operator calls as references.
	Operators bool
}

// Context bundles the policy, the macro symbol cache, and borrowed references
// to the frontend for one analysis run. It must not be copied after
// construction; the borrowed frontend state has to stay stable for the
// context's lifetime.
type Context struct {
	policy Policy
	pp     *parse.Preprocessor
	cache  *cache

	noCopy noCopy
}

type noCopy struct{}

func (noCopy) Lock()   {}
func (noCopy) Unlock() {}

// NewContext returns a context borrowing the given frontend.
func NewContext(policy Policy, pp *parse.Preprocessor) *Context {
	return &Context{policy: policy, pp: pp, cache: newCache()}
}

// Policy returns the run's policy.
func (c *Context) Policy() Policy { return c.policy }

// SourceManager returns the borrowed source manager.
func (c *Context) SourceManager() *source.Manager { return c.pp.SourceManager() }

// Preprocessor returns the borrowed frontend.
func (c *Context) Preprocessor() *parse.Preprocessor { return c.pp }

// Resolve looks up candidate declarations for a name.
func (c *Context) Resolve(name string) []*syntax.Decl {
	return c.pp.Decls().Resolve(name)
}

// MacroArgLoc maps a literal location inside a macro invocation's argument
// to its expansion location, if one was recorded.
func (c *Context) MacroArgLoc(loc source.Loc) (source.Loc, bool) {
	return c.pp.MacroArgLoc(loc)
}

// Macro interns a macro symbol for one particular definition.
func (c *Context) Macro(name string, def source.Loc) types.Symbol {
	return c.cache.macro(name, def)
}

// cache deduplicates macro symbols by (name, definition location). It is an
// append-only arena: a macro name is usually defined once, so lookups scan a
// short list.
type cache struct {
	definedMacros map[string][]*types.DefinedMacro
}

func newCache() *cache {
	return &cache{definedMacros: map[string][]*types.DefinedMacro{}}
}

func (c *cache) macro(name string, def source.Loc) types.Symbol {
	for _, dm := range c.definedMacros[name] {
		if dm.Definition == def {
			return types.MacroSymbol(dm)
		}
	}
	dm := &types.DefinedMacro{Name: name, Definition: def}
	c.definedMacros[name] = append(c.definedMacros[name], dm)
	return types.MacroSymbol(dm)
}

// RecordedPP holds the preprocessor events relevant to the analysis.
type RecordedPP struct {
	// MacroReferences are macro uses written in the main file.
	MacroReferences []types.SymbolReference
	// Includes are the #include directives of the main file.
	Includes types.RecordedIncludes
}

// Record returns the observer that populates this RecordedPP.
func (r *RecordedPP) Record(ctx *Context) parse.PPObserver {
	return &ppRecorder{ctx: ctx, recorded: r}
}

type ppRecorder struct {
	ctx      *Context
	recorded *RecordedPP
	active   bool
}

func (p *ppRecorder) FileChanged(loc source.Loc) {
	p.active = p.ctx.SourceManager().IsWrittenInMainFile(loc)
}

func (p *ppRecorder) InclusionDirective(hash source.Loc, spelled string, angled, keep bool, resolved *source.FileEntry) {
	if !p.active {
		return
	}
	p.recorded.Includes.Add(types.Include{
		Spelled:  spelled,
		Resolved: resolved,
		HashLoc:  hash,
		Line:     p.ctx.SourceManager().Line(hash),
		Angled:   angled,
		Keep:     keep,
	})
}

func (p *ppRecorder) MacroExpands(name parse.Token, mi *parse.MacroInfo) {
	if !p.active {
		return
	}
	p.recordMacroRef(name, mi)
}

func (p *ppRecorder) MacroDefined(name parse.Token, mi *parse.MacroInfo) {
	if !p.active {
		return
	}
	// The body tokens of a macro definition can refer to other macros.
	// Formally such a reference is not resolved until this macro expands,
	// but it is a use written in the main file all the same.
	for _, tok := range mi.Tokens {
		if !tok.HadMacroDefinition || slices.Contains(mi.Params, tok.Text) {
			continue
		}
		if cur := p.ctx.Preprocessor().MacroInfo(tok.Text); cur != nil {
			p.recordMacroRef(tok, cur)
		}
	}
}

func (p *ppRecorder) recordMacroRef(tok parse.Token, mi *parse.MacroInfo) {
	if mi.IsBuiltin {
		return // __FILE__ is not a reference
	}
	p.recorded.MacroReferences = append(p.recorded.MacroReferences, types.SymbolReference{
		Location: tok.Loc,
		Target:   p.ctx.Macro(mi.Name, mi.DefLoc),
	})
}

// RecordedAST holds the declarations written at file scope in the main file.
// These are the roots the AST walk traverses; walking the whole translation
// unit would find uses inside headers.
type RecordedAST struct {
	TopLevelDecls []*syntax.Decl
}

// Record returns the observer that populates this RecordedAST.
func (r *RecordedAST) Record(ctx *Context) parse.ASTObserver {
	return &astRecorder{ctx: ctx, recorded: r}
}

type astRecorder struct {
	ctx      *Context
	recorded *RecordedAST
}

func (a *astRecorder) HandleTopLevelDecl(d *syntax.Decl) {
	sm := a.ctx.SourceManager()
	if !sm.IsWrittenInMainFile(sm.ExpansionLoc(d.Loc)) {
		return
	}
	if d.IsImplicitInstantiation {
		return
	}
	// Declarations that belong to an enclosing entity would make the walk
	// revisit that entity's subtree.
	if d.SemanticallyNested {
		return
	}
	a.recorded.TopLevelDecls = append(a.recorded.TopLevelDecls, d)
}
