package analyze

import (
	"github.com/phobologic/includecheck/internal/stdlib"
	"github.com/phobologic/includecheck/internal/syntax"
	"github.com/phobologic/includecheck/internal/types"
)

// declHint marks redeclarations that provide the complete entity: tag
// definitions (including class templates) and function template definitions.
// A plain function definition is no more complete than its prototype.
func declHint(d *syntax.Decl) types.Hint {
	if !d.IsDefinition {
		return types.HintNone
	}
	if d.IsTagKind() {
		return types.HintComplete
	}
	if d.IsTemplate && d.Kind == syntax.Function {
		return types.HintComplete
	}
	return types.HintNone
}

// locateDecl finds the locations where a declaration is provided. A
// declaration the standard-library recognizer knows is provided by its
// logical stdlib location alone; everything else is provided by each of its
// redeclarations.
func locateDecl(d *syntax.Decl) []hinted[types.Location] {
	if sym, ok := stdlib.Lookup(d.Qualified); ok {
		return []hinted[types.Location]{{value: types.StdlibLocation(sym)}}
	}
	var out []hinted[types.Location]
	for _, rd := range d.Redecls() {
		// `friend X` is not a forward declaration of X; it provides
		// nothing.
		if rd.IsFriend {
			continue
		}
		if !rd.Loc.IsValid() {
			continue
		}
		out = append(out, hinted[types.Location]{
			value: types.PhysicalLocation(rd.Loc),
			hint:  declHint(rd),
		})
	}
	return out
}

// locateMacro finds where a macro is provided: its definition.
func locateMacro(m *types.DefinedMacro) hinted[types.Location] {
	return hinted[types.Location]{value: types.PhysicalLocation(m.Definition)}
}
