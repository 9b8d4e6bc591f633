package diagnose

import (
	"github.com/phobologic/includecheck/internal/analyze"
	"github.com/phobologic/includecheck/internal/record"
	"github.com/phobologic/includecheck/internal/source"
	"github.com/phobologic/includecheck/internal/types"
)

// Position is a zero-based line/character pair, as editors count.
type Position struct {
	Line      int
	Character int
}

// Range is a half-open text range.
type Range struct {
	Start Position
	End   Position
}

// Edit replaces a range with new text.
type Edit struct {
	Range   Range
	NewText string
}

// Fix is one suggested change with the edits that implement it.
type Fix struct {
	Message string
	Edits   []Edit
}

// Diag is a structured diagnostic for editor integration.
type Diag struct {
	Range    Range
	Message  string
	Severity Severity
	// Source identifies this analyzer to the editor.
	Source string
	// Unnecessary hints that the range is unneeded code.
	Unnecessary bool
	Fixes       []Fix
}

// DiagSource tags diagnostics produced by this analyzer.
const DiagSource = "includecheck"

// IssueUnusedIncludeDiagnostics analyzes a parsed translation unit and
// returns one diagnostic per unused include. Each diagnostic spans the
// directive from its # to the end of the line and carries a single fix that
// deletes the directive's line.
func IssueUnusedIncludeDiagnostics(ctx *record.Context, pp *record.RecordedPP, ast *record.RecordedAST, analyzeStdlib bool) []Diag {
	used := map[int]types.Symbol{}
	analyze.WalkUsed(ctx, ast.TopLevelDecls, pp.MacroReferences,
		func(_ source.Loc, sym types.Symbol, headers []types.Header) {
			// The best included provider satisfies the reference; further
			// candidates only carry redundant redeclarations.
			for _, h := range headers {
				if h.Kind() == types.BuiltinHeader || h.Kind() == types.MainFileHeader {
					return
				}
				if matches := pp.Includes.Match(h); len(matches) > 0 {
					for _, ord := range matches {
						if _, ok := used[ord]; !ok {
							used[ord] = sym
						}
					}
					return
				}
			}
		})

	sm := ctx.SourceManager()
	var diags []Diag
	for _, ord := range Unused(ctx, &pp.Includes, used, analyzeStdlib) {
		inc := pp.Includes.At(ord)
		line, col := sm.Position(inc.HashLoc)
		rest := sm.RestOfLine(inc.HashLoc)
		d := Diag{
			Range: Range{
				Start: Position{Line: line - 1, Character: col - 1},
				End:   Position{Line: line - 1, Character: col - 1 + len(rest)},
			},
			Message:     "include is unused",
			Severity:    Warning,
			Source:      DiagSource,
			Unnecessary: true,
			Fixes: []Fix{{
				Message: "remove #include directive",
				Edits: []Edit{{
					Range: Range{
						Start: Position{Line: inc.Line - 1},
						End:   Position{Line: inc.Line},
					},
					NewText: "",
				}},
			}},
		}
		diags = append(diags, d)
	}
	return diags
}
