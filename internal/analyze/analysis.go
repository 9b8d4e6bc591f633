// Package analyze finds and reports all symbol references in a region of
// code, chaining several mappings:
//
//	AST => AST node => declaration => location => header
//	                  /
//	macro expansion =>
//
// It can be used to diagnose missing includes (a referenced symbol's headers
// match no #include in the main file) and unused includes (a #include matches
// the headers of no referenced symbol). Matching headers against directives
// is the RecordedIncludes table's job.
package analyze

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/phobologic/includecheck/internal/record"
	"github.com/phobologic/includecheck/internal/source"
	"github.com/phobologic/includecheck/internal/syntax"
	"github.com/phobologic/includecheck/internal/types"
)

// hinted pairs a value with advisory ranking bits.
type hinted[T any] struct {
	value T
	hint  types.Hint
}

func addHint[T any](h types.Hint, items []hinted[T]) {
	for i := range items {
		items[i].hint |= h
	}
}

// prefer orders hints: name-matched headers first, then complete providers.
func prefer(l, r types.Hint) bool {
	if (l^r)&types.HintNameMatch != 0 {
		return l&types.HintNameMatch != 0
	}
	if (l^r)&types.HintComplete != 0 {
		return l&types.HintComplete != 0
	}
	return false
}

// addNameMatchHint marks physical candidates whose filename stem equals the
// referenced name, case-insensitively.
func addNameMatchHint(name string, headers []hinted[types.Header]) {
	if name == "" {
		return
	}
	for i := range headers {
		h := headers[i].value
		if h.Kind() != types.PhysicalHeader {
			continue
		}
		base := h.Physical().Name()
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if strings.EqualFold(stem, name) {
			headers[i].hint |= types.HintNameMatch
		}
	}
}

// rank deduplicates and orders candidate headers. Equal headers fold into
// one, OR-combining their hints; the result is ordered by hint preference
// with ties keeping insertion order, and the first header is the preferred
// provider. Hints are dropped from the result.
func rank(candidates []hinted[types.Header]) []types.Header {
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return candidates[idx[i]].value.Less(candidates[idx[j]].value)
	})
	// folded holds the first occurrence of each distinct header.
	var folded []int
	for _, i := range idx {
		if n := len(folded); n > 0 && candidates[folded[n-1]].value == candidates[i].value {
			candidates[folded[n-1]].hint |= candidates[i].hint
			continue
		}
		folded = append(folded, i)
	}
	sort.Ints(folded)
	sort.SliceStable(folded, func(i, j int) bool {
		return prefer(candidates[folded[i]].hint, candidates[folded[j]].hint)
	})
	headers := make([]types.Header, len(folded))
	for i, k := range folded {
		headers[i] = candidates[k].value
	}
	return headers
}

// UsedSymbolVisitor is called once per symbol reference, in traversal order.
// ProvidedBy is ranked; its first element is the preferred header, e.g. the
// one an insertion fix would pick. It may be empty.
type UsedSymbolVisitor func(usedAt source.Loc, used types.Symbol, providedBy []types.Header)

// WalkUsed finds all references to symbols in a region of code and reports
// each with the headers that provide it.
//
// The AST traversal is rooted at astRoots, typically the main file's
// top-level declarations. macroRefs are recorded macro references, which do
// not appear in the AST. Every reference is processed independently; no
// reference can abort the walk, and the visitor runs even when the ranked
// header list is empty.
func WalkUsed(ctx *record.Context, astRoots []*syntax.Decl, macroRefs []types.SymbolReference, visit UsedSymbolVisitor) {
	for _, root := range astRoots {
		walkAST(ctx, root, func(refLoc source.Loc, nd *syntax.Decl, ndHint types.Hint) {
			locations := locateDecl(nd)
			var headers []hinted[types.Header]
			for _, loc := range locations {
				locHeaders := includableHeader(ctx, loc.value)
				addHint(loc.hint, locHeaders)
				headers = append(headers, locHeaders...)
			}
			addHint(ndHint, headers)
			addNameMatchHint(nd.Name, headers)
			visit(refLoc, types.DeclSymbol(nd), rank(headers))
		})
	}
	for _, macroRef := range macroRefs {
		m := macroRef.Target.Macro()
		if m == nil {
			continue
		}
		loc := locateMacro(m)
		headers := includableHeader(ctx, loc.value)
		addHint(loc.hint, headers)
		addNameMatchHint(m.Name, headers)
		visit(macroRef.Location, macroRef.Target, rank(headers))
	}
}
