// Package diagnose turns analysis results into user-visible reports: a
// terminal renderer for the standalone tool and structured diagnostics for
// editor integration. It also owns the used/unused decision over the
// recorded include table.
package diagnose

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/phobologic/includecheck/internal/record"
	"github.com/phobologic/includecheck/internal/source"
	"github.com/phobologic/includecheck/internal/stdlib"
	"github.com/phobologic/includecheck/internal/types"
)

// Severity of a diagnostic.
type Severity int

const (
	Ignored Severity = iota
	Note
	Remark
	Warning
	Error
)

var severityLabels = map[Severity]string{
	Note:    "note",
	Remark:  "remark",
	Warning: "warning",
	Error:   "error",
}

var severityColors = map[Severity]*color.Color{
	Note:    color.New(color.FgCyan),
	Remark:  color.New(color.FgBlue),
	Warning: color.New(color.FgMagenta, color.Bold),
	Error:   color.New(color.FgRed, color.Bold),
}

// Options tunes the reporter.
type Options struct {
	// ShowSatisfied emits remarks for references whose header is included
	// and for used includes; otherwise both are suppressed.
	ShowSatisfied bool
	// Recover suppresses repeated "no header included" errors for a header
	// already reported missing.
	Recover bool
	// AnalyzeStdlib is the standard-library analysis setting. Finish does
	// not read it: the terminal report flags unmatched angle-bracket
	// includes whether or not it is set. MayConsiderUnused and Unused take
	// the setting as a parameter.
	AnalyzeStdlib bool
}

// Reporter consumes WalkUsed callbacks and renders diagnostics. It tracks
// which includes were used so Finish can report the unused ones.
type Reporter struct {
	ctx      *record.Context
	includes *types.RecordedIncludes
	opts     Options
	out      io.Writer

	recovered map[types.Header]struct{}
	used      map[int]types.Symbol // include ordinal -> first symbol it provided
	errors    int
}

// NewReporter returns a reporter writing human-readable diagnostics to out.
func NewReporter(ctx *record.Context, includes *types.RecordedIncludes, opts Options, out io.Writer) *Reporter {
	return &Reporter{
		ctx:       ctx,
		includes:  includes,
		opts:      opts,
		out:       out,
		recovered: map[types.Header]struct{}{},
		used:      map[int]types.Symbol{},
	}
}

// ErrorCount returns the number of error-severity diagnostics emitted.
func (r *Reporter) ErrorCount() int { return r.errors }

// Used reports the ordinals marked used so far.
func (r *Reporter) Used() map[int]types.Symbol { return r.used }

func (r *Reporter) satisfiedSeverity() Severity {
	if r.opts.ShowSatisfied {
		return Remark
	}
	return Ignored
}

func (r *Reporter) emit(loc source.Loc, sev Severity, format string, args ...any) {
	if sev == Ignored {
		return
	}
	if sev == Error {
		r.errors++
	}
	label := severityColors[sev].Sprint(severityLabels[sev])
	if loc.IsValid() {
		fmt.Fprintf(r.out, "%s: %s: %s\n", r.ctx.SourceManager().LocString(loc), label, fmt.Sprintf(format, args...))
		return
	}
	fmt.Fprintf(r.out, "%s: %s\n", label, fmt.Sprintf(format, args...))
}

// Reference handles one WalkUsed callback: it marks includes used and
// diagnoses the reference as satisfied, unsatisfied, or of unknown
// provenance.
//
// Only the best included provider marks its directives used: headers are
// ranked, so the first one that is satisfied wins. Marking every provider
// would keep an include alive just because it carries a redundant forward
// declaration of a symbol whose definition is included anyway.
func (r *Reporter) Reference(loc source.Loc, sym types.Symbol, headers []types.Header) {
	for _, h := range headers {
		if h.Kind() == types.BuiltinHeader || h.Kind() == types.MainFileHeader {
			r.emit(loc, r.satisfiedSeverity(), "%s '%s' provided by %s", sym.NodeName(), sym.Name(), h.Name())
			return
		}
		if matches := r.includes.Match(h); len(matches) > 0 {
			for _, ord := range matches {
				if _, ok := r.used[ord]; !ok {
					r.used[ord] = sym
				}
			}
			r.emit(loc, r.satisfiedSeverity(), "%s '%s' provided by %s", sym.NodeName(), sym.Name(), r.includes.At(matches[0]).Spelled)
			return
		}
	}
	if r.opts.Recover {
		for _, h := range headers {
			if _, ok := r.recovered[h]; ok {
				r.emit(loc, r.satisfiedSeverity(), "%s '%s' provided by %s", sym.NodeName(), sym.Name(), h.Name())
				return
			}
		}
	}
	if len(headers) == 0 {
		r.emit(loc, Warning, "unknown header provides %s '%s'", sym.NodeName(), sym.Name())
	} else {
		r.emit(loc, Error, "no header included for %s '%s'", sym.NodeName(), sym.Name())
	}
	for _, h := range headers {
		r.recovered[h] = struct{}{}
		r.emit(source.Loc{}, Note, "provided by %s", h.Name())
	}
}

// Finish diagnoses the include table: one used remark or unused error per
// directive. The tool reports every unmatched directive except keep-annotated
// ones; the wider eligibility rules of MayConsiderUnused belong to the editor
// surface, where a false positive is costlier than a missed one.
func (r *Reporter) Finish() {
	for ord, inc := range r.includes.All() {
		if sym, ok := r.used[ord]; ok {
			r.emit(inc.HashLoc, r.satisfiedSeverity(), "include provides %s '%s'", sym.NodeName(), sym.Name())
			continue
		}
		if inc.Keep {
			continue
		}
		r.emit(inc.HashLoc, Error, "include is unused")
	}
}

// MayConsiderUnused applies the exclusion rules for the unused check:
// keep-annotated directives are never unused; angle-bracket includes are
// only eligible under stdlib analysis and only for recognized standard
// headers; files without an include guard can be included for their side
// effects and are never reported.
func MayConsiderUnused(ctx *record.Context, inc *types.Include, analyzeStdlib bool) bool {
	if inc.Keep {
		return false
	}
	if inc.Angled {
		if !analyzeStdlib {
			return false
		}
		_, known := stdlib.HeaderNamed(inc.Spelled)
		return known
	}
	if inc.Resolved == nil {
		return false
	}
	return ctx.Preprocessor().IsSelfContained(inc.Resolved)
}

// Unused returns the ordinals of eligible directives not marked used.
func Unused(ctx *record.Context, includes *types.RecordedIncludes, used map[int]types.Symbol, analyzeStdlib bool) []int {
	var out []int
	for ord, inc := range includes.All() {
		if _, ok := used[ord]; ok {
			continue
		}
		if !MayConsiderUnused(ctx, &inc, analyzeStdlib) {
			continue
		}
		out = append(out, ord)
	}
	return out
}
