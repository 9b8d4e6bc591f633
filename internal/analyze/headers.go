package analyze

import (
	"github.com/phobologic/includecheck/internal/record"
	"github.com/phobologic/includecheck/internal/types"
)

// includableHeader finds the header(s) that expose a provider location.
//
// Known gaps, resolved to the literal containing file for now: files that are
// not self-contained (e.g. *.def), private/umbrella pragmas, and framework
// header layouts would all need an umbrella-header mapping.
func includableHeader(ctx *record.Context, loc types.Location) []hinted[types.Header] {
	switch loc.Kind() {
	case types.PhysicalLoc:
		sm := ctx.SourceManager()
		fid := sm.ExpansionLoc(loc.Physical()).File
		if fid == sm.MainFile() {
			return []hinted[types.Header]{{value: types.MainFile()}}
		}
		if fid == sm.Predefines() {
			return []hinted[types.Header]{{value: types.Builtin()}}
		}
		if fe := sm.FileEntryFor(fid); fe != nil {
			return []hinted[types.Header]{{value: types.PhysicalH(fe)}}
		}
		return nil
	case types.StandardLibraryLoc:
		// Symbols with several legitimate providers map to the canonical
		// one; ranking handles ties between distinct candidates.
		return []hinted[types.Header]{{value: types.StdlibH(loc.Stdlib().Header())}}
	}
	return nil
}
