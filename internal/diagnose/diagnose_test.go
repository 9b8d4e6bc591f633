package diagnose

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/phobologic/includecheck/internal/analyze"
	"github.com/phobologic/includecheck/internal/parse"
	"github.com/phobologic/includecheck/internal/record"
	"github.com/phobologic/includecheck/internal/types"
)

func init() {
	// Diagnostic text assertions need uncolored output.
	color.NoColor = true
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// parseTU parses a translation unit out of literal file contents and returns
// the frozen recorder state.
func parseTU(t *testing.T, policy record.Policy, mainContent string, headers map[string]string) (*record.Context, *record.RecordedPP, *record.RecordedAST) {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range headers {
		writeFile(t, dir, rel, content)
	}
	main := writeFile(t, dir, "main.cc", mainContent)

	pp := parse.New(parse.Options{})
	ctx := record.NewContext(policy, pp)
	var rpp record.RecordedPP
	var rast record.RecordedAST
	pp.SetObservers(rpp.Record(ctx), rast.Record(ctx))
	if err := pp.Process(main); err != nil {
		t.Fatalf("Process: %v", err)
	}
	return ctx, &rpp, &rast
}

func runReporter(t *testing.T, ctx *record.Context, rpp *record.RecordedPP, rast *record.RecordedAST, opts Options) (string, int) {
	t.Helper()
	var out bytes.Buffer
	rep := NewReporter(ctx, &rpp.Includes, opts, &out)
	analyze.WalkUsed(ctx, rast.TopLevelDecls, rpp.MacroReferences, rep.Reference)
	rep.Finish()
	return out.String(), rep.ErrorCount()
}

func TestUnusedIncludeReported(t *testing.T) {
	t.Parallel()

	ctx, rpp, rast := parseTU(t, record.Policy{}, "#include \"a.h\"\nint main() { return 0; }\n",
		map[string]string{"a.h": "#pragma once\nint helper();\n"})

	out, errs := runReporter(t, ctx, rpp, rast, Options{Recover: true})
	if !strings.Contains(out, "include is unused") {
		t.Errorf("missing unused diagnostic:\n%s", out)
	}
	if !strings.Contains(out, "main.cc:1:1") {
		t.Errorf("diagnostic not anchored at the directive:\n%s", out)
	}
	if errs != 1 {
		t.Errorf("errors = %d, want 1", errs)
	}
}

func TestUsedIncludeNotReported(t *testing.T) {
	t.Parallel()

	ctx, rpp, rast := parseTU(t, record.Policy{}, "#include \"a.h\"\nFoo f;\n",
		map[string]string{"a.h": "#pragma once\nclass Foo {};\n"})

	out, errs := runReporter(t, ctx, rpp, rast, Options{Recover: true})
	if out != "" || errs != 0 {
		t.Errorf("expected silence, got (%d errors):\n%s", errs, out)
	}
}

func TestSatisfiedRemarksBehindFlag(t *testing.T) {
	t.Parallel()

	ctx, rpp, rast := parseTU(t, record.Policy{}, "#include \"a.h\"\nFoo f;\n",
		map[string]string{"a.h": "#pragma once\nclass Foo {};\n"})

	out, _ := runReporter(t, ctx, rpp, rast, Options{ShowSatisfied: true, Recover: true})
	if !strings.Contains(out, "class 'Foo' provided by a.h") {
		t.Errorf("missing satisfied remark:\n%s", out)
	}
	if !strings.Contains(out, "include provides class 'Foo'") {
		t.Errorf("missing used-include remark:\n%s", out)
	}
}

func TestUnsatisfiedReference(t *testing.T) {
	t.Parallel()

	// b.h is pulled in transitively through a.h; using Bar from it is a
	// policy violation.
	ctx, rpp, rast := parseTU(t, record.Policy{}, "#include \"a.h\"\nBar b;\n",
		map[string]string{
			"a.h": "#pragma once\n#include \"b.h\"\nclass Foo {};\n",
			"b.h": "#pragma once\nclass Bar {};\n",
		})

	out, errs := runReporter(t, ctx, rpp, rast, Options{Recover: true})
	if !strings.Contains(out, "no header included for class 'Bar'") {
		t.Errorf("missing unsatisfied diagnostic:\n%s", out)
	}
	if !strings.Contains(out, "provided by") || !strings.Contains(out, "b.h") {
		t.Errorf("missing provider note:\n%s", out)
	}
	if errs < 1 {
		t.Errorf("errors = %d", errs)
	}
}

func TestRecoverSuppressesRepeats(t *testing.T) {
	t.Parallel()

	ctx, rpp, rast := parseTU(t, record.Policy{}, "#include \"a.h\"\nBar b;\nBar c;\n",
		map[string]string{
			"a.h": "#pragma once\n#include \"b.h\"\n",
			"b.h": "#pragma once\nclass Bar {};\n",
		})

	out, _ := runReporter(t, ctx, rpp, rast, Options{Recover: true})
	if n := strings.Count(out, "no header included for class 'Bar'"); n != 1 {
		t.Errorf("unsatisfied reported %d times with -recover, want 1:\n%s", n, out)
	}

	out, _ = runReporter(t, ctx, rpp, rast, Options{})
	if n := strings.Count(out, "no header included for class 'Bar'"); n != 2 {
		t.Errorf("unsatisfied reported %d times without -recover, want 2:\n%s", n, out)
	}
}

func TestKeepAnnotationExcluded(t *testing.T) {
	t.Parallel()

	ctx, rpp, rast := parseTU(t, record.Policy{},
		"#include \"a.h\" // IWYU pragma: keep\nint main() { return 0; }\n",
		map[string]string{"a.h": "#pragma once\nint helper();\n"})

	out, errs := runReporter(t, ctx, rpp, rast, Options{Recover: true})
	if strings.Contains(out, "include is unused") || errs != 0 {
		t.Errorf("keep-annotated include must not be reported:\n%s", out)
	}
}

func TestMayConsiderUnused(t *testing.T) {
	t.Parallel()

	ctx, rpp, _ := parseTU(t, record.Policy{},
		"#include \"guarded.h\"\n#include \"bare.h\"\nint y;\n",
		map[string]string{
			"guarded.h": "#pragma once\nint g;\n",
			"bare.h":    "int b;\n",
		})

	guarded, bare := rpp.Includes.At(0), rpp.Includes.At(1)
	if !MayConsiderUnused(ctx, guarded, false) {
		t.Error("guarded quoted include is eligible")
	}
	if MayConsiderUnused(ctx, bare, false) {
		t.Error("a header without an include guard may have side effects")
	}

	keep := &types.Include{Spelled: "guarded.h", Resolved: guarded.Resolved, Keep: true}
	if MayConsiderUnused(ctx, keep, false) {
		t.Error("keep annotation wins")
	}

	angledStd := &types.Include{Spelled: "vector", Angled: true}
	if MayConsiderUnused(ctx, angledStd, false) {
		t.Error("angle-bracket includes need stdlib analysis")
	}
	if !MayConsiderUnused(ctx, angledStd, true) {
		t.Error("recognized standard header is eligible under stdlib analysis")
	}
	angledOther := &types.Include{Spelled: "mylib/all.h", Angled: true}
	if MayConsiderUnused(ctx, angledOther, true) {
		t.Error("unrecognized angle-bracket spelling is never eligible")
	}
}

func TestIdempotentDiagnostics(t *testing.T) {
	t.Parallel()

	ctx, rpp, rast := parseTU(t, record.Policy{}, "#include \"a.h\"\n#include \"b.h\"\nFoo f;\nBar b;\n",
		map[string]string{
			"a.h": "#pragma once\nclass Foo {};\n",
			"b.h": "#pragma once\nint unusedStuff();\n",
		})

	first, _ := runReporter(t, ctx, rpp, rast, Options{Recover: true, ShowSatisfied: true})
	second, _ := runReporter(t, ctx, rpp, rast, Options{Recover: true, ShowSatisfied: true})
	if first != second {
		t.Errorf("analysis is not idempotent:\n--- first\n%s\n--- second\n%s", first, second)
	}
}

func TestEditorDiagnostics(t *testing.T) {
	t.Parallel()

	ctx, rpp, rast := parseTU(t, record.Policy{}, "#include \"used.h\"\n#include \"unused.h\"\nFoo f;\n",
		map[string]string{
			"used.h":   "#pragma once\nclass Foo {};\n",
			"unused.h": "#pragma once\nint helper();\n",
		})

	diags := IssueUnusedIncludeDiagnostics(ctx, rpp, rast, false)
	if len(diags) != 1 {
		t.Fatalf("diags = %d, want 1", len(diags))
	}
	d := diags[0]
	if d.Message != "include is unused" || d.Severity != Warning || d.Source != DiagSource || !d.Unnecessary {
		t.Errorf("diag = %+v", d)
	}
	// The range spans the directive on line 2 (zero-based line 1).
	if d.Range.Start.Line != 1 || d.Range.Start.Character != 0 {
		t.Errorf("range start = %+v", d.Range.Start)
	}
	if d.Range.End.Line != 1 || d.Range.End.Character != len(`#include "unused.h"`) {
		t.Errorf("range end = %+v", d.Range.End)
	}
	if len(d.Fixes) != 1 || len(d.Fixes[0].Edits) != 1 {
		t.Fatalf("fixes = %+v", d.Fixes)
	}
	edit := d.Fixes[0].Edits[0]
	if edit.NewText != "" || edit.Range.Start.Line != 1 || edit.Range.End.Line != 2 {
		t.Errorf("fix edit = %+v, want deletion of [1, 2)", edit)
	}
}

func TestEditorDiagnosticsRespectExclusions(t *testing.T) {
	t.Parallel()

	// Unresolved angle include, stdlib analysis off: not diagnosable in
	// the editor even though nothing uses it.
	ctx, rpp, rast := parseTU(t, record.Policy{}, "#include <vector>\nint main() { return 0; }\n", nil)

	if diags := IssueUnusedIncludeDiagnostics(ctx, rpp, rast, false); len(diags) != 0 {
		t.Errorf("diags = %+v, want none", diags)
	}
}
