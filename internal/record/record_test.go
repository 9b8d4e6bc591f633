package record

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phobologic/includecheck/internal/parse"
	"github.com/phobologic/includecheck/internal/source"
	"github.com/phobologic/includecheck/internal/syntax"
	"github.com/phobologic/includecheck/internal/types"
)

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

func analyzeSetup(t *testing.T, mainContent string, headers map[string]string) (*Context, *RecordedPP, *RecordedAST) {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range headers {
		writeFile(t, dir, rel, content)
	}
	main := writeFile(t, dir, "main.cc", mainContent)

	pp := parse.New(parse.Options{})
	ctx := NewContext(Policy{}, pp)
	var rpp RecordedPP
	var rast RecordedAST
	pp.SetObservers(rpp.Record(ctx), rast.Record(ctx))
	if err := pp.Process(main); err != nil {
		t.Fatalf("Process: %v", err)
	}
	return ctx, &rpp, &rast
}

func TestMacroCacheIdentity(t *testing.T) {
	t.Parallel()

	pp := parse.New(parse.Options{})
	ctx := NewContext(Policy{}, pp)

	locA := source.Loc{File: 1, Offset: 8}
	locB := source.Loc{File: 2, Offset: 8}

	a1 := ctx.Macro("FOO", locA)
	a2 := ctx.Macro("FOO", locA)
	b := ctx.Macro("FOO", locB)

	if a1.Macro() != a2.Macro() {
		t.Error("equal (name, definition) keys must intern to one symbol")
	}
	if a1.Macro() == b.Macro() {
		t.Error("redefinition at a new location is a distinct symbol")
	}
}

func TestIncludesRecordedWithLines(t *testing.T) {
	t.Parallel()

	_, rpp, _ := analyzeSetup(t, "#include \"a.h\"\n\n#include <vector>\nint y;\n",
		map[string]string{"a.h": "#pragma once\n"})

	all := rpp.Includes.All()
	if len(all) != 2 {
		t.Fatalf("recorded %d includes", len(all))
	}
	if all[0].Spelled != "a.h" || all[0].Line != 1 || all[0].Angled {
		t.Errorf("include 0 = %+v", all[0])
	}
	if all[1].Spelled != "vector" || all[1].Line != 3 || !all[1].Angled {
		t.Errorf("include 1 = %+v", all[1])
	}
	if all[0].Resolved == nil {
		t.Error("a.h should resolve")
	}
	if all[1].Resolved != nil {
		t.Error("<vector> has no file on the path")
	}
}

func TestKeepAnnotationRecorded(t *testing.T) {
	t.Parallel()

	_, rpp, _ := analyzeSetup(t, "#include \"a.h\" // IWYU pragma: keep\nint y;\n",
		map[string]string{"a.h": "#pragma once\n"})

	if !rpp.Includes.At(0).Keep {
		t.Error("keep annotation not recorded")
	}
}

func TestHeaderEventsNotRecorded(t *testing.T) {
	t.Parallel()

	// b.h includes c.h and defines a macro; neither event is from the
	// main file, so neither is recorded.
	_, rpp, _ := analyzeSetup(t, "#include \"b.h\"\nint y;\n", map[string]string{
		"b.h": "#pragma once\n#include \"c.h\"\n#define BB 1\n",
		"c.h": "#pragma once\n",
	})

	if len(rpp.Includes.All()) != 1 {
		t.Errorf("includes = %d, want only the main file's", len(rpp.Includes.All()))
	}
	if len(rpp.MacroReferences) != 0 {
		t.Errorf("macro refs = %v, want none", rpp.MacroReferences)
	}
}

func TestMacroReferenceFromExpansion(t *testing.T) {
	t.Parallel()

	ctx, rpp, _ := analyzeSetup(t, "#include \"a.h\"\nint y = FOO;\n",
		map[string]string{"a.h": "#pragma once\n#define FOO 1\n"})

	if len(rpp.MacroReferences) != 1 {
		t.Fatalf("macro refs = %d, want 1", len(rpp.MacroReferences))
	}
	ref := rpp.MacroReferences[0]
	if ref.Target.Kind() != types.Macro || ref.Target.Name() != "FOO" {
		t.Errorf("target = %v %q", ref.Target.Kind(), ref.Target.Name())
	}
	// Invariant: macro-reference locations lie within the main file.
	if !ctx.SourceManager().IsWrittenInMainFile(ref.Location) {
		t.Error("reference location must be in the main file")
	}
}

func TestMacroReferenceFromDefineBody(t *testing.T) {
	t.Parallel()

	// FOO is referenced inside the body of X, which never expands.
	_, rpp, _ := analyzeSetup(t, "#include \"a.h\"\n#define X FOO\nint y;\n",
		map[string]string{"a.h": "#pragma once\n#define FOO 1\n"})

	if len(rpp.MacroReferences) != 1 {
		t.Fatalf("macro refs = %d, want 1", len(rpp.MacroReferences))
	}
	if rpp.MacroReferences[0].Target.Name() != "FOO" {
		t.Errorf("target = %q, want FOO", rpp.MacroReferences[0].Target.Name())
	}
}

func TestMacroParamsNotReferences(t *testing.T) {
	t.Parallel()

	// `x` is a formal parameter of SQ, not a reference, even though a
	// macro named x is in scope.
	_, rpp, _ := analyzeSetup(t, "#include \"a.h\"\n#define SQ(x) ((x) * (x))\nint y;\n",
		map[string]string{"a.h": "#pragma once\n#define x 1\n"})

	if len(rpp.MacroReferences) != 0 {
		t.Errorf("macro refs = %v, want none", rpp.MacroReferences)
	}
}

func TestBuiltinMacrosNotReferences(t *testing.T) {
	t.Parallel()

	_, rpp, _ := analyzeSetup(t, "#define WHERE __FILE__\nconst char *w = WHERE;\n", nil)

	for _, ref := range rpp.MacroReferences {
		if ref.Target.Name() == "__FILE__" {
			t.Error("__FILE__ is not a reference")
		}
	}
}

func TestTopLevelDeclRejections(t *testing.T) {
	t.Parallel()

	ctx, _, rast := analyzeSetup(t, "int y;\n", nil)
	base := len(rast.TopLevelDecls)

	obs := rast.Record(ctx)
	sm := ctx.SourceManager()
	mainLoc := source.Loc{File: sm.MainFile(), Offset: 0}

	// A declaration written outside the main file is dropped.
	other := sm.AddFile("other.h", []byte("int q;"))
	obs.HandleTopLevelDecl(&syntax.Decl{Name: "q", Loc: source.Loc{File: other}})
	// Implicit template instantiations are dropped.
	obs.HandleTopLevelDecl(&syntax.Decl{Name: "inst", Loc: mainLoc, IsImplicitInstantiation: true})
	// Semantically nested declarations are dropped.
	obs.HandleTopLevelDecl(&syntax.Decl{Name: "nested", Loc: mainLoc, SemanticallyNested: true})
	if len(rast.TopLevelDecls) != base {
		t.Errorf("rejected decls were recorded: %v", rast.TopLevelDecls[base:])
	}

	obs.HandleTopLevelDecl(&syntax.Decl{Name: "ok", Loc: mainLoc})
	if len(rast.TopLevelDecls) != base+1 {
		t.Error("main-file top-level decl should be recorded")
	}
}
