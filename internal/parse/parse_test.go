package parse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/includecheck/internal/source"
	"github.com/phobologic/includecheck/internal/syntax"
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

// eventLog records every observer callback for assertions.
type eventLog struct {
	fileChanges int
	includes    []string // spelled
	resolved    []bool
	defines     []string
	expands     []string
	decls       []*syntax.Decl
}

func (e *eventLog) FileChanged(source.Loc) { e.fileChanges++ }

func (e *eventLog) InclusionDirective(_ source.Loc, spelled string, _, _ bool, resolved *source.FileEntry) {
	e.includes = append(e.includes, spelled)
	e.resolved = append(e.resolved, resolved != nil)
}

func (e *eventLog) MacroDefined(name Token, _ *MacroInfo) {
	e.defines = append(e.defines, name.Text)
}

func (e *eventLog) MacroExpands(name Token, _ *MacroInfo) {
	e.expands = append(e.expands, name.Text)
}

func (e *eventLog) HandleTopLevelDecl(d *syntax.Decl) { e.decls = append(e.decls, d) }

func TestScanIdentifiers(t *testing.T) {
	t.Parallel()

	toks := scanIdentifiers(`FOO + bar_2("BAZ") * 3`, source.Loc{File: 1, Offset: 10})
	want := []string{"FOO", "bar_2"}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, w := range want {
		if toks[i].Text != w {
			t.Errorf("token %d = %q, want %q", i, toks[i].Text, w)
		}
	}
	if toks[0].Loc.Offset != 10 {
		t.Errorf("FOO offset = %d, want 10", toks[0].Loc.Offset)
	}
	if toks[1].Loc.Offset != 16 {
		t.Errorf("bar_2 offset = %d, want 16", toks[1].Loc.Offset)
	}
}

func TestDetectGuard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"pragma once", "#pragma once\nint x;\n", true},
		{"ifndef guard", "#ifndef A_H\n#define A_H\nint x;\n#endif\n", true},
		{"guard after comments", "// header\n/* multi\nline */\n#ifndef A_H\n#define A_H\n#endif\n", true},
		{"mismatched guard", "#ifndef A_H\n#define B_H\n#endif\n", false},
		{"no guard", "int x;\n", false},
		{"define first", "#define A_H\n#ifndef A_H\n#endif\n", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := detectGuard([]byte(tt.content)); got != tt.want {
				t.Errorf("detectGuard = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasKeepPragma(t *testing.T) {
	t.Parallel()

	if !hasKeepPragma(`#include "a.h" // IWYU pragma: keep`) {
		t.Error("IWYU keep not detected")
	}
	if !hasKeepPragma(`#include "a.h" // includecheck: keep`) {
		t.Error("includecheck keep not detected")
	}
	if hasKeepPragma(`#include "a.h"`) {
		t.Error("false keep")
	}
}

func TestProcessEvents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.h", "#pragma once\n#define FOO 1\n")
	main := writeFile(t, dir, "main.cc", "#include \"a.h\"\n#include \"missing.h\"\n#define X FOO\nint y = X;\n")

	pp := New(Options{})
	var ev eventLog
	pp.SetObservers(&ev, &ev)
	if err := pp.Process(main); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(ev.includes) != 2 || ev.includes[0] != "a.h" || ev.includes[1] != "missing.h" {
		t.Fatalf("includes = %v", ev.includes)
	}
	if !ev.resolved[0] || ev.resolved[1] {
		t.Errorf("resolution flags = %v, want [true false]", ev.resolved)
	}

	// FOO is defined in a.h, X in the main file.
	if len(ev.defines) != 2 || ev.defines[0] != "FOO" || ev.defines[1] != "X" {
		t.Errorf("defines = %v", ev.defines)
	}

	// `int y = X;` expands X. FOO in the #define body is not an expansion.
	if len(ev.expands) != 1 || ev.expands[0] != "X" {
		t.Errorf("expands = %v", ev.expands)
	}

	// The body of X records FOO as a macro token that had a definition.
	mi := pp.MacroInfo("X")
	if mi == nil {
		t.Fatal("X should be live")
	}
	if len(mi.Tokens) != 1 || mi.Tokens[0].Text != "FOO" || !mi.Tokens[0].HadMacroDefinition {
		t.Errorf("X body tokens = %+v", mi.Tokens)
	}

	// Top-level decl: int y.
	if len(ev.decls) != 1 || ev.decls[0].Name != "y" {
		t.Fatalf("top-level decls = %v", ev.decls)
	}

	fe := pp.SourceManager().LookupFileEntry(filepath.Join(dir, "a.h"))
	if fe == nil || !pp.IsSelfContained(fe) {
		t.Error("a.h should be self-contained")
	}
}

func TestUndefKillsDefinition(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.h", "#pragma once\n#define FOO 1\n")
	main := writeFile(t, dir, "main.cc", "#include \"a.h\"\n#undef FOO\n#define FOO 2\nint y = FOO;\n")

	pp := New(Options{})
	var ev eventLog
	pp.SetObservers(&ev, &ev)
	if err := pp.Process(main); err != nil {
		t.Fatalf("Process: %v", err)
	}

	mi := pp.MacroInfo("FOO")
	if mi == nil {
		t.Fatal("FOO should be live after redefinition")
	}
	if mi.DefLoc.File != pp.SourceManager().MainFile() {
		t.Error("the live FOO should be the main file's redefinition")
	}
	if len(ev.expands) != 1 || ev.expands[0] != "FOO" {
		t.Errorf("expands = %v", ev.expands)
	}
}

func TestGuardedHeaderEnteredOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.h", "#pragma once\nint aa;\n")
	main := writeFile(t, dir, "main.cc", "#include \"a.h\"\n#include \"a.h\"\nint y;\n")

	pp := New(Options{})
	var ev eventLog
	pp.SetObservers(&ev, &ev)
	if err := pp.Process(main); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Both directives are recorded even though the file is entered once.
	if len(ev.includes) != 2 {
		t.Fatalf("includes = %v", ev.includes)
	}
	// Enter main, enter a.h, return to main: three file changes.
	if ev.fileChanges != 3 {
		t.Errorf("fileChanges = %d, want 3", ev.fileChanges)
	}
	if ds := pp.Decls().Resolve("aa"); len(ds) != 1 || len(ds[0].Redecls()) != 1 {
		t.Error("guarded header decls should register once")
	}
}

func TestMacroInvocationExpansions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "foo.h", "#pragma once\nint helper();\n")
	main := writeFile(t, dir, "main.cc", "#include \"foo.h\"\n#define WRAP(x) (x)\nint y = WRAP(helper());\n")

	pp := New(Options{})
	var ev eventLog
	pp.SetObservers(&ev, &ev)
	if err := pp.Process(main); err != nil {
		t.Fatalf("Process: %v", err)
	}

	sm := pp.SourceManager()
	content, err := os.ReadFile(main)
	if err != nil {
		t.Fatal(err)
	}
	argOff := strings.Index(string(content), "helper()")
	if argOff < 0 {
		t.Fatal("test input changed")
	}

	lit := source.Loc{File: sm.MainFile(), Offset: argOff}
	mloc, ok := pp.MacroArgLoc(lit)
	if !ok {
		t.Fatal("argument of WRAP(...) should map to an expansion entry")
	}
	if !sm.IsMacroID(mloc) {
		t.Fatal("mapped location should be a macro location")
	}
	exp, ok := sm.ExpansionInfo(mloc.File)
	if !ok || !exp.MacroArg {
		t.Errorf("ExpansionInfo = %+v, %v, want a macro-argument entry", exp, ok)
	}
	// The spelling climbs back to where the caller wrote the argument.
	if got := sm.SpellingLoc(mloc); got != lit {
		t.Errorf("SpellingLoc = %+v, want %+v", got, lit)
	}
	if !sm.IsWrittenInMainFile(mloc) {
		t.Error("the invocation expands in the main file")
	}

	// A location outside any argument stays literal.
	if _, ok := pp.MacroArgLoc(source.Loc{File: sm.MainFile(), Offset: 0}); ok {
		t.Error("the include directive is not inside a macro argument")
	}
}

func TestParamTypesRecorded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "api.h", "#pragma once\nclass Widget;\nvoid takeWidget(const Widget w, int n);\n")
	main := writeFile(t, dir, "main.cc", "#include \"api.h\"\nint y;\n")

	pp := New(Options{})
	var ev eventLog
	pp.SetObservers(&ev, &ev)
	if err := pp.Process(main); err != nil {
		t.Fatalf("Process: %v", err)
	}

	d := pp.Decls().ResolveOne("takeWidget")
	if d == nil {
		t.Fatal("takeWidget not registered")
	}
	if len(d.ParamTypes) != 2 || d.ParamTypes[0] != "Widget" || d.ParamTypes[1] != "int" {
		t.Errorf("ParamTypes = %v", d.ParamTypes)
	}
}

func TestDeclTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "foo.h", `#pragma once
namespace util {
class Foo {
 public:
  void frob(int n);
  int count_;
};
bool operator==(Foo a, Foo b);
}  // namespace util
typedef int small_t;
enum Color { kRed, kGreen };
`)
	main := writeFile(t, dir, "main.cc", "#include \"foo.h\"\nvoid util::Foo::frob(int n) {}\n")

	pp := New(Options{})
	var ev eventLog
	pp.SetObservers(&ev, &ev)
	if err := pp.Process(main); err != nil {
		t.Fatalf("Process: %v", err)
	}

	tab := pp.Decls()
	foo := tab.ResolveOne("util::Foo")
	if foo == nil || foo.Kind != syntax.Class || !foo.IsDefinition {
		t.Fatalf("util::Foo = %+v", foo)
	}
	if d := tab.ResolveOne("util::Foo::frob"); d == nil {
		t.Fatal("method frob not registered")
	} else if len(d.Redecls()) != 2 {
		t.Errorf("frob redecls = %d, want in-class decl + out-of-line definition", len(d.Redecls()))
	}
	if d := tab.ResolveOne("operator=="); d == nil || d.Kind != syntax.Function {
		t.Error("operator== not registered")
	}
	if d := tab.ResolveOne("small_t"); d == nil || d.Kind != syntax.Typedef {
		t.Error("typedef small_t not registered")
	}
	if d := tab.ResolveOne("kRed"); d == nil || d.Kind != syntax.EnumConstant {
		t.Error("enumerator kRed not registered")
	}
	if d := tab.ResolveOne("count_"); d == nil || d.Kind != syntax.Field {
		t.Error("field count_ not registered")
	}

	// The out-of-line definition is the main file's only top-level decl.
	if len(ev.decls) != 1 || ev.decls[0].Name != "frob" || !ev.decls[0].IsDefinition {
		t.Fatalf("top-level decls = %+v", ev.decls)
	}
}

func TestFriendDeclarationFlag(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "s.h", `#pragma once
class S {
  friend class Hidden;
};
`)
	main := writeFile(t, dir, "main.cc", "#include \"s.h\"\nint y;\n")

	pp := New(Options{})
	var ev eventLog
	pp.SetObservers(&ev, &ev)
	if err := pp.Process(main); err != nil {
		t.Fatalf("Process: %v", err)
	}

	d := pp.Decls().ResolveOne("Hidden")
	if d == nil {
		t.Fatal("friend class Hidden not registered")
	}
	if !d.IsFriend {
		t.Error("friend-only declaration should carry the friend flag")
	}
}
