// Package parse is the C/C++ frontend: a directive-driven preprocessor and a
// tree-sitter based declaration extractor. It replays what it sees through
// observer hooks, so the analysis core stays independent of how the
// translation unit was parsed.
package parse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/phobologic/includecheck/internal/source"
	"github.com/phobologic/includecheck/internal/syntax"
)

// PPObserver receives preprocessor events in textual order.
type PPObserver interface {
	// FileChanged fires when the preprocessor enters or returns to a file.
	FileChanged(loc source.Loc)
	// InclusionDirective fires for every #include; resolved is nil when no
	// file was found on the include path.
	InclusionDirective(hash source.Loc, spelled string, angled, keep bool, resolved *source.FileEntry)
	// MacroDefined fires for every #define.
	MacroDefined(name Token, mi *MacroInfo)
	// MacroExpands fires when an identifier with a live macro definition is
	// used.
	MacroExpands(name Token, mi *MacroInfo)
}

// ASTObserver receives top-level declarations as parsing progresses.
type ASTObserver interface {
	HandleTopLevelDecl(d *syntax.Decl)
}

// Options configures a Preprocessor.
type Options struct {
	// IncludeDirs are searched in order for included files.
	IncludeDirs []string
	Logger      *log.Logger
}

// Preprocessor drives the frontend over one translation unit.
type Preprocessor struct {
	sm          *source.Manager
	decls       *syntax.Table
	includeDirs []string
	logger      *log.Logger

	ppObs  PPObserver
	astObs ASTObserver

	parser        *sitter.Parser
	macros        map[string]*MacroInfo
	everDefined   map[string]bool
	selfContained map[*source.FileEntry]bool
	entered       map[*source.FileEntry]bool
	macroArgs     []argRange

	// trees keeps every parsed tree alive for the Preprocessor's lifetime:
	// declarations handed to the AST walker hold *sitter.Node pointers into
	// these trees, which stay valid only until the tree is closed.
	trees []*sitter.Tree
}

// argRange maps the literal byte range of one macro-invocation argument to
// the expansion entry registered for it.
type argRange struct {
	file       source.FileID
	start, end int
	fid        source.FileID
}

// New returns a preprocessor with the compiler predefines already in place.
func New(opts Options) *Preprocessor {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr)
		logger.SetLevel(log.WarnLevel)
	}
	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())
	pp := &Preprocessor{
		sm:            source.NewManager(),
		decls:         syntax.NewTable(),
		includeDirs:   opts.IncludeDirs,
		logger:        logger,
		parser:        parser,
		macros:        map[string]*MacroInfo{},
		everDefined:   map[string]bool{},
		selfContained: map[*source.FileEntry]bool{},
		entered:       map[*source.FileEntry]bool{},
	}
	pp.seedPredefines()
	return pp
}

// SetObservers installs the recorder hooks. Must be called before Process.
func (pp *Preprocessor) SetObservers(p PPObserver, a ASTObserver) {
	pp.ppObs = p
	pp.astObs = a
}

// SourceManager returns the translation unit's source manager.
func (pp *Preprocessor) SourceManager() *source.Manager { return pp.sm }

// Decls returns the declaration table built during Process.
func (pp *Preprocessor) Decls() *syntax.Table { return pp.decls }

// MacroInfo returns the live definition of a macro name, or nil.
func (pp *Preprocessor) MacroInfo(name string) *MacroInfo { return pp.macros[name] }

// IsSelfContained reports whether a file has an include guard or
// #pragma once. Files never entered report false.
func (pp *Preprocessor) IsSelfContained(fe *source.FileEntry) bool {
	return pp.selfContained[fe]
}

// MacroArgLoc maps a literal location that falls inside an argument of a
// recorded macro invocation to the equivalent location in that argument's
// expansion entry. Callers use it to decide whether a reference was written
// by the invocation's caller or inside a macro body.
func (pp *Preprocessor) MacroArgLoc(loc source.Loc) (source.Loc, bool) {
	for _, r := range pp.macroArgs {
		if r.file == loc.File && loc.Offset >= r.start && loc.Offset < r.end {
			return source.Loc{File: r.fid, Offset: loc.Offset - r.start}, true
		}
	}
	return source.Loc{}, false
}

var builtinMacros = []string{
	"__FILE__", "__LINE__", "__DATE__", "__TIME__", "__COUNTER__",
	"__cplusplus", "__STDC__", "__STDC_VERSION__", "__STDC_HOSTED__",
	"__has_include", "__has_builtin", "__has_feature",
}

func (pp *Preprocessor) seedPredefines() {
	var b strings.Builder
	for _, name := range builtinMacros {
		fmt.Fprintf(&b, "#define %s\n", name)
	}
	content := b.String()
	fid := pp.sm.AddBuffer("<built-in>", []byte(content))
	pp.sm.SetPredefines(fid)
	offset := 0
	for _, name := range builtinMacros {
		nameOff := offset + len("#define ")
		mi := &MacroInfo{
			Name:      name,
			DefLoc:    source.Loc{File: fid, Offset: nameOff},
			IsBuiltin: true,
		}
		pp.macros[name] = mi
		pp.everDefined[name] = true
		offset += len("#define ") + len(name) + 1
	}
}

// Process parses the main file of a translation unit, firing the observer
// hooks as it goes.
func (pp *Preprocessor) Process(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading main file: %w", err)
	}
	fid := pp.sm.AddFile(path, content)
	pp.sm.SetMainFile(fid)
	if fe := pp.sm.FileEntryFor(fid); fe != nil {
		pp.entered[fe] = true
		pp.selfContained[fe] = detectGuard(content)
	}
	pp.processFile(fid, path, content)
	return nil
}

func (pp *Preprocessor) processFile(fid source.FileID, path string, content []byte) {
	if pp.ppObs != nil {
		pp.ppObs.FileChanged(source.Loc{File: fid, Offset: 0})
	}
	tree, err := pp.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		pp.logger.Warn("parse failed", "file", path, "err", err)
		return
	}
	pp.trees = append(pp.trees, tree)

	fs := &fileScanner{
		pp:     pp,
		fid:    fid,
		path:   path,
		src:    content,
		isMain: fid == pp.sm.MainFile(),
	}
	fs.scanChildren(tree.RootNode(), scanState{topLevel: true})
}

// scanState carries the lexical context of a scan down the tree.
type scanState struct {
	topLevel bool     // directly at translation unit scope
	scope    []string // enclosing namespace / class names
	class    bool     // immediately inside a class/struct/union body
	template bool     // under a template_declaration
	friend   bool     // under a friend_declaration
}

func (s scanState) nested() scanState {
	n := s
	n.topLevel = false
	return n
}

func (s scanState) withScope(name string) scanState {
	n := s.nested()
	n.scope = append(append([]string{}, s.scope...), name)
	return n
}

type fileScanner struct {
	pp     *Preprocessor
	fid    source.FileID
	path   string
	src    []byte
	isMain bool
}

func (fs *fileScanner) loc(n *sitter.Node) source.Loc {
	return source.Loc{File: fs.fid, Offset: int(n.StartByte())}
}

func (fs *fileScanner) text(n *sitter.Node) string {
	return string(fs.src[n.StartByte():n.EndByte()])
}

func (fs *fileScanner) scanChildren(n *sitter.Node, st scanState) {
	for i := 0; i < int(n.ChildCount()); i++ {
		fs.scan(n.Child(i), st)
	}
}

func (fs *fileScanner) scan(n *sitter.Node, st scanState) {
	switch n.Type() {
	case "comment":
		return
	case "preproc_include":
		fs.handleInclude(n)
	case "preproc_def", "preproc_function_def":
		fs.handleDefine(n)
	case "preproc_call":
		fs.handleCall(n)
	case "preproc_ifdef":
		// Skip the guard name, scan the body at the same nesting level:
		// conditional sections do not change what is top-level.
		name := n.ChildByFieldName("name")
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if name != nil && c.Equal(name) {
				continue
			}
			fs.scan(c, st)
		}
	case "preproc_if", "preproc_elif", "preproc_else":
		cond := n.ChildByFieldName("condition")
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if cond != nil && c.Equal(cond) {
				continue
			}
			fs.scan(c, st)
		}
	case "identifier", "type_identifier", "field_identifier":
		fs.checkExpansion(n)
	default:
		if fs.handleDecl(n, st) {
			return
		}
		fs.scanChildren(n, st.nested())
	}
}

// checkExpansion fires MacroExpands for identifiers naming a live macro.
// Only uses written in the main file are references from the main file.
func (fs *fileScanner) checkExpansion(n *sitter.Node) {
	if !fs.isMain {
		return
	}
	text := fs.text(n)
	mi := fs.pp.macros[text]
	if mi == nil {
		return
	}
	if fs.pp.ppObs != nil {
		fs.pp.ppObs.MacroExpands(Token{
			Text:               text,
			Loc:                fs.loc(n),
			HadMacroDefinition: true,
		}, mi)
	}
	if mi.IsFunctionLike {
		fs.registerInvocation(n, mi)
	}
}

// registerInvocation records the expansion structure of a function-like
// macro invocation: one entry for the body expanded at the use site, and one
// macro-argument entry per argument, spelled by the caller. Locations inside
// the literal argument text can then be resolved as macro locations.
func (fs *fileScanner) registerInvocation(n *sitter.Node, mi *MacroInfo) {
	if !mi.BodyLoc.IsValid() {
		return // an empty body expands nothing, arguments included
	}
	call := n.Parent()
	if call == nil || call.Type() != "call_expression" {
		return
	}
	fn := call.ChildByFieldName("function")
	if fn == nil || !fn.Equal(n) {
		return
	}
	sm := fs.pp.sm
	bodyFid := sm.AddExpansion(source.Expansion{
		Spelling: mi.BodyLoc,
		Site:     fs.loc(call),
	}, mi.BodyLen)
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		a := args.NamedChild(i)
		start := int(a.StartByte())
		length := int(a.EndByte()) - start
		argFid := sm.AddExpansion(source.Expansion{
			Spelling: source.Loc{File: fs.fid, Offset: start},
			Site:     source.Loc{File: bodyFid, Offset: 0},
			MacroArg: true,
		}, length)
		fs.pp.macroArgs = append(fs.pp.macroArgs, argRange{
			file:  fs.fid,
			start: start,
			end:   start + length,
			fid:   argFid,
		})
	}
}

func (fs *fileScanner) handleInclude(n *sitter.Node) {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	raw := fs.text(pathNode)
	angled := pathNode.Type() == "system_lib_string"
	spelled := strings.Trim(raw, "<>\"")
	hash := fs.loc(n)
	keep := hasKeepPragma(fs.pp.sm.RestOfLine(hash))

	resolved, ok := fs.pp.resolveInclude(spelled, angled, filepath.Dir(fs.path))
	var fe *source.FileEntry
	var content []byte
	var newFid source.FileID
	if ok {
		data, err := os.ReadFile(resolved)
		if err != nil {
			fs.pp.logger.Warn("unreadable include", "file", resolved, "err", err)
			ok = false
		} else {
			content = data
			newFid = fs.pp.sm.AddFile(resolved, content)
			fe = fs.pp.sm.FileEntryFor(newFid)
		}
	}
	if fs.pp.ppObs != nil {
		fs.pp.ppObs.InclusionDirective(hash, spelled, angled, keep, fe)
	}
	if !ok || fe == nil {
		fs.pp.logger.Debug("include not resolved", "spelled", spelled)
		return
	}

	if !fs.pp.entered[fe] {
		fs.pp.selfContained[fe] = detectGuard(content)
	}
	// Guarded files contribute their declarations and macros once; files
	// without a guard are re-lexed on every inclusion, like a real
	// preprocessor would.
	enter := !fs.pp.entered[fe] || !fs.pp.selfContained[fe]
	fs.pp.entered[fe] = true
	if enter {
		fs.pp.processFile(newFid, resolved, content)
		if fs.pp.ppObs != nil {
			fs.pp.ppObs.FileChanged(source.Loc{File: fs.fid, Offset: int(n.EndByte())})
		}
	}
}

func (fs *fileScanner) handleDefine(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := fs.text(nameNode)
	mi := &MacroInfo{
		Name:   name,
		DefLoc: fs.loc(nameNode),
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		mi.IsFunctionLike = true
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p.Type() == "identifier" {
				mi.Params = append(mi.Params, fs.text(p))
			}
		}
	}
	if value := n.ChildByFieldName("value"); value != nil {
		mi.BodyLoc = fs.loc(value)
		mi.BodyLen = int(value.EndByte() - value.StartByte())
		mi.Tokens = scanIdentifiers(fs.text(value), mi.BodyLoc)
		for i := range mi.Tokens {
			mi.Tokens[i].HadMacroDefinition = fs.pp.everDefined[mi.Tokens[i].Text]
		}
	}
	fs.pp.macros[name] = mi
	fs.pp.everDefined[name] = true
	if fs.pp.ppObs != nil {
		fs.pp.ppObs.MacroDefined(Token{
			Text:               name,
			Loc:                mi.DefLoc,
			HadMacroDefinition: true,
		}, mi)
	}
}

func (fs *fileScanner) handleCall(n *sitter.Node) {
	dir := n.ChildByFieldName("directive")
	if dir == nil {
		return
	}
	arg := ""
	if a := n.ChildByFieldName("argument"); a != nil {
		arg = strings.TrimSpace(fs.text(a))
	}
	switch fs.text(dir) {
	case "#undef":
		toks := scanIdentifiers(arg, source.Loc{})
		if len(toks) > 0 {
			delete(fs.pp.macros, toks[0].Text)
		}
	case "#pragma":
		// #pragma once is handled by guard detection; nothing else to do.
	}
}

func (pp *Preprocessor) resolveInclude(spelled string, angled bool, fromDir string) (string, bool) {
	var candidates []string
	if !angled {
		candidates = append(candidates, filepath.Join(fromDir, spelled))
	}
	for _, dir := range pp.includeDirs {
		candidates = append(candidates, filepath.Join(dir, spelled))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c, true
		}
	}
	return "", false
}

// hasKeepPragma reports whether an include line carries a keep annotation.
func hasKeepPragma(line string) bool {
	return strings.Contains(line, "IWYU pragma: keep") ||
		strings.Contains(line, "includecheck: keep")
}

// detectGuard reports whether a file is self-contained: it starts with
// #pragma once, or with the #ifndef/#define include guard idiom.
func detectGuard(content []byte) bool {
	lines := strings.Split(string(content), "\n")
	inBlockComment := false
	guard := ""
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if inBlockComment {
			if i := strings.Index(line, "*/"); i >= 0 {
				line = strings.TrimSpace(line[i+2:])
				inBlockComment = false
			} else {
				continue
			}
		}
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(line, "/*") {
			if !strings.Contains(line, "*/") {
				inBlockComment = true
			}
			continue
		}
		switch {
		case guard == "" && strings.HasPrefix(line, "#pragma") && strings.Contains(line, "once"):
			return true
		case guard == "" && strings.HasPrefix(line, "#ifndef"):
			toks := scanIdentifiers(strings.TrimPrefix(line, "#ifndef"), source.Loc{})
			if len(toks) == 0 {
				return false
			}
			guard = toks[0].Text
		case guard != "" && strings.HasPrefix(line, "#define"):
			toks := scanIdentifiers(strings.TrimPrefix(line, "#define"), source.Loc{})
			return len(toks) > 0 && toks[0].Text == guard
		default:
			return false
		}
	}
	return false
}
