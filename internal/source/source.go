// Package source tracks the files of a translation unit and the locations
// inside them. Locations are (file, byte offset) pairs; macro expansions get
// their own virtual files so a location can tell whether it was written in a
// file or produced by an expansion.
package source

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// FileID identifies one entry in a Manager: a real file, an in-memory buffer,
// or a macro expansion. The zero value is invalid.
type FileID int

// Loc is a position inside a Manager entry. The zero value is invalid.
type Loc struct {
	File   FileID
	Offset int
}

// IsValid reports whether the location points into a registered entry.
func (l Loc) IsValid() bool { return l.File != 0 }

// WithOffset returns the location shifted by delta bytes within its file.
func (l Loc) WithOffset(delta int) Loc {
	return Loc{File: l.File, Offset: l.Offset + delta}
}

// FileEntry is the identity of a file on disk. Including the same file twice
// produces two FileIDs but one FileEntry.
type FileEntry struct {
	Path string // cleaned path the file was opened under
}

// Name returns the base name of the file.
func (fe *FileEntry) Name() string { return filepath.Base(fe.Path) }

// Expansion describes a macro expansion entry: tokens spelled at Spelling
// were expanded at Site. MacroArg marks expansions of a macro argument, whose
// tokens were written by the caller rather than inside a macro body.
type Expansion struct {
	Spelling Loc
	Site     Loc
	MacroArg bool
}

type entry struct {
	name      string
	fileEntry *FileEntry // nil for buffers and expansions
	content   []byte
	lineOffs  []int // lazily built, offsets of line starts

	expansion *Expansion
}

// Manager owns the file table for one translation unit.
type Manager struct {
	entries    []*entry
	byPath     map[string]*FileEntry
	mainFile   FileID
	predefines FileID
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{byPath: map[string]*FileEntry{}}
}

func (m *Manager) add(e *entry) FileID {
	m.entries = append(m.entries, e)
	return FileID(len(m.entries))
}

func (m *Manager) entryFor(id FileID) *entry {
	if id <= 0 || int(id) > len(m.entries) {
		return nil
	}
	return m.entries[id-1]
}

// AddFile registers the content of a file on disk and returns its FileID.
// Repeated calls with the same path share one FileEntry.
func (m *Manager) AddFile(path string, content []byte) FileID {
	path = filepath.Clean(path)
	fe, ok := m.byPath[path]
	if !ok {
		fe = &FileEntry{Path: path}
		m.byPath[path] = fe
	}
	return m.add(&entry{name: path, fileEntry: fe, content: content})
}

// AddBuffer registers an in-memory buffer (such as the predefines) that has
// no file identity.
func (m *Manager) AddBuffer(name string, content []byte) FileID {
	return m.add(&entry{name: name, content: content})
}

// AddExpansion registers a macro expansion of length bytes. The returned
// FileID's locations are macro locations.
func (m *Manager) AddExpansion(exp Expansion, length int) FileID {
	content := make([]byte, 0)
	if se := m.entryFor(exp.Spelling.File); se != nil {
		end := exp.Spelling.Offset + length
		if end > len(se.content) {
			end = len(se.content)
		}
		if exp.Spelling.Offset >= 0 && exp.Spelling.Offset <= end {
			content = se.content[exp.Spelling.Offset:end]
		}
	}
	e := exp
	return m.add(&entry{name: "<expansion>", content: content, expansion: &e})
}

// LookupFileEntry returns the FileEntry previously registered for path, if any.
func (m *Manager) LookupFileEntry(path string) *FileEntry {
	return m.byPath[filepath.Clean(path)]
}

// SetMainFile marks the translation unit's primary file.
func (m *Manager) SetMainFile(id FileID) { m.mainFile = id }

// MainFile returns the translation unit's primary file.
func (m *Manager) MainFile() FileID { return m.mainFile }

// SetPredefines marks the compiler predefines buffer.
func (m *Manager) SetPredefines(id FileID) { m.predefines = id }

// Predefines returns the compiler predefines buffer.
func (m *Manager) Predefines() FileID { return m.predefines }

// FileEntryFor returns the file identity behind id, or nil for buffers and
// expansions.
func (m *Manager) FileEntryFor(id FileID) *FileEntry {
	e := m.entryFor(id)
	if e == nil {
		return nil
	}
	return e.fileEntry
}

// Content returns the bytes of an entry.
func (m *Manager) Content(id FileID) []byte {
	e := m.entryFor(id)
	if e == nil {
		return nil
	}
	return e.content
}

// Name returns the display name of an entry.
func (m *Manager) Name(id FileID) string {
	e := m.entryFor(id)
	if e == nil {
		return "<invalid>"
	}
	return e.name
}

// IsMacroID reports whether loc points into a macro expansion.
func (m *Manager) IsMacroID(loc Loc) bool {
	e := m.entryFor(loc.File)
	return e != nil && e.expansion != nil
}

// ExpansionInfo returns the expansion record for a macro location.
func (m *Manager) ExpansionInfo(id FileID) (Expansion, bool) {
	e := m.entryFor(id)
	if e == nil || e.expansion == nil {
		return Expansion{}, false
	}
	return *e.expansion, true
}

// ExpansionLoc climbs expansion sites until it reaches a location written in
// an actual file or buffer.
func (m *Manager) ExpansionLoc(loc Loc) Loc {
	for {
		e := m.entryFor(loc.File)
		if e == nil || e.expansion == nil {
			return loc
		}
		loc = e.expansion.Site
	}
}

// SpellingLoc climbs spelling locations until it reaches where the bytes were
// actually written.
func (m *Manager) SpellingLoc(loc Loc) Loc {
	for {
		e := m.entryFor(loc.File)
		if e == nil || e.expansion == nil {
			return loc
		}
		loc = e.expansion.Spelling.WithOffset(loc.Offset)
	}
}

// IsWrittenInMainFile reports whether the expansion location of loc lies in
// the main file.
func (m *Manager) IsWrittenInMainFile(loc Loc) bool {
	if !loc.IsValid() || m.mainFile == 0 {
		return false
	}
	return m.ExpansionLoc(loc).File == m.mainFile
}

func (e *entry) lineOffsets() []int {
	if e.lineOffs == nil {
		offs := []int{0}
		for i, b := range e.content {
			if b == '\n' {
				offs = append(offs, i+1)
			}
		}
		e.lineOffs = offs
	}
	return e.lineOffs
}

// Position returns the 1-based line and column of a location. Macro locations
// are positioned at their expansion site.
func (m *Manager) Position(loc Loc) (line, col int) {
	loc = m.ExpansionLoc(loc)
	e := m.entryFor(loc.File)
	if e == nil {
		return 0, 0
	}
	offs := e.lineOffsets()
	i := sort.Search(len(offs), func(i int) bool { return offs[i] > loc.Offset }) - 1
	if i < 0 {
		i = 0
	}
	return i + 1, loc.Offset - offs[i] + 1
}

// Line returns the 1-based line number of a location.
func (m *Manager) Line(loc Loc) int {
	line, _ := m.Position(loc)
	return line
}

// LineStartOffset returns the byte offset at which the given 1-based line of
// the entry begins, or -1 if the line does not exist.
func (m *Manager) LineStartOffset(id FileID, line int) int {
	e := m.entryFor(id)
	if e == nil {
		return -1
	}
	offs := e.lineOffsets()
	if line < 1 || line > len(offs) {
		return -1
	}
	return offs[line-1]
}

// LocString renders a location as file:line:col for diagnostics.
func (m *Manager) LocString(loc Loc) string {
	if !loc.IsValid() {
		return "<invalid>"
	}
	resolved := m.ExpansionLoc(loc)
	e := m.entryFor(resolved.File)
	if e == nil {
		return "<invalid>"
	}
	line, col := m.Position(resolved)
	name := e.name
	if e.fileEntry != nil {
		name = e.fileEntry.Path
	}
	return fmt.Sprintf("%s:%d:%d", name, line, col)
}

// Text returns length bytes of an entry starting at loc, clamped to the
// entry's content.
func (m *Manager) Text(loc Loc, length int) string {
	e := m.entryFor(loc.File)
	if e == nil || loc.Offset < 0 || loc.Offset > len(e.content) {
		return ""
	}
	end := loc.Offset + length
	if end > len(e.content) {
		end = len(e.content)
	}
	return string(e.content[loc.Offset:end])
}

// RestOfLine returns the text from loc to the end of its line, excluding the
// newline.
func (m *Manager) RestOfLine(loc Loc) string {
	e := m.entryFor(loc.File)
	if e == nil || loc.Offset < 0 || loc.Offset > len(e.content) {
		return ""
	}
	rest := string(e.content[loc.Offset:])
	if i := strings.IndexAny(rest, "\r\n"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
