// Package stdlib recognizes C and C++ standard library symbols and maps them
// to the standard header that canonically provides them. Symbols and headers
// are opaque comparable ids into an embedded mapping table.
package stdlib

import (
	"bufio"
	"bytes"
	"strings"
	"sync"

	_ "embed"
)

//go:embed symbols.tsv
var symbolData []byte

// Symbol is a logical standard-library symbol, e.g. std::vector.
// The zero value is invalid.
type Symbol int

// Header is a logical standard header, e.g. <vector>.
// The zero value is invalid.
type Header int

type table struct {
	symbolNames   []string
	symbolHeaders []Header
	headerNames   []string
	bySymbol      map[string]Symbol
	byHeader      map[string]Header
}

var (
	tabOnce sync.Once
	tab     *table
)

func load() *table {
	tabOnce.Do(func() {
		tab = &table{
			bySymbol: map[string]Symbol{},
			byHeader: map[string]Header{},
		}
		sc := bufio.NewScanner(bytes.NewReader(symbolData))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			name, header, ok := strings.Cut(line, "\t")
			if !ok {
				continue
			}
			tab.register(name, header)
		}
	})
	return tab
}

func (t *table) register(symbol, header string) {
	header = canonicalHeaderName(header)
	h, ok := t.byHeader[header]
	if !ok {
		t.headerNames = append(t.headerNames, header)
		h = Header(len(t.headerNames))
		t.byHeader[header] = h
	}
	if _, dup := t.bySymbol[symbol]; dup {
		return // first mapping wins, it is the canonical provider
	}
	t.symbolNames = append(t.symbolNames, symbol)
	t.symbolHeaders = append(t.symbolHeaders, h)
	t.bySymbol[symbol] = Symbol(len(t.symbolNames))
}

func canonicalHeaderName(name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "<") {
		name = "<" + name + ">"
	}
	return name
}

// Register adds a symbol→header mapping on top of the embedded table, e.g.
// from user configuration. Safe only before analysis starts.
func Register(symbol, header string) {
	load().register(symbol, header)
}

// Lookup maps a qualified name like "std::vector" to its stdlib symbol.
func Lookup(qualifiedName string) (Symbol, bool) {
	s, ok := load().bySymbol[qualifiedName]
	return s, ok
}

// HeaderNamed maps a spelling like "<vector>" (brackets optional) to a known
// standard header.
func HeaderNamed(name string) (Header, bool) {
	h, ok := load().byHeader[canonicalHeaderName(name)]
	return h, ok
}

// Name returns the symbol's qualified name.
func (s Symbol) Name() string {
	t := load()
	if s <= 0 || int(s) > len(t.symbolNames) {
		return ""
	}
	return t.symbolNames[s-1]
}

// Header returns the canonical header providing the symbol. Symbols with
// several legitimate providers map to just one; ranking downstream handles
// ties between distinct symbols.
func (s Symbol) Header() Header {
	t := load()
	if s <= 0 || int(s) > len(t.symbolHeaders) {
		return 0
	}
	return t.symbolHeaders[s-1]
}

// Name returns the header's bracketed spelling, e.g. "<vector>".
func (h Header) Name() string {
	t := load()
	if h <= 0 || int(h) > len(t.headerNames) {
		return ""
	}
	return t.headerNames[h-1]
}
