package parse

import (
	"github.com/phobologic/includecheck/internal/source"
)

// Token is an identifier-like token seen by the preprocessor.
type Token struct {
	Text string
	Loc  source.Loc
	// HadMacroDefinition reports whether the identifier was ever the name
	// of a macro definition, even one since undefined.
	HadMacroDefinition bool
}

// MacroInfo describes one definition of a macro.
type MacroInfo struct {
	Name           string
	DefLoc         source.Loc // location of the macro name in its #define
	IsFunctionLike bool
	Params         []string
	Tokens         []Token    // identifier tokens of the body
	BodyLoc        source.Loc // where the body text is spelled
	BodyLen        int
	IsBuiltin      bool // compiler-predefined, e.g. __FILE__
}

func isIdentByte(b byte, first bool) bool {
	if b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') {
		return true
	}
	return !first && b >= '0' && b <= '9'
}

// scanIdentifiers returns the identifier tokens of text, with locations
// offset from base. String and character literals are skipped.
func scanIdentifiers(text string, base source.Loc) []Token {
	var toks []Token
	for i := 0; i < len(text); {
		switch b := text[i]; {
		case b == '"' || b == '\'':
			quote := b
			i++
			for i < len(text) && text[i] != quote {
				if text[i] == '\\' && i+1 < len(text) {
					i++
				}
				i++
			}
			i++
		case isIdentByte(b, true):
			start := i
			for i < len(text) && isIdentByte(text[i], false) {
				i++
			}
			toks = append(toks, Token{
				Text: text[start:i],
				Loc:  base.WithOffset(start),
			})
		default:
			i++
		}
	}
	return toks
}
