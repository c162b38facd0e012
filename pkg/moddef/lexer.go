package moddef

// Package-private lexer for module-definition text, grounded on
// original_source/src/def/parser.rs's Lexer: a byte-indexed scanner
// producing one token per call, skipping ';'-to-end-of-line comments and
// recognizing the fixed keyword set as distinct token kinds.

type tokenKind int

const (
	tokUnknown tokenKind = iota
	tokEOF
	tokIdentifier
	tokComma
	tokEqual
	tokEqualEqual
	tokKwBase
	tokKwConstant
	tokKwData
	tokKwExports
	tokKwHeapsize
	tokKwLibrary
	tokKwName
	tokKwNoname
	tokKwPrivate
	tokKwStacksize
	tokKwVersion
)

var keywords = map[string]tokenKind{
	"BASE":      tokKwBase,
	"CONSTANT":  tokKwConstant,
	"DATA":      tokKwData,
	"EXPORTS":   tokKwExports,
	"HEAPSIZE":  tokKwHeapsize,
	"LIBRARY":   tokKwLibrary,
	"NAME":      tokKwName,
	"NONAME":    tokKwNoname,
	"PRIVATE":   tokKwPrivate,
	"STACKSIZE": tokKwStacksize,
	"VERSION":   tokKwVersion,
}

type token struct {
	kind  tokenKind
	value string
}

func isWordBreak(c byte) bool {
	switch c {
	case '=', ',', ';', '\r', '\n', ' ', '\t', '\x0B':
		return true
	default:
		return false
	}
}

type lexer struct {
	text string
	pos  int
}

func newLexer(text string) *lexer {
	return &lexer{text: text}
}

// next returns the next token. It never returns a false-y zero value:
// past end of input (or at a NUL byte) it keeps returning tokEOF, mirroring
// the Rust lexer's infinite Eof tail.
func (l *lexer) next() token {
	if l.pos >= len(l.text) {
		return token{kind: tokEOF}
	}
	c := l.text[l.pos]

	switch c {
	case 0:
		return token{kind: tokEOF}
	case ';':
		for l.pos < len(l.text) && l.text[l.pos] != '\n' {
			l.pos++
		}
		if l.pos < len(l.text) {
			l.pos++ // consume the '\n'
		}
		return l.next()
	case '=':
		l.pos++
		if l.pos < len(l.text) && l.text[l.pos] == '=' {
			l.pos++
			return token{kind: tokEqualEqual, value: "=="}
		}
		return token{kind: tokEqual, value: "="}
	case ',':
		l.pos++
		return token{kind: tokComma, value: ","}
	case '"':
		start := l.pos + 1
		end := start
		l.pos = start
		for l.pos < len(l.text) {
			if l.text[l.pos] == '"' {
				end = l.pos
				l.pos++
				break
			}
			l.pos++
		}
		if l.pos >= len(l.text) {
			l.pos = len(l.text)
		}
		return token{kind: tokIdentifier, value: trimSpace(l.text[start:end])}
	default:
		start := l.pos
		end := start
		for l.pos < len(l.text) && !isWordBreak(l.text[l.pos]) {
			l.pos++
			end = l.pos
		}
		word := trimSpace(l.text[start:end])
		if word == "" {
			if l.pos < len(l.text) {
				l.pos++
			}
			return l.next()
		}
		if kind, ok := keywords[word]; ok {
			return token{kind: kind, value: word}
		}
		return token{kind: tokIdentifier, value: word}
	}
}

func trimSpace(s string) string {
	start := 0
	for start < len(s) && isSpaceByte(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isSpaceByte(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpaceByte(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\x0B':
		return true
	default:
		return false
	}
}
