package moddef

// Parser for module-definition (.def) text, grounded on
// original_source/src/def/parser.rs: a one-token-lookahead recursive
// descent parser with an explicit pushback stack in place of a peekable
// iterator, kept deliberately close to the original's control flow so the
// supplemental directives in SPEC_FULL.md §4 behave identically.

import (
	"fmt"
	"strconv"
	"strings"

	"dlltool/pkg/machine"
)

// ModuleDef is the parsed .def file: the library/import name, the ordered
// export list, and the optional global flags the core ignores
// (spec.md §3, SPEC_FULL.md §4).
type ModuleDef struct {
	Exports           []Export
	ImportName        string
	ImageBase         uint64
	StackReserve      uint64
	StackCommit       uint64
	HeapReserve       uint64
	HeapCommit        uint64
	MajorImageVersion uint32
	MinorImageVersion uint32
}

// Export is one EXPORTS entry. Name and ExtName follow
// original_source/src/def/mod.rs's ShortExport fields verbatim: Name is
// the symbol as written (the internal/object-side name when an alias is
// present), ExtName is the external name in "extname = name" syntax, or
// nil when no alias was used. pkg/implib folds these the way
// ImportLibrary::from_def does - see DESIGN.md.
type Export struct {
	Name        string
	ExtName     *string
	AliasTarget string
	Ordinal     uint16
	NoName      bool
	Data        bool
	Private     bool
	Constant    bool
}

// UnknownDirectiveError reports a top-level keyword this parser does not
// recognize (spec.md §7/def/error.rs's UnknownDirective).
type UnknownDirectiveError struct {
	Directive string
}

func (e *UnknownDirectiveError) Error() string {
	return fmt.Sprintf("moddef: unknown directive: %s", e.Directive)
}

// ExpectedIdentifierError reports a directive that required an identifier
// token where one was not found (def/error.rs's ExpectedIdentifier).
type ExpectedIdentifierError struct{}

func (e *ExpectedIdentifierError) Error() string { return "moddef: expected identifier token" }

// ExpectedIntegerError reports a numeric argument that failed to parse as
// an integer (def/error.rs's ExpectedInteger). Also used for invalid
// ordinals, which the original raises with the same underlying message.
type ExpectedIntegerError struct {
	Value string
}

func (e *ExpectedIntegerError) Error() string {
	return fmt.Sprintf("moddef: expected integer, got %q", e.Value)
}

// ExpectedEqualError reports a missing '=' after BASE (def/error.rs's
// ExpectedEqual).
type ExpectedEqualError struct{}

func (e *ExpectedEqualError) Error() string { return "moddef: expected equal token" }

type parser struct {
	lex     *lexer
	stack   []token
	def     ModuleDef
	machine machine.Type
}

// Parse parses .def text for the given target machine. machine only
// affects I386 auto-decoration of export/alias names (SPEC_FULL.md §4).
func Parse(text string, m machine.Type) (*ModuleDef, error) {
	p := &parser{lex: newLexer(text), machine: m}
	for {
		eof, err := p.parseOne()
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
	}
	return &p.def, nil
}

func (p *parser) read() token {
	if n := len(p.stack); n > 0 {
		t := p.stack[n-1]
		p.stack = p.stack[:n-1]
		return t
	}
	return p.lex.next()
}

func (p *parser) push(t token) {
	p.stack = append(p.stack, t)
}

func (p *parser) parseOne() (eof bool, err error) {
	tok := p.read()
	switch tok.kind {
	case tokEOF:
		return true, nil
	case tokKwExports:
		for {
			next := p.read()
			if next.kind != tokIdentifier {
				p.push(next)
				return false, nil
			}
			if err := p.parseExport(next); err != nil {
				return false, err
			}
		}
	case tokKwHeapsize:
		reserve, commit, err := p.parseNumbers()
		if err != nil {
			return false, err
		}
		p.def.HeapReserve, p.def.HeapCommit = reserve, commit
	case tokKwStacksize:
		reserve, commit, err := p.parseNumbers()
		if err != nil {
			return false, err
		}
		p.def.StackReserve, p.def.StackCommit = reserve, commit
	case tokKwLibrary, tokKwName:
		name, base, err := p.parseName()
		if err != nil {
			return false, err
		}
		p.def.ImportName, p.def.ImageBase = name, base
	case tokKwVersion:
		major, minor, err := p.parseVersion()
		if err != nil {
			return false, err
		}
		p.def.MajorImageVersion, p.def.MinorImageVersion = major, minor
	default:
		return false, &UnknownDirectiveError{tok.value}
	}
	return false, nil
}

func isDecorated(sym string) bool {
	return strings.HasPrefix(sym, "@") || strings.HasPrefix(sym, "?") || strings.Contains(sym, "@")
}

func (p *parser) parseExport(tok token) error {
	export := Export{Name: tok.value}

	tok = p.read()
	if tok.kind == tokEqual {
		tok = p.read()
		if tok.kind != tokIdentifier {
			return &ExpectedIdentifierError{}
		}
		ext := export.Name
		export.ExtName = &ext
		export.Name = tok.value
	} else {
		p.push(tok)
	}

	if lead := p.machine.Descriptor().Decoration; lead != 0 {
		if !isDecorated(export.Name) {
			export.Name = string(lead) + export.Name
		}
		if export.ExtName != nil && !isDecorated(*export.ExtName) {
			decorated := string(lead) + *export.ExtName
			export.ExtName = &decorated
		}
	}

	for {
		tok = p.read()
		if tok.kind == tokIdentifier && strings.HasPrefix(tok.value, "@") {
			if tok.value == "@" {
				// "foo @ 10"
				numTok := p.read()
				if numTok.value == "" {
					return &ExpectedIdentifierError{}
				}
				ord, err := strconv.ParseUint(numTok.value, 10, 16)
				if err != nil {
					return &ExpectedIntegerError{numTok.value}
				}
				export.Ordinal = uint16(ord)
			} else if _, err := strconv.ParseUint(tok.value[1:], 10, 16); err != nil {
				// "foo \n @bar" - not an ordinal modifier, but the next
				// export (fastcall decorated). Complete the current one.
				p.push(tok)
				p.def.Exports = append(p.def.Exports, export)
				return nil
			} else {
				// "foo @10"
				ord, _ := strconv.ParseUint(tok.value[1:], 10, 16)
				export.Ordinal = uint16(ord)
			}
			next := p.read()
			if next.kind == tokKwNoname {
				export.NoName = true
			} else {
				p.push(next)
			}
			continue
		}

		switch tok.kind {
		case tokKwData:
			export.Data = true
		case tokKwConstant:
			export.Constant = true
		case tokKwPrivate:
			export.Private = true
		case tokEqualEqual:
			next := p.read()
			if next.value == "" {
				return &ExpectedIdentifierError{}
			}
			export.AliasTarget = next.value
		default:
			p.push(tok)
			p.def.Exports = append(p.def.Exports, export)
			return nil
		}
	}
}

// parseNumbers parses "reserve[,commit]" after HEAPSIZE/STACKSIZE.
func (p *parser) parseNumbers() (reserve, commit uint64, err error) {
	reserve, err = p.readAsInt()
	if err != nil {
		return 0, 0, err
	}
	tok := p.read()
	if tok.kind != tokComma {
		p.push(tok)
		return reserve, 0, nil
	}
	commit, err = p.readAsInt()
	if err != nil {
		return 0, 0, err
	}
	return reserve, commit, nil
}

// parseName parses "outputPath [BASE=address]" after LIBRARY/NAME.
func (p *parser) parseName() (name string, base uint64, err error) {
	tok := p.read()
	if tok.kind != tokIdentifier {
		p.push(tok)
		return "", 0, nil
	}
	name = tok.value

	tok = p.read()
	if tok.kind != tokKwBase {
		p.push(tok)
		return name, 0, nil
	}
	tok = p.read()
	if tok.kind != tokEqual {
		return "", 0, &ExpectedEqualError{}
	}
	base, err = p.readAsInt()
	if err != nil {
		return "", 0, err
	}
	return name, base, nil
}

// parseVersion parses "major[.minor]" after VERSION.
func (p *parser) parseVersion() (major, minor uint32, err error) {
	tok := p.read()
	if tok.kind != tokIdentifier {
		return 0, 0, &ExpectedIdentifierError{}
	}
	before, after, hasDot := strings.Cut(tok.value, ".")
	major64, err := strconv.ParseUint(before, 10, 32)
	if err != nil {
		return 0, 0, &ExpectedIntegerError{before}
	}
	if !hasDot {
		return uint32(major64), 0, nil
	}
	minor64, err := strconv.ParseUint(after, 10, 32)
	if err != nil {
		return 0, 0, &ExpectedIntegerError{after}
	}
	return uint32(major64), uint32(minor64), nil
}

func (p *parser) readAsInt() (uint64, error) {
	tok := p.read()
	if tok.kind != tokIdentifier {
		return 0, &ExpectedIdentifierError{}
	}
	v, err := strconv.ParseUint(tok.value, 10, 64)
	if err != nil {
		return 0, &ExpectedIntegerError{tok.value}
	}
	return v, nil
}
