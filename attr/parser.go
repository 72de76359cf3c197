package attr

import (
	"fmt"
	"go/scanner"
	"go/token"
	"strings"

	"github.com/teranos/capgen/errors"
)

var (
	// ErrUnexpectedToken is returned for any token the grammar does not allow at that point
	ErrUnexpectedToken = errors.Category(errors.ErrGrammar, "unexpected token")

	// ErrUnterminatedGroup is returned when input ends inside a group
	ErrUnterminatedGroup = errors.Category(errors.ErrGrammar, "unterminated group")

	// ErrEmptyArgument is returned for `,,`, a leading comma or `key=` with no value
	ErrEmptyArgument = errors.Category(errors.ErrGrammar, "empty argument")
)

// GrammarError locates a syntax error in directive arguments.
type GrammarError struct {
	Msg   string
	Found string
	Span  Span
	Input string
}

func (e *GrammarError) Error() string {
	if e.Found == "" {
		return fmt.Sprintf("%s at offset %d", e.Msg, e.Span.Start)
	}
	return fmt.Sprintf("%s %q at offset %d", e.Msg, e.Found, e.Span.Start)
}

// Caret renders the input with the offending span underlined.
func (e *GrammarError) Caret() string {
	width := e.Span.End - e.Span.Start
	if width < 1 {
		width = 1
	}
	return e.Input + "\n" + strings.Repeat(" ", e.Span.Start) + strings.Repeat("^", width)
}

type tok struct {
	kind token.Token
	lit  string
	span Span
}

type parser struct {
	input   string
	toks    []tok
	pos     int
	scanErr *tok
}

// Parse parses a directive argument string into an ArgsList.
func Parse(input string) (ArgsList, error) {
	p := &parser{input: input}
	if err := p.scan(); err != nil {
		return nil, err
	}

	list, err := p.parseList(token.EOF)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != token.EOF {
		return nil, p.fail(ErrUnexpectedToken, t)
	}
	return list, nil
}

// MustParse is Parse for fixed inputs in tests and tables; it panics on error.
func MustParse(input string) ArgsList {
	list, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return list
}

func (p *parser) scan() error {
	src := []byte(p.input)
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))

	var s scanner.Scanner
	s.Init(file, src, func(pos token.Position, msg string) {
		if p.scanErr == nil {
			p.scanErr = &tok{kind: token.ILLEGAL, lit: msg, span: Span{pos.Offset, pos.Offset + 1}}
		}
	}, 0)

	for {
		pos, kind, lit := s.Scan()
		if p.scanErr != nil {
			return p.fail(ErrUnexpectedToken, *p.scanErr)
		}
		// Automatic semicolons from newlines and EOF are not part of the grammar
		if kind == token.SEMICOLON && lit == "\n" {
			continue
		}
		start := file.Offset(pos)
		if kind == token.EOF {
			start = len(src)
		}
		text := lit
		if text == "" && kind != token.EOF {
			text = kind.String()
		}
		p.toks = append(p.toks, tok{kind: kind, lit: text, span: Span{start, start + len(text)}})
		if kind == token.EOF {
			return nil
		}
	}
}

func (p *parser) peek() tok {
	return p.toks[p.pos]
}

func (p *parser) next() tok {
	t := p.toks[p.pos]
	if t.kind != token.EOF {
		p.pos++
	}
	return t
}

func (p *parser) fail(kind error, t tok) error {
	ge := &GrammarError{Span: t.span, Input: p.input}
	switch {
	case errors.Is(kind, ErrUnterminatedGroup):
		ge.Msg = "unterminated group"
	case errors.Is(kind, ErrEmptyArgument):
		ge.Msg = "empty argument"
	default:
		ge.Msg = "unexpected token"
		ge.Found = t.lit
		if t.kind == token.EOF {
			ge.Found = "end of input"
		}
	}
	return errors.WithDetail(errors.MarkAs(ge, kind), ge.Caret())
}

// parseList reads arguments until closing (EOF or ')'), which it leaves unconsumed.
func (p *parser) parseList(closing token.Token) (ArgsList, error) {
	list := ArgsList{}
	if p.peek().kind == closing {
		return list, nil
	}

	for {
		a, err := p.parseArg(closing)
		if err != nil {
			return nil, err
		}
		list = append(list, a)

		t := p.peek()
		switch {
		case t.kind == token.COMMA:
			p.next()
			if p.peek().kind == closing {
				return list, nil
			}
		case t.kind == closing:
			return list, nil
		case t.kind == token.EOF:
			return nil, p.fail(ErrUnterminatedGroup, t)
		default:
			return nil, p.fail(ErrUnexpectedToken, t)
		}
	}
}

func (p *parser) parseArg(closing token.Token) (Arg, error) {
	t := p.peek()
	switch t.kind {
	case token.LPAREN:
		return p.parseGroup()
	case token.IDENT:
		p.next()
		if p.peek().kind != token.ASSIGN {
			return Bare{Name: t.lit, Pos: t.span}, nil
		}
		p.next()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return KeyValue{Key: t.lit, Value: v, Pos: Span{t.span.Start, v.Span().End}}, nil
	case token.COMMA:
		return nil, p.fail(ErrEmptyArgument, t)
	case token.EOF:
		if closing != token.EOF {
			return nil, p.fail(ErrUnterminatedGroup, t)
		}
	}
	return nil, p.fail(ErrUnexpectedToken, t)
}

func (p *parser) parseValue() (Value, error) {
	t := p.peek()
	switch t.kind {
	case token.IDENT:
		p.next()
		return Ident{Name: t.lit, Pos: t.span}, nil
	case token.LPAREN:
		return p.parseGroup()
	case token.COMMA, token.RPAREN, token.EOF:
		return nil, p.fail(ErrEmptyArgument, t)
	}
	return nil, p.fail(ErrUnexpectedToken, t)
}

func (p *parser) parseGroup() (Group, error) {
	open := p.next()
	args, err := p.parseList(token.RPAREN)
	if err != nil {
		return Group{}, err
	}
	closeTok := p.next()
	return Group{Args: args, Pos: Span{open.span.Start, closeTok.span.End}}, nil
}
