package cas

import (
	"math/big"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// ErrSyntax is returned for input the parser cannot read.
var ErrSyntax = errors.New("syntax error")

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNum
	tokIdent
	tokFunc
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var functions = map[string]bool{
	"sin": true, "cos": true, "tan": true, "cot": true, "sec": true, "csc": true,
	"arcsin": true, "arccos": true, "arctan": true,
	"sinh": true, "cosh": true, "tanh": true,
	"log": true, "ln": true, "exp": true, "sqrt": true, "abs": true,
	"max": true, "min": true,
}

// words are multi-letter identifiers kept whole; other letter runs split into
// single-letter symbols so "xy" reads as x*y.
var words = []string{
	"arcsin", "arccos", "arctan", "sinh", "cosh", "tanh",
	"sin", "cos", "tan", "cot", "sec", "csc", "log", "ln", "exp", "sqrt", "abs", "max", "min",
	"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta", "iota", "kappa",
	"lambda", "mu", "nu", "xi", "pi", "rho", "sigma", "tau", "upsilon", "phi", "chi", "psi",
	"omega", "inf",
}

func tokenize(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNum, text: string(runes[start:i]), pos: start})
		case isLetter(r):
			start := i
			for i < len(runes) && isLetter(runes[i]) {
				i++
			}
			toks = append(toks, splitLetters(string(runes[start:i]), start)...)
		case strings.ContainsRune("+-*/^()=,", r):
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++
		default:
			return nil, errors.Wrapf(ErrSyntax, "unexpected %q at offset %d", r, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(runes)}), nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func splitLetters(run string, pos int) []token {
	var toks []token
	for len(run) > 0 {
		n := 1
		for _, w := range words {
			if strings.HasPrefix(run, w) && len(w) > n {
				n = len(w)
			}
		}
		kind := tokIdent
		if functions[run[:n]] {
			kind = tokFunc
		}
		toks = append(toks, token{kind: kind, text: run[:n], pos: pos})
		run = run[n:]
		pos += n
	}
	return toks
}

type parser struct {
	toks []token
	pos  int
}

// Parse reads an expression in internal notation.
func Parse(src string) (Node, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return n, nil
}

// ParseEquation reads "lhs = rhs". A bare expression e reads as e = 0.
func ParseEquation(src string) (*Equation, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	lhs, err := p.expr()
	if err != nil {
		return nil, err
	}
	eq := &Equation{LHS: lhs, RHS: numInt(0)}
	if p.peek().text == "=" && p.peek().kind == tokOp {
		p.next()
		if eq.RHS, err = p.expr(); err != nil {
			return nil, err
		}
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return eq, nil
}

func newParser(src string) (*parser, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if toks[0].kind == tokEOF {
		return nil, errors.Wrap(ErrSyntax, "empty expression")
	}
	return &parser{toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == text
}

func (p *parser) expectEOF() error {
	if t := p.peek(); t.kind != tokEOF {
		return errors.Wrapf(ErrSyntax, "unexpected %q at offset %d", t.text, t.pos)
	}
	return nil
}

func (p *parser) expect(text string) error {
	if !p.isOp(text) {
		t := p.peek()
		return errors.Wrapf(ErrSyntax, "expected %q at offset %d, got %q", text, t.pos, t.text)
	}
	p.next()
	return nil
}

func (p *parser) expr() (Node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().text[0]
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = bin(op, left, right)
	}
	return left, nil
}

func (p *parser) term() (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		var op byte
		switch {
		case p.isOp("*") || p.isOp("/"):
			op = p.next().text[0]
		case p.startsPrimary():
			op = '*'
		default:
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = bin(op, left, right)
	}
}

func (p *parser) startsPrimary() bool {
	t := p.peek()
	return t.kind == tokNum || t.kind == tokIdent || t.kind == tokFunc || (t.kind == tokOp && t.text == "(")
}

func (p *parser) unary() (Node, error) {
	switch {
	case p.isOp("-"):
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Neg{X: x}, nil
	case p.isOp("+"):
		p.next()
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() (Node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("^") {
		return base, nil
	}
	p.next()
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return bin('^', base, exp), nil
}

func (p *parser) primary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		if strings.Count(t.text, ".") > 1 {
			return nil, errors.Wrapf(ErrSyntax, "malformed number %q", t.text)
		}
		r, ok := new(big.Rat).SetString(t.text)
		if !ok {
			return nil, errors.Wrapf(ErrSyntax, "malformed number %q", t.text)
		}
		return &Num{Val: r}, nil
	case tokIdent:
		return &Sym{Name: t.text}, nil
	case tokFunc:
		return p.call(t.text)
	case tokOp:
		if t.text == "(" {
			inner, err := p.expr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
	case tokEOF:
		return nil, errors.Wrap(ErrSyntax, "unexpected end of expression")
	}
	return nil, errors.Wrapf(ErrSyntax, "unexpected %q at offset %d", t.text, t.pos)
}

// call parses fn(args) or the parenless form "sin x".
func (p *parser) call(fn string) (Node, error) {
	if !p.isOp("(") {
		arg, err := p.power()
		if err != nil {
			return nil, err
		}
		return call(fn, arg), nil
	}
	p.next()
	var args []Node
	for {
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	if fn != "max" && fn != "min" && len(args) != 1 {
		return nil, errors.Wrapf(ErrSyntax, "%s takes one argument", fn)
	}
	return &Call{Fn: fn, Args: args}, nil
}
