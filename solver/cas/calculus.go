package cas

import (
	"math/big"

	"github.com/pkg/errors"
)

// ErrUnsupported is returned for input outside what the engine can handle.
var ErrUnsupported = errors.New("unsupported by the algebra engine")

// Diff differentiates n with respect to v. The result is not simplified.
func Diff(n Node, v string) (Node, error) {
	if !DependsOn(n, v) {
		return numInt(0), nil
	}
	switch t := n.(type) {
	case *Sym:
		return numInt(1), nil
	case *Neg:
		d, err := Diff(t.X, v)
		if err != nil {
			return nil, err
		}
		return &Neg{X: d}, nil
	case *Binary:
		dl, err := Diff(t.L, v)
		if err != nil {
			return nil, err
		}
		dr, err := Diff(t.R, v)
		if err != nil {
			return nil, err
		}
		switch t.Op {
		case '+', '-':
			return bin(t.Op, dl, dr), nil
		case '*':
			return bin('+', bin('*', dl, t.R), bin('*', t.L, dr)), nil
		case '/':
			return bin('/', bin('-', bin('*', dl, t.R), bin('*', t.L, dr)), bin('^', t.R, numInt(2))), nil
		default:
			return diffPower(t, dl, dr, v), nil
		}
	case *Call:
		if len(t.Args) != 1 {
			return nil, errors.Wrapf(ErrUnsupported, "derivative of %s", t.Fn)
		}
		u := t.Args[0]
		du, err := Diff(u, v)
		if err != nil {
			return nil, err
		}
		outer, err := diffOuter(t.Fn, u)
		if err != nil {
			return nil, err
		}
		return bin('*', outer, du), nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "derivative of %s", n)
}

func diffPower(t *Binary, dl, dr Node, v string) Node {
	base, exp := t.L, t.R
	switch {
	case !DependsOn(exp, v):
		// d(u^c) = c*u^(c-1)*u'
		return bin('*', bin('*', exp, bin('^', base, bin('-', exp, numInt(1)))), dl)
	case isEulerSym(base):
		return bin('*', call("exp", exp), dr)
	case !DependsOn(base, v):
		// d(a^w) = a^w*ln(a)*w'
		return bin('*', bin('*', t, call("ln", base)), dr)
	default:
		// d(u^w) = u^w*(w'*ln(u) + w*u'/u)
		return bin('*', t, bin('+', bin('*', dr, call("ln", base)), bin('/', bin('*', exp, dl), base)))
	}
}

func isEulerSym(n Node) bool {
	s, ok := n.(*Sym)
	return ok && s.Name == "e"
}

// diffOuter returns f'(u) for a unary function f.
func diffOuter(fn string, u Node) (Node, error) {
	one, two := numInt(1), numInt(2)
	switch fn {
	case "sin":
		return call("cos", u), nil
	case "cos":
		return &Neg{X: call("sin", u)}, nil
	case "tan":
		return bin('/', one, bin('^', call("cos", u), two)), nil
	case "cot":
		return &Neg{X: bin('/', one, bin('^', call("sin", u), two))}, nil
	case "sec":
		return bin('*', call("sec", u), call("tan", u)), nil
	case "csc":
		return &Neg{X: bin('*', call("csc", u), call("cot", u))}, nil
	case "arcsin":
		return bin('/', one, call("sqrt", bin('-', one, bin('^', u, two)))), nil
	case "arccos":
		return &Neg{X: bin('/', one, call("sqrt", bin('-', one, bin('^', u, two))))}, nil
	case "arctan":
		return bin('/', one, bin('+', one, bin('^', u, two))), nil
	case "sinh":
		return call("cosh", u), nil
	case "cosh":
		return call("sinh", u), nil
	case "tanh":
		return bin('/', one, bin('^', call("cosh", u), two)), nil
	case "exp":
		return call("exp", u), nil
	case "ln":
		return bin('/', one, u), nil
	case "log":
		return bin('/', one, bin('*', u, call("ln", numInt(10)))), nil
	case "sqrt":
		return bin('/', one, bin('*', two, call("sqrt", u))), nil
	case "abs":
		return bin('/', u, call("abs", u)), nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "derivative of %s", fn)
}

// Antiderivative integrates p term by term with respect to v. Each term must be
// c*v^n or c*f(a*v+b) for f in sin, cos, exp, times factors free of v.
func Antiderivative(p Poly, v string) (Poly, error) {
	out := newPoly()
	for _, t := range p.sorted() {
		it, err := integrateTerm(t, v)
		if err != nil {
			return Poly{}, err
		}
		out = out.Add(it)
	}
	return out, nil
}

func integrateTerm(t term, v string) (Poly, error) {
	power := 0
	var dependent []factor
	rest := term{coef: t.coef}
	for _, f := range t.factors {
		switch {
		case f.base == v && !f.isAtom():
			power = f.exp
		case f.isAtom() && DependsOn(f.node, v):
			dependent = append(dependent, f)
		default:
			rest.factors = append(rest.factors, f)
		}
	}
	constant := newPoly()
	constant.addTerm(rest)

	switch {
	case len(dependent) == 0 && power == -1:
		return constant.Mul(atomPoly(call("ln", call("abs", &Sym{Name: v})), 1)), nil
	case len(dependent) == 0:
		k := big.NewRat(int64(power+1), 1)
		raised := newPoly()
		raised.addTerm(term{coef: new(big.Rat).Inv(k), factors: []factor{{base: v, exp: power + 1}}})
		return constant.Mul(raised), nil
	case len(dependent) == 1 && power == 0 && dependent[0].exp == 1:
		f, err := integrateAtom(dependent[0].node, v)
		if err != nil {
			return Poly{}, err
		}
		return constant.Mul(f), nil
	}
	return Poly{}, errors.Wrapf(ErrUnsupported, "integral of %s", term{coef: big.NewRat(1, 1), factors: t.factors}.formatString())
}

func (t term) formatString() string {
	p := newPoly()
	p.addTerm(t)
	return p.String()
}

// integrateAtom handles f(a*v + b) for f in sin, cos, exp.
func integrateAtom(n Node, v string) (Poly, error) {
	c, ok := n.(*Call)
	if !ok || len(c.Args) != 1 {
		return Poly{}, errors.Wrapf(ErrUnsupported, "integral of %s", n)
	}
	arg, err := ToPoly(c.Args[0])
	if err != nil {
		return Poly{}, err
	}
	coeffs, ok := arg.CoeffsIn(v)
	if !ok || arg.Degree(v) != 1 {
		return Poly{}, errors.Wrapf(ErrUnsupported, "integral of %s", n)
	}
	a, ok := coeffs[1].Constant()
	if !ok || a.Sign() == 0 {
		return Poly{}, errors.Wrapf(ErrUnsupported, "integral of %s", n)
	}
	inv := new(big.Rat).Inv(a)

	switch c.Fn {
	case "sin":
		return atomPoly(call("cos", c.Args[0]), 1).Scale(inv.Neg(inv)), nil
	case "cos":
		return atomPoly(call("sin", c.Args[0]), 1).Scale(inv), nil
	case "exp":
		return atomPoly(c, 1).Scale(inv), nil
	}
	return Poly{}, errors.Wrapf(ErrUnsupported, "integral of %s", n)
}

// SubstituteExact evaluates p at v = x when the result is rational.
func SubstituteExact(p Poly, v string, x *big.Rat) (*big.Rat, bool) {
	sum := new(big.Rat)
	for _, t := range p.terms {
		val := new(big.Rat).Set(t.coef)
		for _, f := range t.factors {
			if f.isAtom() || f.base != v {
				return nil, false
			}
			if x.Sign() == 0 && f.exp < 0 {
				return nil, false
			}
			val.Mul(val, ratPow(x, f.exp))
		}
		sum.Add(sum, val)
	}
	return sum, true
}
