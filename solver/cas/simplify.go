package cas

import (
	"math"
	"math/big"

	"github.com/pkg/errors"
)

// ErrDivisionByZero is returned when an expression divides by a literal zero.
var ErrDivisionByZero = errors.New("division by zero")

const (
	maxExpandPower   = 32
	maxMonomialPower = 256
)

// ToPoly brings n into canonical polynomial form. Subexpressions that are not
// polynomial become atoms, so the conversion only fails on division by zero.
func ToPoly(n Node) (Poly, error) {
	switch t := n.(type) {
	case *Num:
		return ConstPoly(t.Val), nil
	case *Sym:
		return symbolPoly(t.Name), nil
	case *Neg:
		x, err := ToPoly(t.X)
		return x.Neg(), err
	case *Binary:
		l, err := ToPoly(t.L)
		if err != nil {
			return Poly{}, err
		}
		r, err := ToPoly(t.R)
		if err != nil {
			return Poly{}, err
		}
		switch t.Op {
		case '+':
			return l.Add(r), nil
		case '-':
			return l.Sub(r), nil
		case '*':
			return l.Mul(r), nil
		case '/':
			return divide(l, r)
		default:
			return power(l, r)
		}
	case *Call:
		return callPoly(t)
	case *Equation:
		return ToPoly(t.Residual())
	}
	return Poly{}, errors.Errorf("unsupported node %T", n)
}

func divide(num, den Poly) (Poly, error) {
	if c, ok := den.Constant(); ok {
		if c.Sign() == 0 {
			return Poly{}, ErrDivisionByZero
		}
		return num.Scale(new(big.Rat).Inv(c)), nil
	}
	if t, ok := den.single(); ok {
		inv, _ := powTerm(t, -1)
		out := newPoly()
		out.addTerm(inv)
		return num.Mul(out), nil
	}
	return num.Mul(atomPoly(den.Node(), -1)), nil
}

func power(base, exp Poly) (Poly, error) {
	e, ok := exp.Constant()
	if !ok {
		if isEuler(base) {
			return atomPoly(call("exp", exp.Node()), 1), nil
		}
		return atomPoly(bin('^', base.Node(), exp.Node()), 1), nil
	}
	if e.IsInt() && e.Num().IsInt64() {
		k := e.Num().Int64()
		if k == 0 {
			return ConstPoly(big.NewRat(1, 1)), nil
		}
		if t, single := base.single(); single && abs64(k) <= maxMonomialPower {
			pt, ok := powTerm(t, int(k))
			if !ok {
				return Poly{}, ErrDivisionByZero
			}
			out := newPoly()
			out.addTerm(pt)
			return out, nil
		}
		if base.IsZero() {
			if k < 0 {
				return Poly{}, ErrDivisionByZero
			}
			return newPoly(), nil
		}
		if k > 0 && k <= maxExpandPower {
			return base.Pow(int(k)), nil
		}
		if k < 0 && -k <= maxExpandPower {
			return atomPoly(base.Pow(int(-k)).Node(), -1), nil
		}
		if abs64(k) <= maxMonomialPower {
			return atomPoly(base.Node(), int(k)), nil
		}
	}
	if c, ok := base.Constant(); ok {
		if r, ok := ratRationalPow(c, e); ok {
			return ConstPoly(r), nil
		}
	}
	return atomPoly(bin('^', base.Node(), exp.Node()), 1), nil
}

// isEuler reports whether p is the bare symbol e; e raised to a symbolic power reads as exp.
func isEuler(p Poly) bool {
	t, ok := p.single()
	return ok && len(t.factors) == 1 && t.factors[0].base == "e" && !t.factors[0].isAtom() &&
		t.factors[0].exp == 1 && t.coef.Cmp(big.NewRat(1, 1)) == 0
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// ratRationalPow computes c^(p/q) when the result is rational.
func ratRationalPow(c, e *big.Rat) (*big.Rat, bool) {
	if !e.Num().IsInt64() || !e.Denom().IsInt64() || e.Denom().Int64() > 64 {
		return nil, false
	}
	q := e.Denom().Int64()
	if c.Sign() < 0 && q%2 == 0 {
		return nil, false
	}
	num, ok := intRoot(new(big.Int).Abs(c.Num()), q)
	if !ok {
		return nil, false
	}
	den, ok := intRoot(c.Denom(), q)
	if !ok {
		return nil, false
	}
	root := new(big.Rat).SetFrac(num, den)
	if c.Sign() < 0 {
		root.Neg(root)
	}
	p := e.Num().Int64()
	if abs64(p) > maxMonomialPower || (root.Sign() == 0 && p < 0) {
		return nil, false
	}
	return ratPow(root, int(p)), true
}

// intRoot returns the exact k-th root of n >= 0 if there is one.
func intRoot(n *big.Int, k int64) (*big.Int, bool) {
	if k == 1 {
		return new(big.Int).Set(n), true
	}
	var r *big.Int
	if k == 2 {
		r = new(big.Int).Sqrt(n)
	} else {
		f, _ := new(big.Float).SetInt(n).Float64()
		if math.IsInf(f, 0) {
			return nil, false
		}
		r = big.NewInt(int64(math.Round(math.Pow(f, 1/float64(k)))))
	}
	if new(big.Int).Exp(r, big.NewInt(k), nil).Cmp(n) != 0 {
		return nil, false
	}
	return r, true
}

// zeroValues folds f(0) for functions with a rational value at zero.
var zeroValues = map[string]int64{
	"sin": 0, "tan": 0, "arcsin": 0, "arctan": 0, "sinh": 0, "tanh": 0,
	"cos": 1, "cosh": 1, "exp": 1,
}

func callPoly(c *Call) (Poly, error) {
	args := make([]Node, len(c.Args))
	consts := make([]*big.Rat, len(c.Args))
	allConst := true
	for i, a := range c.Args {
		p, err := ToPoly(a)
		if err != nil {
			return Poly{}, err
		}
		args[i] = p.Node()
		if consts[i], _ = p.Constant(); consts[i] == nil {
			allConst = false
		}
	}

	if allConst {
		if r, ok := foldCall(c.Fn, consts); ok {
			return ConstPoly(r), nil
		}
	}
	return atomPoly(&Call{Fn: c.Fn, Args: args}, 1), nil
}

func foldCall(fn string, args []*big.Rat) (*big.Rat, bool) {
	switch fn {
	case "sqrt":
		if args[0].Sign() < 0 {
			return nil, false
		}
		return ratRationalPow(args[0], big.NewRat(1, 2))
	case "abs":
		return new(big.Rat).Abs(args[0]), true
	case "ln", "log":
		if args[0].Cmp(big.NewRat(1, 1)) == 0 {
			return new(big.Rat), true
		}
	case "max", "min":
		out := args[0]
		for _, a := range args[1:] {
			if (fn == "max" && a.Cmp(out) > 0) || (fn == "min" && a.Cmp(out) < 0) {
				out = a
			}
		}
		return new(big.Rat).Set(out), true
	default:
		if v, ok := zeroValues[fn]; ok && args[0].Sign() == 0 {
			return big.NewRat(v, 1), true
		}
	}
	return nil, false
}

// SimplifyNode returns n in canonical form as an expression tree.
func SimplifyNode(n Node) (Node, error) {
	p, err := ToPoly(n)
	if err != nil {
		return nil, err
	}
	return p.Node(), nil
}
