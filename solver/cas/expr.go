// Package cas is a small computer-algebra engine over exact rationals. It parses the
// internal plain-text notation and implements the solving primitives used by the
// in-process backend: simplify, solve, find-roots, factorize, differentiate and integrate.
package cas

import (
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Node is an expression tree node.
type Node interface {
	String() string
}

// Num is an exact rational literal.
type Num struct{ Val *big.Rat }

// Sym is a named symbol. Constants such as pi are symbols too.
type Sym struct{ Name string }

// Neg is unary minus.
type Neg struct{ X Node }

// Binary is an infix operation; Op is one of + - * / ^.
type Binary struct {
	Op   byte
	L, R Node
}

// Call is a function application.
type Call struct {
	Fn   string
	Args []Node
}

// Equation is lhs = rhs.
type Equation struct {
	LHS, RHS Node
}

// ErrEvaluate is returned when a node cannot be evaluated numerically.
var ErrEvaluate = errors.New("cannot evaluate expression")

// constants are symbols with a fixed numeric value.
var constants = map[string]float64{
	"pi":  math.Pi,
	"inf": math.Inf(1),
}

const (
	precSum = iota + 1
	precProduct
	precUnary
	precPower
	precAtom
)

func numInt(n int64) *Num         { return &Num{Val: new(big.Rat).SetInt64(n)} }
func numRat(r *big.Rat) *Num      { return &Num{Val: new(big.Rat).Set(r)} }
func bin(op byte, l, r Node) Node { return &Binary{Op: op, L: l, R: r} }
func call(fn string, args ...Node) Node {
	return &Call{Fn: fn, Args: args}
}

func (n *Num) String() string { return FormatRat(n.Val) }
func (s *Sym) String() string { return s.Name }

func (n *Neg) String() string {
	return "-" + wrap(n.X, prec(n.X) < precUnary)
}

func (b *Binary) String() string {
	p := precOf(b.Op)
	var left, right bool
	switch b.Op {
	case '^':
		left = prec(b.L) <= precPower
		right = prec(b.R) < precAtom
	case '-', '/':
		left = prec(b.L) < p
		right = prec(b.R) <= p
	default:
		left = prec(b.L) < p
		right = prec(b.R) < p
	}
	op := string(b.Op)
	if b.Op == '+' || b.Op == '-' {
		op = " " + op + " "
	}
	return wrap(b.L, left) + op + wrap(b.R, right)
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Fn + "(" + strings.Join(args, ", ") + ")"
}

func (e *Equation) String() string {
	return e.LHS.String() + " = " + e.RHS.String()
}

// Residual returns lhs - rhs.
func (e *Equation) Residual() Node {
	return bin('-', e.LHS, e.RHS)
}

func wrap(n Node, parens bool) string {
	if parens {
		return "(" + n.String() + ")"
	}
	return n.String()
}

func precOf(op byte) int {
	switch op {
	case '+', '-':
		return precSum
	case '*', '/':
		return precProduct
	default:
		return precPower
	}
}

func prec(n Node) int {
	switch t := n.(type) {
	case *Binary:
		return precOf(t.Op)
	case *Neg:
		return precUnary
	case *Num:
		if t.Val.Sign() < 0 {
			return precUnary
		}
		if !t.Val.IsInt() && !isTerminating(t.Val) {
			return precProduct
		}
		return precAtom
	default:
		return precAtom
	}
}

// FreeSymbols returns the sorted non-constant symbol names in n.
func FreeSymbols(n Node) []string {
	seen := map[string]struct{}{}
	collectSymbols(n, seen)
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func collectSymbols(n Node, out map[string]struct{}) {
	switch t := n.(type) {
	case *Sym:
		if _, ok := constants[t.Name]; !ok {
			out[t.Name] = struct{}{}
		}
	case *Neg:
		collectSymbols(t.X, out)
	case *Binary:
		collectSymbols(t.L, out)
		collectSymbols(t.R, out)
	case *Call:
		for _, a := range t.Args {
			collectSymbols(a, out)
		}
	case *Equation:
		collectSymbols(t.LHS, out)
		collectSymbols(t.RHS, out)
	}
}

// DependsOn reports whether variable occurs in n.
func DependsOn(n Node, variable string) bool {
	for _, s := range FreeSymbols(n) {
		if s == variable {
			return true
		}
	}
	return false
}

// Eval evaluates n numerically with the given symbol values.
func Eval(n Node, env map[string]float64) (float64, error) {
	switch t := n.(type) {
	case *Num:
		f, _ := t.Val.Float64()
		return f, nil
	case *Sym:
		if v, ok := env[t.Name]; ok {
			return v, nil
		}
		if v, ok := constants[t.Name]; ok {
			return v, nil
		}
		if t.Name == "e" {
			return math.E, nil
		}
		return 0, errors.Wrapf(ErrEvaluate, "unbound symbol %q", t.Name)
	case *Neg:
		v, err := Eval(t.X, env)
		return -v, err
	case *Binary:
		l, err := Eval(t.L, env)
		if err != nil {
			return 0, err
		}
		r, err := Eval(t.R, env)
		if err != nil {
			return 0, err
		}
		switch t.Op {
		case '+':
			return l + r, nil
		case '-':
			return l - r, nil
		case '*':
			return l * r, nil
		case '/':
			if r == 0 {
				return 0, errors.Wrap(ErrEvaluate, "division by zero")
			}
			return l / r, nil
		default:
			return math.Pow(l, r), nil
		}
	case *Call:
		args := make([]float64, len(t.Args))
		for i, a := range t.Args {
			v, err := Eval(a, env)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		return evalCall(t.Fn, args)
	}
	return 0, errors.Wrapf(ErrEvaluate, "unsupported node %T", n)
}

var unaryFuncs = map[string]func(float64) float64{
	"sin": math.Sin, "cos": math.Cos, "tan": math.Tan,
	"cot":    func(x float64) float64 { return 1 / math.Tan(x) },
	"sec":    func(x float64) float64 { return 1 / math.Cos(x) },
	"csc":    func(x float64) float64 { return 1 / math.Sin(x) },
	"arcsin": math.Asin, "arccos": math.Acos, "arctan": math.Atan,
	"sinh": math.Sinh, "cosh": math.Cosh, "tanh": math.Tanh,
	"ln": math.Log, "log": math.Log10, "exp": math.Exp,
	"sqrt": math.Sqrt, "abs": math.Abs,
}

func evalCall(fn string, args []float64) (float64, error) {
	switch fn {
	case "max", "min":
		if len(args) == 0 {
			return 0, errors.Wrapf(ErrEvaluate, "%s needs arguments", fn)
		}
		out := args[0]
		for _, a := range args[1:] {
			if (fn == "max" && a > out) || (fn == "min" && a < out) {
				out = a
			}
		}
		return out, nil
	}
	f, ok := unaryFuncs[fn]
	if !ok || len(args) != 1 {
		return 0, errors.Wrapf(ErrEvaluate, "unsupported function %s/%d", fn, len(args))
	}
	v := f(args[0])
	if math.IsNaN(v) {
		return 0, errors.Wrapf(ErrEvaluate, "%s(%g) is undefined", fn, args[0])
	}
	return v, nil
}

// FormatRat prints integers plainly, terminating fractions as decimals and
// everything else as p/q.
func FormatRat(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	if isTerminating(r) {
		return r.FloatString(decimalDigits(r))
	}
	return r.Num().String() + "/" + r.Denom().String()
}

// isTerminating reports whether r has a finite decimal expansion.
func isTerminating(r *big.Rat) bool {
	d := new(big.Int).Set(r.Denom())
	two, five := big.NewInt(2), big.NewInt(5)
	mod := new(big.Int)
	for _, p := range []*big.Int{two, five} {
		for {
			q, m := new(big.Int).QuoRem(d, p, mod)
			if m.Sign() != 0 {
				break
			}
			d = q
		}
	}
	return d.Cmp(big.NewInt(1)) == 0
}

// decimalDigits counts the fractional digits of a terminating r.
func decimalDigits(r *big.Rat) int {
	x := new(big.Rat).Set(r)
	ten := big.NewRat(10, 1)
	n := 0
	for !x.IsInt() {
		x.Mul(x, ten)
		n++
	}
	return n
}
