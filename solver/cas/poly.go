package cas

import (
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// factor is a symbol or an opaque atom raised to an integer power. Atoms are
// subexpressions the polynomial algebra cannot see into, such as sin(x) or (x + 1)^-1.
type factor struct {
	base string
	node Node // nil for plain symbols
	exp  int
}

func (f factor) isAtom() bool { return f.node != nil }

func (f factor) text(exp int) string {
	if exp == 1 {
		return f.base
	}
	return f.base + "^" + strconv.Itoa(exp)
}

func (f factor) toNode() Node {
	if f.node != nil {
		return f.node
	}
	return &Sym{Name: f.base}
}

func factorLess(a, b factor) bool {
	if a.isAtom() != b.isAtom() {
		return !a.isAtom()
	}
	return a.base < b.base
}

type term struct {
	coef    *big.Rat
	factors []factor
}

func (t term) key() string {
	parts := make([]string, len(t.factors))
	for i, f := range t.factors {
		parts[i] = f.base + "^" + strconv.Itoa(f.exp)
	}
	return strings.Join(parts, "*")
}

func (t term) degree() int {
	d := 0
	for _, f := range t.factors {
		d += f.exp
	}
	return d
}

func mulTerms(a, b term) term {
	exps := map[string]factor{}
	for _, fs := range [][]factor{a.factors, b.factors} {
		for _, f := range fs {
			cur, ok := exps[f.base]
			if !ok {
				cur = factor{base: f.base, node: f.node}
			}
			cur.exp += f.exp
			exps[f.base] = cur
		}
	}
	out := term{coef: new(big.Rat).Mul(a.coef, b.coef)}
	for _, f := range exps {
		if f.exp != 0 {
			out.factors = append(out.factors, f)
		}
	}
	sort.Slice(out.factors, func(i, j int) bool { return factorLess(out.factors[i], out.factors[j]) })
	return out
}

// powTerm raises a single monomial to n. It fails for 0^n with n < 0.
func powTerm(t term, n int) (term, bool) {
	if t.coef.Sign() == 0 && n < 0 {
		return term{}, false
	}
	out := term{coef: ratPow(t.coef, n)}
	for _, f := range t.factors {
		out.factors = append(out.factors, factor{base: f.base, node: f.node, exp: f.exp * n})
	}
	return out, true
}

func ratPow(r *big.Rat, n int) *big.Rat {
	if n < 0 {
		return ratPow(new(big.Rat).Inv(r), -n)
	}
	num := new(big.Int).Exp(r.Num(), big.NewInt(int64(n)), nil)
	den := new(big.Int).Exp(r.Denom(), big.NewInt(int64(n)), nil)
	return new(big.Rat).SetFrac(num, den)
}

// Poly is a sparse sum of monomials with exact rational coefficients. Its String
// form is canonical: equal polynomials print identically.
type Poly struct {
	terms map[string]term
}

func newPoly() Poly { return Poly{terms: map[string]term{}} }

// ConstPoly returns the constant polynomial r.
func ConstPoly(r *big.Rat) Poly {
	p := newPoly()
	p.addTerm(term{coef: new(big.Rat).Set(r)})
	return p
}

func symbolPoly(name string) Poly {
	p := newPoly()
	p.addTerm(term{coef: big.NewRat(1, 1), factors: []factor{{base: name, exp: 1}}})
	return p
}

func atomPoly(n Node, exp int) Poly {
	p := newPoly()
	p.addTerm(term{coef: big.NewRat(1, 1), factors: []factor{{base: atomText(n), node: n, exp: exp}}})
	return p
}

func atomText(n Node) string {
	switch n.(type) {
	case *Call, *Sym:
		return n.String()
	}
	return "(" + n.String() + ")"
}

func (p Poly) addTerm(t term) {
	if t.coef.Sign() == 0 {
		return
	}
	k := t.key()
	if cur, ok := p.terms[k]; ok {
		sum := new(big.Rat).Add(cur.coef, t.coef)
		if sum.Sign() == 0 {
			delete(p.terms, k)
			return
		}
		cur.coef = sum
		p.terms[k] = cur
		return
	}
	p.terms[k] = term{coef: new(big.Rat).Set(t.coef), factors: t.factors}
}

// Add returns p + q.
func (p Poly) Add(q Poly) Poly {
	out := newPoly()
	for _, t := range p.terms {
		out.addTerm(t)
	}
	for _, t := range q.terms {
		out.addTerm(t)
	}
	return out
}

// Neg returns -p.
func (p Poly) Neg() Poly { return p.Scale(big.NewRat(-1, 1)) }

// Sub returns p - q.
func (p Poly) Sub(q Poly) Poly { return p.Add(q.Neg()) }

// Scale returns r*p.
func (p Poly) Scale(r *big.Rat) Poly {
	out := newPoly()
	for _, t := range p.terms {
		out.addTerm(term{coef: new(big.Rat).Mul(t.coef, r), factors: t.factors})
	}
	return out
}

// Mul returns p*q.
func (p Poly) Mul(q Poly) Poly {
	out := newPoly()
	for _, a := range p.terms {
		for _, b := range q.terms {
			out.addTerm(mulTerms(a, b))
		}
	}
	return out
}

// Pow returns p^n for n >= 0.
func (p Poly) Pow(n int) Poly {
	out := ConstPoly(big.NewRat(1, 1))
	for i := 0; i < n; i++ {
		out = out.Mul(p)
	}
	return out
}

// IsZero reports whether p is the zero polynomial.
func (p Poly) IsZero() bool { return len(p.terms) == 0 }

// Constant returns the value of p when p has no symbols or atoms.
func (p Poly) Constant() (*big.Rat, bool) {
	switch len(p.terms) {
	case 0:
		return new(big.Rat), true
	case 1:
		for _, t := range p.terms {
			if len(t.factors) == 0 {
				return new(big.Rat).Set(t.coef), true
			}
		}
	}
	return nil, false
}

func (p Poly) single() (term, bool) {
	if len(p.terms) != 1 {
		return term{}, false
	}
	for _, t := range p.terms {
		return t, true
	}
	return term{}, false
}

func (p Poly) sorted() []term {
	ts := make([]term, 0, len(p.terms))
	for _, t := range p.terms {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return termLess(ts[i], ts[j]) })
	return ts
}

// termLess orders by total degree, highest first, then lexicographically so
// x^2 precedes x*y precedes y^2.
func termLess(a, b term) bool {
	if da, db := a.degree(), b.degree(); da != db {
		return da > db
	}
	for i := 0; i < len(a.factors) && i < len(b.factors); i++ {
		fa, fb := a.factors[i], b.factors[i]
		if fa.base != fb.base {
			return factorLess(fa, fb)
		}
		if fa.exp != fb.exp {
			return fa.exp > fb.exp
		}
	}
	if len(a.factors) != len(b.factors) {
		return len(a.factors) > len(b.factors)
	}
	return a.key() < b.key()
}

func (p Poly) String() string {
	ts := p.sorted()
	if len(ts) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, t := range ts {
		neg, body := t.format()
		switch {
		case i == 0 && neg:
			sb.WriteString("-")
		case i > 0 && neg:
			sb.WriteString(" - ")
		case i > 0:
			sb.WriteString(" + ")
		}
		sb.WriteString(body)
	}
	return sb.String()
}

// format renders |t| and reports the sign separately.
func (t term) format() (bool, string) {
	abs := new(big.Rat).Abs(t.coef)
	var num, den []factor
	for _, f := range t.factors {
		if f.exp > 0 {
			num = append(num, f)
		} else {
			den = append(den, factor{base: f.base, node: f.node, exp: -f.exp})
		}
	}

	numCoef, denCoef := FormatRat(abs), ""
	if !abs.IsInt() && !isTerminating(abs) {
		numCoef, denCoef = abs.Num().String(), abs.Denom().String()
	}
	if numCoef == "1" && len(num) > 0 {
		numCoef = ""
	}

	out := joinFactors(numCoef, num)
	if denCoef == "" && len(den) == 0 {
		return t.coef.Sign() < 0, out
	}
	d := joinFactors(denCoef, den)
	if (denCoef != "" && len(den) > 0) || len(den) > 1 {
		d = "(" + d + ")"
	}
	return t.coef.Sign() < 0, out + "/" + d
}

func joinFactors(coef string, fs []factor) string {
	s := coef
	for i, f := range fs {
		switch {
		case s == "":
			s = f.text(f.exp)
		case i == 0:
			s += f.text(f.exp)
		default:
			s += "*" + f.text(f.exp)
		}
	}
	return s
}

// Node converts p back to an expression tree.
func (p Poly) Node() Node {
	ts := p.sorted()
	if len(ts) == 0 {
		return numInt(0)
	}
	var out Node
	for i, t := range ts {
		n := t.absNode()
		neg := t.coef.Sign() < 0
		switch {
		case i == 0 && neg:
			out = &Neg{X: n}
		case i == 0:
			out = n
		case neg:
			out = bin('-', out, n)
		default:
			out = bin('+', out, n)
		}
	}
	return out
}

func (t term) absNode() Node {
	abs := new(big.Rat).Abs(t.coef)
	var num, den Node
	mul := func(acc Node, n Node) Node {
		if acc == nil {
			return n
		}
		return bin('*', acc, n)
	}
	if abs.Cmp(big.NewRat(1, 1)) != 0 {
		num = numRat(abs)
	}
	for _, f := range t.factors {
		e := f.exp
		if e < 0 {
			e = -e
		}
		n := f.toNode()
		if e != 1 {
			n = bin('^', n, numInt(int64(e)))
		}
		if f.exp > 0 {
			num = mul(num, n)
		} else {
			den = mul(den, n)
		}
	}
	if num == nil {
		num = numInt(1)
	}
	if den == nil {
		return num
	}
	return bin('/', num, den)
}

// CoeffsIn splits p by powers of v. It fails when v appears inside an atom or
// with a negative exponent.
func (p Poly) CoeffsIn(v string) (map[int]Poly, bool) {
	out := map[int]Poly{}
	for _, t := range p.terms {
		deg := 0
		rest := term{coef: t.coef}
		for _, f := range t.factors {
			switch {
			case f.base == v && !f.isAtom():
				deg = f.exp
			case f.isAtom() && DependsOn(f.node, v):
				return nil, false
			default:
				rest.factors = append(rest.factors, f)
			}
		}
		if deg < 0 {
			return nil, false
		}
		c, ok := out[deg]
		if !ok {
			c = newPoly()
			out[deg] = c
		}
		c.addTerm(rest)
	}
	return out, true
}

// Univariate returns the dense coefficients of p in v, index = degree. It fails
// unless every coefficient is a rational constant.
func (p Poly) Univariate(v string) ([]*big.Rat, bool) {
	byDeg, ok := p.CoeffsIn(v)
	if !ok {
		return nil, false
	}
	n := 0
	for d := range byDeg {
		if d > n {
			n = d
		}
	}
	coeffs := make([]*big.Rat, n+1)
	for i := range coeffs {
		coeffs[i] = new(big.Rat)
	}
	for d, c := range byDeg {
		r, ok := c.Constant()
		if !ok {
			return nil, false
		}
		coeffs[d] = r
	}
	return coeffs, true
}

// Degree is the highest power of v in p, or -1 when p is not polynomial in v.
func (p Poly) Degree(v string) int {
	byDeg, ok := p.CoeffsIn(v)
	if !ok {
		return -1
	}
	n := 0
	for d, c := range byDeg {
		if d > n && !c.IsZero() {
			n = d
		}
	}
	return n
}

// Symbols lists the plain symbols of p, ignoring atoms.
func (p Poly) Symbols() []string {
	seen := map[string]struct{}{}
	for _, t := range p.terms {
		for _, f := range t.factors {
			if !f.isAtom() {
				seen[f.base] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (p Poly) hasAtoms() bool {
	for _, t := range p.terms {
		for _, f := range t.factors {
			if f.isAtom() {
				return true
			}
		}
	}
	return false
}

// polyFromCoeffs builds sum(c[i] * v^i).
func polyFromCoeffs(coeffs []*big.Rat, v string) Poly {
	out := newPoly()
	for i, c := range coeffs {
		t := term{coef: c}
		if i > 0 {
			t.factors = []factor{{base: v, exp: i}}
		}
		out.addTerm(t)
	}
	return out
}
