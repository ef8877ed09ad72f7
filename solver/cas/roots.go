package cas

import (
	"context"
	"math"
	"math/big"
	"sort"

	"github.com/pkg/errors"

	"github.com/hrygo/eyemath/solver/normalize"
)

// maxSearchBits bounds the integer coefficients the rational-root search will factor.
const maxSearchBits = 40

// Root is a root of a univariate polynomial. Exact is set for rational roots.
type Root struct {
	Re, Im       float64
	Exact        *big.Rat
	Multiplicity int
}

// IsReal reports whether the root has no imaginary part.
func (r Root) IsReal() bool { return r.Im == 0 }

func (r Root) String() string { return normalize.FormatRoot(r.Re, r.Im) }

type rationalRoot struct {
	r    *big.Rat
	mult int
}

// Roots finds the roots of sum(coeffs[i] * x^i). Rational roots are found exactly
// and deflated; a remaining quadratic is solved by formula. A remainder of degree
// three or more is returned unsolved.
func Roots(ctx context.Context, coeffs []*big.Rat) ([]Root, []*big.Rat, error) {
	exact, rem, err := rationalRoots(ctx, coeffs)
	if err != nil {
		return nil, nil, err
	}
	var roots []Root
	for _, rr := range exact {
		f, _ := rr.r.Float64()
		roots = append(roots, Root{Re: f, Exact: rr.r, Multiplicity: rr.mult})
	}

	switch len(rem) - 1 {
	case 1:
		r := new(big.Rat).Quo(new(big.Rat).Neg(rem[0]), rem[1])
		f, _ := r.Float64()
		roots = append(roots, Root{Re: f, Exact: r, Multiplicity: 1})
		rem = nil
	case 2:
		roots = append(roots, quadraticRoots(rem[2], rem[1], rem[0])...)
		rem = nil
	default:
		if len(rem) <= 1 {
			rem = nil
		}
	}

	sort.SliceStable(roots, func(i, j int) bool {
		a, b := roots[i], roots[j]
		if a.IsReal() != b.IsReal() {
			return a.IsReal()
		}
		if a.Re != b.Re {
			return a.Re < b.Re
		}
		return a.Im > b.Im
	})
	return roots, rem, nil
}

// quadraticRoots solves a*x^2 + b*x + c with the discriminant computed exactly.
func quadraticRoots(a, b, c *big.Rat) []Root {
	disc := new(big.Rat).Mul(b, b)
	disc.Sub(disc, new(big.Rat).Mul(big.NewRat(4, 1), new(big.Rat).Mul(a, c)))
	twoA := new(big.Rat).Mul(big.NewRat(2, 1), a)

	if disc.Sign() == 0 {
		r := new(big.Rat).Quo(new(big.Rat).Neg(b), twoA)
		f, _ := r.Float64()
		return []Root{{Re: f, Exact: r, Multiplicity: 2}}
	}
	if s, ok := ratRationalPow(disc, big.NewRat(1, 2)); ok && disc.Sign() > 0 {
		lo := new(big.Rat).Quo(new(big.Rat).Sub(new(big.Rat).Neg(b), s), twoA)
		hi := new(big.Rat).Quo(new(big.Rat).Add(new(big.Rat).Neg(b), s), twoA)
		fl, _ := lo.Float64()
		fh, _ := hi.Float64()
		return []Root{{Re: fl, Exact: lo, Multiplicity: 1}, {Re: fh, Exact: hi, Multiplicity: 1}}
	}

	fb, _ := new(big.Rat).Neg(b).Float64()
	f2a, _ := twoA.Float64()
	fd, _ := disc.Float64()
	if disc.Sign() > 0 {
		s := math.Sqrt(fd)
		return []Root{{Re: (fb - s) / f2a, Multiplicity: 1}, {Re: (fb + s) / f2a, Multiplicity: 1}}
	}
	re := fb / f2a
	im := math.Abs(math.Sqrt(-fd) / f2a)
	return []Root{{Re: re, Im: im, Multiplicity: 1}, {Re: re, Im: -im, Multiplicity: 1}}
}

// rationalRoots strips zero roots, then tests every candidate p/q of the rational
// root theorem, deflating on each hit. The deflated remainder is returned.
func rationalRoots(ctx context.Context, coeffs []*big.Rat) ([]rationalRoot, []*big.Rat, error) {
	c := trimCoeffs(coeffs)
	var found []rationalRoot

	zeros := 0
	for len(c) > 1 && c[0].Sign() == 0 {
		c = c[1:]
		zeros++
	}
	if zeros > 0 {
		found = append(found, rationalRoot{r: new(big.Rat), mult: zeros})
	}

	for _, cand := range rootCandidates(c) {
		if err := ctx.Err(); err != nil {
			return nil, nil, errors.Wrap(err, "root search")
		}
		if len(c) <= 1 {
			break
		}
		mult := 0
		for len(c) > 1 && horner(c, cand).Sign() == 0 {
			c = deflate(c, cand)
			mult++
		}
		if mult > 0 {
			found = append(found, rationalRoot{r: cand, mult: mult})
		}
	}
	return found, c, nil
}

func trimCoeffs(coeffs []*big.Rat) []*big.Rat {
	n := len(coeffs)
	for n > 1 && coeffs[n-1].Sign() == 0 {
		n--
	}
	out := make([]*big.Rat, n)
	for i := 0; i < n; i++ {
		out[i] = new(big.Rat).Set(coeffs[i])
	}
	return out
}

func horner(c []*big.Rat, x *big.Rat) *big.Rat {
	acc := new(big.Rat)
	for i := len(c) - 1; i >= 0; i-- {
		acc.Mul(acc, x)
		acc.Add(acc, c[i])
	}
	return acc
}

// deflate divides c by (x - r), assuming r is a root.
func deflate(c []*big.Rat, r *big.Rat) []*big.Rat {
	n := len(c) - 1
	out := make([]*big.Rat, n)
	carry := new(big.Rat)
	for i := n; i >= 1; i-- {
		carry = new(big.Rat).Add(c[i], new(big.Rat).Mul(carry, r))
		out[i-1] = carry
	}
	return out
}

// integerCoeffs scales c by the lcm of its denominators.
func integerCoeffs(c []*big.Rat) []*big.Int {
	lcm := big.NewInt(1)
	for _, r := range c {
		d := r.Denom()
		g := new(big.Int).GCD(nil, nil, lcm, d)
		lcm.Mul(lcm, new(big.Int).Quo(d, g))
	}
	out := make([]*big.Int, len(c))
	for i, r := range c {
		v := new(big.Rat).Mul(r, new(big.Rat).SetInt(lcm))
		out[i] = new(big.Int).Set(v.Num())
	}
	return out
}

// rootCandidates lists ±p/q for p | a0 and q | an in ascending order.
func rootCandidates(c []*big.Rat) []*big.Rat {
	if len(c) < 2 {
		return nil
	}
	ints := integerCoeffs(c)
	a0 := new(big.Int).Abs(ints[0])
	an := new(big.Int).Abs(ints[len(ints)-1])
	if a0.Sign() == 0 || a0.BitLen() > maxSearchBits || an.BitLen() > maxSearchBits {
		return nil
	}
	seen := map[string]bool{}
	var out []*big.Rat
	for _, p := range divisors(a0.Int64()) {
		for _, q := range divisors(an.Int64()) {
			for _, sign := range []int64{1, -1} {
				r := big.NewRat(sign*p, q)
				if k := r.RatString(); !seen[k] {
					seen[k] = true
					out = append(out, r)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func divisors(n int64) []int64 {
	var small, large []int64
	for d := int64(1); d*d <= n; d++ {
		if n%d == 0 {
			small = append(small, d)
			if d*d != n {
				large = append(large, n/d)
			}
		}
	}
	for i := len(large) - 1; i >= 0; i-- {
		small = append(small, large[i])
	}
	return small
}
