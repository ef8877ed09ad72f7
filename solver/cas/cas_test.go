package cas

import (
	"context"
	"math/big"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2x^2", "2*x^2"},
		{"-x^2", "-x^2"},
		{"(x+1)(x-1)", "(x + 1)*(x - 1)"},
		{"2^3^2", "2^(3^2)"},
		{"sin x", "sin(x)"},
		{"xy", "x*y"},
		{"a-(b-c)", "a - (b - c)"},
		{"x^-1", "x^(-1)"},
		{"alpha+pi", "alpha + pi"},
		{"max(x, 2)", "max(x, 2)"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			n, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, n.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "2+", "(x", "x<1", "1..2", "x)", "sin(x, y)", "x=1"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestParseEquation(t *testing.T) {
	eq, err := ParseEquation("2x = 10")
	require.NoError(t, err)
	assert.Equal(t, "2*x = 10", eq.String())

	eq, err = ParseEquation("x^2 - 4")
	require.NoError(t, err)
	assert.Equal(t, "x^2 - 4 = 0", eq.String())

	_, err = ParseEquation("x = 1 = 2")
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestToPoly(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"x^2+2*x+1", "x^2 + 2x + 1"},
		{"(x+1)^2-(x^2+1)", "2x"},
		{"(x+1)(x-1)", "x^2 - 1"},
		{"x*y+y*x", "2x*y"},
		{"y^2+x^2+2*x*y", "x^2 + 2x*y + y^2"},
		{"x/2+x/3", "5x/6"},
		{"0.1+0.2", "0.3"},
		{"1/x+1/x", "2/x"},
		{"sin(x)+sin(x)", "2sin(x)"},
		{"x+sin(x)", "x + sin(x)"},
		{"sqrt(16)+1", "5"},
		{"x^2*x^3", "x^5"},
		{"x-x", "0"},
		{"2^10", "1024"},
		{"4^(1/2)", "2"},
		{"8^(2/3)", "4"},
		{"e^x", "exp(x)"},
		{"cos(0)+ln(1)", "1"},
		{"1/3", "1/3"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			n, err := Parse(tc.in)
			require.NoError(t, err)
			p, err := ToPoly(n)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.String())
		})
	}
}

func TestToPolyCanonicalIsStable(t *testing.T) {
	for _, in := range []string{"x^2+2*x+1", "5x/6 - y", "2sin(x) + 1/x", "(x+1)^-2"} {
		n, err := Parse(in)
		require.NoError(t, err)
		p, err := ToPoly(n)
		require.NoError(t, err)

		again, err := Parse(p.String())
		require.NoError(t, err, p.String())
		q, err := ToPoly(again)
		require.NoError(t, err)
		assert.Equal(t, p.String(), q.String())
	}
}

func TestToPolyDivisionByZero(t *testing.T) {
	n, err := Parse("x/0")
	require.NoError(t, err)
	_, err = ToPoly(n)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestUnivariate(t *testing.T) {
	n, err := Parse("6x^2-17x+12")
	require.NoError(t, err)
	p, err := ToPoly(n)
	require.NoError(t, err)

	coeffs, ok := p.Univariate("x")
	require.True(t, ok)
	require.Len(t, coeffs, 3)
	assert.Equal(t, "12", coeffs[0].RatString())
	assert.Equal(t, "-17", coeffs[1].RatString())
	assert.Equal(t, "6", coeffs[2].RatString())
	assert.Equal(t, 2, p.Degree("x"))

	n, err = Parse("a*x^2+1")
	require.NoError(t, err)
	p, err = ToPoly(n)
	require.NoError(t, err)
	_, ok = p.Univariate("x")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "x"}, p.Symbols())
}

func TestEval(t *testing.T) {
	n, err := Parse("2x^2 + sin(0) + pi - pi")
	require.NoError(t, err)
	v, err := Eval(n, map[string]float64{"x": 3})
	require.NoError(t, err)
	assert.InDelta(t, 18.0, v, 1e-12)

	_, err = Eval(n, nil)
	assert.ErrorIs(t, err, ErrEvaluate)
}

func TestSimplify(t *testing.T) {
	res, err := Simplify("2x + 3x - 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"5x - 1"}, res.Results)
	assert.Equal(t, []string{"Expression: 2*x + 3*x - 1", "Simplified: 5x - 1"}, res.Steps)

	res, err = Simplify("x + x = 2 + 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"2x = 4"}, res.Results)
}

func TestSolve(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"linear", "2x = 10", []string{"x = 5"}},
		{"symbolic linear", "a*x + b = 0", []string{"x = -b/a"}},
		{"quadratic", "x^2 - 5x + 6 = 0", []string{"x = 2", "x = 3"}},
		{"cubic", "x^3 - 6x^2 + 11x - 6 = 0", []string{"x = 1", "x = 2", "x = 3"}},
		{"complex", "x^2 + 2x + 5 = 0", []string{"x = -1 + 2i", "x = -1 - 2i"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Solve(ctx, tc.in, "x")
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Results)
		})
	}

	res, err := Solve(ctx, "2x = 10", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"Equation: 2*x = 10", "Standard form: 2x - 10 = 0", "Isolate x: x = 5"}, res.Steps)

	_, err = Solve(ctx, "x = x", "x")
	assert.ErrorIs(t, err, ErrNoSolution)
	_, err = Solve(ctx, "2 = 3", "x")
	assert.ErrorIs(t, err, ErrNoSolution)
	_, err = Solve(ctx, "sin(x) = 1", "x")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFindRoots(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"distinct rational", "6x^2-17x+12=0", "(x - 1.3333333333333333) * (x - 1.5) = 0"},
		{"symmetric", "x^2-4=0", "(x + 2) * (x - 2) = 0"},
		{"double", "x^2+6x+9=0", "(x + 3)^(2) = 0"},
		{"irrational", "x^2-2=0", "(x + 1.4142135623730951) * (x - 1.4142135623730951) = 0"},
		{"complex", "x^2+2x+5=0", "x = -1 + 2i, x = -1 - 2i"},
		{"zero root", "x^3-x=0", "(x + 1) * (x - 0) * (x - 1) = 0"},
		{"complex pair beside real root", "x^3-1=0", "x = 1, x = -0.5 + 0.8660254037844386i, x = -0.5 - 0.8660254037844386i"},
		{"irreducible remainder", "x^4-x^3+x^2-1=0", "(x - 1) * (x^3 + x + 1) = 0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := FindRoots(ctx, tc.in, "x")
			require.NoError(t, err)
			assert.Equal(t, []string{tc.want}, res.Results)
		})
	}

	_, err := FindRoots(ctx, "sin(x)=0", "x")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = FindRoots(ctx, "3=0", "x")
	assert.ErrorIs(t, err, ErrNoSolution)
}

func TestFindRootsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FindRoots(ctx, "x^3-6x^2+11x-6=0", "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFactorize(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		in   string
		want string
	}{
		{"x^2-4", "(x + 2) * (x - 2)"},
		{"2x^2-8", "2 * (x + 2) * (x - 2)"},
		{"6x^2-17x+12", "(3x - 4) * (2x - 3)"},
		{"x^2+x", "x * (x + 1)"},
		{"x^2+1", "x^2 + 1"},
		{"x^3-8", "(x - 2) * (x^2 + 2x + 4)"},
		{"-x^2+1", "-(x + 1) * (x - 1)"},
		{"x^2-2x+1", "(x - 1)^2"},
		{"2x+4", "2 * (x + 2)"},
		{"sqrt(16)", "4"},
		{"x*y+x", "x*y + x"},
		{"x^2-4=0", "(x + 2) * (x - 2) = 0"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			res, err := Factorize(ctx, tc.in)
			require.NoError(t, err)
			assert.Equal(t, []string{tc.want}, res.Results)
		})
	}

	res, err := Factorize(ctx, "2x^2-8")
	require.NoError(t, err)
	assert.Contains(t, res.Steps, "Common factor: 2")
	assert.Contains(t, res.Steps, "Rational roots: -2, 2")
}

func TestDifferentiate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"x^3+2x", "3x^2 + 2"},
		{"sin(x^2)", "2x*cos(x^2)"},
		{"ln(x)", "1/x"},
		{"5", "0"},
		{"x*y", "y"},
		{"cos(x)", "-sin(x)"},
		{"e^x", "exp(x)"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			res, err := Differentiate(tc.in, "x")
			require.NoError(t, err)
			assert.Equal(t, []string{tc.want}, res.Results)
		})
	}

	_, err := Differentiate("max(x, 1)", "x")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestIntegrate(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		in   string
		want string
	}{
		{"x^2", "x^3/3 + C"},
		{"∫ 3x^2 + 2x dx", "x^3 + x^2 + C"},
		{"∫ sin(x) dx", "-cos(x) + C"},
		{"∫ (1)/(x)dx", "ln(abs(x)) + C"},
		{"∫ exp(x) dx", "exp(x) + C"},
		{"∫ t dt", "0.5t^2 + C"},
		{"∫_0^1 x^2 dx", "1/3"},
		{"∫_(-1)^1 x^2 dx", "2/3"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			res, err := Integrate(ctx, tc.in, "x")
			require.NoError(t, err)
			assert.Equal(t, []string{tc.want}, res.Results)
		})
	}

	_, err := Integrate(ctx, "∫ x*exp(x) dx", "x")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestIntegrateDefiniteNumeric(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		in   string
		want float64
	}{
		{"∫_0^pi sin(x) dx", 2},
		{"∫_0^inf e^-x dx", 1},
		{"∫_1^e(1)/(x)dx", 1},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			res, err := Integrate(ctx, tc.in, "x")
			require.NoError(t, err)
			require.Len(t, res.Results, 1)
			got, err := strconv.ParseFloat(res.Results[0], 64)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
			assert.Len(t, res.Steps, 4)
		})
	}
}

func TestRootsResidual(t *testing.T) {
	coeffs := []*big.Rat{big.NewRat(5, 1), big.NewRat(2, 1), big.NewRat(1, 1)}
	roots, rem, err := Roots(context.Background(), coeffs)
	require.NoError(t, err)
	assert.Nil(t, rem)
	require.Len(t, roots, 2)
	for _, r := range roots {
		z := complex(r.Re, r.Im)
		residual := z*z + 2*z + 5
		assert.InDelta(t, 0, real(residual), 1e-9)
		assert.InDelta(t, 0, imag(residual), 1e-9)
	}
}
