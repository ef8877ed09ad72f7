package notation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToInternal(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{"empty", "", ""},
		{"quadratic", "6x^{2} - 17x + 12 = 0", "6x^2-17x+12=0"},
		{"fraction", `\frac{1}{2} + x`, "(1)/(2)+x"},
		{"nested fraction", `\frac{x^{2}}{\frac{1}{2}}`, "(x^2)/((1)/(2))"},
		{"dfrac", `\dfrac{a}{b}`, "(a)/(b)"},
		{"radical", `\sqrt{x^{2} + 1}`, "sqrt(x^2+1)"},
		{"indexed radical", `\sqrt[3]{8}`, "(8)^(1/3)"},
		{"compound exponent", `x^{2x}`, "x^(2x)"},
		{"negative exponent", `x^{-1}`, "x^-1"},
		{"subscript", `a_{1} + a_{10}`, "a_1+a_10"},
		{"operators", `2 \times 3 \cdot 4 \div 6`, "2*3*4/6"},
		{"comparisons", `x \leq 5 \neq y`, "x<=5!=y"},
		{"plus minus", `x = \pm 2`, "x=+/-2"},
		{"greek", `\alpha + \beta`, "alpha+beta"},
		{"trig", `\sin(x) + \cos(x)`, "sin(x)+cos(x)"},
		{"trig braces", `\sin{x}`, "sin(x)"},
		{"infinity", `\infty`, "inf"},
		{"layout commands", `\left( x + 1 \right)`, "(x+1)"},
		{"thin space", `2\,x`, "2x"},
		{"unicode operators", "x² ± 3 ≤ 4·y", "x^2+/-3<=4*y"},
		{"unknown command passes through", `\foo + 1`, `\foo+1`},
		{"unbalanced fraction passes through", `\frac{1}{2`, `\frac(1)(2`},
		{"sine limit", `\lim_{x \to 0} \frac{\sin(x)}{x}`, "lim(sin(x)/x)"},
		{"cosine limit", `\lim_{x \to 0} \frac{1 - \cos(x)}{x}`, "lim((1-cos(x))/x)"},
		{"tangent limit", `\lim_{t \to 0} \frac{\tan(t)}{t}`, "lim(tan(t)/t)"},
		{"log limit", `\lim_{x \to 0} \frac{\ln(1 + x)}{x}`, "lim(ln(1+x)/x)"},
		{"generic limit keeps marker", `\lim_{x \to 2} x^{2}`, "lim_(x->2)x^2"},
		{"definite integral", `\int_{0}^{1} x^{2} dx`, "∫_0^1 x^2 dx"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ToInternal(tc.markup))
		})
	}
}

func TestToMarkup(t *testing.T) {
	tests := []struct {
		name     string
		internal string
		want     string
	}{
		{"empty", "", ""},
		{"polynomial", "x^2+2*x+1", `x^{2} + 2 \cdot x + 1`},
		{"factored", "(x+2)*(x-2)=0", `(x + 2) \cdot (x - 2) = 0`},
		{"fraction", "(a)/(b)", `\frac{a}{b}`},
		{"radical", "sqrt(16)", `\sqrt{16}`},
		{"division", "sin(x)/x", `\sin(x) \div x`},
		{"unary minus", "x=-3", "x = -3"},
		{"negative exponent", "x^(-1)", "x^(-1)"},
		{"plus minus", "x=+/-2", `x = \pm 2`},
		{"infinity", "inf", `\infty`},
		{"unicode passthrough", "x = ±2", "x = ±2"},
		{"unknown names untouched", "xsin+dx", "xsin + dx"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ToMarkup(tc.internal))
		})
	}
}

func TestRoundTripIdempotence(t *testing.T) {
	canonical := []string{
		"x^2+2*x+1",
		"(x+2)*(x-2)=0",
		"6x^2-17x+12=0",
		"sin(x)/x",
		"sqrt(16)",
		"lim(sin(x)/x)",
		"lim((1-cos(x))/x)",
		"lim_(x->0)x^2",
		"(a)/(b)",
		"alpha+beta",
		"x<=5",
		"2*x=10",
		"x=+/-2",
		"x^(-1)",
		"∫_0^1 x^2 dx",
		"sin x",
		"2.5*pi",
		"x^2.5-y_1",
	}

	for _, n := range canonical {
		t.Run(n, func(t *testing.T) {
			// Only fixed points of ToInternal are canonical.
			assert.Equal(t, n, ToInternal(n))
			assert.Equal(t, n, ToInternal(ToMarkup(n)))
		})
	}
}

func TestIsKnownName(t *testing.T) {
	assert.True(t, IsKnownName("sin"))
	assert.True(t, IsKnownName("alpha"))
	assert.True(t, IsKnownName("inf"))
	assert.True(t, IsKnownName("lim"))
	assert.False(t, IsKnownName("x"))
	assert.False(t, IsKnownName("dx"))
}
