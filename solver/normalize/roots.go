package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// RootRule tries to read the roots of variable out of factored backend output.
// It reports false when its pattern does not apply.
type RootRule func(raw, variable string) (string, bool)

// symmetricTolerance bounds |root - √c| when recognizing a symmetric pair.
const symmetricTolerance = 1e-10

// rootPatterns holds the expressions every rule needs for one variable.
type rootPatterns struct {
	diffSquares [2]*regexp.Regexp
	linear      *regexp.Regexp
	perfect     *regexp.Regexp
	assignment  *regexp.Regexp
	square      *regexp.Regexp
}

// maxCachedVariables bounds the pattern cache. Variables past it are compiled per call.
const maxCachedVariables = 64

var patternCache = struct {
	sync.Mutex
	m map[string]*rootPatterns
}{m: make(map[string]*rootPatterns)}

func compileRootPatterns(variable string) *rootPatterns {
	v := regexp.QuoteMeta(variable)
	return &rootPatterns{
		diffSquares: [2]*regexp.Regexp{
			regexp.MustCompile(`\(` + v + `\s*\+\s*([0-9.]+)\)\s*\*\s*\(` + v + `\s*-\s*([0-9.]+)\)\s*=\s*0`),
			regexp.MustCompile(`\(` + v + `\s*-\s*([0-9.]+)\)\s*\*\s*\(` + v + `\s*\+\s*([0-9.]+)\)\s*=\s*0`),
		},
		linear:     regexp.MustCompile(`\(` + v + `\s*([+-])\s*(-?[0-9.]+)\)(\^\(?2\)?)?`),
		perfect:    regexp.MustCompile(`\(` + v + `\s*([+-])\s*(-?[0-9.]+)\)\^\(?2\)?\s*=\s*0`),
		assignment: regexp.MustCompile(v + `\s*=\s*(-?[0-9.]+)`),
		square:     regexp.MustCompile(v + `\^\(?2\)?\s*-\s*([0-9.]+)\s*=\s*0`),
	}
}

// patternsFor returns the compiled patterns of variable, building them once.
func patternsFor(variable string) *rootPatterns {
	patternCache.Lock()
	defer patternCache.Unlock()
	if p, ok := patternCache.m[variable]; ok {
		return p
	}
	p := compileRootPatterns(variable)
	if len(patternCache.m) < maxCachedVariables {
		patternCache.m[variable] = p
	}
	return p
}

// RootRules returns the ordered extraction chain. The first rule that applies wins.
func RootRules() []RootRule {
	return []RootRule{
		DifferenceOfSquares,
		LinearFactors,
		PerfectSquare,
		UnfactoredDifferenceOfSquares,
	}
}

// ExtractRoots runs the rule chain over raw output, finishing with the symmetric
// counterpart rule for the original equation. Unmatched output is returned as is.
func ExtractRoots(raw, variable, original string) string {
	rules := append(RootRules(), SymmetricCounterpart(original))
	for _, rule := range rules {
		if roots, ok := rule(raw, variable); ok {
			return roots
		}
	}
	return raw
}

// DifferenceOfSquares collapses (v + k) * (v - k) = 0, in either order, to v = ±k.
func DifferenceOfSquares(raw, variable string) (string, bool) {
	for _, p := range patternsFor(variable).diffSquares {
		m := p.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		a, errA := strconv.ParseFloat(m[1], 64)
		b, errB := strconv.ParseFloat(m[2], 64)
		if errA != nil || errB != nil {
			continue
		}
		if math.Abs(a-b) < symmetricTolerance {
			return variable + " = ±" + FormatNumber(a), true
		}
	}
	return "", false
}

// LinearFactors reads every unsquared (v - k) or (v + k) bracket as a root.
func LinearFactors(raw, variable string) (string, bool) {
	p := patternsFor(variable).linear
	var roots []string
	for _, m := range p.FindAllStringSubmatch(raw, -1) {
		if m[3] != "" {
			continue
		}
		roots = append(roots, variable+" = "+bracketRoot(m[1], m[2]))
	}
	if len(roots) == 0 {
		return "", false
	}
	return strings.Join(roots, ", "), true
}

// PerfectSquare reads the double root of (v ± k)^(2) = 0.
func PerfectSquare(raw, variable string) (string, bool) {
	m := patternsFor(variable).perfect.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return variable + " = " + bracketRoot(m[1], m[2]), true
}

// UnfactoredDifferenceOfSquares solves output left as v^2 - c = 0.
func UnfactoredDifferenceOfSquares(raw, variable string) (string, bool) {
	c, ok := squareConstant(raw, variable)
	if !ok {
		return "", false
	}
	return variable + " = ±" + FormatNumber(math.Sqrt(c)), true
}

// SymmetricCounterpart restores the missing half of a symmetric pair: when the
// original equation is v^2 - c = 0 and the output holds a single root equal to
// √c or -√c, the answer becomes v = ±√c.
func SymmetricCounterpart(original string) RootRule {
	return func(raw, variable string) (string, bool) {
		if original == "" || strings.Contains(raw, ",") {
			return "", false
		}
		c, ok := squareConstant(original, variable)
		if !ok {
			return "", false
		}
		matches := patternsFor(variable).assignment.FindAllStringSubmatch(raw, -1)
		if len(matches) != 1 {
			return "", false
		}
		root, err := strconv.ParseFloat(matches[0][1], 64)
		if err != nil {
			return "", false
		}
		want := math.Sqrt(c)
		if math.Abs(math.Abs(root)-want) >= symmetricTolerance {
			return "", false
		}
		return variable + " = ±" + FormatNumber(want), true
	}
}

func squareConstant(s, variable string) (float64, bool) {
	m := patternsFor(variable).square.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	c, err := strconv.ParseFloat(m[1], 64)
	if err != nil || c < 0 {
		return 0, false
	}
	return c, true
}

// bracketRoot returns the root of (v sign k).
func bracketRoot(sign, value string) string {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		if sign == "+" {
			return "-" + value
		}
		return value
	}
	if sign == "+" {
		f = -f
	}
	return FormatNumber(f)
}

// FormatRoot renders a root with an optional imaginary part.
func FormatRoot(re, im float64) string {
	if math.Abs(im) < symmetricTolerance {
		return FormatNumber(re)
	}
	sign := "+"
	if im < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s %s %si", FormatNumber(re), sign, FormatNumber(math.Abs(im)))
}
