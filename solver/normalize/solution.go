package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	coefficientProduct = regexp.MustCompile(`([A-Za-z])\s*=\s*(-?[0-9.]+)\s*\*\s*\((-?[0-9.]+)\)`)
	parenthesizedLit   = regexp.MustCompile(`\((-?[0-9]+(?:\.[0-9]+)?)\)`)
	integralDecimal    = regexp.MustCompile(`\b([0-9]+)\.0+\b`)
)

// SimplifySolution collapses "v = a*(b)" into the numeric product when both factors
// are literals. Otherwise it only drops parentheses around literals and ".0" tails.
func SimplifySolution(s string) string {
	if m := coefficientProduct.FindStringSubmatch(s); m != nil {
		a, errA := strconv.ParseFloat(m[2], 64)
		b, errB := strconv.ParseFloat(m[3], 64)
		if errA == nil && errB == nil {
			return m[1] + " = " + FormatNumber(a*b)
		}
	}
	s = parenthesizedLit.ReplaceAllString(s, "${1}")
	return integralDecimal.ReplaceAllString(s, "${1}")
}

// KnownLimit is a standard indeterminate-form limit with a closed-form value.
// Pattern captures the function argument and the denominator, which must be equal.
type KnownLimit struct {
	Pattern     *regexp.Regexp
	Value       string
	Explanation string
}

// ErrUnknownLimitPattern means a limit did not match any entry of the known-limit table.
var ErrUnknownLimitPattern = errors.New("unknown limit pattern")

var knownLimits = []KnownLimit{
	{
		Pattern:     regexp.MustCompile(`sin\(([^)]+)\)/([^)]+)`),
		Value:       "1",
		Explanation: "lim(sin(x)/x) = 1 (standard limit)",
	},
	{
		Pattern:     regexp.MustCompile(`\(1-cos\(([^)]+)\)\)/([^)]+)`),
		Value:       "0",
		Explanation: "lim((1-cos(x))/x) = 0 (standard limit)",
	},
	{
		Pattern:     regexp.MustCompile(`tan\(([^)]+)\)/([^)]+)`),
		Value:       "1",
		Explanation: "lim(tan(x)/x) = 1 (standard limit)",
	},
	{
		Pattern:     regexp.MustCompile(`ln\(1\+([^)]+)\)/([^)]+)`),
		Value:       "1",
		Explanation: "lim(ln(1+x)/x) = 1 (standard limit)",
	},
}

// LookupLimit matches expr against the known-limit table.
func LookupLimit(expr string) (KnownLimit, error) {
	for _, l := range knownLimits {
		m := l.Pattern.FindStringSubmatch(expr)
		if m != nil && sameArgument(m[1], m[2]) {
			return l, nil
		}
	}
	return KnownLimit{}, errors.Wrapf(ErrUnknownLimitPattern, "%s", expr)
}

// sameArgument reports whether the function argument equals the denominator,
// ignoring whitespace.
func sameArgument(arg, denom string) bool {
	arg = strings.Join(strings.Fields(arg), "")
	return arg != "" && arg == strings.Join(strings.Fields(denom), "")
}
