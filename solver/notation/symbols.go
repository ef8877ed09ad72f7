package notation

import (
	"regexp"
	"sort"
	"strings"
)

// functionNames are markup commands that become bare internal function names.
var functionNames = []string{
	"sin", "cos", "tan", "cot", "sec", "csc",
	"arcsin", "arccos", "arctan",
	"sinh", "cosh", "tanh",
	"log", "ln", "exp", "sqrt", "abs", "max", "min",
}

var greekLetters = []string{
	"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta",
	"iota", "kappa", "lambda", "mu", "nu", "xi", "pi", "rho", "sigma",
	"tau", "upsilon", "phi", "chi", "psi", "omega",
}

// commandTable maps markup commands (without the leading backslash) to internal notation.
var commandTable = buildCommandTable()

// punctuationCommands are single-character escapes: spacing commands and escaped braces.
var punctuationCommands = map[string]string{
	",": "", ";": "", ":": "", "!": "", " ": "",
	"{": "(", "}": ")",
}

// unicodeSymbols folds typeset unicode operators (common in OCR output) into internal notation.
var unicodeSymbols = strings.NewReplacer(
	"±", "+/-", "∓", "-/+",
	"≤", "<=", "≥", ">=", "≠", "!=", "≈", "~=",
	"·", "*", "×", "*", "÷", "/", "−", "-",
	"∞", "inf", "²", "^2", "³", "^3",
)

// operatorCommands is the reverse table for non-alphabetic internal operators.
// Longer operators come first so alternation prefers them.
var operatorCommands = []struct {
	internal string
	command  string
}{
	{"+/-", `\pm`},
	{"-/+", `\mp`},
	{"<=", `\leq`},
	{">=", `\geq`},
	{"!=", `\neq`},
	{"~=", `\approx`},
	{"->", `\to`},
	{"*", `\cdot`},
	{"/", `\div`},
	{"∫", `\int`},
}

// nameCommands maps alphabetic internal names back to markup commands.
var nameCommands = buildNameCommands()

var (
	commandPattern  = regexp.MustCompile(`\\([A-Za-z]+|[,;:! {}])`)
	operatorPattern = buildOperatorPattern()
	letterRun       = regexp.MustCompile(`\\?[A-Za-z]+`)
)

func buildCommandTable() map[string]string {
	t := map[string]string{
		"times": "*", "cdot": "*", "div": "/",
		"pm": "+/-", "mp": "-/+",
		"leq": "<=", "le": "<=", "geq": ">=", "ge": ">=",
		"neq": "!=", "ne": "!=", "approx": "~=",
		"infty":   "inf",
		"partial": "partial",
		"lim":     "lim",
		"to":      "->",
		"int":     "∫",
		"left":    "",
		"right":   "",
	}
	for _, name := range functionNames {
		t[name] = name
	}
	for _, name := range greekLetters {
		t[name] = name
	}
	return t
}

func buildNameCommands() map[string]string {
	t := map[string]string{
		"inf":     `\infty`,
		"partial": `\partial`,
		"lim":     `\lim`,
	}
	for _, name := range functionNames {
		t[name] = `\` + name
	}
	for _, name := range greekLetters {
		t[name] = `\` + name
	}
	return t
}

func buildOperatorPattern() *regexp.Regexp {
	ops := make([]string, 0, len(operatorCommands))
	for _, op := range operatorCommands {
		ops = append(ops, regexp.QuoteMeta(op.internal))
	}
	// Stable by length so multi-character operators win.
	sort.SliceStable(ops, func(i, j int) bool { return len(ops[i]) > len(ops[j]) })
	return regexp.MustCompile(strings.Join(ops, "|"))
}

// IsKnownName reports whether name is a function, constant or Greek letter of the internal notation.
func IsKnownName(name string) bool {
	_, ok := nameCommands[name]
	return ok
}
