// Package classify selects the backend operation for a normalized expression.
package classify

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/eyemath/solver/notation"
)

// Operation is one of the fixed set of solving operations.
type Operation string

const (
	Simplify      Operation = "simplify"
	Solve         Operation = "solve"
	Factorize     Operation = "factorize"
	FindRoots     Operation = "find-roots"
	Differentiate Operation = "differentiate"
	Integrate     Operation = "integrate"
	Limit         Operation = "limit"
)

// Operations lists every supported operation in a stable order.
var Operations = []Operation{Simplify, Solve, Factorize, FindRoots, Differentiate, Integrate, Limit}

// ErrUnknownOperation is returned by ParseOperation for names outside the set.
var ErrUnknownOperation = errors.New("unknown operation")

// DefaultVariable is used when an expression names no single-letter variable.
const DefaultVariable = "x"

var (
	limitMarker     = regexp.MustCompile(`\blim(?:_|\b)`)
	quadraticMarker = regexp.MustCompile(`\^\s*(?:2|\(2\)|\{2\})(?:[^0-9.]|$)|²`)
	letterRun       = regexp.MustCompile(`[A-Za-z]+`)
)

// String returns the wire name of the operation.
func (o Operation) String() string {
	return string(o)
}

// Valid reports whether o is one of the supported operations.
func (o Operation) Valid() bool {
	for _, op := range Operations {
		if op == o {
			return true
		}
	}
	return false
}

// IsEquation reports whether the operation works on an equation.
func (o Operation) IsEquation() bool {
	return o == Solve || o == FindRoots
}

// ParseOperation maps a wire name to an Operation. Empty input yields "" and no error.
func ParseOperation(name string) (Operation, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", nil
	}
	op := Operation(name)
	if !op.Valid() {
		return "", errors.Wrapf(ErrUnknownOperation, "%q", name)
	}
	return op, nil
}

// Classify picks the operation for expr. It is total: every input, including the
// empty string, maps to exactly one operation.
func Classify(expr string) Operation {
	switch {
	case limitMarker.MatchString(expr):
		return Limit
	case IsEquation(expr):
		if quadraticMarker.MatchString(expr) {
			return FindRoots
		}
		return Solve
	case strings.Contains(expr, "sqrt") || strings.Contains(expr, "^"):
		return Factorize
	default:
		return Simplify
	}
}

// Resolve honors an explicitly requested operation and falls back to Classify.
func Resolve(expr string, explicit Operation) Operation {
	if explicit.Valid() {
		return explicit
	}
	return Classify(expr)
}

// IsEquation reports whether expr is an equation rather than a comparison.
func IsEquation(expr string) bool {
	for i := 0; i < len(expr); i++ {
		if expr[i] != '=' {
			continue
		}
		if i > 0 && strings.ContainsRune("<>!~", rune(expr[i-1])) {
			continue
		}
		return true
	}
	return false
}

// DetectVariable returns the first single-letter variable in expr, skipping
// function and constant names, or DefaultVariable when there is none.
func DetectVariable(expr string) string {
	for _, run := range letterRun.FindAllString(expr, -1) {
		if notation.IsKnownName(run) {
			continue
		}
		return run[:1]
	}
	return DefaultVariable
}
