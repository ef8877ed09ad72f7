package backend

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hrygo/eyemath/solver/cas"
	"github.com/hrygo/eyemath/solver/classify"
	"github.com/hrygo/eyemath/solver/normalize"
)

var plainDecimal = regexp.MustCompile(`^-?[0-9]+\.[0-9]+$`)

// Local runs operations in process on the cas engine.
type Local struct {
	logger *slog.Logger
}

// NewLocal creates a Local backend. A nil logger means slog.Default().
func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{logger: logger}
}

// Ping always succeeds.
func (l *Local) Ping(context.Context) error { return nil }

// Execute dispatches op to the matching engine routine.
func (l *Local) Execute(ctx context.Context, op classify.Operation, expr, variable string) (Output, error) {
	if variable == "" {
		variable = classify.DetectVariable(expr)
	}

	var (
		res cas.Result
		err error
	)
	switch op {
	case classify.Simplify:
		res, err = cas.Simplify(expr)
	case classify.Solve:
		res, err = cas.Solve(ctx, expr, variable)
	case classify.FindRoots:
		res, err = cas.FindRoots(ctx, expr, variable)
	case classify.Factorize:
		res, err = cas.Factorize(ctx, expr)
	case classify.Differentiate:
		res, err = cas.Differentiate(expr, variable)
	case classify.Integrate:
		res, err = cas.Integrate(ctx, expr, variable)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		l.logger.Debug("local backend failed", "operation", op, "expression", expr, "error", err)
		return Output{}, &Error{Op: op, Err: err}
	}

	values := make([]normalize.Value, len(res.Results))
	for i, r := range res.Results {
		if plainDecimal.MatchString(r) {
			values[i] = normalize.Number(r)
		} else {
			values[i] = normalize.Scalar(r)
		}
	}
	return Output{
		Results: values,
		Steps:   [][]string{res.Steps},
		Raw:     strings.Join(res.Results, ", "),
	}, nil
}
