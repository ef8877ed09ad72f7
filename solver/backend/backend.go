// Package backend adapts symbolic-algebra engines to the solving pipeline.
//
// A Backend executes one operation on one internal-notation expression. Work is
// wrapped in an Invocation, which runs it on its own goroutine under a deadline.
// Cancellation is cooperative: the context handed to Execute is cancelled on
// timeout, but the caller only stops waiting. Whether the engine actually stops is
// up to the implementation. Local checks the context between root candidates and
// Remote aborts the HTTP request.
package backend

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/hrygo/eyemath/solver/classify"
	"github.com/hrygo/eyemath/solver/normalize"
)

var (
	// ErrTimeout means an invocation exceeded its deadline.
	ErrTimeout = errors.New("backend timeout")
	// ErrBackend means the engine failed or returned unreadable output.
	ErrBackend = errors.New("backend failure")
	// ErrUnsupported means the engine does not implement the operation.
	ErrUnsupported = errors.New("operation not supported by backend")
)

// Backend is a symbolic-algebra engine.
type Backend interface {
	// Execute runs op on expr. variable may be empty for operations that do not
	// need one.
	Execute(ctx context.Context, op classify.Operation, expr, variable string) (Output, error)

	// Ping reports whether the engine is reachable.
	Ping(ctx context.Context) error
}

// Output is what an engine returns for one operation.
type Output struct {
	// Results holds one value per answer.
	Results []normalize.Value
	// Steps holds the explanation lines, grouped per stage.
	Steps [][]string
	// Raw is the engine's unprocessed textual answer.
	Raw string
}

// FlatSteps returns every step line in order.
func (o Output) FlatSteps() []string {
	var out []string
	for _, group := range o.Steps {
		out = append(out, group...)
	}
	return out
}

// Error is an engine failure for one operation. It matches ErrBackend with
// errors.Is and unwraps to the engine's own error.
type Error struct {
	Op  classify.Operation
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

// Unwrap returns the engine's error.
func (e *Error) Unwrap() error { return e.Err }

// Is makes every Error match ErrBackend.
func (e *Error) Is(target error) bool { return target == ErrBackend }
