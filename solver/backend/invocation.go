package backend

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/eyemath/solver/classify"
)

// State is the lifecycle position of an Invocation.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Invocation is one cancellable backend call. It is single-use.
type Invocation struct {
	ID         string
	Operation  classify.Operation
	Expression string
	Variable   string

	backend Backend
	logger  *slog.Logger
	state   atomic.Int32
}

type outcome struct {
	out Output
	err error
}

// NewInvocation prepares a call of op on expr.
func NewInvocation(be Backend, op classify.Operation, expr, variable string, logger *slog.Logger) *Invocation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invocation{
		ID:         shortuuid.New(),
		Operation:  op,
		Expression: expr,
		Variable:   variable,
		backend:    be,
		logger:     logger,
	}
}

// State returns the current state.
func (inv *Invocation) State() State {
	return State(inv.state.Load())
}

// Run executes the call on its own goroutine and waits at most timeout. On
// deadline it cancels the call's context and returns ErrTimeout at once; the
// worker's late result is discarded. A timeout <= 0 waits until ctx is done.
func (inv *Invocation) Run(ctx context.Context, timeout time.Duration) (Output, error) {
	if !inv.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return Output{}, errors.Errorf("invocation %s already %s", inv.ID, inv.State())
	}

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go inv.work(ctx, done)

	select {
	case o := <-done:
		if o.err != nil {
			inv.finish(StateFailed)
			return Output{}, o.err
		}
		inv.finish(StateCompleted)
		return o.out, nil
	case <-ctx.Done():
		inv.finish(StateCancelled)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			inv.logger.Warn("backend invocation timed out",
				"invocation_id", inv.ID, "operation", inv.Operation, "timeout", timeout)
			return Output{}, errors.Wrapf(ErrTimeout, "after %s", timeout)
		}
		return Output{}, errors.Wrap(ctx.Err(), "backend invocation cancelled")
	}
}

func (inv *Invocation) work(ctx context.Context, done chan<- outcome) {
	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error("backend panic",
				"invocation_id", inv.ID, "panic", r, "stack", string(debug.Stack()))
			done <- outcome{err: &Error{Op: inv.Operation, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()

	inv.logger.Debug("backend invocation started",
		"invocation_id", inv.ID, "operation", inv.Operation, "expression", inv.Expression)
	out, err := inv.backend.Execute(ctx, inv.Operation, inv.Expression, inv.Variable)
	done <- outcome{out: out, err: err}
}

// finish moves a running invocation to a terminal state.
func (inv *Invocation) finish(s State) {
	inv.state.CompareAndSwap(int32(StateRunning), int32(s))
}
