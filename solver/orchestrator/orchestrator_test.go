package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/eyemath/solver/backend"
	"github.com/hrygo/eyemath/solver/cas"
	"github.com/hrygo/eyemath/solver/classify"
	"github.com/hrygo/eyemath/solver/metrics"
	"github.com/hrygo/eyemath/solver/normalize"
	"github.com/hrygo/eyemath/solver/quadratic"
	"github.com/hrygo/eyemath/solver/render"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Execute(ctx context.Context, op classify.Operation, expr, variable string) (backend.Output, error) {
	args := m.Called(ctx, op, expr, variable)
	return args.Get(0).(backend.Output), args.Error(1)
}

func (m *MockBackend) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// stuckBackend blocks until its context is cancelled.
type stuckBackend struct{}

func (stuckBackend) Execute(ctx context.Context, _ classify.Operation, _, _ string) (backend.Output, error) {
	<-ctx.Done()
	return backend.Output{}, ctx.Err()
}

func (stuckBackend) Ping(context.Context) error { return nil }

type fakeRenderer struct {
	fail string
}

func (f fakeRenderer) RenderToImageURL(_ context.Context, expr, credential string) (string, error) {
	if expr == f.fail {
		return "", errors.Wrap(render.ErrRender, "cannot draw")
	}
	return "https://img.example/" + credential + "/" + expr, nil
}

// panicRecorder blows up while the pipeline records a backend invocation.
type panicRecorder struct {
	metrics.Nop
}

func (panicRecorder) RecordInvocation(string, string, time.Duration) {
	panic("recorder broke")
}

func TestSolve_QuadraticPath(t *testing.T) {
	be := new(MockBackend)
	o := New(DefaultConfig(), be, nil)

	res := o.Solve(context.Background(), SolveRequest{Expression: "6x^{2} - 17x + 12 = 0", ShowSteps: true})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "find-roots", res.Operation)
	assert.Equal(t, []string{"1.5", "1.3333333333333333"}, res.Results)
	assert.Contains(t, res.SolvingSteps, "Discriminant: D = b² - 4ac = (-17)² - 4⋅6⋅12 = 1")
	assert.Equal(t, quadratic.TwoRealRoots, res.SolvingSteps[len(res.SolvingSteps)-1])
	assert.Equal(t, []string{None, None}, res.ImageURLs)
	assert.NotEmpty(t, res.RequestID)
	be.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSolve_SymmetricRootsFromBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseAlgorithms = false

	t.Run("single root completed", func(t *testing.T) {
		be := new(MockBackend)
		be.On("Execute", mock.Anything, classify.FindRoots, "x^2-4=0", "x").
			Return(backend.Output{Results: []normalize.Value{normalize.Scalar("x = 2")}, Raw: "x = 2"}, nil)

		res := New(cfg, be, nil).Solve(context.Background(), SolveRequest{Expression: "x^2 - 4 = 0"})
		require.True(t, res.Success, res.Error)
		assert.Equal(t, []string{"x = ±2"}, res.Results)
		be.AssertExpectations(t)
	})

	t.Run("local factored form", func(t *testing.T) {
		res := New(cfg, backend.NewLocal(nil), nil).Solve(context.Background(), SolveRequest{Expression: "x^2 - 4 = 0"})
		require.True(t, res.Success, res.Error)
		assert.Equal(t, []string{"x = ±2"}, res.Results)
	})
}

func TestSolve_LinearEquationUsesBackend(t *testing.T) {
	res := New(DefaultConfig(), backend.NewLocal(nil), nil).
		Solve(context.Background(), SolveRequest{Expression: "2x = 10", ShowSteps: true})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "solve", res.Operation)
	assert.Equal(t, []string{"x = 5"}, res.Results)
	assert.Contains(t, res.SolvingSteps, "Isolate x: x = 5")
}

func TestSolve_Timeout(t *testing.T) {
	o := New(DefaultConfig(), stuckBackend{}, nil)

	start := time.Now()
	res := o.Solve(context.Background(), SolveRequest{Expression: "x^{3} + x = 1", Timeout: 50 * time.Millisecond})

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"x^{3} + x = 1"}, res.Results)
	assert.Equal(t, []string{"Error: Operation timed out after 0.05 seconds"}, res.SolvingSteps)
	assert.Equal(t, "Timeout after 0.05 seconds", res.Error)
	assert.Len(t, res.ImageURLs, len(res.Results))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "60 seconds", formatSeconds(60*time.Second))
	assert.Equal(t, "1 second", formatSeconds(time.Second))
	assert.Equal(t, "1.5 seconds", formatSeconds(1500*time.Millisecond))
	assert.Equal(t, "60 seconds", formatSeconds(DefaultConfig().Timeout))
}

func TestSolve_KnownLimit(t *testing.T) {
	be := new(MockBackend)
	res := New(DefaultConfig(), be, nil).Solve(context.Background(), SolveRequest{
		Expression: `\lim_{x \to 0} \frac{\sin(x)}{x}`,
		ShowSteps:  true,
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "limit", res.Operation)
	assert.Equal(t, []string{"1"}, res.Results)
	assert.Equal(t, []string{"lim(sin(x)/x) = 1 (standard limit)"}, res.SolvingSteps)
	be.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSolve_UnknownLimit(t *testing.T) {
	be := new(MockBackend)
	res := New(DefaultConfig(), be, nil).Solve(context.Background(), SolveRequest{Expression: `\lim_{x \to 2} x^{2}`})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown limit pattern")
	assert.Empty(t, res.Results)
	be.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSolve_StepsHidden(t *testing.T) {
	res := New(DefaultConfig(), backend.NewLocal(nil), nil).
		Solve(context.Background(), SolveRequest{Expression: "2x = 10"})

	require.True(t, res.Success)
	assert.Equal(t, []string{None}, res.SolvingSteps)
}

func TestSolve_BackendFailure(t *testing.T) {
	be := new(MockBackend)
	be.On("Execute", mock.Anything, classify.Simplify, "x+", "x").
		Return(backend.Output{}, &backend.Error{Op: classify.Simplify, Err: cas.ErrSyntax})

	res := New(DefaultConfig(), be, nil).Solve(context.Background(), SolveRequest{Expression: "x +"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "syntax error")
	assert.Equal(t, "simplify", res.Operation)
}

func TestSolve_NormalizesBackendValues(t *testing.T) {
	be := new(MockBackend)
	be.On("Execute", mock.Anything, classify.Simplify, "5/2", "x").
		Return(backend.Output{Results: []normalize.Value{normalize.Number("2.500")}}, nil)
	be.On("Execute", mock.Anything, classify.Solve, "4x=2", "x").
		Return(backend.Output{Results: []normalize.Value{normalize.Scalar("x = 0.5*(4)")}}, nil)

	o := New(DefaultConfig(), be, nil)

	res := o.Solve(context.Background(), SolveRequest{Expression: "5/2", Operation: classify.Simplify})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"2.5"}, res.Results)

	res = o.Solve(context.Background(), SolveRequest{Expression: "4x = 2"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"x = 2"}, res.Results)
}

func TestSolve_ExplicitDifferentiate(t *testing.T) {
	res := New(DefaultConfig(), backend.NewLocal(nil), nil).Solve(context.Background(), SolveRequest{
		Expression: "x^{3}",
		Operation:  classify.Differentiate,
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "differentiate", res.Operation)
	assert.Equal(t, []string{"3x^{2}"}, res.Results)
}

func TestSolve_RenderResults(t *testing.T) {
	cfg := DefaultConfig()
	r := fakeRenderer{fail: "1.3333333333333333"}

	res := New(cfg, nil, r).Solve(context.Background(), SolveRequest{
		Expression:    "6x^{2} - 17x + 12 = 0",
		RenderResults: true,
		Credential:    "tok",
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"https://img.example/tok/1.5", None}, res.ImageURLs)
}

func TestSolve_NoBackend(t *testing.T) {
	res := New(DefaultConfig(), nil, nil).Solve(context.Background(), SolveRequest{Expression: "2x = 10"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no backend configured")
}

func TestSolve_RecoversPanic(t *testing.T) {
	o := New(DefaultConfig(), backend.NewLocal(nil), nil, WithMetrics(panicRecorder{}))

	res := o.Solve(context.Background(), SolveRequest{Expression: "2x = 10", RequestID: "req-1"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "recorder broke")
	assert.Equal(t, "req-1", res.RequestID)
}

func TestSolve_Concurrent(t *testing.T) {
	o := New(DefaultConfig(), backend.NewLocal(nil), nil)
	exprs := []string{"2x = 10", "x^{2} - 4 = 0", `\frac{x}{2} + \frac{x}{3}`, "x^{2} + 2x + 5 = 0"}

	done := make(chan SolveResult, len(exprs)*4)
	for i := 0; i < 4; i++ {
		for _, e := range exprs {
			go func() { done <- o.Solve(context.Background(), SolveRequest{Expression: e}) }()
		}
	}
	for i := 0; i < len(exprs)*4; i++ {
		res := <-done
		assert.True(t, res.Success, res.Error)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ErrorClassNone},
		{errors.Wrap(backend.ErrTimeout, "after 1s"), ErrorClassBackendTimeout},
		{context.DeadlineExceeded, ErrorClassBackendTimeout},
		{errors.Wrap(context.Canceled, "client left"), ErrorClassCancelled},
		{quadratic.ErrMultipleVariables, ErrorClassVariableExtraction},
		{errors.Wrap(quadratic.ErrNoVariable, "2=3"), ErrorClassVariableExtraction},
		{&backend.Error{Op: classify.Solve, Err: cas.ErrSyntax}, ErrorClassBackendFailure},
		{errors.Wrap(render.ErrRender, "HTTP 500"), ErrorClassRenderFailure},
		{errors.Wrap(normalize.ErrUnknownLimitPattern, "lim(x)"), ErrorClassUnknownLimitPattern},
		{errors.New("boom"), ErrorClassInternal},
	}
	for _, tc := range tests {
		t.Run(tc.want.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "received", StateReceived.String())
	assert.Equal(t, "backend_path", StateBackendPath.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "unknown", State(99).String())
}
