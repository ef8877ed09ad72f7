// Package orchestrator runs the solving pipeline for one request: markup
// conversion, classification, the quadratic, limit or backend path,
// normalization, conversion back to markup and the optional render fan-out.
//
// Solve never fails. Every error, timeout or panic becomes a SolveResult with
// Success set to false.
package orchestrator

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/eyemath/solver/backend"
	"github.com/hrygo/eyemath/solver/classify"
	"github.com/hrygo/eyemath/solver/metrics"
	"github.com/hrygo/eyemath/solver/normalize"
	"github.com/hrygo/eyemath/solver/notation"
	"github.com/hrygo/eyemath/solver/quadratic"
	"github.com/hrygo/eyemath/solver/render"
)

// None marks an absent step list or image.
const None = "None"

// Paths a request can take, used as the metrics path label.
const (
	PathQuadratic = "quadratic"
	PathLimit     = "limit"
	PathBackend   = "backend"
	PathNone      = "none"
)

// Config holds the orchestrator settings. It is read-only after New.
type Config struct {
	// Timeout bounds one backend invocation.
	Timeout time.Duration
	// UseAlgorithms enables the closed-form quadratic path.
	UseAlgorithms bool
	// RenderConcurrency bounds concurrent render calls per request.
	RenderConcurrency int
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Timeout:           60 * time.Second,
		UseAlgorithms:     true,
		RenderConcurrency: 4,
	}
}

// SolveRequest is one solve call.
type SolveRequest struct {
	Expression    string
	ShowSteps     bool
	RenderResults bool
	// Timeout overrides Config.Timeout when positive.
	Timeout time.Duration
	// Operation forces the operation. Differentiate and integrate are only
	// reachable this way.
	Operation classify.Operation
	// Variable overrides variable detection.
	Variable string
	// Credential is forwarded to the renderer untouched.
	Credential string
	RequestID  string
}

// SolveResult is the outcome of Solve. It is always well formed.
type SolveResult struct {
	Results      []string `json:"results" yaml:"results"`
	SolvingSteps []string `json:"solving_steps" yaml:"solving_steps"`
	Success      bool     `json:"success" yaml:"success"`
	Error        string   `json:"error,omitempty" yaml:"error,omitempty"`
	Operation    string   `json:"operation,omitempty" yaml:"operation,omitempty"`
	ImageURLs    []string `json:"image_urls" yaml:"image_urls"`
	RequestID    string   `json:"request_id,omitempty" yaml:"request_id,omitempty"`
}

// Orchestrator runs solve requests. It is safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	backend  backend.Backend
	renderer render.Renderer
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// New creates an Orchestrator. r may be nil, in which case nothing is rendered.
func New(cfg Config, be backend.Backend, r render.Renderer, opts ...Option) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RenderConcurrency <= 0 {
		cfg.RenderConcurrency = DefaultConfig().RenderConcurrency
	}
	o := &Orchestrator{
		cfg:      cfg,
		backend:  be,
		renderer: r,
		logger:   slog.Default(),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the orchestrator settings.
func (o *Orchestrator) Config() Config { return o.cfg }

// answer is the path output before normalization.
type answer struct {
	results []string
	steps   []string
	raw     string
	values  []normalize.Value
}

// Solve runs the pipeline for req.
func (o *Orchestrator) Solve(ctx context.Context, req SolveRequest) (res SolveResult) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	s := &session{o: o, req: req, logger: o.logger.With("request_id", req.RequestID), path: PathNone}

	o.metrics.IncActive()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("solve panic", "panic", r, "stack", string(debug.Stack()))
			res = s.failure(errors.Errorf("panic: %v", r))
		}
		o.metrics.DecActive()
		o.metrics.RecordSolve(s.op.String(), s.path, time.Since(start), res.Success)
		s.transition(StateDone)
	}()

	return s.run(ctx)
}

// session carries the state of one Solve call.
type session struct {
	o        *Orchestrator
	req      SolveRequest
	logger   *slog.Logger
	state    State
	op       classify.Operation
	variable string
	path     string
}

func (s *session) transition(to State) {
	s.logger.Debug("solve state", "from", s.state, "to", to, "operation", s.op)
	s.state = to
}

func (s *session) run(ctx context.Context) SolveResult {
	s.transition(StateReceived)

	s.transition(StateConverting)
	internal := notation.ToInternal(s.req.Expression)

	s.transition(StateClassifying)
	s.op = classify.Resolve(internal, s.req.Operation)
	s.variable = s.req.Variable
	if s.variable == "" {
		s.variable = classify.DetectVariable(internal)
	}

	var (
		ans answer
		err error
	)
	if s.op == classify.Limit {
		s.path = PathLimit
		s.transition(StateLimitPath)
		ans, err = s.limit(internal)
	} else {
		solved := false
		if s.useQuadratic(internal) {
			s.path = PathQuadratic
			s.transition(StateQuadraticPath)
			ans, solved = s.quadratic(internal)
		}
		if !solved {
			s.path = PathBackend
			s.transition(StateBackendPath)
			ans, err = s.invoke(ctx, internal)
		}
	}
	if errors.Is(err, backend.ErrTimeout) {
		return s.timeout()
	}
	if err != nil {
		return s.failure(err)
	}

	s.transition(StateNormalizing)
	results := s.normalize(ans, internal)

	s.transition(StateConvertingBack)
	for i, r := range results {
		if r != None {
			results[i] = notation.ToMarkup(r)
		}
	}

	steps := []string{None}
	if s.req.ShowSteps && len(ans.steps) > 0 {
		steps = ans.steps
	}

	images := sentinels(len(results))
	if s.req.RenderResults && s.o.renderer != nil {
		s.transition(StateRendering)
		images = render.All(ctx, s.o.renderer, results, s.req.Credential, s.o.cfg.RenderConcurrency, s.logger)
	}

	return SolveResult{
		Results:      results,
		SolvingSteps: steps,
		Success:      true,
		Operation:    s.op.String(),
		ImageURLs:    images,
		RequestID:    s.req.RequestID,
	}
}

func (s *session) useQuadratic(internal string) bool {
	return s.op.IsEquation() && s.o.cfg.UseAlgorithms && quadratic.IsQuadratic(internal)
}

func (s *session) quadratic(internal string) (answer, bool) {
	q := quadratic.Solve(internal)
	if q.Degraded() {
		s.logger.Info("quadratic path degraded, falling back to backend", "expression", internal)
		return answer{}, false
	}
	return answer{results: q.Results, steps: q.SolvingSteps}, true
}

func (s *session) limit(internal string) (answer, error) {
	l, err := normalize.LookupLimit(internal)
	if err != nil {
		return answer{}, err
	}
	return answer{results: []string{l.Value}, steps: []string{l.Explanation}}, nil
}

func (s *session) invoke(ctx context.Context, internal string) (answer, error) {
	if s.o.backend == nil {
		return answer{}, errors.Wrap(backend.ErrBackend, "no backend configured")
	}
	timeout := s.o.cfg.Timeout
	if s.req.Timeout > 0 {
		timeout = s.req.Timeout
	}

	inv := backend.NewInvocation(s.o.backend, s.op, internal, s.variable, s.logger)
	started := time.Now()
	out, err := inv.Run(ctx, timeout)
	s.o.metrics.RecordInvocation(s.op.String(), inv.State().String(), time.Since(started))
	s.logger.Debug("backend invocation finished", "invocation_id", inv.ID, "state", inv.State())
	if err != nil {
		return answer{}, err
	}
	return answer{steps: out.FlatSteps(), raw: out.Raw, values: out.Results}, nil
}

// normalize trims float zeroes from backend values and applies the
// operation-specific cleanup.
func (s *session) normalize(ans answer, internal string) []string {
	results := ans.results
	if ans.values != nil {
		results = make([]string, len(ans.values))
		for i, v := range ans.values {
			results[i] = v.TrimZeroes().String()
		}
	}
	if s.path != PathBackend {
		return results
	}

	switch s.op {
	case classify.FindRoots:
		raw := ans.raw
		if raw == "" && len(results) > 0 {
			raw = results[len(results)-1]
		}
		return []string{normalize.ExtractRoots(raw, s.variable, internal)}
	case classify.Solve:
		for i, r := range results {
			results[i] = normalize.SimplifySolution(r)
		}
	}
	return results
}

func (s *session) timeout() SolveResult {
	d := s.o.cfg.Timeout
	if s.req.Timeout > 0 {
		d = s.req.Timeout
	}
	class := ErrorClassBackendTimeout
	s.o.metrics.RecordError(s.op.String(), class.String())
	s.logger.Warn("solve timed out", "operation", s.op, "timeout", d)
	return SolveResult{
		Results:      []string{s.req.Expression},
		SolvingSteps: []string{"Error: Operation timed out after " + formatSeconds(d)},
		Success:      false,
		Error:        "Timeout after " + formatSeconds(d),
		Operation:    s.op.String(),
		ImageURLs:    []string{None},
		RequestID:    s.req.RequestID,
	}
}

func (s *session) failure(err error) SolveResult {
	class := Classify(err)
	s.o.metrics.RecordError(s.op.String(), class.String())
	s.logger.Warn("solve failed", "operation", s.op, "error_class", class, "error", err)
	return SolveResult{
		Results:      []string{},
		SolvingSteps: []string{"Error: " + err.Error()},
		Success:      false,
		Error:        err.Error(),
		Operation:    s.op.String(),
		ImageURLs:    []string{},
		RequestID:    s.req.RequestID,
	}
}

func sentinels(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = None
	}
	return out
}

// formatSeconds prints d as "60 seconds" or "0.5 seconds".
func formatSeconds(d time.Duration) string {
	secs := d.Seconds()
	if secs == 1 {
		return "1 second"
	}
	return strconv.FormatFloat(secs, 'f', -1, 64) + " seconds"
}

// Render renders one markup expression, for callers outside a solve.
func (o *Orchestrator) Render(ctx context.Context, expr, credential string) (string, error) {
	if o.renderer == nil {
		return "", errors.Wrap(render.ErrRender, "no renderer configured")
	}
	return o.renderer.RenderToImageURL(ctx, expr, credential)
}

// Ping checks the backend.
func (o *Orchestrator) Ping(ctx context.Context) error {
	if o.backend == nil {
		return errors.Wrap(backend.ErrBackend, "no backend configured")
	}
	return o.backend.Ping(ctx)
}
