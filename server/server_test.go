package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hrygo/eyemath/internal/version"
	"github.com/hrygo/eyemath/solver/backend"
	"github.com/hrygo/eyemath/solver/metrics"
	"github.com/hrygo/eyemath/solver/orchestrator"
	"github.com/hrygo/eyemath/solver/render"
)

// recordingRenderer returns a URL built from the credential and expression.
type recordingRenderer struct {
	mu          sync.Mutex
	fail        bool
	credentials []string
}

func (r *recordingRenderer) RenderToImageURL(_ context.Context, expr, credential string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials = append(r.credentials, credential)
	if r.fail {
		return "", errors.Wrap(render.ErrRender, "renderer returned HTTP 500")
	}
	return "https://img.example/" + expr, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg Config, be backend.Backend, r render.Renderer) (*Server, *metrics.PrometheusExporter) {
	t.Helper()
	exp := metrics.NewPrometheusExporter(metrics.DefaultConfig())
	orch := orchestrator.New(orchestrator.DefaultConfig(), be, r, orchestrator.WithMetrics(exp), orchestrator.WithLogger(discardLogger()))
	return NewServer(cfg, orch, exp.Handler(), discardLogger()), exp
}

func doJSON(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHTTP_Solve(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/solve", `{"expression":"2x = 10","show_steps":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res orchestrator.SolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"x = 5"}, res.Results)
	assert.Equal(t, "solve", res.Operation)
	assert.Equal(t, []string{orchestrator.None}, res.ImageURLs)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, rec.Header().Get("X-Request-Id"), res.RequestID)
}

func TestHTTP_SolveKeepsCallerRequestID(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/solve", `{"expression":"2x = 10"}`, map[string]string{"X-Request-Id": "req-42"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res orchestrator.SolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "req-42", res.RequestID)
	assert.Equal(t, []string{orchestrator.None}, res.SolvingSteps)
}

func TestHTTP_SolveFailureIsStillOK(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), nil, nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/solve", `{"expression":"2x = 10"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res orchestrator.SolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no backend configured")
}

func TestHTTP_SolveInvalidInput(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad json", `{"expression":`, "invalid JSON body"},
		{"empty expression", `{"expression":"  "}`, "expression is required"},
		{"unknown operation", `{"expression":"x","operation":"transmogrify"}`, "unknown operation"},
		{"negative timeout", `{"expression":"x","timeout_seconds":-1}`, "timeout_seconds must not be negative"},
		{"overflowing timeout", `{"expression":"x","timeout_seconds":1e12}`, "timeout_seconds must not exceed 3600"},
		{"timeout just above limit", `{"expression":"x","timeout_seconds":3600.5}`, "timeout_seconds must not exceed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(s, http.MethodPost, "/api/v1/solve", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body.Error, tt.wantErr)
		})
	}
}

func TestHTTP_SolveExplicitOperation(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)

	rec := doJSON(s, http.MethodPost, "/api/v1/solve", `{"expression":"x^{3}","operation":"Differentiate"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res orchestrator.SolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "differentiate", res.Operation)
	assert.Equal(t, []string{"3x^{2}"}, res.Results)
}

func TestHTTP_SolveForwardsCredential(t *testing.T) {
	r := &recordingRenderer{}
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), r)

	rec := doJSON(s, http.MethodPost, "/api/v1/solve", `{"expression":"2x = 10","render_results":true}`,
		map[string]string{"Authorization": "Bearer tok"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res orchestrator.SolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{"https://img.example/x = 5"}, res.ImageURLs)
	assert.Equal(t, []string{"Bearer tok"}, r.credentials)
}

func TestHTTP_Render(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), &recordingRenderer{})
		rec := doJSON(s, http.MethodPost, "/api/v1/render", `{"expression":"x^{2}"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body RenderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "https://img.example/x^{2}", body.ImageURL)
	})

	t.Run("renderer failure", func(t *testing.T) {
		s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), &recordingRenderer{fail: true})
		rec := doJSON(s, http.MethodPost, "/api/v1/render", `{"expression":"x"}`, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("no renderer", func(t *testing.T) {
		s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)
		rec := doJSON(s, http.MethodPost, "/api/v1/render", `{"expression":"x"}`, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "no renderer configured")
	})

	t.Run("empty expression", func(t *testing.T) {
		s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), &recordingRenderer{})
		rec := doJSON(s, http.MethodPost, "/api/v1/render", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHTTP_Health(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)
	rec := doJSON(s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	s, _ = newTestServer(t, DefaultConfig(), nil, nil)
	rec = doJSON(s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestHTTP_Version(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = "prod"
	s, _ := newTestServer(t, cfg, backend.NewLocal(nil), nil)

	rec := doJSON(s, http.MethodGet, "/version", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info version.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.Equal(t, "prod", info.Mode)
}

func TestHTTP_Metrics(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)
	doJSON(s, http.MethodPost, "/api/v1/solve", `{"expression":"2x = 10"}`, nil)

	rec := doJSON(s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `eyemath_solver_solve_requests_total{`)
	assert.Contains(t, rec.Body.String(), `eyemath_backend_invocations_total{`)
}

func TestHTTP_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	s, _ := newTestServer(t, cfg, backend.NewLocal(nil), nil)

	first := doJSON(s, http.MethodPost, "/api/v1/solve", `{"expression":"2x = 10"}`, nil)
	second := doJSON(s, http.MethodPost, "/api/v1/solve", `{"expression":"2x = 10"}`, nil)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// health checks are outside the limited group
	assert.Equal(t, http.StatusOK, doJSON(s, http.MethodGet, "/healthz", "", nil).Code)
}

func TestHTTP_BodyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BodyLimit = "1K"
	s, _ := newTestServer(t, cfg, backend.NewLocal(nil), nil)

	body := `{"expression":"` + strings.Repeat("x+", 1024) + `x"}`
	rec := doJSON(s, http.MethodPost, "/api/v1/solve", body, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func dialBufconn(t *testing.T, s *Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = s.GRPCServer().Serve(lis) }()
	t.Cleanup(s.GRPCServer().Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPC_Solve(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)
	client := NewSolverClient(dialBufconn(t, s))

	in, err := structpb.NewStruct(map[string]any{
		"expression": "6x^{2} - 17x + 12 = 0",
		"show_steps": true,
	})
	require.NoError(t, err)

	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDHeader, "grpc-1")
	var header metadata.MD
	out, err := client.Solve(ctx, in, grpc.Header(&header))
	require.NoError(t, err)

	res := SolveResultFromStruct(out)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, "find-roots", res.Operation)
	assert.Equal(t, []string{"1.5", "1.3333333333333333"}, res.Results)
	assert.NotEqual(t, []string{orchestrator.None}, res.SolvingSteps)
	assert.Equal(t, "grpc-1", res.RequestID)
	assert.Equal(t, []string{"grpc-1"}, header.Get(requestIDHeader))
}

func TestGRPC_SolveInvalidArgument(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)
	client := NewSolverClient(dialBufconn(t, s))

	in, err := structpb.NewStruct(map[string]any{"expression": "x", "operation": "transmogrify"})
	require.NoError(t, err)

	_, err = client.Solve(context.Background(), in)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Solve(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	in, err = structpb.NewStruct(map[string]any{"expression": "x", "timeout_seconds": 1e12})
	require.NoError(t, err)
	_, err = client.Solve(context.Background(), in)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "must not exceed")
}

func TestSolveRequest_TimeoutAtLimit(t *testing.T) {
	req, err := SolveRequest{Expression: "x", TimeoutSeconds: MaxTimeoutSeconds}.toOrchestratorRequest()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, req.Timeout)
}

func TestGRPC_Render(t *testing.T) {
	r := &recordingRenderer{}
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), r)
	client := NewSolverClient(dialBufconn(t, s))

	in, err := structpb.NewStruct(map[string]any{"expression": "x^{2}"})
	require.NoError(t, err)

	ctx := metadata.AppendToOutgoingContext(context.Background(), authorizationHeader, "Bearer g")
	out, err := client.Render(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/x^{2}", out.GetFields()["image_url"].GetStringValue())
	assert.Equal(t, []string{"Bearer g"}, r.credentials)

	s2, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)
	_, err = NewSolverClient(dialBufconn(t, s2)).Render(context.Background(), in)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestGRPC_Health(t *testing.T) {
	s, _ := newTestServer(t, DefaultConfig(), backend.NewLocal(nil), nil)
	conn := dialBufconn(t, s)
	require.NoError(t, s.refreshHealth(context.Background()))

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: SolverServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	down, _ := newTestServer(t, DefaultConfig(), nil, nil)
	downConn := dialBufconn(t, down)
	require.Error(t, down.refreshHealth(context.Background()))

	resp, err = healthpb.NewHealthClient(downConn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: SolverServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestServer_StartShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1"
	cfg.Port = 0
	cfg.GRPCPort = 0
	s, _ := newTestServer(t, cfg, backend.NewLocal(nil), nil)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "", s.GRPCAddr())

	resp, err := http.Get("http://" + s.HTTPAddr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Shutdown(context.Background())
}
