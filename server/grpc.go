package server

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hrygo/eyemath/solver/orchestrator"
	"github.com/hrygo/eyemath/solver/render"
)

// SolverServiceName is the fully qualified gRPC service name.
const SolverServiceName = "eyemath.v1.SolverService"

const (
	solveMethod  = "/" + SolverServiceName + "/Solve"
	renderMethod = "/" + SolverServiceName + "/Render"
)

// SolverServiceServer is the server API for eyemath.v1.SolverService. Messages
// are google.protobuf.Struct values carrying the same fields as the HTTP API.
type SolverServiceServer interface {
	Solve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Render(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var solverServiceDesc = grpc.ServiceDesc{
	ServiceName: SolverServiceName,
	HandlerType: (*SolverServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Solve", Handler: solverSolveHandler},
		{MethodName: "Render", Handler: solverRenderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eyemath/v1/solver.proto",
}

func solverSolveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SolverServiceServer).Solve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: solveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SolverServiceServer).Solve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func solverRenderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SolverServiceServer).Render(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: renderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SolverServiceServer).Render(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SolverClient calls eyemath.v1.SolverService.
type SolverClient struct {
	cc grpc.ClientConnInterface
}

// NewSolverClient creates a client on cc.
func NewSolverClient(cc grpc.ClientConnInterface) *SolverClient {
	return &SolverClient{cc: cc}
}

// Solve calls SolverService/Solve.
func (c *SolverClient) Solve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, solveMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Render calls SolverService/Render.
func (c *SolverClient) Render(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, renderMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Server) newGRPC() *grpc.Server {
	interval, timeout := s.cfg.KeepaliveInterval, s.cfg.KeepaliveTimeout
	if interval <= 0 {
		interval = DefaultConfig().KeepaliveInterval
	}
	if timeout <= 0 {
		timeout = DefaultConfig().KeepaliveTimeout
	}

	gs := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    interval,
			Timeout: timeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(s.logger),
			requestIDInterceptor(),
			loggingInterceptor(s.logger),
		),
	)
	gs.RegisterService(&solverServiceDesc, &solverService{s: s})
	healthpb.RegisterHealthServer(gs, s.health)
	if s.cfg.EnableReflection {
		reflection.Register(gs)
	}
	return gs
}

// solverService implements SolverServiceServer on top of the orchestrator.
type solverService struct {
	s *Server
}

func (g *solverService) Solve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := solveRequestFromStruct(in).toOrchestratorRequest()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	req.Credential = incomingHeader(ctx, authorizationHeader)
	req.RequestID = getRequestID(ctx)

	out, err := solveResultToStruct(g.s.orch.Solve(ctx, req))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func (g *solverService) Render(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	expr := in.GetFields()["expression"].GetStringValue()
	if expr == "" {
		return nil, status.Error(codes.InvalidArgument, "expression is required")
	}
	url, err := g.s.orch.Render(ctx, expr, incomingHeader(ctx, authorizationHeader))
	if err != nil {
		if errors.Is(err, render.ErrRender) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]any{"image_url": url})
}

func solveRequestFromStruct(in *structpb.Struct) SolveRequest {
	f := in.GetFields()
	return SolveRequest{
		Expression:     f["expression"].GetStringValue(),
		ShowSteps:      f["show_steps"].GetBoolValue(),
		RenderResults:  f["render_results"].GetBoolValue(),
		Operation:      f["operation"].GetStringValue(),
		Variable:       f["variable"].GetStringValue(),
		TimeoutSeconds: f["timeout_seconds"].GetNumberValue(),
	}
}

func solveResultToStruct(res orchestrator.SolveResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"results":       stringList(res.Results),
		"solving_steps": stringList(res.SolvingSteps),
		"success":       res.Success,
		"error":         res.Error,
		"operation":     res.Operation,
		"image_urls":    stringList(res.ImageURLs),
		"request_id":    res.RequestID,
	})
}

// SolveResultFromStruct decodes a Solve reply.
func SolveResultFromStruct(in *structpb.Struct) orchestrator.SolveResult {
	f := in.GetFields()
	return orchestrator.SolveResult{
		Results:      fromList(f["results"]),
		SolvingSteps: fromList(f["solving_steps"]),
		Success:      f["success"].GetBoolValue(),
		Error:        f["error"].GetStringValue(),
		Operation:    f["operation"].GetStringValue(),
		ImageURLs:    fromList(f["image_urls"]),
		RequestID:    f["request_id"].GetStringValue(),
	}
}

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func fromList(v *structpb.Value) []string {
	values := v.GetListValue().GetValues()
	out := make([]string, len(values))
	for i, item := range values {
		out[i] = item.GetStringValue()
	}
	return out
}
