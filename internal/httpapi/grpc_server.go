package httpapi

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"conclave.org/internal/game"
	"conclave.org/internal/obs"
)

// GRPCServer answers the standard gRPC health protocol from the store's readiness.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer

	ready   ReadyProbe
	version string
}

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(r ReadyProbe, version string) *GRPCServer {
	return &GRPCServer{ready: r, version: version}
}

// Register builds a grpc.Server with the health service and logging interceptor.
func (s *GRPCServer) Register(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.UnaryInterceptor(unaryLogging))
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, s)
	obs.Info("grpc_registered", map[string]any{"service": serviceName, "version": s.version})
	return srv
}

// Check reports SERVING for the whole server or for the named service.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != serviceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if s.ready != nil {
		if err := s.ready.Ping(ctx); err != nil {
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func unaryLogging(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	err = grpcError(err)
	obs.LogRequest(map[string]any{
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
		"level":       "info",
		"msg":         "grpc_complete",
		"method":      info.FullMethod,
		"code":        status.Code(err).String(),
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
	})
	return resp, err
}

// grpcError converts engine validation errors into gRPC statuses.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var ge *game.Error
	if errors.As(err, &ge) {
		return status.Error(ge.Code.GRPCCode(), ge.Message)
	}
	return status.Error(codes.Unavailable, err.Error())
}
