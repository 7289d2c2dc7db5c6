package api

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-triage/internal/config"
	triagev1 "github.com/miradorstack/mirador-triage/internal/grpc/triagev1"
)

type engineStub struct{}

func (engineStub) Scan(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"scan_id": "scan-1"})
}

func (engineStub) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	panic("status exploded")
}

func (engineStub) AnalyzeIncident(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := triagev1.StringField(req, "incident_id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "incident_id is required")
	}
	return structpb.NewStruct(map[string]any{"incident_id": id})
}

func (engineStub) ListAuditLogs(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"total": 0})
}

func (engineStub) UpdateAuditStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{})
}

func startBufServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := newServer(config.ServerConfig{GracefulTimeout: time.Second}, lis, engineStub{}, nil)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServerServesTriageEngine(t *testing.T) {
	conn := startBufServer(t)
	client := triagev1.NewTriageEngineClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if triagev1.StringField(resp, "scan_id") != "scan-1" {
		t.Fatalf("unexpected scan response %v", resp.AsMap())
	}

	req, _ := structpb.NewStruct(map[string]any{"incident_id": "trace-1"})
	resp, err = client.AnalyzeIncident(ctx, req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if triagev1.StringField(resp, "incident_id") != "trace-1" {
		t.Fatalf("unexpected analyze response %v", resp.AsMap())
	}

	empty, _ := structpb.NewStruct(nil)
	if _, err := client.AnalyzeIncident(ctx, empty); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestServerRecoversPanics(t *testing.T) {
	conn := startBufServer(t)
	client := triagev1.NewTriageEngineClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.GetStatus(ctx); status.Code(err) != codes.Internal {
		t.Fatalf("expected internal error from recovered panic, got %v", err)
	}
	if _, err := client.Scan(ctx); err != nil {
		t.Fatalf("server should keep serving after a panic: %v", err)
	}
}

func TestServerHealth(t *testing.T) {
	conn := startBufServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: triagev1.ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected health status %v", resp.GetStatus())
	}
}
