package services

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	triagev1 "github.com/miradorstack/mirador-triage/internal/grpc/triagev1"
	"github.com/miradorstack/mirador-triage/internal/repo"
	"github.com/miradorstack/mirador-triage/internal/scanner"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

var _ triagev1.TriageEngineServer = (*TriageService)(nil)

// Scan implements triagev1.TriageEngineServer. A rejected concurrent trigger
// maps to Aborted.
func (s *TriageService) Scan(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	report, err := s.RunScan(ctx)
	if err != nil {
		return nil, toStatus(err, "scan failed")
	}
	return encode(report)
}

// GetStatus implements triagev1.TriageEngineServer.
func (s *TriageService) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return encode(s.Status())
}

// AnalyzeIncident implements triagev1.TriageEngineServer.
func (s *TriageService) AnalyzeIncident(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	analysis, err := s.Analyze(ctx, triagev1.StringField(req, "incident_id"))
	if err != nil {
		return nil, toStatus(err, "analysis failed")
	}
	return encode(analysis)
}

// ListAuditLogs implements triagev1.TriageEngineServer.
func (s *TriageService) ListAuditLogs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entries, err := s.ListAudit(ctx, triagev1.IntField(req, "limit"))
	if err != nil {
		return nil, toStatus(err, "failed to list audit logs")
	}
	return encode(map[string]any{"entries": entries, "total": len(entries)})
}

// UpdateAuditStatus implements triagev1.TriageEngineServer.
func (s *TriageService) UpdateAuditStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	id := triagev1.StringField(req, "id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	next, err := s.SetAuditStatus(ctx, id, triagev1.StringField(req, "status"))
	if err != nil {
		return nil, toStatus(err, "failed to update audit status")
	}
	return encode(map[string]any{"id": id, "status": string(next)})
}

func encode(v any) (*structpb.Struct, error) {
	out, err := triagev1.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error, msg string) error {
	switch {
	case utils.IsInvalidArgument(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, repo.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, scanner.ErrScanInProgress):
		return status.Error(codes.Aborted, err.Error())
	case utils.IsNotConfigured(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Errorf(codes.Internal, "%s: %v", msg, err)
	}
}
