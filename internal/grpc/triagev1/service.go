// Package triagev1 describes the mirador.triage.v1.TriageEngine gRPC service.
// Messages are carried as google.protobuf.Struct so the service needs no
// generated code; field names match the JSON documents of the HTTP surface.
package triagev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "mirador.triage.v1.TriageEngine"

const (
	TriageEngine_Scan_FullMethodName              = "/" + ServiceName + "/Scan"
	TriageEngine_GetStatus_FullMethodName         = "/" + ServiceName + "/GetStatus"
	TriageEngine_AnalyzeIncident_FullMethodName   = "/" + ServiceName + "/AnalyzeIncident"
	TriageEngine_ListAuditLogs_FullMethodName     = "/" + ServiceName + "/ListAuditLogs"
	TriageEngine_UpdateAuditStatus_FullMethodName = "/" + ServiceName + "/UpdateAuditStatus"
)

// TriageEngineServer is the server API for the TriageEngine service.
type TriageEngineServer interface {
	// Scan runs one scan and returns the scan report.
	Scan(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetStatus returns the scanner snapshot.
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// AnalyzeIncident expects {"incident_id": string}.
	AnalyzeIncident(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListAuditLogs accepts an optional {"limit": number}.
	ListAuditLogs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// UpdateAuditStatus expects {"id": string, "status": string}.
	UpdateAuditStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterTriageEngineServer registers srv on s.
func RegisterTriageEngineServer(s grpc.ServiceRegistrar, srv TriageEngineServer) {
	s.RegisterService(&TriageEngine_ServiceDesc, srv)
}

func _TriageEngine_Scan_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TriageEngineServer).Scan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TriageEngine_Scan_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TriageEngineServer).Scan(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _TriageEngine_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TriageEngineServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TriageEngine_GetStatus_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TriageEngineServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _TriageEngine_AnalyzeIncident_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TriageEngineServer).AnalyzeIncident(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TriageEngine_AnalyzeIncident_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TriageEngineServer).AnalyzeIncident(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _TriageEngine_ListAuditLogs_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TriageEngineServer).ListAuditLogs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TriageEngine_ListAuditLogs_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TriageEngineServer).ListAuditLogs(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _TriageEngine_UpdateAuditStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TriageEngineServer).UpdateAuditStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TriageEngine_UpdateAuditStatus_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TriageEngineServer).UpdateAuditStatus(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// TriageEngine_ServiceDesc is the grpc.ServiceDesc for the TriageEngine service.
var TriageEngine_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TriageEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Scan", Handler: _TriageEngine_Scan_Handler},
		{MethodName: "GetStatus", Handler: _TriageEngine_GetStatus_Handler},
		{MethodName: "AnalyzeIncident", Handler: _TriageEngine_AnalyzeIncident_Handler},
		{MethodName: "ListAuditLogs", Handler: _TriageEngine_ListAuditLogs_Handler},
		{MethodName: "UpdateAuditStatus", Handler: _TriageEngine_UpdateAuditStatus_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/triage/v1/triage.proto",
}

// TriageEngineClient is the client API for the TriageEngine service.
type TriageEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewTriageEngineClient wraps cc.
func NewTriageEngineClient(cc grpc.ClientConnInterface) *TriageEngineClient {
	return &TriageEngineClient{cc: cc}
}

func (c *TriageEngineClient) Scan(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TriageEngine_Scan_FullMethodName, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TriageEngineClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TriageEngine_GetStatus_FullMethodName, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TriageEngineClient) AnalyzeIncident(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TriageEngine_AnalyzeIncident_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TriageEngineClient) ListAuditLogs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TriageEngine_ListAuditLogs_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TriageEngineClient) UpdateAuditStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TriageEngine_UpdateAuditStatus_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
