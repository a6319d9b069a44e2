// Package ops exposes the running scheduler over gRPC: cell status, the UE
// list and DL buffer-state injection.
//
// The service is declared by hand over protobuf well-known types, so callers
// need no generated stubs: any gRPC client can invoke it with Struct,
// UInt32Value and Empty messages.
package ops

import (
	"context"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
	"github.com/signalsfoundry/gnb-scheduler/internal/sched"
	"github.com/signalsfoundry/gnb-scheduler/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gnbsched.ops.v1.SchedulerOps"

const (
	getCellStatusMethod     = "/" + ServiceName + "/GetCellStatus"
	listUEsMethod           = "/" + ServiceName + "/ListUEs"
	pushDLBufferStateMethod = "/" + ServiceName + "/PushDLBufferState"
)

// maxLCID is the highest logical channel id a bearer can use.
const maxLCID = 32

// Backend is the part of the scheduler the service reads and drives.
type Backend interface {
	Snapshot(cell model.CellIndex) (*sched.CellSnapshot, error)
	ListUEs() []sched.UESummary
	HandleDLBufferState(idx model.UEIndex, lcid model.LCID, bytes int) error
}

// SchedulerOpsServer is the server API of the ops service.
type SchedulerOpsServer interface {
	GetCellStatus(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error)
	ListUEs(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	PushDLBufferState(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// ServiceDesc describes the ops service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulerOpsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCellStatus", Handler: getCellStatusHandler},
		{MethodName: "ListUEs", Handler: listUEsHandler},
		{MethodName: "PushDLBufferState", Handler: pushDLBufferStateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gnbsched/ops/v1/ops.proto",
}

// RegisterSchedulerOpsServer registers srv on s.
func RegisterSchedulerOpsServer(s grpc.ServiceRegistrar, srv SchedulerOpsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func getCellStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerOpsServer).GetCellStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getCellStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SchedulerOpsServer).GetCellStatus(ctx, req.(*wrapperspb.UInt32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func listUEsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerOpsServer).ListUEs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listUEsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SchedulerOpsServer).ListUEs(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func pushDLBufferStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerOpsServer).PushDLBufferState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: pushDLBufferStateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SchedulerOpsServer).PushDLBufferState(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Service implements SchedulerOpsServer on top of a Backend.
type Service struct {
	backend Backend
	log     logging.Logger
}

// NewService returns the ops service for backend.
func NewService(backend Backend, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{backend: backend, log: log}
}

// GetCellStatus returns the last published snapshot of a cell.
func (s *Service) GetCellStatus(ctx context.Context, req *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	v := req.GetValue()
	if v > math.MaxUint16 {
		return nil, ToStatusError(fmt.Errorf("%w: %d", sched.ErrUnknownCell, v))
	}
	snap, err := s.backend.Snapshot(model.CellIndex(v))
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := structpb.NewStruct(cellStatusFields(snap))
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func cellStatusFields(snap *sched.CellSnapshot) map[string]any {
	slices := make([]any, 0, len(snap.Slices))
	for _, sl := range snap.Slices {
		slices = append(slices, map[string]any{
			"id":        int(sl.ID),
			"name":      sl.Name,
			"nof_ues":   sl.NofUEs,
			"dl_grants": sl.DLGrants,
			"ul_grants": sl.ULGrants,
		})
	}
	fields := map[string]any{
		"cell":             int(snap.Cell),
		"nof_ues":          snap.NofUEs,
		"dl_grants":        snap.DLGrants,
		"ul_grants":        snap.ULGrants,
		"dl_rbs":           snap.DLRBs,
		"ul_rbs":           snap.ULRBs,
		"pending_dl_retxs": snap.PendingDLRetxs,
		"pending_ul_retxs": snap.PendingULRetxs,
		"total_dl_bytes":   snap.TotalDLBytes,
		"total_ul_bytes":   snap.TotalULBytes,
		"slices":           slices,
	}
	if snap.Slot.Valid() {
		fields["slot"] = snap.Slot.String()
		fields["slot_count"] = snap.Slot.Count()
	}
	return fields
}

// ListUEs returns the published UE summaries under the "ues" key.
func (s *Service) ListUEs(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	summaries := s.backend.ListUEs()
	ues := make([]any, 0, len(summaries))
	for _, u := range summaries {
		cells := make([]any, 0, len(u.Cells))
		for _, c := range u.Cells {
			cells = append(cells, int(c))
		}
		ues = append(ues, map[string]any{
			"index":            int(u.Index),
			"crnti":            u.CRNTI.String(),
			"cells":            cells,
			"dl_pending_bytes": u.DLPendingBytes,
			"ul_pending_bytes": u.ULPendingBytes,
			"sr_pending":       u.SRPending,
			"cqi":              int(u.CQI),
		})
	}
	out, err := structpb.NewStruct(map[string]any{"ues": ues})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// PushDLBufferState injects a DL buffer-state report. The request carries
// ue_index, lcid and bytes; the report is applied at the next slot.
func (s *Service) PushDLBufferState(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	idx, err := intField(req, "ue_index", model.MaxNofUEs-1)
	if err != nil {
		return nil, ToStatusError(err)
	}
	lcid, err := intField(req, "lcid", maxLCID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	bytes, err := intField(req, "bytes", math.MaxInt32)
	if err != nil {
		return nil, ToStatusError(err)
	}

	if err := s.backend.HandleDLBufferState(model.UEIndex(idx), model.LCID(lcid), bytes); err != nil {
		return nil, ToStatusError(err)
	}
	logging.FromContext(ctx, s.log).Debug(ctx, "dl buffer state injected",
		logging.Int("ue", idx),
		logging.Int("lcid", lcid),
		logging.Int("bytes", bytes),
	)
	return &emptypb.Empty{}, nil
}

// intField reads a non-negative integral number no larger than limit.
func intField(s *structpb.Struct, key string, limit int) (int, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidArgument, key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidArgument, key)
	}
	f := n.NumberValue
	if f < 0 || f > float64(limit) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q = %v out of range [0, %d]", ErrInvalidArgument, key, f, limit)
	}
	return int(f), nil
}
