package ops

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/gnb-scheduler/internal/sched"
	"github.com/signalsfoundry/gnb-scheduler/ue"
)

// ErrInvalidArgument is returned for malformed request payloads.
var ErrInvalidArgument = errors.New("invalid argument")

// ToStatusError maps scheduler errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, sched.ErrUnknownCell),
		errors.Is(err, ue.ErrUENotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, sched.ErrInvalidUEConfig),
		errors.Is(err, sched.ErrUnknownSlice),
		errors.Is(err, ue.ErrUnknownLogicalChannel):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, ue.ErrUEExists),
		errors.Is(err, ue.ErrRNTIInUse):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, sched.ErrDUFull):
		return status.Error(codes.ResourceExhausted, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
