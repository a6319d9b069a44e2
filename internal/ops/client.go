package ops

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

// Client calls the ops service over an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// GetCellStatus fetches the snapshot of one cell.
func (c *Client) GetCellStatus(ctx context.Context, cell model.CellIndex, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getCellStatusMethod, wrapperspb.UInt32(uint32(cell)), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListUEs fetches the UE summaries.
func (c *Client) ListUEs(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listUEsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PushDLBufferState reports the DL buffer occupancy of a bearer.
func (c *Client) PushDLBufferState(ctx context.Context, idx model.UEIndex, lcid model.LCID, bytes int, opts ...grpc.CallOption) error {
	req, err := structpb.NewStruct(map[string]any{
		"ue_index": int(idx),
		"lcid":     int(lcid),
		"bytes":    bytes,
	})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, pushDLBufferStateMethod, req, new(emptypb.Empty), opts...)
}
