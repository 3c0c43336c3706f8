package rpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "facedet.DetectService"
	// ModelNameKey carries the uploaded file name in request metadata.
	ModelNameKey = "x-model-name"
	chunkSize    = 64 * 1024
)

// DetectServiceServer is implemented by Server.
type DetectServiceServer interface {
	InitEngine(context.Context, *InitEngineRequest) (*InitEngineResponse, error)
	Inference(context.Context, *InferenceRequest) (*InferenceResponse, error)
	DestroyEngine(context.Context, *EngineRequest) (*StatusResponse, error)
	CheckEngine(context.Context, *EngineRequest) (*CheckEngineResponse, error)
	CheckAllEngine(context.Context, *CheckAllEngineRequest) (*CheckAllEngineResponse, error)
	Shutdown(context.Context, *ShutdownRequest) (*StatusResponse, error)
	UploadModel(grpc.ServerStream) error
}

// unary decodes the Struct on the wire into Req and encodes Resp back.
// Interceptors see the wire Struct.
func unary[Req, Resp any](name string, call func(DetectServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				r := new(Req)
				if err := fromStruct(req.(*structpb.Struct), r); err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "malformed %s request: %v", name, err)
				}
				resp, err := call(srv.(DetectServiceServer), ctx, r)
				if err != nil {
					return nil, err
				}
				out, err := toStruct(resp)
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DetectServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("InitEngine", DetectServiceServer.InitEngine),
		unary("Inference", DetectServiceServer.Inference),
		unary("DestroyEngine", DetectServiceServer.DestroyEngine),
		unary("CheckEngine", DetectServiceServer.CheckEngine),
		unary("CheckAllEngine", DetectServiceServer.CheckAllEngine),
		unary("Shutdown", DetectServiceServer.Shutdown),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "UploadModel",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(DetectServiceServer).UploadModel(stream)
			},
			ClientStreams: true,
		},
	},
	Metadata: "proto/facedet.proto",
}

// Client calls DetectService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	req, err := toStruct(in)
	if err != nil {
		return nil, err
	}
	wire := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, wire, opts...); err != nil {
		return nil, err
	}
	out := new(Resp)
	if err := fromStruct(wire, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) InitEngine(ctx context.Context, in *InitEngineRequest, opts ...grpc.CallOption) (*InitEngineResponse, error) {
	return invoke[InitEngineResponse](ctx, c, "InitEngine", in, opts...)
}

func (c *Client) Inference(ctx context.Context, in *InferenceRequest, opts ...grpc.CallOption) (*InferenceResponse, error) {
	return invoke[InferenceResponse](ctx, c, "Inference", in, opts...)
}

func (c *Client) DestroyEngine(ctx context.Context, in *EngineRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "DestroyEngine", in, opts...)
}

func (c *Client) CheckEngine(ctx context.Context, in *EngineRequest, opts ...grpc.CallOption) (*CheckEngineResponse, error) {
	return invoke[CheckEngineResponse](ctx, c, "CheckEngine", in, opts...)
}

func (c *Client) CheckAllEngine(ctx context.Context, opts ...grpc.CallOption) (*CheckAllEngineResponse, error) {
	return invoke[CheckAllEngineResponse](ctx, c, "CheckAllEngine", &CheckAllEngineRequest{}, opts...)
}

func (c *Client) Shutdown(ctx context.Context, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "Shutdown", &ShutdownRequest{}, opts...)
}

// UploadModel streams r to the server under name.
func (c *Client) UploadModel(ctx context.Context, name string, r io.Reader, opts ...grpc.CallOption) (*UploadModelResponse, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, ModelNameKey, name)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/UploadModel", opts...)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, chunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if err := stream.SendMsg(wrapperspb.Bytes(append([]byte(nil), buf[:n]...))); err != nil {
				if errors.Is(err, io.EOF) {
					// the server ended the call; RecvMsg carries its status
					break
				}
				return nil, err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, readErr
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	wire := new(structpb.Struct)
	if err := stream.RecvMsg(wire); err != nil {
		return nil, err
	}
	out := new(UploadModelResponse)
	if err := fromStruct(wire, out); err != nil {
		return nil, err
	}
	return out, nil
}
