// Package grpctest provides a minimal hand-built gRPC service used only by
// the end-to-end tests to exercise the proxy's gRPC route without requiring
// a protoc toolchain in this environment. It registers a JSON codec under
// the "json" content-subtype (wire content-type "application/grpc+json")
// instead of generating protobuf message types, so the messages exchanged
// here are plain Go structs rather than protoreflect.ProtoMessage values.
// This is test-support code; it is not part of the proxy binary.
package grpctest

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// HelloRequest is the SayHello request message.
type HelloRequest struct {
	Name string `json:"name"`
}

// HelloReply is the SayHello response message.
type HelloReply struct {
	Message string `json:"message"`
}

// GreeterServer is implemented by backends registered with RegisterGreeterServer.
type GreeterServer interface {
	SayHello(ctx context.Context, req *HelloRequest) (*HelloReply, error)
}

// StaticGreeter always replies with the same message, regardless of the
// request name. Used to identify which backend answered a round-robin call.
type StaticGreeter struct {
	Message string
}

// SayHello implements GreeterServer.
func (g StaticGreeter) SayHello(_ context.Context, _ *HelloRequest) (*HelloReply, error) {
	return &HelloReply{Message: g.Message}, nil
}

var greeterServiceDesc = grpc.ServiceDesc{
	ServiceName: "grpctest.Greeter",
	HandlerType: (*GreeterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SayHello",
			Handler:    sayHelloHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grpctest/greeter.proto",
}

func sayHelloHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HelloRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GreeterServer).SayHello(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/grpctest.Greeter/SayHello",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GreeterServer).SayHello(ctx, req.(*HelloRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterGreeterServer registers srv with s under the grpctest.Greeter
// service name.
func RegisterGreeterServer(s *grpc.Server, srv GreeterServer) {
	s.RegisterService(&greeterServiceDesc, srv)
}

// GreeterClient calls the grpctest.Greeter service.
type GreeterClient interface {
	SayHello(ctx context.Context, req *HelloRequest, opts ...grpc.CallOption) (*HelloReply, error)
}

type greeterClient struct {
	cc *grpc.ClientConn
}

// NewGreeterClient returns a GreeterClient that invokes calls over cc using
// the package's JSON codec.
func NewGreeterClient(cc *grpc.ClientConn) GreeterClient {
	return &greeterClient{cc: cc}
}

func (c *greeterClient) SayHello(ctx context.Context, req *HelloRequest, opts ...grpc.CallOption) (*HelloReply, error) {
	out := new(HelloReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/grpctest.Greeter/SayHello", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
