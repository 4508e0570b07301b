// Package jitfarm defines a gRPC protocol to leverage remote compute
// resources (e.g. a host with a GPU toolchain installed) for a
// jit.Engine.Compile call, mirroring pb/builder's "leverage remote
// compute for a distri build" convention one level down: here the unit
// of remote work is one compiled module, not one package build.
package jitfarm

//go:generate protoc --go_out=plugins=grpc:. jitfarm.proto

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// ModuleRequest uploads one module's text plus the pass-pipeline string
// to run it through, and whether the receiving farm node should target
// its GPU toolchain.
type ModuleRequest struct {
	ModuleText string `protobuf:"bytes,1,opt,name=module_text,json=moduleText,proto3" json:"module_text,omitempty"`
	Pipeline   string `protobuf:"bytes,2,opt,name=pipeline,proto3" json:"pipeline,omitempty"`
	Gpu        bool   `protobuf:"varint,3,opt,name=gpu,proto3" json:"gpu,omitempty"`
	CacheKey   string `protobuf:"bytes,4,opt,name=cache_key,json=cacheKey,proto3" json:"cache_key,omitempty"`
}

func (m *ModuleRequest) Reset()         { *m = ModuleRequest{} }
func (m *ModuleRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (*ModuleRequest) ProtoMessage()    {}

func (m *ModuleRequest) GetModuleText() string {
	if m != nil {
		return m.ModuleText
	}
	return ""
}

func (m *ModuleRequest) GetPipeline() string {
	if m != nil {
		return m.Pipeline
	}
	return ""
}

func (m *ModuleRequest) GetGpu() bool {
	if m != nil {
		return m.Gpu
	}
	return false
}

func (m *ModuleRequest) GetCacheKey() string {
	if m != nil {
		return m.CacheKey
	}
	return ""
}

// CompileChunk is one piece of the compiled shared-object stream a farm
// node sends back for a ModuleRequest — chunked so a large GPU SPIR-V
// blob never has to fit in a single gRPC message, mirroring the
// teacher's own chunked Store client-streaming RPC in reverse
// (server-streaming: one request in, many chunks back).
type CompileChunk struct {
	Data []byte `protobuf:"bytes,1,opt,name=data,proto3" json:"data,omitempty"`
	Eof  bool   `protobuf:"varint,2,opt,name=eof,proto3" json:"eof,omitempty"`
}

func (m *CompileChunk) Reset()         { *m = CompileChunk{} }
func (m *CompileChunk) String() string { return fmt.Sprintf("%+v", *m) }
func (*CompileChunk) ProtoMessage()    {}

func (m *CompileChunk) GetData() []byte {
	if m != nil {
		return m.Data
	}
	return nil
}

func (m *CompileChunk) GetEof() bool {
	if m != nil {
		return m.Eof
	}
	return false
}

// JitFarmClient is the client half of the Compile RPC, hand-written in
// the shape protoc-gen-go's "plugins=grpc" mode produces (matching
// pb/builder/generate.go's generation directive; no .proto source for
// it is checked in to this repository).
type JitFarmClient interface {
	Compile(ctx context.Context, in *ModuleRequest, opts ...grpc.CallOption) (JitFarm_CompileClient, error)
}

type jitFarmClient struct {
	cc *grpc.ClientConn
}

// NewJitFarmClient wraps cc for the Compile RPC.
func NewJitFarmClient(cc *grpc.ClientConn) JitFarmClient {
	return &jitFarmClient{cc: cc}
}

func (c *jitFarmClient) Compile(ctx context.Context, in *ModuleRequest, opts ...grpc.CallOption) (JitFarm_CompileClient, error) {
	stream, err := c.cc.NewStream(ctx, &jitFarmServiceDesc.Streams[0], "/jitfarm.JitFarm/Compile", opts...)
	if err != nil {
		return nil, err
	}
	x := &jitFarmCompileClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// JitFarm_CompileClient streams CompileChunks back from the farm node.
type JitFarm_CompileClient interface {
	Recv() (*CompileChunk, error)
	grpc.ClientStream
}

type jitFarmCompileClient struct {
	grpc.ClientStream
}

func (x *jitFarmCompileClient) Recv() (*CompileChunk, error) {
	m := new(CompileChunk)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// JitFarmServer is the server half of the Compile RPC.
type JitFarmServer interface {
	Compile(*ModuleRequest, JitFarm_CompileServer) error
}

// JitFarm_CompileServer is the send side of the streamed response a
// server-side Compile implementation writes chunks to.
type JitFarm_CompileServer interface {
	Send(*CompileChunk) error
	grpc.ServerStream
}

type jitFarmCompileServer struct {
	grpc.ServerStream
}

func (x *jitFarmCompileServer) Send(m *CompileChunk) error {
	return x.ServerStream.SendMsg(m)
}

func jitFarmComileHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(ModuleRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(JitFarmServer).Compile(m, &jitFarmCompileServer{stream})
}

var jitFarmServiceDesc = grpc.ServiceDesc{
	ServiceName: "jitfarm.JitFarm",
	HandlerType: (*JitFarmServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Compile",
			Handler:       jitFarmComileHandler,
			ServerStreams: true,
		},
	},
	Metadata: "jitfarm.proto",
}

// RegisterJitFarmServer registers srv against s, the same
// grpc.ServiceDesc-based registration the teacher's generated
// pb/builder code uses.
func RegisterJitFarmServer(s *grpc.Server, srv JitFarmServer) {
	s.RegisterService(&jitFarmServiceDesc, srv)
}
