// Package pb holds the manifest/cache-key message types the JIT cache key
// and the DDPT_VERBOSE>=2 diagnostic dump are built from. BatchManifest
// and NodeDescriptor are written by hand in the shape protoc-gen-go
// produces (struct tags, Reset/String/ProtoMessage, Get* accessors),
// since this pack ships no protoc toolchain to run — the same shape the
// teacher's own pb.Build/pb.Meta take, just produced by hand instead of
// generation. The go:generate directive below is left in place exactly as
// the teacher's pb/builder/generate.go does. It names a manifest.proto
// that is not checked in to this repository.
package pb

//go:generate protoc --go_out=plugins=grpc:. manifest.proto

import "fmt"

// BatchManifest records one compiled batch: the ordered node list that
// went into it (for post-mortem debugging) plus the pipeline string and
// resolved cache key, matching the teacher's Build message recording one
// package build's inputs.
type BatchManifest struct {
	Pipeline string            `protobuf:"bytes,1,opt,name=pipeline,proto3" json:"pipeline,omitempty"`
	CacheKey string            `protobuf:"bytes,2,opt,name=cache_key,json=cacheKey,proto3" json:"cache_key,omitempty"`
	Nodes    []*NodeDescriptor `protobuf:"bytes,3,rep,name=nodes,proto3" json:"nodes,omitempty"`
	ModuleText string          `protobuf:"bytes,4,opt,name=module_text,json=moduleText,proto3" json:"module_text,omitempty"`
}

func (m *BatchManifest) Reset()         { *m = BatchManifest{} }
func (m *BatchManifest) String() string { return fmt.Sprintf("%+v", *m) }
func (*BatchManifest) ProtoMessage()    {}

func (m *BatchManifest) GetPipeline() string {
	if m != nil {
		return m.Pipeline
	}
	return ""
}

func (m *BatchManifest) GetCacheKey() string {
	if m != nil {
		return m.CacheKey
	}
	return ""
}

func (m *BatchManifest) GetNodes() []*NodeDescriptor {
	if m != nil {
		return m.Nodes
	}
	return nil
}

func (m *BatchManifest) GetModuleText() string {
	if m != nil {
		return m.ModuleText
	}
	return ""
}

// NodeDescriptor is one node's serialization-only summary: its guid,
// factory_id (spec.md §3 "factory_id: small enum used for serialization
// only"), dtype tag and rank.
type NodeDescriptor struct {
	Guid      uint64 `protobuf:"varint,1,opt,name=guid,proto3" json:"guid,omitempty"`
	FactoryId int32  `protobuf:"varint,2,opt,name=factory_id,json=factoryId,proto3" json:"factory_id,omitempty"`
	Dtype     int32  `protobuf:"varint,3,opt,name=dtype,proto3" json:"dtype,omitempty"`
	Rank      int32  `protobuf:"varint,4,opt,name=rank,proto3" json:"rank,omitempty"`
}

func (m *NodeDescriptor) Reset()         { *m = NodeDescriptor{} }
func (m *NodeDescriptor) String() string { return fmt.Sprintf("%+v", *m) }
func (*NodeDescriptor) ProtoMessage()    {}

func (m *NodeDescriptor) GetGuid() uint64 {
	if m != nil {
		return m.Guid
	}
	return 0
}

func (m *NodeDescriptor) GetFactoryId() int32 {
	if m != nil {
		return m.FactoryId
	}
	return 0
}

func (m *NodeDescriptor) GetDtype() int32 {
	if m != nil {
		return m.Dtype
	}
	return 0
}

func (m *NodeDescriptor) GetRank() int32 {
	if m != nil {
		return m.Rank
	}
	return 0
}
