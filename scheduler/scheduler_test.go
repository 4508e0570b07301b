package scheduler

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/dtype"
	"github.com/ddpt-project/ddpt/future"
	"github.com/ddpt-project/ddpt/jit"
	"github.com/ddpt-project/ddpt/node"
	"github.com/ddpt-project/ddpt/registry"
)

func decodeInt64s(b []byte) []int64 {
	out := make([]int64, len(b)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}

func decodeFloat32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// TestArangeFullAddEndToEnd drives seed scenario S1 through the full
// stack — Registry, depmgr, ir, and the deterministic vm JIT backend —
// via processBatch directly (bypassing Run's channel drain, which is
// exercised separately by TestGatherBatchSplitsOnRunSentinel): both
// arange and full are produced inside the batch, so the compiled
// function takes zero arguments, and add's result should equal
// elementwise arange(0,4,1) + full(4, fill=10).
func TestArangeFullAddEndToEnd(t *testing.T) {
	reg := registry.New()
	engine := jit.NewTestEngine()
	s := New(reg, engine, nil)

	a := node.Arange(reg, 0, 4, 1, dtype.INT64, 0)
	b := node.Full(reg, []int64{4}, 10, dtype.INT64, 0)
	c, err := node.Add(reg, a.Guid(), b.Guid())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.processBatch(context.Background(), []node.Node{a, b, c}); err != nil {
		t.Fatal(err)
	}

	result, err := reg.Get(c.Guid())
	if err != nil {
		t.Fatal(err)
	}
	hf, ok := result.(*future.HostFuture)
	if !ok {
		t.Fatalf("registry returned %T, want *future.HostFuture", result)
	}
	got := decodeInt64s(hf.Bytes())
	want := []int64{10, 11, 12, 13}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// TestNegImportsExternalInputEndToEnd exercises seed scenario S2 through
// processBatch: x pre-exists in the Registry, so neg(x) imports it as a
// function argument instead of producing it in the same batch.
func TestNegImportsExternalInputEndToEnd(t *testing.T) {
	reg := registry.New()
	engine := jit.NewTestEngine()
	s := New(reg, engine, nil)

	x := future.NewHostFuture(dtype.FLOAT32, []int64{3})
	copy(x.Bytes(), []byte{
		0, 0, 0x80, 0x3f, // 1.0
		0, 0, 0, 0x40, // 2.0
		0, 0, 0x40, 0x40, // 3.0
	})
	reg.Put(x)

	y, err := node.Neg(reg, x.Guid())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.processBatch(context.Background(), []node.Node{y}); err != nil {
		t.Fatal(err)
	}

	result, err := reg.Get(y.Guid())
	if err != nil {
		t.Fatal(err)
	}
	hf := result.(*future.HostFuture)
	got := decodeFloat32s(hf.Bytes())
	want := []float32{-1, -2, -3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// TestHostPrintForcesFlushMidBatch exercises seed scenario S6: a
// HostPrint enqueued after an arange forces an immediate
// flush-compile-invoke-run before the batch continues, so by the time
// HostPrint.Run() executes the array it prints already holds real data.
func TestHostPrintForcesFlushMidBatch(t *testing.T) {
	reg := registry.New()
	engine := jit.NewTestEngine()
	s := New(reg, engine, nil)

	a := node.Arange(reg, 0, 3, 1, dtype.INT64, 0)
	p := node.HostPrint(reg, a.Guid())

	if err := s.processBatch(context.Background(), []node.Node{a, p}); err != nil {
		t.Fatal(err)
	}

	result, err := reg.Get(a.Guid())
	if err != nil {
		t.Fatal(err)
	}
	hf := result.(*future.HostFuture)
	got := decodeInt64s(hf.Bytes())
	want := []int64{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// distributedWrap re-registers a HostFuture under a nonzero team, the
// same trick node's own tests use, so resultTypeOf observes team != 0
// without HostFuture needing a public team-mutation method (it is
// deliberately team-0-only).
type distributedWrap struct {
	*future.HostFuture
	team ddpt.Team
}

func (d *distributedWrap) Team() ddpt.Team { return d.team }

// TestAddDistributedHaloTripleEndToEnd exercises seed scenario S3 through
// processBatch: a distributed rank-1 input's argument and result both
// flow through as halo-triple-encoded ptensors, and Deliver must consume
// exactly the word count HandleResult reserved for them.
func TestAddDistributedHaloTripleEndToEnd(t *testing.T) {
	reg := registry.New()
	engine := jit.NewTestEngine()
	s := New(reg, engine, nil)

	u := future.NewHostFuture(dtype.INT64, []int64{8})
	reg.Del(u.Guid())
	du := &distributedWrap{HostFuture: u, team: 7}
	reg.Put(du)

	v, err := node.Add(reg, du.Guid(), du.Guid())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.processBatch(context.Background(), []node.Node{v}); err != nil {
		t.Fatal(err)
	}

	res, err := reg.Get(v.Guid())
	if err != nil {
		t.Fatalf("result guid %d not registered: %v", v.Guid(), err)
	}
	hf, ok := res.(*future.HostFuture)
	if !ok {
		t.Fatalf("result guid %d is %T, want *future.HostFuture", v.Guid(), res)
	}
	if got := hf.Shape(); len(got) != 1 || got[0] != 8 {
		t.Fatalf("delivered shape = %v, want [8]", got)
	}
}

// TestDropThenReferenceFailsEndToEnd exercises seed scenario S5: once a
// guid has been dropped from the Registry, a later batch that tries to
// depend on it must fail at construction time rather than silently
// resolving to stale or zero data.
func TestDropThenReferenceFailsEndToEnd(t *testing.T) {
	reg := registry.New()
	a := node.Arange(reg, 0, 3, 1, dtype.INT64, 0)
	reg.Del(a.Guid())

	if _, err := node.Neg(reg, a.Guid()); err == nil {
		t.Fatal("expected an error constructing neg(dropped guid), got nil")
	}
}

// TestGatherBatchSplitsOnRunSentinel exercises the RUN-sentinel half of
// spec.md §4.2's batching rule directly: nodes queued before Run land in
// the first gathered batch, nodes queued after do not.
func TestGatherBatchSplitsOnRunSentinel(t *testing.T) {
	reg := registry.New()
	engine := jit.NewTestEngine()
	s := New(reg, engine, nil)

	a := node.Arange(reg, 0, 1, 1, dtype.INT64, 0)
	b := node.Arange(reg, 0, 1, 1, dtype.INT64, 0)
	c := node.Arange(reg, 0, 1, 1, dtype.INT64, 0)

	s.Enqueue(a)
	s.Enqueue(b)
	s.Enqueue(Run)
	s.Enqueue(c)

	ctx := context.Background()
	first, err := s.gatherBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(first), 2; got != want {
		t.Fatalf("first batch len = %d, want %d", got, want)
	}

	second, err := s.gatherBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(second), 1; got != want {
		t.Fatalf("second batch len = %d, want %d", got, want)
	}
}

// TestGatherBatchRunOnlyIsEmpty covers a batch containing only a Run
// sentinel: gatherBatch returns an empty slice (Run's main loop skips
// zero-length batches without calling processBatch).
func TestGatherBatchRunOnlyIsEmpty(t *testing.T) {
	reg := registry.New()
	engine := jit.NewTestEngine()
	s := New(reg, engine, nil)

	s.Enqueue(Run)

	batch, err := s.gatherBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 0 {
		t.Fatalf("len(batch) = %d, want 0", len(batch))
	}
}
