package jit

import (
	"testing"

	"github.com/ddpt-project/ddpt/ir"
)

// buildArangeModule builds a module identical in shape to the one
// node.Arange would emit for arange(0, 4, 1): a single arange op
// producing one !ptensor.array result, no arguments.
func buildArangeModule() *ir.Module {
	mod := ir.NewModule()
	ssa := mod.Emit("arange", nil, "!ptensor.array<?xi64,{team=0}>", map[string]string{
		"start": "0",
		"stop":  "4",
		"step":  "1",
	}, []int64{4})
	mod.AddResult(ssa, "!ptensor.array<?xi64,{team=0}>")
	return mod
}

// TestCompileCacheHitSkipsBackend exercises seed scenario S4: compiling
// two distinct *ir.Module values that render identical canonical text
// must hit the cache on the second call, leaving compileCount at 1 and
// returning the very same CompiledFunc the first call produced.
func TestCompileCacheHitSkipsBackend(t *testing.T) {
	e := NewTestEngine()

	mod1 := buildArangeModule()
	cf1, err := e.Compile(mod1)
	if err != nil {
		t.Fatal(err)
	}
	if e.compileCount != 1 {
		t.Fatalf("compileCount = %d after first Compile, want 1", e.compileCount)
	}

	mod2 := buildArangeModule()
	cf2, err := e.Compile(mod2)
	if err != nil {
		t.Fatal(err)
	}
	if e.compileCount != 1 {
		t.Fatalf("compileCount = %d after second (cache-hit) Compile, want 1", e.compileCount)
	}
	if cf1 != cf2 {
		t.Fatalf("Compile on textually-identical modules returned distinct CompiledFunc values")
	}
}

// TestCompileCacheMissOnDifferentModule rules out a trivially-always-hit
// cache: a module with different attrs must produce a distinct cache
// entry and bump compileCount.
func TestCompileCacheMissOnDifferentModule(t *testing.T) {
	e := NewTestEngine()

	if _, err := e.Compile(buildArangeModule()); err != nil {
		t.Fatal(err)
	}

	mod := ir.NewModule()
	ssa := mod.Emit("arange", nil, "!ptensor.array<?xi64,{team=0}>", map[string]string{
		"start": "0",
		"stop":  "8",
		"step":  "1",
	}, []int64{8})
	mod.AddResult(ssa, "!ptensor.array<?xi64,{team=0}>")

	if _, err := e.Compile(mod); err != nil {
		t.Fatal(err)
	}
	if e.compileCount != 2 {
		t.Fatalf("compileCount = %d after two distinct modules, want 2", e.compileCount)
	}
}

// TestCacheKeyDeterministic asserts CacheKey is a pure function of a
// module's rendered text: two independently-built modules with the same
// ops/args/results produce the same key, matching the property Compile's
// cache relies on.
func TestCacheKeyDeterministic(t *testing.T) {
	k1 := CacheKey(buildArangeModule())
	k2 := CacheKey(buildArangeModule())
	if k1 != k2 {
		t.Fatalf("CacheKey not deterministic: %q != %q", k1, k2)
	}
	if len(k1) != 40 {
		t.Fatalf("CacheKey length = %d, want 40 (sha1 hex)", len(k1))
	}
}
