package jit

import (
	"context"
	"testing"
	"time"
)

// TestResolveBackendLocalByDefault asserts a batch that never sets
// DDPT_FARM_ADDR gets the local execBackend and never dials anything.
func TestResolveBackendLocalByDefault(t *testing.T) {
	t.Setenv("DDPT_FARM_ADDR", "")

	b, err := resolveBackend(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("resolveBackend: %v", err)
	}
	if _, ok := b.(*execBackend); !ok {
		t.Fatalf("resolveBackend with no DDPT_FARM_ADDR returned %T, want *execBackend", b)
	}
}

// TestResolveBackendFarmWhenAddrSet asserts DDPT_FARM_ADDR routes through
// newFarmBackend (and therefore farm.Dial) instead; dialing an address
// with nothing listening must fail quickly rather than select execBackend
// silently.
func TestResolveBackendFarmWhenAddrSet(t *testing.T) {
	t.Setenv("DDPT_FARM_ADDR", "127.0.0.1:1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := resolveBackend(ctx, false, nil); err == nil {
		t.Fatal("resolveBackend with an unreachable DDPT_FARM_ADDR returned nil error, want a dial failure")
	}
}
