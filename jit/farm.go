package jit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/internal/farm"
	"github.com/ddpt-project/ddpt/ir"
)

// farmBackend dispatches Compile to one or more remote farm nodes
// (SPEC_FULL.md §4.6) instead of shelling out to a local toolchain. It
// still resolves the packed-ABI entry point locally via loadCompiled,
// since the returned shared object's symbols must live in this process's
// address space regardless of which host produced them.
type farmBackend struct {
	pool *farm.Pool
	gpu  bool
}

// newFarmBackend dials every address in addr (comma-separated for more
// than one farm node) and wires them into a single farm.Pool; a batch
// with more than one configured node races the same Compile call across
// all of them (farm.Pool.Compile), rather than picking just the first.
func newFarmBackend(ctx context.Context, addr string, gpu bool) (*farmBackend, error) {
	addrs := strings.Split(addr, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}
	pool, err := farm.DialAll(ctx, addrs)
	if err != nil {
		return nil, &ddpt.ErrCompileFailure{Cause: err}
	}
	return &farmBackend{pool: pool, gpu: gpu}, nil
}

func (b *farmBackend) Compile(mod *ir.Module, pipeline string) (CompiledFunc, error) {
	key := CacheKey(mod)
	data, err := b.pool.Compile(context.Background(), mod.Text(), pipeline, b.gpu, key)
	if err != nil {
		return nil, &ddpt.ErrCompileFailure{Cause: err}
	}

	soPath := filepath.Join(os.TempDir(), fmt.Sprintf("ddpt-farm-client-%s.so", key))
	if err := os.WriteFile(soPath, data, 0o755); err != nil {
		return nil, &ddpt.ErrCompileFailure{Cause: err}
	}
	return loadCompiled(mod, soPath)
}

// Close tears down every dialed farm connection. Picked up by
// Engine.Close via its Backend-closer type assertion.
func (b *farmBackend) Close() error {
	return b.pool.Close()
}
