package jit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"plugin"
	"unsafe"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/future"
	"github.com/ddpt-project/ddpt/internal/env"
	"github.com/ddpt-project/ddpt/internal/trace"
	"github.com/ddpt-project/ddpt/ir"
	"golang.org/x/sys/unix"
)

// execBackend is the production Backend: it shells out to the configured
// external MLIR toolchain the same way the teacher shells out to gcc,
// cmake, meson and make (internal/build/build*.go) — composing the
// command, feeding it input on stdin, and treating a nonzero exit as
// fatal for the batch.
type execBackend struct {
	optTool, llcTool string
	sharedLibs       []string
	verbose          int
}

func newExecBackend(sharedLibs []string) *execBackend {
	return &execBackend{
		optTool:    env.OptTool(),
		llcTool:    env.LLCTool(),
		sharedLibs: sharedLibs,
		verbose:    env.Verbose(),
	}
}

func (b *execBackend) Compile(mod *ir.Module, pipeline string) (CompiledFunc, error) {
	text := mod.Text()
	if b.verbose >= 2 {
		fmt.Fprintf(os.Stderr, "ddpt: module before lowering:\n%s\n", text)
	}

	ev := trace.PassStage("compile:" + b.optTool)
	lowered, err := b.runOpt(text, pipeline)
	if b.verbose >= 3 {
		ev.Done()
	}
	if err != nil {
		return nil, &ddpt.ErrPassFailure{Cause: err}
	}
	if b.verbose >= 3 {
		fmt.Fprintf(os.Stderr, "ddpt: module after lowering:\n%s\n", lowered)
	}

	soPath, err := b.runLLC(lowered)
	if err != nil {
		return nil, &ddpt.ErrCompileFailure{Cause: err}
	}
	return loadCompiled(mod, soPath)
}

// loadCompiled resolves the packed-ABI entry point out of a shared
// object already sitting at soPath — whether it was produced by this
// process's own runLLC (execBackend) or downloaded from a farm node
// (farmBackend) — and precomputes each argument's and result's flat word
// count from mod's declared IR types, so Invoke never has to re-parse
// them.
func loadCompiled(mod *ir.Module, soPath string) (CompiledFunc, error) {
	p, err := plugin.Open(soPath)
	if err != nil {
		return nil, &ddpt.ErrCompileFailure{Cause: err}
	}
	sym, err := p.Lookup("_mlir_ciface_jit_main")
	if err != nil {
		return nil, &ddpt.ErrLookupFailure{Symbol: "_mlir_ciface_jit_main"}
	}
	entry, ok := sym.(func([]uintptr))
	if !ok {
		return nil, &ddpt.ErrLookupFailure{Symbol: "_mlir_ciface_jit_main"}
	}

	argWords := make([]int, len(mod.Args()))
	for i, a := range mod.Args() {
		pt, err := parseIRType(a.IRType)
		if err != nil {
			return nil, err
		}
		argWords[i] = future.PtensorWords(pt.rank, pt.distributed)
	}
	resultWords := make([]int, len(mod.Results()))
	totalResultWords := 0
	for i, r := range mod.Results() {
		pt, err := parseIRType(r.IRType)
		if err != nil {
			return nil, err
		}
		resultWords[i] = future.PtensorWords(pt.rank, pt.distributed)
		totalResultWords += resultWords[i]
	}

	return &execCompiled{
		entry:            entry,
		soPath:           soPath,
		argWords:         argWords,
		resultWords:      resultWords,
		totalResultWords: totalResultWords,
	}, nil
}

func (b *execBackend) runOpt(text, pipeline string) (string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := exec.CommandContext(ctx, b.optTool, "--pass-pipeline="+pipeline)
	cmd.Stdin = bytes.NewBufferString(text)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", b.optTool, err, stderr.String())
	}
	return out.String(), nil
}

func (b *execBackend) runLLC(lowered string) (string, error) {
	soPath := filepath.Join(os.TempDir(), fmt.Sprintf("ddpt-jit-%d.so", os.Getpid()))
	args := []string{"--shared-libs=" + joinComma(b.sharedLibs), "-o", soPath}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := exec.CommandContext(ctx, b.llcTool, args...)
	cmd.Stdin = bytes.NewBufferString(lowered)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", b.llcTool, err, stderr.String())
	}
	return soPath, nil
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// execCompiled wraps the packed-ABI entry point resolved from a compiled
// shared object (spec.md §6 "packed ABI": all arguments passed as a
// single []void*, [&output_ptr, &input_ptr_0, ...]). argWords/resultWords
// record each argument's and result's flat word count (computed once, at
// Compile time, from the module's declared IR types) so Invoke can slice
// flatInput into one pointer per argument without re-parsing IR types on
// every call.
type execCompiled struct {
	entry            func([]uintptr)
	soPath           string
	argWords         []int
	resultWords      []int
	totalResultWords int
}

func (c *execCompiled) Close() error {
	return os.Remove(c.soPath)
}

// Invoke builds the packed pointer array and calls the loaded entry
// point. The output buffer is mmap'd rather than a plain Go slice: its
// address is handed across the C ABI boundary and written to by code the
// Go runtime knows nothing about, so it must not live on a stack or heap
// region the garbage collector could ever move or reclaim out from under
// the call.
func (c *execCompiled) Invoke(flatInput []uint64) ([]uint64, error) {
	outBuf, err := unix.Mmap(-1, 0, c.totalResultWords*8, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("execCompiled.Invoke: mmap output buffer: %w", err)
	}
	defer unix.Munmap(outBuf)

	ptrs := make([]uintptr, 0, 1+len(c.argWords))
	ptrs = append(ptrs, future.HostPointer(outBuf))
	off := 0
	for _, n := range c.argWords {
		if off+n > len(flatInput) {
			return nil, &ddpt.ErrInvariantViolation{Msg: "execCompiled.Invoke: flatInput shorter than declared argument words"}
		}
		ptrs = append(ptrs, future.HostPointer(uint64SliceBytes(flatInput[off:off+n])))
		off += n
	}

	c.entry(ptrs)

	out := make([]uint64, c.totalResultWords)
	for i := range out {
		out[i] = getLE64(outBuf[i*8:])
	}
	return out, nil
}

// uint64SliceBytes reinterprets a []uint64 as its underlying little-endian
// bytes without copying, so a sub-slice of flatInput can be addressed
// directly as the memref descriptor words it already is.
func uint64SliceBytes(words []uint64) []byte {
	if len(words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
}
