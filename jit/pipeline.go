package jit

import "strings"

// cpuPipeline and gpuPipeline are the two baseline ordered pass-name
// sequences (spec.md §4.4 "Pipeline selection"). The ordering is
// load-bearing: distributed passes run before array→loop lowering,
// bufferization precedes loop-to-CF lowering, and the GPU variant splices
// a kernel-outlining/SPIR-V/GPU-runtime-binding block between loop
// generation and final lowering.
var cpuPipeline = []string{
	"convert-dist-to-standard",
	"convert-ptensor-to-linalg",
	"arith-bufferize",
	"linalg-bufferize",
	"convert-linalg-to-loops",
	"convert-scf-to-cf",
	"convert-cf-to-llvm",
	"convert-arith-to-llvm",
	"convert-func-to-llvm",
	"reconcile-unrealized-casts",
}

var gpuPipeline = []string{
	"convert-dist-to-standard",
	"convert-ptensor-to-linalg",
	"arith-bufferize",
	"linalg-bufferize",
	"convert-linalg-to-parallel-loops",
	"gpu-map-parallel-loops",
	"convert-parallel-loops-to-gpu",
	"gpu-kernel-outlining",
	"convert-gpu-to-spirv",
	"gpu-to-llvm",
	"convert-scf-to-cf",
	"convert-cf-to-llvm",
	"convert-arith-to-llvm",
	"convert-func-to-llvm",
	"reconcile-unrealized-casts",
}

// optPasses returns the opt-level-gated tail passes appended after the
// baseline sequence: opt level 0 disables them entirely, matching
// spec.md's "size-0, user-selected opt-level transformer".
func optPasses(level int) []string {
	if level <= 0 {
		return nil
	}
	passes := []string{"canonicalize", "cse"}
	if level >= 2 {
		passes = append(passes, "loop-invariant-code-motion")
	}
	if level >= 3 {
		passes = append(passes, "inline")
	}
	return passes
}

// assemblePipeline renders the baseline sequence for gpu (true/false) at
// the given opt level into the "builtin.module(...)" value of mlir-opt's
// --pass-pipeline flag (execBackend adds the flag itself). An explicit
// override (DDPT_PASSES) bypasses
// assembly entirely and is passed through verbatim.
func assemblePipeline(gpu bool, optLevel int, override string) string {
	if override != "" {
		return override
	}
	base := cpuPipeline
	if gpu {
		base = gpuPipeline
	}
	all := append(append([]string(nil), base...), optPasses(optLevel)...)
	return "builtin.module(" + strings.Join(all, ",") + ")"
}
