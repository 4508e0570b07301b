// Command ddptd is the process hosting the deferred-execution JIT
// runtime: it owns the Registry, the Scheduler's worker loop, and the
// JIT Engine, and dispatches to a small set of verbs the way the
// teacher's cmd/distri dispatches build/install/fuse/env/etc — here
// narrowed to the verbs this runtime's own components need (run, farm,
// fs, env, dump).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime/pprof"

	"golang.org/x/xerrors"

	_ "net/http/pprof"

	"github.com/lpar/gzipped/v2"
	"golang.org/x/exp/mmap"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/internal/env"
	"github.com/ddpt-project/ddpt/internal/farm"
	"github.com/ddpt-project/ddpt/internal/registryfs"
	internaltrace "github.com/ddpt-project/ddpt/internal/trace"
	"github.com/ddpt-project/ddpt/jit"
	"github.com/ddpt-project/ddpt/node"
	"github.com/ddpt-project/ddpt/registry"
	"github.com/ddpt-project/ddpt/scheduler"

	"github.com/ddpt-project/ddpt/dtype"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "path to store a CPU profile at")
	ctracefile = flag.String("ctracefile", "", "path to store a chrome trace event file at (load in chrome://tracing)")
	httpListen = flag.String("listen", "", "host:port to listen on for HTTP (pprof, debug)")
)

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

func funcmain() error {
	flag.Parse()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if *ctracefile != "" {
		f, err := os.Create(*ctracefile)
		if err != nil {
			return err
		}
		internaltrace.Sink(f)
	}

	listen := *httpListen
	if listen == "" {
		listen = env.Listen()
	}
	if listen != "" {
		go http.ListenAndServe(listen, nil)
	}

	verbs := map[string]cmd{
		"run":  {cmdRun},
		"farm": {cmdFarm},
		"fs":   {cmdFS},
		"env":  {cmdEnv},
		"dump": {cmdDump},
	}

	args := flag.Args()
	verb := "run"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	ctx, canc := ddpt.InterruptibleContext()
	defer canc()

	v, ok := verbs[verb]
	if !ok {
		return fmt.Errorf("unknown command %q; syntax: ddptd <run|farm|fs|env|dump> [options]", verb)
	}
	runErr := v.fn(ctx, args)

	// Release every registered teardown hook (currently: jit.Engine.Close,
	// registered by cmdRun) before this process's shared libraries unload
	// — spec.md §9 "Global state" requires fini to run before that point,
	// since the compiled code owns symbols living in those libraries.
	if err := ddpt.RunAtExit(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// cmdRun starts the scheduler's worker loop against a fresh Registry and
// Engine. With -demo, it also enqueues the seed-scenario S1 node sequence
// (arange+full+add) so the binary does something observable without a
// front-end wired up.
func cmdRun(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("run", flag.ExitOnError)
	demo := fset.Bool("demo", false, "enqueue a demo arange+full+add batch; the worker loop keeps running until interrupted")
	fset.Parse(args)

	engine, err := jit.NewEngine(ctx)
	if err != nil {
		return xerrors.Errorf("jit.NewEngine: %w", err)
	}
	ddpt.RegisterAtExit(engine.Close)
	reg := registry.New()
	sched := scheduler.New(reg, engine, log.New(os.Stderr, "", log.LstdFlags))

	if *demo {
		a := node.Arange(reg, 0, 10, 1, dtype.INT64, 0)
		b := node.Full(reg, []int64{10}, 1, dtype.INT64, 0)
		c, err := node.Add(reg, a.Guid(), b.Guid())
		if err != nil {
			return err
		}
		sched.Enqueue(a)
		sched.Enqueue(b)
		sched.Enqueue(c)
		sched.Enqueue(node.HostPrint(reg, c.Guid()))
		sched.Enqueue(scheduler.Run)
	}

	return sched.Run(ctx)
}

// cmdFarm runs a remote compile farm node (SPEC_FULL.md §4.6), serving
// jit farm RPCs until ctx is done.
func cmdFarm(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("farm", flag.ExitOnError)
	addr := fset.String("listen", "localhost:2020", "[host]:port to serve jit-farm gRPC requests on (unauthenticated)")
	fset.Parse(args)

	log.Printf("ddptd farm: listening on %s", *addr)
	return farm.Serve(ctx, *addr)
}

// cmdFS mounts the registryfs filesystem at the given mountpoint
// (SPEC_FULL.md §4.8), attached to a fresh, empty Registry — useful only
// when this process is itself the one running the scheduler (see
// cmdRun); mounting against a separate ddptd process's Registry is not
// supported, since the Registry is in-process state.
func cmdFS(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ddptd fs <mountpoint>")
	}
	reg := registry.New()
	join, err := registryfs.Mount(ctx, reg, args[0])
	if err != nil {
		return err
	}
	return join(ctx)
}

// cmdEnv prints the resolved DDPT_*/MLIRROOT/IMEXROOT environment, the
// same diagnostic the teacher's "distri env" verb provides for its own
// DISTRIROOT-centered environment.
func cmdEnv(ctx context.Context, args []string) error {
	fmt.Printf("MLIRROOT=%s\n", env.MLIRRoot)
	fmt.Printf("IMEXROOT=%s\n", env.IMEXRoot)
	fmt.Printf("DDPT_OPT_TOOL=%s\n", env.OptTool())
	fmt.Printf("DDPT_LLC_TOOL=%s\n", env.LLCTool())
	fmt.Printf("DDPT_USE_GPU=%v (set=%v)\n", env.UseGPU(), env.UseGPUSet())
	fmt.Printf("DDPT_USE_CACHE=%v\n", env.UseCache())
	fmt.Printf("DDPT_IDTR_SO=%s\n", env.IdtrSO())
	fmt.Printf("DDPT_GPUX_SO=%s\n", env.GpuxSO())
	fmt.Printf("DDPT_FARM_ADDR=%s\n", env.FarmAddr())
	fmt.Printf("DDPT_VERBOSE=%d\n", env.Verbose())
	return nil
}

// cmdDump serves the DDPT_VERBOSE>=2 manifest dump directory (see
// pb.DumpManifest) over HTTP, the same shape as the teacher's "distri
// export" verb: gzip-transcoding static files for any client that
// accepts it, toggleable with -gzip=false for a plain http.FileServer.
// With -read instead of -listen, it mmaps a single named dump (avoiding
// a full read into the Go heap for what can be a large textproto dump)
// and copies it to stdout — the same golang.org/x/exp/mmap.Open access
// pattern internal/install.go uses against a squashfs image before
// extracting it.
func cmdDump(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("dump", flag.ExitOnError)
	dir := fset.String("dir", filepath.Join(os.TempDir(), "ddpt.manifests"), "directory pb.DumpManifest writes cache-key dumps into")
	addr := fset.String("listen", "", "[host]:port to serve the dump directory on; empty skips serving")
	gzipOn := fset.Bool("gzip", true, "gzip-transcode served files for clients that accept it")
	read := fset.String("read", "", "cache key to mmap-read and print to stdout instead of serving")
	fset.Parse(args)

	if *read != "" {
		path := filepath.Join(*dir, *read+".textproto.gz")
		r, err := mmap.Open(path)
		if err != nil {
			return xerrors.Errorf("dump: mmap.Open: %w", err)
		}
		defer r.Close()
		buf := make([]byte, r.Len())
		if _, err := r.ReadAt(buf, 0); err != nil {
			return xerrors.Errorf("dump: ReadAt: %w", err)
		}
		os.Stdout.Write(buf)
		return nil
	}

	if *addr == "" {
		return fmt.Errorf("ddptd dump: one of -listen or -read is required")
	}
	if *gzipOn {
		http.Handle("/", gzipped.FileServer(http.Dir(*dir)))
	} else {
		http.Handle("/", http.FileServer(http.Dir(*dir)))
	}
	log.Printf("ddptd dump: serving %s on %s", *dir, *addr)
	srv := &http.Server{Addr: *addr}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func main() {
	if err := funcmain(); err != nil {
		log.Fatal(err)
	}
}
