// Package scheduler is the deferred-graph scheduler (spec.md §4.2),
// rewritten from the teacher's internal/batch worker pool: the same
// FIFO-channel-plus-single-drain idiom, generalized from "drain a fixed
// package list, dispatch N workers building in parallel" to "drain an
// unbounded node stream, thread it through exactly one Dependency
// Manager and JIT Engine, single-threaded, per spec.md §5's single
// in-process runtime constraint."
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/depmgr"
	"github.com/ddpt-project/ddpt/dtype"
	"github.com/ddpt-project/ddpt/internal/env"
	"github.com/ddpt-project/ddpt/internal/trace"
	"github.com/ddpt-project/ddpt/ir"
	"github.com/ddpt-project/ddpt/jit"
	"github.com/ddpt-project/ddpt/node"
	"github.com/ddpt-project/ddpt/registry"
	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// queueCapacity bounds how many nodes can be pending before Enqueue
// blocks — generous relative to a typical batch, the way the teacher
// sized internal/batch's work channel to its (known up front) package
// count; here the node stream is unbounded so the channel is sized by
// guess rather than an exact count.
const queueCapacity = 4096

// Scheduler owns the FIFO node stream, the process-wide Registry, and
// the JIT Engine every batch in this process compiles through.
type Scheduler struct {
	reg    *registry.Registry
	engine *jit.Engine
	log    *log.Logger
	work   chan node.Node

	isTerminal bool
	statusMu   sync.Mutex
	lastPrint  time.Time
}

// New returns a Scheduler ready to accept Enqueue calls from any
// goroutine; Run must be called exactly once to drive it.
func New(reg *registry.Registry, engine *jit.Engine, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Scheduler{
		reg:        reg,
		engine:     engine,
		log:        logger,
		work:       make(chan node.Node, queueCapacity),
		isTerminal: isatty.IsTerminal(os.Stdout.Fd()),
	}
}

// Enqueue queues n for the worker loop, safe from any goroutine (a
// buffered channel, like the teacher's work chan *node in
// internal/batch).
func (s *Scheduler) Enqueue(n node.Node) {
	s.work <- n
}

// runSentinel is the RUN sentinel value spec.md's batching language
// refers to: enqueuing scheduler.Run forces the worker loop to stop
// gathering more nodes into the batch currently being collected, even
// though the channel may still have more work behind it.
type runSentinel struct{}

func (runSentinel) Guid() ddpt.Guid    { return ddpt.NoGuid }
func (runSentinel) DType() dtype.DType { return dtype.BOOL }
func (runSentinel) Rank() int          { return 0 }
func (runSentinel) Balanced() bool     { return true }
func (runSentinel) Run() error         { return nil }
func (runSentinel) FactoryID() int32   { return 0 }
func (runSentinel) Emit(*ir.Module, *depmgr.Manager) (bool, error) {
	return false, nil
}

// Run is the sentinel node.Node value that closes the batch currently
// being gathered without waiting for channel-empty quiescence.
var Run node.Node = runSentinel{}

// Run drains the work channel until ctx is done: it gathers nodes into
// batches (stopping a batch at the Run sentinel or at channel-empty
// quiescence) and processes each batch to completion before gathering
// the next.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		batch, err := s.gatherBatch(ctx)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			continue
		}
		if err := s.processBatch(ctx, batch); err != nil {
			s.log.Printf("batch of %d node(s) failed: %v", len(batch), err)
			return err
		}
	}
}

// gatherBatch blocks for the first node, then drains additional nodes
// without blocking until either the Run sentinel appears or the channel
// has nothing immediately ready (quiescence).
func (s *Scheduler) gatherBatch(ctx context.Context) ([]node.Node, error) {
	var batch []node.Node
	select {
	case n, ok := <-s.work:
		if !ok {
			return nil, ctx.Err()
		}
		if n == Run {
			return batch, nil
		}
		batch = append(batch, n)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	for {
		select {
		case n, ok := <-s.work:
			if !ok {
				return batch, nil
			}
			if n == Run {
				return batch, nil
			}
			batch = append(batch, n)
		case <-ctx.Done():
			return batch, ctx.Err()
		default:
			return batch, nil
		}
	}
}

// processBatch threads nodes through one-or-more sub-batches: a fresh
// depmgr.Manager and ir.Module are opened, nodes are Emit'd in FIFO
// order, and any node whose Emit returns true closes the sub-batch
// immediately (flush-compile-invoke-run-reopen, spec.md §4.2 step 2)
// before the remaining nodes in batch continue into a new sub-batch.
func (s *Scheduler) processBatch(ctx context.Context, batch []node.Node) error {
	dm := depmgr.New(s.reg)
	mod := ir.NewModule()
	var edges []depEdge
	if env.Verbose() >= 2 {
		dm.Observe(func(from, to ddpt.Guid) {
			edges = append(edges, depEdge{from: from, to: to})
		})
	}

	flush := func() error {
		if env.Verbose() >= 2 {
			if err := assertAcyclic(edges); err != nil {
				return err
			}
		}
		return s.flush(dm, mod)
	}

	for i, n := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.updateStatus(fmt.Sprintf("emit %d/%d (guid=%d)", i+1, len(batch), n.Guid()))
		dm.SetCurrent(n.Guid())
		forceFlush, err := n.Emit(mod, dm)
		if err != nil {
			return ddpt.Wrap(fmt.Sprintf("emit guid %d", n.Guid()), err)
		}
		if forceFlush {
			if err := flush(); err != nil {
				return err
			}
			if err := n.Run(); err != nil {
				return ddpt.Wrap(fmt.Sprintf("run guid %d", n.Guid()), err)
			}
			dm = depmgr.New(s.reg)
			mod = ir.NewModule()
			edges = nil
			if env.Verbose() >= 2 {
				dm.Observe(func(from, to ddpt.Guid) {
					edges = append(edges, depEdge{from: from, to: to})
				})
			}
		}
	}
	return flush()
}

// depEdge is one guid→guid dependency edge observed via
// depmgr.Manager.Observe, for the DDPT_VERBOSE>=2 diagnostic graph.
type depEdge struct {
	from, to ddpt.Guid
}

// assertAcyclic builds a gonum directed graph of the observed edges and
// asserts it is a DAG — diagnostic only. A batch's dependency graph is
// always acyclic by construction (a node can only depend on guids
// already resolved earlier in the stream), so topo.Sort failing here is
// a programming-error invariant violation, not a routing decision the
// way the teacher's internal/batch used topo.Sort to detect and break
// real build-dependency cycles.
func assertAcyclic(edges []depEdge) error {
	if len(edges) == 0 {
		return nil
	}
	g := simple.NewDirectedGraph()
	ids := make(map[ddpt.Guid]int64)
	idOf := func(guid ddpt.Guid) int64 {
		if id, ok := ids[guid]; ok {
			return id
		}
		id := int64(len(ids))
		ids[guid] = id
		g.AddNode(guidNode{id: id})
		return id
	}
	type pair struct{ from, to int64 }
	seen := make(map[pair]bool)
	for _, e := range edges {
		if e.from == ddpt.NoGuid {
			continue
		}
		fromID, toID := idOf(e.from), idOf(e.to)
		if fromID == toID {
			continue
		}
		p := pair{fromID, toID}
		if seen[p] {
			continue
		}
		seen[p] = true
		g.SetEdge(g.NewEdge(guidNode{id: fromID}, guidNode{id: toID}))
	}
	if _, err := topo.Sort(g); err != nil {
		return &ddpt.ErrInvariantViolation{Msg: xerrors.Errorf("scheduler: batch dependency graph is cyclic: %w", err).Error()}
	}
	return nil
}

// guidNode is the minimal gonum graph.Node wrapper used only by
// assertAcyclic's diagnostic graph.
type guidNode struct {
	id int64
}

func (n guidNode) ID() int64 { return n.id }

// flush finalizes dm against mod, compiles and invokes through the
// Engine, and delivers results — spec.md §4.2 step 3.
func (s *Scheduler) flush(dm *depmgr.Manager, mod *ir.Module) error {
	in, err := dm.StoreInputs()
	if err != nil {
		return err
	}
	if _, err := dm.HandleResult(mod); err != nil {
		return err
	}
	if len(mod.Ops()) == 0 && len(mod.Results()) == 0 {
		return nil // nothing to compile
	}

	ev := trace.Event("flush", 0)
	defer ev.Done()

	cf, err := s.engine.Compile(mod)
	if err != nil {
		return err
	}
	out, err := cf.Invoke(in.Flat)
	if err != nil {
		return err
	}
	dm.Deliver(out)
	return nil
}

// updateStatus prints a single in-place status line, gated on stdout
// being a terminal — the teacher's scheduler.updateStatus does the same
// cursor-restore trick across N worker lines; with exactly one worker
// there is exactly one line.
func (s *Scheduler) updateStatus(line string) {
	if !s.isTerminal {
		return
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if time.Since(s.lastPrint) < 100*time.Millisecond {
		return
	}
	s.lastPrint = time.Now()
	pad := ""
	if diff := 80 - len(line); diff > 0 {
		pad = strings.Repeat(" ", diff)
	}
	fmt.Fprintf(os.Stdout, "\r%s%s", line, pad)
}
