// Package farm is the optional remote compile path (SPEC_FULL.md §4.6):
// an alternate way to run the pass-pipeline/lowering step a
// jit.Engine.Compile call would otherwise run locally, on a farm node
// that may carry a toolchain this process lacks (most commonly, a GPU
// backend). Client and Server mirror the teacher's cmd/distri/builder.go
// client/server pair one level down the stack — there, a remote node
// builds a whole distri package; here, a remote node lowers and compiles
// one module. Scheduling, ordering and delivery semantics never touch
// this package: a batch that never sets DDPT_FARM_ADDR never dials out.
package farm

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ddpt-project/ddpt/pb/jitfarm"
)

// Client dials a single farm node and runs Compile calls against it.
type Client struct {
	conn *grpc.ClientConn
	rpc  jitfarm.JitFarmClient
}

// Dial connects to the farm node at addr, blocking until the connection
// is ready — the same grpc.WithBlock()+grpc.WithInsecure() dial the
// teacher uses for every one of its own unauthenticated local/LAN gRPC
// clients (cmd/distri/build.go, gc.go, fusectl.go, install.go).
func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, err := grpc.DialContext(ctx, addr, grpc.WithInsecure(), grpc.WithBlock())
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, rpc: jitfarm.NewJitFarmClient(conn)}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Compile uploads moduleText and pipeline (plus cacheKey, used by the
// server only to name its scratch file — the farm node never consults
// our cache) and returns the compiled shared object's bytes, reassembled
// from the server's chunked response.
func (c *Client) Compile(ctx context.Context, moduleText, pipeline string, gpu bool, cacheKey string) ([]byte, error) {
	stream, err := c.rpc.Compile(ctx, &jitfarm.ModuleRequest{
		ModuleText: moduleText,
		Pipeline:   pipeline,
		Gpu:        gpu,
		CacheKey:   cacheKey,
	})
	if err != nil {
		return nil, err
	}
	var out []byte
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if chunk.GetEof() {
			break
		}
		out = append(out, chunk.GetData()...)
	}
	return out, nil
}

// Pool dials a set of farm nodes and races the same Compile call across
// all of them, returning whichever node answers first — the
// worker-pool idiom internal/batch.go's scheduler.run uses for its
// eg.Go-per-worker fan-out (there: spread distinct packages across N
// build workers; here: send the same module to N farm nodes and use
// whichever has it ready first, e.g. because only some nodes carry a GPU
// toolchain or one node is simply faster). DDPT_FARM_ADDR holding a
// comma-separated address list is what populates a Pool instead of a
// single Client.
type Pool struct {
	clients []*Client
}

// DialAll connects to every address in addrs, in order, tearing down any
// connections already opened if a later dial fails.
func DialAll(ctx context.Context, addrs []string) (*Pool, error) {
	clients := make([]*Client, 0, len(addrs))
	for _, addr := range addrs {
		c, err := Dial(ctx, addr)
		if err != nil {
			for _, prev := range clients {
				prev.Close()
			}
			return nil, err
		}
		clients = append(clients, c)
	}
	return &Pool{clients: clients}, nil
}

// Close tears down every pooled connection, returning the first error
// encountered (if any) after attempting all of them.
func (p *Pool) Close() error {
	var first error
	for _, c := range p.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Compile dispatches to the single pooled client directly when there is
// only one, and otherwise fans the same request out to every node via
// errgroup, cancelling the rest as soon as one succeeds.
func (p *Pool) Compile(ctx context.Context, moduleText, pipeline string, gpu bool, cacheKey string) ([]byte, error) {
	if len(p.clients) == 1 {
		return p.clients[0].Compile(ctx, moduleText, pipeline, gpu, cacheKey)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		eg     errgroup.Group
		mu     sync.Mutex
		winner []byte
		won    bool
	)
	for _, c := range p.clients {
		c := c
		eg.Go(func() error {
			data, err := c.Compile(ctx, moduleText, pipeline, gpu, cacheKey)
			if err != nil {
				return err
			}
			mu.Lock()
			if !won {
				won = true
				winner = data
				cancel()
			}
			mu.Unlock()
			return nil
		})
	}
	err := eg.Wait()
	if won {
		return winner, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("farm: pool of %d nodes returned no result", len(p.clients))
}
