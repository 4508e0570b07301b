package farm

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/ddpt-project/ddpt/internal/env"
	"github.com/ddpt-project/ddpt/pb/jitfarm"
)

// chunkSize bounds one CompileChunk's payload so a large GPU SPIR-V blob
// never has to fit in a single gRPC message.
const chunkSize = 1 << 20

// Server implements jitfarm.JitFarmServer by shelling out to this host's
// locally configured mlir-opt/mlir-cpu-runner-equivalent toolchain — the
// same external-toolchain-invocation idiom jit.execBackend uses, just
// running on someone else's behalf. Mirrors the teacher's own
// builder.go, which re-invokes the distri CLI as a subprocess rather
// than importing cmd/distri/build.go's internals directly.
type Server struct{}

// NewServer returns a ready-to-register Server.
func NewServer() *Server { return &Server{} }

// Serve listens on addr and blocks serving farm RPCs, registering gRPC
// reflection so grpcurl works against a running farm node during
// development — the same registration the teacher's builder verb makes.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := grpc.NewServer()
	jitfarm.RegisterJitFarmServer(srv, NewServer())
	reflection.Register(srv)
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	return srv.Serve(ln)
}

// Compile runs req's module text through this host's toolchain and
// streams the resulting shared object back in chunkSize pieces.
func (s *Server) Compile(req *jitfarm.ModuleRequest, stream jitfarm.JitFarm_CompileServer) error {
	optTool := env.OptTool()
	llcTool := env.LLCTool()

	lowered, err := runTool(stream.Context(), optTool, []string{"--pass-pipeline=" + req.GetPipeline()}, req.GetModuleText())
	if err != nil {
		return status.Errorf(codes.Internal, "pass pipeline failed: %v", err)
	}

	soPath := filepath.Join(os.TempDir(), fmt.Sprintf("ddpt-farm-%s.so", req.GetCacheKey()))
	libs := []string{env.IdtrSO()}
	if req.GetGpu() {
		libs = append(libs, env.GpuxSO())
	}
	if _, err := runTool(stream.Context(), llcTool, []string{"--shared-libs=" + joinComma(libs), "-o", soPath}, lowered); err != nil {
		return status.Errorf(codes.Internal, "compile to shared object failed: %v", err)
	}
	defer os.Remove(soPath)

	data, err := os.ReadFile(soPath)
	if err != nil {
		return status.Errorf(codes.Internal, "read compiled object: %v", err)
	}

	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := stream.Send(&jitfarm.CompileChunk{Data: data[off:end]}); err != nil {
			return err
		}
	}
	return stream.Send(&jitfarm.CompileChunk{Eof: true})
}

func runTool(ctx context.Context, tool string, args []string, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdin = bytes.NewBufferString(stdin)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", tool, err, stderr.String())
	}
	return out.String(), nil
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
