package pb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/pgzip"
)

func TestManifestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.textproto")

	want := &BatchManifest{
		Pipeline: "builtin-cpu-pipeline",
		CacheKey: "deadbeef",
		ModuleText: "func @jit_main() { }",
		Nodes: []*NodeDescriptor{
			{Guid: 1, FactoryId: 0, Dtype: 7, Rank: 1},
			{Guid: 2, FactoryId: 2, Dtype: 7, Rank: 1},
		},
	}

	if err := WriteManifestFile(path, want); err != nil {
		t.Fatalf("WriteManifestFile: %v", err)
	}
	got, err := ReadManifestFile(path)
	if err != nil {
		t.Fatalf("ReadManifestFile: %v", err)
	}
	if diff := cmp.Diff(want.GetPipeline(), got.GetPipeline()); diff != "" {
		t.Errorf("Pipeline mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.GetCacheKey(), got.GetCacheKey()); diff != "" {
		t.Errorf("CacheKey mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.GetModuleText(), got.GetModuleText()); diff != "" {
		t.Errorf("ModuleText mismatch (-want +got):\n%s", diff)
	}
	if len(got.GetNodes()) != len(want.GetNodes()) {
		t.Fatalf("got %d nodes, want %d", len(got.GetNodes()), len(want.GetNodes()))
	}
	for i := range want.GetNodes() {
		if got.GetNodes()[i].GetGuid() != want.GetNodes()[i].GetGuid() {
			t.Errorf("node %d guid = %d, want %d", i, got.GetNodes()[i].GetGuid(), want.GetNodes()[i].GetGuid())
		}
	}
}

func TestCanonicalTextIgnoresFieldOrder(t *testing.T) {
	a := `pipeline: "p" cache_key: "k"`
	b := `cache_key: "k" pipeline: "p"`

	ca, err := CanonicalText(a)
	if err != nil {
		t.Fatalf("CanonicalText(a): %v", err)
	}
	cb, err := CanonicalText(b)
	if err != nil {
		t.Fatalf("CanonicalText(b): %v", err)
	}
	if ca != cb {
		t.Errorf("CanonicalText is not order-independent:\na: %q\nb: %q", ca, cb)
	}
}

func TestDumpManifestWritesGzippedTextproto(t *testing.T) {
	dir := t.TempDir()
	m := &BatchManifest{Pipeline: "p", CacheKey: "abc123", ModuleText: "func @jit_main() { }"}

	if err := DumpManifest(dir, "abc123", m); err != nil {
		t.Fatalf("DumpManifest: %v", err)
	}

	path := filepath.Join(dir, "abc123.textproto.gz")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening dump: %v", err)
	}
	defer f.Close()
	gr, err := pgzip.NewReader(f)
	if err != nil {
		t.Fatalf("DumpManifest did not produce valid gzip output: %v", err)
	}
	defer gr.Close()
}
