package pb

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/golang/protobuf/proto"
	"github.com/google/renameio"
	"github.com/klauspost/pgzip"
	"github.com/protocolbuffers/txtpbfmt/ast"
	"github.com/protocolbuffers/txtpbfmt/parser"
)

var manifestBufPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// ReadManifestFile mirrors ReadBuildFile exactly: buffer-pooled read,
// textproto unmarshal.
func ReadManifestFile(path string) (*BatchManifest, error) {
	var m BatchManifest
	b := manifestBufPool.Get().(*bytes.Buffer)
	b.Reset()
	defer manifestBufPool.Put(b)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := io.Copy(b, f); err != nil {
		return nil, err
	}
	if err := proto.UnmarshalText(b.String(), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteManifestFile marshals m to textproto and writes it atomically to
// path via renameio, the same write-then-rename convention the teacher's
// build output staging uses to avoid partial files being observed by a
// concurrent reader.
func WriteManifestFile(path string, m *BatchManifest) error {
	text := proto.MarshalTextString(m)
	return renameio.WriteFile(path, []byte(text), 0o644)
}

// CanonicalText parses text as a textproto, sorts its fields by name at
// every nesting level, and re-renders it through txtpbfmt in its one
// canonical layout. Two texts carrying the same fields in a different
// order or with different whitespace therefore produce byte-identical
// output. The sort is stable, so entries of one repeated field keep
// their relative order.
func CanonicalText(text string) (string, error) {
	nodes, err := parser.Parse([]byte(text))
	if err != nil {
		return "", fmt.Errorf("pb: canonicalize manifest: %w", err)
	}
	var sortByName func([]*ast.Node)
	sortByName = func(ns []*ast.Node) {
		sort.SliceStable(ns, func(i, j int) bool { return ns[i].Name < ns[j].Name })
		for _, n := range ns {
			sortByName(n.Children)
		}
	}
	sortByName(nodes)
	return string(parser.Pretty(nodes, 0)), nil
}

// DumpManifest gzip-writes m's canonical textproto form to
// <dir>/<cacheKey>.textproto.gz, for the DDPT_VERBOSE>=2 diagnostic dump
// (spec.md's "module text" inspection point). Errors are the caller's to
// decide whether to treat as fatal; a failed diagnostic dump should never
// abort a batch.
func DumpManifest(dir, cacheKey string, m *BatchManifest) error {
	canon, err := CanonicalText(proto.MarshalTextString(m))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, cacheKey+".textproto.gz")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gw := pgzip.NewWriter(f)
	defer gw.Close()
	if _, err := gw.Write([]byte(canon)); err != nil {
		return err
	}
	return gw.Close()
}
