package registryfs

import (
	"context"
	"strconv"
	"testing"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/dtype"
	"github.com/ddpt-project/ddpt/future"
	"github.com/ddpt-project/ddpt/registry"
)

func TestInodeRoundTrip(t *testing.T) {
	for _, g := range []ddpt.Guid{0, 1, 2, 41, 1000} {
		di := dirInode(g)
		gotG, _, isDir, ok := decodeInode(di)
		if !ok || !isDir || gotG != g {
			t.Fatalf("decodeInode(dirInode(%d)) = (%d, isDir=%v, ok=%v)", g, gotG, isDir, ok)
		}
		for i := range fields {
			fi := fileInode(g, i)
			gotG, gotIdx, isDir, ok := decodeInode(fi)
			if !ok || isDir || gotG != g || gotIdx != i {
				t.Fatalf("decodeInode(fileInode(%d,%d)) = (%d, %d, isDir=%v, ok=%v)", g, i, gotG, gotIdx, isDir, ok)
			}
		}
	}
}

func TestDecodeInodeRejectsGarbage(t *testing.T) {
	if _, _, _, ok := decodeInode(0); ok {
		t.Errorf("decodeInode(0) reported ok")
	}
	if _, _, _, ok := decodeInode(fuseops.RootInodeID); ok {
		t.Errorf("decodeInode(RootInodeID) reported ok")
	}
}

func TestLookUpAndReadFields(t *testing.T) {
	reg := registry.New()
	f := future.NewHostFuture(dtype.INT64, []int64{3})
	g := reg.Put(f)

	fs := New(reg)
	ctx := context.Background()

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "nonexistent"}
	if err := fs.LookUpInode(ctx, lookup); err != fuse.ENOENT {
		t.Fatalf("LookUpInode(nonexistent guid) = %v, want ENOENT", err)
	}

	lookup = &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: guidName(g)}
	if err := fs.LookUpInode(ctx, lookup); err != nil {
		t.Fatalf("LookUpInode(%d) = %v", g, err)
	}
	dirIno := lookup.Entry.Child

	for _, name := range fields {
		sub := &fuseops.LookUpInodeOp{Parent: dirIno, Name: name}
		if err := fs.LookUpInode(ctx, sub); err != nil {
			t.Fatalf("LookUpInode(%s) = %v", name, err)
		}
	}

	readRank := &fuseops.ReadFileOp{Inode: fileInode(g, fieldIndex("rank")), Dst: make([]byte, 64)}
	if err := fs.ReadFile(ctx, readRank); err != nil {
		t.Fatalf("ReadFile(rank) = %v", err)
	}
	if got := string(readRank.Dst[:readRank.BytesRead]); got != "1\n" {
		t.Errorf("rank field = %q, want \"1\\n\"", got)
	}
}

func TestReadDirListsOnlyLiveGuids(t *testing.T) {
	reg := registry.New()
	f := future.NewHostFuture(dtype.FLOAT32, []int64{2, 2})
	g := reg.Put(f)
	fs := New(reg)

	op := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Dst: make([]byte, 4096)}
	if err := fs.ReadDir(context.Background(), op); err != nil {
		t.Fatalf("ReadDir(root) = %v", err)
	}
	if op.BytesRead == 0 {
		t.Fatal("ReadDir(root) wrote no entries for a live guid")
	}

	reg.Del(g)
	op2 := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Dst: make([]byte, 4096)}
	if err := fs.ReadDir(context.Background(), op2); err != nil {
		t.Fatalf("ReadDir(root) after Del = %v", err)
	}
	if op2.BytesRead != 0 {
		t.Errorf("ReadDir(root) after Del wrote %d bytes, want 0", op2.BytesRead)
	}
}

func guidName(g ddpt.Guid) string {
	return strconv.FormatUint(uint64(g), 10)
}

func fieldIndex(name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}
