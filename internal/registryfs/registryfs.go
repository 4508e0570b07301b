// Package registryfs is a read-only jacobsa/fuse filesystem exposing one
// directory per live guid in a registry.Registry (SPEC_FULL.md §4.8),
// the same dependency and read-only discipline as the teacher's
// internal/fuse — there it serves package images; here it serves the
// runtime's own live-array bookkeeping, for attaching `cat`/`watch` to a
// running worker without instrumenting it.
package registryfs

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/registry"
)

// never matches the teacher's internal/fuse's own "never expire" sentinel
// for inode/entry cache attributes of virtual (non-package) inodes.
var never time.Time

// fields lists, in fixed order, the per-guid file entries this
// filesystem exposes. Field inode numbers are derived from this order
// (see inode layout below), so the order here must never change without
// also bumping a filesystem format marker — none exists because nothing
// persists across a mount.
var fields = [...]string{"dtype", "rank", "team", "device"}

// Inode layout. Unlike the teacher's internal/fuse (which allocates
// inodes lazily into maps protected by a mutex, because SquashFS inodes
// aren't derivable from a package name alone), every inode here is
// computable in both directions from a guid alone, since ddpt.Guid is
// already a dense, monotonic, globally-unique key — no inode table is
// needed at all:
//
//	root                         = fuseops.RootInodeID (1)
//	dir(guid)                    = 10 + guid*10
//	file(guid, fields[i])        = 10 + guid*10 + (i+1)
const inodeBase = 10
const inodeStride = 10

func dirInode(g ddpt.Guid) fuseops.InodeID {
	return fuseops.InodeID(inodeBase + uint64(g)*inodeStride)
}

func fileInode(g ddpt.Guid, fieldIdx int) fuseops.InodeID {
	return dirInode(g) + fuseops.InodeID(fieldIdx+1)
}

// decodeInode inverts dirInode/fileInode: it reports which guid an
// inode belongs to and, if it names a file rather than the guid's
// directory itself, which field index.
func decodeInode(inode fuseops.InodeID) (g ddpt.Guid, fieldIdx int, isDir bool, ok bool) {
	if inode < inodeBase {
		return 0, 0, false, false
	}
	rel := uint64(inode) - inodeBase
	g = ddpt.Guid(rel / inodeStride)
	off := rel % inodeStride
	if off == 0 {
		return g, 0, true, true
	}
	idx := int(off) - 1
	if idx < 0 || idx >= len(fields) {
		return 0, 0, false, false
	}
	return g, idx, false, true
}

// FS is the fuseutil.FileSystem implementation. It holds no mutable
// state of its own beyond reg: every listing and read is computed fresh
// from the registry's current contents. The Registry's mutex is held only
// inside each Registry.Get or Registry.Snapshot call, not for a whole
// listing or read.
type FS struct {
	fuseutil.NotImplementedFileSystem

	reg *registry.Registry
}

// New returns an FS serving reg's current and future contents.
func New(reg *registry.Registry) *FS {
	return &FS{reg: reg}
}

// Mount mounts an FS over reg at mountpoint, read-only, and returns a
// join function that blocks until the mount is unmounted — the same
// Mount/join shape as the teacher's internal/fuse.Mount.
func Mount(ctx context.Context, reg *registry.Registry, mountpoint string) (join func(context.Context) error, _ error) {
	server := fuseutil.NewFileSystemServer(New(reg))
	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:                 "ddpt-registry",
		ReadOnly:               true,
		EnableNoOpenSupport:    true,
		EnableNoOpendirSupport: true,
	})
	if err != nil {
		return nil, fmt.Errorf("registryfs: fuse.Mount: %w", err)
	}
	return func(context.Context) error {
		return mfs.Join(ctx)
	}, nil
}

func dirAttrs() fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  os.ModeDir | 0555,
		Atime: time.Now(),
		Mtime: time.Now(),
		Ctime: time.Now(),
	}
}

func fileAttrs(size uint64) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  size,
		Nlink: 1,
		Mode:  0444,
		Atime: time.Now(),
		Mtime: time.Now(),
		Ctime: time.Now(),
	}
}

// renderField returns the textual content of guid's named field, or
// false if guid is no longer live (dropped between LookUpInode and
// ReadFile, which is legal: the registry is mutated from the scheduler's
// worker goroutine at any time).
func (fs *FS) renderField(g ddpt.Guid, fieldIdx int) ([]byte, bool) {
	f, err := fs.reg.Get(g)
	if err != nil {
		return nil, false
	}
	switch fields[fieldIdx] {
	case "dtype":
		return []byte(f.DType().String() + "\n"), true
	case "rank":
		return []byte(strconv.Itoa(f.Rank()) + "\n"), true
	case "team":
		return []byte(strconv.FormatUint(uint64(f.Team()), 10) + "\n"), true
	case "device":
		return []byte(string(f.Device()) + "\n"), true
	default:
		return nil, false
	}
}

func (fs *FS) guidLive(g ddpt.Guid) bool {
	_, err := fs.reg.Get(g)
	return err == nil
}

// GetInodeAttributes reports attributes for root, a guid directory, or a
// guid field file.
func (fs *FS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	op.AttributesExpiration = never
	if op.Inode == fuseops.RootInodeID {
		op.Attributes = dirAttrs()
		return nil
	}
	g, fieldIdx, isDir, ok := decodeInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if !fs.guidLive(g) {
		return fuse.ENOENT
	}
	if isDir {
		op.Attributes = dirAttrs()
		return nil
	}
	content, ok := fs.renderField(g, fieldIdx)
	if !ok {
		return fuse.ENOENT
	}
	op.Attributes = fileAttrs(uint64(len(content)))
	return nil
}

// LookUpInode resolves op.Name within op.Parent: a guid string under
// root, or a field name under a guid's directory.
func (fs *FS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	op.Entry.AttributesExpiration = never
	op.Entry.EntryExpiration = never

	if op.Parent == fuseops.RootInodeID {
		g, err := strconv.ParseUint(op.Name, 10, 64)
		if err != nil || !fs.guidLive(ddpt.Guid(g)) {
			return fuse.ENOENT
		}
		op.Entry.Child = dirInode(ddpt.Guid(g))
		op.Entry.Attributes = dirAttrs()
		return nil
	}

	g, _, isDir, ok := decodeInode(op.Parent)
	if !ok || !isDir || !fs.guidLive(g) {
		return fuse.ENOENT
	}
	for i, name := range fields {
		if name != op.Name {
			continue
		}
		content, ok := fs.renderField(g, i)
		if !ok {
			return fuse.ENOENT
		}
		op.Entry.Child = fileInode(g, i)
		op.Entry.Attributes = fileAttrs(uint64(len(content)))
		return nil
	}
	return fuse.ENOENT
}

// OpenDir/OpenFile opt out of the round trip entirely, the same
// performance trick the teacher's internal/fuse applies (mount with
// EnableNoOpendirSupport/EnableNoOpenSupport so the kernel never sends
// these ops).
func (fs *FS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	return fuse.ENOSYS
}

func (fs *FS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	return fuse.ENOSYS
}

// ReadDir lists either the set of live guids (root) or one guid's fixed
// field names.
func (fs *FS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	var entries []fuseutil.Dirent

	if op.Inode == fuseops.RootInodeID {
		for _, f := range fs.reg.Snapshot() {
			entries = append(entries, fuseutil.Dirent{
				Offset: fuseops.DirOffset(len(entries) + 1),
				Inode:  dirInode(f.Guid()),
				Name:   strconv.FormatUint(uint64(f.Guid()), 10),
				Type:   fuseutil.DT_Directory,
			})
		}
	} else {
		g, _, isDir, ok := decodeInode(op.Inode)
		if !ok || !isDir || !fs.guidLive(g) {
			return fuse.ENOENT
		}
		for i, name := range fields {
			entries = append(entries, fuseutil.Dirent{
				Offset: fuseops.DirOffset(len(entries) + 1),
				Inode:  fileInode(g, i),
				Name:   name,
				Type:   fuseutil.DT_File,
			})
		}
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return fuse.EIO
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

// ReadFile serves a guid field's rendered content, sliced at op.Offset.
func (fs *FS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	g, fieldIdx, isDir, ok := decodeInode(op.Inode)
	if !ok || isDir {
		return fuse.EIO
	}
	content, ok := fs.renderField(g, fieldIdx)
	if !ok {
		return fuse.ENOENT
	}
	if int64(op.Offset) >= int64(len(content)) {
		op.BytesRead = 0
		return nil
	}
	op.BytesRead = copy(op.Dst, content[op.Offset:])
	return nil
}

// Destroy is a no-op: FS holds no per-mount resources beyond reg, which
// outlives any single mount.
func (fs *FS) Destroy() {}
