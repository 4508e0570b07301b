package future

import "unsafe"

// hostPointer returns b's backing array address as a raw uintptr for
// embedding in a memref descriptor's allocated/aligned fields. Only valid
// for the lifetime of b; callers must keep b reachable for as long as the
// native-code side may still dereference the descriptor (the Future that
// owns b stays reachable through the Registry it is registered in).
func hostPointer(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// HostPointer is hostPointer, exported for the jit package's vm backend,
// which needs to embed the address of a Go-allocated output buffer into
// the flat output words exactly the way real compiled code embeds the
// address of a native allocation.
func HostPointer(b []byte) uintptr { return hostPointer(b) }

// BytesFromMemref copies elemBytes*len(m.Sizes)-product bytes out of m's
// Allocated address into freshly allocated, Go-owned storage. Allocated
// must address at least that many live, readable bytes in this process:
// a Go allocation made via HostPointer (vm backend) or the allocation the
// compiled code returned. The node delivery callbacks call it on every
// backend's results.
func BytesFromMemref(m Memref, elemBytes int) []byte {
	n := int64(1)
	for _, s := range m.Sizes {
		n *= s
	}
	if n <= 0 || m.Allocated == 0 {
		return nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(m.Allocated)), int(n)*elemBytes)
	return append([]byte(nil), src...)
}
