package future

// MemrefWords returns the flat word count of a standard memref descriptor
// of the given rank: {allocated, aligned, offset, sizes[rank], strides[rank]}.
func MemrefWords(rank int) int {
	return 3 + 2*rank
}

// PtensorWords returns the flat word count a compiled function's return
// value occupies for an array of the given rank, distributed or not.
//
// Rank-0 and non-distributed arrays return a single memref. A distributed
// array of rank > 0 returns a triple of memrefs (left halo, local data,
// right halo) followed by a 1-D uint64 memref of local offsets.
func PtensorWords(rank int, distributed bool) int {
	if rank == 0 || !distributed {
		return MemrefWords(rank)
	}
	return 3*MemrefWords(rank) + MemrefWords(1)
}

// Memref is a decoded descriptor: the flat pointer words plus the shape
// metadata extracted from them.
type Memref struct {
	Allocated uintptr
	Aligned   uintptr
	Offset    int64
	Sizes     []int64
	Strides   []int64
}

// DecodeMemref consumes MemrefWords(rank) words from words[0:] and returns
// the decoded descriptor plus the number of words consumed.
func DecodeMemref(words []uint64, rank int) (Memref, int) {
	n := MemrefWords(rank)
	m := Memref{
		Allocated: uintptr(words[0]),
		Aligned:   uintptr(words[1]),
		Offset:    int64(words[2]),
	}
	if rank > 0 {
		m.Sizes = make([]int64, rank)
		m.Strides = make([]int64, rank)
		for i := 0; i < rank; i++ {
			m.Sizes[i] = int64(words[3+i])
			m.Strides[i] = int64(words[3+rank+i])
		}
	}
	return m, n
}

// EncodeMemref appends m's words to dst, assuming len(m.Sizes) == rank.
func EncodeMemref(dst []uint64, m Memref) []uint64 {
	dst = append(dst, uint64(m.Allocated), uint64(m.Aligned), uint64(m.Offset))
	for _, s := range m.Sizes {
		dst = append(dst, uint64(s))
	}
	for _, s := range m.Strides {
		dst = append(dst, uint64(s))
	}
	return dst
}

// PTensor is the decoded result of one return value: either a single
// memref (local or rank-0 arrays) or a halo triple plus local offsets
// (distributed arrays of rank > 0).
type PTensor struct {
	Data         Memref
	LeftHalo     *Memref
	RightHalo    *Memref
	LocalOffsets *Memref
}

// DecodePTensor consumes PtensorWords(rank, distributed) words from words
// and returns the decoded result plus the number of words consumed.
func DecodePTensor(words []uint64, rank int, distributed bool) (PTensor, int) {
	if rank == 0 || !distributed {
		data, n := DecodeMemref(words, rank)
		return PTensor{Data: data}, n
	}
	left, n1 := DecodeMemref(words, rank)
	local, n2 := DecodeMemref(words[n1:], rank)
	right, n3 := DecodeMemref(words[n1+n2:], rank)
	offsets, n4 := DecodeMemref(words[n1+n2+n3:], 1)
	return PTensor{
		Data:         local,
		LeftHalo:     &left,
		RightHalo:    &right,
		LocalOffsets: &offsets,
	}, n1 + n2 + n3 + n4
}
