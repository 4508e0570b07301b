package future

import (
	"testing"

	"github.com/ddpt-project/ddpt/dtype"
)

func TestNewHostFutureZeroFilledAndSized(t *testing.T) {
	f := NewHostFuture(dtype.FLOAT32, []int64{2, 3})
	if got, want := len(f.Bytes()), 2*3*4; got != want {
		t.Fatalf("len(Bytes()) = %d, want %d", got, want)
	}
	for _, b := range f.Bytes() {
		if b != 0 {
			t.Fatal("expected zero-filled buffer")
		}
	}
	if got, want := f.Strides(), []int64{3, 1}; !int64SliceEqual(got, want) {
		t.Errorf("Strides() = %v, want %v", got, want)
	}
}

func TestAddToArgsRoundTrip(t *testing.T) {
	f := NewHostFuture(dtype.INT64, []int64{4})
	words, err := f.AddToArgs(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(words), MemrefWords(1); got != want {
		t.Fatalf("len(words) = %d, want %d", got, want)
	}
	m, n := DecodeMemref(words, 1)
	if n != len(words) {
		t.Errorf("DecodeMemref consumed %d words, want %d", n, len(words))
	}
	if got, want := m.Sizes, f.Shape(); !int64SliceEqual(got, want) {
		t.Errorf("decoded Sizes = %v, want %v", got, want)
	}
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
