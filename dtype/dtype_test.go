package dtype

import "testing"

func TestSignlessIgnoresSignedness(t *testing.T) {
	pairs := [][2]DType{
		{INT8, UINT8},
		{INT16, UINT16},
		{INT32, UINT32},
		{INT64, UINT64},
	}
	for _, p := range pairs {
		signed, unsigned := p[0], p[1]
		sIR, err := signed.IRType()
		if err != nil {
			t.Fatalf("%v: %v", signed, err)
		}
		uIR, err := unsigned.IRType()
		if err != nil {
			t.Fatalf("%v: %v", unsigned, err)
		}
		if sIR != uIR {
			t.Errorf("%v and %v should lower to the same signless type, got %q and %q", signed, unsigned, sIR, uIR)
		}
		if !unsigned.Unsigned() || signed.Unsigned() {
			t.Errorf("Unsigned() tag bookkeeping wrong for %v/%v", signed, unsigned)
		}
	}
}

func TestIRTypeUnknownDtype(t *testing.T) {
	var bad DType = 99
	if _, err := bad.IRType(); err == nil {
		t.Fatal("expected error for out-of-range dtype")
	}
}

func TestBoolIsSingleBit(t *testing.T) {
	ir, err := BOOL.IRType()
	if err != nil {
		t.Fatal(err)
	}
	if ir != "i1" {
		t.Errorf("BOOL.IRType() = %q, want i1", ir)
	}
}
