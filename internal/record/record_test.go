package record

import "testing"

func roundTrip(t *testing.T, values []Value) []Value {
	t.Helper()
	buf := Encode(values)
	got, n, err := Decode(buf, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("decode consumed %d of %d bytes", n, len(buf))
	}
	if len(got) != len(values) {
		t.Fatalf("got %d values, want %d", len(got), len(values))
	}
	for i := range values {
		if !got[i].Equal(values[i]) {
			t.Fatalf("column %d: got %+v, want %+v", i, got[i], values[i])
		}
	}
	return got
}

func TestRecordRoundTripBasicTypes(t *testing.T) {
	roundTrip(t, []Value{
		Null(),
		Int(0),
		Int(1),
		Int(42),
		Int(1 << 40),
		Float64(3.14159),
		Float64(-2.5),
		Text(""),
		Text("hello, world"),
		Blob([]byte{0x00, 0x01, 0xff}),
	})
}

func TestRecordRoundTripNegativeIntegerLastColumn(t *testing.T) {
	for _, v := range []int64{-1, -42, -128} {
		roundTrip(t, []Value{Text("name"), Int(v)})
	}
}

func TestRecordRoundTripSoleNegativeInteger(t *testing.T) {
	roundTrip(t, []Value{Int(-1)})
}

func TestRecordRoundTripBool(t *testing.T) {
	got := roundTrip(t, []Value{Bool(true), Bool(false)})
	if got[0].Type != TypeInteger || got[0].Int != 1 {
		t.Fatalf("true should encode as Integer 1, got %+v", got[0])
	}
	if got[1].Type != TypeInteger || got[1].Int != 0 {
		t.Fatalf("false should encode as Integer 0, got %+v", got[1])
	}
}

func TestRecordDecodeInvalidTypeCode(t *testing.T) {
	// Build a header claiming one column with type code 9 (invalid).
	buf := []byte{3, 1, 9}
	if _, _, err := Decode(buf, 0); err == nil {
		t.Fatal("expected error for invalid type code")
	}
}

func TestRecordDecodeTruncated(t *testing.T) {
	buf := Encode([]Value{Text("hello")})
	if _, _, err := Decode(buf[:len(buf)-2], 0); err == nil {
		t.Fatal("expected error for truncated record")
	}
}
