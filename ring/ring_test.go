package ring

import "testing"

// Repeated 8-byte transfers through a size-16 ring should round-trip
// byte-for-byte, the second one filling the ring up to its end.
func TestRoundTripS1(t *testing.T) {
	b, err := NewBuffer(16)
	if err != nil {
		t.Fatal(err)
	}

	src1 := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	if n := b.Write(src1); n != 8 {
		t.Fatalf("write 1: got n=%d, want 8", n)
	}

	dst := make([]byte, 8)
	if n := b.Read(dst); n != 8 {
		t.Fatalf("read 1: got n=%d, want 8", n)
	}
	for i, v := range dst {
		if v != byte(i) {
			t.Fatalf("read 1 byte %d = %d, want %d", i, v, i)
		}
	}
	if _, avail := b.GetReadIndex(); avail != 0 {
		t.Fatalf("avail after read 1 = %d, want 0", avail)
	}

	src2 := []byte{8, 9, 10, 11, 12, 13, 14, 15}
	if n := b.Write(src2); n != 8 {
		t.Fatalf("write 2: got n=%d, want 8", n)
	}
	if n := b.Read(dst); n != 8 {
		t.Fatalf("read 2: got n=%d, want 8", n)
	}
	for i, v := range dst {
		want := byte(8 + i)
		if v != want {
			t.Fatalf("read 2 byte %d = %d, want %d", i, v, want)
		}
	}
	if _, avail := b.GetReadIndex(); avail != 0 {
		t.Fatalf("avail after read 2 = %d, want 0", avail)
	}
}

// Boundary behaviour: repeated 5-byte transfers wrap correctly.
func TestWrapAround5ByteTransfers(t *testing.T) {
	b, err := NewBuffer(16)
	if err != nil {
		t.Fatal(err)
	}

	var written []byte
	var read []byte
	dst := make([]byte, 5)

	for i := 0; i < 4; i++ {
		chunk := []byte{byte(i*5 + 0), byte(i*5 + 1), byte(i*5 + 2), byte(i*5 + 3), byte(i*5 + 4)}
		written = append(written, chunk...)

		if n := b.Write(chunk); n != 5 {
			t.Fatalf("transfer %d: write got n=%d, want 5", i, n)
		}
		if n := b.Read(dst); n != 5 {
			t.Fatalf("transfer %d: read got n=%d, want 5", i, n)
		}
		read = append(read, dst...)
	}

	for i := range written {
		if written[i] != read[i] {
			t.Fatalf("byte %d: wrote %d, read %d", i, written[i], read[i])
		}
	}
	if read[len(read)-1] != 19 {
		t.Fatalf("last byte read = %d, want 19 (4th transfer ends at source byte 19)", read[len(read)-1])
	}
}

func TestRestInvariantFilledPlusFreeEqualsSize(t *testing.T) {
	b, err := NewBuffer(32)
	if err != nil {
		t.Fatal(err)
	}

	b.Write(make([]byte, 20))
	dst := make([]byte, 7)
	b.Read(dst)

	_, filled := b.GetWriteIndex()
	free := int32(b.Size()) - filled
	if filled+free != int32(b.Size()) {
		t.Fatalf("filled(%d) + free(%d) != size(%d)", filled, free, b.Size())
	}
}

func TestNewBufferRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := NewBuffer(0); err == nil {
		t.Fatal("want error for size 0")
	}
	if _, err := NewBuffer(17); err == nil {
		t.Fatal("want error for non power of two size")
	}
}

func TestWriteRejectsWhenFull(t *testing.T) {
	b, err := NewBuffer(8)
	if err != nil {
		t.Fatal(err)
	}
	if n := b.Write(make([]byte, 8)); n != 8 {
		t.Fatalf("fill: got n=%d, want 8", n)
	}
	if n := b.Write([]byte{1}); n != 0 {
		t.Fatalf("overfill: got n=%d, want 0 (ring is full)", n)
	}
}

func TestReadReturnsZeroWhenEmpty(t *testing.T) {
	b, err := NewBuffer(8)
	if err != nil {
		t.Fatal(err)
	}
	if n := b.Read(make([]byte, 4)); n != 0 {
		t.Fatalf("got n=%d, want 0 on empty ring", n)
	}
}
