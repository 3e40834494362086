package tcp

import "testing"

func TestFrameFieldsRoundTrip(t *testing.T) {
	buf := make([]byte, sizeHeader+3)
	f, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	f.SetSourcePort(1234)
	f.SetDestinationPort(80)
	f.SetSeq(1000)
	f.SetAck(2000)
	f.SetOffsetAndFlags(5, FlagSYN|FlagACK)
	f.SetWindowSize(5000)
	copy(f.Payload(len(buf)), []byte("abc"))

	if f.SourcePort() != 1234 || f.DestinationPort() != 80 {
		t.Fatal("port mismatch")
	}
	if f.Seq() != 1000 || f.Ack() != 2000 {
		t.Fatal("seq/ack mismatch")
	}
	offset, flags := f.OffsetAndFlags()
	if offset != 5 || flags != (FlagSYN|FlagACK) {
		t.Fatalf("offset/flags mismatch: %d %v", offset, flags)
	}
	if f.HeaderLength() != sizeHeader {
		t.Fatal("header length mismatch")
	}
	if f.WindowSize() != 5000 {
		t.Fatal("window mismatch")
	}
	if string(f.Payload(len(buf))) != "abc" {
		t.Fatal("payload mismatch")
	}
}

func TestCalculateChecksumSelfVerifies(t *testing.T) {
	buf := make([]byte, sizeHeader+4)
	f, _ := NewFrame(buf)
	f.SetSourcePort(1)
	f.SetDestinationPort(2)
	f.SetOffsetAndFlags(5, FlagACK)
	copy(f.Payload(len(buf)), []byte("data"))
	f.SetCRC(0)

	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	f.SetCRC(CalculateChecksum(src, dst, len(buf), buf))

	want := f.CRC()
	f.SetCRC(0)
	got := CalculateChecksum(src, dst, len(buf), buf)
	if got != want {
		t.Fatalf("checksum does not self-verify: want %x got %x", want, got)
	}
}

func TestNewFrameTooShort(t *testing.T) {
	if _, err := NewFrame(make([]byte, sizeHeader-1)); err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}

func TestParseMSS(t *testing.T) {
	// kind=2 (MSS), length=4, value=1460, padded with a NOP and end-of-options.
	opts := []byte{1, 2, 4, 0x05, 0xb4, 0}
	mss, ok := ParseMSS(opts)
	if !ok || mss != 1460 {
		t.Fatalf("want mss=1460 ok=true, got mss=%d ok=%v", mss, ok)
	}
}

func TestParseMSSAbsent(t *testing.T) {
	if _, ok := ParseMSS(nil); ok {
		t.Fatal("expected no MSS option in empty options")
	}
	if _, ok := ParseMSS([]byte{1, 1, 1}); ok {
		t.Fatal("expected no MSS option among NOPs")
	}
}

// FuzzParseMSS checks the option scanner stays within bounds on
// arbitrary, attacker-shaped option bytes.
func FuzzParseMSS(f *testing.F) {
	f.Add([]byte{2, 4, 0x05, 0xb4})
	f.Add([]byte{1, 1, 1, 0})
	f.Add([]byte{2, 0})
	f.Add([]byte{3, 255, 1})
	f.Fuzz(func(t *testing.T, opts []byte) {
		ParseMSS(opts) // must not panic or read out of bounds
	})
}

func TestFrameOptionsFollowDataOffset(t *testing.T) {
	buf := make([]byte, sizeHeader+4+3)
	f, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	// data offset 6 (24 bytes): 4 bytes of options, then 3 bytes of payload.
	f.SetOffsetAndFlags(6, FlagSYN)
	copy(f.Options(), []byte{2, 4, 0x05, 0xb4})
	copy(f.Payload(len(buf)), []byte("abc"))

	mss, ok := ParseMSS(f.Options())
	if !ok || mss != 1460 {
		t.Fatalf("want mss=1460 ok=true, got mss=%d ok=%v", mss, ok)
	}
	if string(f.Payload(len(buf))) != "abc" {
		t.Fatal("payload mismatch with options present")
	}
}
