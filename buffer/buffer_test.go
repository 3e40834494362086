package buffer

import (
	"bytes"
	"testing"
)

func TestBufferHeaderPadding(t *testing.T) {
	b := New(64)
	if err := b.Init(14); err != nil {
		t.Fatal(err)
	}
	// Init places data at the origin; strip 4 bytes so there is room to
	// prepend a 4-byte header in front of the remaining 10.
	if err := b.RemoveHeader(4); err != nil {
		t.Fatal(err)
	}
	copy(b.Data(), []byte("0123456789"))

	if err := b.AddHeader(4); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 14 {
		t.Fatalf("want len 14 got %d", b.Len())
	}
	copy(b.Data()[:4], []byte("HEAD"))
	if !bytes.Equal(b.Data(), []byte("HEAD0123456789")) {
		t.Fatalf("got %q", b.Data())
	}

	if err := b.RemoveHeader(4); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b.Data(), []byte("0123456789")) {
		t.Fatalf("got %q", b.Data())
	}

	if err := b.AddPadding(3); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 13 {
		t.Fatalf("want len 13 got %d", b.Len())
	}
	if err := b.RemovePadding(3); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 10 {
		t.Fatalf("want len 10 got %d", b.Len())
	}
}

func TestBufferHeaderRoomExhausted(t *testing.T) {
	b := New(20)
	b.Init(20)
	if err := b.AddHeader(1); err == nil {
		t.Fatal("expected error when no header room available")
	}
}

func TestBufferCompactAfterHeaderFailure(t *testing.T) {
	b := New(20)
	b.Init(15)
	copy(b.Data(), []byte("0123456789abcde"))
	// Strip a 10-byte header to land data away from the origin, then
	// fail to prepend more than that, then compact.
	b.RemoveHeader(10) // data is now "abcde" and off is 10.
	if b.HeadRoom() != 10 {
		t.Fatalf("want headroom 10 got %d", b.HeadRoom())
	}
	if err := b.AddHeader(11); err == nil {
		t.Fatal("expected insufficient header room")
	}
	b.Compact()
	if b.HeadRoom() != 0 {
		t.Fatalf("want headroom 0 after compact got %d", b.HeadRoom())
	}
	if !bytes.Equal(b.Data(), []byte("abcde")) {
		t.Fatalf("compact corrupted data: %q", b.Data())
	}
}

func TestBufferAppendCompacts(t *testing.T) {
	b := New(10)
	b.Init(4)
	b.RemoveHeader(4) // off 4, len 0: only 6 bytes of tail room before compaction.
	n := b.Append([]byte("0123456789"))
	if n != 10 {
		t.Fatalf("want 10 got %d", n)
	}
	n = b.Append([]byte("overflow"))
	if n != 0 {
		t.Fatalf("want 0 appended on full buffer got %d", n)
	}
}

func TestBufferInitTooLarge(t *testing.T) {
	b := New(4)
	if err := b.Init(5); err == nil {
		t.Fatal("expected error initializing beyond capacity")
	}
}
