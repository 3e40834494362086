package arp

import "testing"

func TestBuildRequestValidates(t *testing.T) {
	var buf [sizeHeader]byte
	f, err := BuildRequest(buf[:], [6]byte{1, 2, 3, 4, 5, 6}, [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.ValidateSize(); err != nil {
		t.Fatal(err)
	}
	if f.Operation() != OpRequest {
		t.Fatalf("want request got %v", f.Operation())
	}
}

func TestValidateSizeRejectsBadHardware(t *testing.T) {
	buf := make([]byte, sizeHeader)
	f, _ := NewFrame(buf)
	// hardware type 0, not Ethernet(1).
	if err := f.ValidateSize(); err == nil {
		t.Fatal("expected validation failure for zeroed hardware/protocol fields")
	}
}
