package ethernet

import "testing"

func TestFrameFields(t *testing.T) {
	buf := make([]byte, 20)
	f, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	*f.DestinationHardwareAddr() = BroadcastAddr()
	if !f.IsBroadcast() {
		t.Fatal("expected broadcast destination")
	}
	*f.SourceHardwareAddr() = [6]byte{1, 2, 3, 4, 5, 6}
	f.SetEtherType(TypeARP)
	if f.EtherTypeOrSize() != TypeARP {
		t.Fatalf("want ARP got %v", f.EtherTypeOrSize())
	}
	if len(f.Payload()) != 6 {
		t.Fatalf("want 6 byte payload got %d", len(f.Payload()))
	}
}

func TestNewFrameTooShort(t *testing.T) {
	if _, err := NewFrame(make([]byte, 10)); err == nil {
		t.Fatal("expected error on short buffer")
	}
}
