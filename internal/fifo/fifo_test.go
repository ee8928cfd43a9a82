package fifo

import "testing"

func TestFifoWrite(t *testing.T) {
	f := NewFifo(100)
	res := f.Write([]byte{1, 2, 3, 4, 5})
	if res != 5 {
		t.Errorf("written only %v", res)
	}
	if f.writePos != 5 {
		t.Errorf("write position is %v", f.writePos)
	}
	if f.readPos != 0 {
		t.Error()
	}
	res = f.Write(make([]byte, 500))
	if res != 94 {
		t.Errorf("wrote %v", res)
	}
}

func TestFifoReadWriteRoundTrip(t *testing.T) {
	f := NewFifo(16)
	payload := []byte{0x10, 0x0f, 0x62, 0xf1, 0x87, 0x44, 0x56, 0x43}
	if n := f.Write(payload); n != len(payload) {
		t.Fatalf("wrote %d, want %d", n, len(payload))
	}
	if occ := f.GetOccupied(); occ != len(payload) {
		t.Fatalf("occupied %d, want %d", occ, len(payload))
	}
	out := make([]byte, len(payload))
	if n := f.Read(out); n != len(payload) {
		t.Fatalf("read %d, want %d", n, len(payload))
	}
	for i := range payload {
		if out[i] != payload[i] {
			t.Fatalf("byte %d: got %x want %x", i, out[i], payload[i])
		}
	}
}

func TestFifoResetClearsPositions(t *testing.T) {
	f := NewFifo(8)
	f.Write([]byte{1, 2, 3})
	f.Reset()
	if f.GetOccupied() != 0 {
		t.Errorf("occupied after reset: %d", f.GetOccupied())
	}
}
