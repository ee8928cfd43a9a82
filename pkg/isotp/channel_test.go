package isotp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []RawFrame
	onSend func(RawFrame)
}

func (s *recordingSender) Send(f RawFrame) error {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	if s.onSend != nil {
		s.onSend(f)
	}
	return nil
}

func (s *recordingSender) last() RawFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[len(s.frames)-1]
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func collectEvents() (Listener, func() []Event) {
	var mu sync.Mutex
	var events []Event
	return func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		}, func() []Event {
			mu.Lock()
			defer mu.Unlock()
			return append([]Event(nil), events...)
		}
}

func TestChannelReceiveSingleFrame(t *testing.T) {
	listener, events := collectEvents()
	ch := NewChannel(Address{TxID: 0x7E0, RxID: 0x7E8}, Variant2004, ClassicMTU, &recordingSender{}, listener)

	ch.HandleReceived(0x7E8, []byte{0x02, 0x10, 0x01, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})

	got := events()
	require.Len(t, got, 1)
	assert.Equal(t, EventDataReceived, got[0].Kind)
	assert.Equal(t, []byte{0x10, 0x01}, got[0].Data)
}

func TestChannelReceiveMultiFrame(t *testing.T) {
	listener, events := collectEvents()
	sender := &recordingSender{}
	ch := NewChannel(Address{TxID: 0x7E0, RxID: 0x7E8}, Variant2004, ClassicMTU, sender, listener)

	ch.HandleReceived(0x7E8, []byte{0x10, 0x0F, 0x62, 0xF1, 0x87, 0x44, 0x56, 0x43})
	require.Equal(t, 1, sender.count())
	assert.Equal(t, RawFrame{ID: 0x7E0, Data: []byte{0x30, 0x00, 0x0A, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}}, sender.last())

	ch.HandleReceived(0x7E8, []byte{0x21, 0x37, 0x45, 0x32, 0x30, 0x30, 0x30, 0x30})
	ch.HandleReceived(0x7E8, []byte{0x22, 0x30, 0x37, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})

	got := events()
	require.Len(t, got, 2)
	assert.Equal(t, EventFirstFrameReceived, got[0].Kind)
	assert.Equal(t, EventDataReceived, got[1].Kind)
	assert.Equal(t, []byte{0x62, 0xF1, 0x87, 0x44, 0x56, 0x43, 0x37, 0x45, 0x32, 0x30, 0x30, 0x30, 0x30, 0x30, 0x37}, got[1].Data)
}

func TestChannelSequenceMismatch(t *testing.T) {
	listener, events := collectEvents()
	ch := NewChannel(Address{TxID: 0x7E0, RxID: 0x7E8}, Variant2004, ClassicMTU, &recordingSender{}, listener)

	ch.HandleReceived(0x7E8, []byte{0x10, 0x0F, 0x62, 0xF1, 0x87, 0x44, 0x56, 0x43})
	ch.HandleReceived(0x7E8, []byte{0x25, 0x37, 0x45, 0x32, 0x30, 0x30, 0x30, 0x30}) // wrong sequence, expected 1

	got := events()
	require.Len(t, got, 2)
	assert.Equal(t, EventErrorOccurred, got[1].Kind)
	assert.ErrorIs(t, got[1].Err, ErrSequenceError)
}

func TestChannelFlowControlOverflow(t *testing.T) {
	listener, events := collectEvents()
	sender := &recordingSender{}
	ch := NewChannel(Address{TxID: 0x7E0, RxID: 0x7E8}, Variant2004, ClassicMTU, sender, listener)

	payload := make([]byte, 20) // forces a multi-frame send, needs flow control
	done := make(chan error, 1)
	go func() {
		done <- ch.Write(context.Background(), AddressPhysical, payload)
	}()

	time.Sleep(10 * time.Millisecond)
	ch.HandleReceived(0x7E8, []byte{0x32, 0x00, 0x00, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}) // overflow

	err := <-done
	assert.ErrorIs(t, err, ErrDeviceError)

	got := events()
	require.NotEmpty(t, got)
	assert.Equal(t, EventErrorOccurred, got[len(got)-1].Kind)
}

func TestChannelWriteSingleFrame(t *testing.T) {
	sender := &recordingSender{}
	ch := NewChannel(Address{TxID: 0x7E0, RxID: 0x7E8}, Variant2004, ClassicMTU, sender, nil)

	err := ch.Write(context.Background(), AddressPhysical, []byte{0x10, 0x01})
	require.NoError(t, err)
	require.Equal(t, 1, sender.count())
	assert.Equal(t, RawFrame{ID: 0x7E0, Data: []byte{0x02, 0x10, 0x01, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}}, sender.last())
}

func TestChannelWriteFlowControlContinue(t *testing.T) {
	sender := &recordingSender{}
	ch := NewChannel(Address{TxID: 0x7E0, RxID: 0x7E8}, Variant2004, ClassicMTU, sender, nil)

	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}

	// recordingSender has no Transport behind it, so the test plays the
	// transport's part itself: ack every frame as soon as it's "sent", and
	// answer the first frame with a flow control continue, the way a real
	// Transport's transmit pump and receive pump would.
	sender.onSend = func(f RawFrame) {
		ch.OnTransmitted(f.ID)
		if f.Data[0]>>4 == byte(KindFirst) {
			go ch.HandleReceived(0x7E8, []byte{0x30, 0x00, 0x00, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
		}
	}

	err := ch.Write(context.Background(), AddressPhysical, payload)
	require.NoError(t, err)
	assert.Equal(t, 3, sender.count()) // first frame + 2 consecutive (20 bytes: 6 + 7 + 7)
}
