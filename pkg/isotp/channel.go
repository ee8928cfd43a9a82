package isotp

import (
	"context"
	"sync"
	"time"

	"github.com/vehicleware/cantp/internal/fifo"
)

// RawFrame is the physical CAN frame a Channel hands to its Sender: an
// arbitration id and the already-encoded, already-padded ISO-TP PDU bytes.
type RawFrame struct {
	ID   uint32
	Data []byte
}

// Sender transmits one RawFrame, generally by enqueuing it on a transport
// adapter.
type Sender interface {
	Send(RawFrame) error
}

// Channel is a single logical ISO-TP channel: one Address, one reassembly
// buffer, one state bitset. Writes on a channel are serialised by writeMu; the
// engine guarantees at most one multi-frame transaction in flight per
// channel. Multiple Channels run independently.
type Channel struct {
	mu      sync.Mutex
	writeMu sync.Mutex

	addr      Address
	variant   Variant
	frameSize int
	padding   byte
	p2        P2Context
	send      Sender
	listener  Listener

	state State

	reasm       *fifo.Fifo
	expectedLen uint32
	nextSeq     uint8

	blockSize uint8
	stMin     uint8
}

// NewChannel constructs a Channel bound to addr, encoding/decoding against
// variant and frameSize (ClassicMTU or FDMTU), transmitting through send and
// reporting events to listener (which may be nil). send is typically a
// *Transport, whose pumps both send and ack frames; see Write's doc comment
// for why a plain Sender without that acking stalls multi-frame transfers.
func NewChannel(addr Address, variant Variant, frameSize int, send Sender, listener Listener) *Channel {
	return &Channel{
		addr:      addr,
		variant:   variant,
		frameSize: frameSize,
		padding:   DefaultPadding,
		p2:        DefaultP2Context(),
		send:      send,
		listener:  listener,
		reasm:     fifo.NewFifo(0),
		blockSize: DefaultBlockSize,
		stMin:     DefaultSTmin,
	}
}

// SetP2Context overrides the p2/p2* timing pair used by WaitBusy timeouts.
func (c *Channel) SetP2Context(p2Ms, p2StarMs uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.p2.Update(p2Ms, p2StarMs/10)
}

// UpdateAddress replaces the channel's tx/rx/functional ids.
func (c *Channel) UpdateAddress(addr Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addr = addr
}

// SetPadding overrides the byte used to pad short frames; default 0xAA.
func (c *Channel) SetPadding(padding byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.padding = padding
}

// Write segments payload and transmits it over addrType, serialising the
// whole multi-frame transaction. Error is terminal until the next Write,
// which resets state unconditionally.
//
// Progress past the first frame depends on something outside this call
// clearing StateSending/StateWaitFlowCtrl: normally a Transport's transmit
// pump invoking OnTransmitted after each frame actually leaves, and
// HandleReceived processing the peer's flow control frames. A Sender with
// no such observer wired up will stall every frame until its N_As/N_Cr
// timeout fires.
func (c *Channel) Write(ctx context.Context, addrType AddressType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()

	frames, err := Segment(payload, c.variant, c.frameSize)
	if err != nil {
		return err
	}

	c.mu.Lock()
	canID := c.addr.Target(addrType)
	opts := EncodeOptions{Variant: c.variant, FrameSize: c.frameSize, Padding: c.padding}
	c.mu.Unlock()

	needFlowCtrl := len(frames) > 1
	blockRemaining := 0
	for i, frame := range frames {
		encoded := frame.Encode(opts)

		if needFlowCtrl {
			needFlowCtrl = false
			c.setState(StateSending | StateWaitFlowCtrl)
		} else {
			if err := c.writeWaiting(ctx); err != nil {
				return err
			}
			c.setState(StateSending)
		}

		if err := c.send.Send(RawFrame{ID: canID, Data: encoded}); err != nil {
			c.setState(StateError)
			return &OperationError{Detail: err.Error()}
		}

		if i > 0 {
			c.afterConsecutiveSent(&blockRemaining)
		}
	}
	return nil
}

// afterConsecutiveSent counts a just-sent ConsecutiveFrame against the
// receiver-advertised block size, re-arming WaitFlowCtrl only once a full
// block has actually left — the block_size-th frame itself must still go
// out before the next flow-control wait begins, otherwise a block_size=1
// peer dead-ends the transfer waiting for a second FC it has no reason to
// send.
func (c *Channel) afterConsecutiveSent(remaining *int) {
	c.mu.Lock()
	bs := int(c.blockSize)
	c.mu.Unlock()
	if bs == 0 {
		return
	}
	*remaining++
	if *remaining == bs {
		*remaining = 0
		c.setState(StateWaitFlowCtrl)
	}
}

// writeWaiting applies ST_min pacing before the next frame and then spins
// on the state bitset bounded by the relevant ISO-TP timer, mirroring the
// driver-level transmit loop: N_As while plain Sending, p2* while
// WaitBusy, N_Cr while WaitFlowCtrl.
func (c *Channel) writeWaiting(ctx context.Context) error {
	c.mu.Lock()
	st := c.stMin
	c.mu.Unlock()

	sleepInterruptible(ctx, stMinDuration(st))

	start := time.Now()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s := c.getState()
		switch {
		case s.Has(StateError):
			return ErrDeviceError
		case s.Has(StateWaitBusy):
			if time.Since(start) > time.Duration(c.p2StarMs())*time.Millisecond {
				return &TimeoutError{Detail: "p2* exceeded waiting for server"}
			}
		case s.Has(StateWaitFlowCtrl):
			if time.Since(start) > DefaultNCr*time.Millisecond {
				return &TimeoutError{Detail: "N_Cr exceeded waiting for flow control"}
			}
		case s.Has(StateSending):
			if time.Since(start) > DefaultNAs*time.Millisecond {
				return &TimeoutError{Detail: "N_As exceeded waiting for transmit ack"}
			}
		default:
			return nil
		}
		sleepInterruptible(ctx, time.Millisecond)
	}
}

func (c *Channel) p2StarMs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.p2.P2StarMs()
}

func sleepInterruptible(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// stMinDuration decodes ST_min per ISO 15765-2: 0x00-0x7F are whole
// milliseconds; 0xF1-0xF9 are 100-900 microseconds; anything else is
// treated as zero delay.
func stMinDuration(st byte) time.Duration {
	switch {
	case st <= 0x7F:
		return time.Duration(st) * time.Millisecond
	case st >= 0xF1 && st <= 0xF9:
		return time.Duration(st-0xF0) * 100 * time.Microsecond
	default:
		return 0
	}
}

// HandleReceived routes an inbound physical frame to this channel if its id
// matches RxID, decodes it, and drives the receive-side state transitions.
func (c *Channel) HandleReceived(id uint32, data []byte) {
	c.mu.Lock()
	rxID := c.addr.RxID
	txID := c.addr.TxID
	variant := c.variant
	frameSize := c.frameSize
	c.mu.Unlock()

	if id != rxID {
		return
	}
	if c.getState().Has(StateError) {
		return
	}

	frame, err := Decode(data, variant, frameSize)
	if err != nil {
		c.setState(StateError)
		c.emit(Event{Kind: EventErrorOccurred, Err: err})
		return
	}

	switch f := frame.(type) {
	case SingleFrame:
		c.emit(Event{Kind: EventDataReceived, Data: f.Data})
	case FirstFrame:
		c.onFirstFrame(txID, f)
	case ConsecutiveFrame:
		c.onConsecutiveFrame(f)
	case FlowControlFrame:
		c.onFlowControl(f)
	}
}

func (c *Channel) onFirstFrame(txID uint32, f FirstFrame) {
	c.mu.Lock()
	c.expectedLen = f.Length
	c.nextSeq = 1
	c.reasm.Reset()
	c.reasm.Resize(int(f.Length) + 1)
	c.reasm.Write(f.Data)
	opts := EncodeOptions{Variant: c.variant, FrameSize: c.frameSize, Padding: c.padding}
	c.mu.Unlock()

	fc := DefaultFlowControlFrame()
	encoded := fc.Encode(opts)

	c.setState(StateSending)
	if err := c.send.Send(RawFrame{ID: txID, Data: encoded}); err != nil {
		c.setState(StateError)
		c.emit(Event{Kind: EventErrorOccurred, Err: ErrDeviceError})
		return
	}
	c.emit(Event{Kind: EventFirstFrameReceived})
}

func (c *Channel) onConsecutiveFrame(f ConsecutiveFrame) {
	c.mu.Lock()
	if f.Sequence != c.nextSeq {
		c.mu.Unlock()
		c.setState(StateError)
		c.emit(Event{Kind: EventErrorOccurred, Err: ErrSequenceError})
		return
	}
	c.reasm.Write(f.Data)
	if c.nextSeq == 0x0F {
		c.nextSeq = 0
	} else {
		c.nextSeq++
	}
	occupied := c.reasm.GetOccupied()
	done := occupied >= int(c.expectedLen)
	var out []byte
	if done {
		out = make([]byte, c.expectedLen)
		c.reasm.Read(out)
	}
	c.mu.Unlock()

	if done {
		c.emit(Event{Kind: EventDataReceived, Data: out})
	}
}

func (c *Channel) onFlowControl(f FlowControlFrame) {
	switch f.State {
	case FlowContinue:
		c.clearState(StateWaitBusy | StateWaitFlowCtrl)
	case FlowWait:
		c.setState(StateWaitBusy)
		c.emit(Event{Kind: EventWait})
		return
	case FlowOverflow:
		c.setState(StateError)
		c.emit(Event{Kind: EventErrorOccurred, Err: ErrOverloadFlow})
		return
	default:
		return
	}

	c.mu.Lock()
	c.blockSize = f.BlockSize
	c.stMin = f.STmin
	c.mu.Unlock()
}

// OnTransmitted is called by the transport adapter once a frame whose id
// matches this channel's tx/functional id has been handed to the driver.
func (c *Channel) OnTransmitted(id uint32) {
	c.mu.Lock()
	matches := id == c.addr.TxID || id == c.addr.FID
	c.mu.Unlock()
	if matches {
		c.clearState(StateSending)
	}
}

func (c *Channel) getState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(flags State) {
	c.mu.Lock()
	c.state = c.state.Set(flags)
	c.mu.Unlock()
}

func (c *Channel) clearState(flags State) {
	c.mu.Lock()
	c.state = c.state.Clear(flags)
	c.mu.Unlock()
}

func (c *Channel) emit(event Event) {
	if c.listener != nil {
		c.listener(event)
	}
}
