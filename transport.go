package cantp

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vehicleware/cantp/pkg/isotp"
)

// DefaultPumpInterval is the pump cadence used when Start is called with
// interval <= 0.
const DefaultPumpInterval = 2 * time.Millisecond

// frameSink receives raw frames routed off a Transport's channel. An
// *isotp.Channel satisfies this structurally: it filters by its own
// Address.RxID/TxID, so a sink that does not own the id simply ignores the
// call.
type frameSink interface {
	HandleReceived(id uint32, data []byte)
	OnTransmitted(id uint32)
}

// Transport pumps one Driver channel: it drains a bounded outbound queue
// into Driver.Transmit, polls Driver.Receive for inbound frames, and fans
// both directions out to registered frameSinks (ISO-TP channels layered on
// top) and TransportListeners (raw observability hooks). It implements
// pkg/isotp.Sender, so an *isotp.Channel built on this bus is given the
// Transport itself as its send target.
//
// Modelled on the two-pump-plus-stop-channel shape of a CANopen node's
// background process loop: one goroutine per direction, a shared stop
// signal, and a bounded grace period on Stop before the underlying driver
// is torn down regardless of whether the pumps noticed in time.
type Transport struct {
	driver  Driver
	channel ChannelID

	listeners *listenerRegistry

	sinksMu sync.RWMutex
	sinks   map[string]frameSink

	outbound chan isotp.RawFrame

	mu       sync.Mutex
	running  bool
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup

	logger *log.Entry
}

// NewTransport builds a Transport bound to one channel of driver. The
// channel must already be open on driver (via Driver.OpenChannel) before
// Start is called.
func NewTransport(driver Driver, channel ChannelID) *Transport {
	return &Transport{
		driver:    driver,
		channel:   channel,
		listeners: newListenerRegistry(),
		sinks:     make(map[string]frameSink),
		outbound:  make(chan isotp.RawFrame, 256),
		logger:    log.WithField("channel", channel.String()),
	}
}

// RegisterListener adds or replaces a named TransportListener.
func (t *Transport) RegisterListener(name string, l TransportListener) {
	t.listeners.register(name, l)
}

// UnregisterListener removes a named TransportListener, if present.
func (t *Transport) UnregisterListener(name string) {
	t.listeners.unregister(name)
}

// UnregisterAllListeners clears every registered TransportListener.
func (t *Transport) UnregisterAllListeners() {
	t.listeners.unregisterAll()
}

// ListenerNames lists the currently registered TransportListener names.
func (t *Transport) ListenerNames() []string {
	return t.listeners.names()
}

// RegisterChannel attaches an ISO-TP channel (or anything else shaped like
// a frameSink) under name so inbound/outbound frames on this bus are routed
// to it. Re-registering a name replaces the prior sink.
func (t *Transport) RegisterChannel(name string, sink frameSink) {
	t.sinksMu.Lock()
	defer t.sinksMu.Unlock()
	t.sinks[name] = sink
}

// UnregisterChannel detaches a previously registered sink.
func (t *Transport) UnregisterChannel(name string) {
	t.sinksMu.Lock()
	defer t.sinksMu.Unlock()
	delete(t.sinks, name)
}

// Send implements pkg/isotp.Sender: it enqueues frame for the transmit
// pump. A full outbound queue is reported back to the caller rather than
// dropped silently, since ISO-TP write timing depends on frames actually
// leaving.
func (t *Transport) Send(frame isotp.RawFrame) error {
	select {
	case t.outbound <- frame:
		return nil
	default:
		return errors.New("cantp: transport outbound queue full")
	}
}

// Start launches the transmit and receive pumps, polling at interval
// (DefaultPumpInterval if interval <= 0). Start on an already-running
// Transport is a no-op.
func (t *Transport) Start(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	if interval <= 0 {
		interval = DefaultPumpInterval
	}
	t.interval = interval
	t.stop = make(chan struct{})
	t.running = true

	t.wg.Add(2)
	go t.transmitLoop(t.stop, interval)
	go t.receiveLoop(t.stop, interval)
}

// Stop signals both pumps, waits up to 2*interval for them to wind down,
// logs a warning if they have not, then shuts the driver down
// unconditionally. Stop on a Transport that was never started is a no-op.
func (t *Transport) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	stop := t.stop
	interval := t.interval
	t.running = false
	t.mu.Unlock()

	close(stop)

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * interval):
		t.logger.Warn("transport pumps did not stop within grace period, shutting down driver anyway")
	}

	if err := t.driver.Shutdown(); err != nil {
		t.logger.WithError(err).Warn("driver shutdown returned an error")
	}
}

func (t *Transport) transmitLoop(stop <-chan struct{}, interval time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.transmitPending(stop)
		}
	}
}

// transmitPending drains whatever is queued right now, stopping early if
// stop fires mid-drain.
func (t *Transport) transmitPending(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case frame := <-t.outbound:
			t.transmitOne(frame)
		default:
			return
		}
	}
}

func (t *Transport) transmitOne(frame isotp.RawFrame) {
	id := NewCanId(frame.ID, false)
	msg := NewDataMessage(t.channel, id, FrameClassic, frame.Data)

	t.listeners.notify(TransportEvent{Kind: EventFrameTransmitting, Channel: t.channel, Message: msg})

	ctx, cancel := context.WithTimeout(context.Background(), DefaultReceiveTimeout)
	defer cancel()
	if err := t.driver.Transmit(ctx, msg); err != nil {
		t.logger.WithError(err).Warn("transmit failed")
		return
	}

	t.listeners.notify(TransportEvent{Kind: EventFrameTransmitted, Channel: t.channel, Message: msg})
	t.notifySinks(func(sink frameSink) { sink.OnTransmitted(frame.ID) })
}

func (t *Transport) receiveLoop(stop <-chan struct{}, interval time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.receiveOnce()
		}
	}
}

func (t *Transport) receiveOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultReceiveTimeout)
	defer cancel()
	msgs, err := t.driver.Receive(ctx, t.channel)
	if err != nil {
		var timeout *TimeoutError
		if !errors.As(err, &timeout) && !errors.Is(err, context.DeadlineExceeded) {
			t.logger.WithError(err).Warn("receive failed")
		}
		return
	}
	for _, msg := range msgs {
		t.listeners.notify(TransportEvent{Kind: EventFrameReceived, Channel: t.channel, Message: msg})
		id := msg.ID.Raw()
		data := msg.Data
		t.notifySinks(func(sink frameSink) { sink.HandleReceived(id, data) })
	}
}

func (t *Transport) notifySinks(f func(frameSink)) {
	t.sinksMu.RLock()
	defer t.sinksMu.RUnlock()
	for _, sink := range t.sinks {
		f(sink)
	}
}
