package vcan

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/vehicleware/cantp"
	"github.com/vehicleware/cantp/pkg/config"
)

func init() {
	cantp.RegisterDriver("vcan", NewDriver)
}

// registry maps a channel name to the broker backing it, so every Driver
// that opens the same channel name joins the same bus, the way two real
// SocketCAN processes joining the same interface share a bus.
var registry = struct {
	mu      sync.Mutex
	brokers map[string]*broker
	refs    map[string]int
}{brokers: make(map[string]*broker), refs: make(map[string]int)}

func acquireBroker(name string) (*broker, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if b, ok := registry.brokers[name]; ok {
		registry.refs[name]++
		return b, nil
	}
	b, err := newBroker()
	if err != nil {
		return nil, err
	}
	registry.brokers[name] = b
	registry.refs[name] = 1
	return b, nil
}

func releaseBroker(name string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.refs[name]--
	if registry.refs[name] <= 0 {
		if b, ok := registry.brokers[name]; ok {
			b.Close()
		}
		delete(registry.brokers, name)
		delete(registry.refs, name)
	}
}

// link is one Driver's connection to a channel's broker.
type link struct {
	name       string
	conn       net.Conn
	receiveOwn bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queue  chan cantp.CanMessage
	closed bool
}

// Driver is the in-process virtual cantp.Driver.
type Driver struct {
	mu    sync.Mutex
	links map[cantp.ChannelID]*link
}

// NewDriver satisfies cantp.NewDeviceFunc.
func NewDriver(builder cantp.DeviceBuilder) (cantp.Driver, error) {
	d := &Driver{links: make(map[cantp.ChannelID]*link)}
	for channel, cfg := range builder.Channels {
		if err := d.OpenChannel(channel, cfg); err != nil {
			d.Shutdown()
			return nil, err
		}
	}
	return d, nil
}

// OpenChannel joins the broker for channel's name, creating it if this is
// the first client.
func (d *Driver) OpenChannel(channel cantp.ChannelID, cfg *config.ChannelConfig) error {
	d.mu.Lock()
	if _, exists := d.links[channel]; exists {
		d.mu.Unlock()
		return cantp.ErrChannelAlreadyOpen
	}
	d.mu.Unlock()

	name := channel.String()
	b, err := acquireBroker(name)
	if err != nil {
		return &cantp.InitializeError{Detail: err.Error()}
	}
	conn, err := net.Dial("tcp", b.Addr())
	if err != nil {
		releaseBroker(name)
		return &cantp.InitializeError{Detail: err.Error()}
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	l := &link{name: name, conn: conn, receiveOwn: cfg.ReceiveOwn, queue: make(chan cantp.CanMessage, 256)}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.pumpReceive(ctx)
	}()

	d.mu.Lock()
	d.links[channel] = l
	d.mu.Unlock()
	return nil
}

// CloseChannel leaves the channel's broker, closing it if no client
// remains.
func (d *Driver) CloseChannel(channel cantp.ChannelID) error {
	d.mu.Lock()
	l, ok := d.links[channel]
	if ok {
		delete(d.links, channel)
	}
	d.mu.Unlock()
	if !ok {
		return &cantp.ChannelNotOpenedError{Channel: channel}
	}
	l.close()
	releaseBroker(l.name)
	return nil
}

func (l *link) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.cancel()
	l.conn.Close()
	l.wg.Wait()
}

// Transmit serialises msg and writes it to the channel's broker
// connection. Loopback (ReceiveOwn) is delivered locally, the same trick
// the teacher's virtual.Bus.Send plays rather than relying on the broker
// to echo back to the sender.
func (d *Driver) Transmit(ctx context.Context, msg cantp.CanMessage) error {
	d.mu.Lock()
	l, ok := d.links[msg.Channel]
	d.mu.Unlock()
	if !ok {
		return &cantp.ChannelNotOpenedError{Channel: msg.Channel}
	}

	framed, err := serializeMessage(msg)
	if err != nil {
		return &cantp.FrameConvertError{Detail: err.Error()}
	}

	if l.receiveOwn {
		loopback := msg
		loopback.Direction = cantp.DirectionRx
		l.enqueue(loopback)
	}

	deadline := 10 * time.Millisecond
	if dl, hasDeadline := ctx.Deadline(); hasDeadline {
		if remaining := time.Until(dl); remaining > 0 {
			deadline = remaining
		}
	}
	_ = l.conn.SetWriteDeadline(time.Now().Add(deadline))
	if _, err := l.conn.Write(framed); err != nil {
		return &cantp.OperationError{Detail: err.Error()}
	}
	return nil
}

// Receive returns whatever frames have arrived, blocking until at least
// one does or the timeout elapses.
func (d *Driver) Receive(ctx context.Context, channel cantp.ChannelID) ([]cantp.CanMessage, error) {
	d.mu.Lock()
	l, ok := d.links[channel]
	d.mu.Unlock()
	if !ok {
		return nil, &cantp.ChannelNotOpenedError{Channel: channel}
	}

	var timeout <-chan time.Time
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		timer := time.NewTimer(cantp.DefaultReceiveTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case msg := <-l.queue:
		out := []cantp.CanMessage{msg}
		for {
			select {
			case next := <-l.queue:
				out = append(out, next)
				continue
			default:
			}
			break
		}
		return out, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &cantp.TimeoutError{Detail: "vcan: no frame received on " + channel.String()}
		}
		return nil, ctx.Err()
	case <-timeout:
		return nil, &cantp.TimeoutError{Detail: "vcan: no frame received on " + channel.String()}
	}
}

// OpenedChannels lists every channel currently joined.
func (d *Driver) OpenedChannels() []cantp.ChannelID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]cantp.ChannelID, 0, len(d.links))
	for channel := range d.links {
		out = append(out, channel)
	}
	return out
}

// Shutdown leaves every joined channel. Idempotent.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	links := d.links
	d.links = make(map[cantp.ChannelID]*link)
	d.mu.Unlock()
	for _, l := range links {
		l.close()
		releaseBroker(l.name)
	}
	return nil
}

func (l *link) enqueue(msg cantp.CanMessage) {
	select {
	case l.queue <- msg:
	default:
		select {
		case <-l.queue:
		default:
		}
		l.queue <- msg
	}
}

func (l *link) pumpReceive(ctx context.Context) {
	header := make([]byte, 4)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = l.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if _, err := io.ReadFull(l.conn, header); err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}
		length := binary.BigEndian.Uint32(header)
		payload := make([]byte, length)
		if _, err := io.ReadFull(l.conn, payload); err != nil {
			return
		}
		msg, err := deserializeMessage(payload)
		if err != nil {
			continue
		}
		msg.Channel = cantp.ChannelID(l.name)
		msg.Timestamp = time.Now()
		l.enqueue(msg)
	}
}
