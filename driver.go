package cantp

import (
	"context"
	"time"

	"github.com/vehicleware/cantp/pkg/config"
)

// Driver is the polymorphic contract every CAN backend implements: kernel
// raw sockets, vendor USB-CAN adapters, and the in-process virtual bus used
// by tests. Transmit and receive may be called concurrently from the
// transport adapter's two pump goroutines, on different channels; an
// implementation serialises access to any state it shares across channels.
type Driver interface {
	// OpenChannel acquires hardware resources for channel and installs cfg.
	OpenChannel(channel ChannelID, cfg *config.ChannelConfig) error

	// CloseChannel releases channel. Returns ChannelNotOpenedError if it was
	// never opened.
	CloseChannel(channel ChannelID) error

	// Transmit sends exactly one frame on msg.Channel. With ctx carrying no
	// deadline the call is best-effort non-blocking; with a deadline it
	// retries on transient would-block conditions until the deadline.
	Transmit(ctx context.Context, msg CanMessage) error

	// Receive returns zero or more frames available on channel without
	// further blocking once any frame has arrived. A timeout with zero
	// frames returned is reported as *TimeoutError, not a zero-length
	// success.
	Receive(ctx context.Context, channel ChannelID) ([]CanMessage, error)

	// OpenedChannels enumerates channels currently open on this driver.
	OpenedChannels() []ChannelID

	// Shutdown releases every open channel. Idempotent.
	Shutdown() error
}

// DeviceBuilder is the configuration object used to instantiate a concrete
// Driver: an interface tag (e.g. "socketcan", "zlgcan"), per-channel typed
// configs, and device-level typed extras.
type DeviceBuilder struct {
	Interface string
	Channels  map[ChannelID]*config.ChannelConfig
	Extras    config.Extras
}

// NewDeviceFunc constructs a Driver from a builder, after the caller has
// already matched builder.Interface against a registered driver family.
type NewDeviceFunc func(builder DeviceBuilder) (Driver, error)

var driverRegistry = make(map[string]NewDeviceFunc)

// RegisterDriver registers a driver family under interfaceTag. Called from
// an init() function of the package implementing that family.
func RegisterDriver(interfaceTag string, newDriver NewDeviceFunc) {
	driverRegistry[interfaceTag] = newDriver
}

// NewDriver validates builder.Interface against the registry and
// instantiates the matching driver.
func NewDriver(builder DeviceBuilder) (Driver, error) {
	newDriver, ok := driverRegistry[builder.Interface]
	if !ok {
		return nil, ErrInterfaceNotMatched
	}
	return newDriver(builder)
}

// DefaultReceiveTimeout bounds a Receive call issued with no explicit
// deadline by the transport adapter's receive pump, or by a vendor Session
// with no hardware-level timeout of its own.
const DefaultReceiveTimeout = 50 * time.Millisecond
