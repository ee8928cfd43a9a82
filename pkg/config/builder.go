package config

import "fmt"

// ChannelType is the requested physical frame capability for a channel.
type ChannelType uint8

const (
	ChannelClassic ChannelType = iota
	ChannelFD
	ChannelFDISO
)

// FDCapability tells the builder whether a device family can run FD at all,
// so it can apply the classic/FD coercion rule.
type FDCapability bool

const (
	FDCapable    FDCapability = true
	FDIncapable  FDCapability = false
)

// ChannelConfig is the builder's output: everything a Driver.OpenChannel
// needs to bring a channel up.
type ChannelConfig struct {
	DeviceFamily  string
	ChannelType   ChannelType
	Mode          string
	Bitrate       string
	Timing        Timing
	DataBitrate   string
	DataTiming    Timing
	Loopback      bool
	ReceiveOwn    bool
	Filters       []Filter
	JoinFilters   bool
	Extras        Extras
}

// Filter is one acceptance filter entry (id, mask) installed on a driver
// channel.
type Filter struct {
	ID   uint32
	Mask uint32
}

// Builder produces ChannelConfig values for a single device family,
// consulting an already-loaded BitrateTable when the family needs timing
// registers.
type Builder struct {
	Family     string
	Capability FDCapability
	Table      BitrateTable // nil for families that accept bitrate directly
}

// Build validates channelType against the family's FD capability (coercing
// Classic to FDISO on an FD-capable family, rejecting FD on a non-FD
// family), resolves timing from Table when present, and assembles the
// final ChannelConfig. Unknown bitrates return ErrConfigInvalid; unknown
// extras keys are left untouched for the caller to ignore.
func (b Builder) Build(channelType ChannelType, mode, bitrate string, extras Extras) (*ChannelConfig, error) {
	channelType, err := b.coerce(channelType)
	if err != nil {
		return nil, err
	}

	cfg := &ChannelConfig{
		DeviceFamily: b.Family,
		ChannelType:  channelType,
		Mode:         mode,
		Bitrate:      bitrate,
		Extras:       extras,
	}

	if b.Table != nil {
		family, err := b.Table.Family(b.Family)
		if err != nil {
			return nil, err
		}
		timing, err := family.Timing(bitrate)
		if err != nil {
			return nil, err
		}
		cfg.Timing = timing

		if dataBitrate, ok := extras.String(ExtraDataBitrate); ok && dataBitrate != "" {
			dataTiming, err := family.DataTiming(dataBitrate)
			if err != nil {
				return nil, err
			}
			cfg.DataBitrate = dataBitrate
			cfg.DataTiming = dataTiming
		}
	}

	if resistance, ok := extras.Bool(ExtraResistance); ok {
		cfg.Extras = mergeExtra(cfg.Extras, ExtraResistance, resistance)
	}

	return cfg, nil
}

func (b Builder) coerce(requested ChannelType) (ChannelType, error) {
	switch requested {
	case ChannelClassic:
		if bool(b.Capability) {
			return ChannelFDISO, nil
		}
		return ChannelClassic, nil
	case ChannelFD, ChannelFDISO:
		if !bool(b.Capability) {
			return 0, fmt.Errorf("%w: device family %q does not support FD", ErrConfigInvalid, b.Family)
		}
		return requested, nil
	default:
		return 0, fmt.Errorf("%w: unknown channel type %d", ErrConfigInvalid, requested)
	}
}

func mergeExtra(e Extras, key string, value any) Extras {
	if e == nil {
		e = Extras{}
	}
	e[key] = value
	return e
}
