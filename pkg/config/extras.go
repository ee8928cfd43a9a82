package config

// Extras is a typed extension map for hardware-specific channel options
// (filter mode, data bitrate, resistance toggle, acceptance code/mask, BRP
// override) and device-level builder extras (device type, device index).
// Unknown keys are ignored by anything reading this map; there is no
// schema validation beyond the typed accessors below.
type Extras map[string]any

// Uint32 returns the named entry as a uint32, or ok=false if absent or of
// the wrong type.
func (e Extras) Uint32(name string) (uint32, bool) {
	v, ok := e[name]
	if !ok {
		return 0, false
	}
	u, ok := v.(uint32)
	return u, ok
}

// Bool returns the named entry as a bool, or ok=false if absent or of the
// wrong type.
func (e Extras) Bool(name string) (bool, bool) {
	v, ok := e[name]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// String returns the named entry as a string, or ok=false if absent or of
// the wrong type.
func (e Extras) String(name string) (string, bool) {
	v, ok := e[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// MustUint32 is Uint32 with def as the fallback, for optional fields the
// caller is content to default.
func (e Extras) MustUint32(name string, def uint32) uint32 {
	if v, ok := e.Uint32(name); ok {
		return v
	}
	return def
}

// Known extras keys used by the channel config builder and the vendor
// families.
const (
	ExtraFilterMode  = "filter_mode"
	ExtraDataBitrate = "data_bitrate"
	ExtraResistance  = "resistance"
	ExtraAcceptCode  = "accept_code"
	ExtraAcceptMask  = "accept_mask"
	ExtraBrpOverride = "brp_override"
	ExtraDeviceType  = "device_type"
	ExtraDeviceIndex = "device_index"

	// ExtraErrorFilterMask configures CAN_RAW_ERR_FILTER on a socketcan
	// channel: which error classes are delivered as error frames.
	ExtraErrorFilterMask = "error_filter_mask"
	// ExtraNonBlocking toggles O_NONBLOCK on a socketcan channel's fd.
	ExtraNonBlocking = "non_blocking"
	// ExtraRxTimeoutMs/ExtraTxTimeoutMs set SO_RCVTIMEO/SO_SNDTIMEO in
	// milliseconds on a socketcan channel.
	ExtraRxTimeoutMs = "rx_timeout_ms"
	ExtraTxTimeoutMs = "tx_timeout_ms"

	// ExtraTxMode carries a vendor ZCanTxMode word (Normal/Once/SelfReception/
	// SelfReceptionOnce) on a zlgcan channel.
	ExtraTxMode = "tx_mode"
)
