package config

import "errors"

// ErrConfigInvalid is returned for any configuration-time failure: a
// missing bitrate table file, an unknown device family or bitrate, or a
// channel type the device family cannot honour.
var ErrConfigInvalid = errors.New("invalid configuration")
