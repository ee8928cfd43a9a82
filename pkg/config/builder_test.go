package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderCoercesClassicToFDISO(t *testing.T) {
	path := writeSampleTable(t)
	table, err := LoadBitrateTableFrom(path)
	require.NoError(t, err)

	b := Builder{Family: "zlgcan", Capability: FDCapable, Table: table}
	cfg, err := b.Build(ChannelClassic, "normal", "500000", nil)
	require.NoError(t, err)
	assert.Equal(t, ChannelFDISO, cfg.ChannelType)
}

func TestBuilderRejectsFDOnIncapableFamily(t *testing.T) {
	b := Builder{Family: "socketcan", Capability: FDIncapable}
	_, err := b.Build(ChannelFD, "normal", "500000", nil)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestBuilderUnknownBitrate(t *testing.T) {
	path := writeSampleTable(t)
	table, err := LoadBitrateTableFrom(path)
	require.NoError(t, err)

	b := Builder{Family: "zlgcan", Capability: FDCapable, Table: table}
	_, err = b.Build(ChannelClassic, "normal", "nonsense", nil)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestBuilderDataBitrateFromExtras(t *testing.T) {
	path := writeSampleTable(t)
	table, err := LoadBitrateTableFrom(path)
	require.NoError(t, err)

	b := Builder{Family: "zlgcan", Capability: FDCapable, Table: table}
	cfg, err := b.Build(ChannelFD, "normal", "500000", Extras{ExtraDataBitrate: "2000000"})
	require.NoError(t, err)
	require.NotNil(t, cfg.DataTiming.Tseg1)
	assert.Equal(t, uint8(4), *cfg.DataTiming.Tseg1)
}
