package vcan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vehicleware/cantp"
	"github.com/vehicleware/cantp/pkg/config"
)

func openLink(t *testing.T, channel cantp.ChannelID, receiveOwn bool) *Driver {
	t.Helper()
	d := &Driver{links: make(map[cantp.ChannelID]*link)}
	err := d.OpenChannel(channel, &config.ChannelConfig{ReceiveOwn: receiveOwn})
	require.NoError(t, err)
	t.Cleanup(func() { d.Shutdown() })
	return d
}

func TestSendAndReceiveAcrossDrivers(t *testing.T) {
	channel := cantp.ChannelID("test-bus-1")
	d1 := openLink(t, channel, false)
	d2 := openLink(t, channel, false)

	msg := cantp.NewDataMessage(channel, cantp.StandardCanId(0x111), cantp.FrameClassic, []byte{0, 1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, d1.Transmit(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := d2.Receive(ctx, channel)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint16(0x111), got[0].ID.StandardID())
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, got[0].Data)
}

func TestReceiveOwnLoopback(t *testing.T) {
	channel := cantp.ChannelID("test-bus-2")
	d := openLink(t, channel, true)

	msg := cantp.NewDataMessage(channel, cantp.StandardCanId(0x222), cantp.FrameClassic, []byte{9})
	require.NoError(t, d.Transmit(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := d.Receive(ctx, channel)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint16(0x222), got[0].ID.StandardID())
}

func TestNoReceiveOwnNoLoopback(t *testing.T) {
	channel := cantp.ChannelID("test-bus-3")
	d := openLink(t, channel, false)

	msg := cantp.NewDataMessage(channel, cantp.StandardCanId(0x333), cantp.FrameClassic, []byte{1})
	require.NoError(t, d.Transmit(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.Receive(ctx, channel)
	assert.Error(t, err)
}

func TestCloseChannelNeverOpened(t *testing.T) {
	d := &Driver{links: make(map[cantp.ChannelID]*link)}
	err := d.CloseChannel("nope")
	var notOpened *cantp.ChannelNotOpenedError
	assert.ErrorAs(t, err, &notOpened)
}

func TestOpenedChannels(t *testing.T) {
	channel := cantp.ChannelID("test-bus-4")
	d := openLink(t, channel, false)
	assert.Contains(t, d.OpenedChannels(), channel)
}
