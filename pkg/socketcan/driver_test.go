//go:build linux

package socketcan

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vehicleware/cantp"
	"github.com/vehicleware/cantp/pkg/config"
)

// requireVcan skips the test unless a vcan0 interface is up, matching the
// teacher's socketcanv2/v3 test suites which assume the same.
func requireVcan(t *testing.T) {
	t.Helper()
	if _, err := net.InterfaceByName("vcan0"); err != nil {
		t.Skip("vcan0 not available:", err)
	}
}

func openTestDriver(t *testing.T) *Driver {
	t.Helper()
	requireVcan(t)
	d := &Driver{channels: make(map[cantp.ChannelID]*socket), logger: slog.Default()}
	err := d.OpenChannel("vcan0", &config.ChannelConfig{ReceiveOwn: true})
	require.NoError(t, err)
	t.Cleanup(func() { d.Shutdown() })
	return d
}

func TestOpenCloseChannel(t *testing.T) {
	d := openTestDriver(t)
	assert.Contains(t, d.OpenedChannels(), cantp.ChannelID("vcan0"))

	err := d.CloseChannel("vcan0")
	require.NoError(t, err)
	assert.NotContains(t, d.OpenedChannels(), cantp.ChannelID("vcan0"))
}

func TestCloseChannelNeverOpened(t *testing.T) {
	d := &Driver{channels: make(map[cantp.ChannelID]*socket), logger: slog.Default()}
	err := d.CloseChannel("vcan0")
	var notOpened *cantp.ChannelNotOpenedError
	assert.ErrorAs(t, err, &notOpened)
}

func TestTransmitReceiveRoundTrip(t *testing.T) {
	d := openTestDriver(t)

	msg := cantp.NewDataMessage("vcan0", cantp.StandardCanId(0x123), cantp.FrameClassic, []byte{1, 2, 3, 4})
	require.NoError(t, d.Transmit(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := d.Receive(ctx, "vcan0")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, uint16(0x123), got[0].ID.StandardID())
	assert.Equal(t, []byte{1, 2, 3, 4}, got[0].Data)
}

func TestReceiveTimeout(t *testing.T) {
	d := openTestDriver(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Receive(ctx, "vcan0")
	assert.Error(t, err)
}
