package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTable = `
zlgcan:
  clock: 60000000
  bitrate:
    "500000":
      tseg1: 13
      tseg2: 2
      sjw: 1
      brp: 6
    "250000":
      timing0: 0x00
      timing1: 0x1C
  data_bitrate:
    "2000000":
      tseg1: 4
      tseg2: 1
      sjw: 1
      brp: 1
`

func writeSampleTable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), BitrateFileName)
	require.NoError(t, os.WriteFile(path, []byte(sampleTable), 0o644))
	return path
}

func TestLoadBitrateTableFrom(t *testing.T) {
	path := writeSampleTable(t)
	table, err := LoadBitrateTableFrom(path)
	require.NoError(t, err)

	family, err := table.Family("zlgcan")
	require.NoError(t, err)
	assert.NotNil(t, family.Clock)
	assert.Equal(t, uint32(60000000), *family.Clock)

	timing, err := family.Timing("500000")
	require.NoError(t, err)
	require.NotNil(t, timing.Tseg1)
	assert.Equal(t, uint8(13), *timing.Tseg1)

	_, err = family.Timing("nonsense")
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestLoadBitrateTableUnknownFamily(t *testing.T) {
	path := writeSampleTable(t)
	table, err := LoadBitrateTableFrom(path)
	require.NoError(t, err)

	_, err = table.Family("kvaser")
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestLoadBitrateTableMissingFile(t *testing.T) {
	_, err := LoadBitrateTableFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigInvalid)
}
