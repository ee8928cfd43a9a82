// Package config loads the bitrate timing table and builds per-channel
// configuration for device drivers that need neither, either, or both.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BitrateFileName is the fixed name a bitrate table is searched for under
// the install root named by EnvInstallRoot.
const BitrateFileName = "bitrate.cfg.yaml"

// EnvInstallRoot names the environment variable pointing at the directory
// BitrateFileName lives in. Falls back to the current working directory.
const EnvInstallRoot = "CANTP_HOME"

// Timing holds one nominal-bitrate entry's timing register fields. Fields
// unused by a given device family are left at their zero value; unknown
// keys in the YAML source are ignored by yaml's default unmarshal.
type Timing struct {
	Timing0 *uint8 `yaml:"timing0"`
	Timing1 *uint8 `yaml:"timing1"`
	Tseg1   *uint8 `yaml:"tseg1"`
	Tseg2   *uint8 `yaml:"tseg2"`
	Sjw     *uint8 `yaml:"sjw"`
	Smp     *uint8 `yaml:"smp"`
	Brp     *uint16 `yaml:"brp"`
}

// FamilyTable is one device family's nominal and optional data bitrate maps,
// keyed by bitrate string (e.g. "500000").
type FamilyTable struct {
	Clock       *uint32           `yaml:"clock"`
	Bitrate     map[string]Timing `yaml:"bitrate"`
	DataBitrate map[string]Timing `yaml:"data_bitrate"`
}

// BitrateTable is the parsed form of bitrate.cfg.yaml, keyed by device
// family.
type BitrateTable map[string]FamilyTable

// LoadBitrateTable resolves bitrate.cfg.yaml under EnvInstallRoot (or the
// working directory if unset) and parses it.
func LoadBitrateTable() (BitrateTable, error) {
	root := os.Getenv(EnvInstallRoot)
	if root == "" {
		root = "."
	}
	return LoadBitrateTableFrom(filepath.Join(root, BitrateFileName))
}

// LoadBitrateTableFrom parses path directly, bypassing the environment
// lookup; used by tests and by callers with an explicit path.
func LoadBitrateTableFrom(path string) (BitrateTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigInvalid, err)
	}
	var table BitrateTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigInvalid, err)
	}
	return table, nil
}

// Family returns the timing table for family, or ErrConfigInvalid if the
// device family is absent.
func (t BitrateTable) Family(family string) (FamilyTable, error) {
	entry, ok := t[family]
	if !ok {
		return FamilyTable{}, fmt.Errorf("%w: unknown device family %q", ErrConfigInvalid, family)
	}
	return entry, nil
}

// Timing looks up the timing fields for a nominal bitrate string within
// this family, returning ErrConfigInvalid if absent.
func (f FamilyTable) Timing(bitrate string) (Timing, error) {
	timing, ok := f.Bitrate[bitrate]
	if !ok {
		return Timing{}, fmt.Errorf("%w: unknown bitrate %q", ErrConfigInvalid, bitrate)
	}
	return timing, nil
}

// DataTiming looks up the FD data-phase timing fields for this family,
// returning ErrConfigInvalid if absent.
func (f FamilyTable) DataTiming(bitrate string) (Timing, error) {
	timing, ok := f.DataBitrate[bitrate]
	if !ok {
		return Timing{}, fmt.Errorf("%w: unknown data bitrate %q", ErrConfigInvalid, bitrate)
	}
	return timing, nil
}
