// Package config loads the host process's static configuration: the
// allowlist of peripheral UUID strings the central manager is allowed
// to connect to, plus a display name per entry (spec §6
// "Configuration").
package config

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// PeripheralEntry names one allowed peripheral.
type PeripheralEntry struct {
	UUIDString  string `cbor:"uuid"`
	DisplayName string `cbor:"name,omitempty"`
}

// Allowlist is the full set of peripherals the central manager may
// connect to.
type Allowlist struct {
	Peripherals []PeripheralEntry `cbor:"peripherals"`
}

// UUIDStrings returns the bare UUID strings, in file order, for
// CentralManager.Start.
func (a Allowlist) UUIDStrings() []string {
	out := make([]string, len(a.Peripherals))
	for i, p := range a.Peripherals {
		out[i] = p.UUIDString
	}
	return out
}

// Load reads and CBOR-decodes an allowlist file.
func Load(path string) (Allowlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, fmt.Errorf("config: read allowlist %s: %w", path, err)
	}
	var allowlist Allowlist
	if err := cbor.Unmarshal(data, &allowlist); err != nil {
		return Allowlist{}, fmt.Errorf("config: decode allowlist %s: %w", path, err)
	}
	if len(allowlist.Peripherals) == 0 {
		return Allowlist{}, fmt.Errorf("config: allowlist %s names no peripherals", path)
	}
	return allowlist, nil
}

// Save CBOR-encodes an allowlist to path, for tooling that generates
// one (e.g. a pairing/setup flow).
func Save(path string, allowlist Allowlist) error {
	data, err := cbor.Marshal(allowlist)
	if err != nil {
		return fmt.Errorf("config: encode allowlist: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write allowlist %s: %w", path, err)
	}
	return nil
}
