// Package manifest persists the deployed contract addresses in the flat JSON
// file the dashboard loads at startup.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultPath is where the dashboard expects the manifest, relative to the
// repository root.
const DefaultPath = "ui/src/contracts.json"

var ErrIncomplete = errors.New("manifest is missing addresses")

// Manifest maps logical contract names to addresses. Field order fixes the
// key order of the encoded file.
type Manifest struct {
	PlanetToken    common.Address `json:"PLANET_TOKEN_ADDRESS"`
	PlanetTreasury common.Address `json:"PLANET_TREASURY_ADDRESS"`
	Azimuth        common.Address `json:"AZIMUTH_ADDRESS"`
	Ecliptic       common.Address `json:"ECLIPTIC_ADDRESS"`
	Polls          common.Address `json:"POLLS_ADDRESS"`
	Claims         common.Address `json:"CLAIMS_ADDRESS"`
}

// checksummed is the on-disk form: EIP-55 addresses, as the dashboard
// displays them.
type checksummed struct {
	PlanetToken    string `json:"PLANET_TOKEN_ADDRESS"`
	PlanetTreasury string `json:"PLANET_TREASURY_ADDRESS"`
	Azimuth        string `json:"AZIMUTH_ADDRESS"`
	Ecliptic       string `json:"ECLIPTIC_ADDRESS"`
	Polls          string `json:"POLLS_ADDRESS"`
	Claims         string `json:"CLAIMS_ADDRESS"`
}

// Encode renders m as indented JSON with a trailing newline. Equal manifests
// always encode to identical bytes.
func Encode(m Manifest) ([]byte, error) {
	blob, err := json.MarshalIndent(checksummed{
		PlanetToken:    m.PlanetToken.Hex(),
		PlanetTreasury: m.PlanetTreasury.Hex(),
		Azimuth:        m.Azimuth.Hex(),
		Ecliptic:       m.Ecliptic.Hex(),
		Polls:          m.Polls.Hex(),
		Claims:         m.Claims.Hex(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(blob, '\n'), nil
}

// Write creates any missing parent directories and replaces the file at path
// with the encoded manifest.
func Write(path string, m Manifest) error {
	blob, err := Encode(m)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".contracts-*.json")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace manifest %s: %w", path, err)
	}
	return nil
}

func Read(path string) (Manifest, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(blob, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}

// Missing lists the keys whose address is zero.
func (m Manifest) Missing() []string {
	var missing []string
	check := func(key string, addr common.Address) {
		if addr == (common.Address{}) {
			missing = append(missing, key)
		}
	}
	check("PLANET_TOKEN_ADDRESS", m.PlanetToken)
	check("PLANET_TREASURY_ADDRESS", m.PlanetTreasury)
	check("AZIMUTH_ADDRESS", m.Azimuth)
	check("ECLIPTIC_ADDRESS", m.Ecliptic)
	check("POLLS_ADDRESS", m.Polls)
	check("CLAIMS_ADDRESS", m.Claims)
	return missing
}

// Validate fails with ErrIncomplete when any address is zero.
func (m Manifest) Validate() error {
	if missing := m.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrIncomplete, missing)
	}
	return nil
}
