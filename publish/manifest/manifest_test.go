package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func sample() Manifest {
	return Manifest{
		PlanetToken:    common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		PlanetTreasury: common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
		Azimuth:        common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"),
		Ecliptic:       common.HexToAddress("0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9"),
		Polls:          common.HexToAddress("0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9"),
		Claims:         common.HexToAddress("0x5FC8d32690cc91D4c39d9d3abcBD16989F875707"),
	}
}

func TestWriteCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui", "src", "contracts.json")

	if err := Write(path, sample()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != sample() {
		t.Errorf("read back %+v, want %+v", got, sample())
	}
}

func TestWriteIsByteIdentical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")

	if err := Write(path, sample()); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(path, sample()); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("manifest changed between writes:\n%s\n%s", first, second)
	}
}

func TestWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")
	if err := os.WriteFile(path, []byte(`{"stale":true,"padding":"`+strings.Repeat("x", 512)+`"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Write(path, sample()); err != nil {
		t.Fatal(err)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(blob), "stale") {
		t.Errorf("old content survived: %s", blob)
	}
}

func TestEncodeHasFixedKeys(t *testing.T) {
	blob, err := Encode(sample())
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]string
	if err := json.Unmarshal(blob, &raw); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"PLANET_TOKEN_ADDRESS",
		"PLANET_TREASURY_ADDRESS",
		"AZIMUTH_ADDRESS",
		"ECLIPTIC_ADDRESS",
		"POLLS_ADDRESS",
		"CLAIMS_ADDRESS",
	}
	if len(raw) != len(want) {
		t.Fatalf("keys = %v", raw)
	}
	for _, key := range want {
		v, ok := raw[key]
		if !ok {
			t.Errorf("missing key %s", key)
			continue
		}
		if !common.IsHexAddress(v) {
			t.Errorf("%s = %q is not a hex address", key, v)
		}
	}
	if !bytes.HasSuffix(blob, []byte("\n")) {
		t.Error("manifest should end with a newline")
	}
}

func TestValidate(t *testing.T) {
	if err := sample().Validate(); err != nil {
		t.Errorf("complete manifest: %v", err)
	}

	m := sample()
	m.Claims = common.Address{}
	err := m.Validate()
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("err = %v, want ErrIncomplete", err)
	}
	if !strings.Contains(err.Error(), "CLAIMS_ADDRESS") {
		t.Errorf("error should name the missing key: %v", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error")
	}
}

func TestEncodeUsesChecksumAddresses(t *testing.T) {
	blob, err := Encode(sample())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(blob), `"0x5FbDB2315678afecb367f032d93F642f64180aa3"`) {
		t.Errorf("expected checksummed token address in %s", blob)
	}
}
