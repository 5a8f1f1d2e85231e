package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/urbit/urbit-token/publish/internal/artifactstest"
)

func TestArtifactBytecode(t *testing.T) {
	dir := t.TempDir()
	code := []byte{0x60, 0x80, 0x60, 0x40}
	if err := artifactstest.WriteFixture(dir, "contracts/Azimuth.sol", "Azimuth", code); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir)
	got, err := store.Bytecode("contracts/Azimuth.sol", "Azimuth")
	if err != nil {
		t.Fatalf("Bytecode: %v", err)
	}
	if !bytes.Equal(got, code) {
		t.Errorf("bytecode = %x, want %x", got, code)
	}

	a, err := store.Artifact("contracts/Azimuth.sol", "Azimuth")
	if err != nil {
		t.Fatal(err)
	}
	if a.ContractName != "Azimuth" || a.SourceName != "contracts/Azimuth.sol" {
		t.Errorf("unexpected artifact %+v", a)
	}
}

func TestBuildInfo(t *testing.T) {
	dir := t.TempDir()
	if err := artifactstest.WriteFixture(dir, "contracts/Ecliptic.sol", "Ecliptic", []byte{0x01}); err != nil {
		t.Fatal(err)
	}

	bi, err := NewStore(dir).BuildInfo("contracts/Ecliptic.sol", "Ecliptic")
	if err != nil {
		t.Fatalf("BuildInfo: %v", err)
	}
	if bi.SolcLongVersion != "0.8.20+commit.a1b79de6" {
		t.Errorf("solcLongVersion = %q", bi.SolcLongVersion)
	}

	var input struct {
		Sources map[string]json.RawMessage `json:"sources"`
	}
	if err := json.Unmarshal(bi.Input, &input); err != nil {
		t.Fatal(err)
	}
	if _, ok := input.Sources["contracts/Ecliptic.sol"]; !ok {
		t.Errorf("sources = %v", input.Sources)
	}
}

func TestArtifactMissing(t *testing.T) {
	_, err := NewStore(t.TempDir()).Artifact("contracts/Polls.sol", "Polls")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestArtifactWithoutBytecode(t *testing.T) {
	dir := t.TempDir()
	if err := artifactstest.WriteFixture(dir, "contracts/IAzimuth.sol", "IAzimuth", nil); err != nil {
		t.Fatal(err)
	}
	_, err := NewStore(dir).Artifact("contracts/IAzimuth.sol", "IAzimuth")
	if !errors.Is(err, ErrNoBytecode) {
		t.Fatalf("err = %v, want ErrNoBytecode", err)
	}
}

func TestArtifactUnlinked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contracts", "Lib.sol")
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	blob := `{"contractName":"Uses","sourceName":"contracts/Lib.sol","bytecode":"0x01","linkReferences":{"contracts/Lib.sol":{}}}`
	if err := os.WriteFile(filepath.Join(path, "Uses.json"), []byte(blob), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewStore(dir).Artifact("contracts/Lib.sol", "Uses")
	if !errors.Is(err, ErrUnlinked) {
		t.Fatalf("err = %v, want ErrUnlinked", err)
	}
}
