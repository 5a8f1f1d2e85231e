package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/urbit/urbit-token/publish/contracts"
	"github.com/urbit/urbit-token/publish/internal/chaintest"
	"github.com/urbit/urbit-token/publish/manifest"
	"github.com/urbit/urbit-token/publish/network"
	"github.com/urbit/urbit-token/publish/points"
)

// Hardhat's first development account.
const (
	devKey  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestParsePrivateKey(t *testing.T) {
	_, addr, err := parsePrivateKey(devKey)
	if err != nil {
		t.Fatal(err)
	}
	if addr != common.HexToAddress(devAddr) {
		t.Errorf("address = %s, want %s", addr.Hex(), devAddr)
	}
	if _, _, err := parsePrivateKey(strings.TrimPrefix(devKey, "0x")); err != nil {
		t.Errorf("key without prefix: %v", err)
	}
	if _, _, err := parsePrivateKey("0x1234"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestParseAddress(t *testing.T) {
	if _, err := parseAddress(" " + devAddr + " "); err != nil {
		t.Errorf("valid address: %v", err)
	}
	if _, err := parseAddress("0xnothex"); err == nil {
		t.Error("expected error for invalid address")
	}
}

func TestParseSpender(t *testing.T) {
	m := manifest.Manifest{
		Ecliptic:       common.HexToAddress("0x0000000000000000000000000000000000000a06"),
		PlanetTreasury: common.HexToAddress("0x0000000000000000000000000000000000000a04"),
	}
	tests := []struct {
		in   string
		want common.Address
	}{
		{"ecliptic", m.Ecliptic},
		{"Treasury", m.PlanetTreasury},
		{"planettreasury", m.PlanetTreasury},
		{devAddr, common.HexToAddress(devAddr)},
	}
	for _, tt := range tests {
		got, err := parseSpender(tt.in, m)
		if err != nil {
			t.Errorf("parseSpender(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSpender(%q) = %s, want %s", tt.in, got.Hex(), tt.want.Hex())
		}
	}
	if _, err := parseSpender("claims", m); err == nil {
		t.Error("expected error for unknown spender")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "json", false).Debug("hidden")
	newLogger(&buf, "json", false).Info("shown", "k", "v")
	line := strings.TrimSpace(buf.String())
	if strings.Contains(line, "hidden") {
		t.Error("debug record logged without verbose")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("json handler output %q: %v", line, err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	newLogger(&buf, "text", true).Debug("visible")
	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestCommandTree(t *testing.T) {
	want := []string{"deploy", "verify", "find-point", "spawn", "redeem", "keys", "capacity", "approve", "status"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, sub := range []string{"withdraw", "deposit"} {
		if cmd, _, err := rootCmd.Find([]string{"capacity", sub}); err != nil || cmd.Name() != sub {
			t.Errorf("capacity %s not registered", sub)
		}
	}
}

func testNetwork(t *testing.T) (*network.Client, *chaintest.Chain, common.Address) {
	t.Helper()
	account := common.HexToAddress(devAddr)
	m := manifest.Manifest{
		Azimuth:        common.HexToAddress("0x0000000000000000000000000000000000000a01"),
		Polls:          common.HexToAddress("0x0000000000000000000000000000000000000a02"),
		Claims:         common.HexToAddress("0x0000000000000000000000000000000000000a03"),
		PlanetTreasury: common.HexToAddress("0x0000000000000000000000000000000000000a04"),
		PlanetToken:    common.HexToAddress("0x0000000000000000000000000000000000000a05"),
		Ecliptic:       common.HexToAddress("0x0000000000000000000000000000000000000a06"),
	}
	chain := chaintest.New(account)
	chain.UseDeployment(map[contracts.Kind]common.Address{
		contracts.Azimuth:        m.Azimuth,
		contracts.Polls:          m.Polls,
		contracts.Claims:         m.Claims,
		contracts.PlanetTreasury: m.PlanetTreasury,
		contracts.PlanetToken:    m.PlanetToken,
		contracts.Ecliptic:       m.Ecliptic,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return network.New(chain, m, network.WithLogger(logger)), chain, account
}

func TestCollectStatus(t *testing.T) {
	net, chain, account := testNetwork(t)
	chain.Activate(0, account)
	chain.SetKeys(0, 1)
	chain.Activate(256, account)
	chain.SetDepleted(256, true)

	st, err := collectStatus(context.Background(), net, account, []points.Point{256, 512})
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Points) != 3 {
		t.Fatalf("points = %+v, want 0, 256 and 512", st.Points)
	}
	byPoint := map[points.Point]pointStatus{}
	for _, ps := range st.Points {
		byPoint[ps.Point] = ps
	}
	if ps := byPoint[0]; !ps.Active || ps.KeyRevision != 1 || ps.Depleted != nil {
		t.Errorf("galaxy 0 = %+v", ps)
	}
	if ps := byPoint[256]; !ps.Active || ps.Depleted == nil || !*ps.Depleted {
		t.Errorf("star 256 = %+v", ps)
	}
	if ps := byPoint[256]; ps.Unspawned != "0" {
		t.Errorf("depleted star unspawned = %q, want 0", ps.Unspawned)
	}
	if ps := byPoint[512]; ps.Active {
		t.Errorf("star 512 should be unspawned: %+v", ps)
	}
	if st.TotalSupply != "0" || st.Allowances[contracts.Ecliptic.String()] != "0" {
		t.Errorf("token figures = %+v", st)
	}

	out := renderStatus(st)
	for _, want := range []string{"Contracts", st.Manifest.Azimuth.Hex(), "galaxy 0", "keys rev 1", "depleted", "unspawned"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered status missing %q:\n%s", want, out)
		}
	}
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	malformed := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(malformed, []byte("genesis:\n  enabled: false\n   stars: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	valid := filepath.Join(dir, "valid.yaml")
	if err := os.WriteFile(valid, []byte("genesis:\n  enabled: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		file    string
		wantErr bool
	}{
		{"malformed explicit file", malformed, true},
		{"missing explicit file", filepath.Join(dir, "absent.yaml"), true},
		{"valid explicit file", valid, false},
		{"nothing discovered", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			err := readConfig(viper.New(), tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readConfig(%q) err = %v, wantErr %v", tt.file, err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigReportsConfigFileError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("genesis:\n  enabled: false\n   stars: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	viper.Reset()
	t.Cleanup(func() {
		viper.Reset()
		configErr = nil
	})

	configErr = readConfig(viper.GetViper(), path)
	if _, _, err := loadConfig(); err == nil {
		t.Fatal("loadConfig ignored a malformed config file")
	}
}
