package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/spf13/viper"

	"github.com/urbit/urbit-token/publish/artifacts"
	"github.com/urbit/urbit-token/publish/config"
	"github.com/urbit/urbit-token/publish/contracts"
	"github.com/urbit/urbit-token/publish/contracts/ecliptic"
	"github.com/urbit/urbit-token/publish/internal/artifactstest"
	"github.com/urbit/urbit-token/publish/internal/chaintest"
	"github.com/urbit/urbit-token/publish/manifest"
	"github.com/urbit/urbit-token/publish/points"
	"github.com/urbit/urbit-token/publish/verify"
)

var deployer = common.HexToAddress("0x00000000000000000000000000000000000d0001")

type harness struct {
	chain        *chaintest.Chain
	cfg          config.Config
	store        *artifacts.Store
	manifestPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	artifactsDir := filepath.Join(dir, "artifacts")
	for _, kind := range contracts.Kinds() {
		spec := kind.Spec()
		if !spec.Deployed() {
			continue
		}
		if err := artifactstest.WriteFixture(artifactsDir, spec.SourceName, spec.Name, chaintest.Bytecode(spec.Name)); err != nil {
			t.Fatal(err)
		}
	}

	cfg, err := config.LoadFrom(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	cfg.ManifestPath = filepath.Join(dir, "ui", "src", "contracts.json")
	cfg.PollInterval = time.Millisecond
	cfg.SettleTimeout = time.Second

	chain := chaintest.New(deployer)
	chain.TokenDelay = 2

	return &harness{
		chain:        chain,
		cfg:          cfg,
		store:        artifacts.NewStore(artifactsDir),
		manifestPath: cfg.ManifestPath,
	}
}

func (h *harness) run(ctx context.Context, opts ...Option) (*Result, error) {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(h.chain, h.store, h.cfg, opts...).Run(ctx)
}

func indexOf(events []chaintest.Event, match func(chaintest.Event) bool) int {
	for i, ev := range events {
		if match(ev) {
			return i
		}
	}
	return -1
}

func TestRunEndToEnd(t *testing.T) {
	h := newHarness(t)
	res, err := h.run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f := res.Failures(); len(f) != 0 {
		t.Fatalf("unexpected failures: %+v", f)
	}

	written, err := manifest.Read(h.manifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if written != res.Manifest() {
		t.Errorf("manifest on disk %+v != result %+v", written, res.Manifest())
	}
	if err := written.Validate(); err != nil {
		t.Error(err)
	}
	for _, kind := range contracts.Kinds() {
		if got, want := res.Deployments[kind].Address, h.chain.AddressOf(kind); got != want {
			t.Errorf("%v address = %s, chain has %s", kind, got.Hex(), want.Hex())
		}
	}

	wantArgs, _ := ecliptic.EncodeConstructor(ecliptic.ConstructorArgs{
		Azimuth:        written.Azimuth,
		Polls:          written.Polls,
		Claims:         written.Claims,
		PlanetTreasury: written.PlanetTreasury,
		PlanetToken:    written.PlanetToken,
	})
	if !bytes.Equal(h.chain.ConstructorArgs(contracts.Ecliptic), wantArgs) {
		t.Error("Ecliptic was not wired to the deployed addresses")
	}

	for _, kind := range []contracts.Kind{contracts.Azimuth, contracts.Polls, contracts.PlanetTreasury} {
		if owner := h.chain.ContractOwner(res.Deployments[kind].Address); owner != written.Ecliptic {
			t.Errorf("%v owned by %s, want Ecliptic", kind, owner.Hex())
		}
	}

	want := []points.Point{0, 256, 65792, 131328, 196864}
	if len(res.Spawned) != len(want) {
		t.Fatalf("spawned %v, want %v", res.Spawned, want)
	}
	for i := range want {
		if res.Spawned[i] != want[i] {
			t.Errorf("spawned[%d] = %d, want %d", i, res.Spawned[i], want[i])
		}
	}
	for _, p := range []points.Point{0, 256} {
		if h.chain.KeyRevision(p) != 1 {
			t.Errorf("point %d key revision = %d", p, h.chain.KeyRevision(p))
		}
	}

	if got := h.chain.Allowance(deployer, written.Ecliptic); got.Cmp(math.MaxBig256) != 0 {
		t.Errorf("ecliptic allowance = %s", got)
	}
	if got := h.chain.Allowance(deployer, written.PlanetTreasury); got.Cmp(math.MaxBig256) != 0 {
		t.Errorf("treasury allowance = %s", got)
	}
}

func TestRootActiveOnlyAfterCreate(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run(context.Background()); err != nil {
		t.Fatal(err)
	}

	events := h.chain.Events()
	created := indexOf(events, func(ev chaintest.Event) bool {
		return ev.Op == chaintest.OpConfirm && ev.Method == "createGalaxy"
	})
	if created < 0 {
		t.Fatal("createGalaxy never confirmed")
	}
	sawActive := false
	for i, ev := range events {
		if ev.Op != chaintest.OpCall || ev.Method != "isActive" || ev.Point != 0 {
			continue
		}
		if i < created && ev.Result {
			t.Errorf("point 0 active before createGalaxy (event %d)", i)
		}
		if i > created && ev.Result {
			sawActive = true
		}
	}
	if !sawActive {
		t.Error("point 0 never observed active after createGalaxy")
	}
}

func TestKeysConfiguredOnlyAfterSpawnConfirmed(t *testing.T) {
	h := newHarness(t)
	h.cfg.Genesis.Stars = 2
	h.cfg.Genesis.ConfigurePlanetKeys = true
	if _, err := h.run(context.Background()); err != nil {
		t.Fatal(err)
	}

	events := h.chain.Events()
	keyed := 0
	for i, ev := range events {
		if ev.Op != chaintest.OpSend || ev.Method != "configureKeys" {
			continue
		}
		keyed++
		spawned := indexOf(events[:i], func(prev chaintest.Event) bool {
			return prev.Op == chaintest.OpConfirm && prev.Point == ev.Point &&
				(prev.Method == "spawn" || prev.Method == "createGalaxy")
		})
		if spawned < 0 {
			t.Errorf("keys for %d sent before its spawn was confirmed", ev.Point)
		}
	}
	// galaxy, two stars, three planets each
	if keyed != 1+2+6 {
		t.Errorf("configured keys %d times, want 9", keyed)
	}
}

func TestOwnershipTransfersAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.chain.Fail = func(method string, to common.Address, _ []any) error {
		if method == "transferOwnership" && to == h.chain.AddressOf(contracts.Polls) {
			return errors.New("polls owner rejected")
		}
		return nil
	}

	res, err := h.run(context.Background())
	if err != nil {
		t.Fatalf("a best-effort failure must not fail the run: %v", err)
	}
	m := res.Manifest()
	if h.chain.ContractOwner(m.Azimuth) != m.Ecliptic {
		t.Error("azimuth transfer should succeed")
	}
	if h.chain.ContractOwner(m.PlanetTreasury) != m.Ecliptic {
		t.Error("treasury transfer should still be attempted after polls failed")
	}
	if h.chain.ContractOwner(m.Polls) != deployer {
		t.Error("polls should remain with the deployer")
	}

	failures := res.Failures()
	if len(failures) != 1 || failures[0].Op != "transferOwnership" || failures[0].Target != "Polls" {
		t.Fatalf("failures = %+v", failures)
	}
}

func TestRequiredFailureKeepsPartialResult(t *testing.T) {
	h := newHarness(t)
	h.chain.Fail = func(method string, _ common.Address, _ []any) error {
		if method == "deploy Ecliptic" {
			return errors.New("out of gas")
		}
		return nil
	}

	res, err := h.run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "deploy-ecliptic" {
		t.Fatalf("err = %v, want deploy-ecliptic stage error", err)
	}
	for _, kind := range []contracts.Kind{contracts.Azimuth, contracts.Polls, contracts.Claims, contracts.PlanetTreasury, contracts.PlanetToken} {
		if _, ok := res.Deployments[kind]; !ok {
			t.Errorf("partial result lost %v", kind)
		}
	}
	if _, ok := res.Deployments[contracts.Ecliptic]; ok {
		t.Error("ecliptic should not be recorded")
	}
	if _, err := os.Stat(h.manifestPath); !os.IsNotExist(err) {
		t.Errorf("manifest should not be written, stat err = %v", err)
	}
	for _, ev := range h.chain.Events() {
		if ev.Op == chaintest.OpSend {
			t.Errorf("no transaction should follow a required failure, saw %s", ev.Method)
		}
	}
}

func TestTokenNeverVisible(t *testing.T) {
	h := newHarness(t)
	h.chain.TokenDelay = 1 << 30
	h.cfg.SettleTimeout = 20 * time.Millisecond

	res, err := h.run(context.Background())
	if !errors.Is(err, ErrTokenNotVisible) {
		t.Fatalf("err = %v, want ErrTokenNotVisible", err)
	}
	if _, ok := res.Deployments[contracts.PlanetTreasury]; !ok {
		t.Error("treasury deployment should be kept")
	}
}

func TestTokenReadErrorIsReported(t *testing.T) {
	h := newHarness(t)
	h.cfg.SettleTimeout = 20 * time.Millisecond
	abiMismatch := errors.New("execution reverted: unknown selector")
	h.chain.FailCall = func(method string, _ common.Address, _ []any) error {
		if method == "planetToken" {
			return abiMismatch
		}
		return nil
	}

	_, err := h.run(context.Background())
	if !errors.Is(err, ErrTokenNotVisible) {
		t.Fatalf("err = %v, want ErrTokenNotVisible", err)
	}
	if !errors.Is(err, abiMismatch) {
		t.Errorf("err = %v, want the last read error wrapped", err)
	}
}

func TestManifestWrittenBeforeBestEffortStages(t *testing.T) {
	h := newHarness(t)
	var manifestSeen bool
	h.chain.BeforeSend = func(_ *chaintest.Chain, method string, _ []any) {
		if method == "transferOwnership" && !manifestSeen {
			_, err := os.Stat(h.manifestPath)
			manifestSeen = err == nil
		}
	}
	h.chain.Fail = func(method string, _ common.Address, _ []any) error {
		if method == "createGalaxy" {
			return errors.New("boom")
		}
		return nil
	}

	res, err := h.run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !manifestSeen {
		t.Error("manifest was not on disk when ownership transfers began")
	}

	statuses := map[string]Status{}
	for _, s := range res.Steps {
		if s.Stage == "genesis" {
			statuses[s.Op+" "+s.Target] = s.Status
		}
	}
	if statuses["createGalaxy point 0"] != StatusFailed {
		t.Errorf("createGalaxy status = %q", statuses["createGalaxy point 0"])
	}
	if statuses["configureKeys point 0"] != StatusSkipped {
		t.Errorf("dependent configureKeys status = %q", statuses["configureKeys point 0"])
	}
	for _, ev := range h.chain.Events() {
		if ev.Op == chaintest.OpSend && (ev.Method == "spawn" || ev.Method == "configureKeys") {
			t.Errorf("%s sent although the galaxy was never created", ev.Method)
		}
	}
}

func TestStarKeyFailureSkipsItsPlanets(t *testing.T) {
	h := newHarness(t)
	h.chain.Fail = func(method string, _ common.Address, args []any) error {
		if method == "configureKeys" && args[0].(uint32) == 256 {
			return errors.New("keys rejected")
		}
		return nil
	}

	res, err := h.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range h.chain.Events() {
		if ev.Op == chaintest.OpSend && ev.Method == "spawn" && points.Point(ev.Point).Size() == points.Planet {
			t.Errorf("planet %d spawned under a star without keys", ev.Point)
		}
	}
	var skipped bool
	for _, s := range res.Failures() {
		if s.Status == StatusSkipped && s.Target == "planets under 256" {
			skipped = true
		}
	}
	if !skipped {
		t.Errorf("planet spawning not recorded as skipped: %+v", res.Failures())
	}
}

func TestCancellationAwaitsSubmittedTransaction(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.chain.BeforeSend = func(_ *chaintest.Chain, method string, _ []any) {
		if method == "spawn" {
			cancel()
		}
	}

	res, err := h.run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	events := h.chain.Events()
	spawnConfirmed := indexOf(events, func(ev chaintest.Event) bool {
		return ev.Op == chaintest.OpConfirm && ev.Method == "spawn" && ev.Point == 256
	})
	if spawnConfirmed < 0 {
		t.Fatal("submitted spawn was abandoned")
	}
	for _, ev := range events[spawnConfirmed+1:] {
		if ev.Op == chaintest.OpSend {
			t.Errorf("%s sent after cancellation", ev.Method)
		}
	}
	if _, err := manifest.Read(h.manifestPath); err != nil {
		t.Errorf("manifest from before cancellation should remain: %v", err)
	}
	if len(res.Spawned) != 2 {
		t.Errorf("spawned = %v, want galaxy and the awaited star", res.Spawned)
	}
}

func TestCancellationDuringLastStageFailsRun(t *testing.T) {
	h := newHarness(t)
	h.cfg.Tokens.Enabled = false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.chain.BeforeSend = func(_ *chaintest.Chain, method string, _ []any) {
		if method == "spawn" {
			cancel()
		}
	}

	res, err := h.run(ctx)
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("err = %v, want *StageError", err)
	}
	if stageErr.Stage != "genesis" || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want genesis cancelled", err)
	}
	skipped := 0
	for _, step := range res.Failures() {
		if step.Status == StatusSkipped {
			skipped++
		}
	}
	if skipped == 0 {
		t.Error("operations after the cancellation should be recorded as skipped")
	}
}

type recordingVerifier struct {
	mu   sync.Mutex
	reqs map[string]verify.Request
	fail string
}

func (v *recordingVerifier) Verify(_ context.Context, req verify.Request) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reqs[req.ContractName] = req
	if req.ContractName == v.fail {
		return &verify.Error{Contract: req.ContractName, Reason: "bytecode mismatch"}
	}
	return nil
}

func TestVerificationIsPerContract(t *testing.T) {
	h := newHarness(t)
	h.cfg.Verify.Concurrency = 3
	v := &recordingVerifier{reqs: map[string]verify.Request{}, fail: "Claims"}

	res, err := h.run(context.Background(), WithVerifier(v))
	if err != nil {
		t.Fatal(err)
	}
	if len(v.reqs) != len(contracts.Kinds()) {
		t.Fatalf("verified %d contracts, want %d", len(v.reqs), len(contracts.Kinds()))
	}

	var failed []string
	for _, s := range res.Failures() {
		if s.Stage == "verify" {
			failed = append(failed, s.Target)
		}
	}
	if len(failed) != 1 || failed[0] != "Claims" {
		t.Errorf("verify failures = %v, want [Claims]", failed)
	}

	token := v.reqs["PlanetToken"]
	if token.DeployTx != res.Deployments[contracts.PlanetTreasury].TxHash {
		t.Error("token should be verified against the treasury's creation tx")
	}
	if token.MinConfirmations != 5 {
		t.Errorf("min confirmations = %d, want 5", token.MinConfirmations)
	}
	if v.reqs["Ecliptic"].SourceName != "contracts/Ecliptic.sol" {
		t.Errorf("source name = %q", v.reqs["Ecliptic"].SourceName)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"max", math.MaxBig256.String(), false},
		{" MAX ", math.MaxBig256.String(), false},
		{"1000000000000000000", "1000000000000000000", false},
		{"0x10", "16", false},
		{"-1", "", true},
		{"lots", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFromManifestMatchesDeployment(t *testing.T) {
	h := newHarness(t)
	res, err := h.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	rebuilt, err := FromManifest(res.Manifest(), deployer, h.cfg.Polls)
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range contracts.Kinds() {
		got, want := rebuilt[kind], res.Deployments[kind]
		if got.Address != want.Address {
			t.Errorf("%v: address %s, want %s", kind, got.Address.Hex(), want.Address.Hex())
		}
		if !bytes.Equal(got.ConstructorArgs, want.ConstructorArgs) {
			t.Errorf("%v: constructor args %x, want %x", kind, got.ConstructorArgs, want.ConstructorArgs)
		}
		if got.TxHash != (common.Hash{}) {
			t.Errorf("%v: tx hash should be unknown", kind)
		}
	}
}
