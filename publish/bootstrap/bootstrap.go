// Package bootstrap deploys and initialises a point network: the contracts,
// their wiring, the address manifest, and a best-effort genesis of points
// and tokens followed by source verification.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/urbit/urbit-token/publish"
	"github.com/urbit/urbit-token/publish/config"
	"github.com/urbit/urbit-token/publish/contracts"
	"github.com/urbit/urbit-token/publish/contracts/azimuth"
	"github.com/urbit/urbit-token/publish/contracts/claims"
	"github.com/urbit/urbit-token/publish/contracts/ecliptic"
	"github.com/urbit/urbit-token/publish/contracts/planettoken"
	"github.com/urbit/urbit-token/publish/contracts/planettreasury"
	"github.com/urbit/urbit-token/publish/contracts/polls"
	"github.com/urbit/urbit-token/publish/keyring"
	"github.com/urbit/urbit-token/publish/manifest"
	"github.com/urbit/urbit-token/publish/network"
	"github.com/urbit/urbit-token/publish/verify"
)

var ErrTokenNotVisible = errors.New("treasury has not published its token")

// Backend is the execution client the orchestrator drives.
type Backend interface {
	network.Chain
	DeployContract(ctx context.Context, code []byte, gasLimit uint64) (publish.DeployResult, error)
}

// BytecodeSource supplies creation bytecode per contract.
type BytecodeSource interface {
	Bytecode(sourceName, contractName string) ([]byte, error)
}

type Verifier interface {
	Verify(ctx context.Context, req verify.Request) error
}

type Orchestrator struct {
	backend  Backend
	code     BytecodeSource
	cfg      config.Config
	keys     *keyring.Keyring
	verifier Verifier
	logger   *slog.Logger
}

type Option func(*Orchestrator)

func WithKeyring(kr *keyring.Keyring) Option {
	return func(o *Orchestrator) {
		if kr != nil {
			o.keys = kr
		}
	}
}

// WithVerifier enables the verification stage.
func WithVerifier(v Verifier) Option {
	return func(o *Orchestrator) {
		o.verifier = v
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func New(backend Backend, code BytecodeSource, cfg config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		code:    code,
		cfg:     cfg,
		keys:    keyring.Dev(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type stage struct {
	name     string
	required bool
	run      func(ctx context.Context, res *Result) error
}

func (o *Orchestrator) stages() []stage {
	stages := []stage{
		{name: "deploy-base", required: true, run: o.deployBase},
		{name: "deploy-treasury", required: true, run: o.deployTreasury},
		{name: "deploy-ecliptic", required: true, run: o.deployEcliptic},
		{name: "write-manifest", required: true, run: o.writeManifest},
		{name: "transfer-ownership", run: o.transferOwnership},
	}
	if o.cfg.Genesis.Enabled {
		stages = append(stages, stage{name: "genesis", run: o.genesis})
	}
	if o.cfg.Tokens.Enabled {
		stages = append(stages, stage{name: "token-operations", run: o.tokenOperations})
	}
	if o.verifier != nil {
		stages = append(stages, stage{name: "verify", run: o.verifyAll})
	}
	return stages
}

// Run executes the pipeline in order. A failing required stage or a
// cancellation stops the run with a *StageError; best-effort failures are
// logged and recorded in the Result. The Result is always returned.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	res := newResult()
	o.logger.Info("bootstrap starting", "account", o.backend.Address().Hex())

	for _, st := range o.stages() {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("bootstrap interrupted", "stage", st.name, "err", err)
			return res, &StageError{Stage: st.name, Err: err}
		}
		o.logger.Info("stage starting", "stage", st.name)
		err := st.run(ctx, res)
		if err != nil && st.required {
			o.logger.Error("stage failed", "stage", st.name, "err", err)
			return res, &StageError{Stage: st.name, Err: err}
		}
		// Best-effort stages skip their remaining operations on cancellation.
		if err := ctx.Err(); err != nil {
			o.logger.Warn("bootstrap interrupted", "stage", st.name, "err", err)
			return res, &StageError{Stage: st.name, Err: err}
		}
		o.logger.Info("stage done", "stage", st.name)
	}

	if failures := res.Failures(); len(failures) > 0 {
		o.logger.Warn("bootstrap finished with best-effort failures", "count", len(failures))
	} else {
		o.logger.Info("bootstrap finished")
	}
	return res, nil
}

func (o *Orchestrator) client(res *Result) *network.Client {
	return network.New(o.backend, res.Manifest(),
		network.WithConfirmations(o.cfg.Confirmations),
		network.WithConfirmTimeout(o.cfg.ConfirmTimeout),
		network.WithLogger(o.logger),
	)
}

// ConstructorArgs encodes the constructor arguments of kind for a network
// whose already known addresses are m. The token is created by the treasury
// and is encoded as verification services expect it.
func ConstructorArgs(kind contracts.Kind, m manifest.Manifest, deployer common.Address, pc config.PollsConfig) ([]byte, error) {
	switch kind {
	case contracts.Azimuth:
		return azimuth.EncodeConstructor()
	case contracts.Polls:
		return polls.EncodeConstructor(polls.ConstructorArgs{
			PollDuration: new(big.Int).SetUint64(pc.Duration),
			PollCooldown: new(big.Int).SetUint64(pc.Cooldown),
		})
	case contracts.Claims:
		return claims.EncodeConstructor(claims.ConstructorArgs{Azimuth: m.Azimuth})
	case contracts.PlanetTreasury:
		return planettreasury.EncodeConstructor(planettreasury.ConstructorArgs{Owner: deployer, Azimuth: m.Azimuth})
	case contracts.PlanetToken:
		return planettoken.EncodeConstructor(planettoken.ConstructorArgs{Owner: deployer})
	case contracts.Ecliptic:
		return ecliptic.EncodeConstructor(ecliptic.ConstructorArgs{
			Azimuth:        m.Azimuth,
			Polls:          m.Polls,
			Claims:         m.Claims,
			PlanetTreasury: m.PlanetTreasury,
			PlanetToken:    m.PlanetToken,
		})
	default:
		return nil, fmt.Errorf("no constructor for %v", kind)
	}
}

// FromManifest rebuilds the deployments of an existing network. Creation
// transactions are unknown and left zero.
func FromManifest(m manifest.Manifest, deployer common.Address, pc config.PollsConfig) (map[contracts.Kind]Deployment, error) {
	out := map[contracts.Kind]Deployment{}
	for _, kind := range contracts.Kinds() {
		args, err := ConstructorArgs(kind, m, deployer, pc)
		if err != nil {
			return nil, err
		}
		out[kind] = Deployment{Address: addressOf(m, kind), ConstructorArgs: args}
	}
	return out, nil
}

func addressOf(m manifest.Manifest, kind contracts.Kind) common.Address {
	switch kind {
	case contracts.Azimuth:
		return m.Azimuth
	case contracts.Polls:
		return m.Polls
	case contracts.Claims:
		return m.Claims
	case contracts.PlanetTreasury:
		return m.PlanetTreasury
	case contracts.PlanetToken:
		return m.PlanetToken
	case contracts.Ecliptic:
		return m.Ecliptic
	}
	return common.Address{}
}

// deploy sends the creation transaction for kind, with constructor
// arguments derived from what has been deployed so far, and waits for it
// before recording the deployment.
func (o *Orchestrator) deploy(ctx context.Context, res *Result, kind contracts.Kind) error {
	spec := kind.Spec()
	args, err := ConstructorArgs(kind, res.Manifest(), o.backend.Address(), o.cfg.Polls)
	if err != nil {
		return err
	}
	code, err := o.code.Bytecode(spec.SourceName, spec.Name)
	if err != nil {
		return fmt.Errorf("%s: %w", spec.Name, err)
	}
	data := make([]byte, 0, len(code)+len(args))
	data = append(data, code...)
	data = append(data, args...)

	sent, err := o.backend.DeployContract(ctx, data, spec.GasLimit)
	if err != nil {
		return fmt.Errorf("deploy %s: %w", spec.Name, err)
	}
	o.logger.Debug("deployment sent", "contract", spec.Name, "tx", sent.TxHash.Hex())

	if _, err := o.client(res).Confirm(ctx, sent.TxHash, o.cfg.Confirmations); err != nil {
		return fmt.Errorf("deploy %s: %w", spec.Name, err)
	}
	res.Deployments[kind] = Deployment{
		Address:         sent.ContractAddress,
		TxHash:          sent.TxHash,
		ConstructorArgs: args,
	}
	o.logger.Info("contract deployed", "contract", spec.Name, "address", sent.ContractAddress.Hex(), "tx", sent.TxHash.Hex())
	return nil
}

func (o *Orchestrator) deployBase(ctx context.Context, res *Result) error {
	for _, kind := range []contracts.Kind{contracts.Azimuth, contracts.Polls, contracts.Claims} {
		if err := o.deploy(ctx, res, kind); err != nil {
			return err
		}
	}
	return nil
}

// deployTreasury deploys the treasury and waits until the token it creates
// is readable, since Ecliptic needs that address.
func (o *Orchestrator) deployTreasury(ctx context.Context, res *Result) error {
	if err := o.deploy(ctx, res, contracts.PlanetTreasury); err != nil {
		return err
	}

	net := o.client(res)
	var (
		token   common.Address
		readErr error
	)
	err := publish.Poll(ctx, o.cfg.PollInterval, o.cfg.SettleTimeout, func(ctx context.Context) (bool, error) {
		addr, err := net.TreasuryToken(ctx)
		if err != nil {
			o.logger.Debug("planet token not readable yet", "err", err)
			readErr = err
			return false, nil
		}
		readErr = nil
		token = addr
		return addr != (common.Address{}), nil
	})
	if err != nil {
		if readErr != nil {
			return fmt.Errorf("%w: %v (last read: %w)", ErrTokenNotVisible, err, readErr)
		}
		return fmt.Errorf("%w: %v", ErrTokenNotVisible, err)
	}

	tokenArgs, err := ConstructorArgs(contracts.PlanetToken, res.Manifest(), o.backend.Address(), o.cfg.Polls)
	if err != nil {
		return err
	}
	res.Deployments[contracts.PlanetToken] = Deployment{
		Address:         token,
		TxHash:          res.Deployments[contracts.PlanetTreasury].TxHash,
		ConstructorArgs: tokenArgs,
	}
	o.logger.Info("contract deployed", "contract", contracts.PlanetToken.String(), "address", token.Hex(), "created_by", contracts.PlanetTreasury.String())
	return nil
}

func (o *Orchestrator) deployEcliptic(ctx context.Context, res *Result) error {
	return o.deploy(ctx, res, contracts.Ecliptic)
}

func (o *Orchestrator) writeManifest(_ context.Context, res *Result) error {
	m := res.Manifest()
	if err := m.Validate(); err != nil {
		return err
	}
	path := o.cfg.ManifestPath
	if path == "" {
		path = manifest.DefaultPath
	}
	if err := manifest.Write(path, m); err != nil {
		return err
	}
	o.logger.Info("manifest written", "path", path)
	return nil
}
