// Package verify submits deployed contracts to a source verification
// service and waits for its verdict. Each contract is verified
// independently; a failure never affects other contracts or deployment state.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/urbit/urbit-token/publish"
	"github.com/urbit/urbit-token/publish/artifacts"
)

const (
	DefaultStatusTimeout = 3 * time.Minute
	DefaultPollInterval  = 5 * time.Second
)

var (
	ErrAlreadyVerified = errors.New("contract already verified")
	ErrNotConfigured   = errors.New("no verification service configured")
	ErrRejected        = errors.New("verification rejected")
)

// Request describes one deployed contract to verify.
type Request struct {
	SourceName       string
	ContractName     string
	Address          common.Address
	DeployTx         common.Hash
	ConstructorArgs  []byte
	MinConfirmations uint64
}

func (r Request) FullyQualifiedName() string {
	return r.SourceName + ":" + r.ContractName
}

// Submission is what a Service receives.
type Submission struct {
	ChainID           uint64
	Address           common.Address
	ContractName      string
	CompilerVersion   string
	StandardJSONInput json.RawMessage
	ConstructorArgs   []byte
	CreationTx        common.Hash
}

type State int

const (
	Pending State = iota
	Verified
	Failed
)

type Status struct {
	State  State
	Reason string
}

// Service is a source verification backend.
type Service interface {
	Name() string
	// Submit starts verification and returns a job identifier. It returns
	// ErrAlreadyVerified when there is nothing to do.
	Submit(ctx context.Context, sub Submission) (string, error)
	Status(ctx context.Context, job string) (Status, error)
}

type Confirmer interface {
	WaitConfirmations(ctx context.Context, txHash common.Hash, n uint64) (*types.Receipt, error)
}

type BuildInfoSource interface {
	BuildInfo(sourceName, contractName string) (*artifacts.BuildInfo, error)
}

// Error is a failed verification of one contract.
type Error struct {
	Contract string
	Address  common.Address
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verify %s at %s: %s: %v", e.Contract, e.Address.Hex(), e.Reason, e.Err)
	}
	return fmt.Sprintf("verify %s at %s: %s", e.Contract, e.Address.Hex(), e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Reporter struct {
	service       Service
	confirmer     Confirmer
	builds        BuildInfoSource
	chainID       uint64
	pollInterval  time.Duration
	statusTimeout time.Duration
	logger        *slog.Logger
}

type Option func(*Reporter)

func WithPollInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithStatusTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.statusTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewReporter(service Service, confirmer Confirmer, builds BuildInfoSource, chainID uint64, opts ...Option) *Reporter {
	r := &Reporter{
		service:       service,
		confirmer:     confirmer,
		builds:        builds,
		chainID:       chainID,
		pollInterval:  DefaultPollInterval,
		statusTimeout: DefaultStatusTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Verify submits req exactly once and waits for the service's verdict.
// Services need the deployment to have propagated, so the deploy transaction
// is first awaited to MinConfirmations.
func (r *Reporter) Verify(ctx context.Context, req Request) error {
	fail := func(reason string, err error) error {
		return &Error{Contract: req.ContractName, Address: req.Address, Reason: reason, Err: err}
	}
	if r == nil || r.service == nil {
		return fail("not submitted", ErrNotConfigured)
	}

	if req.MinConfirmations > 0 && req.DeployTx != (common.Hash{}) {
		if _, err := r.confirmer.WaitConfirmations(ctx, req.DeployTx, req.MinConfirmations); err != nil {
			return fail("waiting for confirmations", err)
		}
	}

	bi, err := r.builds.BuildInfo(req.SourceName, req.ContractName)
	if err != nil {
		return fail("loading build info", err)
	}

	job, err := r.service.Submit(ctx, Submission{
		ChainID:           r.chainID,
		Address:           req.Address,
		ContractName:      req.FullyQualifiedName(),
		CompilerVersion:   bi.SolcLongVersion,
		StandardJSONInput: bi.Input,
		ConstructorArgs:   req.ConstructorArgs,
		CreationTx:        req.DeployTx,
	})
	if errors.Is(err, ErrAlreadyVerified) {
		r.logger.Info("contract already verified", "contract", req.ContractName, "address", req.Address.Hex(), "service", r.service.Name())
		return nil
	}
	if err != nil {
		return fail("submission", err)
	}
	r.logger.Debug("verification submitted", "contract", req.ContractName, "service", r.service.Name(), "job", job)

	var final Status
	err = publish.Poll(ctx, r.pollInterval, r.statusTimeout, func(ctx context.Context) (bool, error) {
		status, err := r.service.Status(ctx, job)
		if err != nil {
			return false, err
		}
		final = status
		return status.State != Pending, nil
	})
	if err != nil {
		return fail("status", err)
	}
	if final.State == Failed {
		return fail(final.Reason, ErrRejected)
	}

	r.logger.Info("contract verified", "contract", req.ContractName, "address", req.Address.Hex(), "service", r.service.Name())
	return nil
}
