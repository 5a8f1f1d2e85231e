// Package network performs typed operations against a deployed point
// network: the reads the dashboard shows and the transactions that spawn
// points, configure keys and move capacity tokens.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"

	"github.com/urbit/urbit-token/publish/manifest"
)

const DefaultConfirmTimeout = 5 * time.Minute

var ErrNotDeployed = errors.New("contract address not set")

// Chain is the execution client operations are issued through.
type Chain interface {
	Address() common.Address
	Transact(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (common.Hash, error)
	Call(ctx context.Context, to common.Address, fn *w3.Func, args []any, returns ...any) error
	WaitConfirmations(ctx context.Context, txHash common.Hash, n uint64) (*types.Receipt, error)
}

type Client struct {
	chain          Chain
	addrs          manifest.Manifest
	confirmations  uint64
	confirmTimeout time.Duration
	logger         *slog.Logger
}

type Option func(*Client)

// WithConfirmations sets how many confirmations every transaction waits for.
func WithConfirmations(n uint64) Option {
	return func(c *Client) {
		if n > 0 {
			c.confirmations = n
		}
	}
}

// WithConfirmTimeout bounds how long a submitted transaction is awaited.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.confirmTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(chain Chain, addrs manifest.Manifest, opts ...Option) *Client {
	c := &Client{
		chain:          chain,
		addrs:          addrs,
		confirmations:  1,
		confirmTimeout: DefaultConfirmTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Account is the address transactions are sent from.
func (c *Client) Account() common.Address {
	return c.chain.Address()
}

func (c *Client) Addresses() manifest.Manifest {
	return c.addrs
}

// Confirm waits for txHash on a context detached from ctx's cancellation: a
// transaction that has been submitted is always seen through, bounded only
// by the confirm timeout.
func (c *Client) Confirm(ctx context.Context, txHash common.Hash, n uint64) (*types.Receipt, error) {
	if n == 0 {
		n = c.confirmations
	}
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.confirmTimeout)
	defer cancel()
	return c.chain.WaitConfirmations(waitCtx, txHash, n)
}

// send issues one transaction and waits for it. It refuses to start once ctx
// is done.
func (c *Client) send(ctx context.Context, op string, to common.Address, fn *w3.Func, args ...any) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotDeployed)
	}

	txHash, err := c.chain.Transact(ctx, to, fn, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("transaction sent", "op", op, "to", to.Hex(), "tx", txHash.Hex())

	receipt, err := c.Confirm(ctx, txHash, c.confirmations)
	if err != nil {
		return receipt, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("transaction confirmed", "op", op, "tx", txHash.Hex(), "block", receipt.BlockNumber)
	return receipt, nil
}

func (c *Client) call(ctx context.Context, to common.Address, fn *w3.Func, args []any, returns ...any) error {
	if to == (common.Address{}) {
		return fmt.Errorf("%s: %w", fn.Signature, ErrNotDeployed)
	}
	return c.chain.Call(ctx, to, fn, args, returns...)
}
