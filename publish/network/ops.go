package network

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"

	"github.com/urbit/urbit-token/publish"
	"github.com/urbit/urbit-token/publish/contracts"
	"github.com/urbit/urbit-token/publish/contracts/azimuth"
	"github.com/urbit/urbit-token/publish/contracts/ecliptic"
	"github.com/urbit/urbit-token/publish/contracts/planettoken"
	"github.com/urbit/urbit-token/publish/contracts/planettreasury"
	"github.com/urbit/urbit-token/publish/contracts/polls"
	"github.com/urbit/urbit-token/publish/keyring"
	"github.com/urbit/urbit-token/publish/points"
)

var (
	ErrNotOwnable   = errors.New("contract has no transferable ownership")
	ErrKeysNotSet   = errors.New("star has no networking keys")
	ErrDepleted     = errors.New("star has no planet capacity left")
	ErrNotDepleted  = errors.New("star still has planet capacity")
	ErrInvalidClaim = errors.New("claim attempts must be positive")
	ErrNotOwner     = errors.New("point is not owned by this account")
)

// TransferOwnership hands administrative ownership of kind to newOwner.
func (c *Client) TransferOwnership(ctx context.Context, kind contracts.Kind, newOwner common.Address) (*types.Receipt, error) {
	var (
		to common.Address
		fn *w3.Func
	)
	switch kind {
	case contracts.Azimuth:
		to, fn = c.addrs.Azimuth, azimuth.FuncTransferOwnership
	case contracts.Polls:
		to, fn = c.addrs.Polls, polls.FuncTransferOwnership
	case contracts.PlanetTreasury:
		to, fn = c.addrs.PlanetTreasury, planettreasury.FuncTransferOwnership
	default:
		return nil, fmt.Errorf("%v: %w", kind, ErrNotOwnable)
	}
	return c.send(ctx, "transferOwnership "+kind.String(), to, fn, newOwner)
}

func (c *Client) CreateGalaxy(ctx context.Context, galaxy uint8, owner common.Address) (*types.Receipt, error) {
	return c.send(ctx, "createGalaxy", c.addrs.Ecliptic, ecliptic.FuncCreateGalaxy, galaxy, owner)
}

func (c *Client) ConfigureKeys(ctx context.Context, p points.Point, keys keyring.Keys) (*types.Receipt, error) {
	return c.send(ctx, "configureKeys", c.addrs.Ecliptic, ecliptic.FuncConfigureKeys,
		uint32(p), keys.Encryption, keys.Authentication, keys.CryptoSuite, keys.Discontinuous)
}

func (c *Client) Spawn(ctx context.Context, p points.Point, to common.Address) (*types.Receipt, error) {
	return c.send(ctx, "spawn", c.addrs.Ecliptic, ecliptic.FuncSpawn, uint32(p), to)
}

// TokenRedemptionSpawn spawns planet p, paying with planet tokens instead of
// the star's capacity.
func (c *Client) TokenRedemptionSpawn(ctx context.Context, p points.Point) (*types.Receipt, error) {
	return c.send(ctx, "tokenRedemptionSpawn", c.addrs.Ecliptic, ecliptic.FuncTokenRedemptionSpawn, uint32(p))
}

// WithdrawCapacity converts star's unspawned planet capacity into tokens.
func (c *Client) WithdrawCapacity(ctx context.Context, star points.Point) (*types.Receipt, error) {
	return c.send(ctx, "withdrawCapacity", c.addrs.PlanetTreasury, planettreasury.FuncWithdrawCapacity, uint32(star))
}

func (c *Client) DepositCapacity(ctx context.Context, star points.Point) (*types.Receipt, error) {
	return c.send(ctx, "depositCapacity", c.addrs.PlanetTreasury, planettreasury.FuncDepositCapacity, uint32(star))
}

func (c *Client) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	return c.send(ctx, "approve", c.addrs.PlanetToken, planettoken.FuncApprove, spender, amount)
}

// Claim is a single attempt to take ownership of a free point.
type Claim func(ctx context.Context, p points.Point) error

// ClaimFree scans for the lowest free child of parent and claims it. If the
// claim reverts because someone else took the point between the scan and
// the transaction, it rescans and tries again, up to attempts times. Any
// other revert is returned at once.
func (c *Client) ClaimFree(ctx context.Context, parent points.Point, size points.Size, scanLimit, attempts int, claim Claim) (points.Point, error) {
	if attempts <= 0 {
		return 0, ErrInvalidClaim
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		candidate, err := points.FindFreePoint(ctx, c, parent, size, scanLimit)
		if err != nil {
			return 0, err
		}

		err = claim(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if !publish.IsRevert(err) {
			return 0, err
		}
		// Only a candidate someone else activated is a lost race.
		taken, activeErr := c.IsActive(ctx, candidate)
		if activeErr != nil || !taken {
			return 0, err
		}
		lastErr = err
		c.logger.Warn("claim reverted, rescanning",
			"parent", parent, "point", candidate, "attempt", attempt, "err", err)
	}
	return 0, fmt.Errorf("claim %s under %d: gave up after %d attempts: %w", size, parent, attempts, lastErr)
}

// SpawnFree spawns the lowest free child of parent to the given owner.
func (c *Client) SpawnFree(ctx context.Context, parent points.Point, size points.Size, to common.Address, scanLimit, attempts int) (points.Point, error) {
	return c.ClaimFree(ctx, parent, size, scanLimit, attempts, func(ctx context.Context, p points.Point) error {
		_, err := c.Spawn(ctx, p, to)
		return err
	})
}

// RedeemFree spawns the lowest free planet under star with planet tokens.
func (c *Client) RedeemFree(ctx context.Context, star points.Point, scanLimit, attempts int) (points.Point, error) {
	return c.ClaimFree(ctx, star, points.Planet, scanLimit, attempts, func(ctx context.Context, p points.Point) error {
		_, err := c.TokenRedemptionSpawn(ctx, p)
		return err
	})
}

// CheckCanSpawnPlanets enforces what a star needs before spawning planets
// from its own capacity: configured keys and capacity left.
func (c *Client) CheckCanSpawnPlanets(ctx context.Context, star points.Point) error {
	rev, err := c.KeyRevision(ctx, star)
	if err != nil {
		return err
	}
	if rev == 0 {
		return fmt.Errorf("%w: %d", ErrKeysNotSet, star)
	}
	depleted, err := c.IsDepleted(ctx, star)
	if err != nil {
		return err
	}
	if depleted {
		return fmt.Errorf("%w: %d", ErrDepleted, star)
	}
	return nil
}

// CheckCanRedeem allows token redemption only once a star is depleted.
func (c *Client) CheckCanRedeem(ctx context.Context, star points.Point) error {
	depleted, err := c.IsDepleted(ctx, star)
	if err != nil {
		return err
	}
	if !depleted {
		return fmt.Errorf("%w: %d", ErrNotDepleted, star)
	}
	return nil
}

// CheckOwner fails unless the client's account owns p.
func (c *Client) CheckOwner(ctx context.Context, p points.Point) error {
	owner, err := c.Owner(ctx, p)
	if err != nil {
		return err
	}
	if owner != c.Account() {
		return fmt.Errorf("%w: %d owned by %s", ErrNotOwner, p, owner.Hex())
	}
	return nil
}
