package network

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/urbit/urbit-token/publish/contracts/azimuth"
	"github.com/urbit/urbit-token/publish/contracts/planettoken"
	"github.com/urbit/urbit-token/publish/contracts/planettreasury"
	"github.com/urbit/urbit-token/publish/points"
)

// IsActive reports whether p has been spawned. Client satisfies
// points.ActivityOracle.
func (c *Client) IsActive(ctx context.Context, p points.Point) (bool, error) {
	var active bool
	err := c.call(ctx, c.addrs.Azimuth, azimuth.FuncIsActive, []any{uint32(p)}, &active)
	return active, err
}

func (c *Client) Owner(ctx context.Context, p points.Point) (common.Address, error) {
	var owner common.Address
	err := c.call(ctx, c.addrs.Azimuth, azimuth.FuncGetOwner, []any{uint32(p)}, &owner)
	return owner, err
}

func (c *Client) OwnedPoints(ctx context.Context, owner common.Address) ([]points.Point, error) {
	var raw []uint32
	if err := c.call(ctx, c.addrs.Azimuth, azimuth.FuncGetOwnedPoints, []any{owner}, &raw); err != nil {
		return nil, err
	}
	out := make([]points.Point, len(raw))
	for i, p := range raw {
		out[i] = points.Point(p)
	}
	return out, nil
}

// KeyRevision is zero until keys have been configured for p.
func (c *Client) KeyRevision(ctx context.Context, p points.Point) (uint32, error) {
	var rev uint32
	err := c.call(ctx, c.addrs.Azimuth, azimuth.FuncGetKeyRevisionNumber, []any{uint32(p)}, &rev)
	return rev, err
}

// TreasuryToken reads the token address the treasury created in its
// constructor. It is zero until the treasury's state is queryable.
func (c *Client) TreasuryToken(ctx context.Context) (common.Address, error) {
	var token common.Address
	err := c.call(ctx, c.addrs.PlanetTreasury, planettreasury.FuncPlanetToken, nil, &token)
	return token, err
}

func (c *Client) TreasuryBalance(ctx context.Context) (*big.Int, error) {
	var balance *big.Int
	err := c.call(ctx, c.addrs.PlanetTreasury, planettreasury.FuncGetTreasuryBalance, nil, &balance)
	return balance, err
}

// IsDepleted reports whether star has used up its planet capacity.
func (c *Client) IsDepleted(ctx context.Context, star points.Point) (bool, error) {
	var depleted bool
	err := c.call(ctx, c.addrs.PlanetTreasury, planettreasury.FuncIsDepleted, []any{uint32(star)}, &depleted)
	return depleted, err
}

func (c *Client) UnspawnedCount(ctx context.Context, star points.Point) (*big.Int, error) {
	var count *big.Int
	err := c.call(ctx, c.addrs.PlanetTreasury, planettreasury.FuncGetUnspawnedCount, []any{uint32(star)}, &count)
	return count, err
}

func (c *Client) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	var balance *big.Int
	err := c.call(ctx, c.addrs.PlanetToken, planettoken.FuncBalanceOf, []any{owner}, &balance)
	return balance, err
}

func (c *Client) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var allowance *big.Int
	err := c.call(ctx, c.addrs.PlanetToken, planettoken.FuncAllowance, []any{owner, spender}, &allowance)
	return allowance, err
}

func (c *Client) TotalSupply(ctx context.Context) (*big.Int, error) {
	var supply *big.Int
	err := c.call(ctx, c.addrs.PlanetToken, planettoken.FuncTotalSupply, nil, &supply)
	return supply, err
}
