package bootstrap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"golang.org/x/sync/errgroup"

	"github.com/urbit/urbit-token/publish/contracts"
	"github.com/urbit/urbit-token/publish/network"
	"github.com/urbit/urbit-token/publish/points"
	"github.com/urbit/urbit-token/publish/verify"
)

// bestEffort runs fn and records its outcome. A failure is logged and
// reported to the caller, which decides what depends on it; it never stops
// the run.
func (o *Orchestrator) bestEffort(ctx context.Context, res *Result, stage, op, target string, fn func(context.Context) error) bool {
	if err := ctx.Err(); err != nil {
		o.skip(res, stage, op, target, err.Error())
		return false
	}
	if err := fn(ctx); err != nil {
		o.logger.Warn("operation failed (best-effort, continuing)", "stage", stage, "op", op, "target", target, "err", err)
		res.record(Step{Stage: stage, Op: op, Target: target, Status: StatusFailed, Error: err.Error()})
		return false
	}
	res.record(Step{Stage: stage, Op: op, Target: target, Status: StatusOK})
	return true
}

func (o *Orchestrator) skip(res *Result, stage, op, target, reason string) {
	o.logger.Info("operation skipped", "stage", stage, "op", op, "target", target, "reason", reason)
	res.record(Step{Stage: stage, Op: op, Target: target, Status: StatusSkipped, Error: reason})
}

// transferOwnership hands every ownable contract to Ecliptic. Each transfer
// is independent of the others.
func (o *Orchestrator) transferOwnership(ctx context.Context, res *Result) error {
	net := o.client(res)
	ecl := res.address(contracts.Ecliptic)
	for _, kind := range []contracts.Kind{contracts.Azimuth, contracts.Polls, contracts.PlanetTreasury} {
		o.bestEffort(ctx, res, "transfer-ownership", "transferOwnership", kind.String(), func(ctx context.Context) error {
			_, err := net.TransferOwnership(ctx, kind, ecl)
			return err
		})
	}
	return nil
}

func pointTarget(p points.Point) string {
	return "point " + p.String()
}

// genesis creates the root galaxy and a small tree of stars and planets
// below it. Steps are strictly sequential: a point's keys are configured
// only after its spawn is confirmed, and children are spawned only under a
// parent whose keys are set.
func (o *Orchestrator) genesis(ctx context.Context, res *Result) error {
	const stage = "genesis"
	net := o.client(res)
	g := o.cfg.Genesis
	galaxy := points.Point(g.Galaxy)
	me := o.backend.Address()

	created := o.bestEffort(ctx, res, stage, "createGalaxy", pointTarget(galaxy), func(ctx context.Context) error {
		active, err := net.IsActive(ctx, galaxy)
		if err != nil {
			return err
		}
		if active {
			o.logger.Info("galaxy already active", "point", galaxy)
			return nil
		}
		_, err = net.CreateGalaxy(ctx, g.Galaxy, me)
		return err
	})
	if !created {
		o.skip(res, stage, "configureKeys", pointTarget(galaxy), "createGalaxy failed")
		o.skip(res, stage, "spawn", "stars", "createGalaxy failed")
		return nil
	}
	res.spawned(galaxy)

	if !o.configureKeys(ctx, res, net, galaxy) {
		o.skip(res, stage, "spawn", "stars", "galaxy keys not configured")
		return nil
	}

	for i := 0; i < g.Stars; i++ {
		var star points.Point
		ok := o.bestEffort(ctx, res, stage, "spawn", fmt.Sprintf("star %d/%d under %d", i+1, g.Stars, galaxy), func(ctx context.Context) error {
			var err error
			star, err = net.SpawnFree(ctx, galaxy, points.Star, me, g.ScanLimit, g.ClaimAttempts)
			return err
		})
		if !ok {
			continue
		}
		res.spawned(star)
		o.logger.Info("star spawned", "point", star)

		if !o.configureKeys(ctx, res, net, star) {
			o.skip(res, stage, "spawn", "planets under "+star.String(), "star keys not configured")
			continue
		}
		o.spawnPlanets(ctx, res, net, star)
	}
	return nil
}

func (o *Orchestrator) spawnPlanets(ctx context.Context, res *Result, net *network.Client, star points.Point) {
	const stage = "genesis"
	g := o.cfg.Genesis
	if g.PlanetsPerStar == 0 {
		return
	}
	ok := o.bestEffort(ctx, res, stage, "checkCapacity", pointTarget(star), func(ctx context.Context) error {
		return net.CheckCanSpawnPlanets(ctx, star)
	})
	if !ok {
		o.skip(res, stage, "spawn", "planets under "+star.String(), "star cannot spawn planets")
		return
	}

	for j := 0; j < g.PlanetsPerStar; j++ {
		var planet points.Point
		ok := o.bestEffort(ctx, res, stage, "spawn", fmt.Sprintf("planet %d/%d under %d", j+1, g.PlanetsPerStar, star), func(ctx context.Context) error {
			var err error
			planet, err = net.SpawnFree(ctx, star, points.Planet, o.backend.Address(), g.ScanLimit, g.ClaimAttempts)
			return err
		})
		if !ok {
			continue
		}
		res.spawned(planet)
		o.logger.Info("planet spawned", "point", planet)
		if g.ConfigurePlanetKeys {
			o.configureKeys(ctx, res, net, planet)
		}
	}
}

func (o *Orchestrator) configureKeys(ctx context.Context, res *Result, net *network.Client, p points.Point) bool {
	return o.bestEffort(ctx, res, "genesis", "configureKeys", pointTarget(p), func(ctx context.Context) error {
		rev, err := net.KeyRevision(ctx, p)
		if err != nil {
			return err
		}
		if rev > 0 {
			o.logger.Info("keys already configured", "point", p, "revision", rev)
			return nil
		}
		keys, err := o.keys.For(p)
		if err != nil {
			return err
		}
		_, err = net.ConfigureKeys(ctx, p, keys)
		return err
	})
}

// ParseAmount accepts a decimal or 0x-prefixed token amount in base units,
// or "max" for the largest uint256.
func ParseAmount(v string) (*big.Int, error) {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "max") {
		return new(big.Int).Set(math.MaxBig256), nil
	}
	n, ok := math.ParseBig256(v)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid token amount %q", v)
	}
	return n, nil
}

// tokenOperations converts the first genesis star's capacity into planet
// tokens and approves Ecliptic and the treasury to spend them.
func (o *Orchestrator) tokenOperations(ctx context.Context, res *Result) error {
	const stage = "token-operations"
	net := o.client(res)

	var star points.Point
	found := false
	for _, p := range res.Spawned {
		if p.Size() == points.Star {
			star, found = p, true
			break
		}
	}
	if found {
		o.bestEffort(ctx, res, stage, "withdrawCapacity", pointTarget(star), func(ctx context.Context) error {
			_, err := net.WithdrawCapacity(ctx, star)
			return err
		})
	} else {
		o.skip(res, stage, "withdrawCapacity", "", "no genesis star")
	}

	amount, parseErr := ParseAmount(o.cfg.Tokens.ApproveAmount)
	for _, spender := range []contracts.Kind{contracts.Ecliptic, contracts.PlanetTreasury} {
		addr := res.address(spender)
		o.bestEffort(ctx, res, stage, "approve", spender.String(), func(ctx context.Context) error {
			if parseErr != nil {
				return parseErr
			}
			_, err := net.Approve(ctx, addr, amount)
			return err
		})
	}
	return nil
}

// Requests builds one verification request per deployed contract.
func Requests(deployments map[contracts.Kind]Deployment, minConfirmations uint64) []verify.Request {
	var reqs []verify.Request
	for _, kind := range contracts.Kinds() {
		d, ok := deployments[kind]
		if !ok || d.Address == (common.Address{}) {
			continue
		}
		spec := kind.Spec()
		reqs = append(reqs, verify.Request{
			SourceName:       spec.SourceName,
			ContractName:     spec.Name,
			Address:          d.Address,
			DeployTx:         d.TxHash,
			ConstructorArgs:  d.ConstructorArgs,
			MinConfirmations: minConfirmations,
		})
	}
	return reqs
}

// verifyAll submits every contract independently. A failure is logged and
// recorded; it never affects the other contracts.
func (o *Orchestrator) verifyAll(ctx context.Context, res *Result) error {
	limit := o.cfg.Verify.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, req := range Requests(res.Deployments, o.cfg.Verify.Confirmations) {
		g.Go(func() error {
			o.bestEffort(gctx, res, "verify", "verify", req.ContractName, func(ctx context.Context) error {
				return o.verifier.Verify(ctx, req)
			})
			return nil
		})
	}
	return g.Wait()
}
