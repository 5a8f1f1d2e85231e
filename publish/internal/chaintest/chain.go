// Package chaintest is an in-memory point network for tests. It implements
// the execution client interfaces of the network and bootstrap packages,
// keeps point, ownership and token state the way the contracts do, and
// records every operation so tests can assert on ordering.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"

	"github.com/urbit/urbit-token/publish"
	"github.com/urbit/urbit-token/publish/contracts"
	"github.com/urbit/urbit-token/publish/contracts/azimuth"
	"github.com/urbit/urbit-token/publish/contracts/ecliptic"
	"github.com/urbit/urbit-token/publish/contracts/planettoken"
	"github.com/urbit/urbit-token/publish/contracts/planettreasury"
	"github.com/urbit/urbit-token/publish/contracts/polls"
	"github.com/urbit/urbit-token/publish/points"
)

// PlanetsPerStar is the capacity a star converts into tokens on withdrawal.
const PlanetsPerStar = 10

var oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Op names the kind of a recorded event.
type Op string

const (
	OpDeploy  Op = "deploy"
	OpSend    Op = "send"
	OpConfirm Op = "confirm"
	OpCall    Op = "call"
)

// Event is one recorded interaction.
type Event struct {
	Op     Op
	Method string
	To     common.Address
	Point  uint32
	Tx     common.Hash
	// Result holds the boolean answer of isActive calls.
	Result bool
}

type tx struct {
	method string
	point  uint32
	block  uint64
}

// Bytecode is the fake creation code used for contract name in artifacts.
// Deployments are recognised by this prefix.
func Bytecode(name string) []byte {
	return []byte("chaintest:" + name + ":")
}

// Chain is safe for concurrent use.
type Chain struct {
	mu sync.Mutex

	account common.Address
	nonce   uint64
	block   uint64
	txs     map[common.Hash]tx

	byKind     map[contracts.Kind]common.Address
	kindOf     map[common.Address]contracts.Kind
	deployArgs map[contracts.Kind][]byte
	owners     map[common.Address]common.Address

	active   map[uint32]bool
	pointOwn map[uint32]common.Address
	keyRev   map[uint32]uint32
	depleted map[uint32]bool

	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	totalSupply *big.Int

	tokenQueries int
	events       []Event

	// TokenDelay is how many planetToken() reads answer the zero address
	// before the token becomes visible.
	TokenDelay int

	// Fail, when set, is consulted before every transaction and deployment.
	// A non-nil error fails the operation.
	Fail func(method string, to common.Address, args []any) error

	// FailCall is the read-only counterpart of Fail.
	FailCall func(method string, to common.Address, args []any) error

	// BeforeSend runs before a transaction is applied, outside the lock. It
	// can mutate the chain to simulate a competing account.
	BeforeSend func(c *Chain, method string, args []any)
}

func New(account common.Address) *Chain {
	return &Chain{
		account:     account,
		txs:         map[common.Hash]tx{},
		byKind:      map[contracts.Kind]common.Address{},
		kindOf:      map[common.Address]contracts.Kind{},
		deployArgs:  map[contracts.Kind][]byte{},
		owners:      map[common.Address]common.Address{},
		active:      map[uint32]bool{},
		pointOwn:    map[uint32]common.Address{},
		keyRev:      map[uint32]uint32{},
		depleted:    map[uint32]bool{},
		balances:    map[common.Address]*big.Int{},
		allowances:  map[common.Address]map[common.Address]*big.Int{},
		totalSupply: new(big.Int),
	}
}

func (c *Chain) Address() common.Address {
	return c.account
}

// Events returns a copy of the recorded events.
func (c *Chain) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *Chain) AddressOf(kind contracts.Kind) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byKind[kind]
}

// ConstructorArgs returns the bytes deployed after the bytecode of kind.
func (c *Chain) ConstructorArgs(kind contracts.Kind) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deployArgs[kind]
}

// ContractOwner is the administrative owner of an ownable contract.
func (c *Chain) ContractOwner(addr common.Address) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owners[addr]
}

func (c *Chain) PointOwner(p points.Point) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pointOwn[uint32(p)]
}

func (c *Chain) KeyRevision(p points.Point) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyRev[uint32(p)]
}

func (c *Chain) Allowance(owner, spender common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a := c.allowances[owner][spender]; a != nil {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Activate marks p spawned by owner, as if another account had spawned it.
func (c *Chain) Activate(p points.Point, owner common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[uint32(p)] = true
	c.pointOwn[uint32(p)] = owner
}

// SetKeys sets a key revision for p without a transaction.
func (c *Chain) SetKeys(p points.Point, rev uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyRev[uint32(p)] = rev
}

func (c *Chain) SetDepleted(star points.Point, depleted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depleted[uint32(star)] = depleted
}

// UseDeployment registers addresses for an already deployed network whose
// Azimuth is owned by its Ecliptic.
func (c *Chain) UseDeployment(addrs map[contracts.Kind]common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for kind, addr := range addrs {
		c.byKind[kind] = addr
		c.kindOf[addr] = kind
		c.owners[addr] = c.account
	}
	if az, ok := c.byKind[contracts.Azimuth]; ok {
		if ec, ok := c.byKind[contracts.Ecliptic]; ok {
			c.owners[az] = ec
		}
	}
}

func revert(format string, args ...any) error {
	return fmt.Errorf("%w: %s", publish.ErrReverted, fmt.Sprintf(format, args...))
}

func (c *Chain) newTx(method string, point uint32) common.Hash {
	c.block++
	h := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s/%d/%d", method, point, c.block)))
	c.txs[h] = tx{method: method, point: point, block: c.block}
	return h
}

func (c *Chain) DeployContract(ctx context.Context, code []byte, gasLimit uint64) (publish.DeployResult, error) {
	if err := ctx.Err(); err != nil {
		return publish.DeployResult{}, err
	}
	kind, args, ok := identify(code)
	if !ok {
		return publish.DeployResult{}, errors.New("chaintest: unknown bytecode")
	}
	if c.Fail != nil {
		if err := c.Fail("deploy "+kind.String(), common.Address{}, nil); err != nil {
			return publish.DeployResult{}, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	addr := crypto.CreateAddress(c.account, c.nonce)
	c.nonce++
	c.byKind[kind] = addr
	c.kindOf[addr] = kind
	c.deployArgs[kind] = append([]byte(nil), args...)
	c.owners[addr] = c.account
	if kind == contracts.PlanetTreasury {
		token := crypto.CreateAddress(addr, 1)
		c.byKind[contracts.PlanetToken] = token
		c.kindOf[token] = contracts.PlanetToken
	}
	h := c.newTx("deploy "+kind.String(), 0)
	c.events = append(c.events, Event{Op: OpDeploy, Method: kind.String(), To: addr, Tx: h})
	return publish.DeployResult{TxHash: h, ContractAddress: addr}, nil
}

func identify(code []byte) (contracts.Kind, []byte, bool) {
	for _, k := range contracts.Kinds() {
		prefix := Bytecode(k.Spec().Name)
		if bytes.HasPrefix(code, prefix) {
			return k, code[len(prefix):], true
		}
	}
	return 0, nil, false
}

func (c *Chain) Transact(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	method := methodName(fn)
	if c.Fail != nil {
		if err := c.Fail(method, to, args); err != nil {
			return common.Hash{}, err
		}
	}
	if c.BeforeSend != nil {
		c.BeforeSend(c, method, args)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	point := pointArg(args)
	c.events = append(c.events, Event{Op: OpSend, Method: method, To: to, Point: point})
	if err := c.apply(to, fn, args); err != nil {
		return common.Hash{}, fmt.Errorf("%s: estimate gas: %w", fn.Signature, err)
	}
	h := c.newTx(method, point)
	c.events[len(c.events)-1].Tx = h
	return h, nil
}

func (c *Chain) apply(to common.Address, fn *w3.Func, args []any) error {
	kind, ok := c.kindOf[to]
	if !ok {
		return revert("no contract at %s", to.Hex())
	}
	sender := c.account

	switch fn {
	case azimuth.FuncTransferOwnership, polls.FuncTransferOwnership, planettreasury.FuncTransferOwnership:
		if c.owners[to] != sender {
			return revert("%s: caller is not the owner", kind)
		}
		c.owners[to] = args[0].(common.Address)

	case ecliptic.FuncCreateGalaxy:
		g := uint32(args[0].(uint8))
		if c.active[g] {
			return revert("galaxy %d already active", g)
		}
		if err := c.requireEclipticOwnsAzimuth(); err != nil {
			return err
		}
		c.active[g] = true
		c.pointOwn[g] = args[1].(common.Address)

	case ecliptic.FuncConfigureKeys:
		p := args[0].(uint32)
		if !c.active[p] || c.pointOwn[p] != sender {
			return revert("not owner of %d", p)
		}
		c.keyRev[p]++

	case ecliptic.FuncSpawn, ecliptic.FuncTokenRedemptionSpawn:
		p := args[0].(uint32)
		prefix := uint32(points.Point(p).Prefix())
		if c.active[p] {
			return revert("point %d already active", p)
		}
		if !c.active[prefix] || c.keyRev[prefix] == 0 {
			return revert("prefix %d is not live", prefix)
		}
		owner := sender
		if fn == ecliptic.FuncSpawn {
			if c.pointOwn[prefix] != sender {
				return revert("not owner of prefix %d", prefix)
			}
			if c.depleted[prefix] {
				return revert("prefix %d depleted", prefix)
			}
			owner = args[1].(common.Address)
		} else {
			if !c.depleted[prefix] {
				return revert("prefix %d not depleted", prefix)
			}
			if c.balanceOf(sender).Cmp(oneToken) < 0 {
				return revert("insufficient tokens")
			}
			c.balances[sender] = new(big.Int).Sub(c.balances[sender], oneToken)
			c.totalSupply.Sub(c.totalSupply, oneToken)
		}
		c.active[p] = true
		c.pointOwn[p] = owner

	case planettreasury.FuncWithdrawCapacity:
		star := args[0].(uint32)
		if c.pointOwn[star] != sender {
			return revert("not owner of star %d", star)
		}
		if c.depleted[star] {
			return revert("star %d already depleted", star)
		}
		c.depleted[star] = true
		minted := new(big.Int).Mul(oneToken, big.NewInt(PlanetsPerStar))
		c.balances[sender] = new(big.Int).Add(c.balanceOf(sender), minted)
		c.totalSupply.Add(c.totalSupply, minted)

	case planettreasury.FuncDepositCapacity:
		star := args[0].(uint32)
		if c.pointOwn[star] != sender || !c.depleted[star] {
			return revert("cannot deposit for star %d", star)
		}
		c.depleted[star] = false

	case planettoken.FuncApprove:
		spender := args[0].(common.Address)
		if c.allowances[sender] == nil {
			c.allowances[sender] = map[common.Address]*big.Int{}
		}
		c.allowances[sender][spender] = new(big.Int).Set(args[1].(*big.Int))

	default:
		return revert("unsupported method %s", fn.Signature)
	}
	return nil
}

func (c *Chain) requireEclipticOwnsAzimuth() error {
	az, ec := c.byKind[contracts.Azimuth], c.byKind[contracts.Ecliptic]
	if c.owners[az] != ec {
		return revert("ecliptic does not own azimuth")
	}
	return nil
}

func (c *Chain) balanceOf(addr common.Address) *big.Int {
	if b := c.balances[addr]; b != nil {
		return b
	}
	return new(big.Int)
}

func (c *Chain) WaitConfirmations(ctx context.Context, txHash common.Hash, n uint64) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.txs[txHash]
	if !ok {
		return nil, fmt.Errorf("chaintest: unknown tx %s", txHash.Hex())
	}
	if head := t.block + n - 1; head > c.block {
		c.block = head
	}
	c.events = append(c.events, Event{Op: OpConfirm, Method: t.method, Point: t.point, Tx: txHash})
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(t.block),
	}, nil
}

func (c *Chain) Call(ctx context.Context, to common.Address, fn *w3.Func, args []any, returns ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.FailCall != nil {
		if err := c.FailCall(methodName(fn), to, args); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.kindOf[to]; !ok {
		return fmt.Errorf("call %s on %s: no contract", fn.Signature, to.Hex())
	}
	ev := Event{Op: OpCall, Method: methodName(fn), To: to, Point: pointArg(args)}

	switch fn {
	case azimuth.FuncIsActive:
		ev.Result = c.active[args[0].(uint32)]
		*returns[0].(*bool) = ev.Result
	case azimuth.FuncGetOwner:
		*returns[0].(*common.Address) = c.pointOwn[args[0].(uint32)]
	case azimuth.FuncGetOwnedPoints:
		owner := args[0].(common.Address)
		var owned []uint32
		for p, o := range c.pointOwn {
			if o == owner {
				owned = append(owned, p)
			}
		}
		slices.Sort(owned)
		*returns[0].(*[]uint32) = owned
	case azimuth.FuncGetKeyRevisionNumber:
		*returns[0].(*uint32) = c.keyRev[args[0].(uint32)]
	case azimuth.FuncOwner, polls.FuncOwner, planettreasury.FuncOwner:
		*returns[0].(*common.Address) = c.owners[to]
	case planettreasury.FuncPlanetToken:
		c.tokenQueries++
		if c.tokenQueries > c.TokenDelay {
			*returns[0].(*common.Address) = c.byKind[contracts.PlanetToken]
		} else {
			*returns[0].(*common.Address) = common.Address{}
		}
	case planettreasury.FuncGetTreasuryBalance:
		*returns[0].(**big.Int) = new(big.Int).Set(c.totalSupply)
	case planettreasury.FuncIsDepleted:
		*returns[0].(*bool) = c.depleted[args[0].(uint32)]
	case planettreasury.FuncGetUnspawnedCount:
		star := args[0].(uint32)
		n := 0
		if !c.depleted[star] {
			n = PlanetsPerStar
		}
		*returns[0].(**big.Int) = big.NewInt(int64(n))
	case planettoken.FuncBalanceOf:
		*returns[0].(**big.Int) = new(big.Int).Set(c.balanceOf(args[0].(common.Address)))
	case planettoken.FuncAllowance:
		a := c.allowances[args[0].(common.Address)][args[1].(common.Address)]
		if a == nil {
			a = new(big.Int)
		}
		*returns[0].(**big.Int) = new(big.Int).Set(a)
	case planettoken.FuncTotalSupply:
		*returns[0].(**big.Int) = new(big.Int).Set(c.totalSupply)
	default:
		return fmt.Errorf("call %s: unsupported", fn.Signature)
	}
	c.events = append(c.events, ev)
	return nil
}

func methodName(fn *w3.Func) string {
	name, _, _ := strings.Cut(fn.Signature, "(")
	return name
}

// pointArg extracts the point a method acts on from its first argument.
func pointArg(args []any) uint32 {
	if len(args) == 0 {
		return 0
	}
	switch v := args[0].(type) {
	case uint32:
		return v
	case uint8:
		return uint32(v)
	}
	return 0
}
