package publish

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
)

const (
	DefaultPollInterval = 2 * time.Second

	// gasMarginPercent is added on top of eth_estimateGas results.
	gasMarginPercent = 20
)

var (
	ErrReverted    = errors.New("execution reverted")
	ErrReadOnly    = errors.New("deployer has no signing key")
	ErrPollTimeout = errors.New("poll timed out")
)

var pendingBlock = big.NewInt(int64(rpc.PendingBlockNumber))

type (
	DeployResult struct {
		TxHash          common.Hash
		ContractAddress common.Address
	}

	Deployer struct {
		client       *w3.Client
		signer       types.Signer
		key          *ecdsa.PrivateKey
		address      common.Address
		chainID      uint64
		gasFeeCap    *big.Int
		gasTipCap    *big.Int
		pollInterval time.Duration
	}
)

// NewDeployer dials rpcURL. A zero chainID is resolved with eth_chainId. A nil
// privateKey yields a read-only deployer that can Call but not Transact.
func NewDeployer(ctx context.Context, rpcURL string, chainID uint64, privateKey *ecdsa.PrivateKey, gasFeeCap, gasTipCap *big.Int) (*Deployer, error) {
	client, err := w3.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	if chainID == 0 {
		if err := client.CallCtx(ctx, eth.ChainID().Returns(&chainID)); err != nil {
			client.Close()
			return nil, fmt.Errorf("get chain id: %w", err)
		}
	}

	d := &Deployer{
		client:       client,
		signer:       types.NewLondonSigner(new(big.Int).SetUint64(chainID)),
		key:          privateKey,
		chainID:      chainID,
		gasFeeCap:    gasFeeCap,
		gasTipCap:    gasTipCap,
		pollInterval: DefaultPollInterval,
	}
	if privateKey != nil {
		d.address = crypto.PubkeyToAddress(privateKey.PublicKey)
	}
	return d, nil
}

func (d *Deployer) Address() common.Address {
	return d.address
}

func (d *Deployer) ChainID() uint64 {
	return d.chainID
}

// SetPollInterval changes how often receipts and block heights are polled.
func (d *Deployer) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		d.pollInterval = interval
	}
}

func (d *Deployer) Close() error {
	return d.client.Close()
}

func (d *Deployer) getNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	if err := d.client.CallCtx(ctx, eth.Nonce(d.address, pendingBlock).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

func (d *Deployer) sendTx(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	signedTx, err := types.SignTx(tx, d.signer, d.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	var txHash common.Hash
	if err := d.client.CallCtx(ctx, eth.SendTx(signedTx).Returns(&txHash)); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signedTx.Hash(), nil
}

func (d *Deployer) estimateGas(ctx context.Context, to *common.Address, data []byte) (uint64, error) {
	var gas uint64
	msg := &w3types.Message{From: d.address, To: to, Input: data}
	if err := d.client.CallCtx(ctx, eth.EstimateGas(msg, nil).Returns(&gas)); err != nil {
		if IsRevert(err) {
			return 0, fmt.Errorf("estimate gas: %w: %v", ErrReverted, err)
		}
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas + gas*gasMarginPercent/100, nil
}

// DeployContract sends a contract creation transaction. code is the creation
// bytecode with ABI-encoded constructor arguments appended. A zero gasLimit
// is estimated.
func (d *Deployer) DeployContract(ctx context.Context, code []byte, gasLimit uint64) (DeployResult, error) {
	if d.key == nil {
		return DeployResult{}, ErrReadOnly
	}
	if gasLimit == 0 {
		estimated, err := d.estimateGas(ctx, nil, code)
		if err != nil {
			return DeployResult{}, err
		}
		gasLimit = estimated
	}

	nonce, err := d.getNonce(ctx)
	if err != nil {
		return DeployResult{}, err
	}

	contractAddr := crypto.CreateAddress(d.address, nonce)

	//  EIP-1559 only
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(d.chainID),
		Nonce:     nonce,
		GasFeeCap: d.gasFeeCap,
		GasTipCap: d.gasTipCap,
		Gas:       gasLimit,
		Data:      code,
	})

	txHash, err := d.sendTx(ctx, tx)
	if err != nil {
		return DeployResult{}, err
	}

	return DeployResult{
		TxHash:          txHash,
		ContractAddress: contractAddr,
	}, nil
}

// Transact encodes fn with args and sends it to the contract at to.
func (d *Deployer) Transact(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (common.Hash, error) {
	if d.key == nil {
		return common.Hash{}, ErrReadOnly
	}
	calldata, err := fn.EncodeArgs(args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode %s: %w", fn.Signature, err)
	}

	gasLimit, err := d.estimateGas(ctx, &to, calldata)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: %w", fn.Signature, err)
	}

	nonce, err := d.getNonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(d.chainID),
		Nonce:     nonce,
		To:        &to,
		GasFeeCap: d.gasFeeCap,
		GasTipCap: d.gasTipCap,
		Gas:       gasLimit,
		Data:      calldata,
	})

	return d.sendTx(ctx, tx)
}

// Call performs a read-only eth_call of fn against the latest block.
func (d *Deployer) Call(ctx context.Context, to common.Address, fn *w3.Func, args []any, returns ...any) error {
	call := eth.CallFunc(to, fn, args...).Returns(returns...)
	if err := d.client.CallCtx(ctx, call); err != nil {
		return fmt.Errorf("call %s on %s: %w", fn.Signature, to.Hex(), err)
	}
	return nil
}

func (d *Deployer) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	if err := d.client.CallCtx(ctx, eth.Code(addr, nil).Returns(&code)); err != nil {
		return nil, fmt.Errorf("get code at %s: %w", addr.Hex(), err)
	}
	return code, nil
}

func (d *Deployer) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := Poll(ctx, d.pollInterval, 0, func(ctx context.Context) (bool, error) {
		var r *types.Receipt
		if err := d.client.CallCtx(ctx, eth.TxReceipt(txHash).Returns(&r)); err != nil || r == nil {
			return false, nil
		}
		receipt = r
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait receipt %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}

// WaitConfirmations waits until txHash is included and at least n blocks
// (counting the inclusion block) have been produced. A failed receipt
// returns ErrReverted.
func (d *Deployer) WaitConfirmations(ctx context.Context, txHash common.Hash, n uint64) (*types.Receipt, error) {
	receipt, err := d.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: tx %s", ErrReverted, txHash.Hex())
	}
	if n <= 1 || receipt.BlockNumber == nil {
		return receipt, nil
	}

	included := receipt.BlockNumber.Uint64()
	err = Poll(ctx, d.pollInterval, 0, func(ctx context.Context) (bool, error) {
		var head *big.Int
		if err := d.client.CallCtx(ctx, eth.BlockNumber().Returns(&head)); err != nil || head == nil {
			return false, nil
		}
		return head.Uint64()+1 >= included+n, nil
	})
	if err != nil {
		return receipt, fmt.Errorf("wait %d confirmations for %s: %w", n, txHash.Hex(), err)
	}
	return receipt, nil
}

// Poll calls cond every interval until it reports true, returns an error, or
// ctx ends. A positive timeout bounds the whole wait and yields ErrPollTimeout.
func Poll(ctx context.Context, interval, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			if parent.Err() == nil && timeout > 0 {
				return fmt.Errorf("%w after %s", ErrPollTimeout, timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// EncodeConstructor ABI-encodes constructor arguments described by fn,
// dropping the 4-byte selector that w3 prepends.
func EncodeConstructor(fn *w3.Func, args ...any) ([]byte, error) {
	data, err := fn.EncodeArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("encode constructor: %w", err)
	}
	return data[4:], nil
}

// IsRevert reports whether err came from a reverted transaction or a call the
// node refused to execute because it would revert.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReverted) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}
