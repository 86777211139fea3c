package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

// TrustLedgerABI is the subset of the trust ledger contract the service calls.
const TrustLedgerABI = `[
	{"type":"function","name":"lockStake","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"releaseStake","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"burnStake","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"amount","type":"uint256"},{"name":"reason","type":"string"}],"outputs":[]},
	{"type":"function","name":"transferFor","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"reference","type":"bytes32"}],"outputs":[]}
]`

var ErrTransactionReverted = errors.New("ledger transaction reverted")

type EVMConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKeyHex   string
	ChainID         int64
}

// EVMTokenLedger submits ledger movements to the trust ledger contract and
// waits for each transaction to be mined.
type EVMTokenLedger struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	address  common.Address
	key      *ecdsa.PrivateKey
	chainID  *big.Int

	// Nonces are assigned by the node; serialize sends from the single key.
	sendMu sync.Mutex
}

func DialEVMTokenLedger(ctx context.Context, cfg EVMConfig) (*EVMTokenLedger, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, errors.New("chain rpc url is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid ledger contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse ledger signer key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(TrustLedgerABI))
	if err != nil {
		return nil, fmt.Errorf("parse ledger abi: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID <= 0 {
		if chainID, err = client.ChainID(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("read chain id: %w", err)
		}
	}
	address := common.HexToAddress(cfg.ContractAddress)
	return &EVMTokenLedger{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		address:  address,
		key:      key,
		chainID:  chainID,
	}, nil
}

func (l *EVMTokenLedger) Close() {
	if l.client != nil {
		l.client.Close()
	}
}

func (l *EVMTokenLedger) LockStake(ctx context.Context, owner string, amount *big.Int) (ports.TxReceipt, error) {
	return l.transact(ctx, "lockStake", OwnerAddress(owner), new(big.Int).Set(amount))
}

func (l *EVMTokenLedger) ReleaseStake(ctx context.Context, owner string, amount *big.Int) (ports.TxReceipt, error) {
	return l.transact(ctx, "releaseStake", OwnerAddress(owner), new(big.Int).Set(amount))
}

func (l *EVMTokenLedger) BurnStake(ctx context.Context, owner string, amount *big.Int, reason string) (ports.TxReceipt, error) {
	return l.transact(ctx, "burnStake", OwnerAddress(owner), new(big.Int).Set(amount), reason)
}

func (l *EVMTokenLedger) Transfer(ctx context.Context, from, to string, amount domain.Amount, reference string) (ports.TxReceipt, error) {
	if amount <= 0 {
		return ports.TxReceipt{}, fmt.Errorf("%w: transfer amount must be positive", domain.ErrInvalidInput)
	}
	ref := crypto.Keccak256Hash([]byte(reference))
	return l.transact(ctx, "transferFor", OwnerAddress(from), OwnerAddress(to), big.NewInt(int64(amount)), [32]byte(ref))
}

func (l *EVMTokenLedger) transact(ctx context.Context, method string, args ...any) (ports.TxReceipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(l.key, l.chainID)
	if err != nil {
		return ports.TxReceipt{}, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx

	l.sendMu.Lock()
	tx, err := l.contract.Transact(opts, method, args...)
	l.sendMu.Unlock()
	if err != nil {
		return ports.TxReceipt{}, fmt.Errorf("%s: %w", method, err)
	}
	receipt, err := bind.WaitMined(ctx, l.client, tx)
	if err != nil {
		return ports.TxReceipt{}, fmt.Errorf("%s: wait mined %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ports.TxReceipt{}, fmt.Errorf("%w: %s %s", ErrTransactionReverted, method, tx.Hash().Hex())
	}
	out := ports.TxReceipt{TxHash: tx.Hash().Hex()}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out, nil
}

// OwnerAddress maps an owner id to a ledger address. Hex addresses are used as
// is; any other id is mapped to the last 20 bytes of its keccak hash.
func OwnerAddress(owner string) common.Address {
	owner = strings.TrimSpace(owner)
	if common.IsHexAddress(owner) {
		return common.HexToAddress(owner)
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(owner))[12:])
}

// Client exposes the RPC connection for receipt lookups.
func (l *EVMTokenLedger) Client() *ethclient.Client { return l.client }
