// Package chainclient implements the on-chain half of the broker: read-only
// queries against the settlement contract via a REST gateway, EIP-712
// order signing, and the fixed set of writes (deposit/withdraw/approve/
// stake) the reconciler and engine issue.
package chainclient

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/yourusername/broker/internal/model"
	"github.com/yourusername/broker/internal/tokenregistry"
)

// Gas limits, bit-exact per the settlement contract's fixed method costs.
const (
	GasDepositETH   uint64 = 70_000
	GasDepositERC20 uint64 = 150_000
	GasApprove      uint64 = 70_000
	GasLockStake    uint64 = 70_000
	GasReleaseStake uint64 = 100_000
)

// GasPriceCapGwei is the ceiling above which a write aborts before
// broadcast rather than risk an unreasonably expensive transaction.
const GasPriceCapGwei = 300

const (
	chainIDMainnet = 1
	chainIDTest    = 3
)

var brokerABI = mustParseABI(`[
	{"name":"depositETH","type":"function","stateMutability":"payable","inputs":[]},
	{"name":"depositERC20","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}]},
	{"name":"lockStake","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}]},
	{"name":"releaseStake","type":"function","stateMutability":"nonpayable","inputs":[]}
]`)

var erc20ABI = mustParseABI(`[
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}]}
]`)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chainclient: invalid embedded ABI: %v", err))
	}
	return parsed
}

// Config wires a Client to its dependencies and fixed on-chain parameters.
type Config struct {
	Gateway            *Gateway
	Signer             Signer
	Tokens             *tokenregistry.Registry
	Matcher            common.Address
	SettlementContract common.Address
	Production         bool  // selects chain ID 1 vs the test network's 3
	Salt               [32]byte
}

// Client is the Chain Client (C3): pure order hashing/signing plus
// read/write access to the on-chain settlement contract via Gateway. It is
// single-instance and stateless beyond its configuration, so its operations
// are reentrant and safe for concurrent use from both the engine and the
// reconciler.
type Client struct {
	gateway            *Gateway
	signer             Signer
	tokens             *tokenregistry.Registry
	matcher            common.Address
	settlementContract common.Address
	chainID            int64
	salt               [32]byte
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	chainID := int64(chainIDTest)
	if cfg.Production {
		chainID = chainIDMainnet
	}
	return &Client{
		gateway:            cfg.Gateway,
		signer:             cfg.Signer,
		tokens:             cfg.Tokens,
		matcher:            cfg.Matcher,
		settlementContract: cfg.SettlementContract,
		chainID:            chainID,
		salt:               cfg.Salt,
	}
}

// Address returns the broker operator's on-chain address, used as the
// destination for exchange withdrawals back into the wallet.
func (c *Client) Address() common.Address {
	return c.signer.Address()
}

// Sign produces a personal-message signature of payload, used to
// authenticate the broker's identity to the hub.
func (c *Client) Sign(payload string) (string, error) {
	sig, err := c.signer.SignPersonal(payload)
	if err != nil {
		return "", err
	}
	return hexOf(sig), nil
}

// HashOrder returns the canonical keccak-256 digest of order.
func (c *Client) HashOrder(order *BlockchainOrder) string {
	return hexOf(hashOrder(order).Bytes())
}

// SignTrade fills in a BlockchainOrder's id and EIP-712 signature for a
// filled sub-order, ready to forward to the hub. Signing is a pure function
// of (subOrder, trade): two calls with identical inputs produce a
// byte-identical id and signature.
func (c *Client) SignTrade(sub *model.SubOrder, trade *model.Trade) (*BlockchainOrder, error) {
	order, err := c.buildOrder(sub, trade)
	if err != nil {
		return nil, err
	}

	digest := hashOrder(order)
	order.ID = hexOf(digest.Bytes())

	typedDigest := c.typedDataDigest(digest)
	sig, err := c.signer.SignDigest(typedDigest)
	if err != nil {
		return nil, fmt.Errorf("signing trade: %w", err)
	}
	sig[64] += 27
	order.Signature = hexOf(sig)

	return order, nil
}

// --- reads ---

func (c *Client) GetAllowance(ctx context.Context, asset string) (decimal.Decimal, error) {
	addr, err := c.tokens.Address(asset)
	if err != nil {
		return decimal.Zero, newUnknownAsset(asset, err)
	}
	allowance, err := c.gateway.GetAllowance(ctx, c.signer.Address().Hex(), addr.Hex())
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(allowance, 0), nil
}

func (c *Client) GetNonce(ctx context.Context) (uint64, error) {
	return c.gateway.GetNonce(ctx, c.signer.Address().Hex())
}

func (c *Client) GetStake(ctx context.Context) (decimal.Decimal, error) {
	stake, err := c.gateway.GetStake(ctx, c.signer.Address().Hex())
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(stake, 0), nil
}

// GetTransactionStatus reports PENDING, OK, FAIL, or the absence of the
// transaction (NONE, reported as found=false).
func (c *Client) GetTransactionStatus(ctx context.Context, hash string) (status model.TransactionStatus, found bool, err error) {
	return c.gateway.GetTransactionStatus(ctx, hash)
}

func (c *Client) GetLiabilities(ctx context.Context) ([]model.Liability, error) {
	return c.gateway.GetLiabilities(ctx, c.signer.Address().Hex())
}

func (c *Client) GetContractBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	addr, err := c.tokens.Address(asset)
	if err != nil {
		return decimal.Zero, newUnknownAsset(asset, err)
	}
	balance, err := c.gateway.GetContractBalance(ctx, c.signer.Address().Hex(), addr.Hex())
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(balance, 0), nil
}

func (c *Client) GetWalletBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	addr, err := c.tokens.Address(asset)
	if err != nil {
		return decimal.Zero, newUnknownAsset(asset, err)
	}
	balance, err := c.gateway.GetWalletBalance(ctx, c.signer.Address().Hex(), addr.Hex())
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(balance, 0), nil
}

// --- writes ---

func (c *Client) DepositETH(ctx context.Context, amount decimal.Decimal) (*model.Transaction, error) {
	data, err := brokerABI.Pack("depositETH")
	if err != nil {
		return nil, fmt.Errorf("packing depositETH call: %w", err)
	}
	return c.writeTx(ctx, model.MethodDepositETH, "ETH", amount, c.settlementContract, amount.BigInt(), data, GasDepositETH)
}

func (c *Client) DepositERC20(ctx context.Context, amount decimal.Decimal, asset string) (*model.Transaction, error) {
	addr, err := c.tokens.Address(asset)
	if err != nil {
		return nil, newUnknownAsset(asset, err)
	}
	data, err := brokerABI.Pack("depositERC20", addr, amount.BigInt())
	if err != nil {
		return nil, fmt.Errorf("packing depositERC20 call: %w", err)
	}
	return c.writeTx(ctx, model.MethodDepositERC20, asset, amount, c.settlementContract, big.NewInt(0), data, GasDepositERC20)
}

func (c *Client) Withdraw(ctx context.Context, amount decimal.Decimal, asset string) (*model.Transaction, error) {
	addr, err := c.tokens.Address(asset)
	if err != nil {
		return nil, newUnknownAsset(asset, err)
	}
	data, err := brokerABI.Pack("withdraw", addr, amount.BigInt())
	if err != nil {
		return nil, fmt.Errorf("packing withdraw call: %w", err)
	}
	return c.writeTx(ctx, model.MethodWithdraw, asset, amount, c.settlementContract, big.NewInt(0), data, GasDepositETH)
}

func (c *Client) ApproveERC20(ctx context.Context, amount decimal.Decimal, asset string) (*model.Transaction, error) {
	addr, err := c.tokens.Address(asset)
	if err != nil {
		return nil, newUnknownAsset(asset, err)
	}
	data, err := erc20ABI.Pack("approve", c.settlementContract, amount.BigInt())
	if err != nil {
		return nil, fmt.Errorf("packing approve call: %w", err)
	}
	return c.writeTx(ctx, model.MethodApproveERC20, asset, amount, addr, big.NewInt(0), data, GasApprove)
}

func (c *Client) LockStake(ctx context.Context, amount decimal.Decimal) (*model.Transaction, error) {
	data, err := brokerABI.Pack("lockStake", amount.BigInt())
	if err != nil {
		return nil, fmt.Errorf("packing lockStake call: %w", err)
	}
	return c.writeTx(ctx, model.MethodLockStake, "ORN", amount, c.settlementContract, big.NewInt(0), data, GasLockStake)
}

func (c *Client) ReleaseStake(ctx context.Context) (*model.Transaction, error) {
	data, err := brokerABI.Pack("releaseStake")
	if err != nil {
		return nil, fmt.Errorf("packing releaseStake call: %w", err)
	}
	return c.writeTx(ctx, model.MethodReleaseStake, "ORN", decimal.Zero, c.settlementContract, big.NewInt(0), data, GasReleaseStake)
}

// writeTx implements the populate -> fill -> sign -> broadcast pipeline
// shared by every on-chain write.
func (c *Client) writeTx(ctx context.Context, method model.Method, asset string, amount decimal.Decimal, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*model.Transaction, error) {
	gwei, err := c.gateway.FastGasGwei(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching gas price: %w", err)
	}
	if gwei > GasPriceCapGwei {
		return nil, newGasPriceTooHigh(gwei)
	}

	nonce, err := c.GetNonce(ctx)
	if err != nil {
		return nil, newNonceUnavailable(err)
	}

	gasPrice := new(big.Int).Mul(big.NewInt(int64(gwei)), big.NewInt(1_000_000_000))

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signed, err := c.signer.SignTransaction(tx, big.NewInt(c.chainID))
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding signed transaction: %w", err)
	}

	txHash, err := c.gateway.Execute(ctx, "0x"+hex.EncodeToString(raw))
	if err != nil {
		return nil, fmt.Errorf("broadcasting transaction: %w", err)
	}
	if txHash == "" {
		txHash = signed.Hash().Hex()
	}

	return &model.Transaction{
		TransactionHash: txHash,
		Method:          method,
		Asset:           asset,
		Amount:          amount,
		CreateTime:      time.Now().UnixMilli(),
		Status:          model.TxPending,
	}, nil
}
