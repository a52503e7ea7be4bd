package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/yourusername/broker/internal/model"
	"github.com/yourusername/broker/internal/transport"
)

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		s = "0"
	}
	return decimal.NewFromString(s)
}

// Gateway is the read-only REST surface the Chain Client consumes for
// on-chain reads and transaction broadcast. Base URL and the external gas
// feed come from configuration; the path set itself is fixed.
type Gateway struct {
	rest    *transport.Client
	gasFeed *transport.Client
}

// NewGateway builds a Gateway over the broker REST base URL and a separate
// external gwei feed endpoint.
func NewGateway(rest, gasFeed *transport.Client) *Gateway {
	return &Gateway{rest: rest, gasFeed: gasFeed}
}

func (g *Gateway) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := g.rest.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("gateway GET %s: %w", path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("gateway GET %s: decoding response: %w", path, err)
	}
	return nil
}

// GetAllowance returns the ERC-20 allowance the broker's wallet has granted
// the settlement contract for asset.
func (g *Gateway) GetAllowance(ctx context.Context, addr, asset string) (*big.Int, error) {
	var resp struct {
		Allowance string `json:"allowance"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("/broker/getAllowance/%s/%s", addr, asset), &resp); err != nil {
		return nil, err
	}
	return parseBigInt(resp.Allowance)
}

// GetNonce returns the broker wallet's next transaction nonce.
func (g *Gateway) GetNonce(ctx context.Context, addr string) (uint64, error) {
	var resp struct {
		Nonce *uint64 `json:"nonce"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("/broker/getNonce/%s", addr), &resp); err != nil {
		return 0, err
	}
	if resp.Nonce == nil {
		return 0, newNonceUnavailable(nil)
	}
	return *resp.Nonce, nil
}

// GetStakes returns the full stakes table (used for operator diagnostics,
// not consulted by the engine or reconciler directly).
func (g *Gateway) GetStakes(ctx context.Context) (json.RawMessage, error) {
	return g.rest.Get(ctx, "/stakes")
}

// GetStake returns the broker's locked stake amount.
func (g *Gateway) GetStake(ctx context.Context, addr string) (*big.Int, error) {
	var resp struct {
		Stake string `json:"stake"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("/broker/getStake/%s", addr), &resp); err != nil {
		return nil, err
	}
	return parseBigInt(resp.Stake)
}

// GetTransactionStatus reports PENDING, OK, FAIL, or NONE (not yet seen).
func (g *Gateway) GetTransactionStatus(ctx context.Context, hash string) (model.TransactionStatus, bool, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("/broker/getTransactionStatus/%s", hash), &resp); err != nil {
		return "", false, err
	}
	if resp.Status == "NONE" || resp.Status == "" {
		return "", false, nil
	}
	return model.TransactionStatus(resp.Status), true, nil
}

// GetLiabilities returns the broker's outstanding on-chain liabilities.
func (g *Gateway) GetLiabilities(ctx context.Context, addr string) ([]model.Liability, error) {
	var resp []struct {
		AssetName         string `json:"assetName"`
		OutstandingAmount string `json:"outstandingAmount"`
		Timestamp         int64  `json:"timestamp"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("/broker/getLiabilities/%s", addr), &resp); err != nil {
		return nil, err
	}

	liabilities := make([]model.Liability, 0, len(resp))
	for _, l := range resp {
		amount, err := parseDecimal(l.OutstandingAmount)
		if err != nil {
			return nil, err
		}
		liabilities = append(liabilities, model.Liability{
			AssetName:         l.AssetName,
			OutstandingAmount: amount,
			Timestamp:         l.Timestamp,
		})
	}
	return liabilities, nil
}

// GetContractBalance returns the settlement contract's on-chain balance of
// asset.
func (g *Gateway) GetContractBalance(ctx context.Context, addr, asset string) (*big.Int, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("/broker/getContractBalance/%s/%s", addr, asset), &resp); err != nil {
		return nil, err
	}
	return parseBigInt(resp.Balance)
}

// GetWalletBalance returns the operator wallet's on-chain balance of asset.
func (g *Gateway) GetWalletBalance(ctx context.Context, addr, asset string) (*big.Int, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := g.getJSON(ctx, fmt.Sprintf("/broker/getWalletBalance/%s/%s", addr, asset), &resp); err != nil {
		return nil, err
	}
	return parseBigInt(resp.Balance)
}

// Execute broadcasts a raw signed transaction.
func (g *Gateway) Execute(ctx context.Context, signedTxRaw string) (string, error) {
	reqBody, err := json.Marshal(struct {
		SignedTxRaw string `json:"signedTxRaw"`
	}{SignedTxRaw: signedTxRaw})
	if err != nil {
		return "", fmt.Errorf("marshaling execute request: %w", err)
	}

	body, err := g.rest.PostJSON(ctx, "/broker/execute", reqBody)
	if err != nil {
		return "", fmt.Errorf("gateway POST /broker/execute: %w", err)
	}

	var resp struct {
		TransactionHash string `json:"transactionHash"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding execute response: %w", err)
	}
	return resp.TransactionHash, nil
}

// FastGasGwei queries the external gas feed and returns the "fast" gwei
// value, divided by 10 and rounded up per the gateway's pricing convention.
func (g *Gateway) FastGasGwei(ctx context.Context) (float64, error) {
	body, err := g.gasFeed.Get(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("querying gas feed: %w", err)
	}

	var resp struct {
		Fast float64 `json:"fast"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decoding gas feed response: %w", err)
	}

	gwei := math.Ceil(resp.Fast / 10)
	return gwei, nil
}

func parseBigInt(s string) (*big.Int, error) {
	if s == "" {
		s = "0"
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}
