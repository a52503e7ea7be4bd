package chainclient

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/yourusername/broker/internal/model"
)

// baseUnitScale is the 1e8 multiplier applied to amount and price when
// packing them into a BlockchainOrder's fixed-width integer fields.
var baseUnitScale = decimal.New(1, 8)

// defaultExpiration is the lifetime of a signed order, measured from the
// sub-order's timestamp: 29 days, in milliseconds.
const defaultExpiration int64 = 29 * 24 * 60 * 60 * 1000

// orderDomainTag is the single leading byte that scopes the hash to
// broker-signed settlement orders, distinct from any other message type the
// contract might accept.
const orderDomainTag byte = 0x03

// BlockchainOrder is the signed payload the hub forwards to the settlement
// contract. Amount, Price, and MatcherFee are base-unit integers (1e8
// scaling); MatcherFee is always zero in the current protocol but still
// occupies its 8 bytes in the canonical hash.
type BlockchainOrder struct {
	ID              string // hex keccak-256 digest, see hashOrder
	Sender          common.Address
	Matcher         common.Address
	BaseAsset       common.Address
	QuoteAsset      common.Address
	MatcherFeeAsset common.Address
	Amount          uint64
	Price           uint64
	MatcherFee      uint64
	Nonce           uint64
	Expiration      uint64
	BuySide         bool
	Signature       string // hex ECDSA signature
}

// hashOrder computes the canonical keccak-256 digest of o: the
// domain-separator tag, the five 20-byte addresses, the five big-endian
// 8-byte integers, and a single buy/sell byte, concatenated in that order.
// It is deterministic — identical fields always produce an identical hash.
func hashOrder(o *BlockchainOrder) common.Hash {
	buf := make([]byte, 0, 1+20*5+8*5+1)
	buf = append(buf, orderDomainTag)
	buf = append(buf, o.Sender.Bytes()...)
	buf = append(buf, o.Matcher.Bytes()...)
	buf = append(buf, o.BaseAsset.Bytes()...)
	buf = append(buf, o.QuoteAsset.Bytes()...)
	buf = append(buf, o.MatcherFeeAsset.Bytes()...)
	buf = append(buf, encodeUint64BE(o.Amount)...)
	buf = append(buf, encodeUint64BE(o.Price)...)
	buf = append(buf, encodeUint64BE(o.MatcherFee)...)
	buf = append(buf, encodeUint64BE(o.Nonce)...)
	buf = append(buf, encodeUint64BE(o.Expiration)...)
	if o.BuySide {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return crypto.Keccak256Hash(buf)
}

// encodeUint64BE packs v into a fixed 8-byte big-endian slice using
// uint256's minimal-length encoding, left-padded with zeros.
func encodeUint64BE(v uint64) []byte {
	n := new(uint256.Int).SetUint64(v)
	minimal := n.Bytes()

	out := make([]byte, 8)
	copy(out[8-len(minimal):], minimal)
	return out
}

// toBaseUnits scales a decimal price/amount by 1e8 and truncates to an
// integer, matching the on-chain order's fixed-point representation.
func toBaseUnits(d decimal.Decimal) uint64 {
	scaled := d.Mul(baseUnitScale).Truncate(0)
	return scaled.BigInt().Uint64()
}

// buildOrder fills a BlockchainOrder from a sub-order and its trade, using
// the broker's own address as sender, the configured matcher address, and
// the token registry to resolve base/quote asset addresses. It does not set
// ID or Signature; callers call hashOrder and the signer for those.
func (c *Client) buildOrder(sub *model.SubOrder, trade *model.Trade) (*BlockchainOrder, error) {
	base, quote, err := splitSymbol(sub.Symbol)
	if err != nil {
		return nil, err
	}

	baseAddr, err := c.tokens.Address(base)
	if err != nil {
		return nil, newUnknownAsset(base, err)
	}
	quoteAddr, err := c.tokens.Address(quote)
	if err != nil {
		return nil, newUnknownAsset(quote, err)
	}

	order := &BlockchainOrder{
		Sender:          c.signer.Address(),
		Matcher:         c.matcher,
		BaseAsset:       baseAddr,
		QuoteAsset:      quoteAddr,
		MatcherFeeAsset: c.tokens.FeeAssetAddress(),
		Amount:          toBaseUnits(trade.Amount),
		Price:           toBaseUnits(trade.Price),
		MatcherFee:      0,
		Nonce:           uint64(sub.Timestamp),
		Expiration:      uint64(sub.Timestamp + defaultExpiration),
		BuySide:         sub.Side == model.SideBuy,
	}
	return order, nil
}

// splitSymbol parses a BASE-QUOTE trading symbol.
func splitSymbol(symbol string) (base, quote string, err error) {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '-' {
			return symbol[:i], symbol[i+1:], nil
		}
	}
	return "", "", errInvalidSymbol(symbol)
}

type errInvalidSymbol string

func (e errInvalidSymbol) Error() string { return "invalid trading symbol: " + string(e) }

// domainSeparator computes the EIP-712 domain separator for the fixed
// Orion Exchange domain: {name, version, chainId, salt}.
func (c *Client) domainSeparator() common.Hash {
	domainTypeHash := crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,bytes32 salt)",
	))
	nameHash := crypto.Keccak256Hash([]byte("Orion Exchange"))
	versionHash := crypto.Keccak256Hash([]byte("1"))

	chainID := new(big.Int).SetInt64(c.chainID)

	buf := make([]byte, 0, 32*5)
	buf = append(buf, domainTypeHash.Bytes()...)
	buf = append(buf, nameHash.Bytes()...)
	buf = append(buf, versionHash.Bytes()...)
	buf = append(buf, common.LeftPadBytes(chainID.Bytes(), 32)...)
	buf = append(buf, c.salt[:]...)
	return crypto.Keccak256Hash(buf)
}

// typedDataDigest produces the final EIP-712 v4 digest
// keccak256(0x1901 || domainSeparator || orderHash) that gets signed.
func (c *Client) typedDataDigest(orderHash common.Hash) common.Hash {
	buf := make([]byte, 0, 2+32+32)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, c.domainSeparator().Bytes()...)
	buf = append(buf, orderHash.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

func hexOf(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
