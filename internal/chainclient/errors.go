package chainclient

import (
	"fmt"

	"github.com/yourusername/broker/internal/xerrors"
)

const (
	codeGasPriceTooHigh  = "ERR_GAS_PRICE_TOO_HIGH"
	codeUnknownAsset     = "ERR_UNKNOWN_ASSET"
	codeNonceUnavailable = "ERR_NONCE_UNAVAILABLE"
)

// newGasPriceTooHigh reports that the network's fast gas price exceeds the
// 300 gwei cap; the write aborts before broadcast and the caller's loop
// retries at its next tick.
func newGasPriceTooHigh(gwei float64) *xerrors.Classified {
	return xerrors.NewRetryable(codeGasPriceTooHigh,
		fmt.Sprintf("gas price %.2f gwei exceeds 300 gwei cap", gwei), nil)
}

// newUnknownAsset reports a symbol absent from the token registry.
func newUnknownAsset(symbol string, cause error) *xerrors.Classified {
	return xerrors.NewNonRetryable(codeUnknownAsset,
		fmt.Sprintf("asset %q is not in the token registry", symbol), cause)
}

// newNonceUnavailable reports that the gateway returned no usable nonce.
func newNonceUnavailable(cause error) *xerrors.Classified {
	return xerrors.NewRetryable(codeNonceUnavailable, "gateway returned no nonce", cause)
}
