package chainclient

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer abstracts the broker's operator key. Implementations MUST NOT leak
// private key material outside the Sign* methods.
type Signer interface {
	// Address returns the address this signer controls.
	Address() common.Address

	// SignDigest produces a raw ECDSA signature (r||s||v, 65 bytes) over a
	// 32-byte digest that the caller has already hashed.
	SignDigest(digest common.Hash) ([]byte, error)

	// SignPersonal produces an EIP-191 personal-message signature over an
	// arbitrary UTF-8 message, used to authenticate the broker to the hub.
	SignPersonal(message string) ([]byte, error)

	// SignTransaction signs an unsigned EIP-155 transaction for broadcast.
	SignTransaction(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// ecdsaSigner is a Signer backed by a raw secp256k1 private key held in
// process memory. Only one chain (EVM) is supported — this broker has no
// multi-chain signing requirement, unlike the teacher's wallet CLI.
type ecdsaSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner builds a Signer from a hex-encoded secp256k1 private key
// (with or without a 0x prefix).
func NewSigner(privateKeyHex string) (Signer, error) {
	key, err := crypto.HexToECDSA(trim0x(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("invalid operator private key: %w", err)
	}
	return &ecdsaSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *ecdsaSigner) Address() common.Address {
	return s.address
}

func (s *ecdsaSigner) SignDigest(digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("signing digest: %w", err)
	}
	return sig, nil
}

func (s *ecdsaSigner) SignPersonal(message string) ([]byte, error) {
	digest := personalMessageHash(message)
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("signing personal message: %w", err)
	}
	// crypto.Sign's recovery id is 0/1; EIP-191 tooling expects 27/28.
	sig[64] += 27
	return sig, nil
}

func (s *ecdsaSigner) SignTransaction(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.NewEIP155Signer(chainID)
	signed, err := types.SignTx(tx, signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	return signed, nil
}

// personalMessageHash implements the EIP-191 prefix
// "\x19Ethereum Signed Message:\n" + len(message) + message.
func personalMessageHash(message string) common.Hash {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256Hash([]byte(prefixed))
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
