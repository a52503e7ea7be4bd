package chainclient

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb1522d741beb41cdbd3d8a78f8e9e74d62aa0"

func TestNewSigner(t *testing.T) {
	tests := []struct {
		name    string
		keyHex  string
		wantErr bool
	}{
		{name: "valid key without 0x prefix", keyHex: testKeyHex},
		{name: "valid key with 0x prefix", keyHex: "0x" + testKeyHex},
		{name: "invalid hex", keyHex: "not-a-key", wantErr: true},
		{name: "empty", keyHex: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := NewSigner(tt.keyHex)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, "0x0000000000000000000000000000000000000000", signer.Address().Hex())
		})
	}
}

func TestSigner_SignDigestIsDeterministic(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	require.NoError(t, err)

	digest := personalMessageHash("hello")

	sig1, err := signer.SignDigest(digest)
	require.NoError(t, err)
	sig2, err := signer.SignDigest(digest)
	require.NoError(t, err)

	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 65)
}

func TestSigner_SignPersonalSetsEIP191RecoveryID(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	require.NoError(t, err)

	sig, err := signer.SignPersonal("authenticate")
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])
}

func TestSigner_SignTransaction(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	require.NoError(t, err)

	tx := types.NewTransaction(0, signer.Address(), big.NewInt(0), 21000, big.NewInt(1_000_000_000), nil)
	signed, err := signer.SignTransaction(tx, big.NewInt(3))
	require.NoError(t, err)

	from, err := types.Sender(types.NewEIP155Signer(big.NewInt(3)), signed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)
}
