package crypto

import (
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateEd25519Keypair()
	assert.NoError(t, err)

	message := []byte("hello opchan")
	sig := Ed25519Sign(priv, message)

	assert.True(t, Ed25519Verify(pub, message, sig))
}

func TestEd25519VerifyRejectsTamperedMessage(t *testing.T) {
	pub, priv, err := GenerateEd25519Keypair()
	assert.NoError(t, err)

	sig := Ed25519Sign(priv, []byte("World"))
	assert.False(t, Ed25519Verify(pub, []byte("World!"), sig))
}

func TestEd25519VerifyRejectsMalformedSignature(t *testing.T) {
	pub, _, err := GenerateEd25519Keypair()
	assert.NoError(t, err)

	assert.False(t, Ed25519Verify(pub, []byte("x"), []byte("too short")))
}

func TestVerifyWalletSignatureRoundTrip(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	assert.NoError(t, err)
	address := gethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	message := "opchan delegation for device abcd, expires 123456"
	hash := personalSignHash(message)

	sig, err := gethcrypto.Sign(hash, key)
	assert.NoError(t, err)

	assert.True(t, VerifyWalletSignature(address, message, sig))
}

func TestVerifyWalletSignatureRejectsWrongAddress(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	assert.NoError(t, err)

	message := "some auth message"
	hash := personalSignHash(message)
	sig, err := gethcrypto.Sign(hash, key)
	assert.NoError(t, err)

	assert.False(t, VerifyWalletSignature("0x0000000000000000000000000000000000dEaD", message, sig))
}

func TestHexToEd25519PublicKeyRejectsWrongLength(t *testing.T) {
	_, err := HexToEd25519PublicKey("abcd")
	assert.Error(t, err)
}
