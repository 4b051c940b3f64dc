// Package crypto provides the engine's cryptographic primitives (C1):
// device-key generation/signing/verification, and wallet-signature
// verification for the EVM personal-sign scheme. All fallible operations
// return an explicit error; none of them panic on malformed input, mirroring
// the teacher's core/crypto.go and x/util/verifySignatureService.go, ported
// from secp256k1/Keccak256 (the teacher signs with the wallet key directly)
// to the two-tier ed25519-device / secp256k1-wallet model spec.md requires.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// personalMessagePrefix is the EVM "personal_sign" hash prefix: Keccak256
// of "\x19Ethereum Signed Message:\n" + len(message) + message. Used only
// for wallet signatures; device-key signing is plain Ed25519 (§4.1).
const personalMessagePrefix = "\x19Ethereum Signed Message:\n"

// GenerateEd25519Keypair returns a fresh device keypair. Analogous to the
// teacher's SetupConfig key derivation step, but produces an Ed25519 pair
// instead of deriving a bech32 address from a secp256k1 key.
func GenerateEd25519Keypair() (pub [32]byte, priv [64]byte, err error) {
	p, s, err := ed25519.GenerateKey(nil)
	if err != nil {
		return pub, priv, errors.Wrap(err, "failed to generate ed25519 keypair")
	}
	copy(pub[:], p)
	copy(priv[:], s)
	return pub, priv, nil
}

// Ed25519Sign signs bytes with a 64-byte Ed25519 private key.
func Ed25519Sign(priv [64]byte, message []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), message)
}

// Ed25519Verify verifies a 64-byte signature against a 32-byte public key.
// It never panics: malformed inputs simply fail verification.
func Ed25519Verify(pub [32]byte, message []byte, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, signature)
}

// HexToEd25519PublicKey decodes a 32-byte hex-encoded public key.
func HexToEd25519PublicKey(hexKey string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return out, errors.Wrap(err, "failed to decode device public key")
	}
	if len(b) != 32 {
		return out, errors.Errorf("device public key must be 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// VerifyWalletSignature implements the EVM personal-sign verification
// scheme (§4.1): recompute the prefixed Keccak256 hash of message, recover
// the signer's public key from the signature, derive its address, and
// compare (lowercased) against address. Grounded on the teacher's
// util.VerifySignatureFromBytes, which performs the identical
// Ecrecover/PubkeyToAddress dance for its own (non-prefixed) wallet
// signatures.
func VerifyWalletSignature(address string, message string, signature []byte) bool {
	if len(signature) != 65 {
		return false
	}
	hash := personalSignHash(message)

	// go-ethereum expects the recovery id in the last byte as 0/1; wallets
	// commonly produce 27/28 per EIP-191.
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	recoveredPub, err := gethcrypto.SigToPub(hash, sig)
	if err != nil {
		return false
	}
	recoveredAddr := gethcrypto.PubkeyToAddress(*recoveredPub)

	return strings.EqualFold(recoveredAddr.Hex(), normalizeAddress(address))
}

func personalSignHash(message string) []byte {
	prefixed := personalMessagePrefix + strconv.Itoa(len(message)) + message
	return gethcrypto.Keccak256([]byte(prefixed))
}

func normalizeAddress(address string) string {
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return "0x" + address
	}
	return address
}

// SHA256Hex hashes bytes and returns the lowercase hex digest, a short,
// stable fingerprint helper; no other package of the engine calls it.
// Grounded on the teacher's core.GetHash helper, swapped to SHA-256 since
// there is no EVM-address derivation involved here.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
