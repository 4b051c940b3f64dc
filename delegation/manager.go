package delegation

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/opchan/core/codec"
	opcrypto "github.com/opchan/core/crypto"
	"github.com/opchan/core/core"
)

// Duration enumerates the delegation lifetimes spec.md §4.2 allows.
type Duration int

const (
	Duration7Days Duration = iota
	Duration30Days
)

func (d Duration) milliseconds() int64 {
	switch d {
	case Duration30Days:
		return 30 * 24 * 3600 * 1000
	default:
		return 7 * 24 * 3600 * 1000
	}
}

// WalletSigner is the capability the manager calls out to in order to have
// a wallet produce an EVM personal_sign signature over an authorization
// message. It is one of the operations spec.md's concurrency model allows
// to suspend the calling goroutine (e.g. while a browser extension prompts
// the user).
type WalletSigner func(ctx context.Context, message string) ([]byte, error)

// Status summarizes the active delegation for callers that just need to
// know "am I set up, and as whom".
type Status struct {
	Active            bool
	Mode              Mode
	Address           string
	ExpiryTimestampMs int64
	Expired           bool
}

// Manager is C3: creates delegations, signs outgoing messages with the
// active device key, and verifies the signature+delegation chain on
// incoming ones. Grounded on the teacher's x/key.service (EnactKey /
// RevokeKey / ValidateSignedObject), collapsed from a multi-level subkey
// chain down to spec.md's single wallet -> device hop.
type Manager struct {
	store  Store
	clock  func() time.Time
	tracer trace.Tracer
}

// NewManager builds a Manager. clock is injected (spec.md's cooperative
// concurrency model treats "now" as supplied, not sampled ad hoc) so tests
// can control expiry deterministically; pass time.Now when wiring for real.
func NewManager(store Store, clock func() time.Time) *Manager {
	return &Manager{
		store:  store,
		clock:  clock,
		tracer: otel.Tracer("github.com/opchan/core/delegation"),
	}
}

func (m *Manager) now() int64 {
	return m.clock().UnixMilli()
}

// CreateWalletDelegation generates a fresh device keypair, has sign produce
// a wallet signature over a human-readable authorization message binding
// the device key, wallet address and expiry together, self-checks that
// signature, and persists the result as the active delegation.
func (m *Manager) CreateWalletDelegation(ctx context.Context, walletAddress string, duration Duration, sign WalletSigner) (*Record, error) {
	ctx, span := m.tracer.Start(ctx, "delegation.CreateWalletDelegation")
	defer span.End()

	if !codec.IsHexAddress(walletAddress) {
		return nil, errors.Errorf("not a valid wallet address: %s", walletAddress)
	}

	pub, priv, err := opcrypto.GenerateEd25519Keypair()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate device keypair")
	}

	nonce := uuid.NewString()
	expiry := m.now() + duration.milliseconds()
	lowerAddr := strings.ToLower(walletAddress)
	authMessage := composeAuthMessage(hex.EncodeToString(pub[:]), lowerAddr, expiry, nonce)

	sig, err := sign(ctx, authMessage)
	if err != nil {
		return nil, errors.Wrap(err, "wallet signing failed")
	}
	if !opcrypto.VerifyWalletSignature(lowerAddr, authMessage, sig) {
		return nil, errors.New("wallet signature failed self-verification")
	}

	rec := Record{
		DevicePublicKey:   pub,
		DevicePrivateKey:  priv,
		Mode:              ModeWallet,
		WalletAddress:     lowerAddr,
		ExpiryTimestampMs: expiry,
		CreatedAtMs:       m.now(),
		Proof: &core.DelegationProof{
			AuthMessage:       authMessage,
			WalletSignature:   hex.EncodeToString(sig),
			ExpiryTimestampMs: expiry,
			WalletAddress:     lowerAddr,
		},
	}

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "failed to persist delegation")
	}
	return &rec, nil
}

// CreateAnonymousDelegation generates a device keypair bound to a freshly
// minted session identifier instead of a wallet, per spec.md §3's anonymous
// participation path. No wallet round-trip, no delegation proof.
func (m *Manager) CreateAnonymousDelegation(ctx context.Context, duration Duration) (*Record, error) {
	ctx, span := m.tracer.Start(ctx, "delegation.CreateAnonymousDelegation")
	defer span.End()

	pub, priv, err := opcrypto.GenerateEd25519Keypair()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate device keypair")
	}

	rec := Record{
		DevicePublicKey:   pub,
		DevicePrivateKey:  priv,
		Mode:              ModeAnonymous,
		SessionID:         uuid.NewString(),
		ExpiryTimestampMs: m.now() + duration.milliseconds(),
		CreatedAtMs:       m.now(),
	}

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "failed to persist delegation")
	}
	return &rec, nil
}

// Status reports the active delegation's state, if any.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	rec, err := m.store.Load(ctx)
	if err != nil {
		return Status{}, errors.Wrap(err, "failed to load delegation")
	}
	if rec == nil {
		return Status{Active: false}, nil
	}
	return Status{
		Active:            true,
		Mode:              rec.Mode,
		Address:           rec.Address(),
		ExpiryTimestampMs: rec.ExpiryTimestampMs,
		Expired:           m.now() > rec.ExpiryTimestampMs,
	}, nil
}

// Revoke clears the active delegation (spec.md §3 "Lifecycle": delegations
// are never renewed in place, only replaced or revoked).
func (m *Manager) Revoke(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// Sign fills in msg's author, device_pub_key and delegation_proof from the
// active delegation, computes the canonical payload, and signs it with the
// device key. msg.Kind/ID/Timestamp and the kind-specific payload must
// already be set by the caller (C7's action builders).
func (m *Manager) Sign(ctx context.Context, msg core.Message) (*core.Message, error) {
	ctx, span := m.tracer.Start(ctx, "delegation.Sign")
	defer span.End()

	rec, err := m.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load delegation")
	}
	if rec == nil {
		return nil, core.ErrNoDelegation{}
	}
	if m.now() > rec.ExpiryTimestampMs {
		return nil, core.ErrDelegationExpired{ExpiredAtMs: rec.ExpiryTimestampMs}
	}

	msg.Author = rec.Address()
	msg.DevicePubKey = hex.EncodeToString(rec.DevicePublicKey[:])
	if rec.Mode == ModeWallet {
		proof := *rec.Proof
		msg.DelegationProof = &proof
	} else {
		msg.DelegationProof = nil
	}
	msg.Signature = ""

	payload, err := codec.CanonicalPayload(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build canonical payload")
	}

	sig := opcrypto.Ed25519Sign(rec.DevicePrivateKey, payload)
	msg.Signature = hex.EncodeToString(sig)

	return &msg, nil
}

// Verify reports only whether msg's signature and delegation chain are
// valid. Use VerifyWithReason when the caller needs to know why not.
func (m *Manager) Verify(msg core.Message) bool {
	ok, _ := m.VerifyWithReason(msg)
	return ok
}

// VerifyWithReason performs the full cryptographic verification spec.md
// §4.1 describes: device-key signature over the canonical payload, and —
// when a delegation_proof is present — the wallet's authorization of that
// device key, including binding the proof's text to the device key, wallet
// address and expiry it claims to cover. A message with no delegation_proof
// is only valid if its author is an anonymous (UUIDv4) session id.
func (m *Manager) VerifyWithReason(msg core.Message) (bool, []string) {
	var reasons []string

	if msg.Signature == "" {
		reasons = append(reasons, "missing signature")
	}
	if msg.DevicePubKey == "" {
		reasons = append(reasons, "missing device_pub_key")
	}
	if len(reasons) > 0 {
		return false, reasons
	}

	pub, err := opcrypto.HexToEd25519PublicKey(msg.DevicePubKey)
	if err != nil {
		return false, []string{fmt.Sprintf("malformed device_pub_key: %v", err)}
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(msg.Signature, "0x"))
	if err != nil {
		return false, []string{fmt.Sprintf("malformed signature: %v", err)}
	}

	toVerify := msg
	toVerify.Signature = ""
	payload, err := codec.CanonicalPayload(toVerify)
	if err != nil {
		return false, []string{fmt.Sprintf("failed to build canonical payload: %v", err)}
	}

	if !opcrypto.Ed25519Verify(pub, payload, sig) {
		reasons = append(reasons, "device signature does not match payload")
	}

	if msg.DelegationProof != nil {
		proof := msg.DelegationProof
		if !strings.Contains(proof.AuthMessage, msg.DevicePubKey) {
			reasons = append(reasons, "delegation proof does not bind device_pub_key")
		}
		if !strings.EqualFold(strings.TrimPrefix(proof.WalletAddress, "0x"), strings.TrimPrefix(msg.Author, "0x")) {
			reasons = append(reasons, "delegation proof wallet address does not match author")
		}
		if !strings.Contains(proof.AuthMessage, proof.WalletAddress) {
			reasons = append(reasons, "delegation proof does not bind wallet address")
		}
		if !strings.Contains(proof.AuthMessage, strconv.FormatInt(proof.ExpiryTimestampMs, 10)) {
			reasons = append(reasons, "delegation proof does not bind expiry timestamp")
		}
		walletSig, err := hex.DecodeString(strings.TrimPrefix(proof.WalletSignature, "0x"))
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("malformed wallet signature: %v", err))
		} else if !opcrypto.VerifyWalletSignature(proof.WalletAddress, proof.AuthMessage, walletSig) {
			reasons = append(reasons, "wallet signature over delegation proof is invalid")
		}
		// spec.md §9: a delegation proof whose expiry predates the message's
		// own timestamp is still accepted — neither verification nor apply
		// compares the expiry with anything; only Sign refuses to use an
		// expired delegation, against the current clock. See SPEC_FULL.md
		// "Supplemented details" #2.
	} else if !codec.IsUUIDv4(msg.Author) {
		reasons = append(reasons, "no delegation proof and author is not an anonymous session id")
	}

	return len(reasons) == 0, reasons
}

func composeAuthMessage(devicePubKeyHex, walletAddress string, expiryMs int64, nonce string) string {
	return fmt.Sprintf(
		"OpChan Delegation Request\n"+
			"Device Public Key: %s\n"+
			"Wallet Address: %s\n"+
			"Expires At (unix ms): %d\n"+
			"Nonce: %s\n\n"+
			"Signing this message authorizes the above device key to post "+
			"forum messages on your behalf until it expires.",
		devicePubKeyHex, walletAddress, expiryMs, nonce,
	)
}
