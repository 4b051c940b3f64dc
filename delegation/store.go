// Package delegation implements the delegation store (C2) and delegation
// manager (C3): creating wallet-backed or anonymous delegations, signing
// outgoing messages, and verifying incoming ones. Grounded on the teacher's
// x/key package (key enactment/revocation and ValidateSignedObject), ported
// from the multi-level Concurrent subkey chain to spec.md's flat
// wallet-key -> device-key delegation.
package delegation

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/opchan/core/core"
)

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func hexDecodeFixed(s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, errors.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}

// Mode distinguishes a wallet-backed delegation from an anonymous one.
type Mode string

const (
	ModeWallet    Mode = "wallet"
	ModeAnonymous Mode = "anonymous"
)

// Record is the persisted state of the active delegation: the device
// keypair plus whatever authorizes it.
type Record struct {
	DevicePublicKey  [32]byte
	DevicePrivateKey [64]byte
	Mode             Mode

	WalletAddress string // lowercased; set iff Mode == ModeWallet
	SessionID     string // UUIDv4 textual form; set iff Mode == ModeAnonymous

	Proof             *core.DelegationProof // nil iff Mode == ModeAnonymous
	ExpiryTimestampMs int64
	CreatedAtMs       int64
}

// Address returns the logical author identity this delegation signs as:
// the wallet address for wallet delegations, the session id for anonymous
// ones.
func (r Record) Address() string {
	if r.Mode == ModeWallet {
		return r.WalletAddress
	}
	return r.SessionID
}

// Store persists and loads the single active delegation record. Replaced
// wholesale by Clear+create (spec.md §3 "Lifecycle"); there is never more
// than one active delegation per device.
type Store interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

var delegationBucket = []byte("delegation")
var activeKey = []byte("active")

// boltStore is the durable implementation, sharing the same bbolt file the
// replica's durable store (C5) uses, in its own bucket — mirroring the
// teacher's single-Postgres-instance-many-tables layout, adapted to a
// single-bbolt-file-many-buckets layout.
type boltStore struct {
	db *bolt.DB
}

// NewBoltStore builds a Store backed by db. db is expected to already have
// delegationBucket created (NewBoltStore creates it if missing).
func NewBoltStore(db *bolt.DB) (Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(delegationBucket)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create delegation bucket")
	}
	return &boltStore{db: db}, nil
}

// serializedRecord is Record's JSON-safe mirror; [32]byte/[64]byte don't
// round-trip through encoding/json as arrays cleanly, so they're hex here.
type serializedRecord struct {
	DevicePublicKeyHex  string                 `json:"device_public_key_hex"`
	DevicePrivateKeyHex string                 `json:"device_private_key_hex"`
	Mode                Mode                   `json:"mode"`
	WalletAddress       string                 `json:"wallet_address,omitempty"`
	SessionID           string                 `json:"session_id,omitempty"`
	Proof               *core.DelegationProof  `json:"proof,omitempty"`
	ExpiryTimestampMs   int64                  `json:"expiry_timestamp_ms"`
	CreatedAtMs         int64                  `json:"created_at_ms"`
}

func toSerialized(r Record) serializedRecord {
	return serializedRecord{
		DevicePublicKeyHex:  hexEncode(r.DevicePublicKey[:]),
		DevicePrivateKeyHex: hexEncode(r.DevicePrivateKey[:]),
		Mode:                r.Mode,
		WalletAddress:       r.WalletAddress,
		SessionID:           r.SessionID,
		Proof:               r.Proof,
		ExpiryTimestampMs:   r.ExpiryTimestampMs,
		CreatedAtMs:         r.CreatedAtMs,
	}
}

func fromSerialized(s serializedRecord) (Record, error) {
	var rec Record
	pub, err := hexDecodeFixed(s.DevicePublicKeyHex, 32)
	if err != nil {
		return rec, errors.Wrap(err, "corrupt device public key")
	}
	priv, err := hexDecodeFixed(s.DevicePrivateKeyHex, 64)
	if err != nil {
		return rec, errors.Wrap(err, "corrupt device private key")
	}
	copy(rec.DevicePublicKey[:], pub)
	copy(rec.DevicePrivateKey[:], priv)
	rec.Mode = s.Mode
	rec.WalletAddress = s.WalletAddress
	rec.SessionID = s.SessionID
	rec.Proof = s.Proof
	rec.ExpiryTimestampMs = s.ExpiryTimestampMs
	rec.CreatedAtMs = s.CreatedAtMs
	return rec, nil
}

func (b *boltStore) Load(ctx context.Context) (*Record, error) {
	var raw []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(delegationBucket)
		if bkt == nil {
			return nil
		}
		v := bkt.Get(activeKey)
		if v != nil {
			raw = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read delegation")
	}
	if raw == nil {
		return nil, nil
	}

	var s serializedRecord
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "failed to decode delegation record")
	}
	rec, err := fromSerialized(s)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (b *boltStore) Save(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(toSerialized(rec))
	if err != nil {
		return errors.Wrap(err, "failed to encode delegation record")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(delegationBucket)
		if bkt == nil {
			var err error
			bkt, err = tx.CreateBucket(delegationBucket)
			if err != nil {
				return err
			}
		}
		return bkt.Put(activeKey, raw)
	})
}

func (b *boltStore) Clear(ctx context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(delegationBucket)
		if bkt == nil {
			return nil
		}
		return bkt.Delete(activeKey)
	})
}
