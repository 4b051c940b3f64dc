package delegation

import (
	"context"
	"testing"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opchan/core/core"
	"github.com/opchan/core/internal/testutil"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewBoltStore(testutil.OpenTempBoltDB(t))
	require.NoError(t, err)
	return store
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreateWalletDelegationRoundTrip(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	address := gethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	mgr := NewManager(openTestStore(t), fixedClock(time.Unix(1_700_000_000, 0)))

	signer := func(ctx context.Context, message string) ([]byte, error) {
		hash := gethcrypto.Keccak256([]byte("\x19Ethereum Signed Message:\n" + itoa(len(message)) + message))
		return gethcrypto.Sign(hash, key)
	}

	rec, err := mgr.CreateWalletDelegation(context.Background(), address, Duration7Days, signer)
	require.NoError(t, err)
	assert.Equal(t, ModeWallet, rec.Mode)

	status, err := mgr.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.False(t, status.Expired)
}

func TestSignThenVerifyRoundTrip(t *testing.T) {
	mgr := NewManager(openTestStore(t), fixedClock(time.Unix(1_700_000_000, 0)))
	_, err := mgr.CreateAnonymousDelegation(context.Background(), Duration7Days)
	require.NoError(t, err)

	unsigned := core.Message{
		Envelope: core.Envelope{Kind: core.KindPost, ID: "p1", Timestamp: 1_700_000_000_000},
		Post:     &core.PostPayload{CellID: "c1", Title: "hello", Body: "world"},
	}

	signed, err := mgr.Sign(context.Background(), unsigned)
	require.NoError(t, err)
	assert.NotEmpty(t, signed.Signature)

	ok, reasons := mgr.VerifyWithReason(*signed)
	assert.True(t, ok, reasons)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	mgr := NewManager(openTestStore(t), fixedClock(time.Unix(1_700_000_000, 0)))
	_, err := mgr.CreateAnonymousDelegation(context.Background(), Duration7Days)
	require.NoError(t, err)

	unsigned := core.Message{
		Envelope: core.Envelope{Kind: core.KindPost, ID: "p1", Timestamp: 1_700_000_000_000},
		Post:     &core.PostPayload{CellID: "c1", Title: "hello", Body: "world"},
	}
	signed, err := mgr.Sign(context.Background(), unsigned)
	require.NoError(t, err)

	signed.Post.Body = "tampered"
	assert.False(t, mgr.Verify(*signed))
}

func TestSignWithoutDelegationFails(t *testing.T) {
	mgr := NewManager(openTestStore(t), fixedClock(time.Unix(1_700_000_000, 0)))
	_, err := mgr.Sign(context.Background(), core.Message{
		Envelope: core.Envelope{Kind: core.KindPost, ID: "p1", Timestamp: 1},
		Post:     &core.PostPayload{CellID: "c1", Title: "t", Body: "b"},
	})
	assert.Error(t, err)
	assert.IsType(t, core.ErrNoDelegation{}, err)
}

func TestSignAfterExpiryFails(t *testing.T) {
	store := openTestStore(t)
	mgr := NewManager(store, fixedClock(time.Unix(1_700_000_000, 0)))
	_, err := mgr.CreateAnonymousDelegation(context.Background(), Duration7Days)
	require.NoError(t, err)

	laterMgr := NewManager(store, fixedClock(time.Unix(1_700_000_000, 0).Add(8*24*time.Hour)))
	_, err = laterMgr.Sign(context.Background(), core.Message{
		Envelope: core.Envelope{Kind: core.KindPost, ID: "p1", Timestamp: 1},
		Post:     &core.PostPayload{CellID: "c1", Title: "t", Body: "b"},
	})
	assert.Error(t, err)
	assert.IsType(t, core.ErrDelegationExpired{}, err)
}

func TestVerifyRejectsMessageWithNonUUIDAnonymousAuthor(t *testing.T) {
	mgr := NewManager(openTestStore(t), fixedClock(time.Unix(1_700_000_000, 0)))
	_, err := mgr.CreateAnonymousDelegation(context.Background(), Duration7Days)
	require.NoError(t, err)

	signed, err := mgr.Sign(context.Background(), core.Message{
		Envelope: core.Envelope{Kind: core.KindPost, ID: "p1", Timestamp: 1},
		Post:     &core.PostPayload{CellID: "c1", Title: "t", Body: "b"},
	})
	require.NoError(t, err)

	signed.Author = "not-a-uuid"
	ok, reasons := mgr.VerifyWithReason(*signed)
	assert.False(t, ok)
	assert.NotEmpty(t, reasons)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
