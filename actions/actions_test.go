package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opchan/core/core"
	"github.com/opchan/core/delegation"
	"github.com/opchan/core/identity"
	"github.com/opchan/core/internal/testutil"
	"github.com/opchan/core/replica"
)

func delegationStoreForTest(t *testing.T) (delegation.Store, error) {
	t.Helper()
	return delegation.NewBoltStore(testutil.OpenTempBoltDB(t))
}

func setup(t *testing.T) (*Actions, *delegation.Manager, *replica.Replica, string) {
	t.Helper()
	clock := func() time.Time { return time.Unix(1_700_000_000, 0) }

	store, err := delegationStoreForTest(t)
	require.NoError(t, err)
	mgr := delegation.NewManager(store, clock)

	r := replica.New(nil, mgr)
	resolver := identity.NewResolver(r, identity.NoopNameLookup{}, clock)

	rec, err := mgr.CreateAnonymousDelegation(context.Background(), delegation.Duration7Days)
	require.NoError(t, err)

	a := New(mgr, r, nil, resolver, func() int64 { return clock().UnixMilli() })
	return a, mgr, r, rec.SessionID
}

func TestCreatePostThenComment(t *testing.T) {
	a, _, r, user := setup(t)

	result := a.CreatePost(context.Background(), user, "c1", "Hello", "World", nil)
	require.True(t, result.OK, result.Error)

	posts := r.PostsByCell("c1")
	require.Len(t, posts, 1)
	assert.Equal(t, "Hello", posts[0].Post.Title)

	commentResult := a.CreateComment(context.Background(), user, posts[0].ID, "nice post", nil)
	require.True(t, commentResult.OK, commentResult.Error)

	comments := r.CommentsByPost(posts[0].ID)
	require.Len(t, comments, 1)
}

func TestCreateCellRequiresEnsVerification(t *testing.T) {
	a, _, _, user := setup(t)

	result := a.CreateCell(context.Background(), user, "General", "A cell", nil, nil)
	assert.False(t, result.OK)
	assert.IsType(t, core.ErrPermissionDenied{}, result.Error)
}

func TestModerateRequiresCellOwnership(t *testing.T) {
	a, mgr, r, _ := setup(t)

	ownerRec, err := mgr.CreateAnonymousDelegation(context.Background(), delegation.Duration7Days)
	require.NoError(t, err)
	owner := ownerRec.SessionID

	cellMsg := core.Message{
		Envelope: core.Envelope{Kind: core.KindCell, ID: "c1", Timestamp: 1, Author: owner},
		Cell:     &core.CellPayload{Name: "General", Description: "d"},
	}
	signedCell, err := mgr.Sign(context.Background(), cellMsg)
	require.NoError(t, err)
	_, err = r.ApplyMessage(*signedCell)
	require.NoError(t, err)
	_, ok := r.Cell("c1")
	require.True(t, ok)

	postResult := a.CreatePost(context.Background(), owner, "c1", "t", "b", nil)
	require.True(t, postResult.OK, postResult.Error)

	intruderRec, err := mgr.CreateAnonymousDelegation(context.Background(), delegation.Duration7Days)
	require.NoError(t, err)

	result := a.ModeratePost(context.Background(), intruderRec.SessionID, postResult.MessageID, "c1", nil, nil)
	assert.False(t, result.OK)
	assert.IsType(t, core.ErrPermissionDenied{}, result.Error)
}

func TestVoteRejectsUnknownTarget(t *testing.T) {
	a, _, _, user := setup(t)
	result := a.Vote(context.Background(), user, "does-not-exist", 1, nil)
	assert.False(t, result.OK)
}

func TestOnCacheUpdatedFiresOnSuccess(t *testing.T) {
	a, _, _, user := setup(t)
	fired := false
	result := a.CreatePost(context.Background(), user, "c1", "t", "b", func() { fired = true })
	require.True(t, result.OK, result.Error)
	assert.True(t, fired)
}
