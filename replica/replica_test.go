package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opchan/core/core"
)

const testAuthor = "3f1c1111-2222-4333-8444-a8b2a8b2a8b2"
const testOwner = "5f1c1111-2222-4333-8444-a8b2a8b2a8b2"

func TestApplyMessageDedups(t *testing.T) {
	r := New(nil, nil)
	msg := core.Message{
		Envelope: core.Envelope{Kind: core.KindPost, ID: "p1", Timestamp: 1, Author: testAuthor},
		Post:     &core.PostPayload{CellID: "c1", Title: "t", Body: "b"},
	}
	result, err := r.ApplyMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, result.Outcome)

	result, err = r.ApplyMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
}

func TestApplyMessageRejectsInvalidStructure(t *testing.T) {
	r := New(nil, nil)
	msg := core.Message{
		Envelope: core.Envelope{Kind: core.KindPost, ID: "p1", Timestamp: 1, Author: testAuthor},
		Post:     &core.PostPayload{CellID: "c1", Title: "", Body: "b"},
	}
	result, err := r.ApplyMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Outcome)
}

func TestApplyPostIndexesByCell(t *testing.T) {
	r := New(nil, nil)
	msg := core.Message{
		Envelope: core.Envelope{Kind: core.KindPost, ID: "p1", Timestamp: 1, Author: testAuthor},
		Post:     &core.PostPayload{CellID: "c1", Title: "t", Body: "b"},
	}
	_, err := r.ApplyMessage(msg)
	require.NoError(t, err)

	posts := r.PostsByCell("c1")
	assert.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].ID)
}

func TestVoteLastWriteWins(t *testing.T) {
	r := New(nil, nil)
	earlier := core.Message{
		Envelope: core.Envelope{Kind: core.KindVote, ID: "v1", Timestamp: 1, Author: testAuthor},
		Vote:     &core.VotePayload{TargetID: "p1", Value: 1},
	}
	later := core.Message{
		Envelope: core.Envelope{Kind: core.KindVote, ID: "v2", Timestamp: 2, Author: testAuthor},
		Vote:     &core.VotePayload{TargetID: "p1", Value: -1},
	}
	_, err := r.ApplyMessage(later)
	require.NoError(t, err)
	_, err = r.ApplyMessage(earlier)
	require.NoError(t, err)

	votes := r.VotesFor("p1")
	require.Len(t, votes, 1)
	assert.Equal(t, -1, votes[0].Value)
}

func TestVoteTimestampTieBreaksLexicographically(t *testing.T) {
	r := New(nil, nil)
	a := core.Message{
		Envelope: core.Envelope{Kind: core.KindVote, ID: "aaa", Timestamp: 1, Author: testAuthor},
		Vote:     &core.VotePayload{TargetID: "p1", Value: 1},
	}
	b := core.Message{
		Envelope: core.Envelope{Kind: core.KindVote, ID: "bbb", Timestamp: 1, Author: testAuthor},
		Vote:     &core.VotePayload{TargetID: "p1", Value: -1},
	}
	_, err := r.ApplyMessage(a)
	require.NoError(t, err)
	_, err = r.ApplyMessage(b)
	require.NoError(t, err)

	votes := r.VotesFor("p1")
	require.Len(t, votes, 1)
	assert.Equal(t, -1, votes[0].Value) // "bbb" > "aaa"
}

func TestModerationIsModerated(t *testing.T) {
	r := New(nil, nil)
	mod := core.Message{
		Envelope: core.Envelope{Kind: core.KindModerate, ID: "m1", Timestamp: 1, Author: testOwner},
		Moderate: &core.ModeratePayload{Action: core.ActionModerate, TargetKind: core.TargetPost, TargetID: "p1", CellID: "c1"},
	}
	_, err := r.ApplyMessage(mod)
	require.NoError(t, err)

	key := core.ModerationKey{CellID: "c1", TargetKind: core.TargetPost, TargetID: "p1"}
	assert.True(t, r.IsModerated(key))

	unmod := core.Message{
		Envelope: core.Envelope{Kind: core.KindModerate, ID: "m2", Timestamp: 2, Author: testOwner},
		Moderate: &core.ModeratePayload{Action: core.ActionUnmoderate, TargetKind: core.TargetPost, TargetID: "p1", CellID: "c1"},
	}
	_, err = r.ApplyMessage(unmod)
	require.NoError(t, err)
	assert.False(t, r.IsModerated(key))
}

func TestCommentsByPostConvergeRegardlessOfArrivalOrder(t *testing.T) {
	c1 := core.Message{
		Envelope: core.Envelope{Kind: core.KindComment, ID: "c1", Timestamp: 1, Author: testAuthor},
		Comment:  &core.CommentPayload{PostID: "p1", Body: "first"},
	}
	c2 := core.Message{
		Envelope: core.Envelope{Kind: core.KindComment, ID: "c2", Timestamp: 2, Author: testAuthor},
		Comment:  &core.CommentPayload{PostID: "p1", Body: "second"},
	}
	c3 := core.Message{
		Envelope: core.Envelope{Kind: core.KindComment, ID: "c3", Timestamp: 3, Author: testAuthor},
		Comment:  &core.CommentPayload{PostID: "p1", Body: "third"},
	}

	inOrder := New(nil, nil)
	for _, m := range []core.Message{c1, c2, c3} {
		_, err := inOrder.ApplyMessage(m)
		require.NoError(t, err)
	}

	outOfOrder := New(nil, nil)
	for _, m := range []core.Message{c3, c1, c2} {
		_, err := outOfOrder.ApplyMessage(m)
		require.NoError(t, err)
	}

	wantIDs := []string{"c1", "c2", "c3"}

	gotInOrder := inOrder.CommentsByPost("p1")
	require.Len(t, gotInOrder, 3)
	for i, m := range gotInOrder {
		assert.Equal(t, wantIDs[i], m.ID)
	}

	gotOutOfOrder := outOfOrder.CommentsByPost("p1")
	require.Len(t, gotOutOfOrder, 3)
	for i, m := range gotOutOfOrder {
		assert.Equal(t, wantIDs[i], m.ID)
	}
}

func TestBoltStoreRoundTrip(t *testing.T) {
	store, err := OpenBoltStore(t.TempDir() + "/replica.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := New(store, nil)
	msg := core.Message{
		Envelope: core.Envelope{Kind: core.KindPost, ID: "p1", Timestamp: 1, Author: testAuthor},
		Post:     &core.PostPayload{CellID: "c1", Title: "t", Body: "b"},
	}
	_, err = r.ApplyMessage(msg)
	require.NoError(t, err)

	reopened, err := Open(store, nil)
	require.NoError(t, err)
	post, ok := reopened.Post("p1")
	require.True(t, ok)
	assert.Equal(t, "t", post.Post.Title)
}
