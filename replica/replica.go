// Package replica implements the local replica (C5): the in-memory indexes
// every other component reads from, the deterministic merge algorithm that
// applies incoming and locally authored messages to them, and an optional
// durable backing store. Grounded on the teacher's x/key.repository and
// x/message.service read patterns, ported from a many-reader Postgres table
// set to a single-process in-memory index set with one writer at a time.
package replica

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/opchan/core/codec"
	"github.com/opchan/core/core"
)

// Outcome is the result apply_message (spec.md §4.4) settles on for a
// single message.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDuplicate Outcome = "duplicate"
)

// ApplyResult reports what happened to one message passed to ApplyMessage.
type ApplyResult struct {
	Outcome Outcome
	Report  codec.ValidationReport
}

// Verifier is the cryptographic-verification capability the replica calls
// out to as step 2 of apply_message (the delegation manager, C3).
// Satisfied by *delegation.Manager; declared locally to avoid replica
// depending on the delegation package's concrete types.
type Verifier interface {
	VerifyWithReason(msg core.Message) (bool, []string)
}

// ModerationRecord is the materialized state of the most recent Moderate
// message accepted for a given (cell, target kind, target) slot.
type ModerationRecord struct {
	Key       core.ModerationKey
	Action    core.ModerationAction
	Author    string
	Reason    *string
	Timestamp int64
	MessageID string
}

// VoteRecord is the materialized state of the most recent Vote message
// accepted for a given (target, author) slot.
type VoteRecord struct {
	Key       core.VoteKey
	Value     int
	Timestamp int64
	MessageID string
}

// Replica holds every index a read model is built from. All methods are
// safe for concurrent use; spec.md's single-threaded cooperative model
// means callers don't interleave mid-operation, but transport callbacks and
// local actions can still race to apply a message, so a mutex still buys
// real safety cheaply.
type Replica struct {
	mu sync.Mutex

	cells       map[string]core.Message
	posts       map[string]core.Message
	postsByCell map[string][]string

	comments       map[string]core.Message
	commentsByPost map[string][]string

	votes map[core.VoteKey]VoteRecord

	moderations map[core.ModerationKey]ModerationRecord

	profileUpdates       map[string]core.Message // keyed by message id; insert-if-absent like cells/posts/comments
	latestProfileUpdate  map[string]core.Message // keyed by author; last-write-wins, for the identity resolver

	bookmarks map[string]core.Bookmark
	following map[string]core.Following

	seen       map[core.DedupKey]bool
	pending    map[string]core.Message // keyed by message id; removed only by ClearPending, which no send path calls
	lastSyncMs int64

	durable  Durable  // nil if running without durable persistence
	verifier Verifier // nil disables cryptographic verification (tests only)
}

// New builds an empty Replica. Pass a non-nil Durable to have every applied
// message and local-only record mirrored to disk, and a non-nil Verifier to
// have ApplyMessage cryptographically verify every message before merging
// it (the delegation manager, normally). A nil verifier is for tests that
// exercise merge semantics in isolation from signing.
func New(durable Durable, verifier Verifier) *Replica {
	return &Replica{
		cells:          map[string]core.Message{},
		posts:          map[string]core.Message{},
		postsByCell:    map[string][]string{},
		comments:       map[string]core.Message{},
		commentsByPost: map[string][]string{},
		votes:          map[core.VoteKey]VoteRecord{},
		moderations:    map[core.ModerationKey]ModerationRecord{},
		profileUpdates:      map[string]core.Message{},
		latestProfileUpdate: map[string]core.Message{},
		bookmarks:      map[string]core.Bookmark{},
		following:      map[string]core.Following{},
		seen:           map[core.DedupKey]bool{},
		pending:        map[string]core.Message{},
		durable:        durable,
		verifier:       verifier,
	}
}

// Open builds a Replica and hydrates it from durable, if durable already
// holds data (e.g. from a prior process run). Grounded on the teacher's
// repository-construction-time preload pattern (x/key.repository loads the
// active key set at startup).
func Open(durable Durable, verifier Verifier) (*Replica, error) {
	r := New(durable, verifier)
	if durable == nil {
		return r, nil
	}
	messages, err := durable.LoadAllMessages()
	if err != nil {
		return nil, err
	}
	for _, msg := range messages {
		// Re-applying already-durable messages must not re-write them; use
		// applyLocked directly and skip the durable-write side effect via a
		// hydration flag.
		r.applyLocked(msg, true)
	}

	bookmarks, err := durable.LoadBookmarks()
	if err != nil {
		return nil, err
	}
	for _, b := range bookmarks {
		r.bookmarks[b.ID] = b
	}

	following, err := durable.LoadFollowing()
	if err != nil {
		return nil, err
	}
	for _, f := range following {
		r.following[f.ID] = f
	}

	return r, nil
}

// ApplyMessage runs the full apply_message algorithm of spec.md §4.4: a
// structural parse/validate (C4), a cryptographic verify (C3), a dedup
// check on (kind, id, timestamp), and then the kind-specific merge rule.
// Both the outgoing path (after C7 builds and C3 signs a message) and the
// incoming path (after C9 delivers one) call this same entry point — there
// is exactly one way a message becomes visible in the replica.
func (r *Replica) ApplyMessage(msg core.Message) (ApplyResult, error) {
	report := codec.Validate(msg)
	if r.verifier != nil {
		ok, reasons := r.verifier.VerifyWithReason(msg)
		report = report.WithSignatureResult(ok, reasons)
	}
	if !report.OK {
		recordApplyOutcome(msg.Kind, OutcomeRejected)
		return ApplyResult{Outcome: OutcomeRejected, Report: report}, nil
	}

	r.mu.Lock()
	applied := r.applyLocked(msg, false)
	r.mu.Unlock()

	if !applied {
		recordApplyOutcome(msg.Kind, OutcomeDuplicate)
		slog.DebugContext(context.Background(), fmt.Sprintf("duplicate: %s/%s", msg.Kind, msg.ID), slog.String("module", "replica"))
		return ApplyResult{Outcome: OutcomeDuplicate, Report: report}, nil
	}
	recordApplyOutcome(msg.Kind, OutcomeAccepted)
	slog.DebugContext(context.Background(), fmt.Sprintf("accepted: %s/%s", msg.Kind, msg.ID), slog.String("module", "replica"))
	return ApplyResult{Outcome: OutcomeAccepted, Report: report}, nil
}

func (r *Replica) applyLocked(msg core.Message, hydrating bool) bool {
	key := msg.Key()
	if r.seen[key] {
		return false
	}
	r.seen[key] = true

	switch msg.Kind {
	case core.KindCell:
		if _, exists := r.cells[msg.ID]; !exists {
			r.cells[msg.ID] = msg
		}
	case core.KindPost:
		if _, exists := r.posts[msg.ID]; !exists {
			r.postsByCell[msg.Post.CellID] = append(r.postsByCell[msg.Post.CellID], msg.ID)
			r.posts[msg.ID] = msg
		}
	case core.KindComment:
		if _, exists := r.comments[msg.ID]; !exists {
			r.commentsByPost[msg.Comment.PostID] = insertCommentSorted(r.commentsByPost[msg.Comment.PostID], r.comments, msg)
			r.comments[msg.ID] = msg
		}
	case core.KindVote:
		r.applyVoteLocked(msg)
	case core.KindModerate:
		r.applyModerationLocked(msg)
	case core.KindProfileUpdate:
		r.applyProfileUpdateLocked(msg)
	}

	if !hydrating && r.durable != nil {
		if err := r.durable.SaveMessage(msg); err != nil {
			// Storage failure degrades to a warning, not a rejection (§7):
			// the in-memory apply already succeeded and is authoritative for
			// this process's lifetime.
			slog.WarnContext(context.Background(), fmt.Sprintf("durable save failed: %v", err), slog.String("module", "replica"))
		}
	}

	if msg.Timestamp > r.lastSyncMs {
		r.lastSyncMs = msg.Timestamp
	}
	return true
}

// applyVoteLocked keeps last-timestamp-wins per (target, author), with a
// lexicographic tiebreak on message id for same-timestamp conflicts — the
// deterministic rule spec.md §4.4 requires so that every replica converges
// on the same winner regardless of arrival order.
func (r *Replica) applyVoteLocked(msg core.Message) {
	vk := core.VoteKey{TargetID: msg.Vote.TargetID, Author: msg.Author}
	existing, ok := r.votes[vk]
	if ok && !wins(msg.Timestamp, msg.ID, existing.Timestamp, existing.MessageID) {
		return
	}
	r.votes[vk] = VoteRecord{
		Key:       vk,
		Value:     msg.Vote.Value,
		Timestamp: msg.Timestamp,
		MessageID: msg.ID,
	}
}

func (r *Replica) applyModerationLocked(msg core.Message) {
	mk := core.ModerationKey{
		CellID:     msg.Moderate.CellID,
		TargetKind: msg.Moderate.TargetKind,
		TargetID:   msg.Moderate.TargetID,
	}
	existing, ok := r.moderations[mk]
	if ok && !wins(msg.Timestamp, msg.ID, existing.Timestamp, existing.MessageID) {
		return
	}
	r.moderations[mk] = ModerationRecord{
		Key:       mk,
		Action:    msg.Moderate.Action,
		Author:    msg.Author,
		Reason:    msg.Moderate.Reason,
		Timestamp: msg.Timestamp,
		MessageID: msg.ID,
	}
}

func (r *Replica) applyProfileUpdateLocked(msg core.Message) {
	if _, exists := r.profileUpdates[msg.ID]; !exists {
		r.profileUpdates[msg.ID] = msg
	}

	existing, ok := r.latestProfileUpdate[msg.Author]
	if ok && !wins(msg.Timestamp, msg.ID, existing.Timestamp, existing.ID) {
		return
	}
	r.latestProfileUpdate[msg.Author] = msg
}

// wins reports whether (ts, id) should replace (prevTs, prevID) under
// last-write-wins-with-lexicographic-tiebreak.
func wins(ts int64, id string, prevTs int64, prevID string) bool {
	if ts != prevTs {
		return ts > prevTs
	}
	return id > prevID
}

// insertCommentSorted inserts msg.ID into ids, keeping it ordered by
// (Timestamp, ID) ascending rather than by arrival order. The transport is
// at-least-once with no ordering guarantee, so two replicas receiving the
// same comments in different orders must still converge on the same
// comments_by_post order; sorting on insert is what makes that hold.
func insertCommentSorted(ids []string, comments map[string]core.Message, msg core.Message) []string {
	idx := sort.Search(len(ids), func(i int) bool {
		existing := comments[ids[i]]
		return wins(existing.Timestamp, existing.ID, msg.Timestamp, msg.ID)
	})
	ids = append(ids, "")
	copy(ids[idx+1:], ids[idx:])
	ids[idx] = msg.ID
	return ids
}

// ---- Read accessors. All return copies/snapshots, never live map slices. ----

func (r *Replica) Cell(id string) (core.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.cells[id]
	return m, ok
}

func (r *Replica) Post(id string) (core.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.posts[id]
	return m, ok
}

func (r *Replica) PostsByCell(cellID string) []core.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.postsByCell[cellID]
	out := make([]core.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.posts[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *Replica) Comment(id string) (core.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.comments[id]
	return m, ok
}

func (r *Replica) CommentsByPost(postID string) []core.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.commentsByPost[postID]
	out := make([]core.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.comments[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// VotesFor returns every vote record naming target as its target, in no
// particular order; callers aggregate up/down counts themselves.
func (r *Replica) VotesFor(targetID string) []VoteRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []VoteRecord
	for k, v := range r.votes {
		if k.TargetID == targetID {
			out = append(out, v)
		}
	}
	return out
}

func (r *Replica) Moderation(key core.ModerationKey) (ModerationRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.moderations[key]
	return m, ok
}

// IsModerated reports whether the most recent Moderate record for key is an
// active Moderate action (not Unmoderate, and one exists at all).
func (r *Replica) IsModerated(key core.ModerationKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.moderations[key]
	return ok && rec.Action == core.ActionModerate
}

func (r *Replica) LatestProfileUpdate(author string) (core.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.latestProfileUpdate[author]
	return m, ok
}

// MarkPending records msg as awaiting send/acknowledgement; cleared by
// ClearPending once the transport confirms delivery (or the caller gives
// up retrying).
func (r *Replica) MarkPending(msg core.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[msg.ID] = msg
}

func (r *Replica) ClearPending(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, messageID)
}

// Pending snapshots every message awaiting send/acknowledgement. Uses
// golang.org/x/exp/maps.Values rather than a hand-rolled append loop,
// matching the teacher's own direct dependency on the package for the
// identical map-to-slice snapshot concern.
func (r *Replica) Pending() []core.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Values(r.pending)
}

func (r *Replica) SetBookmark(b core.Bookmark) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookmarks[b.ID] = b
	if r.durable != nil {
		return r.durable.SaveBookmark(b)
	}
	return nil
}

func (r *Replica) RemoveBookmark(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bookmarks, id)
	if r.durable != nil {
		return r.durable.DeleteBookmark(id)
	}
	return nil
}

func (r *Replica) Bookmarks(userID string) []core.Bookmark {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Bookmark
	for _, b := range r.bookmarks {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out
}

func (r *Replica) SetFollowing(f core.Following) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.following[f.ID] = f
	if r.durable != nil {
		return r.durable.SaveFollowing(f)
	}
	return nil
}

func (r *Replica) RemoveFollowing(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.following, id)
	if r.durable != nil {
		return r.durable.DeleteFollowing(id)
	}
	return nil
}

func (r *Replica) Following(userID string) []core.Following {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Following
	for _, f := range r.following {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out
}

func (r *Replica) LastSyncMs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSyncMs
}

func (r *Replica) SetLastSyncMs(ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSyncMs = ms
}
