// Package actions implements the forum actions (C7): building, signing,
// applying, marking pending, and sending every outgoing message kind, with
// the pre-send permission matrix (core.PermissionMatrix) enforced before a
// single byte is signed. Grounded on the teacher's x/message.Service and
// x/association.Service Create methods, which follow the identical
// build-sign-persist-publish sequence for posts and reactions.
package actions

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/opchan/core/core"
	"github.com/opchan/core/delegation"
	"github.com/opchan/core/identity"
	"github.com/opchan/core/replica"
	"github.com/opchan/core/transport"
)

// Clock is injected so message ids and timestamps are deterministic in
// tests, matching spec.md §9's "clock and randomness are injected
// capabilities".
type Clock func() int64

// IDGenerator mints the version-4 UUID every message id must take.
type IDGenerator func() string

// Actions is C7.
type Actions struct {
	delegation *delegation.Manager
	replica    *replica.Replica
	transport  transport.Transport
	identity   *identity.Resolver
	now        Clock
	newID      IDGenerator
}

// New wires C7 to its dependencies. transport may be nil for a pure local
// (single-device) deployment — sends then silently no-op rather than error,
// matching spec.md's "the message is already in the local replica" stance
// on send failures.
func New(mgr *delegation.Manager, r *replica.Replica, t transport.Transport, resolver *identity.Resolver, now Clock) *Actions {
	return &Actions{
		delegation: mgr,
		replica:    r,
		transport:  t,
		identity:   resolver,
		now:        now,
		newID:      uuid.NewString,
	}
}

// Result is the uniform shape every action returns: spec.md §4.6's
// "{ok, data?, error?}".
type Result struct {
	OK        bool
	MessageID string
	Error     error
}

func failure(err error) Result {
	return Result{OK: false, Error: err}
}

// checkPermission enforces core.PermissionMatrix ahead of building any
// message. currentUser is the address/session id signing the action,
// cellID identifies the cell a moderation action targets (ignored when the
// action's requirement has no owner check).
func (a *Actions) checkPermission(ctx context.Context, action core.ActionName, currentUser string, cellID string) error {
	req, ok := core.PermissionMatrix[action]
	if !ok {
		return errors.Errorf("no permission rule registered for action %q", action)
	}

	if (req.RequiresAuth || req.RequiresEnsVerified || req.RequiresCellOwner) && currentUser == "" {
		return core.ErrPermissionDenied{Action: string(action), Reason: "not authenticated"}
	}

	if req.RequiresEnsVerified {
		id, err := a.identity.Get(ctx, currentUser, false)
		if err != nil {
			return core.ErrPermissionDenied{Action: string(action), Reason: "identity resolution failed"}
		}
		if id.VerificationStatus != core.VerificationEnsVerified {
			return core.ErrPermissionDenied{Action: string(action), Reason: "author is not ENS-verified"}
		}
	}

	if req.RequiresCellOwner {
		cell, ok := a.replica.Cell(cellID)
		if !ok {
			return core.ErrPermissionDenied{Action: string(action), Reason: "cell not found"}
		}
		if cell.Author != currentUser {
			return core.ErrPermissionDenied{Action: string(action), Reason: "not the cell owner"}
		}
	}

	return nil
}

// buildAndSend is the common tail of every action: sign via C3, apply via
// C5, mark pending, send via C9, and invoke onCacheUpdated once the replica
// reflects the change — before the send is attempted, so the caller's UI
// updates regardless of transport health.
func (a *Actions) buildAndSend(ctx context.Context, unsigned core.Message, onCacheUpdated func()) Result {
	signed, err := a.delegation.Sign(ctx, unsigned)
	if err != nil {
		return failure(err)
	}

	result, err := a.replica.ApplyMessage(*signed)
	if err != nil {
		return failure(core.ErrStorageFailure{Cause: err})
	}
	if result.Outcome == replica.OutcomeRejected {
		return failure(core.ErrMalformedMessage{
			MissingFields: result.Report.MissingFields,
			InvalidFields: result.Report.InvalidFields,
		})
	}

	a.replica.MarkPending(*signed)
	if onCacheUpdated != nil {
		onCacheUpdated()
	}

	if a.transport != nil {
		if err := a.transport.Send(ctx, *signed); err != nil {
			return Result{OK: true, MessageID: signed.ID, Error: core.ErrTransportUnavailable{Cause: err}}
		}
	}

	return Result{OK: true, MessageID: signed.ID}
}

func (a *Actions) CreateCell(ctx context.Context, currentUser string, name, description string, icon *string, onCacheUpdated func()) Result {
	if err := a.checkPermission(ctx, core.ActionCreateCell, currentUser, ""); err != nil {
		return failure(err)
	}
	unsigned := core.Message{
		Envelope: core.Envelope{Kind: core.KindCell, ID: a.newID(), Timestamp: a.now()},
		Cell:     &core.CellPayload{Name: name, Description: description, Icon: icon},
	}
	return a.buildAndSend(ctx, unsigned, onCacheUpdated)
}

func (a *Actions) CreatePost(ctx context.Context, currentUser, cellID, title, body string, onCacheUpdated func()) Result {
	if err := a.checkPermission(ctx, core.ActionCreatePost, currentUser, cellID); err != nil {
		return failure(err)
	}
	unsigned := core.Message{
		Envelope: core.Envelope{Kind: core.KindPost, ID: a.newID(), Timestamp: a.now()},
		Post:     &core.PostPayload{CellID: cellID, Title: title, Body: body},
	}
	return a.buildAndSend(ctx, unsigned, onCacheUpdated)
}

func (a *Actions) CreateComment(ctx context.Context, currentUser, postID, body string, onCacheUpdated func()) Result {
	if err := a.checkPermission(ctx, core.ActionCreateComment, currentUser, ""); err != nil {
		return failure(err)
	}
	unsigned := core.Message{
		Envelope: core.Envelope{Kind: core.KindComment, ID: a.newID(), Timestamp: a.now()},
		Comment:  &core.CommentPayload{PostID: postID, Body: body},
	}
	return a.buildAndSend(ctx, unsigned, onCacheUpdated)
}

func (a *Actions) Vote(ctx context.Context, currentUser, targetID string, value int, onCacheUpdated func()) Result {
	if err := a.checkPermission(ctx, core.ActionVote, currentUser, ""); err != nil {
		return failure(err)
	}
	if _, ok := a.replica.Post(targetID); !ok {
		if _, ok := a.replica.Comment(targetID); !ok {
			return failure(core.ErrNotFound{What: "vote target", ID: targetID})
		}
	}
	unsigned := core.Message{
		Envelope: core.Envelope{Kind: core.KindVote, ID: a.newID(), Timestamp: a.now()},
		Vote:     &core.VotePayload{TargetID: targetID, Value: value},
	}
	return a.buildAndSend(ctx, unsigned, onCacheUpdated)
}

func (a *Actions) moderate(ctx context.Context, action core.ActionName, moderationAction core.ModerationAction, currentUser string, targetKind core.TargetKind, targetID, cellID string, reason *string, onCacheUpdated func()) Result {
	if err := a.checkPermission(ctx, action, currentUser, cellID); err != nil {
		return failure(err)
	}
	unsigned := core.Message{
		Envelope: core.Envelope{Kind: core.KindModerate, ID: a.newID(), Timestamp: a.now()},
		Moderate: &core.ModeratePayload{
			Action:     moderationAction,
			TargetKind: targetKind,
			TargetID:   targetID,
			CellID:     cellID,
			Reason:     reason,
		},
	}
	return a.buildAndSend(ctx, unsigned, onCacheUpdated)
}

func (a *Actions) ModeratePost(ctx context.Context, currentUser, postID, cellID string, reason *string, onCacheUpdated func()) Result {
	return a.moderate(ctx, core.ActionModeratePost, core.ActionModerate, currentUser, core.TargetPost, postID, cellID, reason, onCacheUpdated)
}

func (a *Actions) ModerateComment(ctx context.Context, currentUser, commentID, cellID string, reason *string, onCacheUpdated func()) Result {
	return a.moderate(ctx, core.ActionModerateComment, core.ActionModerate, currentUser, core.TargetComment, commentID, cellID, reason, onCacheUpdated)
}

func (a *Actions) ModerateUser(ctx context.Context, currentUser, targetUser, cellID string, reason *string, onCacheUpdated func()) Result {
	return a.moderate(ctx, core.ActionModerateUser, core.ActionModerate, currentUser, core.TargetUser, targetUser, cellID, reason, onCacheUpdated)
}

func (a *Actions) UnmoderatePost(ctx context.Context, currentUser, postID, cellID string, onCacheUpdated func()) Result {
	return a.moderate(ctx, core.ActionUnmoderatePost, core.ActionUnmoderate, currentUser, core.TargetPost, postID, cellID, nil, onCacheUpdated)
}

func (a *Actions) UnmoderateComment(ctx context.Context, currentUser, commentID, cellID string, onCacheUpdated func()) Result {
	return a.moderate(ctx, core.ActionUnmoderateComment, core.ActionUnmoderate, currentUser, core.TargetComment, commentID, cellID, nil, onCacheUpdated)
}

func (a *Actions) UnmoderateUser(ctx context.Context, currentUser, targetUser, cellID string, onCacheUpdated func()) Result {
	return a.moderate(ctx, core.ActionUnmoderateUser, core.ActionUnmoderate, currentUser, core.TargetUser, targetUser, cellID, nil, onCacheUpdated)
}

// ProfileUpdate implements update_profile: it is the sole build/sign/apply/
// send path for profile changes, deliberately kept here rather than split
// onto the identity resolver (C6) — see DESIGN.md's Open Question
// resolutions for why.
func (a *Actions) ProfileUpdate(ctx context.Context, currentUser string, callSign *string, displayPreference core.DisplayPreference, onCacheUpdated func()) Result {
	if err := a.checkPermission(ctx, core.ActionProfileUpdate, currentUser, ""); err != nil {
		return failure(err)
	}
	unsigned := core.Message{
		Envelope:      core.Envelope{Kind: core.KindProfileUpdate, ID: a.newID(), Timestamp: a.now()},
		ProfileUpdate: &core.ProfileUpdatePayload{CallSign: callSign, DisplayPreference: displayPreference},
	}
	result := a.buildAndSend(ctx, unsigned, onCacheUpdated)
	if result.OK {
		a.identity.Invalidate(currentUser)
	}
	return result
}
