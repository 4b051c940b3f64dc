// Package core holds the shared data model for the OpChan engine: the
// signed message envelope, its kind-specific payloads, the delegation
// proof, and the read-only derived entities built on top of the replica.
package core

// Kind identifies the payload carried by a signed Message.
type Kind string

const (
	KindCell          Kind = "Cell"
	KindPost          Kind = "Post"
	KindComment       Kind = "Comment"
	KindVote          Kind = "Vote"
	KindModerate      Kind = "Moderate"
	KindProfileUpdate Kind = "ProfileUpdate"
)

// ModerationAction is the action carried by a Moderate payload.
type ModerationAction string

const (
	ActionModerate   ModerationAction = "Moderate"
	ActionUnmoderate ModerationAction = "Unmoderate"
)

// TargetKind is the kind of entity a Moderate message names as its target.
type TargetKind string

const (
	TargetPost    TargetKind = "Post"
	TargetComment TargetKind = "Comment"
	TargetUser    TargetKind = "User"
)

// DisplayPreference controls how UserIdentity.DisplayName is derived.
type DisplayPreference string

const (
	DisplayCallSign DisplayPreference = "CallSign"
	DisplayAddress  DisplayPreference = "Address"
)

// VerificationStatus is computed from the replica and identity cache; it is
// never stored on a message.
type VerificationStatus string

const (
	VerificationAnonymous        VerificationStatus = "Anonymous"
	VerificationWalletUnconnected VerificationStatus = "WalletUnconnected"
	VerificationWalletConnected  VerificationStatus = "WalletConnected"
	VerificationEnsVerified      VerificationStatus = "EnsVerified"
)

// DelegationProof binds a device key to a wallet address for a bounded
// period of time. Present on every message whose author is a wallet
// address; absent for anonymous authors.
type DelegationProof struct {
	AuthMessage      string `json:"auth_message"`
	WalletSignature  string `json:"wallet_signature"`
	ExpiryTimestampMs int64  `json:"expiry_timestamp_ms"`
	WalletAddress    string `json:"wallet_address"`
}

// Envelope is the set of fields common to every signed message kind.
type Envelope struct {
	Kind            Kind             `json:"kind"`
	ID              string           `json:"id"`
	Timestamp       int64            `json:"timestamp"`
	Author          string           `json:"author"`
	Signature       string           `json:"signature,omitempty"`
	DevicePubKey    string           `json:"device_pub_key,omitempty"`
	DelegationProof *DelegationProof `json:"delegation_proof,omitempty"`
}

// CellPayload is the body of a Cell message: the creation of a topic-bounded
// container of posts.
type CellPayload struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Icon        *string `json:"icon,omitempty"`
}

// PostPayload is the body of a Post message.
type PostPayload struct {
	CellID string `json:"cell_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// CommentPayload is the body of a Comment message.
type CommentPayload struct {
	PostID string `json:"post_id"`
	Body   string `json:"body"`
}

// VotePayload is the body of a Vote message. Value must be +1 or -1.
type VotePayload struct {
	TargetID string `json:"target_id"`
	Value    int    `json:"value"`
}

// ModeratePayload is the body of a Moderate message.
type ModeratePayload struct {
	Action     ModerationAction `json:"action"`
	TargetKind TargetKind       `json:"target_kind"`
	TargetID   string           `json:"target_id"`
	CellID     string           `json:"cell_id"`
	Reason     *string          `json:"reason,omitempty"`
}

// ProfileUpdatePayload is the body of a ProfileUpdate message.
type ProfileUpdatePayload struct {
	CallSign          *string           `json:"call_sign,omitempty"`
	DisplayPreference DisplayPreference `json:"display_preference"`
}

// Message is a tagged sum over the six payload kinds. Exactly one of the
// payload pointer fields is non-nil, matching Envelope.Kind. Dispatch is by
// an exhaustive switch on Kind, never by type assertion.
type Message struct {
	Envelope

	Cell          *CellPayload          `json:"cell,omitempty"`
	Post          *PostPayload          `json:"post,omitempty"`
	Comment       *CommentPayload       `json:"comment,omitempty"`
	Vote          *VotePayload          `json:"vote,omitempty"`
	Moderate      *ModeratePayload      `json:"moderate,omitempty"`
	ProfileUpdate *ProfileUpdatePayload `json:"profile_update,omitempty"`
}

// DedupKey is the (kind, id, timestamp) triple the replica deduplicates on.
type DedupKey struct {
	Kind      Kind
	ID        string
	Timestamp int64
}

func (m Message) Key() DedupKey {
	return DedupKey{Kind: m.Kind, ID: m.ID, Timestamp: m.Timestamp}
}

// VoteKey identifies the (target, author) slot a Vote occupies.
type VoteKey struct {
	TargetID string
	Author   string
}

// ModerationKey identifies the (cell, target kind, target) slot a Moderate
// record occupies.
type ModerationKey struct {
	CellID     string
	TargetKind TargetKind
	TargetID   string
}

// ---- Derived (read-model) entities; never persisted as messages. ----

// EnhancedPost is a Post enriched with materialized votes, moderation state
// and a computed relevance score.
type EnhancedPost struct {
	Post                  Message
	Upvoters              []string
	Downvoters            []string
	Moderated             bool
	Score                 float64
	VerifiedUpvoterCount  int
	VerifiedCommenters    []string
}

// EnhancedCell is a Cell enriched with aggregate activity counts.
type EnhancedCell struct {
	Cell                Message
	PostCount           int
	ActiveAuthorCount   int
	RecentActivityCount int
}

// UserIdentity is the resolved display identity of an address.
type UserIdentity struct {
	Address            string
	EnsName            string
	EnsAvatar          string
	CallSign           string
	DisplayPreference  DisplayPreference
	DisplayName        string
	VerificationStatus VerificationStatus
	LastUpdatedMs      int64
}

// Bookmark is a local-only pointer to a post or comment. Never broadcast.
type Bookmark struct {
	ID        string
	UserID    string
	CreatedAt int64

	Title  string
	Author string
	CellID string
	PostID string
}

// BookmarkID builds the "post:"/"comment:" composite id spec.md §3 mandates.
func BookmarkID(targetKind TargetKind, targetID string) string {
	if targetKind == TargetComment {
		return "comment:" + targetID
	}
	return "post:" + targetID
}

// Following is a local-only record of one user following another address.
type Following struct {
	ID             string
	UserID         string
	FollowedAddress string
	FollowedAtMs   int64
}

// FollowingID builds the "<user>:<followed>" composite id spec.md §3
// mandates.
func FollowingID(userID, followedAddress string) string {
	return userID + ":" + followedAddress
}
