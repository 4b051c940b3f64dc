// Package codec implements the message codec & validator (C4): the
// canonical, deterministic byte encoding used for signing and verification,
// and structural validation of each message kind's required fields.
//
// Canonical payload format (the interoperability constant spec.md §4.3, §9
// leaves as an implementation decision — see SPEC_FULL.md "Supplemented
// details" #1): a single JSON object, keys emitted in lexicographic
// order, integers as base-10 decimals, strings JSON-escaped, no
// insignificant whitespace, and the three signature-bearing fields present
// with the literal JSON value null. The kind-specific payload is nested
// under a single key ("cell", "post", "comment", "vote", "moderate" or
// "profile_update") whose own fields are encoded the same way.
package codec

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/opchan/core/core"
)

// CanonicalPayload returns the deterministic byte sequence that gets signed
// and verified for msg, with signature, device_pub_key and delegation_proof
// logically deleted (set to the absent sentinel, null).
func CanonicalPayload(msg core.Message) ([]byte, error) {
	fields := map[string]string{
		"author":           encodeString(msg.Author),
		"delegation_proof": "null",
		"device_pub_key":   "null",
		"id":               encodeString(msg.ID),
		"kind":             encodeString(string(msg.Kind)),
		"signature":        "null",
		"timestamp":        encodeInt(msg.Timestamp),
	}

	switch msg.Kind {
	case core.KindCell:
		if msg.Cell == nil {
			return nil, errors.New("Cell message missing cell payload")
		}
		fields["cell"] = encodeCellPayload(msg.Cell)
	case core.KindPost:
		if msg.Post == nil {
			return nil, errors.New("Post message missing post payload")
		}
		fields["post"] = encodePostPayload(msg.Post)
	case core.KindComment:
		if msg.Comment == nil {
			return nil, errors.New("Comment message missing comment payload")
		}
		fields["comment"] = encodeCommentPayload(msg.Comment)
	case core.KindVote:
		if msg.Vote == nil {
			return nil, errors.New("Vote message missing vote payload")
		}
		fields["vote"] = encodeVotePayload(msg.Vote)
	case core.KindModerate:
		if msg.Moderate == nil {
			return nil, errors.New("Moderate message missing moderate payload")
		}
		fields["moderate"] = encodeModeratePayload(msg.Moderate)
	case core.KindProfileUpdate:
		if msg.ProfileUpdate == nil {
			return nil, errors.New("ProfileUpdate message missing profile_update payload")
		}
		fields["profile_update"] = encodeProfileUpdatePayload(msg.ProfileUpdate)
	default:
		return nil, errors.Errorf("unknown message kind %q", msg.Kind)
	}

	return []byte(encodeObject(fields)), nil
}

func encodeObject(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, encodeString(k)+":"+fields[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func encodeString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func encodeOptionalString(p *string) string {
	if p == nil {
		return "null"
	}
	return encodeString(*p)
}

func encodeInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func encodeCellPayload(p *core.CellPayload) string {
	return encodeObject(map[string]string{
		"description": encodeString(p.Description),
		"icon":        encodeOptionalString(p.Icon),
		"name":        encodeString(p.Name),
	})
}

func encodePostPayload(p *core.PostPayload) string {
	return encodeObject(map[string]string{
		"body":    encodeString(p.Body),
		"cell_id": encodeString(p.CellID),
		"title":   encodeString(p.Title),
	})
}

func encodeCommentPayload(p *core.CommentPayload) string {
	return encodeObject(map[string]string{
		"body":    encodeString(p.Body),
		"post_id": encodeString(p.PostID),
	})
}

func encodeVotePayload(p *core.VotePayload) string {
	return encodeObject(map[string]string{
		"target_id": encodeString(p.TargetID),
		"value":     encodeInt(int64(p.Value)),
	})
}

func encodeModeratePayload(p *core.ModeratePayload) string {
	return encodeObject(map[string]string{
		"action":      encodeString(string(p.Action)),
		"cell_id":     encodeString(p.CellID),
		"reason":      encodeOptionalString(p.Reason),
		"target_id":   encodeString(p.TargetID),
		"target_kind": encodeString(string(p.TargetKind)),
	})
}

func encodeProfileUpdatePayload(p *core.ProfileUpdatePayload) string {
	return encodeObject(map[string]string{
		"call_sign":          encodeOptionalString(p.CallSign),
		"display_preference": encodeString(string(p.DisplayPreference)),
	})
}
