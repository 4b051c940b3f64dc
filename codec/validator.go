package codec

import (
	"regexp"
	"time"

	"github.com/opchan/core/core"
)

const (
	maxTitleLength = 300
	maxBodyLength  = 10000

	// Validate rejects timestamp <= 0. maxFutureSkewMs bounds "far future"
	// to 100 years past now, evaluated at validation time.
	maxFutureSkewMs = int64(100 * 365 * 24 * 3600 * 1000)
)

var (
	hexAddressRe = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{40}$`)
	uuidV4Re     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)
)

// IsHexAddress reports whether s is a 20-byte hex address, optionally
// 0x-prefixed.
func IsHexAddress(s string) bool {
	return hexAddressRe.MatchString(s)
}

// IsUUIDv4 reports whether s has the textual form of a version-4 UUID.
func IsUUIDv4(s string) bool {
	return uuidV4Re.MatchString(s)
}

// ValidationReport is the structural diagnostic returned by Validate
// (spec.md §4.3). SignatureOK is left false until the caller (typically the
// replica, after it consults the delegation manager) fills it in via
// WithSignatureResult.
type ValidationReport struct {
	OK            bool
	MissingFields []string
	InvalidFields []string
	SignatureOK   bool
	Errors        []string
	Warnings      []string
}

// WithSignatureResult folds a cryptographic verification result into an
// existing structural report, matching the combined `{ok, ..., signature_ok,
// ...}` shape spec.md §4.3 describes.
func (r ValidationReport) WithSignatureResult(ok bool, reasons []string) ValidationReport {
	r.SignatureOK = ok
	r.OK = r.OK && ok
	r.Errors = append(append([]string{}, r.Errors...), reasons...)
	return r
}

// Validate performs the structural checks of spec.md §4.3. It never
// inspects signature/device_pub_key/delegation_proof cryptographically —
// that is the delegation manager's job (C3).
func Validate(msg core.Message) ValidationReport {
	report := ValidationReport{OK: true}

	if msg.ID == "" {
		report.missing("id")
	}
	if msg.Timestamp <= 0 {
		report.invalid("timestamp")
	}
	if now := time.Now().UnixMilli(); msg.Timestamp > now+maxFutureSkewMs {
		report.invalid("timestamp")
	}

	if msg.Author == "" {
		report.missing("author")
	} else if !IsHexAddress(msg.Author) && !IsUUIDv4(msg.Author) {
		report.invalid("author")
	}

	switch msg.Kind {
	case core.KindCell:
		validateCell(&report, msg.Cell)
	case core.KindPost:
		validatePost(&report, msg.Post)
	case core.KindComment:
		validateComment(&report, msg.Comment)
	case core.KindVote:
		validateVote(&report, msg.Vote)
	case core.KindModerate:
		validateModerate(&report, msg.Moderate)
	case core.KindProfileUpdate:
		validateProfileUpdate(&report, msg.ProfileUpdate)
	default:
		report.invalid("kind")
	}

	// spec.md §9: a ProfileUpdate with display_preference=CallSign and an
	// empty call_sign is accepted, with a warning, not rejected.
	if msg.Kind == core.KindProfileUpdate && msg.ProfileUpdate != nil {
		if msg.ProfileUpdate.DisplayPreference == core.DisplayCallSign &&
			(msg.ProfileUpdate.CallSign == nil || *msg.ProfileUpdate.CallSign == "") {
			report.Warnings = append(report.Warnings, "display_preference is CallSign but call_sign is empty")
		}
	}

	return report
}

func (r *ValidationReport) missing(field string) {
	r.OK = false
	r.MissingFields = append(r.MissingFields, field)
}

func (r *ValidationReport) invalid(field string) {
	r.OK = false
	r.InvalidFields = append(r.InvalidFields, field)
}

func validateCell(r *ValidationReport, p *core.CellPayload) {
	if p == nil {
		r.missing("cell")
		return
	}
	if p.Name == "" {
		r.missing("cell.name")
	}
	if p.Description == "" {
		r.missing("cell.description")
	}
}

func validatePost(r *ValidationReport, p *core.PostPayload) {
	if p == nil {
		r.missing("post")
		return
	}
	if p.CellID == "" {
		r.missing("post.cell_id")
	}
	if p.Title == "" || len(p.Title) > maxTitleLength {
		r.invalid("post.title")
	}
	if p.Body == "" || len(p.Body) > maxBodyLength {
		r.invalid("post.body")
	}
}

func validateComment(r *ValidationReport, p *core.CommentPayload) {
	if p == nil {
		r.missing("comment")
		return
	}
	if p.PostID == "" {
		r.missing("comment.post_id")
	}
	if p.Body == "" || len(p.Body) > maxBodyLength {
		r.invalid("comment.body")
	}
}

func validateVote(r *ValidationReport, p *core.VotePayload) {
	if p == nil {
		r.missing("vote")
		return
	}
	if p.TargetID == "" {
		r.missing("vote.target_id")
	}
	if p.Value != 1 && p.Value != -1 {
		r.invalid("vote.value")
	}
}

func validateModerate(r *ValidationReport, p *core.ModeratePayload) {
	if p == nil {
		r.missing("moderate")
		return
	}
	if p.CellID == "" {
		r.missing("moderate.cell_id")
	}
	if p.TargetID == "" {
		r.missing("moderate.target_id")
	}
	switch p.Action {
	case core.ActionModerate, core.ActionUnmoderate:
	default:
		r.invalid("moderate.action")
	}
	switch p.TargetKind {
	case core.TargetPost, core.TargetComment, core.TargetUser:
	default:
		r.invalid("moderate.target_kind")
	}
}

func validateProfileUpdate(r *ValidationReport, p *core.ProfileUpdatePayload) {
	if p == nil {
		r.missing("profile_update")
		return
	}
	switch p.DisplayPreference {
	case core.DisplayCallSign, core.DisplayAddress:
	default:
		r.invalid("profile_update.display_preference")
	}
}
