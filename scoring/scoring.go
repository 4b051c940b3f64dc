// Package scoring implements the relevance scorer (C8): a pure,
// deterministic function of a post, its votes and comments, author/voter/
// commenter verification, and the current moderation state. now is always
// passed in rather than sampled, so the function is trivially testable and
// never touches a clock.
package scoring

import (
	"math"

	"github.com/opchan/core/core"
)

const (
	baseScore       = 100.0
	upvoteWeight    = 10.0
	commentWeight   = 3.0
	authorVerBonus  = 20.0
	upvoterVerBonus = 5.0
	commenterVerBonus = 10.0
	halfLifeDays    = 7.0
	moderatedFactor = 0.5
	millisPerDay    = 86_400_000
)

// Verifier reports an address's verification status, as resolved by the
// identity resolver (C6). Passed in rather than called internally so
// Score stays a pure function of its arguments.
type Verifier func(address string) core.VerificationStatus

// Input bundles everything Score needs about one post.
type Input struct {
	Post               core.Message
	UpvoterAddresses   []string
	DownvoterCount     int
	CommenterAddresses []string
	Moderated          bool
	VerificationOf     Verifier
	NowMs              int64
}

// Score computes the relevance score of a post, per spec.md §4.7:
//
//	base        = 100
//	engagement  = 10 * #upvotes + 3 * #comments
//	author_v    = 20 if the author is EnsVerified, else 0
//	upvoter_v   = 5  * count of EnsVerified up-voters
//	commenter_v = 10 * count of distinct EnsVerified commenters
//	decay       = exp(-ln(2) * days_old / 7)      half-life of 7 days
//	mod_factor  = 0.5 if moderated, else 1.0
//	score       = max(0, (base+engagement+author_v+upvoter_v+commenter_v) * decay * mod_factor)
func Score(in Input) float64 {
	engagement := upvoteWeight*float64(len(in.UpvoterAddresses)) + commentWeight*float64(len(in.CommenterAddresses))

	authorV := 0.0
	if in.VerificationOf != nil && in.VerificationOf(in.Post.Author) == core.VerificationEnsVerified {
		authorV = authorVerBonus
	}

	upvoterV := 0.0
	if in.VerificationOf != nil {
		for _, addr := range in.UpvoterAddresses {
			if in.VerificationOf(addr) == core.VerificationEnsVerified {
				upvoterV += upvoterVerBonus
			}
		}
	}

	commenterV := 0.0
	if in.VerificationOf != nil {
		seen := map[string]bool{}
		for _, addr := range in.CommenterAddresses {
			if seen[addr] {
				continue
			}
			seen[addr] = true
			if in.VerificationOf(addr) == core.VerificationEnsVerified {
				commenterV += commenterVerBonus
			}
		}
	}

	daysOld := float64(in.NowMs-in.Post.Timestamp) / millisPerDay
	decay := math.Exp(-math.Ln2 * daysOld / halfLifeDays)

	modFactor := 1.0
	if in.Moderated {
		modFactor = moderatedFactor
	}

	score := (baseScore + engagement + authorV + upvoterV + commenterV) * decay * modFactor
	return math.Max(0, score)
}
