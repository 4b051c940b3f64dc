package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opchan/core/core"
)

const dayMs = 86_400_000

func verifiedAuthor(addr string) core.VerificationStatus {
	if addr == "author" {
		return core.VerificationEnsVerified
	}
	return core.VerificationWalletUnconnected
}

// TestRelevanceDecayMatchesWorkedExample reproduces the spec's worked
// example: 10 upvotes, 0 comments, ENS-verified author, no moderation.
// At now = post.timestamp the score is 220; seven days later it halves to 110.
func TestRelevanceDecayMatchesWorkedExample(t *testing.T) {
	post := core.Message{Envelope: core.Envelope{Author: "author", Timestamp: 1_000_000}}
	upvoters := make([]string, 10)
	for i := range upvoters {
		upvoters[i] = "voter"
	}

	atPostTime := Score(Input{
		Post:             post,
		UpvoterAddresses: upvoters,
		VerificationOf:   verifiedAuthor,
		NowMs:            post.Timestamp,
	})
	assert.InDelta(t, 220.0, atPostTime, 0.001)

	sevenDaysLater := Score(Input{
		Post:             post,
		UpvoterAddresses: upvoters,
		VerificationOf:   verifiedAuthor,
		NowMs:            post.Timestamp + 7*dayMs,
	})
	assert.InDelta(t, 110.0, sevenDaysLater, 0.001)
}

func TestScoreIsNeverNegative(t *testing.T) {
	post := core.Message{Envelope: core.Envelope{Author: "author", Timestamp: 0}}
	score := Score(Input{
		Post:           post,
		Moderated:      true,
		VerificationOf: verifiedAuthor,
		NowMs:          1000 * dayMs,
	})
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestModerationHalvesScore(t *testing.T) {
	post := core.Message{Envelope: core.Envelope{Author: "author", Timestamp: 0}}
	unmoderated := Score(Input{Post: post, VerificationOf: verifiedAuthor, NowMs: 0})
	moderated := Score(Input{Post: post, VerificationOf: verifiedAuthor, Moderated: true, NowMs: 0})

	assert.InDelta(t, unmoderated/2, moderated, 0.001)
}

func TestScoreStrictlyDecreasesWithAge(t *testing.T) {
	post := core.Message{Envelope: core.Envelope{Author: "author", Timestamp: 0}}
	earlier := Score(Input{Post: post, VerificationOf: verifiedAuthor, NowMs: 1 * dayMs})
	later := Score(Input{Post: post, VerificationOf: verifiedAuthor, NowMs: 2 * dayMs})

	assert.Less(t, later, earlier)
}
