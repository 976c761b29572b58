// Package demo ships three reference agents for the switchboard CLI and
// integration tests: account support, shipping, and the store locator.
//
// The agents are deliberately self-contained. Capability scoring runs over
// weighted regex pattern tables, entity extraction is regex-based, and
// replies come from canned templates. They exist to exercise the routing
// engine end to end, not to be useful handlers.
package demo

import (
	"regexp"
	"strings"

	"github.com/northbridge-ai/switchboard/pkg/types"
)

// Agents returns the three reference agents in their canonical
// registration order.
func Agents() []types.Agent {
	return []types.Agent{NewAccount(), NewShipping(), NewStores()}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PATTERN SCORING
// ═══════════════════════════════════════════════════════════════════════════════

// pattern is one weighted capability signal. Weights are additive across
// matches and the sum is clamped to 1.
type pattern struct {
	re     *regexp.Regexp
	weight float64
}

// scoreOf sums the weights of every pattern matching the lowered input.
func scoreOf(input string, patterns []pattern) float64 {
	lower := strings.ToLower(input)

	var score float64
	for _, p := range patterns {
		if p.re.MatchString(lower) {
			score += p.weight
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// capability scores the pattern table and applies the farewell floor, so
// a goodbye routes back to whichever agent held the conversation.
func capability(input string, patterns []pattern) float64 {
	score := scoreOf(input, patterns)
	if isFarewell(input) && score < farewellScore {
		score = farewellScore
	}
	return score
}

// ═══════════════════════════════════════════════════════════════════════════════
// FAREWELLS
// ═══════════════════════════════════════════════════════════════════════════════

// farewellScore is the capability floor every agent reports for a farewell,
// so whoever owned the conversation can close it out.
const farewellScore = 0.75

var (
	byeRe = regexp.MustCompile(`(?i)\b(bye|goodbye|good\s*night|see\s+you|take\s+care)\b`)

	// Gratitude only counts as a farewell when it is the whole input;
	// "thanks, where is my order" is a question, not a goodbye.
	gratitudeRe = regexp.MustCompile(`(?i)^\s*(ok(ay)?[,.!\s]+)?(thanks|thank\s+you|thx|perfect|great)(\s+(so\s+much|a\s+lot|again))?([,.!\s]+(that('s|\s+is)\s+all))?[.!\s]*$`)
)

func isFarewell(input string) bool {
	return byeRe.MatchString(input) || gratitudeRe.MatchString(input)
}
