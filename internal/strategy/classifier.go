package strategy

import (
	"math"
	"strings"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Score thresholds mapping a risk score to a tier.
const (
	aggressiveScore   = 3
	conservativeScore = -1
)

var aggressiveVocabulary = []string{
	"memecoin", "meme", "degen", "leverage", "futures", "100x",
	"moonshot", "launchpad", "airdrop", "altcoin", "pump",
}

var conservativeVocabulary = []string{
	"bitcoin", "btc", "staking", "long-term", "hodl", "index",
	"dca", "stablecoin", "yield", "blue-chip", "savings",
}

// UserSignals is the social footprint of a user. Rates are fractions in
// [0,1]. Out-of-range or unknown values contribute nothing to the score.
type UserSignals struct {
	AccountAgeDays    float64
	CryptoMentionRate float64
	EngagementRate    float64
	RiskTolerance     string // low, medium, high
	TradingExperience string // beginner, intermediate, expert
	Interests         []string
}

// Score computes the integer risk score for s.
func Score(s UserSignals) int {
	score := 0

	if valid(s.AccountAgeDays) && s.AccountAgeDays > 0 {
		switch {
		case s.AccountAgeDays < 180:
			score++
		case s.AccountAgeDays > 1095:
			score--
		}
	}

	if rate(s.CryptoMentionRate) {
		switch {
		case s.CryptoMentionRate > 0.3:
			score++
		case s.CryptoMentionRate < 0.05:
			score--
		}
	}

	if rate(s.EngagementRate) && s.EngagementRate > 0.05 {
		score++
	}

	switch strings.ToLower(strings.TrimSpace(s.RiskTolerance)) {
	case "high":
		score += 2
	case "low":
		score -= 2
	}

	switch strings.ToLower(strings.TrimSpace(s.TradingExperience)) {
	case "expert":
		score++
	case "beginner":
		score--
	}

	aggressive, conservative := 0, 0
	for _, interest := range s.Interests {
		interest = strings.ToLower(interest)
		if matchesAny(interest, aggressiveVocabulary) {
			aggressive++
		}
		if matchesAny(interest, conservativeVocabulary) {
			conservative++
		}
	}
	switch {
	case aggressive > conservative:
		score++
	case conservative > aggressive:
		score--
	}

	return score
}

// Classify maps a user's signals to a tier.
func Classify(s UserSignals) domain.Tier {
	return TierForScore(Score(s))
}

// TierForScore maps a risk score to a tier.
func TierForScore(score int) domain.Tier {
	switch {
	case score >= aggressiveScore:
		return domain.TierAggressive
	case score <= conservativeScore:
		return domain.TierConservative
	default:
		return domain.TierBalanced
	}
}

func matchesAny(s string, vocabulary []string) bool {
	for _, w := range vocabulary {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func valid(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func rate(f float64) bool {
	return valid(f) && f >= 0 && f <= 1
}
