package risk

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Level is the coarse risk classification of a spender.
type Level string

const (
	LevelUnknown Level = "unknown"
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHigh    Level = "high"
)

// Severity is how a single factor is presented.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Factor is one finding about a spender.
//
// Fields:
// - Type: the factor type, e.g. "phishing_risk".
// - Source: who reported it.
// - Data: optional source specific detail.
type Factor struct {
	Type   string          `json:"type"`
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// RatedFactor is a factor with the severity it is shown with.
type RatedFactor struct {
	Factor
	Severity Severity `json:"severity"`
}

// FactorScores are the points each known factor type adds to a risk score.
var FactorScores = map[string]int{
	"allowlist":            -100,
	"blocklist":            100,
	"closed_source":        40,
	"deprecated":           100,
	"eoa":                  100,
	"excessive_expiration": 60,
	"exploit":              100,
	"phishing_risk":        40,
	"proxy":                20,
	"suspicious_address":   60,
	"unsafe":               40,
	"uninitialized":        40,
}

const (
	maxScore      = 100
	highThreshold = 75
	lowThreshold  = 25
	criticalAbove = 75
)

// FilterUnknown drops factors whose type has no score, logging each one.
func FilterUnknown(factors []Factor, logger *logrus.Logger) []Factor {
	known := make([]Factor, 0, len(factors))
	for _, factor := range factors {
		if _, ok := FactorScores[factor.Type]; !ok {
			logger.WithFields(logrus.Fields{
				"type":   factor.Type,
				"source": factor.Source,
			}).Warn("Unknown risk factor")
			continue
		}
		known = append(known, factor)
	}
	return known
}

// FactorScore returns the points of one factor; unknown types score 0.
func FactorScore(factor Factor) int {
	return FactorScores[factor.Type]
}

// Score sums the factor scores, clamped to [0, 100].
func Score(factors []Factor) int {
	score := 0
	for _, factor := range factors {
		score += FactorScore(factor)
	}
	return min(max(score, 0), maxScore)
}

// LevelOf classifies a set of factors. No factors means unknown.
func LevelOf(factors []Factor) Level {
	if len(factors) == 0 {
		return LevelUnknown
	}

	score := Score(factors)
	switch {
	case score >= highThreshold:
		return LevelHigh
	case score <= lowThreshold:
		return LevelLow
	default:
		return LevelMedium
	}
}

// SeverityOf classifies a single factor. Only negative factors such as the allowlist are info.
func SeverityOf(factor Factor) Severity {
	score := FactorScore(factor)
	switch {
	case score > criticalAbove:
		return SeverityCritical
	case score > 0:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Rate pairs every factor with its severity. The result is never nil.
func Rate(factors []Factor) []RatedFactor {
	rated := make([]RatedFactor, 0, len(factors))
	for _, factor := range factors {
		rated = append(rated, RatedFactor{Factor: factor, Severity: SeverityOf(factor)})
	}
	return rated
}
