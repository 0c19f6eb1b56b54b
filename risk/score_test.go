package risk

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func factors(types ...string) []Factor {
	out := make([]Factor, 0, len(types))
	for _, t := range types {
		out = append(out, Factor{Type: t, Source: "test"})
	}
	return out
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		factors []Factor
		score   int
		level   Level
	}{
		{"none", nil, 0, LevelUnknown},
		{"proxy only", factors("proxy"), 20, LevelLow},
		{"medium", factors("proxy", "closed_source"), 60, LevelMedium},
		{"boundary high", factors("excessive_expiration", "proxy"), 80, LevelHigh},
		{"clamped high", factors("exploit", "phishing_risk"), 100, LevelHigh},
		{"allowlisted", factors("allowlist", "proxy"), 0, LevelLow},
		{"unknown scores zero", factors("mystery"), 0, LevelLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.score, Score(tt.factors))
			assert.Equal(t, tt.level, LevelOf(tt.factors))
		})
	}
}

func TestLevelThresholds(t *testing.T) {
	assert.Equal(t, LevelLow, LevelOf(factors("proxy", "allowlist", "eoa", "allowlist", "proxy")))
	assert.Equal(t, LevelMedium, LevelOf(factors("unsafe")))
	assert.Equal(t, LevelHigh, LevelOf(factors("unsafe", "closed_source")))
}

func TestFilterUnknown(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	got := FilterUnknown(factors("proxy", "mystery", "eoa"), logger)
	assert.Equal(t, factors("proxy", "eoa"), got)
	assert.NotNil(t, FilterUnknown(nil, logger))
}

func TestSeverityOf(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityOf(Factor{Type: "blocklist"}))
	assert.Equal(t, SeverityWarning, SeverityOf(Factor{Type: "excessive_expiration"}))
	assert.Equal(t, SeverityWarning, SeverityOf(Factor{Type: "proxy"}))
	assert.Equal(t, SeverityInfo, SeverityOf(Factor{Type: "allowlist"}))
	assert.Equal(t, SeverityInfo, SeverityOf(Factor{Type: "mystery"}))
}

func TestRate(t *testing.T) {
	rated := Rate([]Factor{{Type: "exploit", Source: "feed"}, {Type: "allowlist", Source: "curated"}})
	require.Len(t, rated, 2)
	assert.Equal(t, "exploit", rated[0].Type)
	assert.Equal(t, SeverityCritical, rated[0].Severity)
	assert.Equal(t, SeverityInfo, rated[1].Severity)
	assert.NotNil(t, Rate(nil))
}
