// Package config holds the immutable snapshot of engine options. It is
// loaded exactly once, at registry.Init, and shared by reference into
// every Host and Dimension for the process lifetime — there is no mutable
// global and no setter.
package config

import (
	"regexp"
	"strings"
	"time"
)

// Source is the narrow accessor the host agent's own configuration
// facility is consumed through. Load never reads environment variables or
// files directly; it only calls Source, keeping the agent's config loader
// and bootstrap entirely out of this module.
type Source interface {
	Duration(key string, def time.Duration) time.Duration
	Int(key string, def int) int
	Float(key string, def float64) float64
	String(key string, def string) string
}

// Config is the immutable snapshot of every tunable the engine reads.
type Config struct {
	TrainSecs    time.Duration
	MinTrainSecs time.Duration
	TrainEvery   time.Duration

	DiffN   int
	SmoothN int
	LagN    int

	HostsToSkip  *SkipPattern
	ChartsToSkip *SkipPattern

	AnomalyScoreThreshold  float64
	AnomalyRateThreshold   float64
	ADWindowSize           int
	ADWindowRateThreshold  float64
	ADUnitRateThreshold    float64
}

// ADThreshold returns the RollingBitWindow set-bit threshold,
// ADWindowSize * ADWindowRateThreshold.
func (c *Config) ADThreshold() int {
	return int(float64(c.ADWindowSize) * c.ADWindowRateThreshold)
}

// FeatureDimensionality returns LagN+1, the width of one feature vector.
func (c *Config) FeatureDimensionality() int {
	return c.LagN + 1
}

// Load builds a Config by layering overrides from src on top of defaults.
// A nil src yields the pure defaults.
func Load(src Source) *Config {
	c := &Config{
		TrainSecs:             3600 * time.Second,
		MinTrainSecs:          1800 * time.Second,
		TrainEvery:            1800 * time.Second,
		DiffN:                 1,
		SmoothN:               3,
		LagN:                  5,
		AnomalyScoreThreshold: 0.1,
		AnomalyRateThreshold:  0.01,
		ADWindowSize:          120,
		ADWindowRateThreshold: 0.25,
		ADUnitRateThreshold:   0.1,
	}
	c.HostsToSkip = CompileSkipPattern("!*")
	c.ChartsToSkip = CompileSkipPattern("!system.cpu *")

	if src == nil {
		return c
	}

	c.TrainSecs = src.Duration("ml_train_secs", c.TrainSecs)
	c.MinTrainSecs = src.Duration("ml_min_train_secs", c.MinTrainSecs)
	c.TrainEvery = src.Duration("ml_train_every", c.TrainEvery)
	c.DiffN = src.Int("ml_diff_n", c.DiffN)
	c.SmoothN = src.Int("ml_smooth_n", c.SmoothN)
	c.LagN = src.Int("ml_lag_n", c.LagN)
	c.AnomalyScoreThreshold = src.Float("ml_anomaly_score_threshold", c.AnomalyScoreThreshold)
	c.AnomalyRateThreshold = src.Float("ml_anomaly_rate_threshold", c.AnomalyRateThreshold)
	c.ADWindowSize = src.Int("ml_ad_window_size", c.ADWindowSize)
	c.ADWindowRateThreshold = src.Float("ml_ad_window_rate_threshold", c.ADWindowRateThreshold)
	c.ADUnitRateThreshold = src.Float("ml_ad_unit_rate_threshold", c.ADUnitRateThreshold)

	if p := src.String("ml_hosts_to_skip", ""); p != "" {
		c.HostsToSkip = CompileSkipPattern(p)
	}
	if p := src.String("ml_charts_to_skip", ""); p != "" {
		c.ChartsToSkip = CompileSkipPattern(p)
	}

	return c
}

// SkipPattern is an ordered list of glob rules in the agent's simple
// pattern syntax: space-separated globs, "*" the only wildcard, a leading
// "!" negating the rule. The first rule that matches a name decides
// whether it is skipped; a name matching no rule is not skipped. The
// default host pattern "!*" therefore skips nothing, and the default
// chart pattern "!system.cpu *" skips every chart except system.cpu.
type SkipPattern struct {
	rules []skipRule
}

type skipRule struct {
	re     *regexp.Regexp
	negate bool
}

// CompileSkipPattern parses a simple-pattern list into a SkipPattern.
func CompileSkipPattern(pattern string) *SkipPattern {
	p := &SkipPattern{}
	for _, tok := range strings.Fields(pattern) {
		negate := strings.HasPrefix(tok, "!")
		tok = strings.TrimPrefix(tok, "!")
		quoted := strings.ReplaceAll(regexp.QuoteMeta(tok), `\*`, ".*")
		p.rules = append(p.rules, skipRule{
			re:     regexp.MustCompile("^" + quoted + "$"),
			negate: negate,
		})
	}
	return p
}

// MatchString reports whether name should be skipped under this pattern.
func (p *SkipPattern) MatchString(name string) bool {
	for _, r := range p.rules {
		if r.re.MatchString(name) {
			return !r.negate
		}
	}
	return false
}
