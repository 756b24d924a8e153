// Package risk defines the risk-assessment contract for the investigation
// core: the continuous [0,1] score produced by a Scorer, the HIGH/MEDIUM/LOW
// quantization owned by this package, and the audit trail of scoring
// decisions.
//
// The quantization thresholds live here so that table filtering, graph
// suspicion-marking, and report aggregates all agree on what "HIGH" means.
package risk

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// Level is the coarse severity bucket derived from a continuous score.
type Level string

const (
	LevelHigh   Level = "HIGH"
	LevelMedium Level = "MEDIUM"
	LevelLow    Level = "LOW"
)

// Quantization thresholds. A score above HighThreshold is HIGH, above
// MediumThreshold is MEDIUM, anything else is LOW.
const (
	HighThreshold   = 0.7
	MediumThreshold = 0.4
)

// ErrScoringUnavailable indicates the scoring service could not produce an
// assessment (timeout, connection failure, server error) after bounded
// retries. It is distinct from validation failures: the caller may re-attempt
// the same batch without editing it.
var ErrScoringUnavailable = errors.New("scoring service unavailable")

// LevelFromScore quantizes a score into a Level.
func LevelFromScore(score float64) Level {
	switch {
	case score > HighThreshold:
		return LevelHigh
	case score > MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ParseLevel parses a level string case-insensitively.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return LevelHigh, true
	case "MEDIUM":
		return LevelMedium, true
	case "LOW":
		return LevelLow, true
	default:
		return "", false
	}
}

// Severity ranks levels for aggregation: HIGH > MEDIUM > LOW.
func (l Level) Severity() int {
	switch l {
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}

// MaxLevel returns the more severe of two levels.
func MaxLevel(a, b Level) Level {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// Subject carries the transaction-shaped record handed to a Scorer.
// Fields are pre-validated (non-negative amount, non-empty accounts).
type Subject struct {
	Amount      float64   `json:"amount"`
	FromAccount string    `json:"from_account"`
	ToAccount   string    `json:"to_account"`
	Timestamp   time.Time `json:"timestamp"`
}

// Assessment is a Scorer's verdict on one transaction. Produced fresh on
// every scoring call and never mutated after return.
type Assessment struct {
	Score       float64  `json:"risk_score"`
	Level       Level    `json:"risk_level"`
	ReasonCodes []string `json:"reason_codes"`
	Explanation string   `json:"explanation"`
}

// Scorer maps a transaction subject to a risk assessment. Implementations
// may be stochastic; determinism across calls is not required. The returned
// score must lie in [0,1] — Normalize defends against violations anyway.
type Scorer interface {
	Score(ctx context.Context, subject *Subject) (*Assessment, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, subject *Subject) (*Assessment, error)

func (f ScorerFunc) Score(ctx context.Context, subject *Subject) (*Assessment, error) {
	return f(ctx, subject)
}

// Normalize enforces the core's consistency guarantees on an assessment,
// regardless of which Scorer produced it:
//   - score clamped to [0,1]
//   - level recomputed from the (clamped) score
//   - reason codes deduplicated, order preserved
//   - a HIGH assessment always carries at least one reason code
func Normalize(a *Assessment) {
	if math.IsNaN(a.Score) || math.IsInf(a.Score, -1) {
		a.Score = 0
	}
	if math.IsInf(a.Score, 1) {
		a.Score = 1
	}
	if a.Score < 0 {
		a.Score = 0
	}
	if a.Score > 1 {
		a.Score = 1
	}
	a.Level = LevelFromScore(a.Score)

	seen := make(map[string]struct{}, len(a.ReasonCodes))
	codes := a.ReasonCodes[:0]
	for _, c := range a.ReasonCodes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	a.ReasonCodes = codes

	if a.Level == LevelHigh && len(a.ReasonCodes) == 0 {
		a.ReasonCodes = []string{"ELEVATED_RISK"}
	}
}
