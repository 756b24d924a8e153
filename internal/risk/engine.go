package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// windowEntry records a committed transaction for sliding-window analysis.
type windowEntry struct {
	To        string
	Amount    float64
	Timestamp time.Time
}

const (
	maxWindowSize  = 1000
	windowDuration = 24 * time.Hour

	// Currency-transaction reporting threshold. Amounts parked just below it
	// are a classic structuring signal.
	reportingThreshold = 10000.0

	weightAmount      = 0.45
	weightStructuring = 0.30
	weightVelocity    = 0.20
	weightNovelty     = 0.20
	weightOffHours    = 0.10

	// A factor contributing at or above this value becomes a reason code.
	reasonCutoff = 0.5
)

// Factor names double as reason codes on the assessment.
const (
	FactorAmount      = "HIGH_AMOUNT"
	FactorStructuring = "STRUCTURING"
	FactorVelocity    = "VELOCITY_SPIKE"
	FactorNovelty     = "NEW_COUNTERPARTY"
	FactorOffHours    = "OFF_HOURS"
)

var factorDescriptions = map[string]string{
	FactorAmount:      "large transfer amount",
	FactorStructuring: "amount just below the reporting threshold",
	FactorVelocity:    "burst of activity from the sending account",
	FactorNovelty:     "first transfer to this counterparty",
	FactorOffHours:    "activity outside normal business hours",
}

// Engine is the built-in heuristic Scorer. It evaluates each subject against
// weighted AML factors using per-account sliding windows of previously
// committed transactions.
//
// Score is read-only; windows advance only through Observe, which the
// transaction store calls after a batch commits. Simulation therefore never
// moves the engine's state.
type Engine struct {
	windows sync.Map // map[string]*accountWindow, keyed by sending account
}

type accountWindow struct {
	mu      sync.Mutex
	entries []windowEntry
}

// NewEngine creates the heuristic scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score evaluates a subject and returns a fresh assessment.
// Pure in-memory computation against a snapshot of the account's window.
func (e *Engine) Score(ctx context.Context, subject *Subject) (*Assessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := e.snapshot(subject.FromAccount, subject.Timestamp)

	factors := map[string]float64{
		FactorAmount:      amountFactor(subject.Amount),
		FactorStructuring: structuringFactor(subject.Amount),
		FactorVelocity:    velocityFactor(entries, subject.Timestamp),
		FactorNovelty:     noveltyFactor(entries, subject.ToAccount),
		FactorOffHours:    offHoursFactor(subject.Timestamp),
	}

	score := factors[FactorAmount]*weightAmount +
		factors[FactorStructuring]*weightStructuring +
		factors[FactorVelocity]*weightVelocity +
		factors[FactorNovelty]*weightNovelty +
		factors[FactorOffHours]*weightOffHours
	score = math.Round(score*1000) / 1000

	assessment := &Assessment{
		Score:       score,
		ReasonCodes: reasonCodes(factors),
		Explanation: explain(score, factors),
	}
	Normalize(assessment)
	return assessment, nil
}

// Observe appends a committed transaction to the sending account's window.
// Called by the transaction store once a batch is appended; never called for
// simulated transactions.
func (e *Engine) Observe(subject *Subject) {
	w := e.window(subject.FromAccount)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, windowEntry{
		To:        subject.ToAccount,
		Amount:    subject.Amount,
		Timestamp: subject.Timestamp,
	})
	w.prune(subject.Timestamp)
}

// Reset discards all window state. Called when the session is cleared.
func (e *Engine) Reset() {
	e.windows.Range(func(key, _ any) bool {
		e.windows.Delete(key)
		return true
	})
}

func (e *Engine) window(account string) *accountWindow {
	v, _ := e.windows.LoadOrStore(account, &accountWindow{})
	return v.(*accountWindow)
}

// snapshot returns a copy of the account's non-expired entries relative to now.
func (e *Engine) snapshot(account string, now time.Time) []windowEntry {
	w := e.window(account)
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-windowDuration)
	result := make([]windowEntry, 0, len(w.entries))
	for _, entry := range w.entries {
		if entry.Timestamp.After(cutoff) {
			result = append(result, entry)
		}
	}
	return result
}

// prune drops entries older than the window and caps the slice (caller holds lock).
func (w *accountWindow) prune(now time.Time) {
	cutoff := now.Add(-windowDuration)
	start := 0
	for start < len(w.entries) && w.entries[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		w.entries = w.entries[start:]
	}
	if len(w.entries) > maxWindowSize {
		w.entries = w.entries[len(w.entries)-maxWindowSize:]
	}
}

// amountFactor scales with order of magnitude above $1k.
// $1k -> 0.0, $10k -> 0.5, $100k -> 1.0 (log10 scaling).
func amountFactor(amount float64) float64 {
	if amount <= 1000 {
		return 0.0
	}
	f := math.Log10(amount/1000) / 2.0
	if f > 1.0 {
		f = 1.0
	}
	return round3(f)
}

// structuringFactor flags amounts parked just below the reporting threshold.
func structuringFactor(amount float64) float64 {
	switch {
	case amount >= reportingThreshold*0.9 && amount < reportingThreshold:
		return 0.9
	case amount >= reportingThreshold*0.8 && amount < reportingThreshold*0.9:
		return 0.4
	default:
		return 0.0
	}
}

// velocityFactor compares the last hour's transaction count against the
// account's 24h hourly average. 4x = 0.5, 16x = 1.0 (log2 scaling / 4).
func velocityFactor(entries []windowEntry, now time.Time) float64 {
	if len(entries) < 3 {
		return 0.0 // not enough history
	}

	oneHourAgo := now.Add(-time.Hour)
	recent := 0
	for _, entry := range entries {
		if entry.Timestamp.After(oneHourAgo) {
			recent++
		}
	}
	recent++ // include the transaction being scored

	hourlyAvg := float64(len(entries)) / 24.0
	if hourlyAvg <= 0 {
		return 0.0
	}

	ratio := float64(recent) / hourlyAvg
	if ratio <= 1.0 {
		return 0.0
	}

	f := math.Log2(ratio) / 4.0
	if f > 1.0 {
		f = 1.0
	}
	return round3(f)
}

// noveltyFactor scores how often this sender has paid this recipient before.
// Never seen = 0.6, seen 1-2x = 0.3, seen 3+ = 0.0. Cold start (no history
// at all) is treated as safe.
func noveltyFactor(entries []windowEntry, to string) float64 {
	count := 0
	for _, entry := range entries {
		if entry.To == to {
			count++
		}
	}
	switch {
	case count >= 3:
		return 0.0
	case count >= 1:
		return 0.3
	default:
		if len(entries) == 0 {
			return 0.0
		}
		return 0.6
	}
}

// offHoursFactor flags transactions between midnight and 5am UTC.
func offHoursFactor(ts time.Time) float64 {
	h := ts.UTC().Hour()
	if h < 5 {
		return 0.6
	}
	return 0.0
}

// reasonCodes returns the codes of all factors at or above the cutoff,
// strongest first.
func reasonCodes(factors map[string]float64) []string {
	type fv struct {
		code  string
		value float64
	}
	var hits []fv
	for code, v := range factors {
		if v >= reasonCutoff {
			hits = append(hits, fv{code, v})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].value != hits[j].value {
			return hits[i].value > hits[j].value
		}
		return hits[i].code < hits[j].code
	})
	codes := make([]string, len(hits))
	for i, h := range hits {
		codes[i] = h.code
	}
	return codes
}

// explain builds a short human-readable summary from the dominant factors.
func explain(score float64, factors map[string]float64) string {
	codes := reasonCodes(factors)
	if len(codes) == 0 {
		return fmt.Sprintf("score %.3f: no dominant risk factors", score)
	}
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, factorDescriptions[c])
	}
	return fmt.Sprintf("score %.3f: %s", score, strings.Join(parts, "; "))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
