// Package transaction owns the canonical transaction set for an
// investigation session: the data model, batch validation, and the store
// with atomic scored ingestion.
package transaction

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/amlsift/amlsift/internal/risk"
)

// Status is the review state of a stored transaction.
type Status string

const (
	StatusFlagged Status = "FLAGGED"
	StatusCleared Status = "CLEARED"
	StatusPending Status = "PENDING"
)

// Transaction is one financial movement between two accounts, annotated
// with its risk assessment. Instances are immutable once stored.
type Transaction struct {
	ID          string     `json:"id"`
	Amount      float64    `json:"amount"`
	FromAccount string     `json:"from_account"`
	ToAccount   string     `json:"to_account"`
	Timestamp   time.Time  `json:"timestamp"`
	RiskScore   float64    `json:"risk_score"`
	RiskLevel   risk.Level `json:"risk_level"`
	ReasonCodes []string   `json:"reason_codes"`
	Explanation string     `json:"explanation,omitempty"`
	Status      Status     `json:"status"`
}

// Touches reports whether the transaction involves the given account as
// sender or receiver.
func (t *Transaction) Touches(accountID string) bool {
	return t.FromAccount == accountID || t.ToAccount == accountID
}

// RawTransaction is one structured record handed over by the upload
// collaborator: column name -> raw string value. Required columns: amount,
// from_account, to_account. timestamp is optional RFC3339 and defaults to
// ingestion time.
type RawTransaction map[string]string

// Column names recognized in raw records.
const (
	ColAmount    = "amount"
	ColFrom      = "from_account"
	ColTo        = "to_account"
	ColTimestamp = "timestamp"
)

// ValidationError describes one malformed field in a raw record. Index is
// the record's position in the submitted batch so the presentation layer can
// highlight the offending row.
type ValidationError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d: %s %s", e.Index, e.Field, e.Message)
}

// BatchValidationError aggregates every validation failure in a batch.
// Ingestion is atomic: one bad record rejects the whole batch.
type BatchValidationError struct {
	Errors []*ValidationError `json:"errors"`
}

func (e *BatchValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "batch rejected: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("batch rejected: %d invalid records (first: %s)",
		len(e.Errors), e.Errors[0].Error())
}

// Subject validates a raw record and converts it to a scoring subject.
// now supplies the default timestamp. The returned error has Index zero;
// batch callers fill in the record's position. The simulation path uses
// this directly: same validation, nothing persisted.
func (r RawTransaction) Subject(now time.Time, allowSelfTransfer bool) (*risk.Subject, *ValidationError) {
	rawAmount := strings.TrimSpace(r[ColAmount])
	if rawAmount == "" {
		return nil, &ValidationError{Field: ColAmount, Message: "is required"}
	}
	amount, err := strconv.ParseFloat(rawAmount, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, &ValidationError{Field: ColAmount, Message: "must be numeric"}
	}
	if amount < 0 {
		return nil, &ValidationError{Field: ColAmount, Message: "must be non-negative"}
	}

	from := strings.TrimSpace(r[ColFrom])
	if from == "" {
		return nil, &ValidationError{Field: ColFrom, Message: "is required"}
	}
	to := strings.TrimSpace(r[ColTo])
	if to == "" {
		return nil, &ValidationError{Field: ColTo, Message: "is required"}
	}
	if from == to && !allowSelfTransfer {
		return nil, &ValidationError{Field: ColTo, Message: "self-transfers are not permitted"}
	}

	ts := now
	if rawTS := strings.TrimSpace(r[ColTimestamp]); rawTS != "" {
		parsed, err := time.Parse(time.RFC3339, rawTS)
		if err != nil {
			return nil, &ValidationError{Field: ColTimestamp, Message: "must be RFC3339"}
		}
		ts = parsed
	}

	return &risk.Subject{
		Amount:      amount,
		FromAccount: from,
		ToAccount:   to,
		Timestamp:   ts,
	}, nil
}

// statusFor derives the initial review status from the risk level: anything
// scored above the LOW threshold starts FLAGGED, the rest PENDING until a
// reviewer acts (reviewer transitions happen outside this core).
func statusFor(level risk.Level) Status {
	if level == risk.LevelLow {
		return StatusPending
	}
	return StatusFlagged
}
