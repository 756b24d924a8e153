package risk

import (
	"context"
	"time"
)

// Record is one scoring decision retained for the audit trail. Simulated
// assessments are recorded too (flagged as such) so investigators can see
// what-if history, but they never touch the transaction store or graph.
type Record struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Score         float64   `json:"risk_score"`
	Level         Level     `json:"risk_level"`
	ReasonCodes   []string  `json:"reason_codes"`
	Explanation   string    `json:"explanation"`
	Simulated     bool      `json:"simulated"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

// Store persists scoring decisions for the audit trail.
type Store interface {
	Record(ctx context.Context, rec *Record) error
	ListByTransaction(ctx context.Context, txID string, limit int) ([]*Record, error)
}
