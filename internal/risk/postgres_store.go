package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists scoring decisions in PostgreSQL. Schema is managed
// by the goose migrations under migrations/.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, rec *Record) error {
	codes, err := json.Marshal(rec.ReasonCodes)
	if err != nil {
		return fmt.Errorf("marshal reason codes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments
			(id, transaction_id, score, level, reason_codes, explanation, simulated, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		rec.ID,
		rec.TransactionID,
		rec.Score,
		string(rec.Level),
		codes,
		rec.Explanation,
		rec.Simulated,
		rec.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("record assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTransaction(ctx context.Context, txID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, score, level, reason_codes, explanation, simulated, evaluated_at
		FROM risk_assessments
		WHERE transaction_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, txID, limit)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		var rec Record
		var codes []byte
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.Score, &rec.Level,
			&codes, &rec.Explanation, &rec.Simulated, &rec.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		if len(codes) > 0 {
			if err := json.Unmarshal(codes, &rec.ReasonCodes); err != nil {
				return nil, fmt.Errorf("decode reason codes for %s: %w", rec.ID, err)
			}
		}
		result = append(result, &rec)
	}
	return result, rows.Err()
}
