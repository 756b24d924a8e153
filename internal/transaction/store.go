package transaction

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amlsift/amlsift/internal/idgen"
	"github.com/amlsift/amlsift/internal/metrics"
	"github.com/amlsift/amlsift/internal/risk"
)

// ErrIngestInFlight is returned when Clear (or a second Ingest) races an
// ingestion batch that has not yet committed. Callers retry once the batch
// settles; the store never blocks readers on an in-flight batch.
var ErrIngestInFlight = errors.New("an ingestion batch is already in flight")

// Observer is implemented by scorers that learn from committed transactions
// (the sliding-window engine does). Observe runs once per transaction after
// a batch commits; simulated transactions are never observed.
type Observer interface {
	Observe(subject *risk.Subject)
}

// Resetter is implemented by scorers with session-scoped state to discard
// on Clear.
type Resetter interface {
	Reset()
}

// Store holds the canonical, insertion-ordered transaction set for one
// analysis session. Ingestion is atomic: a batch either commits in full,
// in input order, or leaves the store untouched.
type Store struct {
	scorer      risk.Scorer
	audit       risk.Store // nil disables the audit trail
	logger      *slog.Logger
	concurrency int
	allowSelf   bool

	seq *idgen.Sequence

	mu  sync.RWMutex
	txs []*Transaction

	inFlight atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithAudit records every committed scoring decision to the given store.
func WithAudit(audit risk.Store) Option {
	return func(s *Store) { s.audit = audit }
}

// WithConcurrency bounds the number of in-flight scoring calls per batch.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithSelfTransfers permits transactions whose sender and receiver match.
// Disallowed by default.
func WithSelfTransfers(allowed bool) Option {
	return func(s *Store) { s.allowSelf = allowed }
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty session store backed by the given scorer.
func NewStore(scorer risk.Scorer, opts ...Option) *Store {
	s := &Store{
		scorer:      scorer,
		logger:      slog.Default(),
		concurrency: 8,
		seq:         idgen.NewSequence("TXN-", 6),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates, scores, and appends a batch of raw transactions.
//
// The whole batch fails on any validation error (*BatchValidationError,
// identifying each offending record) or scoring failure — the store never
// holds a half-analyzed batch. Scoring calls run concurrently up to the
// configured bound; committed order always matches input order regardless
// of scorer completion order. Cancelling ctx before commit discards all
// partial results.
func (s *Store) Ingest(ctx context.Context, raws []RawTransaction) ([]*Transaction, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrIngestInFlight
	}
	defer s.inFlight.Store(false)

	now := time.Now().UTC()

	// Validate everything up front; report every bad record at once.
	subjects := make([]*risk.Subject, len(raws))
	var verrs []*ValidationError
	for i, raw := range raws {
		subject, verr := raw.Subject(now, s.allowSelf)
		if verr != nil {
			verr.Index = i
			verrs = append(verrs, verr)
			continue
		}
		subjects[i] = subject
	}
	if len(verrs) > 0 {
		return nil, &BatchValidationError{Errors: verrs}
	}

	assessments, err := s.scoreAll(ctx, subjects)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Cancelled between scoring and commit: discard everything.
		return nil, err
	}

	// Commit: assign IDs and append in input order under the write lock.
	s.mu.Lock()
	batch := make([]*Transaction, len(subjects))
	for i, subject := range subjects {
		a := assessments[i]
		batch[i] = &Transaction{
			ID:          s.seq.Next(),
			Amount:      subject.Amount,
			FromAccount: subject.FromAccount,
			ToAccount:   subject.ToAccount,
			Timestamp:   subject.Timestamp,
			RiskScore:   a.Score,
			RiskLevel:   a.Level,
			ReasonCodes: append([]string(nil), a.ReasonCodes...),
			Explanation: a.Explanation,
			Status:      statusFor(a.Level),
		}
	}
	s.txs = append(s.txs, batch...)
	s.mu.Unlock()

	// Post-commit bookkeeping: advance learning windows and write the audit
	// trail. Both are best-effort and never fail the batch.
	if obs, ok := s.scorer.(Observer); ok {
		for _, subject := range subjects {
			obs.Observe(subject)
		}
	}
	if s.audit != nil {
		for _, tx := range batch {
			rec := &risk.Record{
				ID:            idgen.WithPrefix("asmt_"),
				TransactionID: tx.ID,
				Score:         tx.RiskScore,
				Level:         tx.RiskLevel,
				ReasonCodes:   tx.ReasonCodes,
				Explanation:   tx.Explanation,
				EvaluatedAt:   now,
			}
			if err := s.audit.Record(context.WithoutCancel(ctx), rec); err != nil {
				s.logger.Warn("audit record failed", "transaction_id", tx.ID, "error", err)
			}
		}
	}

	return batch, nil
}

// scoreAll runs scorer calls concurrently, bounded by s.concurrency, and
// reassembles results in input order. The first failure cancels the rest.
func (s *Store) scoreAll(ctx context.Context, subjects []*risk.Subject) ([]*risk.Assessment, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	assessments := make([]*risk.Assessment, len(subjects))
	sem := make(chan struct{}, s.concurrency)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for i, subject := range subjects {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int, subject *risk.Subject) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			a, err := s.scorer.Score(ctx, subject)
			metrics.ScoringDuration.Observe(time.Since(start).Seconds())
			if err == nil && a == nil {
				err = errors.New("scorer returned no assessment")
			}
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			risk.Normalize(a)
			assessments[i] = a
		}(i, subject)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return assessments, nil
}

// All returns the insertion-ordered snapshot of the session's transactions.
// The returned slice is the caller's to keep; stored transactions are
// immutable, so concurrent ingestion never disturbs a snapshot.
func (s *Store) All() []*Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Transaction(nil), s.txs...)
}

// Get returns the transaction with the given ID, if present.
func (s *Store) Get(id string) (*Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.txs {
		if tx.ID == id {
			return tx, true
		}
	}
	return nil, false
}

// ByAccount returns all transactions touching an account as sender or
// receiver, in insertion order. An unknown account yields an empty result,
// not an error.
func (s *Store) ByAccount(accountID string) []*Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Transaction
	for _, tx := range s.txs {
		if tx.Touches(accountID) {
			result = append(result, tx)
		}
	}
	return result
}

// Count returns the number of stored transactions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

// Clear resets session state: transactions, the ID sequence, and any
// scorer learning windows. It is rejected while an ingestion batch is in
// flight so a batch can never commit into a half-cleared session.
func (s *Store) Clear() error {
	// Take the same flag Ingest takes so a batch starting mid-clear cannot
	// commit into the session and be wiped after its caller saw success.
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrIngestInFlight
	}
	defer s.inFlight.Store(false)

	s.mu.Lock()
	s.txs = nil
	s.mu.Unlock()

	s.seq.Reset()
	if r, ok := s.scorer.(Resetter); ok {
		r.Reset()
	}
	return nil
}
