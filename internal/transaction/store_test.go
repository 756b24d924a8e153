package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amlsift/amlsift/internal/risk"
)

// scoreByAmount is a deterministic test double: risk_score = amount / 100000,
// so callers can steer levels precisely.
func scoreByAmount(ctx context.Context, subject *risk.Subject) (*risk.Assessment, error) {
	a := &risk.Assessment{
		Score:       subject.Amount / 100000,
		ReasonCodes: []string{"TEST_RULE"},
		Explanation: "test double",
	}
	risk.Normalize(a)
	return a, nil
}

func raw(amount, from, to string) RawTransaction {
	return RawTransaction{ColAmount: amount, ColFrom: from, ColTo: to}
}

func TestIngest_OrderAndQuantization(t *testing.T) {
	store := NewStore(risk.ScorerFunc(scoreByAmount))

	batch := []RawTransaction{
		raw("85000", "ACC-A", "ACC-B"), // 0.85 -> HIGH
		raw("50000", "ACC-B", "ACC-C"), // 0.50 -> MEDIUM
		raw("1000", "ACC-C", "ACC-D"),  // 0.01 -> LOW
	}
	txs, err := store.Ingest(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	all := store.All()
	require.Len(t, all, 3)
	for i, tx := range all {
		assert.Equal(t, txs[i].ID, tx.ID, "store order must match input order")
		assert.Equal(t, risk.LevelFromScore(tx.RiskScore), tx.RiskLevel,
			"level must be the quantization of the score")
	}

	assert.Equal(t, "TXN-000001", all[0].ID)
	assert.Equal(t, "TXN-000002", all[1].ID)
	assert.Equal(t, "TXN-000003", all[2].ID)

	assert.Equal(t, risk.LevelHigh, all[0].RiskLevel)
	assert.Equal(t, StatusFlagged, all[0].Status)
	assert.Equal(t, risk.LevelMedium, all[1].RiskLevel)
	assert.Equal(t, StatusFlagged, all[1].Status)
	assert.Equal(t, risk.LevelLow, all[2].RiskLevel)
	assert.Equal(t, StatusPending, all[2].Status)
}

func TestIngest_ValidationAbortsWholeBatch(t *testing.T) {
	store := NewStore(risk.ScorerFunc(scoreByAmount))

	_, err := store.Ingest(context.Background(), []RawTransaction{
		raw("100", "ACC-A", "ACC-B"),
		raw("-5", "ACC-B", "ACC-C"),
		raw("abc", "ACC-C", "ACC-D"),
		raw("50", "", "ACC-E"),
	})
	var batchErr *BatchValidationError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Errors, 3)

	assert.Equal(t, 1, batchErr.Errors[0].Index)
	assert.Equal(t, ColAmount, batchErr.Errors[0].Field)
	assert.Equal(t, 2, batchErr.Errors[1].Index)
	assert.Equal(t, 3, batchErr.Errors[2].Index)
	assert.Equal(t, ColFrom, batchErr.Errors[2].Field)

	assert.Zero(t, store.Count(), "no partial commit on validation failure")
}

func TestIngest_SelfTransferPolicy(t *testing.T) {
	store := NewStore(risk.ScorerFunc(scoreByAmount))
	_, err := store.Ingest(context.Background(), []RawTransaction{
		raw("100", "ACC-A", "ACC-A"),
	})
	var batchErr *BatchValidationError
	require.ErrorAs(t, err, &batchErr)

	permissive := NewStore(risk.ScorerFunc(scoreByAmount), WithSelfTransfers(true))
	txs, err := permissive.Ingest(context.Background(), []RawTransaction{
		raw("100", "ACC-A", "ACC-A"),
	})
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestIngest_ScoringFailureAbortsWholeBatch(t *testing.T) {
	var calls int
	var mu sync.Mutex
	scorer := risk.ScorerFunc(func(ctx context.Context, subject *risk.Subject) (*risk.Assessment, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			return nil, fmt.Errorf("%w: connect refused", risk.ErrScoringUnavailable)
		}
		return scoreByAmount(ctx, subject)
	})
	store := NewStore(scorer, WithConcurrency(1))

	_, err := store.Ingest(context.Background(), []RawTransaction{
		raw("100", "ACC-A", "ACC-B"),
		raw("200", "ACC-B", "ACC-C"),
		raw("300", "ACC-C", "ACC-D"),
	})
	require.ErrorIs(t, err, risk.ErrScoringUnavailable)
	assert.Zero(t, store.Count(), "no partial commit on scoring failure")
}

func TestIngest_OrderIndependentOfCompletionOrder(t *testing.T) {
	// Earlier subjects finish later: completion order is the reverse of
	// submission order.
	scorer := risk.ScorerFunc(func(ctx context.Context, subject *risk.Subject) (*risk.Assessment, error) {
		time.Sleep(time.Duration(100-subject.Amount) * time.Millisecond / 10)
		return scoreByAmount(ctx, subject)
	})
	store := NewStore(scorer, WithConcurrency(4))

	var batch []RawTransaction
	for i := 0; i < 4; i++ {
		batch = append(batch, raw(fmt.Sprintf("%d", (i+1)*10), "ACC-A", fmt.Sprintf("ACC-%d", i)))
	}
	txs, err := store.Ingest(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, txs, 4)
	for i, tx := range txs {
		assert.Equal(t, fmt.Sprintf("ACC-%d", i), tx.ToAccount, "input order must be preserved")
	}
}

func TestIngest_CancellationDiscardsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scorer := risk.ScorerFunc(func(sctx context.Context, subject *risk.Subject) (*risk.Assessment, error) {
		if subject.Amount > 100 {
			cancel() // cancel mid-batch
			<-sctx.Done()
			return nil, sctx.Err()
		}
		return scoreByAmount(sctx, subject)
	})
	store := NewStore(scorer, WithConcurrency(1))

	_, err := store.Ingest(ctx, []RawTransaction{
		raw("50", "ACC-A", "ACC-B"),
		raw("500", "ACC-B", "ACC-C"),
		raw("60", "ACC-C", "ACC-D"),
	})
	require.Error(t, err)
	assert.Zero(t, store.Count(), "cancelled batch must never partially commit")
}

func TestIngest_RejectsConcurrentBatch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	scorer := risk.ScorerFunc(func(ctx context.Context, subject *risk.Subject) (*risk.Assessment, error) {
		once.Do(func() { close(started) })
		<-release
		return scoreByAmount(ctx, subject)
	})
	store := NewStore(scorer)

	done := make(chan error, 1)
	go func() {
		_, err := store.Ingest(context.Background(), []RawTransaction{raw("100", "ACC-A", "ACC-B")})
		done <- err
	}()
	<-started

	_, err := store.Ingest(context.Background(), []RawTransaction{raw("100", "ACC-X", "ACC-Y")})
	assert.ErrorIs(t, err, ErrIngestInFlight)
	assert.ErrorIs(t, store.Clear(), ErrIngestInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, store.Count())
}

func TestAll_SnapshotUnaffectedByLaterIngest(t *testing.T) {
	store := NewStore(risk.ScorerFunc(scoreByAmount))
	_, err := store.Ingest(context.Background(), []RawTransaction{raw("100", "ACC-A", "ACC-B")})
	require.NoError(t, err)

	snapshot := store.All()
	require.Len(t, snapshot, 1)

	_, err = store.Ingest(context.Background(), []RawTransaction{raw("200", "ACC-B", "ACC-C")})
	require.NoError(t, err)

	assert.Len(t, snapshot, 1, "earlier snapshot must not grow")
	assert.Len(t, store.All(), 2)
}

func TestGetAndByAccount(t *testing.T) {
	store := NewStore(risk.ScorerFunc(scoreByAmount))
	txs, err := store.Ingest(context.Background(), []RawTransaction{
		raw("100", "ACC-A", "ACC-B"),
		raw("200", "ACC-B", "ACC-C"),
		raw("300", "ACC-D", "ACC-E"),
	})
	require.NoError(t, err)

	got, ok := store.Get(txs[1].ID)
	require.True(t, ok)
	assert.Equal(t, "ACC-B", got.FromAccount)

	_, ok = store.Get("TXN-999999")
	assert.False(t, ok)

	related := store.ByAccount("ACC-B")
	require.Len(t, related, 2)
	assert.Equal(t, txs[0].ID, related[0].ID)
	assert.Equal(t, txs[1].ID, related[1].ID)

	assert.Empty(t, store.ByAccount("ACC-UNKNOWN"), "unknown account is empty, not an error")
}

func TestClear_ResetsSessionAndIDSequence(t *testing.T) {
	store := NewStore(risk.ScorerFunc(scoreByAmount))
	_, err := store.Ingest(context.Background(), []RawTransaction{raw("100", "ACC-A", "ACC-B")})
	require.NoError(t, err)

	require.NoError(t, store.Clear())
	assert.Zero(t, store.Count())

	txs, err := store.Ingest(context.Background(), []RawTransaction{raw("100", "ACC-A", "ACC-B")})
	require.NoError(t, err)
	assert.Equal(t, "TXN-000001", txs[0].ID, "sequence restarts with the session")
}

func TestIngest_RecordsAuditTrail(t *testing.T) {
	audit := risk.NewMemoryStore()
	store := NewStore(risk.ScorerFunc(scoreByAmount), WithAudit(audit))

	txs, err := store.Ingest(context.Background(), []RawTransaction{raw("85000", "ACC-A", "ACC-B")})
	require.NoError(t, err)

	records, err := audit.ListByTransaction(context.Background(), txs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, risk.LevelHigh, records[0].Level)
	assert.False(t, records[0].Simulated)
}

func TestIngest_EmptyBatchIsNoop(t *testing.T) {
	store := NewStore(risk.ScorerFunc(scoreByAmount))
	txs, err := store.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestIngest_TimestampDefaultsAndParses(t *testing.T) {
	store := NewStore(risk.ScorerFunc(scoreByAmount))
	before := time.Now().UTC()

	txs, err := store.Ingest(context.Background(), []RawTransaction{
		raw("100", "ACC-A", "ACC-B"),
		{ColAmount: "100", ColFrom: "ACC-A", ColTo: "ACC-C", ColTimestamp: "2026-01-15T09:30:00Z"},
	})
	require.NoError(t, err)

	assert.False(t, txs[0].Timestamp.Before(before), "missing timestamp defaults to ingestion time")
	assert.Equal(t, time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC), txs[1].Timestamp)

	_, err = store.Ingest(context.Background(), []RawTransaction{
		{ColAmount: "100", ColFrom: "ACC-A", ColTo: "ACC-B", ColTimestamp: "yesterday"},
	})
	var batchErr *BatchValidationError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, ColTimestamp, batchErr.Errors[0].Field)
}

func TestIngest_NeverReturnsPartialOnMixedFailure(t *testing.T) {
	boom := errors.New("model exploded")
	scorer := risk.ScorerFunc(func(ctx context.Context, subject *risk.Subject) (*risk.Assessment, error) {
		if subject.ToAccount == "ACC-BAD" {
			return nil, boom
		}
		return scoreByAmount(ctx, subject)
	})
	store := NewStore(scorer, WithConcurrency(8))

	var batch []RawTransaction
	for i := 0; i < 20; i++ {
		to := fmt.Sprintf("ACC-%02d", i)
		if i == 13 {
			to = "ACC-BAD"
		}
		batch = append(batch, raw("100", "ACC-SRC", to))
	}
	_, err := store.Ingest(context.Background(), batch)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, store.Count())
}

func TestIngest_RejectsNonFiniteAmounts(t *testing.T) {
	store := NewStore(risk.ScorerFunc(scoreByAmount))

	// ParseFloat happily produces NaN and infinities, including via overflow
	// of a plain digit string. None of these are monetary values.
	_, err := store.Ingest(context.Background(), []RawTransaction{
		raw("NaN", "ACC-A", "ACC-B"),
		raw("+Inf", "ACC-B", "ACC-C"),
		raw("-Inf", "ACC-C", "ACC-D"),
		raw("1"+strings.Repeat("0", 400), "ACC-D", "ACC-E"),
	})
	var batchErr *BatchValidationError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Errors, 4)
	for _, verr := range batchErr.Errors {
		assert.Equal(t, ColAmount, verr.Field)
	}
	assert.Zero(t, store.Count(), "non-finite amounts must never commit")
}

// blockingResetScorer parks Clear inside its Reset hook so tests can observe
// the store while a clear is in flight.
type blockingResetScorer struct {
	risk.Scorer
	entered chan struct{}
	release chan struct{}
}

func (s *blockingResetScorer) Reset() {
	close(s.entered)
	<-s.release
}

func TestClear_ExcludesConcurrentIngest(t *testing.T) {
	scorer := &blockingResetScorer{
		Scorer:  risk.ScorerFunc(scoreByAmount),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := NewStore(scorer)

	_, err := store.Ingest(context.Background(), []RawTransaction{
		raw("100", "ACC-A", "ACC-B"),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- store.Clear() }()
	<-scorer.entered

	// A batch arriving mid-clear must not commit: it would be wiped after
	// its caller already saw success.
	_, err = store.Ingest(context.Background(), []RawTransaction{
		raw("200", "ACC-B", "ACC-C"),
	})
	assert.ErrorIs(t, err, ErrIngestInFlight)

	close(scorer.release)
	require.NoError(t, <-done)
	assert.Zero(t, store.Count())
}
