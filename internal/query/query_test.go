package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amlsift/amlsift/internal/risk"
	"github.com/amlsift/amlsift/internal/transaction"
)

func fixture() []*transaction.Transaction {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return []*transaction.Transaction{
		{ID: "TXN-000001", Amount: 9500, FromAccount: "ACC-A1", ToAccount: "ACC-B1",
			RiskScore: 0.85, RiskLevel: risk.LevelHigh, Timestamp: base},
		{ID: "TXN-000002", Amount: 120, FromAccount: "ACC-B1", ToAccount: "ACC-C1",
			RiskScore: 0.10, RiskLevel: risk.LevelLow, Timestamp: base.Add(time.Minute)},
		{ID: "TXN-000003", Amount: 50000, FromAccount: "ACC-C1", ToAccount: "ACC-D1",
			RiskScore: 0.55, RiskLevel: risk.LevelMedium, Timestamp: base.Add(2 * time.Minute)},
		{ID: "TXN-000004", Amount: 120, FromAccount: "ACC-D1", ToAccount: "ACC-A1",
			RiskScore: 0.72, RiskLevel: risk.LevelHigh, Timestamp: base.Add(3 * time.Minute)},
	}
}

func ids(txs []*transaction.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func TestRun_EmptyParamsReturnsInsertionOrder(t *testing.T) {
	txs := fixture()
	got := Run(txs, Params{})
	assert.Equal(t, ids(txs), ids(got))
}

func TestRun_SearchMatchesAnyOfThreeFields(t *testing.T) {
	txs := fixture()

	// Matches ACC-A1 as sender (tx 1) and as receiver (tx 4).
	got := Run(txs, Params{Search: "acc-a"})
	assert.Equal(t, []string{"TXN-000001", "TXN-000004"}, ids(got))

	// Matches by transaction ID.
	got = Run(txs, Params{Search: "000003"})
	assert.Equal(t, []string{"TXN-000003"}, ids(got))

	// Case-insensitive.
	got = Run(txs, Params{Search: "ACC-c1"})
	assert.Equal(t, []string{"TXN-000002", "TXN-000003"}, ids(got))

	// No match is an empty result, not an error.
	assert.Empty(t, Run(txs, Params{Search: "zzz"}))
}

func TestRun_LevelFilter(t *testing.T) {
	txs := fixture()

	got := Run(txs, Params{Level: "HIGH"})
	assert.Equal(t, []string{"TXN-000001", "TXN-000004"}, ids(got))

	got = Run(txs, Params{Level: "all"})
	assert.Len(t, got, 4)

	got = Run(txs, Params{Level: "medium"})
	assert.Equal(t, []string{"TXN-000003"}, ids(got))

	// Unknown level matches nothing.
	assert.Empty(t, Run(txs, Params{Level: "CRITICAL"}))
}

func TestRun_FiltersCompose(t *testing.T) {
	txs := fixture()
	got := Run(txs, Params{Search: "ACC-A1", Level: "HIGH", SortKey: SortScore, Direction: Descending})
	assert.Equal(t, []string{"TXN-000001", "TXN-000004"}, ids(got))
}

func TestRun_NumericSortAndReverse(t *testing.T) {
	txs := fixture()

	asc := Run(txs, Params{SortKey: SortScore, Direction: Ascending})
	assert.Equal(t, []string{"TXN-000002", "TXN-000003", "TXN-000004", "TXN-000001"}, ids(asc))

	desc := Run(txs, Params{SortKey: SortScore, Direction: Descending})
	// No score ties: descending is the exact reverse of ascending.
	for i := range asc {
		assert.Equal(t, asc[len(asc)-1-i].ID, desc[i].ID)
	}
}

func TestRun_TiesKeepInsertionOrder(t *testing.T) {
	txs := fixture()

	// TXN-000002 and TXN-000004 tie on amount 120.
	got := Run(txs, Params{SortKey: SortAmount, Direction: Ascending})
	assert.Equal(t, []string{"TXN-000002", "TXN-000004", "TXN-000001", "TXN-000003"}, ids(got))

	// Descending also keeps insertion order within the tie group.
	got = Run(txs, Params{SortKey: SortAmount, Direction: Descending})
	assert.Equal(t, []string{"TXN-000003", "TXN-000001", "TXN-000002", "TXN-000004"}, ids(got))
}

func TestRun_RiskLevelSortsAsString(t *testing.T) {
	txs := fixture()
	got := Run(txs, Params{SortKey: SortLevel, Direction: Ascending})
	// Lexicographic: HIGH < LOW < MEDIUM.
	assert.Equal(t, []string{"TXN-000001", "TXN-000004", "TXN-000002", "TXN-000003"}, ids(got))
}

func TestRun_IsIdempotentAndNonMutating(t *testing.T) {
	txs := fixture()
	originalOrder := ids(txs)
	p := Params{Search: "acc", Level: "all", SortKey: SortAmount, Direction: Descending}

	first := Run(txs, p)
	second := Run(txs, p)
	assert.Equal(t, ids(first), ids(second), "identical arguments must yield identical output")
	assert.Equal(t, originalOrder, ids(txs), "input snapshot must not be mutated")
}

func TestToggle(t *testing.T) {
	// Clicking the active key flips direction.
	key, dir := Toggle(SortScore, Descending, SortScore)
	assert.Equal(t, SortScore, key)
	assert.Equal(t, Ascending, dir)

	key, dir = Toggle(SortScore, Ascending, SortScore)
	assert.Equal(t, Descending, dir)

	// A new key resets to descending.
	key, dir = Toggle(SortScore, Ascending, SortAmount)
	assert.Equal(t, SortAmount, key)
	assert.Equal(t, Descending, dir)
}

func TestParseSortKeyAndDirection(t *testing.T) {
	key, ok := ParseSortKey("Risk_Score")
	require.True(t, ok)
	assert.Equal(t, SortScore, key)

	_, ok = ParseSortKey("nope")
	assert.False(t, ok)

	dir, ok := ParseDirection("")
	require.True(t, ok)
	assert.Equal(t, Descending, dir, "default direction is descending")

	_, ok = ParseDirection("sideways")
	assert.False(t, ok)
}
