// Package query implements the pure filter-and-sort transform over
// transaction snapshots. It never mutates its input; repeated calls with
// identical arguments yield identical output.
package query

import (
	"sort"
	"strings"

	"github.com/amlsift/amlsift/internal/risk"
	"github.com/amlsift/amlsift/internal/transaction"
)

// SortKey names a sortable Transaction field.
type SortKey string

const (
	SortID     SortKey = "id"
	SortAmount SortKey = "amount"
	SortScore  SortKey = "risk_score"
	SortLevel  SortKey = "risk_level"
	SortFrom   SortKey = "from_account"
	SortTo     SortKey = "to_account"
	SortTime   SortKey = "timestamp"
)

// Direction of a sort.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// LevelAll matches every risk level in a filter.
const LevelAll = "all"

// Params describes one query: a free-text filter, a level filter, and an
// optional sort. The zero value returns the snapshot unchanged.
type Params struct {
	// Search is matched case-insensitively as a substring of the
	// transaction ID, sender, or receiver. Empty matches everything.
	Search string
	// Level is "HIGH", "MEDIUM", "LOW" (case-insensitive), or "all"/empty
	// for everything. An unrecognized value matches nothing — absence is a
	// normal outcome of filtering, not an error.
	Level string
	// SortKey of "" leaves insertion order untouched.
	SortKey   SortKey
	Direction Direction
}

// Run filters and sorts a snapshot. The input slice is never modified; ties
// keep their original insertion order (stable sort), so identical inputs
// always produce identical ordered output.
func Run(txs []*transaction.Transaction, p Params) []*transaction.Transaction {
	result := filter(txs, p)
	if p.SortKey == "" {
		return result
	}

	less := lessFunc(p.SortKey)
	desc := p.Direction == Descending
	sort.SliceStable(result, func(i, j int) bool {
		if desc {
			return less(result[j], result[i])
		}
		return less(result[i], result[j])
	})
	return result
}

// Toggle implements the investigator sort workflow: clicking the active key
// flips direction; selecting a new key resets to descending so the highest
// risk or largest amount surfaces first.
func Toggle(active SortKey, dir Direction, clicked SortKey) (SortKey, Direction) {
	if clicked == active {
		if dir == Descending {
			return active, Ascending
		}
		return active, Descending
	}
	return clicked, Descending
}

func filter(txs []*transaction.Transaction, p Params) []*transaction.Transaction {
	search := strings.ToLower(strings.TrimSpace(p.Search))

	matchAllLevels := p.Level == "" || strings.EqualFold(p.Level, LevelAll)
	var level risk.Level
	var levelKnown bool
	if !matchAllLevels {
		level, levelKnown = risk.ParseLevel(p.Level)
	}

	result := make([]*transaction.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !matchAllLevels {
			if !levelKnown || tx.RiskLevel != level {
				continue
			}
		}
		if search != "" && !matchesSearch(tx, search) {
			continue
		}
		result = append(result, tx)
	}
	return result
}

// matchesSearch ORs the substring match across ID, sender, and receiver.
func matchesSearch(tx *transaction.Transaction, search string) bool {
	return strings.Contains(strings.ToLower(tx.ID), search) ||
		strings.Contains(strings.ToLower(tx.FromAccount), search) ||
		strings.Contains(strings.ToLower(tx.ToAccount), search)
}

// lessFunc returns the ascending comparator for a key. Numeric fields
// compare numerically, timestamps chronologically; everything else compares
// as case-sensitive strings. Note risk_level deliberately compares as its
// string form (HIGH < LOW < MEDIUM), not by severity — callers wanting
// severity order sort by risk_score.
func lessFunc(key SortKey) func(a, b *transaction.Transaction) bool {
	switch key {
	case SortAmount:
		return func(a, b *transaction.Transaction) bool { return a.Amount < b.Amount }
	case SortScore:
		return func(a, b *transaction.Transaction) bool { return a.RiskScore < b.RiskScore }
	case SortTime:
		return func(a, b *transaction.Transaction) bool { return a.Timestamp.Before(b.Timestamp) }
	case SortLevel:
		return func(a, b *transaction.Transaction) bool { return string(a.RiskLevel) < string(b.RiskLevel) }
	case SortFrom:
		return func(a, b *transaction.Transaction) bool { return a.FromAccount < b.FromAccount }
	case SortTo:
		return func(a, b *transaction.Transaction) bool { return a.ToAccount < b.ToAccount }
	default:
		return func(a, b *transaction.Transaction) bool { return a.ID < b.ID }
	}
}

// ParseSortKey validates a sort key from an external caller.
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortID, SortAmount, SortScore, SortLevel, SortFrom, SortTo, SortTime:
		return SortKey(strings.ToLower(strings.TrimSpace(s))), true
	case "":
		return "", true
	default:
		return "", false
	}
}

// ParseDirection validates a direction, defaulting to descending.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return Ascending, true
	case "desc", "descending", "":
		return Descending, true
	default:
		return "", false
	}
}
