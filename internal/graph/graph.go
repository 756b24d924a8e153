// Package graph derives the account-relationship multigraph from the
// transaction set: accounts are nodes, transactions are edges. The graph is
// a materialized view — fully rebuilt from the transaction snapshot on every
// change, never a second source of truth.
package graph

import (
	"github.com/amlsift/amlsift/internal/risk"
	"github.com/amlsift/amlsift/internal/transaction"
)

// DefaultAccountType classifies accounts absent an external registry.
const DefaultAccountType = "account"

// Node is one account observed in the transaction set. It is created the
// first time the account appears and persists for the session even if every
// transaction touching it is later cleared by a reviewer.
type Node struct {
	ID string `json:"id"`
	// RiskLevel is the maximum severity among transactions touching this
	// account.
	RiskLevel risk.Level `json:"risk_level"`
	// TotalVolume sums the amounts of every transaction where this account
	// is sender or receiver — money moved through, not net flow.
	TotalVolume float64 `json:"total_volume"`
	AccountType string  `json:"account_type"`
}

// Edge is one transaction's contribution to the graph. Edges between the
// same account pair stay distinct so volume and suspicion remain traceable
// to individual transactions.
type Edge struct {
	TransactionID string  `json:"transaction_id"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	Amount        float64 `json:"amount"`
	Suspicious    bool    `json:"suspicious"`
}

// Stats summarizes a built graph for dashboards and reports.
type Stats struct {
	NodeCount       int     `json:"node_count"`
	EdgeCount       int     `json:"edge_count"`
	SuspiciousEdges int     `json:"suspicious_edges"`
	TotalVolume     float64 `json:"total_volume"`
}

// Graph is the derived account-relationship multigraph.
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`
	Stats Stats            `json:"stats"`
}

// Build recomputes the graph from a transaction snapshot. Layout and
// rendering are presentation concerns; this produces only the abstract
// structure.
func Build(txs []*transaction.Transaction) *Graph {
	g := &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0, len(txs)),
	}

	for _, tx := range txs {
		suspicious := tx.RiskLevel == risk.LevelHigh
		g.Edges = append(g.Edges, &Edge{
			TransactionID: tx.ID,
			From:          tx.FromAccount,
			To:            tx.ToAccount,
			Amount:        tx.Amount,
			Suspicious:    suspicious,
		})
		if suspicious {
			g.Stats.SuspiciousEdges++
		}
		g.Stats.TotalVolume += tx.Amount

		g.touch(tx.FromAccount, tx)
		g.touch(tx.ToAccount, tx)
	}

	g.Stats.NodeCount = len(g.Nodes)
	g.Stats.EdgeCount = len(g.Edges)
	return g
}

// touch accumulates one transaction into an account's node, creating the
// node on first sight. A self-transfer touches its account twice: once as
// sender, once as receiver.
func (g *Graph) touch(accountID string, tx *transaction.Transaction) {
	node, ok := g.Nodes[accountID]
	if !ok {
		node = &Node{
			ID:          accountID,
			RiskLevel:   tx.RiskLevel,
			AccountType: DefaultAccountType,
		}
		g.Nodes[accountID] = node
	}
	node.TotalVolume += tx.Amount
	node.RiskLevel = risk.MaxLevel(node.RiskLevel, tx.RiskLevel)
}

// Related returns the transactions touching an account — the selection set
// when an investigator clicks a node. Unknown accounts yield an empty slice.
func Related(txs []*transaction.Transaction, accountID string) []*transaction.Transaction {
	var result []*transaction.Transaction
	for _, tx := range txs {
		if tx.Touches(accountID) {
			result = append(result, tx)
		}
	}
	return result
}
