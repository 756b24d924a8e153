// Package session orchestrates one analysis session: upload flows through
// scoring into the transaction store and a graph rebuild; simulation flows
// through scoring only and commits nothing.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/amlsift/amlsift/internal/graph"
	"github.com/amlsift/amlsift/internal/idgen"
	"github.com/amlsift/amlsift/internal/metrics"
	"github.com/amlsift/amlsift/internal/query"
	"github.com/amlsift/amlsift/internal/risk"
	"github.com/amlsift/amlsift/internal/traces"
	"github.com/amlsift/amlsift/internal/transaction"
)

// Events receives session lifecycle notifications (the realtime hub
// subscribes presentation collaborators to these).
type Events interface {
	BatchIngested(txs []*transaction.Transaction, g *graph.Graph)
	SessionCleared()
}

// UploadResult is what presentation collaborators get back after an upload:
// the newly ingested batch, the full updated transaction list, and the
// rebuilt graph.
type UploadResult struct {
	Ingested     []*transaction.Transaction `json:"ingested"`
	Transactions []*transaction.Transaction `json:"transactions"`
	Graph        *graph.Graph               `json:"graph"`
}

// Stats aggregates the session for dashboards and the report collaborator.
type Stats struct {
	Transactions int                        `json:"transactions"`
	Accounts     int                        `json:"accounts"`
	TotalVolume  float64                    `json:"total_volume"`
	ByLevel      map[risk.Level]int         `json:"by_level"`
	ByStatus     map[transaction.Status]int `json:"by_status"`
}

// Coordinator wires the store, scorer, and graph builder together. It owns
// no state of its own beyond references; everything it reports is derived
// from the store's snapshot.
type Coordinator struct {
	store     *transaction.Store
	scorer    risk.Scorer
	audit     risk.Store // nil disables simulation audit records
	events    Events
	logger    *slog.Logger
	allowSelf bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEvents wires session notifications to a consumer.
func WithEvents(events Events) Option {
	return func(c *Coordinator) { c.events = events }
}

// WithAudit records simulated assessments to the audit trail.
func WithAudit(audit risk.Store) Option {
	return func(c *Coordinator) { c.audit = audit }
}

// WithSelfTransfers permits hypothetical self-transfers in simulation.
// Must match the store's ingestion policy.
func WithSelfTransfers(allowed bool) Option {
	return func(c *Coordinator) { c.allowSelf = allowed }
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// New creates a coordinator over the given store and scorer.
func New(store *transaction.Store, scorer risk.Scorer, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		scorer: scorer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload ingests a batch and rebuilds the graph over the full updated set.
// Failures from validation or scoring propagate unchanged so the caller can
// distinguish user-correctable input from scorer outages.
func (c *Coordinator) Upload(ctx context.Context, raws []transaction.RawTransaction) (*UploadResult, error) {
	ctx, span := traces.StartSpan(ctx, "session.upload", traces.BatchSize(len(raws)))
	defer span.End()

	metrics.BatchSize.Observe(float64(len(raws)))

	ingested, err := c.store.Ingest(ctx, raws)
	if err != nil {
		metrics.BatchesRejectedTotal.WithLabelValues(rejectionCause(err)).Inc()
		return nil, err
	}
	for _, tx := range ingested {
		metrics.TransactionsIngestedTotal.WithLabelValues(string(tx.RiskLevel)).Inc()
	}

	all := c.store.All()
	metrics.SessionTransactions.Set(float64(len(all)))
	g := c.buildGraph(all)

	c.logger.Info("batch ingested",
		"batch_size", len(ingested),
		"session_size", len(all),
		"graph_nodes", g.Stats.NodeCount,
		"suspicious_edges", g.Stats.SuspiciousEdges,
	)

	if c.events != nil {
		c.events.BatchIngested(ingested, g)
	}

	return &UploadResult{Ingested: ingested, Transactions: all, Graph: g}, nil
}

// Simulate scores a hypothetical transaction without persisting anything:
// the store, the graph, and the scorer's learning windows are untouched.
func (c *Coordinator) Simulate(ctx context.Context, raw transaction.RawTransaction) (*risk.Assessment, error) {
	ctx, span := traces.StartSpan(ctx, "session.simulate")
	defer span.End()

	subject, verr := raw.Subject(time.Now().UTC(), c.allowSelf)
	if verr != nil {
		return nil, &transaction.BatchValidationError{Errors: []*transaction.ValidationError{verr}}
	}

	start := time.Now()
	assessment, err := c.scorer.Score(ctx, subject)
	metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	risk.Normalize(assessment)
	metrics.SimulationsTotal.Inc()
	span.SetAttributes(traces.RiskLevel(string(assessment.Level)))

	if c.audit != nil {
		rec := &risk.Record{
			ID:          idgen.WithPrefix("asmt_"),
			Score:       assessment.Score,
			Level:       assessment.Level,
			ReasonCodes: assessment.ReasonCodes,
			Explanation: assessment.Explanation,
			Simulated:   true,
			EvaluatedAt: time.Now().UTC(),
		}
		if err := c.audit.Record(context.WithoutCancel(ctx), rec); err != nil {
			c.logger.Warn("simulation audit record failed", "error", err)
		}
	}

	return assessment, nil
}

// Snapshot returns the insertion-ordered transaction view.
func (c *Coordinator) Snapshot() []*transaction.Transaction {
	return c.store.All()
}

// Query filters and sorts the current snapshot.
func (c *Coordinator) Query(p query.Params) []*transaction.Transaction {
	return query.Run(c.store.All(), p)
}

// Get looks up a single transaction by ID.
func (c *Coordinator) Get(id string) (*transaction.Transaction, bool) {
	return c.store.Get(id)
}

// Related returns the transactions touching an account. An unknown account
// yields an empty result, not an error.
func (c *Coordinator) Related(ctx context.Context, accountID string) []*transaction.Transaction {
	_, span := traces.StartSpan(ctx, "session.related", traces.AccountID(accountID))
	defer span.End()
	return c.store.ByAccount(accountID)
}

// Assessments returns the audit trail for one transaction, most recent
// first. Without an audit store the trail is always empty.
func (c *Coordinator) Assessments(ctx context.Context, txID string, limit int) ([]*risk.Record, error) {
	ctx, span := traces.StartSpan(ctx, "session.assessments", traces.TransactionID(txID))
	defer span.End()
	if c.audit == nil {
		return nil, nil
	}
	return c.audit.ListByTransaction(ctx, txID, limit)
}

// Graph rebuilds the account graph from the current snapshot.
func (c *Coordinator) Graph() *graph.Graph {
	return c.buildGraph(c.store.All())
}

// Stats aggregates the current session.
func (c *Coordinator) Stats() *Stats {
	all := c.store.All()
	g := c.buildGraph(all)

	s := &Stats{
		Transactions: len(all),
		Accounts:     g.Stats.NodeCount,
		TotalVolume:  g.Stats.TotalVolume,
		ByLevel:      make(map[risk.Level]int),
		ByStatus:     make(map[transaction.Status]int),
	}
	for _, tx := range all {
		s.ByLevel[tx.RiskLevel]++
		s.ByStatus[tx.Status]++
	}
	return s
}

// Clear resets the session. Rejected while an ingestion batch is in flight.
func (c *Coordinator) Clear() error {
	if err := c.store.Clear(); err != nil {
		return err
	}
	metrics.SessionTransactions.Set(0)
	c.logger.Info("session cleared")
	if c.events != nil {
		c.events.SessionCleared()
	}
	return nil
}

func (c *Coordinator) buildGraph(txs []*transaction.Transaction) *graph.Graph {
	start := time.Now()
	g := graph.Build(txs)
	metrics.GraphRebuildDuration.Observe(time.Since(start).Seconds())
	return g
}

func rejectionCause(err error) string {
	var batchErr *transaction.BatchValidationError
	switch {
	case errors.As(err, &batchErr):
		return "validation"
	case errors.Is(err, risk.ErrScoringUnavailable):
		return "scoring"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, transaction.ErrIngestInFlight):
		return "conflict"
	default:
		return "other"
	}
}
