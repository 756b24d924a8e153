package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/amlsift/amlsift/internal/logging"
	"github.com/amlsift/amlsift/internal/pagination"
	"github.com/amlsift/amlsift/internal/query"
	"github.com/amlsift/amlsift/internal/risk"
	"github.com/amlsift/amlsift/internal/transaction"
	"github.com/amlsift/amlsift/internal/validation"
)

// maxPageLimit caps GET /transactions page sizes. A limit of 0 means
// "everything", which is what the investigation view wants for small
// sessions.
const maxPageLimit = 1000

// uploadTransactions handles POST /api/v1/transactions.
// The batch commits atomically: one bad row or one scoring failure rejects
// everything, so the analyst never works from a half-scored session.
func (s *Server) uploadTransactions(c *gin.Context) {
	ctx := c.Request.Context()

	var raws []transaction.RawTransaction
	if err := c.ShouldBindJSON(&raws); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be a JSON array of transaction records",
		})
		return
	}

	var shapeErrs []*transaction.ValidationError
	for i, raw := range raws {
		shapeErrs = append(shapeErrs, recordShapeErrors(i, raw)...)
	}
	if len(shapeErrs) > 0 {
		s.renderUploadError(c, &transaction.BatchValidationError{Errors: shapeErrs})
		return
	}

	result, err := s.coordinator.Upload(ctx, raws)
	if err != nil {
		s.renderUploadError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ingested": result.Ingested,
		"total":    len(result.Transactions),
		"graph":    result.Graph,
	})
}

// recordShapeErrors runs the field-shape checks on one raw record before it
// reaches the scoring pipeline: presence, account identifier grammar, and
// decimal amount format. Semantic checks (self-transfer policy, timestamp
// parsing, numeric range) stay with the transaction store, which repeats the
// shape checks for callers that bypass HTTP.
func recordShapeErrors(index int, raw transaction.RawTransaction) []*transaction.ValidationError {
	amount := strings.TrimSpace(raw[transaction.ColAmount])
	from := strings.TrimSpace(raw[transaction.ColFrom])
	to := strings.TrimSpace(raw[transaction.ColTo])

	verrs := validation.Validate(
		validation.Required(transaction.ColAmount, amount),
		validation.ValidAmount(transaction.ColAmount, amount),
		validation.Required(transaction.ColFrom, from),
		validation.ValidAccount(transaction.ColFrom, from),
		validation.Required(transaction.ColTo, to),
		validation.ValidAccount(transaction.ColTo, to),
	)
	if len(verrs) == 0 {
		return nil
	}

	out := make([]*transaction.ValidationError, 0, len(verrs))
	for _, ve := range verrs {
		out = append(out, &transaction.ValidationError{
			Index:   index,
			Field:   ve.Field,
			Message: ve.Message,
		})
	}
	return out
}

func (s *Server) renderUploadError(c *gin.Context, err error) {
	var batchErr *transaction.BatchValidationError
	switch {
	case errors.As(err, &batchErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "Batch rejected; no transactions were ingested",
			"details": batchErr.Errors,
		})
	case errors.Is(err, risk.ErrScoringUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "scoring_unavailable",
			"message": "Risk scoring is unavailable; the batch was not ingested",
		})
	case errors.Is(err, transaction.ErrIngestInFlight):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "ingest_in_flight",
			"message": "Another batch is being ingested; retry shortly",
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"error":   "request_cancelled",
			"message": "Upload cancelled before the batch committed",
		})
	default:
		logging.L(c.Request.Context()).Error("upload failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to ingest batch",
		})
	}
}

// listTransactions handles GET /api/v1/transactions with search, level
// filtering, sorting, and cursor pagination.
func (s *Server) listTransactions(c *gin.Context) {
	sortKey, ok := query.ParseSortKey(c.Query("sort"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_sort",
			"message": "Unknown sort key",
		})
		return
	}

	dir, ok := query.ParseDirection(c.Query("dir"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_direction",
			"message": "dir must be asc or desc",
		})
		return
	}

	if verrs := validation.Validate(
		validation.MaxLength("search", c.Query("search"), validation.MaxStringLength),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_search",
			"message": "search exceeds the maximum length",
		})
		return
	}

	params := query.Params{
		Search:    validation.SanitizeString(c.Query("search"), validation.MaxStringLength),
		Level:     c.Query("risk_level"),
		SortKey:   sortKey,
		Direction: dir,
	}

	results := s.coordinator.Query(params)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxPageLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be an integer between 0 and 1000",
			})
			return
		}
		limit = n
	}

	afterID, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Cursor is malformed or from an old session",
		})
		return
	}

	page, next, more := pagination.Page(results, limit, afterID,
		func(tx *transaction.Transaction) string { return tx.ID })

	resp := gin.H{
		"transactions": page,
		"count":        len(page),
		"total":        len(results),
		"has_more":     more,
	}
	if next != "" {
		resp["next_cursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// getTransaction handles GET /api/v1/transactions/:id.
func (s *Server) getTransaction(c *gin.Context) {
	id := c.Param("id")
	if !validation.IsValidTransactionID(id) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_transaction_id",
			"message": "Transaction IDs look like TXN-000001",
		})
		return
	}
	tx, ok := s.coordinator.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No transaction with that ID in the current session",
		})
		return
	}
	c.JSON(http.StatusOK, tx)
}

// getGraph handles GET /api/v1/graph.
func (s *Server) getGraph(c *gin.Context) {
	c.JSON(http.StatusOK, s.coordinator.Graph())
}

// accountTransactions handles GET /api/v1/accounts/:id/transactions.
// Unknown accounts yield an empty list, not a 404: absence of activity is a
// finding, not an error.
func (s *Server) accountTransactions(c *gin.Context) {
	accountID := c.Param("id")
	txs := s.coordinator.Related(c.Request.Context(), accountID)
	c.JSON(http.StatusOK, gin.H{
		"account":      accountID,
		"transactions": txs,
		"count":        len(txs),
	})
}

// simulateTransaction handles POST /api/v1/simulate. The hypothetical
// transaction is scored but never committed; a later upload of the same
// record produces a byte-identical assessment.
func (s *Server) simulateTransaction(c *gin.Context) {
	ctx := c.Request.Context()

	var raw transaction.RawTransaction
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be a JSON transaction record",
		})
		return
	}

	if verrs := recordShapeErrors(0, raw); len(verrs) > 0 {
		s.renderUploadError(c, &transaction.BatchValidationError{Errors: verrs})
		return
	}

	assessment, err := s.coordinator.Simulate(ctx, raw)
	if err != nil {
		s.renderUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assessment": simulatedAssessment{
			Score:       assessment.Score,
			Level:       assessment.Level,
			RiskFactors: assessment.ReasonCodes,
			Explanation: assessment.Explanation,
		},
		"committed": false,
	})
}

// simulatedAssessment renames reason_codes to risk_factors: the codes on a
// simulated record describe a hypothetical transaction, not a stored one.
type simulatedAssessment struct {
	Score       float64    `json:"risk_score"`
	Level       risk.Level `json:"risk_level"`
	RiskFactors []string   `json:"risk_factors"`
	Explanation string     `json:"explanation,omitempty"`
}

// clearSession handles DELETE /api/v1/session.
func (s *Server) clearSession(c *gin.Context) {
	if err := s.coordinator.Clear(); err != nil {
		if errors.Is(err, transaction.ErrIngestInFlight) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "ingest_in_flight",
				"message": "Cannot clear the session while a batch is being ingested",
			})
			return
		}
		logging.L(c.Request.Context()).Error("session clear failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to clear session",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// sessionStats handles GET /api/v1/session/stats.
func (s *Server) sessionStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.coordinator.Stats())
}

// listAssessments handles GET /api/v1/assessments/:txid — the audit trail of
// every scoring pass a transaction has been through, most recent first.
func (s *Server) listAssessments(c *gin.Context) {
	txID := c.Param("txid")
	if !validation.IsValidTransactionID(txID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_transaction_id",
			"message": "Transaction IDs look like TXN-000001",
		})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxPageLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be an integer between 1 and 1000",
			})
			return
		}
		limit = n
	}

	records, err := s.coordinator.Assessments(c.Request.Context(), txID, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("assessment lookup failed", "error", err, "transaction_id", txID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load assessment history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction_id": txID,
		"assessments":    records,
		"count":          len(records),
	})
}
