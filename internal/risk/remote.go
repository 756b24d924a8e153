package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amlsift/amlsift/internal/circuitbreaker"
	"github.com/amlsift/amlsift/internal/retry"
)

// RemoteScorer calls an external scoring service over HTTP. The request is
// one transaction-shaped JSON record; the response is an assessment. Client
// errors (4xx) are permanent; timeouts, connection failures, and server
// errors are retried with bounded backoff before surfacing as
// ErrScoringUnavailable.
type RemoteScorer struct {
	url       string
	client    *http.Client
	retries   int
	baseDelay time.Duration
	breaker   *circuitbreaker.Breaker
}

// breakerKey is the single circuit key: one scoring service per deployment.
const breakerKey = "scorer"

// remoteResponse tolerates both reason_codes and risk_factors as the code
// field name; scoring services disagree on which they emit.
type remoteResponse struct {
	Score       float64  `json:"risk_score"`
	ReasonCodes []string `json:"reason_codes"`
	RiskFactors []string `json:"risk_factors"`
	Explanation string   `json:"explanation"`
}

// NewRemoteScorer creates a scorer client with a per-call timeout.
func NewRemoteScorer(url string, timeout time.Duration, retries int) *RemoteScorer {
	return &RemoteScorer{
		url:       url,
		client:    &http.Client{Timeout: timeout},
		retries:   retries,
		baseDelay: 100 * time.Millisecond,
		breaker:   circuitbreaker.New(5, 30*time.Second),
	}
}

// Score posts the subject to the scoring service and normalizes the result.
// While the circuit is open after repeated failures, calls fail fast instead
// of hammering a service that is already down.
func (s *RemoteScorer) Score(ctx context.Context, subject *Subject) (*Assessment, error) {
	if !s.breaker.Allow(breakerKey) {
		return nil, fmt.Errorf("%w: circuit open", ErrScoringUnavailable)
	}

	body, err := json.Marshal(subject)
	if err != nil {
		return nil, fmt.Errorf("encode scoring request: %w", err)
	}

	var assessment *Assessment
	err = retry.Do(ctx, s.retries, s.baseDelay, func() error {
		a, err := s.scoreOnce(ctx, body)
		if err != nil {
			return err
		}
		assessment = a
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.breaker.RecordFailure(breakerKey)
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}
	s.breaker.RecordSuccess(breakerKey)
	return assessment, nil
}

func (s *RemoteScorer) scoreOnce(ctx context.Context, body []byte) (*Assessment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err // timeout or connection failure: retryable
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("scoring service returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, retry.Permanent(fmt.Errorf("scoring service rejected request: %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var rr remoteResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode scoring response: %w", err))
	}

	codes := rr.ReasonCodes
	if len(codes) == 0 {
		codes = rr.RiskFactors
	}

	assessment := &Assessment{
		Score:       rr.Score,
		ReasonCodes: codes,
		Explanation: rr.Explanation,
	}
	Normalize(assessment)
	return assessment, nil
}
