package risk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRemoteScorer_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var subject Subject
		if err := json.NewDecoder(r.Body).Decode(&subject); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"risk_score":   0.85,
			"reason_codes": []string{"HIGH_AMOUNT", "HIGH_AMOUNT"},
			"explanation":  "model flagged large transfer",
		})
	}))
	defer srv.Close()

	scorer := NewRemoteScorer(srv.URL, time.Second, 3)
	a, err := scorer.Score(context.Background(), &Subject{
		Amount: 10000, FromAccount: "A", ToAccount: "B", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Score != 0.85 || a.Level != LevelHigh {
		t.Errorf("got score %v level %s", a.Score, a.Level)
	}
	if len(a.ReasonCodes) != 1 {
		t.Errorf("expected deduped reason codes, got %v", a.ReasonCodes)
	}
}

func TestRemoteScorer_RiskFactorsAlias(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"risk_score":   0.5,
			"risk_factors": []string{"VELOCITY_SPIKE"},
		})
	}))
	defer srv.Close()

	scorer := NewRemoteScorer(srv.URL, time.Second, 1)
	a, err := scorer.Score(context.Background(), &Subject{Amount: 1, FromAccount: "A", ToAccount: "B"})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.ReasonCodes) != 1 || a.ReasonCodes[0] != "VELOCITY_SPIKE" {
		t.Errorf("risk_factors alias not honored: %v", a.ReasonCodes)
	}
}

func TestRemoteScorer_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"risk_score": 0.2})
	}))
	defer srv.Close()

	scorer := NewRemoteScorer(srv.URL, time.Second, 5)
	scorer.baseDelay = time.Millisecond

	a, err := scorer.Score(context.Background(), &Subject{Amount: 1, FromAccount: "A", ToAccount: "B"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Level != LevelLow {
		t.Errorf("expected LOW, got %s", a.Level)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestRemoteScorer_ExhaustionSurfacesAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	scorer := NewRemoteScorer(srv.URL, time.Second, 2)
	scorer.baseDelay = time.Millisecond

	_, err := scorer.Score(context.Background(), &Subject{Amount: 1, FromAccount: "A", ToAccount: "B"})
	if !errors.Is(err, ErrScoringUnavailable) {
		t.Fatalf("expected ErrScoringUnavailable, got %v", err)
	}
}

func TestRemoteScorer_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	scorer := NewRemoteScorer(srv.URL, time.Second, 5)
	scorer.baseDelay = time.Millisecond

	_, err := scorer.Score(context.Background(), &Subject{Amount: 1, FromAccount: "A", ToAccount: "B"})
	if !errors.Is(err, ErrScoringUnavailable) {
		t.Fatalf("expected ErrScoringUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx should not be retried: %d calls", calls.Load())
	}
}

func TestRemoteScorer_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	scorer := NewRemoteScorer(srv.URL, time.Second, 1)
	scorer.baseDelay = time.Millisecond

	subject := &Subject{Amount: 100, FromAccount: "A", ToAccount: "B", Timestamp: time.Now()}
	for i := 0; i < 5; i++ {
		if _, err := scorer.Score(context.Background(), subject); !errors.Is(err, ErrScoringUnavailable) {
			t.Fatalf("call %d: expected ErrScoringUnavailable, got %v", i, err)
		}
	}

	before := calls.Load()
	_, err := scorer.Score(context.Background(), subject)
	if !errors.Is(err, ErrScoringUnavailable) {
		t.Fatalf("expected ErrScoringUnavailable while circuit open, got %v", err)
	}
	if calls.Load() != before {
		t.Error("open circuit should fail fast without contacting the service")
	}
}
