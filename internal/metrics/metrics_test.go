package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"meico/internal/pipeline"
	"meico/internal/services"
)

func TestObserverRecordsStages(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	c.StageStarted(ctx, pipeline.StageLoad)
	c.StageCompleted(ctx, pipeline.StageLoad, 20*time.Millisecond)
	c.StageFailed(ctx, pipeline.StageSelectMovement, services.Wrap(services.ErrConfiguration, "select_movement", "", "out of range", nil))

	if got := testutil.CollectAndCount(c.stageDuration); got != 1 {
		t.Fatalf("expected one stage duration series, got %d", got)
	}
	if got := testutil.ToFloat64(c.stageFailures.WithLabelValues("select_movement", "configuration")); got != 1 {
		t.Fatalf("expected one configuration failure, got %v", got)
	}
}

func TestObserveRequestOutcomes(t *testing.T) {
	c := New(nil)
	c.ObserveRequest("http", nil)
	c.ObserveRequest("http", nil)
	c.ObserveRequest("http", services.Wrap(services.ErrInvalidInput, "load", "", "bad", nil))
	c.ObserveRequest("cli", errors.New("boom"))

	cases := []struct {
		surface, outcome string
		want             float64
	}{
		{"http", "ok", 2},
		{"http", "invalid_input", 1},
		{"cli", "internal", 1},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(c.requests.WithLabelValues(tc.surface, tc.outcome)); got != tc.want {
			t.Fatalf("%s/%s: expected %v, got %v", tc.surface, tc.outcome, tc.want, got)
		}
	}
}

func TestHandlerExposesPendingGauge(t *testing.T) {
	pending := 3
	c := New(func() int { return pending })

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "meico_scratch_pending_deletions 3") {
		t.Fatalf("pending gauge missing from exposition:\n%s", rec.Body.String())
	}
}
