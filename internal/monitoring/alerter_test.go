package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricewatch/internal/config"
)

var checkedAt = time.Date(2025, 5, 21, 12, 0, 0, 0, time.UTC)

func healthySnapshot() *MetricsSnapshot {
	done := checkedAt.Add(-6 * time.Hour)
	return &MetricsSnapshot{
		RunsTotal:       4,
		RunsComplete:    4,
		LastCompletedAt: &done,
		LatestPriceDate: day(21),
		LookbackHours:   72,
		CollectedAt:     checkedAt,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25, StaleAfterHours: 36})
	assert.Empty(t, a.Evaluate(healthySnapshot()))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	snap := healthySnapshot()
	snap.RunsComplete, snap.RunsFailed, snap.FailRate = 2, 2, 0.5

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertImportFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "50.0%")
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	snap := healthySnapshot()
	snap.RunsComplete, snap.RunsFailed, snap.FailRate = 1, 1, 0.5

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_Stale(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1, StaleAfterHours: 36})

	snap := healthySnapshot()
	old := checkedAt.Add(-48 * time.Hour)
	snap.LastCompletedAt = &old

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertImportStale, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "48h0m0s ago")

	snap.LastCompletedAt = nil
	alerts = a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "never completed")
}

func TestAlerter_Evaluate_StaleDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1})

	snap := healthySnapshot()
	snap.LastCompletedAt = nil
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_LaggingChains(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1})

	snap := healthySnapshot()
	snap.LaggingChains = []string{"spar", "tommy"}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertChainLagging, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Equal(t, "2 chain(s) have no prices for 2025-05-21: spar, tommy", alerts[0].Message)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertImportFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertImportStale, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertImportStale, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertImportStale, Message: "test"}})
	assert.Equal(t, 0, sent)
}
