package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lending-harvest/internal/config"
)

func TestAlerter_Evaluate(t *testing.T) {
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.5}

	tests := []struct {
		name  string
		snap  MetricsSnapshot
		cfg   config.MonitoringConfig
		types []AlertType
	}{
		{
			name: "healthy",
			snap: MetricsSnapshot{RunsSuccess: 10, RunsFailed: 1, RunFailRate: 1.0 / 11},
			cfg:  cfg,
		},
		{
			name:  "failure rate breached",
			snap:  MetricsSnapshot{RunsSuccess: 1, RunsFailed: 3, RunFailRate: 0.75},
			cfg:   cfg,
			types: []AlertType{AlertRunFailureRate},
		},
		{
			name: "too few runs",
			snap: MetricsSnapshot{RunsFailed: 2, RunFailRate: 1},
			cfg:  cfg,
		},
		{
			name:  "custom minimum runs",
			snap:  MetricsSnapshot{RunsFailed: 2, RunFailRate: 1},
			cfg:   config.MonitoringConfig{FailureRateThreshold: 0.5, MinRuns: 2},
			types: []AlertType{AlertRunFailureRate},
		},
		{
			name: "zero threshold disables rate alert",
			snap: MetricsSnapshot{RunsFailed: 5, RunFailRate: 1},
		},
		{
			name:  "failing source",
			snap:  MetricsSnapshot{FailingSources: []string{"media_scraper"}},
			cfg:   cfg,
			types: []AlertType{AlertSourceFailing},
		},
		{
			name: "everything",
			snap: MetricsSnapshot{
				RunsSuccess: 1, RunsFailed: 4, RunFailRate: 0.8,
				FailingSources: []string{"media_scraper"},
				StaleSources:   []string{"official_scraper"},
			},
			cfg:   cfg,
			types: []AlertType{AlertRunFailureRate, AlertSourceFailing, AlertSourceStale},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := NewAlerter(tt.cfg).Evaluate(&tt.snap)
			var got []AlertType
			for _, a := range alerts {
				got = append(got, a.Type)
				assert.NotEmpty(t, a.Message)
				assert.False(t, a.Timestamp.IsZero())
			}
			assert.Equal(t, tt.types, got)
		})
	}
}

func TestAlerter_Evaluate_StaleMessageNamesSources(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	alerts := a.Evaluate(&MetricsSnapshot{StaleSources: []string{"official_scraper", "research_scraper"}})
	require.Len(t, alerts, 1)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "official_scraper, research_scraper")
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertSourceStale, Severity: "medium", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_Skipped(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate}}))

	a = NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertSourceFailing, Message: "test"}})
	assert.Equal(t, 0, sent)
}
