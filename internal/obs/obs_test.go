package obs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ChallengeIssued()
	m.Verification("ok")
	m.Refresh("ok")
	m.ReuseDetected()
	m.Limited("challenge:ip")
	m.Revoked("family", "user-logout")
	m.AccessCheck("ok")
}

func TestMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ReuseDetected()
	m.ReuseDetected()
	m.Revoked("family", "rotation-reuse-detected")
	m.Limited("verify:ip")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RefreshReuseDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Revocations.WithLabelValues("family", "rotation-reuse-detected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("verify:ip")))
}

func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg).ChallengeIssued()

	healthy := true
	srv := createMetricsServer(":0", reg, func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "walletauth_challenges_issued_total 1")

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWatermillLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewWatermillLogger(zap.New(core)).With(watermill.LogFields{"topic": "t"})

	l.Info("subscribed", watermill.LogFields{"consumer": "c1"})
	l.Error("publish failed", errors.New("boom"), nil)
	l.Trace("hidden", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "subscribed", entries[0].Message)
	assert.Equal(t, "t", entries[0].ContextMap()["topic"])
	assert.Equal(t, "c1", entries[0].ContextMap()["consumer"])
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "nonsense", App: "walletauth"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
}
