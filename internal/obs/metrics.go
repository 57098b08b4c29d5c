package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the protocol counters. A nil *Metrics records nothing.
type Metrics struct {
	ChallengesIssued     prometheus.Counter
	Verifications        *prometheus.CounterVec
	Refreshes            *prometheus.CounterVec
	RefreshReuseDetected prometheus.Counter
	RateLimited          *prometheus.CounterVec
	Revocations          *prometheus.CounterVec
	AccessChecks         *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChallengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "walletauth",
			Name:      "challenges_issued_total",
			Help:      "Challenges handed out to wallets.",
		}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletauth",
			Name:      "verifications_total",
			Help:      "Signature verifications by result code.",
		}, []string{"result"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletauth",
			Name:      "refreshes_total",
			Help:      "Refresh rotations by result code.",
		}, []string{"result"}),
		RefreshReuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "walletauth",
			Name:      "refresh_reuse_detected_total",
			Help:      "Replays of rotated refresh assertions. Each one revoked a family.",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletauth",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate guard.",
		}, []string{"bucket"}),
		Revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletauth",
			Name:      "revocations_total",
			Help:      "Revocation entries written by reason.",
		}, []string{"kind", "reason"}),
		AccessChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletauth",
			Name:      "access_checks_total",
			Help:      "Access assertion checks by result code.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.ChallengesIssued,
		m.Verifications,
		m.Refreshes,
		m.RefreshReuseDetected,
		m.RateLimited,
		m.Revocations,
		m.AccessChecks,
	)
	return m
}

func (m *Metrics) ChallengeIssued() {
	if m == nil {
		return
	}
	m.ChallengesIssued.Inc()
}

func (m *Metrics) Verification(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) ReuseDetected() {
	if m == nil {
		return
	}
	m.RefreshReuseDetected.Inc()
}

func (m *Metrics) Limited(bucket string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(bucket).Inc()
}

func (m *Metrics) Revoked(kind, reason string) {
	if m == nil {
		return
	}
	m.Revocations.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) AccessCheck(result string) {
	if m == nil {
		return
	}
	m.AccessChecks.WithLabelValues(result).Inc()
}
