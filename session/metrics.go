package session

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the manager's prometheus instruments.
type Metrics struct {
	Logins             prometheus.Counter
	Logouts            prometheus.Counter
	RenewalRequests    prometheus.Counter
	CredentialsIssued  prometheus.Counter
	IssuanceFailures   prometheus.Counter
	StaleCallbacks     prometheus.Counter
	RevocationFailures prometheus.Counter
	StorageErrors      prometheus.Counter
	CredentialExpiry   prometheus.Gauge
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the instruments registered with the default
// prometheus registerer. They are created once per process.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics registers a fresh set of instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Logins: factory.NewCounter(prometheus.CounterOpts{
			Name: "go_auth_session_logins_total",
			Help: "Total number of identity assertions accepted",
		}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "go_auth_session_logouts_total",
			Help: "Total number of logouts",
		}),
		RenewalRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "go_auth_session_renewal_requests_total",
			Help: "Total number of access credential requests sent to the provider",
		}),
		CredentialsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "go_auth_session_credentials_issued_total",
			Help: "Total number of access credentials accepted from the provider",
		}),
		IssuanceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "go_auth_session_issuance_failures_total",
			Help: "Total number of failed access credential requests",
		}),
		StaleCallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "go_auth_session_stale_callbacks_total",
			Help: "Total number of provider results discarded because their session had ended",
		}),
		RevocationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "go_auth_session_revocation_failures_total",
			Help: "Total number of failed provider revocations during logout",
		}),
		StorageErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "go_auth_session_storage_errors_total",
			Help: "Total number of durable store reads or writes that failed",
		}),
		CredentialExpiry: factory.NewGauge(prometheus.GaugeOpts{
			Name: "go_auth_session_credential_expiry_seconds",
			Help: "Unix time at which the current access credential expires, 0 when none",
		}),
	}
}
