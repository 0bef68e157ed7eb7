package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics shared across subsystems. Package-local
// metrics (latency histograms close to the code they time) register
// themselves via promauto in their own packages.
type Metrics struct {
	Resolutions    *prometheus.CounterVec
	SessionWrites  prometheus.Counter
	DirectorySyncs *prometheus.CounterVec
	Challenges     *prometheus.CounterVec
	LoginsTotal    *prometheus.CounterVec
}

// New creates and registers all shared Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_resolutions_total",
			Help: "Session resolutions by terminal outcome",
		}, []string{"outcome"}),
		SessionWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_session_writes_total",
			Help: "Session store writes caused by sliding-expiry extension",
		}),
		DirectorySyncs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_directory_syncs_total",
			Help: "Directory sync attempts by result",
		}, []string{"result"}),
		Challenges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_challenges_total",
			Help: "Authorization challenges by dispatch kind",
		}, []string{"kind"}),
		LoginsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_logins_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
	}
}
