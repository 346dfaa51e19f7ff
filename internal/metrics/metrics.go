package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the workflow core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Validations       *prometheus.CounterVec
	Archives          *prometheus.CounterVec
	SweepItems        *prometheus.CounterVec
	PermissionDenials *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailflow_validations_total",
			Help: "Validate operations by outcome",
		}, []string{"outcome"}),
		Archives: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailflow_archives_total",
			Help: "Archive operations by outcome",
		}, []string{"outcome"}),
		SweepItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailflow_archive_sweep_items_total",
			Help: "Mails processed by the archival sweep by outcome",
		}, []string{"outcome"}),
		PermissionDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailflow_permission_denials_total",
			Help: "Permission guard denials by permission code",
		}, []string{"permission"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mailflow_notifications_total",
			Help: "Status change notifications by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveValidation(outcome string) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveArchive(outcome string) {
	if m == nil {
		return
	}
	m.Archives.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweepItem(outcome string) {
	if m == nil {
		return
	}
	m.SweepItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePermissionDenied(permission string) {
	if m == nil {
		return
	}
	m.PermissionDenials.WithLabelValues(permission).Inc()
}

func (m *Metrics) ObserveNotification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}
