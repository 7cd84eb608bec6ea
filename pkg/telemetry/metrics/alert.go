package metrics

import "github.com/prometheus/client_golang/prometheus"

// AlertMetrics tracks alert evaluation and notification delivery.
//
// Metrics:
//   - meter_alerts_fired_total
//   - meter_alerts_suppressed_total: reason is "cooldown" or "disabled"
//   - meter_notifications_total: delivery attempts by channel and result
type AlertMetrics struct {
	fired         *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewAlertMetrics creates and registers alert metrics.
func NewAlertMetrics(namespace string, registry *prometheus.Registry) *AlertMetrics {
	am := &AlertMetrics{
		fired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_fired_total",
				Help:      "Alerts fired",
			},
			[]string{"alert", "severity"},
		),
		suppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_suppressed_total",
				Help:      "Alerts whose conditions held but did not fire",
			},
			[]string{"alert", "reason"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification delivery attempts",
			},
			[]string{"channel", "result"},
		),
	}

	registry.MustRegister(am.fired, am.suppressed, am.notifications)
	return am
}
