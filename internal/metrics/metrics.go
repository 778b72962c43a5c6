package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	calendarBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardslot",
			Name:      "calendar_builds_total",
			Help:      "Count of month grid requests by cache result.",
		},
		[]string{"cache"},
	)

	wizardTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardslot",
			Name:      "wizard_transitions_total",
			Help:      "Count of wizard step changes by target step.",
		},
		[]string{"step"},
	)

	checkoutOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardslot",
			Name:      "checkout_outcomes_total",
			Help:      "Count of payment step outcomes.",
		},
		[]string{"outcome"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "guardslot",
			Name:      "wizard_sessions",
			Help:      "Number of stored wizard sessions.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardslot",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route.",
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(calendarBuilds, wizardTransitions, checkoutOutcomes, activeSessions, httpRequests)
	})
}

func IncCalendarBuild(cached bool) {
	label := "miss"
	if cached {
		label = "hit"
	}
	calendarBuilds.WithLabelValues(label).Inc()
}

func IncWizardTransition(step string) {
	wizardTransitions.WithLabelValues(step).Inc()
}

func IncCheckout(outcome string) {
	checkoutOutcomes.WithLabelValues(outcome).Inc()
}

func SetSessions(n int) {
	activeSessions.Set(float64(n))
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}
