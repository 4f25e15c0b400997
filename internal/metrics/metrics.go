// Package metrics exposes Prometheus counters for evaluation passes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshsymonds/mailrules/internal/rules"
)

const namespace = "mailrules"

// Metrics records pass, match and action counts.
type Metrics struct {
	Passes       *prometheus.CounterVec
	PassDuration prometheus.Histogram
	RuleMatches  *prometheus.CounterVec
	Actions      *prometheus.CounterVec
	gatherer     prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Evaluation passes by outcome.",
		}, []string{"outcome"}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of evaluation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RuleMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_matches_total",
			Help:      "Messages matched by an enabled rule.",
		}, []string{"rule"}),
		Actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Rule actions performed, dry runs included.",
		}, []string{"action", "dry_run"}),
		gatherer: reg,
	}
}

// PassCompleted counts a finished pass.
func (m *Metrics) PassCompleted(outcome string, elapsed time.Duration) {
	m.Passes.WithLabelValues(outcome).Inc()
	m.PassDuration.Observe(elapsed.Seconds())
}

// RuleMatched counts one match of rule.
func (m *Metrics) RuleMatched(rule rules.Rule) {
	m.RuleMatches.WithLabelValues(strconv.Itoa(rule.ID)).Inc()
}

// ActionApplied counts one performed action.
func (m *Metrics) ActionApplied(action rules.Action, dryRun bool) {
	m.Actions.WithLabelValues(string(action), strconv.FormatBool(dryRun)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
