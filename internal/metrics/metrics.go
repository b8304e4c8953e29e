// Package metrics registers the daemon's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "plant_waterer"

// Driver operations used as the op label.
const (
	OpEnergize   = "energize"
	OpDeenergize = "deenergize"
)

// Attribute write results used as the result label.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

// AttributeUnknown is the attribute label for writes to names outside the table.
const AttributeUnknown = "unknown"

var (
	pumpWatering = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pump_watering",
		Help:      "1 while the pump is energized",
	})

	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Watering cycles started",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Planned pump run time per watering cycle",
		Buckets:   []float64{1, 2, 4, 8, 15, 30, 60, 120},
	})

	driverErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "driver_errors_total",
		Help:      "Pump driver failures by operation",
	}, []string{"op"})

	attributeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attribute_writes_total",
		Help:      "Attribute writes by attribute and result",
	}, []string{"attribute", "result"})

	mode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mode",
		Help:      "Current operating mode (0=off, 1=manual, 2=scheduled)",
	})
)

// SetWatering records the pump state.
func SetWatering(on bool) {
	if on {
		pumpWatering.Set(1)
	} else {
		pumpWatering.Set(0)
	}
}

// ObserveCycle records a started watering cycle and its planned duration.
func ObserveCycle(d time.Duration) {
	cyclesTotal.Inc()
	cycleDuration.Observe(d.Seconds())
}

// DriverError records a failed driver call.
func DriverError(op string) {
	driverErrors.WithLabelValues(op).Inc()
}

// AttributeWrite records an attribute write outcome.
func AttributeWrite(attribute, result string) {
	attributeWrites.WithLabelValues(attribute, result).Inc()
}

// SetMode records the operating mode.
func SetMode(m uint8) {
	mode.Set(float64(m))
}

// Handler returns the Prometheus scrape handler for promauto-registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
