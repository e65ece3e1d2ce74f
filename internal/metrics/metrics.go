package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mwiesel/vodamon/internal/contract"
)

var (
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodamon_login_attempts_total",
			Help: "Login attempts against the provider API",
		},
		[]string{"outcome"},
	)

	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodamon_usage_fetches_total",
			Help: "Usage fetch attempts by result classification",
		},
		[]string{"result"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vodamon_refresh_cycle_duration_seconds",
			Help:    "Duration of one contract refresh cycle",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15},
		},
	)

	CycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodamon_refresh_cycle_errors_total",
			Help: "Refresh cycles that ended in a classified failure",
		},
		[]string{"kind"},
	)

	ReadingValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vodamon_reading_value",
			Help: "Latest value of a published reading",
		},
		[]string{"contract", "key", "unit"},
	)

	ReadingSupported = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vodamon_reading_supported",
			Help: "Whether a reading currently carries a usable value",
		},
		[]string{"contract", "key"},
	)
)

func init() {
	prometheus.MustRegister(
		LoginAttempts,
		FetchesTotal,
		CycleDuration,
		CycleErrors,
		ReadingValue,
		ReadingSupported,
	)
}

// PublishReadings exports one refresh cycle's readings as gauges.
// Unsupported readings keep their supported gauge at 0 and drop the value
// series so stale numbers never linger.
func PublishReadings(contractID string, readings map[contract.Key]contract.Reading) {
	for key, r := range readings {
		if r.Supported {
			ReadingValue.WithLabelValues(contractID, string(key), r.Unit).Set(r.Value)
			ReadingSupported.WithLabelValues(contractID, string(key)).Set(1)
		} else {
			ReadingValue.DeleteLabelValues(contractID, string(key), r.Unit)
			ReadingSupported.WithLabelValues(contractID, string(key)).Set(0)
		}
	}
}

// StartServer exposes /metrics on addr. Returns the listener so callers
// can close it on shutdown.
func StartServer(addr string, logger zerolog.Logger) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.Serve(listener, mux); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	return listener, nil
}
