package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apptime_sessions_recorded_total",
			Help: "Total completed sessions written to storage",
		},
		[]string{"app"},
	)

	SecondsTracked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apptime_tracked_seconds_total",
			Help: "Total seconds of completed sessions written to storage",
		},
		[]string{"app"},
	)

	OpenSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "apptime_open_sessions",
			Help: "Number of apps currently observed running",
		},
	)

	ClockAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apptime_clock_anomalies_total",
			Help: "Sessions whose end preceded their start and were clamped to zero",
		},
		[]string{"app"},
	)

	// Poll loop metrics
	PresenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apptime_presence_failures_total",
			Help: "Presence queries that failed and were treated as not running",
		},
		[]string{"app"},
	)

	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apptime_storage_errors_total",
			Help: "Storage operations that returned an error",
		},
		[]string{"op"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apptime_tick_duration_seconds",
			Help:    "Time spent checking every tracked app in one tick",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsRecorded,
		SecondsTracked,
		OpenSessions,
		ClockAnomalies,
		PresenceFailures,
		StorageErrors,
		TickDuration,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start binds the listener and serves in the background. Bind errors are
// returned to the caller.
func (s *Server) Start() error {
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.server.Addr)
		if err != nil {
			return err
		}
	} else {
		s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting metrics server")
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
