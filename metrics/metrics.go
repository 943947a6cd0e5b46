package metrics

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/status-im/solwire-go/common"
)

// Server exposes the collectors over HTTP.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer serves /metrics for the given gatherer (the default
// one when nil) and a /health probe on the given port.
func NewMetricsServer(port int, g prom.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler(logger))
	mux.Handle("/metrics", Handler(g))
	p := Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		},
		logger: logger,
	}
	return &p
}

func healthHandler(logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("OK"))
		if err != nil {
			logger.Error("health handler error", zap.Error(err))
		}
	})
}

// Handler returns the promhttp handler for g.
func Handler(g prom.Gatherer) http.Handler {
	if g == nil {
		g = prom.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Listen starts the HTTP server in the background.
func (p *Server) Listen() {
	defer common.LogOnPanic(p.logger)
	p.logger.Info("metrics server stopped", zap.Error(p.server.ListenAndServe()))
}

// Shutdown stops the HTTP server.
func (p *Server) Shutdown() error {
	return p.server.Close()
}
