package exporter

import (
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sigreer/jbod/internal/logger"
	"github.com/sigreer/jbod/internal/version"
)

// DefaultListen matches the port the exporter has always used.
const DefaultListen = "0.0.0.0:9945"

const indexTmpl = `<html>
  <head><title>JBOD Exporter</title></head>
  <body>
    <h1>JBOD Exporter</h1>
    <p><b>version:</b> {{ .Version }} <b>revision:</b> {{ .Revision }} <b>build date:</b> {{ .Date }}</p>
    <p><a href="metrics">Metrics</a></p>
  </body>
</html>
`

// Server exposes a Collector over HTTP.
type Server struct {
	addr     string
	registry *prometheus.Registry
	handler  http.Handler
	log      *zap.Logger
}

// NewServer registers c with a private registry alongside the Go and process
// collectors and builds the routes.
func NewServer(addr string, c prometheus.Collector) *Server {
	if addr == "" {
		addr = DefaultListen
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	inst := newInstrumentation(reg)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	mux.HandleFunc("GET /verbosity", logger.Verbosity)
	mux.HandleFunc("PUT /verbosity", logger.SetVerbosity)

	tmplIndex := template.Must(template.New("index").Parse(indexTmpl))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		if err := tmplIndex.Execute(w, version.Get()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return &Server{
		addr:     addr,
		registry: reg,
		handler:  loggingHandler(inst.middleware(mux)),
		log:      zap.L(),
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(listener)
	}()
	s.log.Info("exporter listening", zap.String("addr", listener.Addr().String()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("http server shutdown failed", zap.Error(err))
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
