package exporter

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nrednav/cuid2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type traceIDKey struct{}

var generate, _ = cuid2.Init(cuid2.WithLength(24))

type statusResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusResponseWriter) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusResponseWriter) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

// TraceID returns the request trace id set by the logging handler.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// loggingHandler tags each request with a trace id and logs it when done.
func loggingHandler(h http.Handler) http.Handler {
	log := zap.L()
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := generate()
		req = req.WithContext(context.WithValue(req.Context(), traceIDKey{}, id))
		srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func(start time.Time) {
			log.Info("finished handling",
				zap.String("sourceAddr", req.RemoteAddr),
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
				zap.Int("status", srw.status),
				zap.Int("bytes", srw.size),
				zap.Float64("elapsed_time_sec", time.Since(start).Seconds()),
				zap.String("trace_id", id),
			)
		}(time.Now())

		h.ServeHTTP(srw, req)
	})
}

var knownRoutes = map[string]bool{"/": true, "/metrics": true, "/verbosity": true}

// instrumentation counts and times requests per route.
type instrumentation struct {
	reqTotal        *prometheus.CounterVec
	reqDurationSecs *prometheus.HistogramVec
}

func newInstrumentation(reg prometheus.Registerer) *instrumentation {
	labels := []string{"code", "method", "route"}
	i := &instrumentation{
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jbod",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "The total number of requests received.",
		}, labels),
		reqDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jbod",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of the request duration.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, labels),
	}
	reg.MustRegister(i.reqTotal, i.reqDurationSecs)
	return i
}

func (i *instrumentation) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)

		route := r.URL.Path
		if !knownRoutes[route] {
			route = "other"
		}
		vals := []string{strconv.Itoa(srw.status), r.Method, route}
		i.reqTotal.WithLabelValues(vals...).Inc()
		i.reqDurationSecs.WithLabelValues(vals...).Observe(time.Since(start).Seconds())
	})
}
