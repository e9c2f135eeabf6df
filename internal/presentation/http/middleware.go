package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/flashmart/reservation/internal/pkg/logging"
	"go.uber.org/zap"
)

const headerRequestID = "X-Request-ID"

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// method rejects mismatched verbs and wraps the handler with the request
// logger and the duration histogram, labelled by the stable route template.
func (h *Handler) method(verb, route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != verb {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		logger := h.logger.With(
			zap.String("route", route),
			zap.String("method", verb),
		)
		if reqID := r.Header.Get(headerRequestID); reqID != "" {
			logger = logger.With(zap.String("request_id", reqID))
		}
		ctx := logging.ContextWithLogger(r.Context(), logger)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		elapsed := time.Since(start)
		h.metrics.ObserveRequest(route, strconv.Itoa(rec.status), elapsed.Seconds())
		logger.Info("http_request",
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
		)
	}
}
