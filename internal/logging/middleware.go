package logging

import (
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/uptrace/bunrouter"
)

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-ID"

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Middleware logs every request with its id, status and duration.
func Middleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		start := time.Now()

		requestID := req.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		wrapped := wrapResponseWriter(w)
		err := next(wrapped, req)

		status := wrapped.status
		if status == 0 {
			status = http.StatusOK
		}

		entry := log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     req.Method,
			"path":       req.URL.Path,
			"route":      req.Route(),
			"status":     status,
			"bytes_in":   req.ContentLength,
			"bytes_out":  wrapped.bytes,
			"remote":     req.RemoteAddr,
			"duration":   time.Since(start).String(),
		})
		if err != nil {
			entry.WithError(err).Error("request failed")
			return err
		}
		entry.Info("request")
		return nil
	}
}
