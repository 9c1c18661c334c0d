package handlers

import (
	"net/http"

	"github.com/uptrace/bunrouter"

	"github.com/Brownie44l1/waste-api/internal/logging"
)

const (
	EndPointHealth       = "/health"
	EndPointPredict      = "/predict"
	EndPointPredictImage = "/predict/image"
)

// NewRouter registers the service routes behind request logging and CORS.
func NewRouter(h *Handler, corsOrigin string) *bunrouter.CompatRouter {
	router := bunrouter.New(
		bunrouter.Use(logging.Middleware),
		bunrouter.Use(corsMiddleware(corsOrigin)),
	).Compat()

	router.GET(EndPointHealth, h.Health)
	router.POST(EndPointPredict, h.Predict)
	router.POST(EndPointPredictImage, h.PredictFromImage)

	// Preflight requests are answered by the CORS middleware.
	for _, path := range []string{EndPointHealth, EndPointPredict, EndPointPredictImage} {
		router.OPTIONS(path, func(w http.ResponseWriter, r *http.Request) {})
	}

	return router
}

func corsMiddleware(origin string) bunrouter.MiddlewareFunc {
	return func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
		return func(w http.ResponseWriter, req bunrouter.Request) error {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if req.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return nil
			}

			return next(w, req)
		}
	}
}
