package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/order-dashboard/internal/circuitbreaker"
	"github.com/jogardn/order-dashboard/internal/websocket"
	"github.com/sirupsen/logrus"
)

func newRouter(hub *websocket.Hub, breakers *circuitbreaker.Manager, logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck(hub)).Methods("GET", "OPTIONS")
	router.HandleFunc("/health/breakers", breakerMetrics(breakers)).Methods("GET", "OPTIONS")
	router.HandleFunc("/health/breakers/reset", resetBreakers(breakers, logger)).Methods("POST", "OPTIONS")
	router.HandleFunc("/ws", hub.HandleWebSocket)

	router.Use(corsMiddleware())
	router.Use(loggingMiddleware(logger))
	return router
}

func healthCheck(hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "order-dashboard",
			"sessions": hub.SessionCount(),
		})
	}
}

func breakerMetrics(breakers *circuitbreaker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, breakers.AllMetrics())
	}
}

func resetBreakers(breakers *circuitbreaker.Manager, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		breakers.ResetAll()
		logger.WithField("remote", r.RemoteAddr).Warn("Circuit breakers reset by request")
		respondWithJSON(w, http.StatusOK, breakers.AllMetrics())
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			}).Debug("Request received")

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).Milliseconds(),
			}).Info("Request completed")
		})
	}
}

func corsMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
