package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewRouter wires every endpoint onto a gorilla/mux router
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)

	// Health check endpoint
	router.HandleFunc("/health", h.healthCheck).Methods("GET")

	// Metrics endpoints
	router.HandleFunc("/metrics", h.metrics).Methods("GET")
	router.Handle("/metrics/prometheus", promhttp.Handler()).Methods("GET")

	// Telegram webhook
	router.HandleFunc("/webhook/telegram", h.telegramWebhook).Methods("POST")

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/alert", h.submitAlert).Methods("POST")
	apiRouter.HandleFunc("/intent", h.signalIntent).Methods("POST")
	apiRouter.HandleFunc("/register", h.register).Methods("POST")
	apiRouter.HandleFunc("/communities", h.listCommunities).Methods("GET")
	apiRouter.HandleFunc("/community/{name}", h.getCommunity).Methods("GET")
	apiRouter.HandleFunc("/community-by-chat/{chatId}", h.getCommunityByChat).Methods("GET")

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   recorder.status,
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	})
}
