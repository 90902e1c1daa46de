// Package router assembles the HTTP surface of the bridge.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	bridgemiddleware "github.com/voicebridge/whatsapp-voiceflow-bridge/internal/http/middleware"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/internal/whatsapp"
	"github.com/voicebridge/whatsapp-voiceflow-bridge/pkg/logging"
)

// Config carries everything the router mounts.
type Config struct {
	Logger     *logging.Logger
	Webhooks   *whatsapp.WebhookHandler
	Registry   *prometheus.Registry
	AppName    string
	AppVersion string
}

// New builds the chi router with the webhook, health, and metrics routes.
func New(cfg Config) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(bridgemiddleware.RequestLogger(cfg.Logger))

	r.Get("/", healthHandler(cfg.AppName, cfg.AppVersion))

	if cfg.Webhooks != nil {
		r.Get("/webhook", cfg.Webhooks.HandleVerification)
		r.Post("/webhook", cfg.Webhooks.HandleInbound)
	}

	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

func healthHandler(name, version string) http.HandlerFunc {
	if name == "" {
		name = "whatsapp-voiceflow-bridge"
	}
	doc := map[string]any{
		"success": true,
		"info":    name + " " + version,
		"status":  "healthy",
		"error":   nil,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(doc)
	}
}
