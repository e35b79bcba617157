package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/omaldonado/snapfield-backend/api/responses"
	"github.com/omaldonado/snapfield-backend/pkg/config"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
)

// Pinger is the optional remote backend health surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthLive reports process liveness.
func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"status": "ok",
			"env":    cfg.App.Env,
		})
	}
}

// HealthReady reports readiness. The remote store is optional, so an
// unreachable backend degrades the report instead of failing it.
func HealthReady(cfg *config.Config, logg *logger.Logger, remote Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		remoteStatus := "unconfigured"
		if remote != nil {
			remoteStatus = "ok"
			if err := remote.Ping(ctx); err != nil {
				remoteStatus = "degraded"
				if logg != nil {
					logg.Warn(ctx, "health.remote_store_unreachable")
				}
			}
		}

		responses.WriteSuccess(w, map[string]string{
			"status": "ok",
			"env":    cfg.App.Env,
			"remote": remoteStatus,
		})
	}
}
