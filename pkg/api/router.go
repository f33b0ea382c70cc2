package api

import (
	"net/http"
	"time"

	"github.com/Mindburn-Labs/leadgrid/pkg/observability"
)

// RouterConfig collects the handlers and policies the router mounts.
type RouterConfig struct {
	Webhook *WebhookHandler
	Mobile  *MobileHandler
	Admin   *AdminHandler

	JWT      *JWTValidator
	AdminKey string

	// Obs records RED metrics for every request when set.
	Obs *observability.Provider

	// RateLimitRPS/Burst tune the per-IP limiter; non-positive values use
	// 50 rps with a burst of 100.
	RateLimitRPS   int
	RateLimitBurst int

	// IdempotencyTTL is how long cached webhook responses replay; zero uses
	// 24 hours.
	IdempotencyTTL time.Duration
}

// NewRouter assembles the full HTTP surface:
//
//	POST /api/webhooks/{portal_code}            portal ingestion
//	GET  /api/leads                             agency assignments
//	PUT  /api/leads/{id}/accept                 agency accepts
//	PUT  /api/leads/{id}/reject                 agency rejects (re-routes)
//	PUT  /api/leads/{id}/status                 working-status report
//	POST /api/admin/leads/{id}/distribute       manual distribution
//	POST /api/admin/leads/batch-distribute      sweep undistributed leads
//	PUT  /api/admin/leads/{id}/reassign         targeted reassignment
//	PUT  /api/admin/leads/{id}/archive          archival
//	GET  /api/admin/portals/{code}/schema       effective mapping
//	GET  /api/admin/audit                       audit trail
//	GET  /health                                liveness
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	idem := IdempotencyMiddleware(NewIdempotencyStore(cfg.IdempotencyTTL))
	mux.Handle("POST /api/webhooks/{portal_code}", idem(cfg.Webhook))

	agency := AgencyAuth(cfg.JWT)
	mux.Handle("GET /api/leads", agency(http.HandlerFunc(cfg.Mobile.ListLeads)))
	mux.Handle("PUT /api/leads/{id}/accept", agency(idem(http.HandlerFunc(cfg.Mobile.Accept))))
	mux.Handle("PUT /api/leads/{id}/reject", agency(idem(http.HandlerFunc(cfg.Mobile.Reject))))
	mux.Handle("PUT /api/leads/{id}/status", agency(idem(http.HandlerFunc(cfg.Mobile.UpdateStatus))))

	admin := AdminAuth(cfg.AdminKey)
	mux.Handle("POST /api/admin/leads/batch-distribute", admin(http.HandlerFunc(cfg.Admin.BatchDistribute)))
	mux.Handle("POST /api/admin/leads/{id}/distribute", admin(idem(http.HandlerFunc(cfg.Admin.Distribute))))
	mux.Handle("PUT /api/admin/leads/{id}/reassign", admin(idem(http.HandlerFunc(cfg.Admin.Reassign))))
	mux.Handle("PUT /api/admin/leads/{id}/archive", admin(idem(http.HandlerFunc(cfg.Admin.Archive))))
	mux.Handle("GET /api/admin/portals/{code}/schema", admin(http.HandlerFunc(cfg.Admin.Schema)))
	mux.Handle("GET /api/admin/audit", admin(http.HandlerFunc(cfg.Admin.Audit)))

	var handler http.Handler = mux
	if cfg.Obs != nil {
		handler = cfg.Obs.Middleware(handler)
	}
	limiter := NewGlobalRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	return RequestID(limiter.Middleware(handler))
}
