package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cinescope/review-service/internal/service"
	"github.com/cinescope/review-service/pkg/health"
	"github.com/cinescope/review-service/pkg/middleware"
)

// RouterConfig carries transport-level settings for the router.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	RateLimitRPS   int
	RateLimitBurst int
}

// NewRouter creates a chi router with all review service routes registered.
func NewRouter(
	reviewService *service.ReviewService,
	healthHandler *health.Handler,
	validate middleware.TokenValidator,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("review"))
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
	}

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Review API endpoints
	reviewHandler := NewReviewHandler(reviewService, logger)

	r.Route("/api/v1/reviews", func(r chi.Router) {
		// Public tree read; a logged-in viewer gets user_action filled in.
		r.With(middleware.OptionalAuth(validate)).
			Get("/target/{targetId}", reviewHandler.GetTargetReviews)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(validate))

			r.Post("/", reviewHandler.CreateReview)
			r.Get("/my-reviews", reviewHandler.ListMyReviews)
			r.Put("/{id}", reviewHandler.UpdateReview)
			r.Delete("/{id}", reviewHandler.DeleteReview)
			r.Post("/{id}/replies", reviewHandler.Reply)
			r.Post("/{id}/reactions", reviewHandler.React)
		})
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(validate))
		r.Use(middleware.RequireRole("admin"))

		r.Delete("/users/{userId}/reactions", reviewHandler.PurgeUserReactions)
	})

	return r
}
