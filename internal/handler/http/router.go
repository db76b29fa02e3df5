// Package http exposes the catalog REST API.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudgames/catalog/internal/service"
	"github.com/cloudgames/catalog/pkg/health"
	"github.com/cloudgames/catalog/pkg/middleware"
)

// NewRouter creates a chi router with all catalog routes registered.
func NewRouter(
	catalogService *service.CatalogService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("catalog"))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	catalogHandler := NewCatalogHandler(catalogService, logger)
	searchHandler := NewSearchHandler(catalogService, logger)

	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Get("/products", catalogHandler.ListProducts)
		r.Post("/products", catalogHandler.CreateProduct)
		r.Get("/products/list/{ids}", catalogHandler.GetProductsByIDs)
		r.Get("/products/{id}", catalogHandler.GetProduct)
		r.Put("/products/{id}", catalogHandler.UpdateProduct)

		r.Get("/search", searchHandler.Search)
		r.Post("/recommendations", searchHandler.Recommend)
		r.Get("/metrics/popular", searchHandler.Popular)
		r.Post("/reindex", searchHandler.Reindex)
	})

	return r
}
