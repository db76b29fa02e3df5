package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/internal/service"
	"github.com/cloudgames/catalog/pkg/httputil"
	"github.com/cloudgames/catalog/pkg/pagination"
	"github.com/cloudgames/catalog/pkg/validator"
)

// SearchHandler handles search, recommendation and popularity endpoints.
type SearchHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.CatalogService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// RecommendRequest is the JSON body for POST /recommendations.
type RecommendRequest struct {
	UserID   string   `json:"user_id"`
	Genres   []string `json:"genres" validate:"max=20"`
	Tags     []string `json:"tags" validate:"max=20"`
	Platform string   `json:"platform"`
	Size     int      `json:"size" validate:"gte=0,lte=50"`
}

// Search handles GET /api/v1/catalog/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	query := service.SearchParams{
		Query:    strings.TrimSpace(r.URL.Query().Get("q")),
		Platform: r.URL.Query().Get("platform"),
		Genre:    r.URL.Query().Get("genre"),
		SortBy:   r.URL.Query().Get("sort"),
		Page:     params.Page,
		Size:     params.Size,
	}

	if tags := r.URL.Query().Get("tags"); tags != "" {
		query.Tags = strings.Split(tags, ",")
	}

	result, err := h.service.Search(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	page := httputil.NewPagedResponse(result.Products, result.Page, result.Size, result.Total)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: searchResponse{
		PagedResponse: page,
		Approximate:   result.Approximate,
	}})
}

// searchResponse adds the approximate-total marker to a result page.
type searchResponse struct {
	httputil.PagedResponse[domain.Product]
	Approximate bool `json:"approximate,omitempty"`
}

// Recommend handles POST /api/v1/catalog/recommendations
func (h *SearchHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	products, err := h.service.Recommend(r.Context(), service.RecommendParams{
		UserID:   req.UserID,
		Genres:   req.Genres,
		Tags:     req.Tags,
		Platform: req.Platform,
		Size:     req.Size,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"recommendations": products,
	}})
}

// Popular handles GET /api/v1/catalog/metrics/popular
func (h *SearchHandler) Popular(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.Popular(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: metrics})
}

// Reindex handles POST /api/v1/catalog/reindex. The rebuild runs in the
// background; the request context would cancel it mid-flight.
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx := context.Background()
		if _, err := h.service.Reindex(ctx); err != nil {
			h.logger.ErrorContext(ctx, "background reindex failed", "error", err)
		}
	}()

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: map[string]string{"status": "reindex started"}})
}
