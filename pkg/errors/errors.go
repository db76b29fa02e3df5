package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the catalog service. Engine and store failures are
// mapped onto these so callers can branch with errors.Is without knowing
// which backend produced the failure.
var (
	ErrNotFound                  = errors.New("resource not found")
	ErrInvalidInput              = errors.New("invalid input")
	ErrInternal                  = errors.New("internal error")
	ErrSearchUnavailable         = errors.New("search unavailable")
	ErrRecommendationUnavailable = errors.New("recommendation unavailable")
	ErrMetricsUnavailable        = errors.New("metrics unavailable")
	ErrReindexFailed             = errors.New("reindex failed")
	ErrStockCommitFailed         = errors.New("stock commit failed")
	ErrOrderAlreadyProcessed     = errors.New("order already processed")
)

// AppError is a structured application error with an HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// SearchUnavailable wraps an index query failure as a 503 error.
func SearchUnavailable(err error) *AppError {
	return &AppError{
		Code:    "SEARCH_UNAVAILABLE",
		Message: "search is temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrSearchUnavailable, err),
	}
}

// RecommendationUnavailable wraps a recommendation query failure as a 503 error.
func RecommendationUnavailable(err error) *AppError {
	return &AppError{
		Code:    "RECOMMENDATION_UNAVAILABLE",
		Message: "recommendations are temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrRecommendationUnavailable, err),
	}
}

// MetricsUnavailable wraps an aggregation query failure as a 503 error.
func MetricsUnavailable(err error) *AppError {
	return &AppError{
		Code:    "METRICS_UNAVAILABLE",
		Message: "popularity metrics are temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrMetricsUnavailable, err),
	}
}

// ReindexFailed wraps the first failure encountered during a bulk reindex.
func ReindexFailed(err error) *AppError {
	return &AppError{
		Code:    "REINDEX_FAILED",
		Message: "bulk reindex did not complete",
		Status:  http.StatusInternalServerError,
		Err:     fmt.Errorf("%w: %w", ErrReindexFailed, err),
	}
}

// StockCommitFailed signals that a stock decrement could not be committed.
// This is a hard consistency error, never a normal business outcome.
func StockCommitFailed(orderID string, err error) *AppError {
	appErr := &AppError{
		Code:    "STOCK_COMMIT_FAILED",
		Message: fmt.Sprintf("stock decrement for order %s was not committed", orderID),
		Status:  http.StatusInternalServerError,
	}
	if err != nil {
		appErr.Err = fmt.Errorf("%w: %w", ErrStockCommitFailed, err)
	} else {
		appErr.Err = ErrStockCommitFailed
	}
	return appErr
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrSearchUnavailable),
		errors.Is(err, ErrRecommendationUnavailable),
		errors.Is(err, ErrMetricsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
