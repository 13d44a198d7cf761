package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"pharmatrack/m/domain"
	"pharmatrack/m/internal/logger"
)

// writeError maps domain failures to status codes. Only unclassified errors
// become a 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr  *domain.ValidationError
		nf    *domain.ProductNotFoundError
		stock *domain.InsufficientStockError
		price *domain.PriceMismatchError
	)
	switch {
	case errors.As(err, &verr):
		respondProblem(w, http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": verr.Field})
	case errors.As(err, &nf):
		respondProblem(w, http.StatusNotFound, "product_not_found", err.Error(), map[string]any{"productId": nf.ProductID})
	case errors.As(err, &stock):
		respondProblem(w, http.StatusConflict, "insufficient_stock", err.Error(), map[string]any{
			"productId": stock.ProductID,
			"available": stock.Available,
			"requested": stock.Requested,
		})
	case errors.As(err, &price):
		respondProblem(w, http.StatusUnprocessableEntity, "price_mismatch", err.Error(), map[string]any{
			"productId": price.ProductID,
			"expected":  price.Expected.StringFixed(2),
			"submitted": price.Submitted.StringFixed(2),
		})
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrConflict):
		respondError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrPersistence):
		logger.FromContext(r.Context()).Error("persistence failure", zap.Error(err))
		respondProblem(w, http.StatusServiceUnavailable, "persistence_failure", "the operation was not applied, retry later", map[string]any{"retryable": true})
	default:
		logger.FromContext(r.Context()).Error("unhandled error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
