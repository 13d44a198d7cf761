package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"pharmatrack/m/domain"
)

type productRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"`
	ReorderLevel int64           `json:"reorderLevel"`
	SupplierID   *int64          `json:"supplierId"`
	ExpiryDate   string          `json:"expiryDate"`
}

func (req productRequest) input() (domain.ProductInput, error) {
	in := domain.ProductInput{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		Quantity:     req.Quantity,
		ReorderLevel: req.ReorderLevel,
		SupplierID:   req.SupplierID,
	}
	if expiry := nullIfEmpty(req.ExpiryDate); expiry != nil {
		t, err := time.Parse("2006-01-02", *expiry)
		if err != nil {
			return in, &domain.ValidationError{Field: "expiryDate", Reason: "must be in YYYY-MM-DD format"}
		}
		in.ExpiryDate = &t
	}
	return in, nil
}

type productResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Price        string  `json:"price"`
	Quantity     int64   `json:"quantity"`
	ReorderLevel int64   `json:"reorderLevel"`
	LowStock     bool    `json:"lowStock"`
	SupplierID   *int64  `json:"supplierId,omitempty"`
	SupplierName *string `json:"supplierName,omitempty"`
	ExpiryDate   *string `json:"expiryDate,omitempty"`
	UpdatedAt    string  `json:"updatedAt"`
}

func toProductResponse(p domain.Product) productResponse {
	resp := productResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Price:        p.Price.StringFixed(2),
		Quantity:     p.Quantity,
		ReorderLevel: p.ReorderLevel,
		LowStock:     p.LowStock(),
		SupplierID:   p.SupplierID,
		SupplierName: p.SupplierName,
		UpdatedAt:    p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.ExpiryDate != nil {
		d := p.ExpiryDate.Format("2006-01-02")
		resp.ExpiryDate = &d
	}
	return resp
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleClerk) {
		return
	}
	page, limit := pageParams(r)
	result, err := h.Products.List(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]productResponse, len(result.Items))
	for i, p := range result.Items {
		items[i] = toProductResponse(p)
	}
	respondJSON(w, http.StatusOK, domain.NewPage(items, result.Total, result.Page, result.Limit))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleClerk) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	product, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(*product))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := req.input()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.Products.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toProductResponse(*product))
}

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleClerk) {
		return
	}
	products, err := h.Products.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]productResponse, len(products))
	for i, p := range products {
		items[i] = toProductResponse(p)
	}
	respondJSON(w, http.StatusOK, items)
}

// productPatchRequest is the PUT body. Omitted fields keep their stored
// value; supplierId 0 and an empty expiryDate clear the field.
type productPatchRequest struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Price        *decimal.Decimal `json:"price"`
	Quantity     *int64           `json:"quantity"`
	ReorderLevel *int64           `json:"reorderLevel"`
	SupplierID   *int64           `json:"supplierId"`
	ExpiryDate   *string          `json:"expiryDate"`
}

func (req productPatchRequest) patch() (domain.ProductPatch, error) {
	patch := domain.ProductPatch{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		Quantity:     req.Quantity,
		ReorderLevel: req.ReorderLevel,
	}
	if req.SupplierID != nil {
		if *req.SupplierID == 0 {
			patch.ClearSupplier = true
		} else {
			patch.SupplierID = req.SupplierID
		}
	}
	if req.ExpiryDate != nil {
		expiry := nullIfEmpty(*req.ExpiryDate)
		if expiry == nil {
			patch.ClearExpiry = true
		} else {
			t, err := time.Parse("2006-01-02", *expiry)
			if err != nil {
				return patch, &domain.ValidationError{Field: "expiryDate", Reason: "must be in YYYY-MM-DD format"}
			}
			patch.ExpiryDate = &t
		}
	}
	return patch, nil
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req productPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	current, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.Products.Update(r.Context(), id, current.Apply(patch))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(*product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	if err := h.Products.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			respondError(w, http.StatusConflict, "product has recorded sales and cannot be deleted")
			return
		}
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
