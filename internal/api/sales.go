package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"pharmatrack/m/domain"
)

type saleItemRequest struct {
	ProductID int64           `json:"productId"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type saleRequest struct {
	Items         []saleItemRequest `json:"items"`
	PaymentMethod string            `json:"paymentMethod"`
}

type receiptLineResponse struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"price"`
	Total     string `json:"total"`
}

type receiptResponse struct {
	ID            int64                 `json:"id"`
	ClerkID       int64                 `json:"clerkId"`
	ClerkName     string                `json:"clerkName"`
	PaymentMethod domain.PaymentMethod  `json:"paymentMethod"`
	CreatedAt     string                `json:"createdAt"`
	Items         []receiptLineResponse `json:"items"`
	Subtotal      string                `json:"subtotal"`
	Tax           string                `json:"tax"`
	Total         string                `json:"total"`
}

func toReceiptResponse(rc domain.Receipt) receiptResponse {
	items := make([]receiptLineResponse, len(rc.Items))
	for i, line := range rc.Items {
		items[i] = receiptLineResponse{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Total:     line.LineTotal.StringFixed(2),
		}
	}
	return receiptResponse{
		ID:            rc.SaleID,
		ClerkID:       rc.ClerkID,
		ClerkName:     rc.ClerkName,
		PaymentMethod: rc.PaymentMethod,
		CreatedAt:     rc.CreatedAt.UTC().Format(time.RFC3339),
		Items:         items,
		Subtotal:      rc.Subtotal.StringFixed(2),
		Tax:           rc.Tax.StringFixed(2),
		Total:         rc.Total.StringFixed(2),
	}
}

type saleResponse struct {
	ID            int64                `json:"id"`
	ClerkID       int64                `json:"clerkId"`
	ClerkName     string               `json:"clerkName"`
	TotalAmount   string               `json:"totalAmount"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	CreatedAt     string               `json:"createdAt"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleClerk) {
		return
	}
	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cart := make([]domain.CartLine, len(req.Items))
	for i, item := range req.Items {
		cart[i] = domain.CartLine{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
	}
	clerkID, _ := actor(r)
	receipt, err := h.Sales.ProcessSale(r.Context(), clerkID, cart, domain.PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toReceiptResponse(*receipt))
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleClerk) {
		return
	}
	userID, role := actor(r)
	var filter domain.SaleFilter
	if role == domain.RoleClerk {
		filter.ClerkID = &userID
	}
	page, limit := pageParams(r)
	result, err := h.Sales.ListSales(r.Context(), filter, page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]saleResponse, len(result.Items))
	for i, s := range result.Items {
		items[i] = saleResponse{
			ID:            s.ID,
			ClerkID:       s.ClerkID,
			ClerkName:     s.ClerkName,
			TotalAmount:   s.TotalAmount.StringFixed(2),
			PaymentMethod: s.PaymentMethod,
			CreatedAt:     s.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	respondJSON(w, http.StatusOK, domain.NewPage(items, result.Total, result.Page, result.Limit))
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin, domain.RoleClerk) {
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	receipt, err := h.Sales.Receipt(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	userID, role := actor(r)
	if role == domain.RoleClerk && receipt.ClerkID != userID {
		respondError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	respondJSON(w, http.StatusOK, toReceiptResponse(*receipt))
}
