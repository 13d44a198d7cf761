package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           int64           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Quantity     int64           `db:"quantity" json:"quantity"`
	ReorderLevel int64           `db:"reorder_level" json:"reorderLevel"`
	SupplierID   *int64          `db:"supplier_id" json:"supplierId,omitempty"`
	SupplierName *string         `db:"supplier_name" json:"supplierName,omitempty"`
	ExpiryDate   *time.Time      `db:"expiry_date" json:"expiryDate,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// LowStock reports whether the product is at or below its reorder level.
func (p Product) LowStock() bool {
	return p.Quantity <= p.ReorderLevel
}

// ProductInput carries the administrative fields for create and update.
type ProductInput struct {
	Name         string
	Description  string
	Price        decimal.Decimal
	Quantity     int64
	ReorderLevel int64
	SupplierID   *int64
	ExpiryDate   *time.Time
}

// Validate enforces the invariants every product write path must keep.
func (in ProductInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if in.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if in.Quantity < 0 {
		return &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if in.ReorderLevel < 0 {
		return &ValidationError{Field: "reorderLevel", Reason: "must not be negative"}
	}
	if in.SupplierID != nil && *in.SupplierID <= 0 {
		return &ValidationError{Field: "supplierId", Reason: "must be a positive id"}
	}
	return nil
}

// ProductPatch is a partial update. Nil fields keep the stored value.
type ProductPatch struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	Quantity      *int64
	ReorderLevel  *int64
	SupplierID    *int64
	ClearSupplier bool
	ExpiryDate    *time.Time
	ClearExpiry   bool
}

// Apply merges the patch over p. A blank name keeps the current one.
func (p Product) Apply(patch ProductPatch) ProductInput {
	in := ProductInput{
		Name:         p.Name,
		Description:  p.Description,
		Price:        p.Price,
		Quantity:     p.Quantity,
		ReorderLevel: p.ReorderLevel,
		SupplierID:   p.SupplierID,
		ExpiryDate:   p.ExpiryDate,
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) != "" {
		in.Name = *patch.Name
	}
	if patch.Description != nil {
		in.Description = *patch.Description
	}
	if patch.Price != nil {
		in.Price = *patch.Price
	}
	if patch.Quantity != nil {
		in.Quantity = *patch.Quantity
	}
	if patch.ReorderLevel != nil {
		in.ReorderLevel = *patch.ReorderLevel
	}
	switch {
	case patch.ClearSupplier:
		in.SupplierID = nil
	case patch.SupplierID != nil:
		in.SupplierID = patch.SupplierID
	}
	switch {
	case patch.ClearExpiry:
		in.ExpiryDate = nil
	case patch.ExpiryDate != nil:
		in.ExpiryDate = patch.ExpiryDate
	}
	return in
}
