package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the sales tax applied on top of the subtotal.
var DefaultTaxRate = decimal.RequireFromString("0.08")

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

type pricedLine interface {
	LineTotal() decimal.Decimal
}

// ComputeTotals sums the line totals and applies taxRate. Tax is rounded to cents.
func ComputeTotals[T pricedLine](lines []T, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal())
	}
	tax := subtotal.Mul(taxRate).Round(2)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}

type ReceiptLine struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"total"`
}

type Receipt struct {
	SaleID        int64           `json:"id"`
	ClerkID       int64           `json:"clerkId"`
	ClerkName     string          `json:"clerkName"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	CreatedAt     time.Time       `json:"createdAt"`
	Items         []ReceiptLine   `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
}

// ProjectReceipt shapes a persisted sale for display. It has no side effects.
func ProjectReceipt(sale Sale, items []SaleLineItem, taxRate decimal.Decimal) Receipt {
	lines := make([]ReceiptLine, len(items))
	for i, item := range items {
		lines[i] = ReceiptLine{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		}
	}
	totals := ComputeTotals(items, taxRate)
	return Receipt{
		SaleID:        sale.ID,
		ClerkID:       sale.ClerkID,
		ClerkName:     sale.ClerkName,
		PaymentMethod: sale.PaymentMethod,
		CreatedAt:     sale.CreatedAt,
		Items:         lines,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Total:         totals.Total,
	}
}
