package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentCheck  PaymentMethod = "check"
	PaymentOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentCheck, PaymentOnline:
		return true
	}
	return false
}

// Sale is a ledger header. It is written once and never updated.
type Sale struct {
	ID            int64           `db:"id" json:"id"`
	ClerkID       int64           `db:"user_id" json:"clerkId"`
	ClerkName     string          `db:"clerk_name" json:"clerkName"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"totalAmount"`
	PaymentMethod PaymentMethod   `db:"payment_method" json:"paymentMethod"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// SaleLineItem belongs to exactly one Sale. UnitPrice is the price captured
// at sale time and does not follow later product price changes.
type SaleLineItem struct {
	ID          int64           `db:"id" json:"id"`
	SaleID      int64           `db:"sale_id" json:"saleId"`
	ProductID   int64           `db:"product_id" json:"productId"`
	ProductName string          `db:"product_name" json:"productName"`
	Quantity    int64           `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unitPrice"`
}

func (i SaleLineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// CartLine is one product entry of a sale request.
type CartLine struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// SaleFilter narrows sale listings. A nil ClerkID lists every clerk's sales.
type SaleFilter struct {
	ClerkID *int64
}

// SaleCommitted is emitted once a sale transaction has committed.
type SaleCommitted struct {
	EventID       string          `json:"eventId"`
	SaleID        int64           `json:"saleId"`
	ClerkID       int64           `json:"clerkId"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	ItemCount     int             `json:"itemCount"`
	CreatedAt     time.Time       `json:"createdAt"`
}
