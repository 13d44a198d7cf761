// Package sale turns a cart into a committed sale: stock decremented, header
// and line items written, receipt returned, all or nothing.
package sale

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmatrack/m/domain"
	"pharmatrack/m/internal/logger"
	"pharmatrack/m/internal/notify"
	"pharmatrack/m/internal/store"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(store.UnitOfWork) error) error
}

// Ledger is the read side used outside a transaction.
type Ledger interface {
	GetByID(ctx context.Context, id int64) (*domain.Sale, error)
	GetLineItems(ctx context.Context, saleID int64) ([]domain.SaleLineItem, error)
	List(ctx context.Context, filter domain.SaleFilter, page, limit int) (domain.Page[domain.Sale], error)
}

type Recorder interface {
	SaleCommitted(total decimal.Decimal)
	SaleRejected(reason string)
}

type Options struct {
	// TaxRate is applied as given; zero means untaxed.
	TaxRate            decimal.Decimal
	AllowPriceOverride bool
}

type Service struct {
	tx        Transactor
	ledger    Ledger
	publisher notify.Publisher
	recorder  Recorder
	opts      Options
}

func NewService(tx Transactor, ledger Ledger, publisher notify.Publisher, recorder Recorder, opts Options) *Service {
	return &Service{tx: tx, ledger: ledger, publisher: publisher, recorder: recorder, opts: opts}
}

// ProcessSale validates the cart, then in one transaction decrements stock
// for every line and records the sale. Any failure leaves no trace.
func (s *Service) ProcessSale(ctx context.Context, clerkID int64, cart []domain.CartLine, method domain.PaymentMethod) (*domain.Receipt, error) {
	log := logger.FromContext(ctx)

	if err := validate(clerkID, cart, method); err != nil {
		s.reject(err)
		return nil, err
	}

	totals := domain.ComputeTotals(cart, s.opts.TaxRate)
	var receipt domain.Receipt
	err := s.tx.WithinTx(ctx, func(uow store.UnitOfWork) error {
		for _, line := range cart {
			product, err := uow.Products.GetByID(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if !s.opts.AllowPriceOverride && !product.Price.Equal(line.UnitPrice) {
				return &domain.PriceMismatchError{ProductID: line.ProductID, Expected: product.Price, Submitted: line.UnitPrice}
			}
		}
		for _, d := range stockDemand(cart) {
			if err := uow.Products.DecrementStock(ctx, d.productID, d.quantity); err != nil {
				return err
			}
		}

		saleID, err := uow.Sales.CreateSale(ctx, clerkID, method, totals.Total)
		if err != nil {
			return err
		}
		for _, line := range cart {
			if err := uow.Sales.AddLineItem(ctx, saleID, line.ProductID, line.Quantity, line.UnitPrice); err != nil {
				return err
			}
		}

		sale, err := uow.Sales.GetByID(ctx, saleID)
		if err != nil {
			return err
		}
		items, err := uow.Sales.GetLineItems(ctx, saleID)
		if err != nil {
			return err
		}
		receipt = domain.ProjectReceipt(*sale, items, s.opts.TaxRate)
		return nil
	})
	if err != nil {
		err = classify(err)
		s.reject(err)
		log.Warn("sale rejected", zap.Int64("clerk_id", clerkID), zap.Error(err))
		return nil, err
	}

	s.recorder.SaleCommitted(receipt.Total)
	ev := domain.SaleCommitted{
		EventID:       uuid.NewString(),
		SaleID:        receipt.SaleID,
		ClerkID:       clerkID,
		TotalAmount:   receipt.Total,
		PaymentMethod: method,
		ItemCount:     len(receipt.Items),
		CreatedAt:     receipt.CreatedAt,
	}
	if err := s.publisher.PublishSaleCommitted(ctx, ev); err != nil {
		log.Warn("publish sale event", zap.Int64("sale_id", receipt.SaleID), zap.Error(err))
	}
	log.Info("sale committed",
		zap.Int64("sale_id", receipt.SaleID),
		zap.Int64("clerk_id", clerkID),
		zap.String("total", receipt.Total.StringFixed(2)),
	)
	return &receipt, nil
}

// Receipt projects a stored sale. It reads only.
func (s *Service) Receipt(ctx context.Context, saleID int64) (*domain.Receipt, error) {
	sale, err := s.ledger.GetByID(ctx, saleID)
	if err != nil {
		return nil, classify(err)
	}
	items, err := s.ledger.GetLineItems(ctx, saleID)
	if err != nil {
		return nil, classify(err)
	}
	receipt := domain.ProjectReceipt(*sale, items, s.opts.TaxRate)
	return &receipt, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter, page, limit int) (domain.Page[domain.Sale], error) {
	p, err := s.ledger.List(ctx, filter, page, limit)
	if err != nil {
		return domain.Page[domain.Sale]{}, classify(err)
	}
	return p, nil
}

type demand struct {
	productID int64
	quantity  int64
}

// stockDemand sums the cart per product, ordered by product id. One decrement
// per product keeps shortage reports in terms of the whole cart, and the fixed
// order keeps concurrent carts from locking rows in opposite orders.
func stockDemand(cart []domain.CartLine) []demand {
	totals := make(map[int64]int64, len(cart))
	for _, line := range cart {
		totals[line.ProductID] += line.Quantity
	}
	out := make([]demand, 0, len(totals))
	for id, qty := range totals {
		out = append(out, demand{productID: id, quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].productID < out[j].productID })
	return out
}

func validate(clerkID int64, cart []domain.CartLine, method domain.PaymentMethod) error {
	if clerkID <= 0 {
		return &domain.ValidationError{Field: "clerkId", Reason: "must identify a user"}
	}
	if len(cart) == 0 {
		return &domain.ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for _, line := range cart {
		if line.ProductID <= 0 {
			return &domain.ValidationError{Field: "productId", Reason: "must be a positive id"}
		}
		if line.Quantity <= 0 {
			return &domain.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
		}
		if line.UnitPrice.IsNegative() {
			return &domain.ValidationError{Field: "unitPrice", Reason: "must not be negative"}
		}
	}
	if !method.Valid() {
		return &domain.ValidationError{Field: "paymentMethod", Reason: "must be one of cash, card, check, online"}
	}
	return nil
}

// classify passes domain errors through and wraps everything else as a
// retryable persistence failure.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrPriceMismatch),
		errors.Is(err, domain.ErrPersistence):
		return err
	}
	return &domain.PersistenceError{Op: "sale transaction", Err: err}
}

func (s *Service) reject(err error) {
	reason := "persistence"
	switch {
	case errors.Is(err, domain.ErrValidation):
		reason = "validation"
	case errors.Is(err, domain.ErrNotFound):
		reason = "product_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		reason = "insufficient_stock"
	case errors.Is(err, domain.ErrPriceMismatch):
		reason = "price_mismatch"
	}
	s.recorder.SaleRejected(reason)
}
