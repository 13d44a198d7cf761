package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"pharmatrack/m/domain"
)

// SaleLedger appends sale headers and line items. It exposes no update or
// delete path.
type SaleLedger struct {
	q   Querier
	now func() time.Time
}

func NewSaleLedger(q Querier) *SaleLedger {
	return &SaleLedger{q: q, now: utcNow}
}

func (l *SaleLedger) CreateSale(ctx context.Context, clerkID int64, method domain.PaymentMethod, total decimal.Decimal) (int64, error) {
	id, err := insertReturningID(ctx, l.q,
		`INSERT INTO sales (user_id, total_amount, payment_method, created_at) VALUES (?, ?, ?, ?)`,
		clerkID, total, string(method), l.now(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert sale")
	}
	return id, nil
}

func (l *SaleLedger) AddLineItem(ctx context.Context, saleID, productID, quantity int64, unitPrice decimal.Decimal) error {
	_, err := insertReturningID(ctx, l.q,
		`INSERT INTO sale_items (sale_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)`,
		saleID, productID, quantity, unitPrice,
	)
	return errors.Wrapf(err, "insert line item for sale %d", saleID)
}

const saleColumns = `s.id, s.user_id, u.name AS clerk_name, s.total_amount, s.payment_method, s.created_at`

func (l *SaleLedger) GetByID(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := sqlx.GetContext(ctx, l.q, &sale,
		l.q.Rebind(`SELECT `+saleColumns+` FROM sales s JOIN users u ON u.id = s.user_id WHERE s.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrNotFound, "sale %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get sale %d", id)
	}
	return &sale, nil
}

// GetLineItems returns a sale's items in insertion order.
func (l *SaleLedger) GetLineItems(ctx context.Context, saleID int64) ([]domain.SaleLineItem, error) {
	items := []domain.SaleLineItem{}
	err := sqlx.SelectContext(ctx, l.q, &items, l.q.Rebind(`
		SELECT si.id, si.sale_id, si.product_id, p.name AS product_name, si.quantity, si.unit_price
		FROM sale_items si JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = ?
		ORDER BY si.id`), saleID)
	if err != nil {
		return nil, errors.Wrapf(err, "line items for sale %d", saleID)
	}
	return items, nil
}

// List returns sales newest first, restricted to one clerk when the filter says so.
func (l *SaleLedger) List(ctx context.Context, filter domain.SaleFilter, page, limit int) (domain.Page[domain.Sale], error) {
	page, limit = domain.NormalizePage(page, limit)

	where := ""
	var args []any
	if filter.ClerkID != nil {
		where = ` WHERE s.user_id = ?`
		args = append(args, *filter.ClerkID)
	}

	var total int64
	if err := sqlx.GetContext(ctx, l.q, &total, l.q.Rebind(`SELECT COUNT(*) FROM sales s`+where), args...); err != nil {
		return domain.Page[domain.Sale]{}, errors.Wrap(err, "count sales")
	}

	var sales []domain.Sale
	query := l.q.Rebind(`SELECT ` + saleColumns + ` FROM sales s JOIN users u ON u.id = s.user_id` + where +
		` ORDER BY s.created_at DESC, s.id DESC LIMIT ? OFFSET ?`)
	if err := sqlx.SelectContext(ctx, l.q, &sales, query, append(args, limit, offset(page, limit))...); err != nil {
		return domain.Page[domain.Sale]{}, errors.Wrap(err, "list sales")
	}
	return domain.NewPage(sales, total, page, limit), nil
}
