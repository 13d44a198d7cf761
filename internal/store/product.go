package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"pharmatrack/m/domain"
)

const productColumns = `p.id, p.name, p.description, p.price, p.quantity, p.reorder_level,
	p.supplier_id, s.name AS supplier_name, p.expiry_date, p.created_at, p.updated_at`

// Suppliers are joined on their primary key, so a product never appears twice.
const productFrom = `FROM products p LEFT JOIN suppliers s ON s.id = p.supplier_id`

type ProductStore struct {
	q   Querier
	now func() time.Time
}

func NewProductStore(q Querier) *ProductStore {
	return &ProductStore{q: q, now: utcNow}
}

func (s *ProductStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	query := s.q.Rebind(`SELECT ` + productColumns + ` ` + productFrom + ` WHERE p.id = ?`)
	if err := sqlx.GetContext(ctx, s.q, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.ProductNotFoundError{ProductID: id}
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return &p, nil
}

// DecrementStock removes amount units in a single conditional statement. The
// predicate is evaluated under the row lock, so concurrent sales cannot
// drive quantity below zero.
func (s *ProductStore) DecrementStock(ctx context.Context, id, amount int64) error {
	res, err := s.q.ExecContext(ctx,
		s.q.Rebind(`UPDATE products SET quantity = quantity - ?, updated_at = ? WHERE id = ? AND quantity >= ?`),
		amount, s.now(), id, amount,
	)
	if err != nil {
		return errors.Wrapf(err, "decrement stock for product %d", id)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 1 {
		return nil
	}

	var available int64
	err = sqlx.GetContext(ctx, s.q, &available, s.q.Rebind(`SELECT quantity FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return errors.Wrapf(err, "read stock for product %d", id)
	}
	return &domain.InsufficientStockError{ProductID: id, Available: available, Requested: amount}
}

func (s *ProductStore) Create(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	id, err := insertReturningID(ctx, s.q,
		`INSERT INTO products (name, description, price, quantity, reorder_level, supplier_id, expiry_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Description, in.Price, in.Quantity, in.ReorderLevel, in.SupplierID, in.ExpiryDate, now, now,
	)
	if err != nil {
		return nil, supplierError(err, "insert product")
	}
	return s.GetByID(ctx, id)
}

func (s *ProductStore) Update(ctx context.Context, id int64, in domain.ProductInput) (*domain.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	_, err := s.q.ExecContext(ctx,
		s.q.Rebind(`UPDATE products SET name = ?, description = ?, price = ?, quantity = ?, reorder_level = ?,
		supplier_id = ?, expiry_date = ?, updated_at = ? WHERE id = ?`),
		in.Name, in.Description, in.Price, in.Quantity, in.ReorderLevel, in.SupplierID, in.ExpiryDate, s.now(), id,
	)
	if err != nil {
		return nil, supplierError(err, "update product "+strconv.FormatInt(id, 10))
	}
	// MySQL reports zero affected rows for an unchanged row, so existence is
	// decided by the read.
	return s.GetByID(ctx, id)
}

func (s *ProductStore) List(ctx context.Context, page, limit int) (domain.Page[domain.Product], error) {
	page, limit = domain.NormalizePage(page, limit)

	var total int64
	if err := sqlx.GetContext(ctx, s.q, &total, `SELECT COUNT(*) FROM products`); err != nil {
		return domain.Page[domain.Product]{}, errors.Wrap(err, "count products")
	}

	var items []domain.Product
	query := s.q.Rebind(`SELECT ` + productColumns + ` ` + productFrom + ` ORDER BY p.id LIMIT ? OFFSET ?`)
	if err := sqlx.SelectContext(ctx, s.q, &items, query, limit, offset(page, limit)); err != nil {
		return domain.Page[domain.Product]{}, errors.Wrap(err, "list products")
	}
	return domain.NewPage(items, total, page, limit), nil
}

// SearchLimit caps the rows a search returns.
const SearchLimit = 50

// Search matches products whose name contains q, case-insensitively, or whose
// id equals q when q is numeric.
func (s *ProductStore) Search(ctx context.Context, q string) ([]domain.Product, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, &domain.ValidationError{Field: "q", Reason: "is required"}
	}
	id, err := strconv.ParseInt(q, 10, 64)
	if err != nil {
		id = 0
	}
	pattern := "%" + escapeLike(strings.ToLower(q)) + "%"

	items := []domain.Product{}
	query := s.q.Rebind(`SELECT ` + productColumns + ` ` + productFrom +
		` WHERE LOWER(p.name) LIKE ? ESCAPE '!' OR p.id = ? ORDER BY p.name, p.id LIMIT ?`)
	if err := sqlx.SelectContext(ctx, s.q, &items, query, pattern, id, SearchLimit); err != nil {
		return nil, errors.Wrap(err, "search products")
	}
	return items, nil
}

// Delete removes a product that no sale line references. Referenced products
// report ErrConflict and stay in place.
func (s *ProductStore) Delete(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, s.q.Rebind(`DELETE FROM products WHERE id = ?`), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Wrapf(domain.ErrConflict, "product %d is referenced by sales", id)
		}
		return errors.Wrapf(err, "delete product %d", id)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return &domain.ProductNotFoundError{ProductID: id}
	}
	return nil
}

// supplierError turns a dangling supplier reference into a validation error.
// products.supplier_id is the only foreign key a product write can break.
func supplierError(err error, msg string) error {
	if isForeignKeyViolation(err) {
		return &domain.ValidationError{Field: "supplierId", Reason: "does not exist"}
	}
	return errors.Wrap(err, msg)
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
