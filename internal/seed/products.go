package seed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmatrack/m/domain"
	"pharmatrack/m/internal/store"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(store.UnitOfWork) error) error
}

var requiredColumns = []string{"name", "price", "quantity"}

// LoadProductsFile seeds the catalog from a CSV file.
func LoadProductsFile(ctx context.Context, tx Transactor, path string, log *zap.Logger) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open product catalog %s: %w", path, err)
	}
	defer file.Close()
	return LoadProducts(ctx, tx, file, log)
}

// LoadProducts inserts every well-formed CSV row in one transaction.
// Columns are located by header name: name, description, price, quantity,
// reorder_level, expiry_date. Malformed rows are logged and skipped; an
// insert failure aborts the whole load.
func LoadProducts(ctx context.Context, tx Transactor, r io.Reader, log *zap.Logger) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read product header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return 0, fmt.Errorf("product header is missing column %q", name)
		}
	}

	rows := 0
	err = tx.WithinTx(ctx, func(uow store.UnitOfWork) error {
		line := 1
		for {
			record, err := reader.Read()
			if err == io.EOF {
				return nil
			}
			line++
			if err != nil {
				log.Warn("unable to read product row", zap.Int("line", line), zap.Error(err))
				continue
			}
			in, err := parseRow(record, cols)
			if err != nil {
				log.Warn("skipping product row", zap.Int("line", line), zap.Error(err))
				continue
			}
			if _, err := uow.Products.Create(ctx, in); err != nil {
				return fmt.Errorf("insert product %q: %w", in.Name, err)
			}
			rows++
		}
	})
	if err != nil {
		return 0, err
	}
	log.Info("seeded product catalog", zap.Int("rows", rows))
	return rows, nil
}

func parseRow(record []string, cols map[string]int) (domain.ProductInput, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	in := domain.ProductInput{Name: field("name"), Description: field("description")}
	price, err := decimal.NewFromString(field("price"))
	if err != nil {
		return in, fmt.Errorf("invalid price %q", field("price"))
	}
	in.Price = price
	if in.Quantity, err = strconv.ParseInt(field("quantity"), 10, 64); err != nil {
		return in, fmt.Errorf("invalid quantity %q", field("quantity"))
	}
	if v := field("reorder_level"); v != "" {
		if in.ReorderLevel, err = strconv.ParseInt(v, 10, 64); err != nil {
			return in, fmt.Errorf("invalid reorder_level %q", v)
		}
	}
	if v := field("expiry_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return in, fmt.Errorf("invalid expiry_date %q", v)
		}
		in.ExpiryDate = &t
	}
	return in, in.Validate()
}
