package inventory

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/insulate/badminton-booking-sub002/internal/apperr"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/db"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
	"github.com/insulate/badminton-booking-sub002/internal/money"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// The predicate and the decrement are evaluated by the store as one statement.
const reserveSQL = `
UPDATE products
SET stock = stock - ?1, updated_at = ?2
WHERE id = ?3 AND status = 'active' AND stock >= ?1
RETURNING stock`

const releaseSQL = `
UPDATE products
SET stock = stock + ?1, updated_at = ?2
WHERE id = ?3`

type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type NewProduct struct {
	SKU   string
	Name  string
	Price decimal.Decimal
	Stock int64
}

type Ledger struct {
	db      *db.DB
	clock   clock.Clock
	metrics *metrics.Service
}

func NewLedger(database *db.DB, clk clock.Clock, recorder *metrics.Service) (*Ledger, error) {
	if database == nil {
		return nil, errors.New("stock ledger requires a database")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Ledger{db: database, clock: clk, metrics: recorder}, nil
}

// Reserve takes quantity units of a product if, at the moment of the write,
// at least that many are in stock. It returns the remaining stock.
func (l *Ledger) Reserve(ctx context.Context, productID string, quantity int64) (int64, error) {
	logger := log.Ctx(ctx).With().
		Str("component", "stock_ledger").
		Str("product_id", productID).
		Int64("quantity", quantity).
		Logger()

	if quantity < 1 {
		return 0, apperr.PreconditionFailed(productID, "quantity must be at least 1")
	}

	var remaining int64
	err := l.db.QueryRowContext(ctx, reserveSQL, quantity, l.clock.Now(), productID).Scan(&remaining)
	if err == nil {
		l.metrics.IncStockReservation("ok")
		logger.Debug().Int64("remaining", remaining).Msg("Reserved stock")
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		l.metrics.IncStockReservation("error")
		logger.Error().Err(err).Msg("Failed to reserve stock")
		return 0, apperr.Store("reserve stock", err)
	}

	// The conditional write matched nothing; find out why for the caller.
	product, getErr := l.Get(ctx, productID)
	if getErr != nil {
		l.metrics.IncStockReservation("not_found")
		return 0, getErr
	}
	if product.Status != StatusActive {
		l.metrics.IncStockReservation("inactive")
		return 0, apperr.NotFound("active product", productID)
	}
	l.metrics.IncStockReservation("insufficient")
	logger.Info().Int64("available", product.Stock).Msg("Insufficient stock")
	return 0, apperr.InsufficientStock(productID, quantity, product.Stock)
}

// Release returns quantity units to a product. It is the inverse of Reserve
// and is used only for compensation.
func (l *Ledger) Release(ctx context.Context, productID string, quantity int64) error {
	if quantity < 1 {
		return apperr.PreconditionFailed(productID, "quantity must be at least 1")
	}

	result, err := l.db.ExecContext(ctx, releaseSQL, quantity, l.clock.Now(), productID)
	if err != nil {
		return apperr.Store("release stock", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.Store("release stock", err)
	}
	if affected == 0 {
		return apperr.NotFound("product", productID)
	}

	l.metrics.IncStockRelease()
	return nil
}

func (l *Ledger) Get(ctx context.Context, productID string) (*Product, error) {
	var (
		p          Product
		priceMinor int64
	)
	err := l.db.QueryRowContext(ctx,
		"SELECT id, sku, name, price_minor, stock, status, created_at, updated_at FROM products WHERE id = ?",
		productID,
	).Scan(&p.ID, &p.SKU, &p.Name, &priceMinor, &p.Stock, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("product", productID)
		}
		return nil, apperr.Store("load product", err)
	}
	p.Price = money.FromMinor(priceMinor)
	return &p, nil
}

// CreateProduct seeds a product. Product CRUD proper lives outside the ledger.
func (l *Ledger) CreateProduct(ctx context.Context, in NewProduct) (*Product, error) {
	if strings.TrimSpace(in.SKU) == "" {
		return nil, apperr.PreconditionFailed("", "sku is required")
	}
	if in.Stock < 0 {
		return nil, apperr.PreconditionFailed(in.SKU, "stock must be 0 or greater")
	}
	if in.Price.IsNegative() {
		return nil, apperr.PreconditionFailed(in.SKU, "price must be 0 or greater")
	}

	now := l.clock.Now()
	p := &Product{
		ID:        uuid.NewString(),
		SKU:       strings.TrimSpace(in.SKU),
		Name:      strings.TrimSpace(in.Name),
		Price:     in.Price.Round(2),
		Stock:     in.Stock,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := l.db.ExecContext(ctx,
		"INSERT INTO products (id, sku, name, price_minor, stock, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.SKU, p.Name, money.ToMinor(p.Price), p.Stock, p.Status, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return nil, apperr.Store("create product", err)
	}
	return p, nil
}

// SetStatus activates or deactivates a product.
func (l *Ledger) SetStatus(ctx context.Context, productID, status string) error {
	if status != StatusActive && status != StatusInactive {
		return apperr.PreconditionFailed(productID, "unknown product status %q", status)
	}
	result, err := l.db.ExecContext(ctx,
		"UPDATE products SET status = ?, updated_at = ? WHERE id = ?",
		status, l.clock.Now(), productID,
	)
	if err != nil {
		return apperr.Store("update product status", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("product", productID)
	}
	return nil
}
