package sales

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/insulate/badminton-booking-sub002/internal/apperr"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/db"
	"github.com/insulate/badminton-booking-sub002/internal/inventory"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
	"github.com/insulate/badminton-booking-sub002/internal/money"
)

const (
	saleSequenceScope = "sale"
	DefaultCodePrefix = "SL"
)

// StockLedger is the reserve/release pair a sale is built from.
type StockLedger interface {
	Reserve(ctx context.Context, productID string, quantity int64) (int64, error)
	Release(ctx context.Context, productID string, quantity int64) error
	Get(ctx context.Context, productID string) (*inventory.Product, error)
}

type CodeAllocator interface {
	NextCode(ctx context.Context, scope, prefix string, day time.Time) (string, error)
}

type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type CreateSaleRequest struct {
	Items []LineItem `json:"items"`
}

type SaleItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	ID        string          `json:"id"`
	SaleCode  string          `json:"sale_code"`
	Items     []SaleItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

type Service struct {
	db         *db.DB
	ledger     StockLedger
	codes      CodeAllocator
	clock      clock.Clock
	metrics    *metrics.Service
	codePrefix string

	// persist writes the sale document; replaced in tests to force failures.
	persist func(ctx context.Context, sale *Sale) error
}

type Option func(*Service)

func WithCodePrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.codePrefix = prefix
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		if clk != nil {
			s.clock = clk
		}
	}
}

func WithMetrics(recorder *metrics.Service) Option {
	return func(s *Service) {
		s.metrics = recorder
	}
}

func NewService(database *db.DB, ledger StockLedger, codes CodeAllocator, opts ...Option) (*Service, error) {
	if database == nil || ledger == nil || codes == nil {
		return nil, errors.New("sale service requires a database, stock ledger and code allocator")
	}
	s := &Service{
		db:         database,
		ledger:     ledger,
		codes:      codes,
		clock:      clock.Real{},
		codePrefix: DefaultCodePrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.persist = s.insertSale
	return s, nil
}

type reservation struct {
	productID string
	quantity  int64
}

// CreateSale reserves every line item in order, then allocates the sale code
// and persists the sale. Any failure after the first reservation releases
// everything reserved for this request before the error is returned.
func (s *Service) CreateSale(ctx context.Context, req CreateSaleRequest) (*Sale, error) {
	if len(req.Items) == 0 {
		return nil, apperr.PreconditionFailed("", "sale requires at least one item")
	}

	logger := log.Ctx(ctx).With().Str("component", "sales").Int("item_count", len(req.Items)).Logger()

	// Prices are read before any stock is touched so a missing product fails cheaply.
	items := make([]SaleItem, 0, len(req.Items))
	total := decimal.Zero
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return nil, apperr.PreconditionFailed(line.ProductID, "quantity must be at least 1")
		}
		product, err := s.ledger.Get(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		subtotal := product.Price.Mul(decimal.NewFromInt(line.Quantity))
		items = append(items, SaleItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     product.Price,
			Subtotal:  subtotal,
		})
		total = total.Add(subtotal)
	}

	reserved := make([]reservation, 0, len(items))
	for _, item := range items {
		if _, err := s.ledger.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			s.compensate(ctx, &logger, reserved)
			return nil, err
		}
		reserved = append(reserved, reservation{productID: item.ProductID, quantity: item.Quantity})
	}

	now := s.clock.Now()
	code, err := s.codes.NextCode(ctx, saleSequenceScope, s.codePrefix, now)
	if err != nil {
		s.compensate(ctx, &logger, reserved)
		return nil, fmt.Errorf("allocate sale code: %w", err)
	}

	sale := &Sale{
		ID:        uuid.NewString(),
		SaleCode:  code,
		Items:     items,
		Total:     total,
		CreatedAt: now,
	}
	if err := s.persist(ctx, sale); err != nil {
		logger.Error().Err(err).Str("sale_code", code).Msg("Failed to persist sale")
		s.compensate(ctx, &logger, reserved)
		return nil, err
	}

	s.metrics.IncSalesCreated()
	logger.Info().
		Str("sale_id", sale.ID).
		Str("sale_code", sale.SaleCode).
		Str("total", sale.Total.StringFixed(2)).
		Msg("Created sale")
	return sale, nil
}

// compensate releases reservations in reverse order. A failed release is not
// retried here: it is logged as a stock discrepancy needing reconciliation.
func (s *Service) compensate(ctx context.Context, logger *zerolog.Logger, reserved []reservation) {
	// A cancelled request context must not stop the inverse steps.
	releaseCtx := context.WithoutCancel(ctx)
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := s.ledger.Release(releaseCtx, r.productID, r.quantity); err != nil {
			s.metrics.IncCompensationFailed()
			logger.Error().
				Err(err).
				Str("product_id", r.productID).
				Int64("quantity", r.quantity).
				Bool("reconciliation_required", true).
				Msg("Failed to release reserved stock during sale rollback")
			continue
		}
		logger.Warn().
			Str("product_id", r.productID).
			Int64("quantity", r.quantity).
			Msg("Released reserved stock after sale failure")
	}
}

// insertSale writes the sale and its items as one document.
func (s *Service) insertSale(ctx context.Context, sale *Sale) error {
	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sales (id, sale_code, total_minor, created_at) VALUES (?, ?, ?, ?)",
			sale.ID, sale.SaleCode, money.ToMinor(sale.Total), sale.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		for _, item := range sale.Items {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO sale_items (sale_id, product_id, quantity, price_minor, subtotal_minor) VALUES (?, ?, ?, ?, ?)",
				sale.ID, item.ProductID, item.Quantity, money.ToMinor(item.Price), money.ToMinor(item.Subtotal),
			); err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return apperr.Store("persist sale", err)
	}
	return nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*Sale, error) {
	var (
		sale       Sale
		totalMinor int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, sale_code, total_minor, created_at FROM sales WHERE id = ?", id,
	).Scan(&sale.ID, &sale.SaleCode, &totalMinor, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("sale", id)
		}
		return nil, apperr.Store("load sale", err)
	}
	sale.Total = money.FromMinor(totalMinor)

	rows, err := s.db.QueryContext(ctx,
		"SELECT product_id, quantity, price_minor, subtotal_minor FROM sale_items WHERE sale_id = ? ORDER BY id", id,
	)
	if err != nil {
		return nil, apperr.Store("load sale items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item SaleItem
		var priceMinor, subMinor int64
		if err := rows.Scan(&item.ProductID, &item.Quantity, &priceMinor, &subMinor); err != nil {
			return nil, apperr.Store("scan sale item", err)
		}
		item.Price = money.FromMinor(priceMinor)
		item.Subtotal = money.FromMinor(subMinor)
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("load sale items", err)
	}
	return &sale, nil
}
