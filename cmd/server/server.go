// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/insulate/badminton-booking-sub002/internal/api"
	bookinghandlers "github.com/insulate/badminton-booking-sub002/internal/api/bookings"
	grouphandlers "github.com/insulate/badminton-booking-sub002/internal/api/groupplay"
	salehandlers "github.com/insulate/badminton-booking-sub002/internal/api/sales"
	"github.com/insulate/badminton-booking-sub002/internal/booking"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/config"
	"github.com/insulate/badminton-booking-sub002/internal/db"
	"github.com/insulate/badminton-booking-sub002/internal/groupplay"
	"github.com/insulate/badminton-booking-sub002/internal/inventory"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
	"github.com/insulate/badminton-booking-sub002/internal/ratelimit"
	"github.com/insulate/badminton-booking-sub002/internal/sales"
	"github.com/insulate/badminton-booking-sub002/internal/scheduler"
	"github.com/insulate/badminton-booking-sub002/internal/sequence"
)

const requestTimeout = 15 * time.Second

// newServer wires the ledger services onto one mux. The scheduler singleton
// must already be initialized.
func newServer(cfg *config.Config, database *db.DB) (*http.Server, error) {
	recorder := metrics.NewService()
	clk := clock.Real{}

	ledger, err := inventory.NewLedger(database, clk, recorder)
	if err != nil {
		return nil, fmt.Errorf("inventory ledger: %w", err)
	}
	allocator, err := sequence.NewAllocator(database, recorder)
	if err != nil {
		return nil, fmt.Errorf("sequence allocator: %w", err)
	}
	saleService, err := sales.NewService(database, ledger, allocator,
		sales.WithCodePrefix(cfg.Sales.CodePrefix),
		sales.WithClock(clk),
		sales.WithMetrics(recorder),
	)
	if err != nil {
		return nil, fmt.Errorf("sales service: %w", err)
	}
	resolver, err := booking.NewResolver(database, allocator,
		booking.WithCodePrefix(cfg.Booking.CodePrefix),
		booking.WithPaymentWindow(time.Duration(cfg.Booking.PaymentWindowMinutes)*time.Minute),
		booking.WithClock(clk),
		booking.WithMetrics(recorder),
	)
	if err != nil {
		return nil, fmt.Errorf("booking resolver: %w", err)
	}
	engine, err := groupplay.NewEngine(database, groupplay.WithClock(clk), groupplay.WithMetrics(recorder))
	if err != nil {
		return nil, fmt.Errorf("group play engine: %w", err)
	}

	if cfg.Expiry.Enabled {
		if err := startExpiry(cfg, resolver, clk, recorder); err != nil {
			return nil, err
		}
	}

	salehandlers.InitHandlers(saleService)
	bookinghandlers.InitHandlers(resolver)
	grouphandlers.InitHandlers(engine)

	router := http.NewServeMux()
	registerRoutes(router, cfg)

	middleware := []api.Middleware{api.WithTimeout(requestTimeout)}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(&ratelimit.Config{
			MaxPerWindow: cfg.RateLimit.WritesPerMinute,
			Window:       time.Minute,
			TrustProxy:   cfg.RateLimit.TrustProxyHeaders,
		})
		middleware = append(middleware, limiter.Middleware)
	}
	middleware = append(middleware, api.WithLogging, api.WithRecovery, api.WithRequestID)
	handler := api.ChainMiddleware(router, middleware...)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

func startExpiry(cfg *config.Config, resolver *booking.Resolver, clk clock.Clock, recorder *metrics.Service) error {
	sched, err := scheduler.ServiceInstance()
	if err != nil {
		return err
	}
	reaper, err := scheduler.NewExpiryReaper(sched, resolver, clk, recorder)
	if err != nil {
		return err
	}
	if cfg.Expiry.Cron != "" {
		err = reaper.StartCron(cfg.Expiry.Cron)
	} else {
		err = reaper.StartPeriodic(cfg.Expiry.IntervalMinutes)
	}
	if err != nil {
		return fmt.Errorf("schedule payment expiry: %w", err)
	}
	log.Info().
		Int("interval_minutes", cfg.Expiry.IntervalMinutes).
		Str("cron", cfg.Expiry.Cron).
		Msg("Payment expiry sweep scheduled")
	return nil
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Features.EnableMetrics {
		mux.Handle("GET /metrics", metrics.NewMetricsHandler())
	}

	salehandlers.RegisterRoutes(mux)
	bookinghandlers.RegisterRoutes(mux)
	grouphandlers.RegisterRoutes(mux)
}
