package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service holds the ledger's Prometheus collectors. A nil *Service is valid
// and records nothing, so components can run without metrics wired.
type Service struct {
	SequenceAllocations *prometheus.CounterVec
	StockReservations   *prometheus.CounterVec
	StockReleases       prometheus.Counter
	CompensationFailed  prometheus.Counter
	SalesCreated        prometheus.Counter
	BookingsCreated     *prometheus.CounterVec
	BookingConflicts    prometheus.Counter
	BookingTransitions  *prometheus.CounterVec
	ExpiryCancelled     prometheus.Counter
	ExpiryRuns          *prometheus.CounterVec
	GamesStarted        prometheus.Counter
	GamesFinished       prometheus.Counter
	GameStartRejected   *prometheus.CounterVec
}

// NewMetricsHandler returns an http.Handler for the given Gatherer.
// If no gatherer is provided, it uses the default one.
func NewMetricsHandler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}

// NewService creates and registers the collectors.
// If no registerer is provided, it uses the default Prometheus registerer.
func NewService(registerer ...prometheus.Registerer) *Service {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	s := &Service{
		SequenceAllocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_sequence_allocations_total",
			Help: "Sequence values handed out, by scope prefix.",
		}, []string{"scope"}),
		StockReservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_stock_reservations_total",
			Help: "Stock reserve attempts, by outcome.",
		}, []string{"outcome"}),
		StockReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_stock_releases_total",
			Help: "Stock quantities returned by compensation.",
		}),
		CompensationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_compensation_failed_total",
			Help: "Compensating releases that failed and need manual reconciliation.",
		}),
		SalesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_sales_created_total",
			Help: "Sales persisted after all line items were reserved.",
		}),
		BookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_bookings_created_total",
			Help: "Bookings created, by initial status.",
		}, []string{"status"}),
		BookingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_booking_conflicts_total",
			Help: "Booking writes rejected because the court slot was taken.",
		}),
		BookingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_booking_transitions_total",
			Help: "Booking status transitions applied, by target status.",
		}, []string{"to"}),
		ExpiryCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_expiry_cancelled_total",
			Help: "Pending-payment bookings cancelled by the expiry sweep.",
		}),
		ExpiryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_expiry_runs_total",
			Help: "Expiry sweeps, by result.",
		}, []string{"result"}),
		GamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_games_started_total",
			Help: "Group play games started.",
		}),
		GamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_games_finished_total",
			Help: "Per-player game entries finished.",
		}),
		GameStartRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_game_start_rejected_total",
			Help: "Game start requests rejected before a number was consumed, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		s.SequenceAllocations,
		s.StockReservations,
		s.StockReleases,
		s.CompensationFailed,
		s.SalesCreated,
		s.BookingsCreated,
		s.BookingConflicts,
		s.BookingTransitions,
		s.ExpiryCancelled,
		s.ExpiryRuns,
		s.GamesStarted,
		s.GamesFinished,
		s.GameStartRejected,
	)

	return s
}

func (s *Service) IncSequenceAllocation(scope string) {
	if s == nil {
		return
	}
	s.SequenceAllocations.WithLabelValues(scope).Inc()
}

func (s *Service) IncStockReservation(outcome string) {
	if s == nil {
		return
	}
	s.StockReservations.WithLabelValues(outcome).Inc()
}

func (s *Service) IncStockRelease() {
	if s == nil {
		return
	}
	s.StockReleases.Inc()
}

func (s *Service) IncCompensationFailed() {
	if s == nil {
		return
	}
	s.CompensationFailed.Inc()
}

func (s *Service) IncSalesCreated() {
	if s == nil {
		return
	}
	s.SalesCreated.Inc()
}

func (s *Service) IncBookingCreated(status string) {
	if s == nil {
		return
	}
	s.BookingsCreated.WithLabelValues(status).Inc()
}

func (s *Service) IncBookingConflict() {
	if s == nil {
		return
	}
	s.BookingConflicts.Inc()
}

func (s *Service) IncBookingTransition(to string) {
	if s == nil {
		return
	}
	s.BookingTransitions.WithLabelValues(to).Inc()
}

func (s *Service) AddExpiryCancelled(n int64) {
	if s == nil || n <= 0 {
		return
	}
	s.ExpiryCancelled.Add(float64(n))
}

func (s *Service) IncExpiryRun(result string) {
	if s == nil {
		return
	}
	s.ExpiryRuns.WithLabelValues(result).Inc()
}

func (s *Service) IncGamesStarted() {
	if s == nil {
		return
	}
	s.GamesStarted.Inc()
}

func (s *Service) IncGamesFinished() {
	if s == nil {
		return
	}
	s.GamesFinished.Inc()
}

func (s *Service) IncGameStartRejected(reason string) {
	if s == nil {
		return
	}
	s.GameStartRejected.WithLabelValues(reason).Inc()
}
