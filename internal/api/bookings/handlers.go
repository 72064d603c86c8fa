// internal/api/bookings/handlers.go
package bookings

import (
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/insulate/badminton-booking-sub002/internal/api/apiutil"
	"github.com/insulate/badminton-booking-sub002/internal/booking"
)

var (
	resolver   *booking.Resolver
	resolverMu sync.RWMutex
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(r *booking.Resolver) {
	resolverMu.Lock()
	defer resolverMu.Unlock()
	resolver = r
}

func loadResolver(w http.ResponseWriter, r *http.Request) *booking.Resolver {
	resolverMu.RLock()
	res := resolver
	resolverMu.RUnlock()
	if res == nil {
		log.Ctx(r.Context()).Error().Msg("Booking resolver not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
	return res
}

func RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/bookings/availability", HandleAvailability)
	mux.HandleFunc("POST /api/v1/bookings", HandleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}", HandleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/status", HandleTransition)
	mux.HandleFunc("PUT /api/v1/bookings/{id}/slot", HandleReschedule)
	mux.HandleFunc("DELETE /api/v1/bookings/{id}", HandleDeleteBooking)
}

type availabilityResponse struct {
	CourtID   string            `json:"court_id"`
	Date      string            `json:"date"`
	TimeSlot  string            `json:"time_slot,omitempty"`
	Available *bool             `json:"available,omitempty"`
	Bookings  []booking.Booking `json:"bookings"`
}

// GET /api/v1/bookings/availability?court_id=&date=[&time_slot=]
func HandleAvailability(w http.ResponseWriter, r *http.Request) {
	res := loadResolver(w, r)
	if res == nil {
		return
	}

	query := r.URL.Query()
	courtID, err := apiutil.RequiredField(query.Get("court_id"), "court_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	date, err := apiutil.RequiredField(query.Get("date"), "date")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	resp := availabilityResponse{CourtID: courtID, Date: date}
	if raw := strings.TrimSpace(query.Get("time_slot")); raw != "" {
		slot, err := booking.ParseTimeSlot(raw)
		if err != nil {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "time_slot", Reason: "must look like 18:00-19:30"})
			return
		}
		available, err := res.CheckAvailable(r.Context(), courtID, date, slot)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		resp.TimeSlot = slot.String()
		resp.Available = &available
	}

	resp.Bookings, err = res.ListForDay(r.Context(), courtID, date)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if resp.Bookings == nil {
		resp.Bookings = []booking.Booking{}
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, resp)
}

// POST /api/v1/bookings
func HandleCreateBooking(w http.ResponseWriter, r *http.Request) {
	res := loadResolver(w, r)
	if res == nil {
		return
	}

	var req booking.CreateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.BadRequest(w, r, err)
		return
	}
	if _, err := apiutil.RequiredField(req.CourtID, "court_id"); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	b, err := res.Create(r.Context(), req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, b)
}

// GET /api/v1/bookings/{id}
func HandleGetBooking(w http.ResponseWriter, r *http.Request) {
	res := loadResolver(w, r)
	if res == nil {
		return
	}

	b, err := res.Get(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, b)
}

type transitionRequest struct {
	Status string `json:"status"`
}

// POST /api/v1/bookings/{id}/status
func HandleTransition(w http.ResponseWriter, r *http.Request) {
	res := loadResolver(w, r)
	if res == nil {
		return
	}

	var req transitionRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.BadRequest(w, r, err)
		return
	}
	status, err := apiutil.RequiredField(req.Status, "status")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	b, err := res.Transition(r.Context(), strings.TrimSpace(r.PathValue("id")), booking.Status(status))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, b)
}

type rescheduleRequest struct {
	CourtID  string `json:"court_id"`
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
}

// PUT /api/v1/bookings/{id}/slot
func HandleReschedule(w http.ResponseWriter, r *http.Request) {
	res := loadResolver(w, r)
	if res == nil {
		return
	}

	var req rescheduleRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.BadRequest(w, r, err)
		return
	}
	courtID, err := apiutil.RequiredField(req.CourtID, "court_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	slot, err := booking.ParseTimeSlot(req.TimeSlot)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "time_slot", Reason: "must look like 18:00-19:30"})
		return
	}

	b, err := res.Reschedule(r.Context(), strings.TrimSpace(r.PathValue("id")), courtID, req.Date, slot)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, b)
}

// DELETE /api/v1/bookings/{id}
func HandleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	res := loadResolver(w, r)
	if res == nil {
		return
	}

	if err := res.SoftDelete(r.Context(), strings.TrimSpace(r.PathValue("id"))); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
