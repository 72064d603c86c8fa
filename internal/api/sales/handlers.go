// internal/api/sales/handlers.go
package sales

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/insulate/badminton-booking-sub002/internal/api/apiutil"
	salessvc "github.com/insulate/badminton-booking-sub002/internal/sales"
)

const salesRequestTimeout = 10 * time.Second

var (
	service   *salessvc.Service
	serviceMu sync.RWMutex
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *salessvc.Service) {
	serviceMu.Lock()
	defer serviceMu.Unlock()
	service = svc
}

func loadService() *salessvc.Service {
	serviceMu.RLock()
	defer serviceMu.RUnlock()
	return service
}

func RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sales", HandleCreateSale)
	mux.HandleFunc("GET /api/v1/sales/{id}", HandleGetSale)
}

// POST /api/v1/sales
func HandleCreateSale(w http.ResponseWriter, r *http.Request) {
	svc := loadService()
	if svc == nil {
		log.Ctx(r.Context()).Error().Msg("Sale service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req salessvc.CreateSaleRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.BadRequest(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), salesRequestTimeout)
	defer cancel()

	sale, err := svc.CreateSale(ctx, req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, sale)
}

// GET /api/v1/sales/{id}
func HandleGetSale(w http.ResponseWriter, r *http.Request) {
	svc := loadService()
	if svc == nil {
		log.Ctx(r.Context()).Error().Msg("Sale service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	sale, err := svc.GetSale(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, sale)
}
