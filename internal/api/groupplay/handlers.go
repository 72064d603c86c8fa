// internal/api/groupplay/handlers.go
package groupplay

import (
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/insulate/badminton-booking-sub002/internal/api/apiutil"
	"github.com/insulate/badminton-booking-sub002/internal/groupplay"
)

var (
	engine   *groupplay.Engine
	engineMu sync.RWMutex
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(e *groupplay.Engine) {
	engineMu.Lock()
	defer engineMu.Unlock()
	engine = e
}

func loadEngine(w http.ResponseWriter, r *http.Request) *groupplay.Engine {
	engineMu.RLock()
	e := engine
	engineMu.RUnlock()
	if e == nil {
		log.Ctx(r.Context()).Error().Msg("Group play engine not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
	return e
}

func RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/groupplay/sessions", HandleCreateSession)
	mux.HandleFunc("GET /api/v1/groupplay/sessions/{id}", HandleGetSession)
	mux.HandleFunc("POST /api/v1/groupplay/sessions/{id}/players", HandleCheckIn)
	mux.HandleFunc("POST /api/v1/groupplay/sessions/{id}/players/{playerID}/checkout", HandleCheckOut)
	mux.HandleFunc("POST /api/v1/groupplay/sessions/{id}/games", HandleStartGame)
	mux.HandleFunc("POST /api/v1/groupplay/sessions/{id}/players/{playerID}/games/{gameNumber}/finish", HandleFinishGame)
}

type createSessionRequest struct {
	Name     string   `json:"session_name"`
	Date     string   `json:"session_date"`
	CourtIDs []string `json:"court_ids"`
}

// POST /api/v1/groupplay/sessions
func HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	e := loadEngine(w, r)
	if e == nil {
		return
	}

	var req createSessionRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.BadRequest(w, r, err)
		return
	}

	session, err := e.CreateSession(r.Context(), req.Name, req.Date, req.CourtIDs)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, session)
}

// GET /api/v1/groupplay/sessions/{id}
func HandleGetSession(w http.ResponseWriter, r *http.Request) {
	e := loadEngine(w, r)
	if e == nil {
		return
	}

	session, err := e.GetSession(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, session)
}

type checkInRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// POST /api/v1/groupplay/sessions/{id}/players
func HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	e := loadEngine(w, r)
	if e == nil {
		return
	}

	var req checkInRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.BadRequest(w, r, err)
		return
	}

	player, err := e.CheckInPlayer(r.Context(), strings.TrimSpace(r.PathValue("id")), req.Name, req.Phone)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, player)
}

// POST /api/v1/groupplay/sessions/{id}/players/{playerID}/checkout
func HandleCheckOut(w http.ResponseWriter, r *http.Request) {
	e := loadEngine(w, r)
	if e == nil {
		return
	}

	player, err := e.CheckOutPlayer(r.Context(),
		strings.TrimSpace(r.PathValue("id")),
		strings.TrimSpace(r.PathValue("playerID")),
	)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, player)
}

type startGameRequest struct {
	PlayerIDs []string `json:"player_ids"`
	CourtID   string   `json:"court_id"`
}

type startGameResponse struct {
	SessionID  string `json:"session_id"`
	GameNumber int64  `json:"game_number"`
}

// POST /api/v1/groupplay/sessions/{id}/games
func HandleStartGame(w http.ResponseWriter, r *http.Request) {
	e := loadEngine(w, r)
	if e == nil {
		return
	}

	var req startGameRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.BadRequest(w, r, err)
		return
	}
	courtID, err := apiutil.RequiredField(req.CourtID, "court_id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("id"))
	gameNumber, err := e.StartGame(r.Context(), sessionID, req.PlayerIDs, courtID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, startGameResponse{SessionID: sessionID, GameNumber: gameNumber})
}

type finishGameRequest struct {
	Items []groupplay.GameItem `json:"items"`
}

// POST /api/v1/groupplay/sessions/{id}/players/{playerID}/games/{gameNumber}/finish
func HandleFinishGame(w http.ResponseWriter, r *http.Request) {
	e := loadEngine(w, r)
	if e == nil {
		return
	}

	gameNumber, err := apiutil.ParsePositiveInt64Field(r.PathValue("gameNumber"), "game_number")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req finishGameRequest
	if r.ContentLength != 0 {
		if err := apiutil.DecodeJSON(r, &req); err != nil {
			apiutil.BadRequest(w, r, err)
			return
		}
	}

	game, err := e.FinishGame(r.Context(),
		strings.TrimSpace(r.PathValue("id")),
		strings.TrimSpace(r.PathValue("playerID")),
		gameNumber,
		req.Items,
	)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, game)
}
