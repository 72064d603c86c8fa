// Package groupplay runs group play sessions: player check-in and check-out,
// and games numbered from a per-session counter. A player can be in at most
// one playing game, enforced by a claim set on the player with a conditional
// update before any game number is taken.
package groupplay

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/insulate/badminton-booking-sub002/internal/apperr"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/db"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
	"github.com/insulate/badminton-booking-sub002/internal/money"
)

const (
	SessionOpen   = "open"
	SessionClosed = "closed"

	GamePlaying  = "playing"
	GameFinished = "finished"

	MinPlayersPerGame = 2
	MaxPlayersPerGame = 4

	defaultPhoneRegion = "TH"
	sessionDateLayout  = "2006-01-02"
)

const nextGameNumberSQL = `
UPDATE group_play_sessions
SET game_counter = game_counter + 1
WHERE id = ? AND status = 'open'
RETURNING game_counter`

const claimPlayerSQL = `
UPDATE session_players
SET game_claim = ?
WHERE id = ? AND session_id = ? AND game_claim IS NULL AND checked_out_at IS NULL`

const finishGameSQL = `
UPDATE session_games
SET status = 'finished', items = ?, total_items_cost_minor = ?, cost_per_player_minor = ?, finished_at = ?
WHERE session_id = ? AND player_id = ? AND game_number = ? AND status = 'playing'`

type Session struct {
	ID          string    `json:"id"`
	Name        string    `json:"session_name"`
	Date        string    `json:"session_date"`
	Status      string    `json:"status"`
	GameCounter int64     `json:"game_counter"`
	CourtIDs    []string  `json:"court_ids"`
	Players     []Player  `json:"players"`
	CreatedAt   time.Time `json:"created_at"`
}

type Player struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	Name         string          `json:"name"`
	Phone        string          `json:"phone,omitempty"`
	Playing      bool            `json:"playing"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	CheckedInAt  time.Time       `json:"checked_in_at"`
	CheckedOutAt *time.Time      `json:"checked_out_at,omitempty"`
	Games        []Game          `json:"games"`
}

type GameItem struct {
	ProductID string          `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

type Game struct {
	SessionID      string          `json:"session_id"`
	PlayerID       string          `json:"player_id"`
	GameNumber     int64           `json:"game_number"`
	CourtID        string          `json:"court_id"`
	Status         string          `json:"status"`
	Teammates      []string        `json:"teammates"`
	Opponents      []string        `json:"opponents"`
	Items          []GameItem      `json:"items"`
	TotalItemsCost decimal.Decimal `json:"total_items_cost"`
	CostPerPlayer  decimal.Decimal `json:"cost_per_player"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// Participants counts the player plus everyone on both sides of the net.
func (g Game) Participants() int {
	return 1 + len(g.Teammates) + len(g.Opponents)
}

type Engine struct {
	db          *db.DB
	clock       clock.Clock
	metrics     *metrics.Service
	phoneRegion string

	// insertGames writes the per-player game rows; replaced in tests to force failures.
	insertGames func(ctx context.Context, games []Game) error
}

type Option func(*Engine)

func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		if clk != nil {
			e.clock = clk
		}
	}
}

func WithMetrics(recorder *metrics.Service) Option {
	return func(e *Engine) {
		e.metrics = recorder
	}
}

// WithPhoneRegion sets the region used to read phone numbers written without
// a country code.
func WithPhoneRegion(region string) Option {
	return func(e *Engine) {
		if region != "" {
			e.phoneRegion = strings.ToUpper(region)
		}
	}
}

func NewEngine(database *db.DB, opts ...Option) (*Engine, error) {
	if database == nil {
		return nil, errors.New("group play engine requires a database")
	}
	e := &Engine{
		db:          database,
		clock:       clock.Real{},
		phoneRegion: defaultPhoneRegion,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.insertGames = e.writeGames
	return e, nil
}

func (e *Engine) CreateSession(ctx context.Context, name, date string, courtIDs []string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.PreconditionFailed("", "session name is required")
	}
	day, err := time.Parse(sessionDateLayout, strings.TrimSpace(date))
	if err != nil {
		return nil, apperr.PreconditionFailed("", "invalid session date %q: expected YYYY-MM-DD", date)
	}
	if len(courtIDs) == 0 {
		return nil, apperr.PreconditionFailed("", "session needs at least one court")
	}

	s := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		Date:      day.Format(sessionDateLayout),
		Status:    SessionOpen,
		CourtIDs:  dedupe(courtIDs),
		CreatedAt: e.clock.Now(),
	}

	err = e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO group_play_sessions (id, session_name, session_date, status, created_at) VALUES (?, ?, ?, ?, ?)",
			s.ID, s.Name, s.Date, s.Status, s.CreatedAt,
		); err != nil {
			return apperr.Store("create session", err)
		}
		for _, courtID := range s.CourtIDs {
			var exists bool
			if err := tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM courts WHERE id = ?)", courtID).Scan(&exists); err != nil {
				return apperr.Store("load court", err)
			}
			if !exists {
				return apperr.NotFound("court", courtID)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO group_play_session_courts (session_id, court_id) VALUES (?, ?)", s.ID, courtID,
			); err != nil {
				return apperr.Store("add session court", err)
			}
		}
		return nil
	})
	if err := inTxErr("create session", err); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Str("component", "groupplay").
		Str("session_id", s.ID).
		Str("session_date", s.Date).
		Strs("court_ids", s.CourtIDs).
		Msg("Created group play session")
	return s, nil
}

// CloseSession stops new games from being numbered. Games already playing
// can still be finished.
func (e *Engine) CloseSession(ctx context.Context, sessionID string) error {
	result, err := e.db.ExecContext(ctx,
		"UPDATE group_play_sessions SET status = 'closed' WHERE id = ?", sessionID,
	)
	if err != nil {
		return apperr.Store("close session", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("session", sessionID)
	}
	return nil
}

// CheckInPlayer adds a player to an open session. Phone numbers are stored
// in E.164 form; an empty phone is allowed for walk-ins.
func (e *Engine) CheckInPlayer(ctx context.Context, sessionID, name, phone string) (*Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.PreconditionFailed(sessionID, "player name is required")
	}
	normalized, err := e.normalizePhone(phone)
	if err != nil {
		return nil, apperr.PreconditionFailed(sessionID, "%v", err)
	}

	status, _, err := e.sessionStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if status != SessionOpen {
		return nil, apperr.PreconditionFailed(sessionID, "session is %s", status)
	}

	p := &Player{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Name:        name,
		Phone:       normalized,
		TotalCost:   decimal.Zero,
		CheckedInAt: e.clock.Now(),
	}
	if _, err := e.db.ExecContext(ctx,
		"INSERT INTO session_players (id, session_id, name, phone, checked_in_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.SessionID, p.Name, p.Phone, p.CheckedInAt,
	); err != nil {
		return nil, apperr.Store("check in player", err)
	}

	log.Ctx(ctx).Info().
		Str("component", "groupplay").
		Str("session_id", sessionID).
		Str("player_id", p.ID).
		Msg("Player checked in")
	return p, nil
}

// CheckOutPlayer marks a player as gone. A player in a playing game must
// finish it first.
func (e *Engine) CheckOutPlayer(ctx context.Context, sessionID, playerID string) (*Player, error) {
	now := e.clock.Now()
	result, err := e.db.ExecContext(ctx,
		`UPDATE session_players SET checked_out_at = ?
		WHERE id = ? AND session_id = ? AND checked_out_at IS NULL AND game_claim IS NULL`,
		now, playerID, sessionID,
	)
	if err != nil {
		return nil, apperr.Store("check out player", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, apperr.Store("check out player", err)
	} else if n == 0 {
		p, err := e.getPlayer(ctx, sessionID, playerID)
		if err != nil {
			return nil, err
		}
		if p.CheckedOutAt != nil {
			return nil, apperr.PreconditionFailed(playerID, "player already checked out")
		}
		return nil, apperr.PreconditionFailed(playerID, "player is in a game")
	}
	return e.getPlayer(ctx, sessionID, playerID)
}

// StartGame numbers a new game for playerIDs on courtID. Players are claimed
// first, so a rejected start never consumes a game number. A failure after
// the number was taken leaves a gap in the sequence.
func (e *Engine) StartGame(ctx context.Context, sessionID string, playerIDs []string, courtID string) (int64, error) {
	logger := log.Ctx(ctx).With().
		Str("component", "groupplay").
		Str("session_id", sessionID).
		Str("court_id", courtID).
		Logger()

	if n := len(playerIDs); n < MinPlayersPerGame || n > MaxPlayersPerGame {
		e.metrics.IncGameStartRejected("player_count")
		return 0, apperr.PreconditionFailed(sessionID, "a game needs %d to %d players, got %d", MinPlayersPerGame, MaxPlayersPerGame, n)
	}
	if len(dedupe(playerIDs)) != len(playerIDs) {
		e.metrics.IncGameStartRejected("duplicate_player")
		return 0, apperr.PreconditionFailed(sessionID, "a player is listed twice")
	}

	status, courts, err := e.sessionStatus(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if status != SessionOpen {
		e.metrics.IncGameStartRejected("session_closed")
		return 0, apperr.PreconditionFailed(sessionID, "session is %s", status)
	}
	if !slices.Contains(courts, courtID) {
		e.metrics.IncGameStartRejected("court")
		return 0, apperr.PreconditionFailed(courtID, "court is not part of this session")
	}

	claim := uuid.NewString()
	claimed := make([]string, 0, len(playerIDs))
	for _, playerID := range playerIDs {
		ok, err := e.claimPlayer(ctx, sessionID, playerID, claim)
		if err != nil {
			e.releaseClaims(ctx, &logger, claimed, claim)
			return 0, err
		}
		if !ok {
			e.releaseClaims(ctx, &logger, claimed, claim)
			return 0, e.claimRejection(ctx, sessionID, playerID)
		}
		claimed = append(claimed, playerID)
	}

	var gameNumber int64
	if err := e.db.QueryRowContext(ctx, nextGameNumberSQL, sessionID).Scan(&gameNumber); err != nil {
		e.releaseClaims(ctx, &logger, claimed, claim)
		if errors.Is(err, sql.ErrNoRows) {
			e.metrics.IncGameStartRejected("session_closed")
			return 0, apperr.PreconditionFailed(sessionID, "session closed while starting a game")
		}
		return 0, apperr.Store("allocate game number", err)
	}

	now := e.clock.Now()
	teamA, teamB := splitTeams(playerIDs)
	games := make([]Game, 0, len(playerIDs))
	for _, side := range [][2][]string{{teamA, teamB}, {teamB, teamA}} {
		own, other := side[0], side[1]
		for _, playerID := range own {
			games = append(games, Game{
				SessionID:      sessionID,
				PlayerID:       playerID,
				GameNumber:     gameNumber,
				CourtID:        courtID,
				Status:         GamePlaying,
				Teammates:      without(own, playerID),
				Opponents:      append([]string(nil), other...),
				Items:          []GameItem{},
				TotalItemsCost: decimal.Zero,
				CostPerPlayer:  decimal.Zero,
				StartedAt:      now,
			})
		}
	}

	if err := e.insertGames(ctx, games); err != nil {
		logger.Error().Err(err).Int64("game_number", gameNumber).Msg("Failed to record game, releasing players")
		e.removeGames(ctx, &logger, sessionID, gameNumber)
		e.releaseClaims(ctx, &logger, claimed, claim)
		return 0, err
	}

	e.metrics.IncGamesStarted()
	logger.Info().
		Int64("game_number", gameNumber).
		Strs("team_a", teamA).
		Strs("team_b", teamB).
		Msg("Game started")
	return gameNumber, nil
}

// FinishGame closes one player's entry for a game, splits the items' cost
// across the game's participants and adds the share to the player's total.
func (e *Engine) FinishGame(ctx context.Context, sessionID, playerID string, gameNumber int64, items []GameItem) (*Game, error) {
	total := decimal.Zero
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, apperr.PreconditionFailed(item.ProductID, "item quantity must be at least 1")
		}
		if item.Price.IsNegative() {
			return nil, apperr.PreconditionFailed(item.ProductID, "item price must be 0 or greater")
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(item.Quantity)))
	}
	if items == nil {
		items = []GameItem{}
	}

	game, err := e.getGame(ctx, sessionID, playerID, gameNumber)
	if err != nil {
		return nil, err
	}
	if game.Status != GamePlaying {
		return nil, apperr.PreconditionFailed(playerID, "game %d is already %s", gameNumber, game.Status)
	}

	perPlayer := money.Split(total, game.Participants())
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode game items: %w", err)
	}
	now := e.clock.Now()

	err = e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, finishGameSQL,
			string(itemsJSON), money.ToMinor(total), money.ToMinor(perPlayer), now,
			sessionID, playerID, gameNumber,
		)
		if err != nil {
			return apperr.Store("finish game", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return apperr.PreconditionFailed(playerID, "game %d is no longer playing", gameNumber)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE session_players SET total_cost_minor = total_cost_minor + ?, game_claim = NULL WHERE id = ? AND session_id = ?",
			money.ToMinor(perPlayer), playerID, sessionID,
		); err != nil {
			return apperr.Store("add player cost", err)
		}
		return nil
	})
	if err := inTxErr("finish game", err); err != nil {
		return nil, err
	}

	e.metrics.IncGamesFinished()
	log.Ctx(ctx).Info().
		Str("component", "groupplay").
		Str("session_id", sessionID).
		Str("player_id", playerID).
		Int64("game_number", gameNumber).
		Str("cost_per_player", perPlayer.StringFixed(2)).
		Msg("Game finished")

	game.Status = GameFinished
	game.Items = items
	game.TotalItemsCost = money.FromMinor(money.ToMinor(total))
	game.CostPerPlayer = perPlayer
	game.FinishedAt = &now
	return game, nil
}

// GetSession returns the session with its courts, players and their games.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	err := e.db.QueryRowContext(ctx,
		"SELECT id, session_name, session_date, status, game_counter, created_at FROM group_play_sessions WHERE id = ?",
		sessionID,
	).Scan(&s.ID, &s.Name, &s.Date, &s.Status, &s.GameCounter, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("session", sessionID)
		}
		return nil, apperr.Store("load session", err)
	}

	if s.CourtIDs, err = e.sessionCourts(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx,
		"SELECT "+playerColumns+" FROM session_players WHERE session_id = ? ORDER BY checked_in_at, id", sessionID,
	)
	if err != nil {
		return nil, apperr.Store("load players", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, apperr.Store("scan player", err)
		}
		s.Players = append(s.Players, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("load players", err)
	}

	games, err := e.listGames(ctx, "WHERE session_id = ? ORDER BY game_number, player_id", sessionID)
	if err != nil {
		return nil, err
	}
	byPlayer := make(map[string][]Game, len(s.Players))
	for _, g := range games {
		byPlayer[g.PlayerID] = append(byPlayer[g.PlayerID], g)
	}
	for i := range s.Players {
		s.Players[i].Games = byPlayer[s.Players[i].ID]
	}
	return &s, nil
}

func (e *Engine) normalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, e.phoneRegion)
	if err != nil {
		return "", fmt.Errorf("invalid phone number %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (e *Engine) sessionStatus(ctx context.Context, sessionID string) (string, []string, error) {
	var status string
	err := e.db.QueryRowContext(ctx, "SELECT status FROM group_play_sessions WHERE id = ?", sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, apperr.NotFound("session", sessionID)
		}
		return "", nil, apperr.Store("load session", err)
	}
	courts, err := e.sessionCourts(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}
	return status, courts, nil
}

func (e *Engine) sessionCourts(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT court_id FROM group_play_session_courts WHERE session_id = ? ORDER BY court_id", sessionID,
	)
	if err != nil {
		return nil, apperr.Store("load session courts", err)
	}
	defer rows.Close()

	var courts []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Store("scan session court", err)
		}
		courts = append(courts, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("load session courts", err)
	}
	return courts, nil
}

func (e *Engine) claimPlayer(ctx context.Context, sessionID, playerID, claim string) (bool, error) {
	result, err := e.db.ExecContext(ctx, claimPlayerSQL, claim, playerID, sessionID)
	if err != nil {
		return false, apperr.Store("claim player", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperr.Store("claim player", err)
	}
	return n == 1, nil
}

// claimRejection explains why a player could not be claimed.
func (e *Engine) claimRejection(ctx context.Context, sessionID, playerID string) error {
	p, err := e.getPlayer(ctx, sessionID, playerID)
	if err != nil {
		e.metrics.IncGameStartRejected("unknown_player")
		return err
	}
	if p.CheckedOutAt != nil {
		e.metrics.IncGameStartRejected("checked_out")
		return apperr.PreconditionFailed(playerID, "player has checked out")
	}
	e.metrics.IncGameStartRejected("already_playing")
	return apperr.PreconditionFailed(playerID, "player is already playing")
}

// releaseClaims undoes claims taken by this start attempt only.
func (e *Engine) releaseClaims(ctx context.Context, logger *zerolog.Logger, playerIDs []string, claim string) {
	releaseCtx := context.WithoutCancel(ctx)
	for _, playerID := range playerIDs {
		if _, err := e.db.ExecContext(releaseCtx,
			"UPDATE session_players SET game_claim = NULL WHERE id = ? AND game_claim = ?", playerID, claim,
		); err != nil {
			e.metrics.IncCompensationFailed()
			logger.Error().
				Err(err).
				Str("player_id", playerID).
				Bool("reconciliation_required", true).
				Msg("Failed to release player claim")
		}
	}
}

func (e *Engine) removeGames(ctx context.Context, logger *zerolog.Logger, sessionID string, gameNumber int64) {
	if _, err := e.db.ExecContext(context.WithoutCancel(ctx),
		"DELETE FROM session_games WHERE session_id = ? AND game_number = ?", sessionID, gameNumber,
	); err != nil {
		e.metrics.IncCompensationFailed()
		logger.Error().
			Err(err).
			Int64("game_number", gameNumber).
			Bool("reconciliation_required", true).
			Msg("Failed to remove partially recorded game")
	}
}

func (e *Engine) writeGames(ctx context.Context, games []Game) error {
	err := e.db.RunInTx(ctx, func(tx *sql.Tx) error {
		for _, g := range games {
			teammates, err := json.Marshal(g.Teammates)
			if err != nil {
				return fmt.Errorf("encode teammates: %w", err)
			}
			opponents, err := json.Marshal(g.Opponents)
			if err != nil {
				return fmt.Errorf("encode opponents: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO session_games (session_id, player_id, game_number, court_id, status, teammates, opponents, started_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				g.SessionID, g.PlayerID, g.GameNumber, g.CourtID, g.Status, string(teammates), string(opponents), g.StartedAt,
			); err != nil {
				return apperr.Store("record game", err)
			}
		}
		return nil
	})
	return inTxErr("record game", err)
}

const playerColumns = "id, session_id, name, phone, game_claim, total_cost_minor, checked_in_at, checked_out_at"

func (e *Engine) getPlayer(ctx context.Context, sessionID, playerID string) (*Player, error) {
	row := e.db.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM session_players WHERE id = ? AND session_id = ?", playerID, sessionID,
	)
	p, err := scanPlayer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("player", playerID)
		}
		return nil, apperr.Store("load player", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (*Player, error) {
	var p Player
	var claim sql.NullString
	var totalMinor int64
	var checkedOut sql.NullTime
	if err := row.Scan(&p.ID, &p.SessionID, &p.Name, &p.Phone, &claim, &totalMinor, &p.CheckedInAt, &checkedOut); err != nil {
		return nil, err
	}
	p.Playing = claim.Valid
	p.TotalCost = money.FromMinor(totalMinor)
	if checkedOut.Valid {
		t := checkedOut.Time
		p.CheckedOutAt = &t
	}
	return &p, nil
}

const gameColumns = `session_id, player_id, game_number, court_id, status, teammates, opponents, items,
    total_items_cost_minor, cost_per_player_minor, started_at, finished_at`

func (e *Engine) getGame(ctx context.Context, sessionID, playerID string, gameNumber int64) (*Game, error) {
	games, err := e.listGames(ctx,
		"WHERE session_id = ? AND player_id = ? AND game_number = ?", sessionID, playerID, gameNumber,
	)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, apperr.NotFound("game", fmt.Sprintf("%s/%d", playerID, gameNumber))
	}
	return &games[0], nil
}

func (e *Engine) listGames(ctx context.Context, where string, args ...any) ([]Game, error) {
	rows, err := e.db.QueryContext(ctx, "SELECT "+gameColumns+" FROM session_games "+where, args...)
	if err != nil {
		return nil, apperr.Store("load games", err)
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		var g Game
		var teammates, opponents, items string
		var totalMinor, perPlayerMinor int64
		var finished sql.NullTime
		if err := rows.Scan(
			&g.SessionID, &g.PlayerID, &g.GameNumber, &g.CourtID, &g.Status, &teammates, &opponents, &items,
			&totalMinor, &perPlayerMinor, &g.StartedAt, &finished,
		); err != nil {
			return nil, apperr.Store("scan game", err)
		}
		if err := json.Unmarshal([]byte(teammates), &g.Teammates); err != nil {
			return nil, fmt.Errorf("decode teammates: %w", err)
		}
		if err := json.Unmarshal([]byte(opponents), &g.Opponents); err != nil {
			return nil, fmt.Errorf("decode opponents: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &g.Items); err != nil {
			return nil, fmt.Errorf("decode game items: %w", err)
		}
		g.TotalItemsCost = money.FromMinor(totalMinor)
		g.CostPerPlayer = money.FromMinor(perPlayerMinor)
		if finished.Valid {
			t := finished.Time
			g.FinishedAt = &t
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("load games", err)
	}
	return games, nil
}

// splitTeams puts the first half of the players (rounded up) on team A.
func splitTeams(playerIDs []string) (teamA, teamB []string) {
	half := (len(playerIDs) + 1) / 2
	teamA = append([]string(nil), playerIDs[:half]...)
	teamB = append([]string(nil), playerIDs[half:]...)
	return teamA, teamB
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// inTxErr keeps domain errors from a transaction and wraps driver failures
// from begin or commit.
func inTxErr(op string, err error) error {
	if err == nil || apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Store(op, err)
}
