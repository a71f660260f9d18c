// apps/go-server/internal/httpserver/server.go
//
// HTTP server wiring for the Simon backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Launch endpoint: POST /launch runs the difficulty/start handshake
//     against the MQTT broker for the physical game.
//   - Game endpoints: POST /game/new, /game/round, /game/input, /game/reset,
//     GET /game/{id}, plus the websocket display stream /game/{id}/watch.
//   - Score endpoints: POST /game/score persists a finished game,
//     GET /scores serves the high-score table.
//   - Tag endpoint: POST /tags/scan records an NFC passage.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled.
//   - Games are guests-only and anonymous; only final scores are persisted.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/treliann/simon/apps/go-server/internal/game"
	"github.com/treliann/simon/apps/go-server/internal/launch"
	"github.com/treliann/simon/apps/go-server/internal/scores"
	"github.com/treliann/simon/apps/go-server/internal/store"
	"github.com/treliann/simon/apps/go-server/internal/tags"
)

// Launcher is the slice of the coordinator the server needs; tests plug in
// fakes.
type Launcher interface {
	Launch(ctx context.Context, d game.Difficulty) error
}

// Server bundles router, live-game registry, score store, tag recorder, and
// the launch coordinator.
type Server struct {
	r          *chi.Mux
	games      store.Store
	scores     *scores.Store
	tags       *tags.Recorder
	launcher   Launcher
	hubs       *hubManager
	engineOpts []game.Option
}

// New constructs a Server, installs middleware, and registers routes.
// engineOpts are applied to every engine the server creates (tests use them
// to take over timing and randomness).
func New(games store.Store, sc *scores.Store, rec *tags.Recorder, l Launcher, engineOpts ...game.Option) *Server {
	s := &Server{
		r:          chi.NewRouter(),
		games:      games,
		scores:     sc,
		tags:       rec,
		launcher:   l,
		hubs:       newHubManager(),
		engineOpts: engineOpts,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(corsFromEnv)                     // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"simon-go","endpoints":["/health","POST /launch","POST /game/new","GET /scores"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	// Launch handshake for the physical game
	s.r.Post("/launch", s.handleLaunch)

	// Browser game endpoints
	s.r.Post("/game/new", s.handleNewGame)
	s.r.Post("/game/round", s.handleStartRound)
	s.r.Post("/game/input", s.handleInput)
	s.r.Post("/game/reset", s.handleReset)
	s.r.Post("/game/score", s.handleSaveScore)
	s.r.Get("/game/{id}", s.handleGetGame)
	s.r.Get("/game/{id}/watch", s.handleWatch)

	// High scores + NFC passages
	s.r.Get("/scores", s.handleTopScores)
	s.r.Post("/tags/scan", s.handleTagScan)

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromEnv enables credentialed CORS for a single origin.
// Uses CLIENT_ORIGIN env var; defaults to http://localhost:5173.
func corsFromEnv(next http.Handler) http.Handler {
	origin := os.Getenv("CLIENT_ORIGIN")
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ LAUNCH --------------------------------------

// launchReq/Res payloads for POST /launch.
type launchReq struct {
	Difficulty string `json:"difficulty"` // "easy" | "medium" | "hard"
}
type launchRes struct {
	Status string `json:"status"`
}

// handleLaunch maps the chosen difficulty to its wire code and runs the
// two-message handshake. A half-finished launch is reported as an error; the
// client retries the whole launch, never just the start message.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req launchReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	d, err := game.ParseDifficulty(req.Difficulty)
	if err != nil {
		http.Error(w, `{"error":"unknown_difficulty"}`, http.StatusBadRequest)
		return
	}

	if err := s.launcher.Launch(r.Context(), d); err != nil {
		log.Error().Err(err).Str("difficulty", d.String()).Msg("launch failed")
		var lerr *launch.Error
		if errors.As(err, &lerr) {
			_ = encodeError(w, http.StatusBadGateway, map[string]string{
				"error": "launch_failed",
				"kind":  string(lerr.Kind),
				"stage": string(lerr.Stage),
			})
			return
		}
		http.Error(w, `{"error":"launch_failed"}`, http.StatusBadGateway)
		return
	}

	log.Info().Str("difficulty", d.String()).Int("code", d.Code()).Msg("game launched")
	_ = json.NewEncoder(w).Encode(launchRes{Status: "started"})
}

// ------------------------------ GAME ---------------------------------------

// newGameReq/Res payloads for POST /game/new.
type newGameReq struct {
	Difficulty string `json:"difficulty"`
}
type newGameRes struct {
	GameID string `json:"gameId"`
}

// handleNewGame creates an idle engine and registers it in the live-game
// store. Playback events are routed to the game's display hub.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	d, err := game.ParseDifficulty(req.Difficulty)
	if err != nil {
		http.Error(w, `{"error":"unknown_difficulty"}`, http.StatusBadRequest)
		return
	}

	var eng *game.Engine
	opts := append([]game.Option{}, s.engineOpts...)
	opts = append(opts, game.WithNotify(func(ev game.Event) {
		s.hubs.Broadcast(eng.ID(), ev)
	}))
	eng = game.New(d, opts...)

	if err := s.games.Save(r.Context(), eng); err != nil {
		log.Error().Err(err).Msg("save game")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(newGameRes{GameID: eng.ID()})
}

// gameReq identifies a live game for the round/input/reset endpoints.
type gameReq struct {
	GameID string `json:"gameId"`
	Color  int    `json:"color"`
}

// stateRes carries the engine snapshot plus whether the request took effect.
type stateRes struct {
	Accepted bool          `json:"accepted"`
	Game     game.Snapshot `json:"game"`
}

// lookupGame decodes the body and resolves the engine, writing the error
// response itself when something is off.
func (s *Server) lookupGame(w http.ResponseWriter, r *http.Request) (*game.Engine, *gameReq, bool) {
	var req gameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return nil, nil, false
	}
	eng, err := s.games.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return nil, nil, false
	}
	return eng, &req, true
}

// handleStartRound begins the next round (valid from idle or round complete).
func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := s.lookupGame(w, r)
	if !ok {
		return
	}
	snap, accepted := eng.StartRound()
	_ = json.NewEncoder(w).Encode(stateRes{Accepted: accepted, Game: snap})
}

// handleInput submits one color press. A drop (wrong phase, out-of-range
// color) is not an error — the snapshot tells the client what's going on.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	eng, req, ok := s.lookupGame(w, r)
	if !ok {
		return
	}
	snap, accepted := eng.Submit(req.Color)
	_ = json.NewEncoder(w).Encode(stateRes{Accepted: accepted, Game: snap})
}

// handleReset returns the game to idle.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	eng, _, ok := s.lookupGame(w, r)
	if !ok {
		return
	}
	snap := eng.Reset()
	_ = json.NewEncoder(w).Encode(stateRes{Accepted: true, Game: snap})
}

// handleGetGame serves a read-only snapshot.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	eng, err := s.games.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(eng.Snapshot())
}

// handleWatch attaches a display client to the game's event stream.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.games.Get(r.Context(), id); err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	s.hubs.serveWatch(w, r, id)
}

// ------------------------------ SCORES --------------------------------------

// saveScoreReq payload for POST /game/score.
type saveScoreReq struct {
	GameID     string `json:"gameId"`
	PlayerName string `json:"playerName"`
}

// handleSaveScore persists the final record of a finished game. Games that
// are still running are a conflict; zero scores are skipped by design and
// reported as such.
func (s *Server) handleSaveScore(w http.ResponseWriter, r *http.Request) {
	var req saveScoreReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	eng, err := s.games.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}

	if eng.State() != game.StateGameOver {
		http.Error(w, `{"error":"game_not_over"}`, http.StatusConflict)
		return
	}
	rec, ok := eng.Record(req.PlayerName)
	if !ok {
		// Finished with zero score: nothing to persist.
		_ = json.NewEncoder(w).Encode(map[string]bool{"saved": false})
		return
	}
	if err := s.scores.Insert(r.Context(), rec); err != nil {
		log.Error().Err(err).Str("gameId", req.GameID).Msg("insert score")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"saved": true, "record": rec})
}

// handleTopScores serves the high-score table (default top 10).
func (s *Server) handleTopScores(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	rows, err := s.scores.Top(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("load high scores")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(rows)
}

// ------------------------------- TAGS ---------------------------------------

// tagScanReq payload for POST /tags/scan.
type tagScanReq struct {
	TagUID string `json:"tagUid"`
}

// handleTagScan records one NFC passage event.
func (s *Server) handleTagScan(w http.ResponseWriter, r *http.Request) {
	var req tagScanReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if err := s.tags.OnTagScanned(r.Context(), req.TagUID); err != nil {
		if errors.Is(err, tags.ErrEmptyTag) {
			http.Error(w, `{"error":"empty_tag"}`, http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("record passage")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// ------------------------------- small util --------------------------------

// encodeError writes a JSON body with the given status.
func encodeError(w http.ResponseWriter, status int, body any) error {
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}
