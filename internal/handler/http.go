package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/obstacle-community/records/internal/auth"
	"github.com/obstacle-community/records/internal/config"
	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/rankcache"
	"github.com/obstacle-community/records/internal/service"
	"github.com/obstacle-community/records/internal/webhook"
	"github.com/obstacle-community/records/internal/websocket"
)

// VerifyFunc checks a browser-delivered OAuth code for a login during the
// auth rendezvous.
type VerifyFunc func(login, code string) bool

// Handler provides the game-facing HTTP API
type Handler struct {
	records  *service.RecordsService
	checker  *auth.Checker
	rdv      *auth.Rendezvous
	cache    *rankcache.Cache
	notifier *webhook.Notifier
	hub      *websocket.Hub
	cfg      *config.Config
	verify   VerifyFunc
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	records *service.RecordsService,
	checker *auth.Checker,
	rdv *auth.Rendezvous,
	cache *rankcache.Cache,
	notifier *webhook.Notifier,
	hub *websocket.Hub,
	cfg *config.Config,
	verify VerifyFunc,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		records:  records,
		checker:  checker,
		rdv:      rdv,
		cache:    cache,
		notifier: notifier,
		hub:      hub,
		cfg:      cfg,
		verify:   verify,
		logger:   logger,
	}
}

// ErrorBody is the JSON error envelope returned on every failed request.
type ErrorBody struct {
	RequestID string `json:"request_id"`
	Type      int    `json:"type"`
	Message   string `json:"message"`
}

// Router creates and configures the HTTP router. gql, when non-nil, is
// mounted at /graphql for the website.
func (h *Handler) Router(gql http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)

	// WebSocket endpoint for live record updates
	r.Get("/ws", h.HandleWebSocket)

	// Game-facing routes
	r.Group(func(r chi.Router) {
		r.Use(h.maniaPlanetOnly)
		r.Use(h.modeVersion)

		r.Post("/player/finished", h.Finished)
		r.Post("/event/{handle}/{edition}/player/finished", h.EventFinished)
		r.Post("/staggered/player/finished", h.StaggeredFinished)
		r.Get("/overview", h.Overview)
		r.Get("/pb", h.PersonalBest)
		r.Get("/player/get_token", h.GetToken)
	})

	// Browser side of the auth rendezvous
	r.Post("/player/give_token", h.GiveToken)

	if gql != nil {
		r.Handle("/graphql", gql)
	}

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Login, Token, ObstacleModeVersion")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError renders the error envelope. The numeric type is the stable
// enum value of the failure kind; rendezvous failures occupy a distinct
// range above 100.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	var se *domain.StateError
	if errors.As(err, &se) {
		h.writeJSON(w, se.HTTPStatus(), ErrorBody{
			RequestID: requestID,
			Type:      100 + int(se.Kind),
			Message:   se.Error(),
		})
		return
	}

	de, ok := domain.AsError(err)
	if !ok {
		de = &domain.Error{Kind: domain.KindInternal, Err: err}
	}
	status := de.HTTPStatus()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "request_id", requestID, "error", err)
	}
	h.writeJSON(w, status, ErrorBody{
		RequestID: requestID,
		Type:      int(de.Kind),
		Message:   de.Error(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// authedPlayer resolves the Login/Token headers to a player id with the
// player privilege, or writes the failure and reports false.
func (h *Handler) authedPlayer(w http.ResponseWriter, r *http.Request) (string, uint32, bool) {
	login := r.Header.Get("Login")
	token := r.Header.Get("Token")
	if login == "" || token == "" {
		h.writeError(w, r, domain.ErrUnauthorized())
		return "", 0, false
	}

	playerID, err := h.checker.CheckAuth(r.Context(), login, token, domain.PrivPlayer)
	if err != nil {
		h.writeError(w, r, err)
		return "", 0, false
	}
	return login, playerID, true
}

// Finished ingests a finish on the global leaderboards
func (h *Handler) Finished(w http.ResponseWriter, r *http.Request) {
	login, _, ok := h.authedPlayer(w, r)
	if !ok {
		return
	}

	var req domain.FinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidFinish("malformed request body"))
		return
	}

	result, err := h.records.Finish(r.Context(), login, r.Header.Get("PlayerName"), &req, domain.EventScope{}, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// EventFinished ingests a finish scoped to an event edition
func (h *Handler) EventFinished(w http.ResponseWriter, r *http.Request) {
	login, _, ok := h.authedPlayer(w, r)
	if !ok {
		return
	}

	editionID, err := strconv.ParseUint(chi.URLParam(r, "edition"), 10, 32)
	if err != nil {
		h.writeError(w, r, domain.ErrEventEditionNotFound())
		return
	}
	scope, edition, err := h.records.ResolveScope(r.Context(), chi.URLParam(r, "handle"), uint32(editionID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req domain.FinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidFinish("malformed request body"))
		return
	}

	result, err := h.records.Finish(r.Context(), login, r.Header.Get("PlayerName"), &req, scope, edition)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// staggeredFinish wraps a finish with the server-time overlay recorded when
// the game client first attempted the submission.
type staggeredFinish struct {
	ReqTstp int64                `json:"req_tstp"`
	Body    domain.FinishRequest `json:"body"`
}

// StaggeredFinished ingests a finish that was queued client-side, dating
// the record at the original submission time.
func (h *Handler) StaggeredFinished(w http.ResponseWriter, r *http.Request) {
	login, _, ok := h.authedPlayer(w, r)
	if !ok {
		return
	}

	var wrapped staggeredFinish
	if err := json.NewDecoder(r.Body).Decode(&wrapped); err != nil {
		h.writeError(w, r, domain.ErrInvalidFinish("malformed request body"))
		return
	}
	if wrapped.ReqTstp <= 0 {
		h.writeError(w, r, domain.ErrInvalidFinish("missing request timestamp"))
		return
	}
	req := wrapped.Body
	req.RecordedAt = timeFromUnix(wrapped.ReqTstp)

	result, err := h.records.Finish(r.Context(), login, r.Header.Get("PlayerName"), &req, domain.EventScope{}, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Overview returns the page of the leaderboard around the caller
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	login, _, ok := h.authedPlayer(w, r)
	if !ok {
		return
	}
	mapUID := r.URL.Query().Get("map_uid")
	if mapUID == "" {
		h.writeError(w, r, domain.ErrMapNotFound())
		return
	}

	scope, err := h.queryScope(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rows, err := h.records.Overview(r.Context(), mapUID, login, scope)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"response": rows})
}

// PersonalBest returns the caller's best record and its checkpoint splits
func (h *Handler) PersonalBest(w http.ResponseWriter, r *http.Request) {
	login, _, ok := h.authedPlayer(w, r)
	if !ok {
		return
	}
	mapUID := r.URL.Query().Get("map_uid")
	if mapUID == "" {
		h.writeError(w, r, domain.ErrMapNotFound())
		return
	}

	scope, err := h.queryScope(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	record, cps, err := h.records.PersonalBest(r.Context(), mapUID, login, scope)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"record": record,
		"cps":    cps,
	})
}

// queryScope resolves optional event/edition query parameters.
func (h *Handler) queryScope(r *http.Request) (domain.EventScope, error) {
	handle := r.URL.Query().Get("event")
	if handle == "" {
		return domain.EventScope{}, nil
	}
	editionID, err := strconv.ParseUint(r.URL.Query().Get("edition"), 10, 32)
	if err != nil {
		return domain.EventScope{}, domain.ErrEventEditionNotFound()
	}
	scope, _, err := h.records.ResolveScope(r.Context(), handle, uint32(editionID))
	return scope, err
}
