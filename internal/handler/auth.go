package handler

import (
	"encoding/json"
	"net/http"

	"github.com/obstacle-community/records/internal/auth"
	"github.com/obstacle-community/records/internal/domain"
)

// GetToken is the game side of the auth rendezvous. Without a state_id it
// opens a fresh rendezvous and returns the state for the browser redirect;
// with one it long-polls for the browser's code, settles the rendezvous and
// returns the raw game token exactly once.
func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	login := r.URL.Query().Get("login")
	if login == "" {
		h.writeError(w, r, domain.ErrUnauthorized())
		return
	}

	stateID := r.URL.Query().Get("state_id")
	if stateID == "" {
		state, err := h.rdv.RequestAuth(r.RemoteAddr)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"state_id": string(state)})
		return
	}

	state := auth.StateID(stateID)
	code, err := h.rdv.WaitForOAuth(r.Context(), state, func(code string) bool {
		return h.verify(login, code)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	pair, err := auth.GenerateTokenPair()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.rdv.ValidateCode(state, code, pair.WebToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := auth.StoreTokenPair(r.Context(), h.cache, login, pair, h.cfg.Auth.TokenTTL); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"token": pair.MPToken})
}

type giveTokenRequest struct {
	StateID string `json:"state_id"`
	Code    string `json:"code"`
}

// GiveToken is the browser side of the auth rendezvous: it delivers the
// OAuth code to the waiting game client and blocks until the game settles
// the exchange, returning the raw web token exactly once.
func (h *Handler) GiveToken(w http.ResponseWriter, r *http.Request) {
	var req giveTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, &domain.StateError{Kind: domain.StateInvalidAuthState})
		return
	}
	if req.StateID == "" || req.Code == "" {
		h.writeError(w, r, &domain.StateError{Kind: domain.StateNotReceived})
		return
	}

	state := auth.StateID(req.StateID)
	if err := h.rdv.NotifyInGame(state, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}

	webToken, err := h.rdv.WaitCodeValidation(r.Context(), state)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": webToken})
}
