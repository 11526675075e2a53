package handler

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/webhook"
)

// modeVersion requires a well-formed ObstacleModeVersion header (x.y.z) on
// every game-facing route.
func (h *Handler) modeVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("ObstacleModeVersion")
		if raw == "" {
			h.writeError(w, r, &domain.Error{Kind: domain.KindModeVersionMissing})
			return
		}
		if !utf8.ValidString(raw) {
			h.writeError(w, r, &domain.Error{Kind: domain.KindModeVersionEncoding})
			return
		}
		if !validModeVersion(raw) {
			h.writeError(w, r, &domain.Error{Kind: domain.KindModeVersionParse})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validModeVersion accepts exactly three dot-separated decimal components.
func validModeVersion(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		if _, err := strconv.ParseUint(part, 10, 16); err != nil {
			return false
		}
	}
	return true
}

// gameAgentRe matches the agent string the game client sends:
// ManiaPlanet/M.m.p (client; rv: YYYY-MM-DD_HH_MM; context: ...; distro: ...;)
// with a desktop client token and an out-of-title context.
var gameAgentRe = regexp.MustCompile(
	`^ManiaPlanet/\d+\.\d+\.\d+ \((Win64|Win32|Linux); rv: \d{4}-\d{2}-\d{2}_\d{2}_\d{2}; context: ([^;]*); distro: [^;]+;\)$`)

func validGameAgent(ua string) bool {
	m := gameAgentRe.FindStringSubmatch(ua)
	return m != nil && m[2] == "none"
}

// maniaPlanetOnly rejects requests whose User-Agent is not the game client.
// Rejections are reported to the moderation webhook before the refusal.
func (h *Handler) maniaPlanetOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		if !validGameAgent(ua) {
			h.notifier.NotifyInvalidRequest(webhook.InvalidRequest{
				RequestID: middleware.GetReqID(r.Context()),
				Route:     r.Method + " " + r.URL.Path,
				UserAgent: ua,
				Reason:    "user agent is not the game client",
				Login:     r.Header.Get("Login"),
			})
			h.writeError(w, r, domain.ErrForbidden())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func timeFromUnix(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}
