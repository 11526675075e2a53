package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/obstacle-community/records/internal/config"
	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/webhook"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := webhook.NewNotifier(&config.WebhookConfig{}, logger)
	return NewHandler(nil, nil, nil, nil, notifier, nil, config.DefaultConfig(), nil, logger)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func errorType(t *testing.T, body io.Reader) int {
	t.Helper()
	var eb ErrorBody
	if err := json.NewDecoder(body).Decode(&eb); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return eb.Type
}

func TestValidModeVersion(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"2.7.3", true},
		{"0.0.0", true},
		{"10.20.30", true},
		{"", false},
		{"2.7", false},
		{"2.7.3.1", false},
		{"2..3", false},
		{"2.7.x", false},
		{"-1.0.0", false},
		{"2.7.99999", false}, // component exceeds 16 bits
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, validModeVersion(tt.raw), "version %q", tt.raw)
	}
}

func TestModeVersionMiddleware(t *testing.T) {
	h := newTestHandler(t)
	mw := h.modeVersion(okHandler())

	tests := []struct {
		name     string
		version  string
		set      bool
		wantType int
	}{
		{"missing header", "", false, int(domain.KindModeVersionMissing)},
		{"bad encoding", "2.7.\xff", true, int(domain.KindModeVersionEncoding)},
		{"unparseable", "latest", true, int(domain.KindModeVersionParse)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/overview", nil)
			if tt.set {
				req.Header.Set("ObstacleModeVersion", tt.version)
			}
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantType, errorType(t, rec.Body))
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/overview", nil)
	req.Header.Set("ObstacleModeVersion", "2.7.3")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidGameAgent(t *testing.T) {
	tests := []struct {
		ua   string
		want bool
	}{
		{"ManiaPlanet/3.3.0 (Win64; rv: 2019-11-19_18_50; context: none; distro: UNKNOWN;)", true},
		{"ManiaPlanet/3.3.0 (Win32; rv: 2019-11-19_18_50; context: none; distro: UNKNOWN;)", true},
		{"ManiaPlanet/3.3.0 (Linux; rv: 2019-11-19_18_50; context: none; distro: Ubuntu;)", true},
		{"", false},
		{"Mozilla/5.0", false},
		{"ManiaPlanet/3.3.0", false},
		// wrong client token
		{"ManiaPlanet/3.3.0 (OSX; rv: 2019-11-19_18_50; context: none; distro: UNKNOWN;)", false},
		// launched inside a title, not from the station
		{"ManiaPlanet/3.3.0 (Win64; rv: 2019-11-19_18_50; context: SMStorm; distro: UNKNOWN;)", false},
		// malformed revision stamp
		{"ManiaPlanet/3.3.0 (Win64; rv: yesterday; context: none; distro: UNKNOWN;)", false},
		{"ManiaPlanet/3.3.0 (Win64; rv: 2019-11-19_18_50; context: none; distro: UNKNOWN;) extra", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, validGameAgent(tt.ua), "agent %q", tt.ua)
	}
}

func TestManiaPlanetOnly(t *testing.T) {
	h := newTestHandler(t)
	mw := h.maniaPlanetOnly(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/overview", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, int(domain.KindForbidden), errorType(t, rec.Body))

	req = httptest.NewRequest(http.MethodGet, "/overview", nil)
	req.Header.Set("User-Agent", "ManiaPlanet/3.3.0 (Win64; rv: 2019-11-19_18_50; context: none; distro: UNKNOWN;)")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
