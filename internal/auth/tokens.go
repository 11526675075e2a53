package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/obstacle-community/records/internal/rankcache"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	mpTokenLen  = 256
	webTokenLen = 32
)

// TokenPair carries the raw tokens returned to the two clients exactly
// once; only their SHA-256 hashes are stored.
type TokenPair struct {
	MPToken  string
	WebToken string
}

// GenerateTokenPair draws a fresh (mp_token, web_token) pair. Nothing is
// stored until StoreTokenPair runs, so a rendezvous that fails after
// generation leaves no trace.
func GenerateTokenPair() (*TokenPair, error) {
	mpToken, err := randomToken(mpTokenLen)
	if err != nil {
		return nil, fmt.Errorf("generating mp token: %w", err)
	}
	webToken, err := randomToken(webTokenLen)
	if err != nil {
		return nil, fmt.Errorf("generating web token: %w", err)
	}
	return &TokenPair{MPToken: mpToken, WebToken: webToken}, nil
}

// StoreTokenPair stores the pair's SHA-256 hashes for login with the given
// TTL. Storing again replaces the previous pair.
func StoreTokenPair(ctx context.Context, cache *rankcache.Cache, login string, pair *TokenPair, ttl time.Duration) error {
	return cache.StoreTokens(ctx, login, rankcache.HashToken(pair.MPToken), rankcache.HashToken(pair.WebToken), ttl)
}

// IssueTokens generates and stores a pair in one step.
func IssueTokens(ctx context.Context, cache *rankcache.Cache, login string, ttl time.Duration) (*TokenPair, error) {
	pair, err := GenerateTokenPair()
	if err != nil {
		return nil, err
	}
	if err := StoreTokenPair(ctx, cache, login, pair, ttl); err != nil {
		return nil, err
	}
	return pair, nil
}

// randomToken draws n characters from the token alphabet using the
// cryptographic source.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}
