package auth

import (
	"context"
	"time"

	"github.com/obstacle-community/records/internal/domain"
	"github.com/obstacle-community/records/internal/mysql"
	"github.com/obstacle-community/records/internal/rankcache"
)

// Checker validates bearer tokens and role masks on privileged requests.
type Checker struct {
	db    *mysql.DB
	cache *rankcache.Cache
}

// NewChecker creates an authorization checker
func NewChecker(db *mysql.DB, cache *rankcache.Cache) *Checker {
	return &Checker{db: db, cache: cache}
}

// CheckAuth verifies the game token for login and that the player's role
// covers requiredMask, returning the player id. A token mismatch is always
// reported as Unauthorized, never as which part was wrong; a current ban
// refuses the player regardless of role.
func (c *Checker) CheckAuth(ctx context.Context, login, token string, requiredMask uint8) (uint32, error) {
	ok, err := c.cache.CheckMPToken(ctx, login, token)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrUnauthorized()
	}
	return c.CheckAuthedRole(ctx, login, requiredMask)
}

// CheckWebAuth is CheckAuth for the website-facing token.
func (c *Checker) CheckWebAuth(ctx context.Context, login, token string, requiredMask uint8) (uint32, error) {
	ok, err := c.cache.CheckWebToken(ctx, login, token)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrUnauthorized()
	}
	return c.CheckAuthedRole(ctx, login, requiredMask)
}

// CheckAuthedRole runs the role and ban checks for a login whose token was
// already verified.
func (c *Checker) CheckAuthedRole(ctx context.Context, login string, requiredMask uint8) (uint32, error) {
	var playerID uint32
	err := c.db.View(ctx, func(tx *mysql.Tx) error {
		player, err := tx.PlayerByLogin(ctx, login)
		if err != nil {
			return err
		}
		ban, err := tx.CurrentBan(ctx, player.ID)
		if err != nil {
			return err
		}
		if ban != nil && ban.IsCurrent(time.Now()) {
			return domain.ErrBanned(ban)
		}
		role, err := tx.RoleByID(ctx, player.RoleID)
		if err != nil {
			return err
		}
		if !role.Allows(requiredMask) {
			return domain.ErrForbidden()
		}
		playerID = player.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return playerID, nil
}
