package mysql

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestEnsurePlayerUpserts(t *testing.T) {
	_, wtx, mock := newMockTx(t)
	ctx := context.Background()

	// a single statement both inserts and resolves an existing login, so
	// two clients racing on a fresh login cannot double-insert
	mock.ExpectExec(`INSERT INTO players .+ ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID\(id\)`).
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := wtx.EnsurePlayer(ctx, "smokegun", "Smokegun")
	assert.NoError(t, err)
	assert.Equal(t, uint32(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsurePlayerExistingLogin(t *testing.T) {
	_, wtx, mock := newMockTx(t)
	ctx := context.Background()

	// duplicate key path: the driver reports the existing row's id
	mock.ExpectExec(`INSERT INTO players .+ ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID\(id\)`).
		WillReturnResult(sqlmock.NewResult(3, 2))

	id, err := wtx.EnsurePlayer(ctx, "smokegun", "Smokegun")
	assert.NoError(t, err)
	assert.Equal(t, uint32(3), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentBan(t *testing.T) {
	tx, _, mock := newMockTx(t)
	ctx := context.Background()
	dateBan := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM current_bans WHERE player_id = \?`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "player_id", "date_ban", "duration", "reason", "was_reprieved", "banished_by"}).
			AddRow(1, 7, dateBan, nil, "cheating", false, 2))

	ban, err := tx.CurrentBan(ctx, 7)
	assert.NoError(t, err)
	if assert.NotNil(t, ban) {
		assert.Equal(t, "cheating", ban.Reason)
		assert.Nil(t, ban.Duration)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentBanNone(t *testing.T) {
	tx, _, mock := newMockTx(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT .+ FROM current_bans WHERE player_id = \?`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "player_id", "date_ban", "duration", "reason", "was_reprieved", "banished_by"}))

	ban, err := tx.CurrentBan(ctx, 7)
	assert.NoError(t, err)
	assert.Nil(t, ban)
	assert.NoError(t, mock.ExpectationsWereMet())
}
