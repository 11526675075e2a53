package mysql

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/obstacle-community/records/internal/domain"
)

// newMockStore backs the store with a mock driver so the query shapes can
// be checked without a server.
func newMockStore(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	db := sqlx.NewDb(raw, "sqlmock")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFromDB(db, logger), mock
}

// newMockTx hands out the transaction surfaces directly, skipping the
// begin/commit ceremony for accessor-level tests.
func newMockTx(t *testing.T) (*Tx, *WriteTx, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	db := sqlx.NewDb(raw, "sqlmock")
	return &Tx{q: db}, &WriteTx{Tx{q: db}}, mock
}

func TestScopeFilterGlobal(t *testing.T) {
	filter, args := scopeFilter(domain.EventScope{})
	assert.Contains(t, filter, "NOT EXISTS")
	assert.Contains(t, filter, "is_transparent = 0")
	assert.Empty(t, args)
}

func TestScopeFilterEvent(t *testing.T) {
	filter, args := scopeFilter(domain.EventScope{EventID: 4, EditionID: 2})
	assert.Contains(t, filter, "EXISTS")
	assert.NotContains(t, filter, "NOT EXISTS")
	assert.Equal(t, []interface{}{uint32(4), uint32(2)}, args)
}

func TestBestTime(t *testing.T) {
	tx, _, mock := newMockTx(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT MIN\(r\.time\) FROM records r`).
		WithArgs(10, 7).
		WillReturnRows(sqlmock.NewRows([]string{"MIN(r.time)"}).AddRow(41370))

	best, ok, err := tx.BestTime(ctx, 10, 7, domain.EventScope{})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(41370), best)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBestTimeNoRecord(t *testing.T) {
	tx, _, mock := newMockTx(t)
	ctx := context.Background()

	// MIN over zero rows yields a NULL, not an empty result set
	mock.ExpectQuery(`SELECT MIN\(r\.time\) FROM records r`).
		WithArgs(10, 7).
		WillReturnRows(sqlmock.NewRows([]string{"MIN(r.time)"}).AddRow(nil))

	_, ok, err := tx.BestTime(ctx, 10, 7, domain.EventScope{})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBestTimeEventScopeBindsEdition(t *testing.T) {
	tx, _, mock := newMockTx(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT MIN\(r\.time\) FROM records r`).
		WithArgs(10, 7, 4, 2).
		WillReturnRows(sqlmock.NewRows([]string{"MIN(r.time)"}).AddRow(52000))

	best, ok, err := tx.BestTime(ctx, 10, 7, domain.EventScope{EventID: 4, EditionID: 2})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(52000), best)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRankedPlayers(t *testing.T) {
	tx, _, mock := newMockTx(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT COUNT\(DISTINCT r\.record_player_id\) FROM records r`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(38))

	count, err := tx.CountRankedPlayers(ctx, 10, domain.EventScope{})
	assert.NoError(t, err)
	assert.Equal(t, int64(38), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordReturnsID(t *testing.T) {
	_, wtx, mock := newMockTx(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO records`).
		WillReturnResult(sqlmock.NewResult(512, 1))

	rec := &domain.Record{MapID: 10, PlayerID: 7, Time: 41370}
	id, err := wtx.InsertRecord(ctx, rec)
	assert.NoError(t, err)
	assert.Equal(t, uint32(512), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRollsBackOnError(t *testing.T) {
	db, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.Update(ctx, func(tx *WriteTx) error {
		return domain.ErrBanned(nil)
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
