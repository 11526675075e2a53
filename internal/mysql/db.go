package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/obstacle-community/records/internal/config"
)

// DB provides MySQL-based data access. It is the source of truth; the Redis
// rank cache is derived from it and can be rebuilt at any time.
type DB struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New opens a connection pool from the configured DSN
func New(cfg *config.MySQLConfig, logger *slog.Logger) (*DB, error) {
	db, err := sqlx.Open("mysql", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("opening mysql: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to mysql: %w", err)
	}

	return &DB{db: db, logger: logger}, nil
}

// NewFromDB wraps an already-open pool. Tests use it to back the store
// with a mock driver.
func NewFromDB(db *sqlx.DB, logger *slog.Logger) *DB {
	return &DB{db: db, logger: logger}
}

// Close closes the connection pool
func (d *DB) Close() error {
	return d.db.Close()
}

// Tx is the read-only transaction surface. Every read accessor is a method
// on *Tx, so read-only code paths cannot begin writes.
type Tx struct {
	q sqlx.ExtContext
}

// WriteTx extends Tx with the write accessors. Only Update hands one out.
type WriteTx struct {
	Tx
}

// View runs fn inside a read-only transaction
func (d *DB) View(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("beginning read tx: %w", err)
	}
	if err := fn(&Tx{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing read tx: %w", err)
	}
	return nil
}

// Update runs fn inside a read-write transaction, rolling back on error
func (d *DB) Update(ctx context.Context, fn func(tx *WriteTx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning write tx: %w", err)
	}
	if err := fn(&WriteTx{Tx{q: tx}}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing write tx: %w", err)
	}
	return nil
}

// LockTablesRead pins a connection, takes table-level read locks for the
// duration of fn, and releases them afterwards. MySQL commits any open
// transaction on LOCK TABLES, so fn gets a plain connection-backed reader
// rather than a transaction.
func (d *DB) LockTablesRead(ctx context.Context, fn func(tx *Tx) error, tables ...string) error {
	conn, err := d.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	locks := make([]string, len(tables))
	for i, t := range tables {
		locks[i] = t + " READ"
	}
	if _, err := conn.ExecContext(ctx, "LOCK TABLES "+strings.Join(locks, ", ")); err != nil {
		return fmt.Errorf("locking tables: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "UNLOCK TABLES"); err != nil {
			d.logger.Error("failed to unlock tables", "error", err)
		}
	}()

	return fn(&Tx{q: conn})
}

// RunMigrations executes the schema bootstrap
func (d *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS role (
			id TINYINT UNSIGNED PRIMARY KEY,
			role_name VARCHAR(30) NOT NULL,
			privileges TINYINT UNSIGNED NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS players (
			id INT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			login VARCHAR(100) NOT NULL,
			name VARCHAR(255) NOT NULL,
			join_date DATETIME NULL,
			zone_path VARCHAR(255) NULL,
			role_id TINYINT UNSIGNED NOT NULL DEFAULT 1,
			score DOUBLE NOT NULL DEFAULT 0,
			UNIQUE KEY uq_players_login (login)
		)`,
		`CREATE TABLE IF NOT EXISTS maps (
			id INT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			game_id VARCHAR(64) NOT NULL,
			player_id INT UNSIGNED NOT NULL,
			name VARCHAR(255) NOT NULL,
			cps_number INT UNSIGNED NULL,
			linked_map INT UNSIGNED NULL,
			bronze_time BIGINT NULL,
			silver_time BIGINT NULL,
			gold_time BIGINT NULL,
			author_time BIGINT NULL,
			UNIQUE KEY uq_maps_game_id (game_id)
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			record_id INT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			map_id INT UNSIGNED NOT NULL,
			record_player_id INT UNSIGNED NOT NULL,
			time BIGINT NOT NULL,
			respawn_count INT NOT NULL,
			flags INT UNSIGNED NOT NULL DEFAULT 682,
			record_date DATETIME(3) NOT NULL,
			is_hidden TINYINT(1) NOT NULL DEFAULT 0,
			KEY idx_records_map_player (map_id, record_player_id, time),
			KEY idx_records_date (record_date)
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoint_times (
			cp_num INT UNSIGNED NOT NULL,
			map_id INT UNSIGNED NOT NULL,
			record_id INT UNSIGNED NOT NULL,
			time BIGINT NOT NULL,
			PRIMARY KEY (record_id, map_id, cp_num)
		)`,
		`CREATE TABLE IF NOT EXISTS event (
			id INT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			handle VARCHAR(100) NOT NULL,
			cooldown TINYINT UNSIGNED NULL,
			UNIQUE KEY uq_event_handle (handle)
		)`,
		`CREATE TABLE IF NOT EXISTS event_edition (
			id INT UNSIGNED NOT NULL,
			event_id INT UNSIGNED NOT NULL,
			name VARCHAR(255) NOT NULL,
			start_date DATETIME NOT NULL,
			ttl BIGINT NULL,
			is_transparent TINYINT(1) NOT NULL DEFAULT 0,
			save_non_event_record TINYINT(1) NOT NULL DEFAULT 1,
			PRIMARY KEY (event_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS event_edition_maps (
			event_id INT UNSIGNED NOT NULL,
			edition_id INT UNSIGNED NOT NULL,
			map_id INT UNSIGNED NOT NULL,
			bitset_is_available TINYINT(1) NOT NULL DEFAULT 1,
			is_disabled TINYINT(1) NOT NULL DEFAULT 0,
			source VARCHAR(255) NULL,
			PRIMARY KEY (event_id, edition_id, map_id)
		)`,
		`CREATE TABLE IF NOT EXISTS event_edition_records (
			record_id INT UNSIGNED PRIMARY KEY,
			event_id INT UNSIGNED NOT NULL,
			edition_id INT UNSIGNED NOT NULL,
			KEY idx_eer_edition (event_id, edition_id)
		)`,
		`CREATE TABLE IF NOT EXISTS banishments (
			id INT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			player_id INT UNSIGNED NOT NULL,
			date_ban DATETIME NOT NULL,
			duration BIGINT NULL,
			reason VARCHAR(255) NOT NULL DEFAULT '',
			was_reprieved TINYINT(1) NOT NULL DEFAULT 0,
			banished_by INT UNSIGNED NOT NULL,
			KEY idx_banishments_player (player_id)
		)`,
		`CREATE OR REPLACE VIEW current_bans AS
			SELECT id, player_id, date_ban, duration, reason, was_reprieved, banished_by
			FROM banishments
			WHERE was_reprieved = 0
			AND (duration IS NULL OR date_ban + INTERVAL duration SECOND > NOW())`,
		`INSERT IGNORE INTO role (id, role_name, privileges) VALUES
			(1, 'player', 1), (2, 'mod', 3), (3, 'admin', 255)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	d.logger.Info("database schema ready")
	return nil
}
