package config

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Database wraps the sqlite connection used for the symbol registry, the
// closed-kline time series and a small system key-value config table.
type Database struct {
	db *sql.DB
}

// NewDatabase opens (creating if needed) the sqlite file at path and runs migrations.
func NewDatabase(path string) (*Database, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer, matches teacher's usage

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return d, nil
}

func (d *Database) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbols (
			symbol TEXT PRIMARY KEY,
			base_asset TEXT NOT NULL,
			quote_asset TEXT NOT NULL,
			added_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			open_time INTEGER NOT NULL,
			close_time INTEGER NOT NULL,
			open TEXT NOT NULL,
			high TEXT NOT NULL,
			low TEXT NOT NULL,
			close TEXT NOT NULL,
			volume TEXT NOT NULL,
			quote_volume TEXT NOT NULL,
			taker_buy_volume TEXT NOT NULL,
			trade_count INTEGER NOT NULL,
			closed INTEGER NOT NULL,
			PRIMARY KEY (symbol, interval, open_time)
		)`,
		`CREATE TABLE IF NOT EXISTS system_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := d.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// AddSymbol inserts a new symbol into the registry, ignoring duplicates.
func (d *Database) AddSymbol(symbol, base, quote string) error {
	_, err := d.db.Exec(
		`INSERT OR IGNORE INTO symbols (symbol, base_asset, quote_asset, added_at) VALUES (?, ?, ?, ?)`,
		symbol, base, quote, time.Now().UnixMilli(),
	)
	return err
}

// RemoveSymbol deletes a symbol from the registry.
func (d *Database) RemoveSymbol(symbol string) error {
	_, err := d.db.Exec(`DELETE FROM symbols WHERE symbol = ?`, symbol)
	return err
}

// ListSymbols returns every registered symbol, added-at ascending.
func (d *Database) ListSymbols() ([]string, error) {
	rows, err := d.db.Query(`SELECT symbol FROM symbols ORDER BY added_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetSystemConfig stores a single key-value pair, upserting on conflict.
func (d *Database) SetSystemConfig(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO system_config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetSystemConfig reads a key, returning ("", false) if unset.
func (d *Database) GetSystemConfig(key string) (string, bool, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM system_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// DB exposes the underlying connection for packages that need direct access
// (candles persistence runs its own prepared statements against it).
func (d *Database) DB() *sql.DB {
	return d.db
}
