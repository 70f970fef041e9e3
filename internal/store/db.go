// Package store implements the Postgres-backed persistence layer:
// token/pool registries, the trade sink, the pool-state & price engine,
// the OHLCV aggregator, matrix rollups, and the index watermark.
//
// Grounded on dbSaveService/database.DB: plain database/sql + lib/pq,
// hand-built multi-row INSERT ... VALUES (...) ON CONFLICT statements,
// chunked at a fixed row cap, one statement per batch (spec §5: "every
// multi-row write uses a single statement per batch; unique-index
// conflicts are the only expected concurrency failure").
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the pool of Postgres connections and owns schema creation.
type DB struct {
	Conn *sql.DB
}

// Open connects to Postgres at dsn and ensures the schema exists.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	db := &DB{Conn: conn}
	if err := db.createSchema(); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.Conn.Close()
}

// createSchema creates every table this pipeline owns if it does not
// already exist. Constraints match spec §6 bit-exactly where stated.
func (db *DB) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dex_catalogue (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			factory_contract TEXT NOT NULL UNIQUE,
			chain_id BIGINT NOT NULL DEFAULT 0
		)`,
		`INSERT INTO dex_catalogue (id, name, factory_contract, chain_id)
			VALUES (0, 'UnknownDEX', '', 0)
			ON CONFLICT (id) DO NOTHING`,
		`CREATE TABLE IF NOT EXISTS tokens (
			id SERIAL PRIMARY KEY,
			denom TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL DEFAULT 'factory',
			name TEXT,
			symbol TEXT,
			display TEXT,
			exponent INT NOT NULL DEFAULT 6 CHECK (exponent >= 0 AND exponent <= 30),
			total_supply TEXT,
			twitter TEXT,
			telegram TEXT,
			website TEXT,
			holder_count BIGINT,
			holder_count_updated_at TIMESTAMPTZ,
			security_flags JSONB,
			security_checked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS pools (
			id SERIAL PRIMARY KEY,
			pair_contract TEXT NOT NULL UNIQUE,
			dex_id INT NOT NULL REFERENCES dex_catalogue(id),
			chain_id BIGINT NOT NULL DEFAULT 0,
			base_token_id INT NOT NULL REFERENCES tokens(id),
			quote_token_id INT NOT NULL REFERENCES tokens(id),
			pair_type TEXT NOT NULL DEFAULT 'xyk',
			is_uzig_quote BOOLEAN NOT NULL,
			creator TEXT,
			create_tx_hash TEXT,
			create_height BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			tx_hash TEXT NOT NULL,
			pool_id INT NOT NULL REFERENCES pools(id),
			msg_index INT NOT NULL,
			action TEXT NOT NULL,
			direction TEXT NOT NULL,
			signer TEXT,
			offer_denom TEXT,
			offer_amount_base TEXT,
			ask_denom TEXT,
			ask_amount_base TEXT,
			return_amount_base TEXT,
			reserve_base_denom TEXT,
			reserve_base_amount TEXT,
			reserve_quote_denom TEXT,
			reserve_quote_amount TEXT,
			is_router BOOLEAN NOT NULL DEFAULT false,
			height BIGINT NOT NULL,
			size_class TEXT,
			UNIQUE (tx_hash, pool_id, msg_index, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS pool_state (
			pool_id INT PRIMARY KEY REFERENCES pools(id),
			base_denom TEXT NOT NULL,
			base_reserve TEXT NOT NULL,
			quote_denom TEXT NOT NULL,
			quote_reserve TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prices (
			token_id INT NOT NULL REFERENCES tokens(id),
			pool_id INT NOT NULL REFERENCES pools(id),
			price_in_zig NUMERIC(38,18) NOT NULL,
			is_pair_native BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (token_id, pool_id)
		)`,
		`CREATE TABLE IF NOT EXISTS price_ticks (
			id BIGSERIAL PRIMARY KEY,
			token_id INT NOT NULL REFERENCES tokens(id),
			pool_id INT NOT NULL REFERENCES pools(id),
			price_in_zig NUMERIC(56,18) NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ohlcv_1m (
			pool_id INT NOT NULL REFERENCES pools(id),
			bucket_start TIMESTAMPTZ NOT NULL,
			open NUMERIC(56,18) NOT NULL,
			high NUMERIC(56,18) NOT NULL,
			low NUMERIC(56,18) NOT NULL,
			close NUMERIC(56,18) NOT NULL,
			volume_zig NUMERIC(56,18) NOT NULL DEFAULT 0 CHECK (volume_zig >= 0),
			trade_count BIGINT NOT NULL DEFAULT 0 CHECK (trade_count >= 0),
			UNIQUE (pool_id, bucket_start)
		)`,
		`CREATE TABLE IF NOT EXISTS pool_matrix (
			pool_id INT NOT NULL REFERENCES pools(id),
			bucket TEXT NOT NULL CHECK (bucket IN ('30m','1h','4h','24h')),
			open NUMERIC(56,18), high NUMERIC(56,18), low NUMERIC(56,18), close NUMERIC(56,18),
			volume_zig NUMERIC(56,18) NOT NULL DEFAULT 0,
			trade_count BIGINT NOT NULL DEFAULT 0,
			price_change_pct NUMERIC(20,6),
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (pool_id, bucket)
		)`,
		`CREATE TABLE IF NOT EXISTS token_matrix (
			token_id INT NOT NULL REFERENCES tokens(id),
			bucket TEXT NOT NULL CHECK (bucket IN ('30m','1h','4h','24h')),
			open NUMERIC(56,18), high NUMERIC(56,18), low NUMERIC(56,18), close NUMERIC(56,18),
			volume_zig NUMERIC(56,18) NOT NULL DEFAULT 0,
			trade_count BIGINT NOT NULL DEFAULT 0,
			price_change_pct NUMERIC(20,6),
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (token_id, bucket)
		)`,
		`CREATE TABLE IF NOT EXISTS large_trades (
			id BIGSERIAL PRIMARY KEY,
			trade_id BIGINT NOT NULL REFERENCES trades(id),
			pool_id INT NOT NULL REFERENCES pools(id),
			bucket TEXT NOT NULL CHECK (bucket IN ('30m','1h','4h','24h')),
			value_zig NUMERIC(56,18) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (trade_id, bucket)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			alert_type TEXT NOT NULL CHECK (alert_type IN ('price_cross','wallet_trade','large_trade','tvl_change')),
			pool_id INT REFERENCES pools(id),
			token_id INT REFERENCES tokens(id),
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS index_state (
			id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			last_height BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`INSERT INTO index_state (id, last_height) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
	}

	for _, stmt := range stmts {
		if _, err := db.Conn.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema stmt: %w", err)
		}
	}
	return nil
}
