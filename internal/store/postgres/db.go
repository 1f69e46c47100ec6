package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func Open(databaseURL string, pool PoolConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// migrations is the full schema, in dependency order. The unique index on
// (physiotherapist_id, date_time) backs the double-booking invariant at the
// storage level; conflict checks in the services run first, inside the same
// transaction.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS appointment_rules (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		rescheduling_limit integer NOT NULL,
		rescheduling_min_hours_in_advance integer NOT NULL,
		max_clients_per_group integer NOT NULL,
		frequency text NOT NULL,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		signed_contract timestamptz,
		appointment_rules_id uuid NOT NULL REFERENCES appointment_rules (id),
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS physiotherapists (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id uuid PRIMARY KEY,
		physiotherapist_id uuid NOT NULL REFERENCES physiotherapists (id),
		date_time timestamptz NOT NULL,
		location text NOT NULL,
		modality text NOT NULL,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_physio_date_time
		ON appointments (physiotherapist_id, date_time)`,
	`CREATE TABLE IF NOT EXISTS appointment_clients (
		id uuid PRIMARY KEY,
		appointment_id uuid NOT NULL REFERENCES appointments (id) ON DELETE CASCADE,
		client_id uuid NOT NULL REFERENCES clients (id),
		confirmation text NOT NULL,
		attendance boolean NOT NULL DEFAULT true,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS appointment_clients_pair
		ON appointment_clients (appointment_id, client_id)`,
	`CREATE INDEX IF NOT EXISTS appointment_clients_client
		ON appointment_clients (client_id)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id uuid PRIMARY KEY,
		client_id uuid NOT NULL REFERENCES clients (id),
		confirmed timestamptz NOT NULL,
		created_at timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS business_rules (
		id uuid PRIMARY KEY,
		title text NOT NULL,
		body text NOT NULL,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,
}

func Migrate(ctx context.Context, db bun.IDB) error {
	for _, stmt := range migrations {
		if _, err := db.NewRaw(stmt).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
