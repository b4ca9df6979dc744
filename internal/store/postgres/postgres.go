// Package postgres implements the persistent-state backend (component D) on
// top of PostgreSQL, for multi-node deployments that need state shared
// across server instances.
//
// Built around a *pgxpool.Pool, hand-written SQL with $N placeholders,
// ON CONFLICT upserts, and pgx.ErrNoRows translated to a nil result rather
// than propagated. Unlike the sqlite backend this package does not go
// through GORM. Schema management goes through golang-migrate rather than
// inline DDL: see runMigrations.
package postgres

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver, required by golang-migrate

	"github.com/gharra/filed/internal/crypto"
	"github.com/gharra/filed/internal/logger"
	"github.com/gharra/filed/internal/store"
	"github.com/gharra/filed/internal/store/postgres/migrations"
)

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
// (23505) against the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// Store is a pgx-backed store.Store implementation.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, runs any pending schema migrations, and returns a
// ready Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := runMigrations(ctx, dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: run migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

// runMigrations applies pending migrations from the embedded migrations
// filesystem, using golang-migrate's postgres database driver over a
// database/sql connection (golang-migrate's own requirement, distinct from
// the pgxpool.Pool the Store otherwise reads and writes through) and
// advisory locks to stay safe against concurrent server instances starting
// at once.
func runMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database/sql connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		logger.Warn("postgres schema is in a dirty migration state, manual intervention may be required",
			"version", version)
	}
	return nil
}

func (s *Store) Register(ctx context.Context, name, now string) ([16]byte, bool, error) {
	var id [16]byte

	for {
		generated, err := crypto.NewClientID()
		if err != nil {
			return id, false, err
		}
		idHex := hex.EncodeToString(generated[:])

		_, err = s.pool.Exec(ctx, `
			INSERT INTO clients (id, name, last_seen)
			VALUES ($1, $2, $3)
		`, idHex, name, now)
		if err == nil {
			return generated, true, nil
		}

		if isUniqueViolation(err, "clients_pkey") {
			continue // id collision, retry
		}
		if isUniqueViolation(err, "clients_name_key") {
			return id, false, nil
		}
		return id, false, err
	}
}

func (s *Store) scanClient(row pgx.Row) (*store.Client, error) {
	var c store.Client
	err := row.Scan(&c.IDHex, &c.Name, &c.LastSeen, &c.PublicKey, &c.AESKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) Find(ctx context.Context, idHex, name string) (*store.Client, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, last_seen, rsa_public_key, aes_key
		FROM clients WHERE id = $1 AND name = $2
	`, idHex, name)
	return s.scanClient(row)
}

func (s *Store) FindByID(ctx context.Context, idHex string) (*store.Client, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, last_seen, rsa_public_key, aes_key
		FROM clients WHERE id = $1
	`, idHex)
	return s.scanClient(row)
}

func (s *Store) SetPublicKey(ctx context.Context, idHex string, pub []byte) error {
	_, err := s.pool.Exec(ctx, `UPDATE clients SET rsa_public_key = $1 WHERE id = $2`, pub, idHex)
	return err
}

func (s *Store) SetSymmetricKey(ctx context.Context, idHex string, key []byte) error {
	_, err := s.pool.Exec(ctx, `UPDATE clients SET aes_key = $1 WHERE id = $2`, key, idHex)
	return err
}

func (s *Store) Touch(ctx context.Context, idHex, now string) error {
	_, err := s.pool.Exec(ctx, `UPDATE clients SET last_seen = $1 WHERE id = $2`, now, idHex)
	return err
}

func (s *Store) RecordFile(ctx context.Context, idHex, name, path string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM clients WHERE id = $1)`, idHex).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO files (id, name, path_name, verified)
		VALUES ($1, $2, $3, false)
		ON CONFLICT (path_name) DO UPDATE SET
			id = EXCLUDED.id, name = EXCLUDED.name, verified = false
	`, idHex, name, path)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) MarkVerified(ctx context.Context, path string) error {
	_, err := s.pool.Exec(ctx, `UPDATE files SET verified = true WHERE path_name = $1`, path)
	return err
}

func (s *Store) Stats(ctx context.Context) (int, int, error) {
	var clients, files int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM clients`).Scan(&clients); err != nil {
		return 0, 0, err
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM files`).Scan(&files); err != nil {
		return 0, 0, err
	}
	return clients, files, nil
}

func (s *Store) ListClients(ctx context.Context) ([]store.Client, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, last_seen, rsa_public_key, aes_key FROM clients`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Client
	for rows.Next() {
		var c store.Client
		if err := rows.Scan(&c.IDHex, &c.Name, &c.LastSeen, &c.PublicKey, &c.AESKey); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListFiles(ctx context.Context) ([]store.File, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, path_name, verified FROM files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.File
	for rows.Next() {
		var f store.File
		if err := rows.Scan(&f.ClientIDHex, &f.Name, &f.Path, &f.Verified); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
