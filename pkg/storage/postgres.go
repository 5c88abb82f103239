package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS document_versions`,
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT        NOT NULL,
		id         TEXT        NOT NULL,
		version    BIGINT      NOT NULL,
		data       JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING GIN (data jsonb_path_ops)`,
}

// PostgresOptions configures the connection pool
type PostgresOptions struct {
	URL               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// PostgresStore implements Store on a single documents table. A commit is
// one SQL transaction: rows the caller read are locked FOR UPDATE and
// their versions compared before any write.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and creates the schema if needed
func NewPostgresStore(ctx context.Context, opts PostgresOptions) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		config.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.HealthCheckPeriod > 0 {
		config.HealthCheckPeriod = opts.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) NewID() string {
	return NewID()
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return s.read(ctx, docKey{collection, id})
}

// Query pushes equality predicates down as JSONB containment and
// evaluates the rest in process
func (s *PostgresStore) Query(ctx context.Context, collection string, q Query) ([]*Document, error) {
	eq, err := q.equalityFilters()
	if err != nil {
		return nil, err
	}

	sql := `SELECT id, version, data FROM documents WHERE collection = $1`
	args := []any{collection}
	if len(eq) > 0 {
		contains, err := json.Marshal(eq)
		if err != nil {
			return nil, err
		}
		sql += ` AND data @> $2::jsonb`
		args = append(args, string(contains))
	}
	sql += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var (
			id      string
			version int64
			data    []byte
		)
		if err := rows.Scan(&id, &version, &data); err != nil {
			return nil, err
		}
		docs = append(docs, &Document{Collection: collection, ID: id, Version: uint64(version), Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return q.Apply(docs)
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, v any) error {
	w, err := setWrite(collection, id, v)
	if err != nil {
		return err
	}
	return single(ctx, s, w)
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	return single(ctx, s, write{key: docKey{collection, id}, kind: writeUpdate, fields: fields})
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	return single(ctx, s, write{key: docKey{collection, id}, kind: writeDelete})
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runTransaction(ctx, s, fn)
}

func (s *PostgresStore) read(ctx context.Context, key docKey) (*Document, error) {
	var (
		version int64
		data    []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT version, data FROM documents WHERE collection = $1 AND id = $2`,
		key.collection, key.id,
	).Scan(&version, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return &Document{Collection: key.collection, ID: key.id, Version: uint64(version), Data: data}, nil
}

func (s *PostgresStore) commit(ctx context.Context, reads map[docKey]uint64, writes []write) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapPostgresError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, key := range lockOrder(reads) {
		version := reads[key]
		var current int64
		err := tx.QueryRow(ctx,
			`SELECT version FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
			key.collection, key.id,
		).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return mapPostgresError(err)
		}
		if uint64(current) != version {
			return fmt.Errorf("%w: %s read at version %d, now %d", ErrConflict, key, version, current)
		}
	}

	for _, w := range writes {
		if err := s.applyWrite(ctx, tx, reads, w); err != nil {
			return mapPostgresError(err)
		}
	}

	return mapPostgresError(tx.Commit(ctx))
}

func (s *PostgresStore) applyWrite(ctx context.Context, tx pgx.Tx, reads map[docKey]uint64, w write) error {
	switch w.kind {
	case writeDelete:
		_, err := tx.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, w.key.collection, w.key.id)
		return err

	case writeUpdate:
		var data []byte
		err := tx.QueryRow(ctx,
			`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
			w.key.collection, w.key.id,
		).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, w.key)
		}
		if err != nil {
			return err
		}
		merged, err := applyFields(data, w.fields)
		if err != nil {
			return fmt.Errorf("%s: %w", w.key, err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE documents SET data = $3::jsonb, version = nextval('document_versions'), updated_at = now()
			 WHERE collection = $1 AND id = $2`,
			w.key.collection, w.key.id, string(merged),
		)
		return err

	default:
		// A document read as absent is inserted without ON CONFLICT so a
		// concurrent creator surfaces as a unique violation
		if version, read := reads[w.key]; read && version == 0 {
			_, err := tx.Exec(ctx,
				`INSERT INTO documents (collection, id, version, data) VALUES ($1, $2, nextval('document_versions'), $3::jsonb)`,
				w.key.collection, w.key.id, string(w.data),
			)
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO documents (collection, id, version, data) VALUES ($1, $2, nextval('document_versions'), $3::jsonb)
			 ON CONFLICT (collection, id) DO UPDATE
			 SET version = EXCLUDED.version, data = EXCLUDED.data, updated_at = now()`,
			w.key.collection, w.key.id, string(w.data),
		)
		return err
	}
}

// mapPostgresError turns contention failures into ErrConflict
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", // unique_violation
			"40001", // serialization_failure
			"40P01": // deadlock_detected
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}
