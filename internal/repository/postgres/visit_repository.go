package postgres

import (
	"context"
	"fmt"
	"time"

	"visit-recorder/internal/domain"
	"visit-recorder/internal/metrics"
	"visit-recorder/internal/repository"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS visiteurs (
		id          BIGSERIAL PRIMARY KEY,
		ip          TEXT,
		langue      TEXT,
		navigateur  TEXT,
		appareil    TEXT,
		fuseau      TEXT,
		date_access TEXT
	)
`

// visitRepository is the PostgreSQL implementation of repository.VisitRepository
type visitRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

// NewVisitRepository creates a repository on top of an existing pool.
// The repository owns the pool: Close closes it.
func NewVisitRepository(db *pgxpool.Pool) repository.VisitRepository {
	return &visitRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *visitRepository) EnsureSchema(ctx context.Context) error {
	defer observe("ensure_schema", time.Now())

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, createTableSQL); err != nil {
		metrics.DatabaseErrorsTotal.WithLabelValues("ensure_schema").Inc()
		return fmt.Errorf("failed to create visits table: %w", err)
	}
	return nil
}

// Create inserts a visit. Values are bound as parameters, never interpolated.
func (r *visitRepository) Create(ctx context.Context, visit *domain.Visit) error {
	defer observe("create", time.Now())

	query, args, err := r.sb.Insert(repository.Table).
		Columns(repository.Columns...).
		Values(visit.IP, visit.Language, visit.UserAgent, visit.Platform, visit.Timezone, visit.DateAccess).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if err := conn.QueryRow(ctx, query, args...).Scan(&visit.ID); err != nil {
		metrics.DatabaseErrorsTotal.WithLabelValues("create").Inc()
		return fmt.Errorf("failed to create visit: %w", err)
	}

	return nil
}

func (r *visitRepository) List(ctx context.Context, limit, offset int) ([]*domain.Visit, error) {
	defer observe("list", time.Now())

	builder := r.sb.Select("id").Columns(repository.Columns...).
		From(repository.Table).
		OrderBy("id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		metrics.DatabaseErrorsTotal.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	visits := make([]*domain.Visit, 0)
	for rows.Next() {
		v := &domain.Visit{}
		if err := rows.Scan(&v.ID, &v.IP, &v.Language, &v.UserAgent, &v.Platform, &v.Timezone, &v.DateAccess); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating visits: %w", err)
	}

	return visits, nil
}

func (r *visitRepository) Count(ctx context.Context) (int64, error) {
	query, args, err := r.sb.Select("COUNT(*)").From(repository.Table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count: %w", err)
	}

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return count, nil
}

func (r *visitRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *visitRepository) Close() {
	r.db.Close()
}

func observe(operation string, start time.Time) {
	metrics.DatabaseQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// InitDB initializes the database connection pool
func InitDB(ctx context.Context, dsn string, maxConns, minConns int, maxLifetime time.Duration) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = int32(maxConns)
	config.MinConns = int32(minConns)
	config.MaxConnLifetime = maxLifetime
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
