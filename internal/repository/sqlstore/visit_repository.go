// Package sqlstore persists visits through database/sql. It serves the
// sqlite (modernc.org/sqlite, no cgo) and mysql backends.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"visit-recorder/internal/domain"
	"visit-recorder/internal/metrics"
	"visit-recorder/internal/repository"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// Options tunes the connection pool. Zero values keep database/sql defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type visitRepository struct {
	db      *sql.DB
	dialect dialect
	sb      sq.StatementBuilderType
}

// Open connects to backend ("sqlite" or "mysql") and returns a repository
// owning the pool.
func Open(ctx context.Context, backend, dsn string, opts Options) (repository.VisitRepository, error) {
	d, err := lookupDialect(backend)
	if err != nil {
		return nil, err
	}

	dsn, err = normalizeDSN(d, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.name, err)
	}

	if d.singleConn {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		// an in-memory database lives as long as its connection
		db.SetConnMaxLifetime(0)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.name, err)
	}

	return New(db, backend)
}

// New wraps an already opened *sql.DB.
func New(db *sql.DB, backend string) (repository.VisitRepository, error) {
	d, err := lookupDialect(backend)
	if err != nil {
		return nil, err
	}
	return &visitRepository{
		db:      db,
		dialect: d,
		sb:      sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func (r *visitRepository) EnsureSchema(ctx context.Context) error {
	defer observe("ensure_schema", time.Now())

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, r.dialect.createTable); err != nil {
		metrics.DatabaseErrorsTotal.WithLabelValues("ensure_schema").Inc()
		return fmt.Errorf("failed to create visits table: %w", err)
	}
	return nil
}

func (r *visitRepository) Create(ctx context.Context, visit *domain.Visit) error {
	defer observe("create", time.Now())

	query, args, err := r.sb.Insert(repository.Table).
		Columns(repository.Columns...).
		Values(visit.IP, visit.Language, visit.UserAgent, visit.Platform, visit.Timezone, visit.DateAccess).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		metrics.DatabaseErrorsTotal.WithLabelValues("create").Inc()
		return fmt.Errorf("failed to create visit: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read visit id: %w", err)
	}
	visit.ID = id

	return nil
}

func (r *visitRepository) List(ctx context.Context, limit, offset int) ([]*domain.Visit, error) {
	defer observe("list", time.Now())

	builder := r.sb.Select("id").Columns(repository.Columns...).
		From(repository.Table).
		OrderBy("id DESC")
	switch {
	case limit > 0:
		builder = builder.Limit(uint64(limit))
		if offset > 0 {
			builder = builder.Offset(uint64(offset))
		}
	case offset > 0:
		// neither dialect accepts OFFSET without LIMIT
		builder = builder.Suffix("LIMIT "+r.dialect.unboundedLimit+" OFFSET ?", offset)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.DatabaseErrorsTotal.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	visits := make([]*domain.Visit, 0)
	for rows.Next() {
		v := &domain.Visit{}
		var ip, lang, ua, platform, tz, date sql.NullString
		if err := rows.Scan(&v.ID, &ip, &lang, &ua, &platform, &tz, &date); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		v.IP, v.Language, v.UserAgent = ip.String, lang.String, ua.String
		v.Platform, v.Timezone, v.DateAccess = platform.String, tz.String, date.String
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
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return count, nil
}

func (r *visitRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *visitRepository) Close() {
	r.db.Close()
}

func observe(operation string, start time.Time) {
	metrics.DatabaseQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
