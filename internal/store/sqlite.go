package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/serroba/shortlink/internal/shortener"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                                // pure-Go SQLite driver
)

// expiredHolder matches links that expired before the bound instant.
const expiredHolder = "expires_at IS NOT NULL AND expires_at < ?"

// SQLiteStore implements shortener.Repository and shortener.ClickRepository on SQLite,
// locally through modernc.org/sqlite or remotely on libsql/Turso. Timestamps are stored
// as unix nanoseconds so they compare correctly in SQL.
type SQLiteStore struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	driverName := "sqlite"
	if strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, unavailable(err)
	}

	if driverName == "sqlite" {
		// A single writer connection serializes transactions instead of failing on SQLITE_BUSY.
		db.SetMaxOpenConns(1)

		for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()

				return nil, unavailable(err)
			}
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()

		return nil, unavailable(fmt.Errorf("apply schema: %w", err))
	}

	return &SQLiteStore{db: db, qb: sq.StatementBuilder}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, link *shortener.Link, now time.Time) error {
	taken := false

	err := s.withinTx(ctx, func(tx *sql.Tx) error {
		_, err := s.qb.Delete("links").
			Where(sq.Eq{"code": string(link.Code)}).
			Where(expiredHolder, now.UnixNano()).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return err
		}

		res, err := s.qb.Insert("links").
			Columns("code", "destination", "expires_at", "created_at").
			Values(string(link.Code), link.Destination, toNanos(link.ExpiresAt), link.CreatedAt.UnixNano()).
			Suffix("ON CONFLICT (code) DO NOTHING").
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return err
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if inserted == 0 {
			taken = true

			return nil
		}

		_, err = s.qb.Delete("click_events").
			Where(sq.Eq{"code": string(link.Code)}).
			RunWith(tx).ExecContext(ctx)

		return err
	})
	if err != nil {
		return unavailable(err)
	}

	if taken {
		return shortener.ErrCodeTaken
	}

	return nil
}

func (s *SQLiteStore) GetByCode(ctx context.Context, code shortener.Code) (*shortener.Link, error) {
	var (
		link      shortener.Link
		expiresAt sql.NullInt64
		createdAt int64
	)

	err := s.qb.Select("code", "destination", "expires_at", "created_at").
		From("links").
		Where(sq.Eq{"code": string(code)}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&link.Code, &link.Destination, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shortener.ErrNotFound
		}

		return nil, unavailable(err)
	}

	link.CreatedAt = time.Unix(0, createdAt).UTC()

	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64).UTC()
		link.ExpiresAt = &t
	}

	return &link, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, code shortener.Code) error {
	err := s.withinTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.qb.Delete("click_events").
			Where(sq.Eq{"code": string(code)}).
			RunWith(tx).ExecContext(ctx); err != nil {
			return err
		}

		_, err := s.qb.Delete("links").
			Where(sq.Eq{"code": string(code)}).
			RunWith(tx).ExecContext(ctx)

		return err
	})

	return unavailable(err)
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64

	cutoff := now.UnixNano()

	err := s.withinTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.qb.Delete("click_events").
			Where("code IN (SELECT code FROM links WHERE "+expiredHolder+")", cutoff).
			RunWith(tx).ExecContext(ctx); err != nil {
			return err
		}

		res, err := s.qb.Delete("links").
			Where(expiredHolder, cutoff).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return err
		}

		purged, err = res.RowsAffected()

		return err
	})
	if err != nil {
		return 0, unavailable(err)
	}

	return purged, nil
}

func (s *SQLiteStore) Append(ctx context.Context, click *shortener.ClickEvent) error {
	res, err := s.qb.Insert("click_events").
		Columns("code", "clicked_at", "visitor_id").
		Values(string(click.Code), click.ClickedAt.UnixNano(), click.VisitorID).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return unavailable(err)
	}

	click.ID, err = res.LastInsertId()

	return unavailable(err)
}

func (s *SQLiteStore) ListByCode(ctx context.Context, code shortener.Code) ([]shortener.ClickEvent, error) {
	rows, err := s.qb.Select("id", "code", "clicked_at", "visitor_id").
		From("click_events").
		Where(sq.Eq{"code": string(code)}).
		OrderBy("clicked_at", "id").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var clicks []shortener.ClickEvent

	for rows.Next() {
		var (
			click     shortener.ClickEvent
			clickedAt int64
		)

		if err := rows.Scan(&click.ID, &click.Code, &clickedAt, &click.VisitorID); err != nil {
			return nil, unavailable(err)
		}

		click.ClickedAt = time.Unix(0, clickedAt).UTC()
		clicks = append(clicks, click)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}

	return clicks, nil
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Shutdown closes the database.
func (s *SQLiteStore) Shutdown() error {
	return s.db.Close()
}

func (s *SQLiteStore) withinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	return tx.Commit()
}

func toNanos(t *time.Time) any {
	if t == nil {
		return nil
	}

	return t.UnixNano()
}

// Compile-time checks.
var (
	_ shortener.Repository      = (*SQLiteStore)(nil)
	_ shortener.ClickRepository = (*SQLiteStore)(nil)
)
