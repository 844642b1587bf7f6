package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/shortlink/internal/shortener"
)

// PostgresStore is a PostgreSQL implementation of shortener.Repository and
// shortener.ClickRepository. Code uniqueness is enforced by the primary key.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed link store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist yet.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresSchema)

	return unavailable(err)
}

func (p *PostgresStore) Insert(ctx context.Context, link *shortener.Link, now time.Time) error {
	taken := false

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM links
			WHERE code = $1 AND expires_at IS NOT NULL AND expires_at < $2
		`, string(link.Code), now)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO links (code, destination, expires_at, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO NOTHING
		`,
			string(link.Code),
			link.Destination,
			link.ExpiresAt,
			link.CreatedAt,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			taken = true

			return nil
		}

		// Clicks left behind by a purged holder of this code must not carry over.
		_, err = tx.Exec(ctx, `DELETE FROM click_events WHERE code = $1`, string(link.Code))

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

func (p *PostgresStore) GetByCode(ctx context.Context, code shortener.Code) (*shortener.Link, error) {
	query := `
		SELECT code, destination, expires_at, created_at
		FROM links
		WHERE code = $1
	`

	var link shortener.Link

	err := p.pool.QueryRow(ctx, query, string(code)).Scan(
		&link.Code,
		&link.Destination,
		&link.ExpiresAt,
		&link.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortener.ErrNotFound
		}

		return nil, unavailable(err)
	}

	return &link, nil
}

func (p *PostgresStore) Delete(ctx context.Context, code shortener.Code) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM click_events WHERE code = $1`, string(code)); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `DELETE FROM links WHERE code = $1`, string(code))

		return err
	})

	return unavailable(err)
}

func (p *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	// One statement, so links and their clicks disappear together.
	query := `
		WITH purged AS (
			DELETE FROM links
			WHERE expires_at IS NOT NULL AND expires_at < $1
			RETURNING code
		), purged_clicks AS (
			DELETE FROM click_events
			WHERE code IN (SELECT code FROM purged)
		)
		SELECT count(*) FROM purged
	`

	var purged int64
	if err := p.pool.QueryRow(ctx, query, now).Scan(&purged); err != nil {
		return 0, unavailable(err)
	}

	return purged, nil
}

func (p *PostgresStore) Append(ctx context.Context, click *shortener.ClickEvent) error {
	query := `
		INSERT INTO click_events (code, clicked_at, visitor_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := p.pool.QueryRow(ctx, query,
		string(click.Code),
		click.ClickedAt,
		click.VisitorID,
	).Scan(&click.ID)

	return unavailable(err)
}

func (p *PostgresStore) ListByCode(ctx context.Context, code shortener.Code) ([]shortener.ClickEvent, error) {
	query := `
		SELECT id, code, clicked_at, visitor_id
		FROM click_events
		WHERE code = $1
		ORDER BY clicked_at, id
	`

	rows, err := p.pool.Query(ctx, query, string(code))
	if err != nil {
		return nil, unavailable(err)
	}

	clicks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shortener.ClickEvent, error) {
		var click shortener.ClickEvent
		err := row.Scan(&click.ID, &click.Code, &click.ClickedAt, &click.VisitorID)

		return click, err
	})
	if err != nil {
		return nil, unavailable(err)
	}

	for i := range clicks {
		clicks[i].ClickedAt = clicks[i].ClickedAt.UTC()
	}

	return clicks, nil
}

// Ping checks database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Shutdown closes the connection pool.
func (p *PostgresStore) Shutdown() error {
	p.pool.Close()

	return nil
}

// Compile-time checks.
var (
	_ shortener.Repository      = (*PostgresStore)(nil)
	_ shortener.ClickRepository = (*PostgresStore)(nil)
)
