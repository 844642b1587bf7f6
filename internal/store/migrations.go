package store

import (
	_ "embed"
	"fmt"

	"github.com/serroba/shortlink/internal/shortener"
)

//go:embed migrations/postgres.sql
var postgresSchema string

//go:embed migrations/sqlite.sql
var sqliteSchema string

// unavailable marks a driver failure as a storage outage while keeping the cause.
func unavailable(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", shortener.ErrStorageUnavailable, err)
}
