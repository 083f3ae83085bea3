package repositories

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"
)

// BaseRepository provides the shared database handle and logger for
// module-level repositories.
type BaseRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBase creates a new base repository
func NewBase(db *sql.DB, log zerolog.Logger) *BaseRepository {
	return &BaseRepository{
		db:  db,
		log: log,
	}
}

// DB returns the database connection
func (r *BaseRepository) DB() *sql.DB {
	return r.db
}

// Log returns the repository logger. A pointer, so call sites can chain
// level methods directly off the return value.
func (r *BaseRepository) Log() *zerolog.Logger {
	return &r.log
}

// Nullable helpers shared by module repositories. Zero values map to NULL.

func NullFloat64(val float64) sql.NullFloat64 {
	if val == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: val, Valid: true}
}

func NullString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: val, Valid: true}
}

func NullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// ParseTime parses an RFC3339 timestamp column, returning nil on NULL or
// malformed values.
func ParseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
