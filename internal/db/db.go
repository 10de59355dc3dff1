// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

// Connect opens the Postgres pool from DATABASE_URL, or from the
// DB_* parts when DATABASE_URL is unset. Returns nil, nil when no
// database is configured at all (the caller falls back to the
// in-memory store).
func Connect() (*sql.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := os.Getenv("DB_USER")
		if user == "" {
			return nil, nil
		}
		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			user,
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_NAME"),
		)
	}

	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err = pool.Ping(); err != nil {
		return nil, err
	}
	return pool, nil
}
