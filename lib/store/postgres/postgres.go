// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/agrimart/bridge/lib/store"
)

// uniqueViolation is the SQLSTATE code for a unique-constraint error.
const uniqueViolation = "23505"

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// schema is created at connection time. The serial id doubles as the user's HD wallet
// signer id, so it must never be reused; SERIAL sequences guarantee that.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id SERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS reg_intents (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	state INT NOT NULL,
	updated TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// New returns a postgres client connection to the specified database in 'connection'.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("cannot create schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// FindUser returns the credential row for username.
func (p *Postgres) FindUser(ctx context.Context, username string) (store.User, error) {
	u := store.User{Username: username}

	err := p.db.QueryRowContext(ctx,
		"SELECT id, password_hash FROM users WHERE username = $1", username).
		Scan(&u.SignerID, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return u, store.ErrUserNotFound
	}

	if err != nil {
		return u, fmt.Errorf("could not query user: %w", err)
	}

	return u, nil
}

// InsertUser creates the credential row, relying on the unique constraint as the last
// line of defense against racing registrations.
func (p *Postgres) InsertUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	u := store.User{Username: username, PasswordHash: passwordHash}

	err := p.db.QueryRowContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id",
		username, passwordHash).
		Scan(&u.SignerID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return u, store.ErrUserExists
		}

		return u, fmt.Errorf("could not insert user: %w", err)
	}

	return u, nil
}

// PutIntent writes or refreshes a pending registration intent.
func (p *Postgres) PutIntent(ctx context.Context, username, passwordHash string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO reg_intents (username, password_hash, state) VALUES ($1, $2, $3)
		ON CONFLICT (username)
		DO UPDATE SET password_hash = $2, state = $3, updated = now()`,
		username, passwordHash, store.IntentPending)
	if err != nil {
		return fmt.Errorf("could not write intent: %w", err)
	}

	return nil
}

// SetIntentState advances an intent through the two-phase sequence.
func (p *Postgres) SetIntentState(ctx context.Context, username string, state int) error {
	res, err := p.db.ExecContext(ctx,
		"UPDATE reg_intents SET state = $2, updated = now() WHERE username = $1",
		username, state)
	if err != nil {
		return fmt.Errorf("could not update intent: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrIntentNotFound
	}

	return nil
}

// DeleteIntent removes a completed or discarded intent.
func (p *Postgres) DeleteIntent(ctx context.Context, username string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM reg_intents WHERE username = $1", username)
	if err != nil {
		return fmt.Errorf("could not delete intent: %w", err)
	}

	return nil
}

// ListIntents returns all surviving intents, oldest first.
func (p *Postgres) ListIntents(ctx context.Context) ([]store.RegIntent, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT username, password_hash, state, updated FROM reg_intents ORDER BY updated")
	if err != nil {
		return nil, fmt.Errorf("could not list intents: %w", err)
	}
	defer rows.Close()

	intents := []store.RegIntent{}

	for rows.Next() {
		var it store.RegIntent
		if err = rows.Scan(&it.Username, &it.PasswordHash, &it.State, &it.Updated); err != nil {
			return nil, fmt.Errorf("could not scan intent: %w", err)
		}

		intents = append(intents, it)
	}

	return intents, rows.Err()
}
