// Package store defines the interface for database implementations to the market and
// reconciler microservices.
package store

import (
	"context"
	"errors"
)

// DB defines required methods for the credential store and the registration intents.
type DB interface {
	// credential rows
	FindUser(ctx context.Context, username string) (User, error)
	InsertUser(ctx context.Context, username, passwordHash string) (User, error)
	// registration intents
	PutIntent(ctx context.Context, username, passwordHash string) error
	SetIntentState(ctx context.Context, username string, state int) error
	DeleteIntent(ctx context.Context, username string) error
	ListIntents(ctx context.Context) ([]RegIntent, error)
}

// Errors returned
var (
	ErrUserNotFound   = errors.New("user was not found in store")
	ErrUserExists     = errors.New("user already exists in store")
	ErrIntentNotFound = errors.New("registration intent was not found in store")
)
