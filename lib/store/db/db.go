// Package db implements the opening and graceful closing of database connections.
package db

import (
	"errors"

	"github.com/agrimart/bridge/lib/store"
	"github.com/agrimart/bridge/lib/store/mongo"
	"github.com/agrimart/bridge/lib/store/postgres"
)

const (
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
)

// ErrUnknownDB is returned for unsupported database types.
var ErrUnknownDB = errors.New("unknown database type")

// New returns a new database connection according to the options (database type).
func New(options, connection string) (store.DB, error) {
	switch options {
	case MONGODB:
		return mongo.New(connection)
	case POSTGRES:
		return postgres.New(connection)
	}

	return nil, ErrUnknownDB
}

// Close gracefully closes the database connection.
func Close(options string, dh store.DB) error {
	switch options {
	case MONGODB:
		return dh.(*mongo.Mongo).CloseMongo()
	case POSTGRES:
		return dh.(*postgres.Postgres).ClosePostgres()
	}

	return nil
}
