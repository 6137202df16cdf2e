// Package storage declares the contract shared by every storage backend
// (csvdb, memorystorage, postgresdb).
package storage

import (
	"context"

	"github.com/patric-chuzhbe/savetrack/internal/models"
)

// Registry is the credential side of the storage.
type Registry interface {
	CreateUser(ctx context.Context, usr *models.User) error

	GetUserByName(ctx context.Context, username string) (*models.User, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)
}

// GoalsKeeper is the per-user goal collection side of the storage.
type GoalsKeeper interface {
	LoadGoals(ctx context.Context, username string) ([]models.Goal, error)

	SaveGoals(ctx context.Context, username string, goals []models.Goal) error

	// UpdateGoals loads the collection, passes it to mutate and saves the
	// result. Nothing is saved when mutate returns an error.
	UpdateGoals(
		ctx context.Context,
		username string,
		mutate func([]models.Goal) ([]models.Goal, error),
	) error
}

type Storage interface {
	Registry
	GoalsKeeper

	Ping(ctx context.Context) error

	Close() error
}
