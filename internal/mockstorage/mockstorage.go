// Package mockstorage provides a testify-based mock implementation
// of the storage.Storage interface.
// It is used for unit testing the service and the HTTP handlers on storage failures.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/savetrack/internal/models"
)

// StorageMock is a testify mock that implements storage.Storage.
type StorageMock struct {
	mock.Mock

	// OnUpdateGoals is an optional function field that, when set, replaces
	// the testify handler of UpdateGoals so tests can drive the mutate callback.
	OnUpdateGoals func(
		ctx context.Context,
		username string,
		mutate func([]models.Goal) ([]models.Goal, error),
	) error
}

// CreateUser mocks adding a registry row.
func (m *StorageMock) CreateUser(ctx context.Context, usr *models.User) error {
	args := m.Called(ctx, usr)
	return args.Error(0)
}

// GetUserByName mocks a registry lookup.
func (m *StorageMock) GetUserByName(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	usr, _ := args.Get(0).(*models.User)
	return usr, args.Error(1)
}

// GetNumberOfUsers mocks counting registry rows.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// LoadGoals mocks loading a goal collection.
func (m *StorageMock) LoadGoals(ctx context.Context, username string) ([]models.Goal, error) {
	args := m.Called(ctx, username)
	goals, _ := args.Get(0).([]models.Goal)
	return goals, args.Error(1)
}

// SaveGoals mocks overwriting a goal collection.
func (m *StorageMock) SaveGoals(ctx context.Context, username string, goals []models.Goal) error {
	args := m.Called(ctx, username, goals)
	return args.Error(0)
}

// UpdateGoals mocks a load-mutate-save cycle.
func (m *StorageMock) UpdateGoals(
	ctx context.Context,
	username string,
	mutate func([]models.Goal) ([]models.Goal, error),
) error {
	if m.OnUpdateGoals != nil {
		return m.OnUpdateGoals(ctx, username, mutate)
	}
	args := m.Called(ctx, username, mutate)
	return args.Error(0)
}

// Ping mocks the health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks releasing the storage.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
