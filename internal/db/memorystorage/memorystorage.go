package memorystorage

import (
	"context"
	"slices"
	"sync"

	"github.com/patric-chuzhbe/savetrack/internal/models"
)

// MemoryStorage keeps the registry and the goal collections in process memory.
// It is selected by the IN_MEMORY setting (-m) when no database DSN is configured.
type MemoryStorage struct {
	mu    sync.Mutex
	users map[string]models.User
	goals map[string][]models.Goal
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		users: map[string]models.User{},
		goals: map[string][]models.Goal{},
	}, nil
}

func (theStorage *MemoryStorage) CreateUser(ctx context.Context, usr *models.User) error {
	theStorage.mu.Lock()
	defer theStorage.mu.Unlock()

	if _, exists := theStorage.users[usr.Username]; exists {
		return models.ErrUserExists
	}
	theStorage.users[usr.Username] = *usr

	return nil
}

func (theStorage *MemoryStorage) GetUserByName(ctx context.Context, username string) (*models.User, error) {
	theStorage.mu.Lock()
	defer theStorage.mu.Unlock()

	usr, found := theStorage.users[username]
	if !found {
		return nil, models.ErrUserNotFound
	}

	return &usr, nil
}

func (theStorage *MemoryStorage) GetNumberOfUsers(ctx context.Context) (int64, error) {
	theStorage.mu.Lock()
	defer theStorage.mu.Unlock()

	return int64(len(theStorage.users)), nil
}

func (theStorage *MemoryStorage) LoadGoals(ctx context.Context, username string) ([]models.Goal, error) {
	theStorage.mu.Lock()
	defer theStorage.mu.Unlock()

	return theStorage.loadGoals(username), nil
}

func (theStorage *MemoryStorage) loadGoals(username string) []models.Goal {
	goals := slices.Clone(theStorage.goals[username])
	if goals == nil {
		goals = []models.Goal{}
	}

	return goals
}

func (theStorage *MemoryStorage) SaveGoals(ctx context.Context, username string, goals []models.Goal) error {
	theStorage.mu.Lock()
	defer theStorage.mu.Unlock()

	theStorage.goals[username] = slices.Clone(goals)

	return nil
}

func (theStorage *MemoryStorage) UpdateGoals(
	ctx context.Context,
	username string,
	mutate func([]models.Goal) ([]models.Goal, error),
) error {
	theStorage.mu.Lock()
	defer theStorage.mu.Unlock()

	goals, err := mutate(theStorage.loadGoals(username))
	if err != nil {
		return err
	}
	theStorage.goals[username] = slices.Clone(goals)

	return nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}

func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
