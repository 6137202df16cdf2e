package service

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/savetrack/internal/db/csvdb"
	"github.com/patric-chuzhbe/savetrack/internal/db/memorystorage"
	"github.com/patric-chuzhbe/savetrack/internal/mockstorage"
	"github.com/patric-chuzhbe/savetrack/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := memorystorage.New()
	require.NoError(t, err)
	svc, err := New(db, bcrypt.MinCost)
	require.NoError(t, err)

	return svc
}

func TestRegisterTwice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "alice", "secret"))

	err := svc.Register(ctx, "alice", "another")
	assert.ErrorIs(t, err, models.ErrUserExists)

	count, err := svc.GetNumberOfUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	ok, err := svc.Verify(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.True(t, ok, "the first registration should be kept")
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "empty username", username: "", password: "secret"},
		{name: "too short username", username: "al", password: "secret"},
		{name: "path in username", username: "../etc", password: "secret"},
		{name: "empty password", username: "alice", password: ""},
		{name: "password over the bcrypt limit", username: "alice", password: strings.Repeat("x", 73)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Register(ctx, tt.username, tt.password)
			assert.ErrorIs(t, err, models.ErrInvalidCredentialsInput)
		})
	}

	count, err := svc.GetNumberOfUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestVerify(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "secret"))

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{name: "correct password", username: "alice", password: "secret", want: true},
		{name: "wrong password", username: "alice", password: "Secret", want: false},
		{name: "empty password", username: "alice", password: "", want: false},
		{name: "nonexistent username", username: "bob", password: "secret", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.Verify(ctx, tt.username, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestVerifyStoresHashNotPlaintext(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)
	svc, err := New(db, bcrypt.MinCost)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "alice", "secret"))

	usr, err := db.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", usr.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(usr.PasswordHash), []byte("secret")))
}

func TestFreshUserHasNoGoals(t *testing.T) {
	svc := newTestService(t)

	goals, err := svc.LoadGoals(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestAddThenLoad(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	added, err := svc.AddGoal(ctx, "alice", "Emergency Fund", 10000, 2000)
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)

	goals, err := svc.LoadGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []models.Goal{{ID: added.ID, Name: "Emergency Fund", Target: 10000, Saved: 2000}}, goals)

	others, err := svc.LoadGoals(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, others, "collections of different users never intersect")
}

func TestAddGoalValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		goal   string
		target float64
		saved  float64
	}{
		{name: "empty name", goal: "   ", target: 1, saved: 0},
		{name: "negative target", goal: "Car", target: -1, saved: 0},
		{name: "negative saved", goal: "Car", target: 1, saved: -0.01},
		{name: "NaN target", goal: "Car", target: math.NaN(), saved: 0},
		{name: "infinite saved", goal: "Car", target: 1, saved: math.Inf(1)},
		{name: "too long name", goal: strings.Repeat("a", 101), target: 1, saved: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddGoal(ctx, "alice", tt.goal, tt.target, tt.saved)
			assert.ErrorIs(t, err, models.ErrInvalidGoal)
		})
	}

	goals, err := svc.LoadGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestEditGoal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.AddGoal(ctx, "alice", "Car", 5000, 100)
	require.NoError(t, err)
	second, err := svc.AddGoal(ctx, "alice", "Car", 700, 10)
	require.NoError(t, err)

	require.NoError(t, svc.EditGoal(ctx, "alice", second.ID, " Bike ", 800, 20))

	goals, err := svc.LoadGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []models.Goal{
		first,
		{ID: second.ID, Name: "Bike", Target: 800, Saved: 20},
	}, goals, "only the goal with the selected ID changes even when names repeat")

	err = svc.EditGoal(ctx, "alice", "missing", "X", 1, 1)
	assert.ErrorIs(t, err, models.ErrGoalNotFound)

	err = svc.EditGoal(ctx, "alice", first.ID, "X", -1, 1)
	assert.ErrorIs(t, err, models.ErrInvalidGoal)
}

func TestUpdateSavingsChangesOnlySaved(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	goal, err := svc.AddGoal(ctx, "alice", "Laptop", 60000, 15000)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateSavings(ctx, "alice", goal.ID, 20000))

	updated, err := svc.GoalByID(ctx, "alice", goal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Goal{ID: goal.ID, Name: "Laptop", Target: 60000, Saved: 20000}, updated)

	assert.ErrorIs(t, svc.UpdateSavings(ctx, "alice", goal.ID, -5), models.ErrInvalidGoal)
	assert.ErrorIs(t, svc.UpdateSavings(ctx, "alice", "missing", 5), models.ErrGoalNotFound)
}

func TestUpdateSavingsOfUnnamedLegacyGoal(t *testing.T) {
	dir := t.TempDir()
	legacy := "Goal,Target,Saved\n,100.0,10.0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, csvdb.GoalsFileName("alice")), []byte(legacy), 0o644))

	db, err := csvdb.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	svc, err := New(db, bcrypt.MinCost)
	require.NoError(t, err)
	ctx := context.Background()

	goals, err := svc.LoadGoals(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Empty(t, goals[0].Name)

	require.NoError(t, svc.UpdateSavings(ctx, "alice", goals[0].ID, 50))

	updated, err := svc.GoalByID(ctx, "alice", goals[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.Goal{ID: goals[0].ID, Name: "", Target: 100, Saved: 50}, updated)
}

func TestDeleteGoalsByName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddGoal(ctx, "alice", "Car", 1, 0)
	require.NoError(t, err)
	house, err := svc.AddGoal(ctx, "alice", "House", 2, 0)
	require.NoError(t, err)
	_, err = svc.AddGoal(ctx, "alice", "Car", 3, 0)
	require.NoError(t, err)

	removed, err := svc.DeleteGoalsByName(ctx, "alice", "Car")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	goals, err := svc.LoadGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []models.Goal{house}, goals)

	removed, err = svc.DeleteGoalsByName(ctx, "alice", "Nothing")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestDeleteGoal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.AddGoal(ctx, "alice", "Car", 1, 0)
	require.NoError(t, err)
	second, err := svc.AddGoal(ctx, "alice", "Car", 3, 0)
	require.NoError(t, err)

	removed, err := svc.DeleteGoal(ctx, "alice", first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, removed)

	goals, err := svc.LoadGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []models.Goal{second}, goals)

	_, err = svc.DeleteGoal(ctx, "alice", first.ID)
	assert.ErrorIs(t, err, models.ErrGoalNotFound)
}

func TestOverview(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	views, summary, err := svc.Overview(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Equal(t, models.Summary{}, summary)

	_, err = svc.AddGoal(ctx, "alice", "Emergency Fund", 10000, 2000)
	require.NoError(t, err)
	_, err = svc.AddGoal(ctx, "alice", "Someday", 0, 50)
	require.NoError(t, err)

	views, summary, err = svc.Overview(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.True(t, views[0].HasProgress)
	assert.InDelta(t, 20.0, views[0].Progress, 1e-9)
	assert.False(t, views[1].HasProgress)
	assert.Equal(t, models.Summary{
		TotalGoals:  2,
		TotalSaved:  2050,
		TotalTarget: 10000,
		Remaining:   7950,
	}, summary)
}

func TestStorageErrorsArePropagated(t *testing.T) {
	errDisk := errors.New("disk is gone")
	ctx := context.Background()

	db := &mockstorage.StorageMock{}
	db.On("GetUserByName", mock.Anything, "alice").Return(nil, errDisk)
	db.On("LoadGoals", mock.Anything, "alice").Return(nil, errDisk)
	db.On("UpdateGoals", mock.Anything, "alice", mock.Anything).Return(errDisk)

	svc, err := New(db, bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := svc.Verify(ctx, "alice", "secret")
	assert.ErrorIs(t, err, errDisk)
	assert.False(t, ok)

	_, _, err = svc.Overview(ctx, "alice")
	assert.ErrorIs(t, err, errDisk)

	_, err = svc.AddGoal(ctx, "alice", "Car", 1, 0)
	assert.ErrorIs(t, err, errDisk)

	_, err = svc.DeleteGoalsByName(ctx, "alice", "Car")
	assert.ErrorIs(t, err, errDisk)

	db.AssertExpectations(t)
}

func TestMutateFailureSavesNothing(t *testing.T) {
	ctx := context.Background()
	stored := []models.Goal{{ID: "1", Name: "Car", Target: 10, Saved: 1}}

	db := &mockstorage.StorageMock{
		OnUpdateGoals: func(
			ctx context.Context,
			username string,
			mutate func([]models.Goal) ([]models.Goal, error),
		) error {
			result, err := mutate(stored)
			if err != nil {
				return err
			}
			stored = result
			return nil
		},
	}
	svc, err := New(db, bcrypt.MinCost)
	require.NoError(t, err)

	err = svc.EditGoal(ctx, "alice", "2", "Bike", 1, 1)
	assert.ErrorIs(t, err, models.ErrGoalNotFound)
	assert.Equal(t, []models.Goal{{ID: "1", Name: "Car", Target: 10, Saved: 1}}, stored)

	_, err = svc.DeleteGoal(ctx, "alice", "1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}
