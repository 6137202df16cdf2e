// Package service implements the credential store and the goal store of the
// savings tracker on top of a storage backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/thoas/go-funk"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/savetrack/internal/models"
)

type userKeeper interface {
	CreateUser(ctx context.Context, usr *models.User) error

	GetUserByName(ctx context.Context, username string) (*models.User, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type goalsKeeper interface {
	LoadGoals(ctx context.Context, username string) ([]models.Goal, error)

	SaveGoals(ctx context.Context, username string, goals []models.Goal) error

	UpdateGoals(
		ctx context.Context,
		username string,
		mutate func([]models.Goal) ([]models.Goal, error),
	) error
}

type storage interface {
	userKeeper
	goalsKeeper
}

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{2,31}$`)

type credentials struct {
	Username string `validate:"required,username"`
	Password string `validate:"required,bcryptlen"`
}

type goalInput struct {
	Name   string  `validate:"required,max=100"`
	Target float64 `validate:"finite,gte=0"`
	Saved  float64 `validate:"finite,gte=0"`
}

type savingsInput struct {
	Saved float64 `validate:"finite,gte=0"`
}

type Service struct {
	db         storage
	validate   *validator.Validate
	bcryptCost int
}

func New(db storage, bcryptCost int) (*Service, error) {
	validate := validator.New()

	err := validate.RegisterValidation("username", func(fieldLevel validator.FieldLevel) bool {
		return usernamePattern.MatchString(fieldLevel.Field().String())
	})
	if err != nil {
		return nil, err
	}

	err = validate.RegisterValidation("bcryptlen", func(fieldLevel validator.FieldLevel) bool {
		return len(fieldLevel.Field().String()) <= maxPasswordBytes
	})
	if err != nil {
		return nil, err
	}

	err = validate.RegisterValidation("finite", func(fieldLevel validator.FieldLevel) bool {
		value := fieldLevel.Field().Float()
		return !math.IsNaN(value) && !math.IsInf(value, 0)
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		db:         db,
		validate:   validate,
		bcryptCost: bcryptCost,
	}, nil
}

func describeValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		var message string
		switch fieldError.Tag() {
		case "required":
			message = "is required"
		case "username":
			message = "must be 3-32 letters, digits, '_' or '-' and start with a letter or digit"
		case "bcryptlen":
			message = fmt.Sprintf("must not exceed %d bytes", maxPasswordBytes)
		case "max":
			message = "must be at most " + fieldError.Param() + " characters"
		case "gte":
			message = "must not be negative"
		case "finite":
			message = "must be a number"
		default:
			message = "is invalid"
		}
		messages = append(messages, fieldError.Field()+" "+message)
	}

	return strings.Join(messages, "; ")
}

// Register adds username to the registry with a bcrypt hash of password.
// It returns models.ErrUserExists when the username is taken.
func (s *Service) Register(ctx context.Context, username, password string) error {
	input := credentials{Username: username, Password: password}
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidCredentialsInput, describeValidationError(err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("in internal/service/service.go/Register(): error while `bcrypt.GenerateFromPassword()` calling: %w", err)
	}

	return s.db.CreateUser(ctx, &models.User{
		Username:     username,
		PasswordHash: string(hash),
	})
}

// Verify reports whether username exists and password matches its stored hash.
func (s *Service) Verify(ctx context.Context, username, password string) (bool, error) {
	usr, err := s.db.GetUserByName(ctx, username)
	if errors.Is(err, models.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(usr.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("in internal/service/service.go/Verify(): error while `bcrypt.CompareHashAndPassword()` calling: %w", err)
	}

	return true, nil
}

// GetNumberOfUsers returns the registry size.
func (s *Service) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return s.db.GetNumberOfUsers(ctx)
}

func (s *Service) validateGoal(name string, target, saved float64) (goalInput, error) {
	input := goalInput{Name: strings.TrimSpace(name), Target: target, Saved: saved}
	if err := s.validate.Struct(input); err != nil {
		return goalInput{}, fmt.Errorf("%w: %s", models.ErrInvalidGoal, describeValidationError(err))
	}

	return input, nil
}

// LoadGoals returns the collection of username, empty for a fresh user.
func (s *Service) LoadGoals(ctx context.Context, username string) ([]models.Goal, error) {
	return s.db.LoadGoals(ctx, username)
}

// SaveGoals overwrites the collection of username.
func (s *Service) SaveGoals(ctx context.Context, username string, goals []models.Goal) error {
	return s.db.SaveGoals(ctx, username, goals)
}

// GoalByID returns the goal of username with the given ID.
func (s *Service) GoalByID(ctx context.Context, username, id string) (models.Goal, error) {
	goals, err := s.db.LoadGoals(ctx, username)
	if err != nil {
		return models.Goal{}, err
	}

	index := indexByID(goals, id)
	if index < 0 {
		return models.Goal{}, models.ErrGoalNotFound
	}

	return goals[index], nil
}

// AddGoal appends a new goal to the collection of username.
func (s *Service) AddGoal(ctx context.Context, username, name string, target, saved float64) (models.Goal, error) {
	input, err := s.validateGoal(name, target, saved)
	if err != nil {
		return models.Goal{}, err
	}

	goal := models.Goal{
		ID:     uuid.New().String(),
		Name:   input.Name,
		Target: input.Target,
		Saved:  input.Saved,
	}

	err = s.db.UpdateGoals(ctx, username, func(goals []models.Goal) ([]models.Goal, error) {
		return append(goals, goal), nil
	})
	if err != nil {
		return models.Goal{}, err
	}

	return goal, nil
}

// EditGoal replaces name, target and saved amount of the goal with the given ID.
func (s *Service) EditGoal(ctx context.Context, username, id, name string, target, saved float64) error {
	input, err := s.validateGoal(name, target, saved)
	if err != nil {
		return err
	}

	return s.mutateGoal(ctx, username, id, func(goal *models.Goal) {
		goal.Name = input.Name
		goal.Target = input.Target
		goal.Saved = input.Saved
	})
}

// UpdateSavings changes only the saved amount of the goal with the given ID.
func (s *Service) UpdateSavings(ctx context.Context, username, id string, saved float64) error {
	if err := s.validate.Struct(savingsInput{Saved: saved}); err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidGoal, describeValidationError(err))
	}

	return s.mutateGoal(ctx, username, id, func(goal *models.Goal) {
		goal.Saved = saved
	})
}

func (s *Service) mutateGoal(ctx context.Context, username, id string, apply func(goal *models.Goal)) error {
	return s.db.UpdateGoals(ctx, username, func(goals []models.Goal) ([]models.Goal, error) {
		index := indexByID(goals, id)
		if index < 0 {
			return nil, models.ErrGoalNotFound
		}
		apply(&goals[index])

		return goals, nil
	})
}

// DeleteGoal removes the goal with the given ID and returns it.
func (s *Service) DeleteGoal(ctx context.Context, username, id string) (models.Goal, error) {
	var removed models.Goal
	err := s.db.UpdateGoals(ctx, username, func(goals []models.Goal) ([]models.Goal, error) {
		index := indexByID(goals, id)
		if index < 0 {
			return nil, models.ErrGoalNotFound
		}
		removed = goals[index]

		return slices.Delete(goals, index, index+1), nil
	})
	if err != nil {
		return models.Goal{}, err
	}

	return removed, nil
}

// DeleteGoalsByName removes every goal named name and returns how many were removed.
func (s *Service) DeleteGoalsByName(ctx context.Context, username, name string) (int, error) {
	removed := 0
	err := s.db.UpdateGoals(ctx, username, func(goals []models.Goal) ([]models.Goal, error) {
		kept := funk.Filter(goals, func(goal models.Goal) bool {
			return goal.Name != name
		}).([]models.Goal)
		removed = len(goals) - len(kept)

		return kept, nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// Overview returns the displayed goals of username together with the totals.
func (s *Service) Overview(ctx context.Context, username string) ([]models.GoalView, models.Summary, error) {
	goals, err := s.db.LoadGoals(ctx, username)
	if err != nil {
		return nil, models.Summary{}, err
	}

	views := funk.Map(goals, func(goal models.Goal) models.GoalView {
		return goal.View()
	}).([]models.GoalView)

	return views, Summarize(goals), nil
}

// Summarize computes the totals shown under the goals table.
func Summarize(goals []models.Goal) models.Summary {
	saved := funk.SumFloat64(funk.Map(goals, func(goal models.Goal) float64 {
		return goal.Saved
	}).([]float64))
	target := funk.SumFloat64(funk.Map(goals, func(goal models.Goal) float64 {
		return goal.Target
	}).([]float64))

	return models.Summary{
		TotalGoals:  len(goals),
		TotalSaved:  saved,
		TotalTarget: target,
		Remaining:   target - saved,
	}
}

func indexByID(goals []models.Goal, id string) int {
	return slices.IndexFunc(goals, func(goal models.Goal) bool {
		return goal.ID == id
	})
}
