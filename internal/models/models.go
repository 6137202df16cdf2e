// Package models holds the data types shared by the storage, service and
// router layers of the savings tracker.
package models

import (
	"errors"
	"math"
)

// User is a registered account. Users are created on sign up and never
// mutated or deleted afterwards.
type User struct {
	// Username is the unique key of the registry.
	Username string

	// PasswordHash is the bcrypt hash of the password, never the plaintext.
	PasswordHash string
}

// Goal is a named target/saved-amount pair owned by exactly one user.
type Goal struct {
	// ID is a UUID assigned on creation. Names may repeat, IDs never do.
	ID     string
	Name   string
	Target float64
	Saved  float64
}

// GoalView is a Goal decorated with the values displayed in the goals table.
type GoalView struct {
	Goal
	Progress    float64
	HasProgress bool
	Remaining   float64
}

// Summary aggregates the metrics shown under the goals table.
type Summary struct {
	TotalGoals  int
	TotalSaved  float64
	TotalTarget float64
	Remaining   float64
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

var (
	ErrUserExists              = errors.New("username already exists")
	ErrUserNotFound            = errors.New("user not found")
	ErrGoalNotFound            = errors.New("goal not found")
	ErrInvalidGoal             = errors.New("invalid goal")
	ErrInvalidCredentialsInput = errors.New("invalid username or password format")
)

// Progress returns saved/target*100 rounded to two decimals. The second
// result is false when target is zero and the percentage is undefined.
func Progress(saved, target float64) (float64, bool) {
	if target == 0 {
		return 0, false
	}

	return math.Round(saved/target*100*100) / 100, true
}

// View builds the displayed representation of g.
func (g Goal) View() GoalView {
	progress, ok := Progress(g.Saved, g.Target)

	return GoalView{
		Goal:        g,
		Progress:    progress,
		HasProgress: ok,
		Remaining:   g.Target - g.Saved,
	}
}
