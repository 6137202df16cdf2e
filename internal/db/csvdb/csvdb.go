// Package csvdb stores the user registry and the per-user goal collections
// as flat CSV files inside a single data directory.
//
// Every write fully rewrites the affected file. Operations are serialised
// by one in-process mutex, writers in other processes still race.
package csvdb

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/patric-chuzhbe/savetrack/internal/models"
)

const (
	// UsersFileName is the registry file inside the data directory.
	UsersFileName = "users.csv"

	goalsFileSuffix = "_goals.csv"
)

var (
	usersHeader       = []string{"Username", "Password"}
	goalsHeader       = []string{"ID", "Goal", "Target", "Saved"}
	legacyGoalsHeader = []string{"Goal", "Target", "Saved"}
)

// ErrMalformedFile is returned when a CSV file has an unexpected header or row shape.
var ErrMalformedFile = errors.New("malformed data file")

// CSVDB is the file-backed storage.
type CSVDB struct {
	dir string
	mu  sync.Mutex
}

// New prepares the data directory and returns the storage rooted at it.
func New(dir string) (*CSVDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("in internal/db/csvdb/csvdb.go/New(): error while `os.MkdirAll()` calling: %w", err)
	}

	return &CSVDB{dir: dir}, nil
}

// GoalsFileName returns the deterministic goals file name for username.
func GoalsFileName(username string) string {
	return username + goalsFileSuffix
}

func (db *CSVDB) usersPath() string {
	return filepath.Join(db.dir, UsersFileName)
}

func (db *CSVDB) goalsPath(username string) string {
	return filepath.Join(db.dir, GoalsFileName(username))
}

func readCSVFile(fileName string) ([][]string, error) {
	file, err := os.Open(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", fileName, err)
		}
		records = append(records, record)
	}

	return records, nil
}

// writeCSVFile replaces fileName atomically: rows go to a temporary file in
// the same directory, which is renamed over fileName once it is complete.
func writeCSVFile(fileName string, header []string, rows [][]string) (err error) {
	file, err := os.CreateTemp(filepath.Dir(fileName), filepath.Base(fileName)+".tmp-*")
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, os.Remove(file.Name()))
		}
	}()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return errors.Join(fmt.Errorf("error writing to file: %w", err), file.Close())
	}
	if err := writer.WriteAll(rows); err != nil {
		return errors.Join(fmt.Errorf("error writing to file: %w", err), file.Close())
	}
	if err := file.Sync(); err != nil {
		return errors.Join(fmt.Errorf("error syncing file: %w", err), file.Close())
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("error closing file: %w", err)
	}
	if err := os.Chmod(file.Name(), 0o644); err != nil {
		return fmt.Errorf("error setting file mode: %w", err)
	}
	if err := os.Rename(file.Name(), fileName); err != nil {
		return fmt.Errorf("error replacing %s: %w", fileName, err)
	}

	return nil
}

func (db *CSVDB) readUsers() ([]models.User, error) {
	records, err := readCSVFile(db.usersPath())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []models.User{}, nil
	}
	if !slices.Equal(records[0], usersHeader) {
		return nil, fmt.Errorf("%w: %s has header %v", ErrMalformedFile, UsersFileName, records[0])
	}

	users := make([]models.User, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) != len(usersHeader) {
			return nil, fmt.Errorf("%w: %s row %v", ErrMalformedFile, UsersFileName, record)
		}
		users = append(users, models.User{Username: record[0], PasswordHash: record[1]})
	}

	return users, nil
}

func (db *CSVDB) writeUsers(users []models.User) error {
	rows := make([][]string, 0, len(users))
	for _, usr := range users {
		rows = append(rows, []string{usr.Username, usr.PasswordHash})
	}

	return writeCSVFile(db.usersPath(), usersHeader, rows)
}

func parseAmount(value string) (float64, error) {
	amount, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad amount %q", ErrMalformedFile, value)
	}

	return amount, nil
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// readGoals loads the collection of username. The second result reports
// whether the file used the layout without IDs and needs rewriting.
func (db *CSVDB) readGoals(username string) ([]models.Goal, bool, error) {
	records, err := readCSVFile(db.goalsPath(username))
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return []models.Goal{}, false, nil
	}

	legacy := false
	switch {
	case slices.Equal(records[0], goalsHeader):
	case slices.Equal(records[0], legacyGoalsHeader):
		legacy = true
	default:
		return nil, false, fmt.Errorf("%w: goals of %q have header %v", ErrMalformedFile, username, records[0])
	}

	goals := make([]models.Goal, 0, len(records)-1)
	for _, record := range records[1:] {
		if legacy {
			record = append([]string{uuid.New().String()}, record...)
		}
		if len(record) != len(goalsHeader) {
			return nil, false, fmt.Errorf("%w: goals of %q row %v", ErrMalformedFile, username, record)
		}

		target, err := parseAmount(record[2])
		if err != nil {
			return nil, false, err
		}
		saved, err := parseAmount(record[3])
		if err != nil {
			return nil, false, err
		}

		goals = append(goals, models.Goal{
			ID:     record[0],
			Name:   record[1],
			Target: target,
			Saved:  saved,
		})
	}

	return goals, legacy, nil
}

func (db *CSVDB) writeGoals(username string, goals []models.Goal) error {
	rows := make([][]string, 0, len(goals))
	for _, goal := range goals {
		rows = append(rows, []string{
			goal.ID,
			goal.Name,
			formatAmount(goal.Target),
			formatAmount(goal.Saved),
		})
	}

	return writeCSVFile(db.goalsPath(username), goalsHeader, rows)
}

func (db *CSVDB) loadGoals(username string) ([]models.Goal, error) {
	goals, legacy, err := db.readGoals(username)
	if err != nil {
		return nil, err
	}
	if legacy {
		if err := db.writeGoals(username, goals); err != nil {
			return nil, err
		}
	}

	return goals, nil
}

// CreateUser appends usr to the registry or returns models.ErrUserExists.
func (db *CSVDB) CreateUser(ctx context.Context, usr *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	users, err := db.readUsers()
	if err != nil {
		return err
	}

	for _, existing := range users {
		if existing.Username == usr.Username {
			return models.ErrUserExists
		}
	}

	return db.writeUsers(append(users, *usr))
}

// GetUserByName looks a user up in the registry.
func (db *CSVDB) GetUserByName(ctx context.Context, username string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	users, err := db.readUsers()
	if err != nil {
		return nil, err
	}

	for _, usr := range users {
		if usr.Username == username {
			return &usr, nil
		}
	}

	return nil, models.ErrUserNotFound
}

// GetNumberOfUsers returns the registry size.
func (db *CSVDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	users, err := db.readUsers()
	if err != nil {
		return 0, err
	}

	return int64(len(users)), nil
}

// LoadGoals returns the collection of username, empty when no file exists yet.
func (db *CSVDB) LoadGoals(ctx context.Context, username string) ([]models.Goal, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.loadGoals(username)
}

// SaveGoals overwrites the collection of username.
func (db *CSVDB) SaveGoals(ctx context.Context, username string, goals []models.Goal) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.writeGoals(username, goals)
}

// UpdateGoals runs a load-mutate-save cycle on the collection of username
// without letting other operations of this process interleave.
func (db *CSVDB) UpdateGoals(
	ctx context.Context,
	username string,
	mutate func([]models.Goal) ([]models.Goal, error),
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	goals, err := db.loadGoals(username)
	if err != nil {
		return err
	}

	goals, err = mutate(goals)
	if err != nil {
		return err
	}

	return db.writeGoals(username, goals)
}

// Ping checks that the data directory is still reachable.
func (db *CSVDB) Ping(ctx context.Context) error {
	info, err := os.Stat(db.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", db.dir)
	}

	return nil
}

// Close is a no-op, every write is already on disk.
func (db *CSVDB) Close() error {
	return nil
}
