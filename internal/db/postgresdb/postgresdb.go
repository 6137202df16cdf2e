// Package postgresdb provides a PostgreSQL-based implementation of the storage
// for the user registry and the per-user goal collections.
// The schema is applied with goose from migrations embedded into the binary.
package postgresdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/savetrack/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// PostgresDB is a PostgreSQL-backed storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables resetting the database schema before migration.
// It is meant for test setups.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.UpContext(ctx, result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.UpContext()` calling: %w",
				err,
			)
	}

	return result, nil
}

// CreateUser inserts a registry row. It returns models.ErrUserExists
// when the username is already taken.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *models.User) error {
	result, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO users (username, password_hash)
				VALUES ($1, $2)
				ON CONFLICT (username) DO NOTHING
		`,
		usr.Username,
		usr.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/CreateUser(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrUserExists
	}

	return nil
}

// GetUserByName fetches a registry row or returns models.ErrUserNotFound.
func (db *PostgresDB) GetUserByName(ctx context.Context, username string) (*models.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT username, password_hash FROM users WHERE username = $1`,
		username,
	)

	usr := &models.User{}
	err := row.Scan(&usr.Username, &usr.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}

	return usr, nil
}

// GetNumberOfUsers returns the registry size.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	var count int64
	err := db.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// LoadGoals returns the goals of username ordered as they were saved.
func (db *PostgresDB) LoadGoals(ctx context.Context, username string) ([]models.Goal, error) {
	return loadGoals(ctx, db.database, username, false)
}

func loadGoals(ctx context.Context, database queryer, username string, forUpdate bool) ([]models.Goal, error) {
	query := `
		SELECT id, name, target, saved
			FROM goals
			WHERE username = $1
			ORDER BY position
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := database.QueryContext(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.Goal{}
	for rows.Next() {
		var goal models.Goal
		err = rows.Scan(&goal.ID, &goal.Name, &goal.Target, &goal.Saved)
		if err != nil {
			return nil, err
		}
		result = append(result, goal)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

func replaceGoals(ctx context.Context, transaction *sql.Tx, username string, goals []models.Goal) error {
	_, err := transaction.ExecContext(ctx, `DELETE FROM goals WHERE username = $1`, username)
	if err != nil {
		return err
	}

	for position, goal := range goals {
		_, err := transaction.ExecContext(
			ctx,
			`
				INSERT INTO goals (id, username, position, name, target, saved)
					VALUES ($1, $2, $3, $4, $5, $6)
			`,
			goal.ID,
			username,
			position,
			goal.Name,
			goal.Target,
			goal.Saved,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// SaveGoals overwrites the goals of username in one transaction.
func (db *PostgresDB) SaveGoals(ctx context.Context, username string, goals []models.Goal) error {
	return db.withTransaction(ctx, func(transaction *sql.Tx) error {
		return replaceGoals(ctx, transaction, username, goals)
	})
}

// UpdateGoals runs a load-mutate-save cycle inside a transaction holding the
// user's row lock, so concurrent cycles on the same user are serialised.
func (db *PostgresDB) UpdateGoals(
	ctx context.Context,
	username string,
	mutate func([]models.Goal) ([]models.Goal, error),
) error {
	return db.withTransaction(ctx, func(transaction *sql.Tx) error {
		_, err := transaction.ExecContext(
			ctx,
			`SELECT username FROM users WHERE username = $1 FOR UPDATE`,
			username,
		)
		if err != nil {
			return err
		}

		goals, err := loadGoals(ctx, transaction, username, true)
		if err != nil {
			return err
		}

		goals, err = mutate(goals)
		if err != nil {
			return err
		}

		return replaceGoals(ctx, transaction, username, goals)
	})
}

func (db *PostgresDB) withTransaction(ctx context.Context, fn func(transaction *sql.Tx) error) error {
	transaction, err := db.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(transaction); err != nil {
		if err2 := transaction.Rollback(); err2 != nil {
			return errors.Join(err, err2)
		}
		return err
	}

	return transaction.Commit()
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}
