// Package app initializes and runs the savings tracker service.
// It configures logging, storage, sessions and routing,
// and handles graceful shutdown.
package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patric-chuzhbe/savetrack/internal/auth"
	"github.com/patric-chuzhbe/savetrack/internal/config"
	"github.com/patric-chuzhbe/savetrack/internal/db/csvdb"
	"github.com/patric-chuzhbe/savetrack/internal/db/memorystorage"
	"github.com/patric-chuzhbe/savetrack/internal/db/postgresdb"
	"github.com/patric-chuzhbe/savetrack/internal/db/storage"
	"github.com/patric-chuzhbe/savetrack/internal/logger"
	"github.com/patric-chuzhbe/savetrack/internal/models"
	"github.com/patric-chuzhbe/savetrack/internal/router"
	"github.com/patric-chuzhbe/savetrack/internal/service"
	"github.com/patric-chuzhbe/savetrack/internal/session"
)

const (
	shutdownTimeout     = 10 * time.Second
	signingKeyLength    = 32
	purgeChannelBacklog = 16
)

// App encapsulates the configuration, HTTP handler, storage backend
// and the session reaper needed to run the tracker.
type App struct {
	cfg         *config.Config
	db          storage.Storage
	reaper      *session.Reaper
	stopReaper  context.CancelFunc
	httpHandler http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - setting up the session registry and its reaper
// - setting up the router and middleware
func New(optionsProto ...config.InitOption) (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New(optionsProto...)
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	if err := checkStorage(app.db, app.cfg.DBConnectionTimeout); err != nil {
		return nil, errors.Join(err, app.db.Close())
	}

	signingKey, err := getSigningKey(app.cfg.SessionSigningSecretKey)
	if err != nil {
		return nil, errors.Join(err, app.db.Close())
	}

	svc, err := service.New(app.db, app.cfg.BcryptCost)
	if err != nil {
		return nil, errors.Join(err, app.db.Close())
	}

	sessions := session.NewManager()
	app.reaper = session.NewReaper(
		sessions,
		app.cfg.SessionMaxIdle,
		app.cfg.SessionReapInterval,
		purgeChannelBacklog,
	)
	reaperRunCtx, stopReaper := context.WithCancel(context.Background())
	app.stopReaper = stopReaper

	app.reaper.Run(reaperRunCtx)
	app.reaper.ListenPurges(func(purged int) {
		logger.Log.Debugw("idle sessions purged", "purged", purged, "left", sessions.Len())
	})

	app.httpHandler, err = router.New(
		svc,
		auth.New(
			sessions,
			app.cfg.SessionCookieName,
			signingKey,
		),
		app.cfg.CurrencySymbol,
	)
	if err != nil {
		stopReaper()
		return nil, errors.Join(err, app.db.Close())
	}

	return app, nil
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infow("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           a.httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing storage and exiting...")
		a.stopReaper()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Join(fmt.Errorf("server shutdown error: %w", err), a.db.Close())
		}

		return a.db.Close()

	case err := <-serverErrCh:
		a.stopReaper()
		return errors.Join(fmt.Errorf("server error: %w", err), a.db.Close())
	}
}

// checkStorage makes sure the backend answers before the server starts.
func checkStorage(db storage.Storage, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("in internal/app/app.go/checkStorage(): error while `db.Ping()` calling: %w", err)
	}

	numberOfUsers, err := db.GetNumberOfUsers(ctx)
	if err != nil {
		return fmt.Errorf("in internal/app/app.go/checkStorage(): error while `db.GetNumberOfUsers()` calling: %w", err)
	}
	logger.Log.Infow("storage ready", "users", numberOfUsers)

	return nil
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

// getSigningKey decodes the configured key. Without one a random key is
// generated, so cookies stop verifying after a restart, same as the sessions they point to.
func getSigningKey(encoded string) ([]byte, error) {
	if encoded != "" {
		key, err := base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("in internal/app/app.go/getSigningKey(): error while `base64.URLEncoding.DecodeString()` calling: %w", err)
		}
		return key, nil
	}

	key := make([]byte, signingKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/getSigningKey(): error while `rand.Read()` calling: %w", err)
	}
	logger.Log.Warn("SESSION_SIGNING_SECRET_KEY is not set, using a random key")

	return key, nil
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.InMemory {
		return models.StorageTypeMemory
	}

	if cfg.DataDir != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeUnknown
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	var (
		db  storage.Storage
		err error
	)

	switch getAvailableStorageType(cfg) {
	case models.StorageTypePostgresql:
		db, err = postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
		)

	case models.StorageTypeFile:
		db, err = csvdb.New(cfg.DataDir)

	case models.StorageTypeMemory:
		db, err = memorystorage.New()

	default:
		return nil, errors.New("unknown storage type")
	}
	if err != nil {
		return nil, err
	}

	logger.Log.Infow("storage selected", "type", fmt.Sprintf("%T", db))

	return db, nil
}
