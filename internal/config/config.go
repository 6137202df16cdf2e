// Package config assembles the service configuration from defaults, an
// optional JSON file, environment variables and command line flags.
// Later sources win: CLI > ENV > JSON > defaults.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	RunAddr                 string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel                string        `env:"LOG_LEVEL" validate:"loglevel"`
	DataDir                 string        `env:"DATA_DIR" validate:"omitempty,filepath"`
	DatabaseDSN             string        `env:"DATABASE_DSN"`
	DBConnectionTimeout     time.Duration `env:"DB_CONNECTION_TIMEOUT" validate:"gt=0"`
	SessionCookieName       string        `env:"SESSION_COOKIE_NAME" validate:"required"`
	SessionSigningSecretKey string        `env:"SESSION_SIGNING_SECRET_KEY" validate:"omitempty,base64url"`
	SessionMaxIdle          time.Duration `env:"SESSION_MAX_IDLE" validate:"gt=0"`
	SessionReapInterval     time.Duration `env:"SESSION_REAP_INTERVAL" validate:"gte=1s"`
	BcryptCost              int           `env:"BCRYPT_COST" validate:"min=4,max=31"`
	CurrencySymbol          string        `env:"CURRENCY_SYMBOL" validate:"required"`
	InMemory                bool          `env:"IN_MEMORY"`
	ConfigFile              string        `env:"CONFIG"`
}

// jsonConfig mirrors Config in the JSON file. Durations are Go duration strings.
type jsonConfig struct {
	RunAddr                 string `json:"server_address"`
	LogLevel                string `json:"log_level"`
	DataDir                 string `json:"data_dir"`
	DatabaseDSN             string `json:"database_dsn"`
	DBConnectionTimeout     string `json:"db_connection_timeout"`
	SessionCookieName       string `json:"session_cookie_name"`
	SessionSigningSecretKey string `json:"session_signing_secret_key"`
	SessionMaxIdle          string `json:"session_max_idle"`
	SessionReapInterval     string `json:"session_reap_interval"`
	BcryptCost              int    `json:"bcrypt_cost"`
	CurrencySymbol          string `json:"currency_symbol"`
	InMemory                bool   `json:"in_memory"`
}

var defaultConfig = Config{
	RunAddr:             ":8080",
	LogLevel:            "info",
	DataDir:             "data",
	DBConnectionTimeout: 10 * time.Second,
	SessionCookieName:   "session",
	SessionMaxIdle:      24 * time.Hour,
	SessionReapInterval: 10 * time.Minute,
	BcryptCost:          10,
	CurrencySymbol:      "₱",
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	args                []string
}

// WithDisableFlagsParsing skips command line parsing, used by tests.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithArgs parses the given arguments instead of os.Args[1:].
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
}

// applyNonZero copies every non-zero field of source into target.
func applyNonZero(target *Config, source Config) {
	if source.RunAddr != "" {
		target.RunAddr = source.RunAddr
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}
	if source.DatabaseDSN != "" {
		target.DatabaseDSN = source.DatabaseDSN
	}
	if source.DBConnectionTimeout != 0 {
		target.DBConnectionTimeout = source.DBConnectionTimeout
	}
	if source.SessionCookieName != "" {
		target.SessionCookieName = source.SessionCookieName
	}
	if source.SessionSigningSecretKey != "" {
		target.SessionSigningSecretKey = source.SessionSigningSecretKey
	}
	if source.SessionMaxIdle != 0 {
		target.SessionMaxIdle = source.SessionMaxIdle
	}
	if source.SessionReapInterval != 0 {
		target.SessionReapInterval = source.SessionReapInterval
	}
	if source.BcryptCost != 0 {
		target.BcryptCost = source.BcryptCost
	}
	if source.CurrencySymbol != "" {
		target.CurrencySymbol = source.CurrencySymbol
	}
	if source.InMemory {
		target.InMemory = true
	}
	if source.ConfigFile != "" {
		target.ConfigFile = source.ConfigFile
	}
}

func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config file: bad %s %q: %w", name, value, err)
	}

	return duration, nil
}

func loadJSON(fileName string) (Config, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return Config{}, fmt.Errorf("in internal/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	var raw jsonConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("in internal/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}

	result := Config{
		RunAddr:                 raw.RunAddr,
		LogLevel:                raw.LogLevel,
		DataDir:                 raw.DataDir,
		DatabaseDSN:             raw.DatabaseDSN,
		SessionCookieName:       raw.SessionCookieName,
		SessionSigningSecretKey: raw.SessionSigningSecretKey,
		BcryptCost:              raw.BcryptCost,
		CurrencySymbol:          raw.CurrencySymbol,
		InMemory:                raw.InMemory,
	}

	var errs []error
	var durationErr error
	result.DBConnectionTimeout, durationErr = parseDuration("db_connection_timeout", raw.DBConnectionTimeout)
	errs = append(errs, durationErr)
	result.SessionMaxIdle, durationErr = parseDuration("session_max_idle", raw.SessionMaxIdle)
	errs = append(errs, durationErr)
	result.SessionReapInterval, durationErr = parseDuration("session_reap_interval", raw.SessionReapInterval)
	errs = append(errs, durationErr)

	return result, errors.Join(errs...)
}

func parseFlags(args []string) (Config, error) {
	var values Config
	flagSet := flag.NewFlagSet("savetrack", flag.ContinueOnError)
	flagSet.StringVar(&values.RunAddr, "a", "", "address and port to run server")
	flagSet.StringVar(&values.LogLevel, "l", "", "logger level")
	flagSet.StringVar(&values.DataDir, "f", "", "directory with the users and goals CSV files")
	flagSet.StringVar(&values.DatabaseDSN, "d", "", "a string with the database connection details")
	flagSet.StringVar(&values.ConfigFile, "c", "", "JSON configuration file")
	flagSet.BoolVar(&values.InMemory, "m", false, "keep users and goals in memory only")
	flagSet.IntVar(&values.BcryptCost, "bcrypt-cost", 0, "bcrypt cost of new password hashes")

	if err := flagSet.Parse(args); err != nil {
		return Config{}, err
	}

	return values, nil
}

// New builds the configuration.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		args:                os.Args[1:],
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	var valuesFromFlags Config
	if !options.disableFlagsParsing {
		valuesFromFlags, err = parseFlags(options.args)
		if err != nil {
			return nil, err
		}
	}

	var valuesFromEnv Config
	err = env.Parse(&valuesFromEnv)
	if err != nil {
		return nil, err
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	configFile := valuesFromFlags.ConfigFile
	if configFile == "" {
		configFile = valuesFromEnv.ConfigFile
	}
	if configFile != "" {
		valuesFromJSON, err := loadJSON(configFile)
		if err != nil {
			return nil, err
		}
		applyNonZero(values, valuesFromJSON)
		values.ConfigFile = configFile
	}

	applyNonZero(values, valuesFromEnv)
	applyNonZero(values, valuesFromFlags)

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}
