// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "insights"

// Store backends.
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

type Config struct {
	AppEnv                  string        `mapstructure:"APP_ENV" validate:"required,oneof=development production test"`
	LogLevel                string        `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error"`
	StoreBackend            string        `mapstructure:"STORE_BACKEND" validate:"required,oneof=memory postgres firestore"`
	PostgresDSN             string        `mapstructure:"POSTGRES_DSN" validate:"required_if=StoreBackend postgres"`
	PostgresMaxConns        int32         `mapstructure:"POSTGRES_MAX_CONNS" validate:"min=1"`
	PostgresMinConns        int32         `mapstructure:"POSTGRES_MIN_CONNS" validate:"min=0,ltefield=PostgresMaxConns"`
	FirestoreProjectID      string        `mapstructure:"FIRESTORE_PROJECT_ID" validate:"required_if=StoreBackend firestore"`
	Locale                  string        `mapstructure:"LOCALE" validate:"required,oneof=vi en"`
	AnomalyDefaultThreshold float64       `mapstructure:"ANOMALY_DEFAULT_THRESHOLD" validate:"gte=0,lte=1"`
	AnomalyEstimators       int           `mapstructure:"ANOMALY_ESTIMATORS" validate:"min=1"`
	ForecastEstimators      int           `mapstructure:"FORECAST_ESTIMATORS" validate:"min=1"`
	ModelCacheMaxUsers      int           `mapstructure:"MODEL_CACHE_MAX_USERS" validate:"min=1"`
	ModelCacheTTL           time.Duration `mapstructure:"MODEL_CACHE_TTL" validate:"gte=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("POSTGRES_MAX_CONNS", 10)
	v.SetDefault("POSTGRES_MIN_CONNS", 2)
	v.SetDefault("LOCALE", "vi")
	v.SetDefault("ANOMALY_DEFAULT_THRESHOLD", 0.6)
	v.SetDefault("ANOMALY_ESTIMATORS", 200)
	v.SetDefault("FORECAST_ESTIMATORS", 200)
	v.SetDefault("MODEL_CACHE_MAX_USERS", 1000)
	v.SetDefault("MODEL_CACHE_TTL", "24h")
}

// Load reads INSIGHTS_* variables, after loading any of envFiles that exist,
// and validates the result.
func Load(logger *zap.Logger, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			logger.Debug("env_file_not_loaded", zap.String("file", f), zap.Error(err))
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := parseStructEnv(v, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, formatErrors(err)
	}
	return &cfg, nil
}

// parseStructEnv binds every mapstructure tag of cfg to its env var so
// Unmarshal sees variables that have no default.
func parseStructEnv(v *viper.Viper, cfg any) error {
	t := reflect.TypeOf(cfg).Elem()
	for i := 0; i < t.NumField(); i++ {
		if err := v.BindEnv(t.Field(i).Tag.Get("mapstructure")); err != nil {
			return err
		}
	}
	return v.Unmarshal(cfg)
}

func formatErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	fields := reflect.TypeOf(Config{})
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if f, ok := fields.FieldByName(fe.StructField()); ok {
			name = strings.ToUpper(envPrefix) + "_" + f.Tag.Get("mapstructure")
		}
		msg := fmt.Sprintf("%s failed %q", name, fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed %q (%s)", name, fe.Tag(), fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
