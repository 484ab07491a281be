package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"abtest/internal/errors"

	"github.com/go-playground/validator/v10"
)

// Config represents the complete application configuration
type Config struct {
	Simulation SimulationConfig
	Analysis   AnalysisConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
}

// SimulationConfig holds null-distribution settings
type SimulationConfig struct {
	Trials  int `validate:"gt=0,lte=10000000"`
	Seed    uint64
	Workers int `validate:"gt=0"`
}

// AnalysisConfig holds decision settings
type AnalysisConfig struct {
	Alpha               float64 `validate:"gt=0,lt=1"`
	CrossCheckTolerance float64 `validate:"gte=0,lte=1"`
}

// LoggingConfig holds log/slog handler settings
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

// MetricsConfig holds the optional prometheus textfile destination
type MetricsConfig struct {
	File string
}

var validate = validator.New()

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Simulation: loadSimulationConfig(),
		Analysis:   loadAnalysisConfig(),
		Logging:    loadLoggingConfig(),
		Metrics:    loadMetricsConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Default returns the configuration used when no environment is set
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{Trials: 10000, Seed: 42, Workers: runtime.NumCPU()},
		Analysis:   AnalysisConfig{Alpha: 0.05, CrossCheckTolerance: 0.05},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate checks every field against its struct tags. Callers that override
// fields from flags re-run it.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.ConfigInvalid(err.Error())
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s must satisfy %s=%s (got %v)",
			strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag(), fe.Param(), fe.Value()))
	}
	return errors.ConfigInvalid(strings.Join(problems, "; "))
}

func loadSimulationConfig() SimulationConfig {
	d := Default().Simulation
	return SimulationConfig{
		Trials:  getEnvIntOrDefault("SIM_TRIALS", d.Trials),
		Seed:    getEnvUint64OrDefault("SIM_SEED", d.Seed),
		Workers: getEnvIntOrDefault("SIM_WORKERS", d.Workers),
	}
}

func loadAnalysisConfig() AnalysisConfig {
	d := Default().Analysis
	return AnalysisConfig{
		Alpha:               getEnvFloatOrDefault("ALPHA", d.Alpha),
		CrossCheckTolerance: getEnvFloatOrDefault("CROSSCHECK_TOLERANCE", d.CrossCheckTolerance),
	}
}

func loadLoggingConfig() LoggingConfig {
	d := Default().Logging
	return LoggingConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", d.Level)),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", d.Format)),
	}
}

func loadMetricsConfig() MetricsConfig {
	return MetricsConfig{
		File: getEnvOrDefault("METRICS_FILE", ""),
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64OrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if u, err := strconv.ParseUint(value, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
