package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type ResolutionStrategy string

const (
	StrategyClientWins ResolutionStrategy = "client_wins"
	StrategyServerWins ResolutionStrategy = "server_wins"
	StrategyMerge      ResolutionStrategy = "merge"
	StrategyManual     ResolutionStrategy = "manual"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	BatchSize  int
	MaxRetries int
	LockTTL    time.Duration
	Strategy   ResolutionStrategy

	// EntityWeights orders reconciliation: financial and inventory mutations
	// before catalog edits. Overridable via ENTITY_WEIGHTS_FILE (yaml).
	EntityWeights map[string]int
}

func DefaultEntityWeights() map[string]int {
	return map[string]int{
		"order":     1000,
		"payment":   900,
		"inventory": 800,
		"customer":  500,
		"product":   400,
		"category":  300,
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		Strategy:      ResolutionStrategy(getEnv("SYNC_STRATEGY", string(StrategyServerWins))),
		EntityWeights: DefaultEntityWeights(),
	}

	var err error
	if cfg.BatchSize, err = getEnvInt("SYNC_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getEnvInt("SYNC_MAX_RETRIES", 3); err != nil {
		return nil, err
	}

	lockTTLStr := getEnv("SYNC_LOCK_TTL", "5m")
	if cfg.LockTTL, err = time.ParseDuration(lockTTLStr); err != nil {
		return nil, errors.New("invalid SYNC_LOCK_TTL format")
	}

	switch cfg.Strategy {
	case StrategyClientWins, StrategyServerWins, StrategyMerge, StrategyManual:
	default:
		return nil, fmt.Errorf("invalid SYNC_STRATEGY %q", cfg.Strategy)
	}

	if path := os.Getenv("ENTITY_WEIGHTS_FILE"); path != "" {
		if err := loadEntityWeights(path, cfg.EntityWeights); err != nil {
			return nil, err
		}
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// loadEntityWeights overlays weights from a yaml file onto the defaults, so a
// deployment only lists the types it wants to change.
func loadEntityWeights(path string, weights map[string]int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read entity weights file: %w", err)
	}
	var overrides map[string]int
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse entity weights file: %w", err)
	}
	for entityType, weight := range overrides {
		weights[entityType] = weight
	}
	return nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return n, nil
}
