package config

import (
	"os"
	"strconv"
)

// Config holds gate service configuration.
type Config struct {
	LogLevel       string
	PolicyPath     string
	CheckpointPath string
	DatabaseURL    string
	RedisAddr      string
	OTLPEndpoint   string
	PhaseTolerance float64
	MinTrust       float64
	NoiseSeed      string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	policyPath := os.Getenv("GATE_POLICY_PATH")
	if policyPath == "" {
		policyPath = "policy.yaml"
	}

	checkpointPath := os.Getenv("GATE_CHECKPOINT_PATH")
	if checkpointPath == "" {
		checkpointPath = "gate.db"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://gate@localhost:5433/gate?sslmode=disable"
	}

	tolerance := floatEnv("GATE_PHASE_TOLERANCE", 15.0)
	minTrust := floatEnv("GATE_MIN_TRUST", 0.3)

	seed := os.Getenv("GATE_NOISE_SEED")
	if seed == "" {
		seed = "gate-default"
	}

	return &Config{
		LogLevel:       logLevel,
		PolicyPath:     policyPath,
		CheckpointPath: checkpointPath,
		DatabaseURL:    dbURL,
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PhaseTolerance: tolerance,
		MinTrust:       minTrust,
		NoiseSeed:      seed,
	}
}

func floatEnv(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}
