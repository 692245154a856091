// Package config loads detector settings from the environment, an optional
// .env file and an optional YAML tuning file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultPort            = "8000"
	DefaultLogLevel        = "info"
	DefaultEvidenceDir     = "evidence"
	DefaultSessionLogDir   = "logs"
	DefaultPhoneModelPath  = "models/yolov8n.onnx"
	DefaultPhoneConfidence = 0.3
	DefaultLandmarkTimeout = 5 * time.Second
)

// Config holds process level settings.
type Config struct {
	Port            string
	LogLevel        string
	EvidenceDir     string
	SessionLogDir   string
	PhoneModelPath  string
	PhoneConfidence float64
	LandmarkURL     string // Face mesh sidecar; empty disables landmarks
	LandmarkTimeout time.Duration
	StaticDir       string
	TuningFile      string // YAML overrides for detector thresholds
}

// Load reads .env (if present) and the environment.
func Load() Config {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads settings from the environment only.
func FromEnv() Config {
	return Config{
		Port:            getEnv("HTTP_PORT", DefaultPort),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		EvidenceDir:     getEnv("EVIDENCE_DIR", DefaultEvidenceDir),
		SessionLogDir:   getEnv("SESSION_LOG_DIR", DefaultSessionLogDir),
		PhoneModelPath:  getEnv("PHONE_MODEL_PATH", DefaultPhoneModelPath),
		PhoneConfidence: getEnvFloat("PHONE_CONFIDENCE", DefaultPhoneConfidence),
		LandmarkURL:     getEnv("LANDMARK_URL", ""),
		LandmarkTimeout: getEnvDuration("LANDMARK_TIMEOUT", DefaultLandmarkTimeout),
		StaticDir:       getEnv("STATIC_DIR", ""),
		TuningFile:      getEnv("PROCTOR_CONFIG", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
