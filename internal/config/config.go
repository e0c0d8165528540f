package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed profile.yaml
var profileYAML []byte

type Config struct {
	Detector     DetectorConfig
	Matching     MatchingConfig
	Registration RegistrationConfig
	Database     DatabaseConfig
	Web          WebConfig
}

type DetectorConfig struct {
	URL string // base URL of the face detection/embedding service
	Dim int    // embedding dimension the service produces
}

type MatchingConfig struct {
	Tolerance     float64 `yaml:"tolerance"`      // exclusive nearest-neighbor distance threshold
	MinConfidence float64 `yaml:"min_confidence"` // acceptance floor, candidates below become unknown
	MinFaceSize   int     `yaml:"min_face_size"`  // minimum box width/height in pixels
}

type RegistrationConfig struct {
	Workers          int `yaml:"workers"`            // parallel encode workers
	EncodeTimeoutSec int `yaml:"encode_timeout_sec"` // per-image hard timeout
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MariaDBDSN   string // MariaDB DSN, used when DATABASE_URL is not set
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	Addr string // listen address for the HTTP API (default :8080)
}

// profileConfig mirrors the embedded profile.yaml layout.
type profileConfig struct {
	Matching     MatchingConfig     `yaml:"matching"`
	Registration RegistrationConfig `yaml:"registration"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var profile profileConfig
	if err := yaml.Unmarshal(profileYAML, &profile); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded profile.yaml: " + err.Error())
	}

	return &Config{
		Detector: DetectorConfig{
			URL: envString("DETECTOR_URL", "http://localhost:8000"),
			Dim: envInt("EMBEDDING_DIM", 128),
		},
		Matching: MatchingConfig{
			Tolerance:     envFloat("MATCH_TOLERANCE", profile.Matching.Tolerance),
			MinConfidence: envFloat("MATCH_MIN_CONFIDENCE", profile.Matching.MinConfidence),
			MinFaceSize:   envInt("MATCH_MIN_FACE_SIZE", profile.Matching.MinFaceSize),
		},
		Registration: RegistrationConfig{
			Workers:          envInt("REGISTRATION_WORKERS", profile.Registration.Workers),
			EncodeTimeoutSec: envInt("REGISTRATION_ENCODE_TIMEOUT", profile.Registration.EncodeTimeoutSec),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MariaDBDSN:   os.Getenv("MARIADB_DSN"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			Addr: envString("LISTEN_ADDR", ":8080"),
		},
	}
}
