/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string

	// Transcoder binaries
	GStreamerBin string
	FFmpegBin    string
	FFprobeBin   string

	// Stream output
	OutputTarget string // Icecast URL or file sink for the continuous stream
	SpoolDir     string // Working directory for downloaded sources and rendered segments

	// Playout tunables
	TickInterval      time.Duration
	SegmentTimeout    time.Duration
	CrossfadeDuration time.Duration

	JWTSigningKey string
	MetricsBind   string

	// Optional YAML file with operator-defined playlist weight profiles
	AlgorithmProfiles string

	// Redis cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS event bridge
	NATSURL string

	// S3 source storage (masters referenced by s3:// track URLs)
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Endpoint        string
	S3UsePathStyle    bool

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("WAXRADIO_ENV", "development"),
		HTTPBind:    getEnv("WAXRADIO_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("WAXRADIO_HTTP_PORT", 8080),
		DBBackend:   DatabaseBackend(getEnv("WAXRADIO_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:       getEnv("WAXRADIO_DB_DSN", "waxradio.db"),

		GStreamerBin: getEnv("WAXRADIO_GSTREAMER_BIN", "gst-launch-1.0"),
		FFmpegBin:    getEnv("WAXRADIO_FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:   getEnv("WAXRADIO_FFPROBE_BIN", "ffprobe"),

		OutputTarget: getEnv("WAXRADIO_OUTPUT_TARGET", ""),
		SpoolDir:     getEnv("WAXRADIO_SPOOL_DIR", os.TempDir()),

		TickInterval:      time.Duration(getEnvInt("WAXRADIO_TICK_MS", 1000)) * time.Millisecond,
		SegmentTimeout:    time.Duration(getEnvInt("WAXRADIO_SEGMENT_TIMEOUT_SECONDS", 60)) * time.Second,
		CrossfadeDuration: time.Duration(getEnvInt("WAXRADIO_CROSSFADE_SECONDS", 3)) * time.Second,

		JWTSigningKey: getEnv("WAXRADIO_JWT_SIGNING_KEY", ""),
		MetricsBind:   getEnv("WAXRADIO_METRICS_BIND", "127.0.0.1:9000"),

		AlgorithmProfiles: getEnv("WAXRADIO_ALGORITHM_PROFILES", ""),

		RedisAddr:     getEnv("WAXRADIO_REDIS_ADDR", ""),
		RedisPassword: getEnv("WAXRADIO_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("WAXRADIO_REDIS_DB", 0),

		NATSURL: getEnv("WAXRADIO_NATS_URL", ""),

		S3AccessKeyID:     getEnvAny([]string{"WAXRADIO_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"WAXRADIO_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"WAXRADIO_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:        getEnvAny([]string{"WAXRADIO_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBool("WAXRADIO_S3_USE_PATH_STYLE", false),

		TracingEnabled:    getEnvBool("WAXRADIO_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("WAXRADIO_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("WAXRADIO_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("WAXRADIO_DB_DSN must be provided")
	}

	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("WAXRADIO_TICK_MS must be positive")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.JWTSigningKey == "" {
			return nil, fmt.Errorf("WAXRADIO_JWT_SIGNING_KEY must be provided in production")
		}
		if cfg.OutputTarget == "" {
			return nil, fmt.Errorf("WAXRADIO_OUTPUT_TARGET must be provided in production")
		}
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
