// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/group"
	"github.com/gwillem/amber/pkg/motion"
	"github.com/gwillem/amber/pkg/trajectory"
)

// Config holds everything the command line tools need.
type Config struct {
	Port               int
	Cadence            time.Duration
	Timeout            time.Duration
	CalibrationTimeout time.Duration
	MaxStep            float64
	Tolerance          float64
	SettleTimeout      time.Duration
	Manifest           string
	Trajectory         string
	LogLevel           string
}

// Load reads .env files (if any) and the environment. Missing or
// malformed values fall back to defaults.
func Load(files ...string) *Config {
	_ = godotenv.Load(files...)

	return &Config{
		Port:               getEnvAsInt("AMBER_PORT", actuator.DefaultPort),
		Cadence:            getEnvAsMillis("AMBER_CADENCE_MS", group.DefaultCadence),
		Timeout:            getEnvAsMillis("AMBER_TIMEOUT_MS", 0),
		CalibrationTimeout: time.Duration(getEnvAsInt("AMBER_CALIBRATION_TIMEOUT_S", 60)) * time.Second,
		MaxStep:            getEnvAsFloat("AMBER_MAX_STEP", 0),
		Tolerance:          getEnvAsFloat("AMBER_TOLERANCE", motion.DefaultTolerance),
		SettleTimeout:      getEnvAsMillis("AMBER_SETTLE_TIMEOUT_MS", motion.DefaultSettleTimeout),
		Manifest:           getEnv("AMBER_MANIFEST", actuator.DefaultManifestFile),
		Trajectory:         getEnv("AMBER_TRAJECTORY", trajectory.DefaultFile),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
}

// Logger builds a logger writing to stderr at the configured level.
// "off" and "none" discard everything.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()

	if c.LogLevel == "off" || c.LogLevel == "none" {
		logger.SetOutput(io.Discard)
	} else {
		level, err := logrus.ParseLevel(c.LogLevel)
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
		logger.SetOutput(os.Stderr)
	}

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return logger
}

// GroupOptions turns the configuration into group options.
func (c *Config) GroupOptions(log logrus.FieldLogger) []group.Option {
	return []group.Option{
		group.WithPort(c.Port),
		group.WithCadence(c.Cadence),
		group.WithTimeout(c.Timeout),
		group.WithCalibrationTimeout(c.CalibrationTimeout),
		group.WithLogger(log),
	}
}

// Session returns a motion session with the configured bounds.
func (c *Config) Session(log logrus.FieldLogger) *motion.Session {
	s := motion.NewSession()
	s.MaxStep = c.MaxStep
	s.Tolerance = c.Tolerance
	s.SettleTimeout = c.SettleTimeout
	s.Log = log
	return s
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(name string, defaultValue int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	valueStr := getEnv(name, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsMillis(name string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil && value >= 0 {
		return time.Duration(value) * time.Millisecond
	}
	return defaultValue
}
