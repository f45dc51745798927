// Package env layers command line flags over environment variables for the cellular tools.
package env

import (
	"context"
	"log"
	"os"

	"github.com/agentuity/go-cellular/logger"
	"github.com/agentuity/go-cellular/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	EnvInterface = "CELLULAR_INTERFACE"
	EnvConfig    = "CELLULAR_CONFIG"
	EnvLogFormat = "CELLULAR_LOG_FORMAT"
	EnvTrace     = "CELLULAR_TRACE"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// BoolFlagOrEnv is FlagOrEnv for switches. An explicitly set flag wins over the environment.
func BoolFlagOrEnv(cmd *cobra.Command, flagName string, envName string) bool {
	if f := cmd.Flags().Lookup(flagName); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool(flagName)
		return v
	}
	switch os.Getenv(envName) {
	case "1", "true", "TRUE", "yes", "on":
		return true
	}
	return false
}

// LogLevel reads --log-level, then CELLULAR_LOG_LEVEL, falling back to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	if level, ok := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, "info")); ok {
		return level
	}
	return logger.LevelInfo
}

// NewLogger returns a console logger, or a json logger when --log-format or CELLULAR_LOG_FORMAT
// is json.
func NewLogger(cmd *cobra.Command) logger.Logger {
	log.SetFlags(0)
	level := LogLevel(cmd)
	if FlagOrEnv(cmd, "log-format", EnvLogFormat, "console") == "json" {
		return logger.NewJSONLogger(level)
	}
	return logger.NewConsoleLogger(level)
}

// NewTracerProvider returns a provider that logs spans when --trace or CELLULAR_TRACE is set,
// otherwise a no-op provider.
func NewTracerProvider(ctx context.Context, cmd *cobra.Command, serviceName string, log logger.Logger) (trace.TracerProvider, telemetry.ShutdownFunc, error) {
	if !BoolFlagOrEnv(cmd, "trace", EnvTrace) {
		return noop.NewTracerProvider(), func() {}, nil
	}
	return telemetry.New(ctx, serviceName, log)
}
