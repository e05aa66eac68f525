package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"client-telemetry/pkg/identity"

	"github.com/joho/godotenv"
)

type Config struct {
	ConfigFile string
	Baseline   BaselineConfig
	Regression RegressionConfig
	Liveness   LivenessConfig
	Telemetry  TelemetryConfig
	Relay      RelayConfig
	Archive    ArchiveConfig
	Debug      DebugConfig
	Log        LogConfig
}

type BaselineConfig struct {
	MaxEntries         int    `validate:"min=1,max=1000"`
	DefaultLabel       string `validate:"required,max=64"`
	AutoCaptureSeconds int    `validate:"min=0"`
}

type RegressionConfig struct {
	AllowedP95Fraction           float64 `validate:"min=0"`
	AllowedFetchIncreaseFraction float64 `validate:"min=0"`
}

type LivenessConfig struct {
	ThresholdMs    int64 `validate:"min=1"`
	TickIntervalMs int   `validate:"min=10"`
	ForcedDesyncMs int64 `validate:"min=0"`
}

type TelemetryConfig struct {
	BufferSize      int `validate:"min=1"`
	MaxRecentErrors int `validate:"min=1"`
}

type RelayConfig struct {
	URL                  string `validate:"omitempty,url"`
	SecretKey            string `validate:"required_with=URL"`
	ProbeIntervalSeconds int    `validate:"min=0"`
	KeyPair              identity.KeyPair
}

// Enabled reports whether a relay should be watched.
func (r RelayConfig) Enabled() bool { return r.URL != "" }

type ArchiveConfig struct {
	DgraphAddr string `validate:"omitempty,hostname_port"`
	MaxRetries int    `validate:"min=0,max=10"`
}

func (a ArchiveConfig) Enabled() bool { return a.DgraphAddr != "" }

type DebugConfig struct {
	ListenAddr       string `validate:"omitempty,hostname_port"`
	StreamIntervalMs int    `validate:"min=50"`
}

func (d DebugConfig) Enabled() bool { return d.ListenAddr != "" }

type LogConfig struct {
	Level  string `validate:"oneof=trace debug info warn error"`
	Format string `validate:"oneof=text json"`
}

func (l LivenessConfig) TickInterval() time.Duration {
	return time.Duration(l.TickIntervalMs) * time.Millisecond
}

// Load builds the configuration from CLI flags, environment variables
// (optionally seeded from a dotenv file), a YAML config file and defaults,
// in that order of precedence. It returns nil, nil when help was printed.
func Load(args []string, output io.Writer) (*Config, error) {
	flagSource, showHelp, err := parseCLIFlags(args, output)
	if err != nil {
		return nil, err
	}
	if showHelp {
		printUsage(output)
		return nil, nil
	}

	envFile := NewConfigResolver(flagSource, &EnvSource{}).ResolveString(KeyEnvFile, DefaultEnvFile)
	if err := loadDotEnv(envFile, envFile != DefaultEnvFile); err != nil {
		return nil, err
	}

	configFile := NewConfigResolver(flagSource, &EnvSource{}).ResolveString(KeyConfigFile, "")
	fileSource, err := NewFileSource(configFile)
	if err != nil {
		return nil, err
	}

	resolver := NewConfigResolver(flagSource, &EnvSource{}, fileSource)
	cfg := Resolve(resolver)
	if err := resolver.Err(); err != nil {
		return nil, err
	}
	cfg.ConfigFile = fileSource.Used()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Relay.Enabled() {
		keyPair, err := identity.DeriveKeyPair(cfg.Relay.SecretKey)
		if err != nil {
			return nil, ValidationError{Field: "Relay.SecretKey", Value: "<redacted>", Message: err.Error()}
		}
		cfg.Relay.KeyPair = *keyPair
	}

	return cfg, nil
}

// Resolve reads every key through resolver, falling back to the defaults.
func Resolve(resolver *ConfigResolver) *Config {
	return &Config{
		Baseline: BaselineConfig{
			MaxEntries:         resolver.ResolveInt(KeyBaselineMaxEntries, DefaultBaselineMaxEntries),
			DefaultLabel:       resolver.ResolveString(KeyBaselineDefaultLabel, DefaultBaselineDefaultLabel),
			AutoCaptureSeconds: resolver.ResolveInt(KeyBaselineAutoCaptureSeconds, DefaultBaselineAutoCaptureSeconds),
		},
		Regression: RegressionConfig{
			AllowedP95Fraction:           resolver.ResolveFloat(KeyRegressionAllowedP95Fraction, DefaultRegressionAllowedP95Fraction),
			AllowedFetchIncreaseFraction: resolver.ResolveFloat(KeyRegressionAllowedFetchIncreaseFraction, DefaultRegressionAllowedFetchIncreaseFraction),
		},
		Liveness: LivenessConfig{
			ThresholdMs:    resolver.ResolveInt64(KeyLivenessThresholdMs, DefaultLivenessThresholdMs),
			TickIntervalMs: resolver.ResolveInt(KeyLivenessTickIntervalMs, DefaultLivenessTickIntervalMs),
			ForcedDesyncMs: resolver.ResolveInt64(KeyLivenessForcedDesyncMs, DefaultLivenessForcedDesyncMs),
		},
		Telemetry: TelemetryConfig{
			BufferSize:      resolver.ResolveInt(KeyTelemetryBufferSize, DefaultTelemetryBufferSize),
			MaxRecentErrors: resolver.ResolveInt(KeyTelemetryMaxRecentErrors, DefaultTelemetryMaxRecentErrors),
		},
		Relay: RelayConfig{
			URL:                  resolver.ResolveString(KeyRelayURL, ""),
			SecretKey:            resolver.ResolveString(KeyRelaySecretKey, ""),
			ProbeIntervalSeconds: resolver.ResolveInt(KeyRelayProbeIntervalSeconds, DefaultRelayProbeIntervalSeconds),
		},
		Archive: ArchiveConfig{
			DgraphAddr: resolver.ResolveString(KeyArchiveDgraphAddr, ""),
			MaxRetries: resolver.ResolveInt(KeyArchiveMaxRetries, DefaultArchiveMaxRetries),
		},
		Debug: DebugConfig{
			ListenAddr:       resolver.ResolveString(KeyDebugListenAddr, ""),
			StreamIntervalMs: resolver.ResolveInt(KeyDebugStreamIntervalMs, DefaultDebugStreamIntervalMs),
		},
		Log: LogConfig{
			Level:  resolver.ResolveString(KeyLogLevel, DefaultLogLevel),
			Format: resolver.ResolveString(KeyLogFormat, DefaultLogFormat),
		},
	}
}

// loadDotEnv seeds the environment from path without overriding variables
// that are already set. A missing default file is not an error.
func loadDotEnv(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error loading env file %s: %w", path, err)
	}
	return nil
}

// Default returns the configuration with every value at its default.
func Default() *Config {
	return Resolve(NewConfigResolver())
}
