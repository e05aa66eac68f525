package config

// Configuration key constants. Keys double as environment variable names;
// config file keys are the same names in lower case.
const (
	KeyBaselineMaxEntries         = "BASELINE_MAX_ENTRIES"
	KeyBaselineDefaultLabel       = "BASELINE_DEFAULT_LABEL"
	KeyBaselineAutoCaptureSeconds = "BASELINE_AUTO_CAPTURE_SECONDS"

	KeyRegressionAllowedP95Fraction           = "REGRESSION_ALLOWED_P95_FRACTION"
	KeyRegressionAllowedFetchIncreaseFraction = "REGRESSION_ALLOWED_FETCH_INCREASE_FRACTION"

	KeyLivenessThresholdMs    = "LIVENESS_THRESHOLD_MS"
	KeyLivenessTickIntervalMs = "LIVENESS_TICK_INTERVAL_MS"
	KeyLivenessForcedDesyncMs = "LIVENESS_FORCED_DESYNC_MS"

	KeyTelemetryBufferSize      = "TELEMETRY_BUFFER_SIZE"
	KeyTelemetryMaxRecentErrors = "TELEMETRY_MAX_RECENT_ERRORS"

	KeyRelayURL                  = "RELAY_URL"
	KeyRelaySecretKey            = "RELAY_SECRET_KEY"
	KeyRelayProbeIntervalSeconds = "RELAY_PROBE_INTERVAL_SECONDS"

	KeyArchiveDgraphAddr = "ARCHIVE_DGRAPH_ADDR"
	KeyArchiveMaxRetries = "ARCHIVE_MAX_RETRIES"

	KeyDebugListenAddr       = "DEBUG_LISTEN_ADDR"
	KeyDebugStreamIntervalMs = "DEBUG_STREAM_INTERVAL_MS"

	KeyLogLevel  = "LOG_LEVEL"
	KeyLogFormat = "LOG_FORMAT"

	KeyConfigFile = "CONFIG_FILE"
	KeyEnvFile    = "ENV_FILE"
)

// Default values for configuration
const (
	DefaultBaselineMaxEntries         = 20
	DefaultBaselineDefaultLabel       = "manual"
	DefaultBaselineAutoCaptureSeconds = 0

	DefaultRegressionAllowedP95Fraction           = 0.10
	DefaultRegressionAllowedFetchIncreaseFraction = 0.0

	DefaultLivenessThresholdMs    = 10000
	DefaultLivenessTickIntervalMs = 1000
	DefaultLivenessForcedDesyncMs = 0

	DefaultTelemetryBufferSize      = 1000
	DefaultTelemetryMaxRecentErrors = 50

	DefaultRelayProbeIntervalSeconds = 15

	DefaultArchiveMaxRetries = 3

	DefaultDebugStreamIntervalMs = 1000

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultEnvFile = ".env"
)

const (
	AppName        = "telemetryd"
	AppDescription = "Client telemetry, regression and liveness daemon"
	UsageFormat    = "telemetryd [OPTIONS] < events.jsonl"

	HelpOptions         = "Options:"
	HelpEnvironmentVars = "Environment Variables:"
	HelpUsage           = "Usage:"
	HelpNote            = "Note: CLI options override environment variables (optionally prefixed " + EnvPrefix + "), which override the config file"
	HelpShowHelp        = "Show this help message"
	FlagHelp            = "help"
)
