package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

type flagKind int

const (
	flagString flagKind = iota
	flagInt
	flagFloat
)

type flagSpec struct {
	key  string
	kind flagKind
	help string
	def  string
}

// flagSpecs lists every option in help order. Flag names are the keys in
// kebab case.
var flagSpecs = []flagSpec{
	{KeyConfigFile, flagString, "YAML config file", ""},
	{KeyEnvFile, flagString, "dotenv file loaded into the environment", DefaultEnvFile},
	{KeyBaselineMaxEntries, flagInt, "Baselines kept in history", fmt.Sprint(DefaultBaselineMaxEntries)},
	{KeyBaselineDefaultLabel, flagString, "Label for baselines captured without one", DefaultBaselineDefaultLabel},
	{KeyBaselineAutoCaptureSeconds, flagInt, "Automatic baseline capture interval, 0 disables", fmt.Sprint(DefaultBaselineAutoCaptureSeconds)},
	{KeyRegressionAllowedP95Fraction, flagFloat, "Allowed chunk switch p95 regression", fmt.Sprint(DefaultRegressionAllowedP95Fraction)},
	{KeyRegressionAllowedFetchIncreaseFraction, flagFloat, "Allowed tile fetch volume increase", fmt.Sprint(DefaultRegressionAllowedFetchIncreaseFraction)},
	{KeyLivenessThresholdMs, flagInt, "Pending transaction desync threshold in ms", fmt.Sprint(DefaultLivenessThresholdMs)},
	{KeyLivenessTickIntervalMs, flagInt, "Liveness tick interval in ms", fmt.Sprint(DefaultLivenessTickIntervalMs)},
	{KeyLivenessForcedDesyncMs, flagInt, "Default forced desync window in ms, 0 means twice the threshold", fmt.Sprint(DefaultLivenessForcedDesyncMs)},
	{KeyTelemetryBufferSize, flagInt, "Telemetry event buffer size", fmt.Sprint(DefaultTelemetryBufferSize)},
	{KeyTelemetryMaxRecentErrors, flagInt, "Recent errors kept for display", fmt.Sprint(DefaultTelemetryMaxRecentErrors)},
	{KeyRelayURL, flagString, "Nostr relay to watch for heartbeats", ""},
	{KeyRelaySecretKey, flagString, "Nostr secret key, required with a relay URL", ""},
	{KeyRelayProbeIntervalSeconds, flagInt, "Relay probe interval in seconds, 0 disables", fmt.Sprint(DefaultRelayProbeIntervalSeconds)},
	{KeyArchiveDgraphAddr, flagString, "Dgraph gRPC address for the archive", ""},
	{KeyArchiveMaxRetries, flagInt, "Archive write retries", fmt.Sprint(DefaultArchiveMaxRetries)},
	{KeyDebugListenAddr, flagString, "Debug HTTP listen address", ""},
	{KeyDebugStreamIntervalMs, flagInt, "Debug websocket push interval in ms", fmt.Sprint(DefaultDebugStreamIntervalMs)},
	{KeyLogLevel, flagString, "Log level (trace, debug, info, warn, error)", DefaultLogLevel},
	{KeyLogFormat, flagString, "Log format (text, json)", DefaultLogFormat},
}

// FlagName converts a key like LOG_LEVEL to its flag name log-level.
func FlagName(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "_", "-")
}

// parseCLIFlags parses args and returns the explicitly set values. Unset
// flags are left out so lower-precedence sources can supply them.
func parseCLIFlags(args []string, output io.Writer) (*FlagSource, bool, error) {
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() { printUsage(output) }

	strs := make(map[string]*string)
	ints := make(map[string]*int)
	floats := make(map[string]*float64)
	for _, spec := range flagSpecs {
		switch spec.kind {
		case flagString:
			strs[spec.key] = fs.String(FlagName(spec.key), "", spec.help)
		case flagInt:
			ints[spec.key] = fs.Int(FlagName(spec.key), 0, spec.help)
		case flagFloat:
			floats[spec.key] = fs.Float64(FlagName(spec.key), 0, spec.help)
		}
	}
	help := fs.Bool(FlagHelp, false, HelpShowHelp)

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	flagSource := NewFlagSource()
	if *help {
		return flagSource, true, nil
	}

	fs.Visit(func(f *flag.Flag) {
		for _, spec := range flagSpecs {
			if FlagName(spec.key) != f.Name {
				continue
			}
			switch spec.kind {
			case flagString:
				flagSource.Set(spec.key, *strs[spec.key])
			case flagInt:
				flagSource.Set(spec.key, *ints[spec.key])
			case flagFloat:
				flagSource.Set(spec.key, *floats[spec.key])
			}
		}
	})

	return flagSource, false, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "%s - %s\n\n", AppName, AppDescription)
	fmt.Fprintf(w, "%s\n  %s\n\n", HelpUsage, UsageFormat)

	fmt.Fprintf(w, "%s\n", HelpOptions)
	for _, spec := range flagSpecs {
		name := "--" + FlagName(spec.key) + " " + kindName(spec.kind)
		if spec.def != "" {
			fmt.Fprintf(w, "  %-52s %s (default: %s)\n", name, spec.help, spec.def)
		} else {
			fmt.Fprintf(w, "  %-52s %s\n", name, spec.help)
		}
	}
	fmt.Fprintf(w, "  %-52s %s\n\n", "--"+FlagHelp, HelpShowHelp)

	fmt.Fprintf(w, "%s\n", HelpEnvironmentVars)
	for _, spec := range flagSpecs {
		fmt.Fprintf(w, "  %-44s %s\n", spec.key, spec.help)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s\n", HelpNote)
}

func kindName(k flagKind) string {
	switch k {
	case flagInt:
		return "int"
	case flagFloat:
		return "float"
	default:
		return "string"
	}
}
