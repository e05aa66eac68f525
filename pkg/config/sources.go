package config

import "os"

// ConfigSource yields raw values by configuration key. Sources never
// convert types; the resolver coerces every value the same way, so "12",
// 12 and 12.0 read alike whether they came from a flag, the environment or
// the config file. Empty strings count as unset.
type ConfigSource interface {
	Name() string
	Lookup(key string) (any, bool)
}

// EnvPrefix namespaces environment variables. TELEMETRYD_LOG_LEVEL takes
// precedence over LOG_LEVEL.
const EnvPrefix = "TELEMETRYD_"

// EnvSource reads the process environment, seeded from the dotenv file.
type EnvSource struct{}

func (*EnvSource) Name() string { return "env" }

func (*EnvSource) Lookup(key string) (any, bool) {
	for _, name := range []string{EnvPrefix + key, key} {
		if value := os.Getenv(name); value != "" {
			return value, true
		}
	}
	return nil, false
}

// FlagSource holds the flags that were set explicitly on the command line.
type FlagSource struct {
	values map[string]any
}

func NewFlagSource() *FlagSource {
	return &FlagSource{values: make(map[string]any)}
}

func (*FlagSource) Name() string { return "flag" }

func (f *FlagSource) Set(key string, value any) {
	f.values[key] = value
}

func (f *FlagSource) Lookup(key string) (any, bool) {
	value, ok := f.values[key]
	if !ok {
		return nil, false
	}
	if s, isString := value.(string); isString && s == "" {
		return nil, false
	}
	return value, true
}
