package config

import (
	"errors"
	"fmt"

	"github.com/spf13/cast"
)

// ConfigResolver reads each key from the first source that sets it. A value
// that does not convert to the requested type is recorded and skipped, so
// the next source or the default still applies; Err reports every such
// value.
type ConfigResolver struct {
	sources []ConfigSource
	errs    []error
}

func NewConfigResolver(sources ...ConfigSource) *ConfigResolver {
	return &ConfigResolver{sources: sources}
}

func (r *ConfigResolver) ResolveString(key, defaultValue string) string {
	return resolve(r, key, defaultValue, "string", cast.ToStringE)
}

func (r *ConfigResolver) ResolveInt(key string, defaultValue int) int {
	return resolve(r, key, defaultValue, "integer", cast.ToIntE)
}

func (r *ConfigResolver) ResolveInt64(key string, defaultValue int64) int64 {
	return resolve(r, key, defaultValue, "integer", cast.ToInt64E)
}

func (r *ConfigResolver) ResolveFloat(key string, defaultValue float64) float64 {
	return resolve(r, key, defaultValue, "number", cast.ToFloat64E)
}

// Err joins a ValidationError for every value that failed to convert.
func (r *ConfigResolver) Err() error {
	return errors.Join(r.errs...)
}

func resolve[T any](r *ConfigResolver, key string, defaultValue T, typeName string, convert func(any) (T, error)) T {
	for _, source := range r.sources {
		raw, found := source.Lookup(key)
		if !found {
			continue
		}
		value, err := convert(raw)
		if err != nil {
			r.errs = append(r.errs, ValidationError{
				Field:   key,
				Value:   raw,
				Message: fmt.Sprintf("not a valid %s (from %s)", typeName, source.Name()),
			})
			continue
		}
		return value
	}
	return defaultValue
}
