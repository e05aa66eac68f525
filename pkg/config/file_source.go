package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FileSource is the ConfigSource over a YAML config file. File keys are
// the lower-cased configuration keys, e.g. liveness_threshold_ms.
type FileSource struct {
	v *viper.Viper
}

// NewFileSource reads path, or searches the default locations for
// telemetryd.yaml when path is empty. A missing file is only an error when
// path was given explicitly.
func NewFileSource(path string) (*FileSource, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/" + AppName + "/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return &FileSource{v: v}, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return &FileSource{v: v}, nil
}

// Used returns the path of the file that was read, if any.
func (f *FileSource) Used() string {
	return f.v.ConfigFileUsed()
}

func (*FileSource) Name() string { return "file" }

func (f *FileSource) Lookup(key string) (any, bool) {
	k := strings.ToLower(key)
	if !f.v.IsSet(k) {
		return nil, false
	}
	value := f.v.Get(k)
	if value == nil {
		return nil, false
	}
	if s, isString := value.(string); isString && s == "" {
		return nil, false
	}
	return value, true
}
