package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/pkg/errors"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "DOCTALK"

var (
	ErrConfigFileNotFound = errors.New(errors.ErrCodeConfigInvalid, "config file not found")
	ErrConfigParseError   = errors.New(errors.ErrCodeConfigInvalid, "config file could not be parsed")
	ErrConfigValidation   = errors.New(errors.ErrCodeConfigInvalid, "config validation failed")
)

type loadOptions struct {
	path string
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithConfigPath reads the given YAML file before applying env overrides.
// An empty path means env only.
func WithConfigPath(path string) LoadOption {
	return func(o *loadOptions) { o.path = path }
}

// newViper builds a Viper instance with YAML file type, the DOCTALK_ env
// prefix and a "." to "_" key replacer, so "database.host" resolves to
// DOCTALK_DATABASE_HOST.  Every known key is bound so env overrides work
// without a config file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys(reflect.TypeOf(Config{}), "") {
		_ = v.BindEnv(key)
	}
	return v
}

// configKeys lists the dotted mapstructure keys of every leaf field.
func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			keys = append(keys, configKeys(f.Type, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Load reads the optional config file, merges DOCTALK_* environment
// overrides, applies defaults, and validates the result.
func Load(opts ...LoadOption) (*Config, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	v := newViper()
	if o.path != "" {
		if err := readFile(v, o.path); err != nil {
			return nil, err
		}
	}
	return unmarshalAndFinalize(v)
}

func readFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigParseError, path, err)
	}
	return nil
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	return cfg, nil
}

// Watch monitors path and invokes onChange with the newly parsed Config
// whenever the file changes.  A change that fails to parse or validate is
// logged and onChange is not called.  Watch returns after the initial read;
// viper runs the watcher in the background.
func Watch(path string, log logging.Logger, onChange func(*Config)) error {
	log = logging.OrNop(log)
	v := newViper()
	if err := readFile(v, path); err != nil {
		return err
	}

	v.OnConfigChange(func(ev fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			log.Warn("ignoring invalid config change", logging.String("path", ev.Name), logging.Err(err))
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// IsNotFound reports whether err came from a missing config file.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConfigFileNotFound)
}
