package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// PlaceholderAPIKey is the built-in fallback credential. It is never
// accepted by [ValidateAPIKey]; it only exists so the precedence chain
// always ends in a value the startup check can name.
const PlaceholderAPIKey = "sk-YOUR_API_KEY_HERE"

// APIKeyEnv is the environment variable holding the completion API key.
const APIKeyEnv = "OPENAI_API_KEY"

// ErrInvalidAPIKey means no usable completion credential was found.
var ErrInvalidAPIKey = errors.New("completion API key is not configured")

// Overlay applies command-line flags and environment variables on top of
// cfg. Precedence per key is flag, then environment, then config file,
// then built-in default. Recognized flags: api-key, model, data-dir,
// log-level. Environment: OPENAI_API_KEY, NIVUUS_MODEL, NIVUUS_DATA_DIR,
// NIVUUS_LOG_LEVEL.
func Overlay(flags *pflag.FlagSet, cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix("NIVUUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("api_key", PlaceholderAPIKey)
	v.SetDefault("model", DefaultModel)
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log_level", "info")

	fromFile := map[string]any{}
	for key, val := range map[string]string{
		"api_key":   cfg.APIKey,
		"model":     cfg.Model,
		"data_dir":  cfg.DataDir,
		"log_level": cfg.LogLevel,
	} {
		if val != "" {
			fromFile[key] = val
		}
	}
	if err := v.MergeConfigMap(fromFile); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}

	if err := v.BindEnv("api_key", APIKeyEnv); err != nil {
		return err
	}
	for _, key := range []string{"model", "data_dir", "log_level"} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	if flags != nil {
		for key, name := range map[string]string{
			"api_key":   "api-key",
			"model":     "model",
			"data_dir":  "data-dir",
			"log_level": "log-level",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("bind --%s: %w", name, err)
				}
			}
		}
	}

	cfg.APIKey = v.GetString("api_key")
	cfg.Model = v.GetString("model")
	cfg.DataDir = v.GetString("data_dir")
	cfg.LogLevel = v.GetString("log_level")
	cfg.applyDefaults()
	return cfg.Validate()
}

// ValidateAPIKey rejects an empty key, the placeholder, and anything
// without the "sk-" prefix.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidAPIKey)
	case key == PlaceholderAPIKey:
		return fmt.Errorf("%w: placeholder value in use", ErrInvalidAPIKey)
	case !strings.HasPrefix(key, "sk-"):
		return fmt.Errorf("%w: key must start with \"sk-\"", ErrInvalidAPIKey)
	}
	return nil
}
