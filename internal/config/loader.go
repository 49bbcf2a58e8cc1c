package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AQUASCAN_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if AQUASCAN_CONFIG is set
//  3. env (prefix AQUASCAN_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// AQUASCAN_SPACE_URL -> space_url; underscores are kept to match koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.SpaceRepoID) == "" && strings.TrimSpace(c.SpaceURL) == "":
		return fmt.Errorf("%w: one of space_repo_id or space_url is required", ErrInvalidConfig)
	case !strings.HasPrefix(c.APIName, "/") || len(c.APIName) < 2:
		return fmt.Errorf("%w: api_name must start with '/'", ErrInvalidConfig)
	case c.SpaceURL == "" && strings.TrimSpace(c.HubURL) == "":
		return fmt.Errorf("%w: hub_url is required to resolve space_repo_id", ErrInvalidConfig)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	case c.MaxImageDimension < 0:
		return fmt.Errorf("%w: max_image_dimension must not be negative", ErrInvalidConfig)
	case c.MaxImagePixels <= 0:
		return fmt.Errorf("%w: max_image_pixels must be positive", ErrInvalidConfig)
	case c.InferenceTimeoutMS < 0 || c.WriteTimeoutMS < 0 || c.MetricsRefreshMS < 0:
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	case c.WriteTimeoutMS > 0 && c.InferenceTimeoutMS >= c.WriteTimeoutMS:
		// the error response must still fit in the write window
		return fmt.Errorf("%w: write_timeout_ms must exceed inference_timeout_ms", ErrInvalidConfig)
	case c.MetricsEnabled && strings.TrimSpace(c.MetricsNamespace) == "":
		return fmt.Errorf("%w: metrics_namespace must not be empty", ErrInvalidConfig)
	}
	return nil
}
