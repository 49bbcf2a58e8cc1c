// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New builds a Config populated with defaults.
// - Load layers an optional YAML file and AQUASCAN_* env vars on top.
// - External errors are wrapped with this package's sentinel kinds.
package config

import "time"

// Default values for the remote space.
const (
	DefaultSpaceRepoID = "PavanKumarD/Fish_Image_Classification"
	DefaultHubURL      = "https://huggingface.co"
	DefaultAPIName     = "/predict"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// SpaceRepoID identifies the hosted Gradio app, "owner/name".
	SpaceRepoID string `koanf:"space_repo_id"`

	// SpaceURL overrides host resolution through the hub when set.
	SpaceURL string `koanf:"space_url"`

	// HubURL is queried to resolve SpaceRepoID to its host.
	HubURL string `koanf:"hub_url"`

	// APIName is the named endpoint of the app, with leading slash.
	APIName string `koanf:"api_name"`

	// InferenceTimeoutMS bounds remote HTTP calls. 0 leaves the transport default.
	InferenceTimeoutMS int `koanf:"inference_timeout_ms"`

	// WriteTimeoutMS is the HTTP server write timeout; it must cover a full inference.
	WriteTimeoutMS int `koanf:"write_timeout_ms"`

	// MaxUploadBytes caps the accepted image size.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// MaxImageDimension downscales larger uploads before forwarding. 0 disables.
	MaxImageDimension int `koanf:"max_image_dimension"`

	// MaxImagePixels rejects images whose header declares more pixels.
	MaxImagePixels int64 `koanf:"max_image_pixels"`

	// MetricsEnabled toggles recording of Prometheus series.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsNamespace prefixes every exported series name.
	MetricsNamespace string `koanf:"metrics_namespace"`

	// MetricsRefreshMS is the system gauge refresh period.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":8501",
		SpaceRepoID:        DefaultSpaceRepoID,
		HubURL:             DefaultHubURL,
		APIName:            DefaultAPIName,
		InferenceTimeoutMS: 0,
		WriteTimeoutMS:     120_000,
		MaxUploadBytes:     10 << 20,
		MaxImageDimension:  1024,
		MaxImagePixels:     40_000_000,
		MetricsEnabled:     true,
		MetricsNamespace:   "aquascan",
		MetricsRefreshMS:   10_000,
	}
}

// InferenceTimeout returns the remote call timeout as a duration.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutMS) * time.Millisecond
}

// MetricsRefresh returns the system gauge refresh period as a duration.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}

// WriteTimeout returns the HTTP server write timeout as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}
