// Package config loads recipebox configuration.
//
// Values come from, in increasing precedence: built-in defaults,
// /etc/recipebox/config.toml, ~/.recipebox/config.toml, the nearest
// recipebox.toml found walking up from the working directory, and
// RECIPEBOX_* environment variables (dots become underscores, so
// server.port is RECIPEBOX_SERVER_PORT).
package config

// Config is the full recipebox configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" toml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" toml:"database"`
	Vision    VisionConfig    `mapstructure:"vision" toml:"vision"`
	WebSocket WebSocketConfig `mapstructure:"websocket" toml:"websocket"`
	Client    ClientConfig    `mapstructure:"client" toml:"client"`
	Recipes   RecipesConfig   `mapstructure:"recipes" toml:"recipes"`
}

// ServerConfig configures the HTTP and push-channel server.
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes" toml:"max_upload_bytes"`
	ClientIDHeader string   `mapstructure:"client_id_header" toml:"client_id_header"`
}

// DatabaseConfig configures the SQLite recipe store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// VisionConfig configures the AI image service (verify, extract, crop).
type VisionConfig struct {
	BaseURL              string `mapstructure:"base_url" toml:"base_url"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	CropTimeoutSeconds   int    `mapstructure:"crop_timeout_seconds" toml:"crop_timeout_seconds"` // crop is best effort; keep it short
	MaxRequestsPerMinute int    `mapstructure:"max_requests_per_minute" toml:"max_requests_per_minute"` // 0 = unlimited
	CropEnabled          bool   `mapstructure:"crop_enabled" toml:"crop_enabled"`
	AllowPrivateNetwork  bool   `mapstructure:"allow_private_network" toml:"allow_private_network"` // the AI service usually runs on localhost
}

// WebSocketConfig configures the connection registry.
type WebSocketConfig struct {
	SendBuffer int `mapstructure:"send_buffer" toml:"send_buffer"`
	MaxClients int `mapstructure:"max_clients" toml:"max_clients"`
}

// ClientConfig configures the upload client (the `upload` command).
type ClientConfig struct {
	RegisterTimeoutMS  int `mapstructure:"register_timeout_ms" toml:"register_timeout_ms"`
	PreflightTimeoutMS int `mapstructure:"preflight_timeout_ms" toml:"preflight_timeout_ms"`
}

// RecipesConfig configures how saved recipes are post-processed.
type RecipesConfig struct {
	CoverMaxDimension int `mapstructure:"cover_max_dimension" toml:"cover_max_dimension"`
}
