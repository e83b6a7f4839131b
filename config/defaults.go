package config

import (
	"github.com/spf13/viper"
)

const (
	// DefaultServerPort is the HTTP port used when server.port is unset.
	DefaultServerPort = 8080
	// DefaultMaxUploadBytes is the upload ceiling (5 MiB).
	DefaultMaxUploadBytes = 5 << 20
	// DefaultClientIDHeader carries the push-channel client id on uploads.
	DefaultClientIDHeader = "X-Client-ID"
	// DefaultRegisterTimeoutMS bounds how long a client waits for register_confirm.
	DefaultRegisterTimeoutMS = 3000
	// DefaultPreflightTimeoutMS bounds the availability probe before an upload.
	DefaultPreflightTimeoutMS = 1000
	// DefaultCropTimeoutSeconds bounds the best-effort cover crop.
	DefaultCropTimeoutSeconds = 5

	// DefaultDirPermissions is used when creating ~/.recipebox.
	DefaultDirPermissions = 0o755
	// DefaultFilePermissions is used when writing config files.
	DefaultFilePermissions = 0o644
)

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
	v.SetDefault("server.max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("server.client_id_header", DefaultClientIDHeader)

	v.SetDefault("database.path", "recipebox.db")

	v.SetDefault("vision.base_url", "http://localhost:5050")
	v.SetDefault("vision.timeout_seconds", 60)
	v.SetDefault("vision.crop_timeout_seconds", DefaultCropTimeoutSeconds)
	v.SetDefault("vision.max_requests_per_minute", 60)
	v.SetDefault("vision.crop_enabled", true)
	v.SetDefault("vision.allow_private_network", true)

	v.SetDefault("websocket.send_buffer", 64)
	v.SetDefault("websocket.max_clients", 1024)

	v.SetDefault("client.register_timeout_ms", DefaultRegisterTimeoutMS)
	v.SetDefault("client.preflight_timeout_ms", DefaultPreflightTimeoutMS)

	v.SetDefault("recipes.cover_max_dimension", 1024)
}

// BindSensitiveEnvVars binds values that should only ever come from the
// environment, or that operators expect under a conventional name.
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("vision.base_url", "RECIPEBOX_VISION_BASE_URL", "AI_SERVICE_URL")
	_ = v.BindEnv("server.port", "RECIPEBOX_SERVER_PORT", "PORT")
}
