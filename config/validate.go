package config

import (
	"net/url"

	"github.com/recipebox/recipebox/errors"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewValidationError("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.NewValidationError("server.max_upload_bytes must be > 0, got %d", c.Server.MaxUploadBytes)
	}
	if c.Server.ClientIDHeader == "" {
		return errors.NewValidationError("server.client_id_header cannot be empty")
	}

	if c.Vision.BaseURL == "" {
		return errors.NewValidationError("vision.base_url cannot be empty")
	}
	if u, err := url.Parse(c.Vision.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.NewValidationError("vision.base_url must be an absolute URL, got %q", c.Vision.BaseURL)
	}
	if c.Vision.TimeoutSeconds <= 0 {
		return errors.NewValidationError("vision.timeout_seconds must be > 0, got %d", c.Vision.TimeoutSeconds)
	}
	if c.Vision.CropTimeoutSeconds <= 0 {
		return errors.NewValidationError("vision.crop_timeout_seconds must be > 0, got %d", c.Vision.CropTimeoutSeconds)
	}
	if c.Vision.MaxRequestsPerMinute < 0 {
		return errors.NewValidationError("vision.max_requests_per_minute must be >= 0, got %d", c.Vision.MaxRequestsPerMinute)
	}

	if c.WebSocket.SendBuffer <= 0 {
		return errors.NewValidationError("websocket.send_buffer must be > 0, got %d", c.WebSocket.SendBuffer)
	}
	if c.WebSocket.MaxClients < 0 {
		return errors.NewValidationError("websocket.max_clients must be >= 0, got %d", c.WebSocket.MaxClients)
	}

	if c.Client.RegisterTimeoutMS <= 0 {
		return errors.NewValidationError("client.register_timeout_ms must be > 0, got %d", c.Client.RegisterTimeoutMS)
	}
	if c.Client.PreflightTimeoutMS < 0 {
		return errors.NewValidationError("client.preflight_timeout_ms must be >= 0, got %d", c.Client.PreflightTimeoutMS)
	}

	if c.Recipes.CoverMaxDimension < 0 {
		return errors.NewValidationError("recipes.cover_max_dimension must be >= 0, got %d", c.Recipes.CoverMaxDimension)
	}
	return nil
}
