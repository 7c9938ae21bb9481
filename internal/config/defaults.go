package config

import (
	"os"
	"path/filepath"

	"upload-ai/internal/domain"
)

// DefaultBackendURL matches the upload-ai API's development address.
const DefaultBackendURL = "http://localhost:3333"

// DefaultTemperature is the completion sampling temperature on first launch.
const DefaultTemperature = 0.5

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		BackendURL:  DefaultBackendURL,
		WorkDir:     filepath.Join(homeDir, ".upload-ai", "work"),
		Temperature: DefaultTemperature,
	}
}
