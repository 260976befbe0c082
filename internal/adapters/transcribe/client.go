// Package transcribe configures client-side streaming transcription.
// Audio is streamed from the browser straight to the provider; the platform
// only hands out session configuration and stores the resulting text.
package transcribe

import (
	"github.com/telecare/platform/internal/shared/config"
	apperrors "github.com/telecare/platform/internal/shared/errors"
)

const providerName = "transcription provider"

// SessionConfig is what a client needs to open a streaming session
type SessionConfig struct {
	APIKey   string `json:"apiKey"`
	Model    string `json:"model"`
	Language string `json:"language"`
}

// Provider hands out transcription session configuration
type Provider struct {
	cfg config.TranscriptionConfig
}

// NewProvider creates a new transcription provider
func NewProvider(cfg config.TranscriptionConfig) *Provider {
	return &Provider{cfg: cfg}
}

// Configured reports whether provider credentials are present
func (p *Provider) Configured() bool {
	return p.cfg.Configured()
}

// Session returns streaming session configuration for a client
func (p *Provider) Session() (*SessionConfig, error) {
	if !p.Configured() {
		return nil, apperrors.NotConfigured(providerName)
	}

	return &SessionConfig{
		APIKey:   p.cfg.APIKey,
		Model:    p.cfg.Model,
		Language: p.cfg.Language,
	}, nil
}
