package payment

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

const (
	MidtransProductionBaseURL = "https://api.midtrans.com"
	MidtransSandboxBaseURL    = "https://api.sandbox.midtrans.com"
	midtransDefaultTimeout    = 30 * time.Second
)

// MidtransConfig contains configuration for the Midtrans Core API
type MidtransConfig struct {
	// ServerKey signs notifications and authenticates API calls
	ServerKey string
	// BaseURL overrides the API host; empty picks sandbox or production
	BaseURL string
	// IsSandbox selects the sandbox host when BaseURL is empty
	IsSandbox bool
	// Timeout bounds each API call
	Timeout time.Duration
}

// Errors for configuration validation
var (
	ErrMidtransMissingServerKey = errors.New("midtrans: missing server key")
	ErrMidtransInvalidBaseURL   = errors.New("midtrans: invalid base URL")
)

// Validate validates the configuration and fills defaults
func (c *MidtransConfig) Validate() error {
	if strings.TrimSpace(c.ServerKey) == "" {
		return ErrMidtransMissingServerKey
	}
	if c.BaseURL == "" {
		c.BaseURL = MidtransProductionBaseURL
		if c.IsSandbox {
			c.BaseURL = MidtransSandboxBaseURL
		}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrMidtransInvalidBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = midtransDefaultTimeout
	}
	return nil
}
