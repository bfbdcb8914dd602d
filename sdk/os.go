package sdk

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// OSClient generates device OS configuration
type OSClient struct {
	client *Client
}

// DeviceConfig is the configuration a device needs to join a fleet
type DeviceConfig map[string]any

// ConfigOptions selects the configuration to generate
type ConfigOptions struct {
	ApplicationID int64
	DeviceType    string
	Version       string
	// AppUpdatePollInterval overrides how often the device checks for
	// updates. Zero keeps the platform default.
	AppUpdatePollInterval time.Duration
}

type configRequest struct {
	AppID                 int64  `json:"appId"`
	DeviceType            string `json:"deviceType,omitempty"`
	Version               string `json:"version"`
	AppUpdatePollInterval int64  `json:"appUpdatePollInterval,omitempty"`
}

// GetConfig requests a provisioning configuration for a fleet
func (c *OSClient) GetConfig(ctx context.Context, opts ConfigOptions) (DeviceConfig, error) {
	if opts.ApplicationID == 0 {
		return nil, errors.New("application id is required")
	}
	if opts.Version == "" {
		return nil, errors.New("OS version is required")
	}

	req := configRequest{
		AppID:                 opts.ApplicationID,
		DeviceType:            opts.DeviceType,
		Version:               opts.Version,
		AppUpdatePollInterval: opts.AppUpdatePollInterval.Milliseconds(),
	}

	var config DeviceConfig
	if err := c.client.do(ctx, http.MethodPost, "/download-config", nil, req, &config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("POST /download-config: empty configuration")
	}
	return config, nil
}
