// Package promote moves a device on the local network into a fleet of the
// platform: it picks the device and the fleet, generates the device
// configuration and pushes it to the device's OS.
package promote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fleetcloud.sh/internal/discovery"
	"fleetcloud.sh/internal/ferrors"
	"fleetcloud.sh/internal/logging"
	"fleetcloud.sh/internal/prompt"
	"fleetcloud.sh/sdk"
)

const (
	deviceTypeFile = "/mnt/boot/device-type.json"
	osReleaseFile  = "/etc/os-release"

	DefaultScanTimeout  = discovery.DefaultTimeout
	DefaultWaitTimeout  = 5 * time.Minute
	DefaultWaitInterval = 5 * time.Second
)

// Scanner finds devices on the local network
type Scanner interface {
	Scan(ctx context.Context, timeout time.Duration) ([]discovery.LocalDevice, error)
}

// Options are the parsed join arguments
type Options struct {
	// DeviceAddress is a validated IP or local hostname; empty to scan
	DeviceAddress string
	// Fleet is a fleet name, slug or id; empty to pick interactively
	Fleet string
	// PollInterval is how often the device checks for updates; zero keeps
	// the platform default
	PollInterval time.Duration

	ScanTimeout  time.Duration
	WaitTimeout  time.Duration
	WaitInterval time.Duration
}

// Result describes a completed join
type Result struct {
	Address      string
	DeviceType   string
	OSVersion    string
	UUID         string
	Fleet        sdk.Application
	Online       bool
	DashboardURL string
}

// Joiner carries the collaborators of a join
type Joiner struct {
	Client  *sdk.Client
	Scanner Scanner
	Dial    Dialer
	// Prompter is nil when stdin is not interactive
	Prompter *prompt.Prompter
	Log      *logging.Logger
	// Out receives progress output
	Out io.Writer

	NewUUID func() string
}

// Join runs the whole flow
func (j *Joiner) Join(ctx context.Context, opts Options) (*Result, error) {
	j.setDefaults(&opts)

	address := opts.DeviceAddress
	if address == "" {
		var err error
		address, err = j.selectLocalDevice(ctx, opts.ScanTimeout)
		if err != nil {
			return nil, err
		}
	}

	j.Log.Info("Connecting to device", zap.String("device", address))
	shell, err := j.Dial(ctx, address)
	if err != nil {
		return nil, ferrors.ExpectedFrom(err, "Could not connect to device at %s: %v", address, err)
	}
	defer shell.Close()

	deviceType, err := getDeviceType(ctx, shell)
	if err != nil {
		return nil, ferrors.ExpectedFrom(err, "Device at %s does not look like a fleet OS device: %v", address, err)
	}
	osVersion, err := getOSVersion(ctx, shell)
	if err != nil {
		return nil, ferrors.ExpectedFrom(err, "Could not read the OS version of %s: %v", address, err)
	}
	j.Log.WithDevice(address, deviceType).Info("Found device", zap.String("os_version", osVersion))

	app, err := j.selectApplication(ctx, opts.Fleet, deviceType)
	if err != nil {
		return nil, err
	}

	deviceUUID := j.NewUUID()
	config, err := j.Client.OS.GetConfig(ctx, sdk.ConfigOptions{
		ApplicationID:         app.ID,
		DeviceType:            deviceType,
		Version:               osVersion,
		AppUpdatePollInterval: opts.PollInterval,
	})
	if err != nil {
		return nil, ferrors.Wrap(err, "failed to generate device configuration")
	}
	config["uuid"] = deviceUUID

	j.Log.Info("Configuring device", zap.String("fleet", app.Slug), zap.String("uuid", deviceUUID))
	if err := configure(ctx, shell, config); err != nil {
		return nil, ferrors.Wrapf(err, "failed to configure device at %s", address)
	}

	result := &Result{
		Address:      address,
		DeviceType:   deviceType,
		OSVersion:    osVersion,
		UUID:         deviceUUID,
		Fleet:        *app,
		DashboardURL: j.Client.Devices.DashboardURL(deviceUUID),
	}

	online, err := j.waitOnline(ctx, deviceUUID, opts.WaitTimeout, opts.WaitInterval)
	if err != nil {
		return nil, err
	}
	result.Online = online
	if !online {
		j.Log.Warn("Device has not come online yet, it may still be applying the configuration",
			zap.Duration("waited", opts.WaitTimeout))
	}

	return result, nil
}

func (j *Joiner) setDefaults(opts *Options) {
	if opts.ScanTimeout == 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.WaitInterval == 0 {
		opts.WaitInterval = DefaultWaitInterval
	}
	if j.Log == nil {
		j.Log = logging.Nop()
	}
	if j.Out == nil {
		j.Out = io.Discard
	}
	if j.NewUUID == nil {
		j.NewUUID = newDeviceUUID
	}
}

func (j *Joiner) selectLocalDevice(ctx context.Context, timeout time.Duration) (string, error) {
	if j.Prompter == nil {
		return "", ferrors.Expected("No device specified. Pass the device IP or hostname, or run the command in an interactive terminal")
	}

	j.Log.Info("Scanning for local devices...", zap.Duration("timeout", timeout))
	devices, err := j.Scanner.Scan(ctx, timeout)
	if err != nil {
		return "", ferrors.Wrap(err, "failed to scan the local network")
	}
	if len(devices) == 0 {
		return "", ferrors.Expected("Could not find any local devices")
	}

	labels := make([]string, len(devices))
	for i, d := range devices {
		labels[i] = d.String()
	}
	idx, err := j.Prompter.Select("Select a device", labels)
	if err != nil {
		return "", err
	}
	return devices[idx].Address, nil
}

func (j *Joiner) selectApplication(ctx context.Context, fleet, deviceType string) (*sdk.Application, error) {
	if fleet != "" {
		app, err := j.Client.Applications.Get(ctx, fleet)
		if err != nil {
			return nil, sdk.LookupError(err, "Fleet %s not found", fleet)
		}
		return app, nil
	}

	apps, err := j.Client.Applications.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	var compatible []sdk.Application
	for _, app := range apps {
		if app.DeviceTypeSlug() == deviceType {
			compatible = append(compatible, app)
		}
	}
	if len(compatible) == 0 {
		return nil, ferrors.Expected("No fleets found for device type %s. Create one in the dashboard first", deviceType)
	}
	if j.Prompter == nil {
		return nil, ferrors.Expected("No fleet specified. Pass --fleet, or run the command in an interactive terminal")
	}

	labels := make([]string, len(compatible))
	for i, app := range compatible {
		labels[i] = fmt.Sprintf("%s (%s)", app.Slug, app.DeviceTypeSlug())
	}
	idx, err := j.Prompter.Select("Select a fleet", labels)
	if err != nil {
		return nil, err
	}
	return &compatible[idx], nil
}

// waitOnline polls the platform until the device reports online or timeout
// passes. It returns false, without error, on timeout.
func (j *Joiner) waitOnline(ctx context.Context, deviceUUID string, timeout, interval time.Duration) (bool, error) {
	if timeout < 0 {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(j.Out),
		progressbar.OptionSetDescription("Waiting for device to come online"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		// Wait fails early when the next token lands past the deadline
		if err := limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return false, ctx.Err()
			}
			return false, nil
		}
		_ = bar.Add(1)

		device, err := j.Client.Devices.GetByUUID(ctx, deviceUUID)
		switch {
		case err == nil && device.IsOnline:
			return true, nil
		case err == nil, sdk.IsNotFound(err):
			continue
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return false, nil
		case ctx.Err() != nil:
			return false, ctx.Err()
		default:
			return false, err
		}
	}
}

func getDeviceType(ctx context.Context, shell Shell) (string, error) {
	out, err := shell.Run(ctx, "cat "+deviceTypeFile)
	if err != nil {
		return "", err
	}

	var info struct {
		Slug string `json:"slug"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return "", fmt.Errorf("invalid %s: %w", deviceTypeFile, err)
	}
	if info.Slug == "" {
		return "", fmt.Errorf("%s has no slug", deviceTypeFile)
	}
	return info.Slug, nil
}

func getOSVersion(ctx context.Context, shell Shell) (string, error) {
	out, err := shell.Run(ctx, "cat "+osReleaseFile)
	if err != nil {
		return "", err
	}

	values := parseOSRelease(out)
	for _, key := range []string{"META_FLEET_VERSION", "VERSION_ID", "VERSION"} {
		if v := values[key]; v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s has no version", osReleaseFile)
}

// parseOSRelease reads KEY=value lines, values optionally quoted
func parseOSRelease(data string) map[string]string {
	values := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[key] = strings.Trim(value, `"'`)
	}
	return values
}

func configure(ctx context.Context, shell Shell, config sdk.DeviceConfig) error {
	data, err := json.Marshal(config)
	if err != nil {
		return err
	}
	_, err = shell.Run(ctx, "os-config join "+shellQuote(string(data)))
	return err
}

// shellQuote wraps s in single quotes for a POSIX shell
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func newDeviceUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
