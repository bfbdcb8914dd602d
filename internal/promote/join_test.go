package promote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcloud.sh/internal/discovery"
	"fleetcloud.sh/internal/ferrors"
	"fleetcloud.sh/internal/prompt"
	"fleetcloud.sh/internal/retry"
	"fleetcloud.sh/internal/testutil"
	"fleetcloud.sh/sdk"
)

const testUUID = "0123456789abcdef0123456789abcdef"

type fakeShell struct {
	mu       sync.Mutex
	files    map[string]string
	commands []string
	closed   bool
}

func newFakeShell() *fakeShell {
	return &fakeShell{files: map[string]string{
		deviceTypeFile: `{"slug":"raspberrypi4-64","arch":"aarch64"}`,
		osReleaseFile:  "ID=\"fleet-os\"\nNAME=\"fleetOS\"\nVERSION=\"6.0.13\"\nVERSION_ID=\"6.0.13\"\n",
	}}
}

func (s *fakeShell) Run(_ context.Context, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, command)

	if path, ok := strings.CutPrefix(command, "cat "); ok {
		data, found := s.files[path]
		if !found {
			return "", errors.New("No such file or directory")
		}
		return data, nil
	}
	if strings.HasPrefix(command, "os-config join ") {
		return "", nil
	}
	return "", errors.New("command not found")
}

func (s *fakeShell) Close() error {
	s.closed = true
	return nil
}

type fakeScanner struct {
	devices []discovery.LocalDevice
	err     error
	calls   int
}

func (s *fakeScanner) Scan(context.Context, time.Duration) ([]discovery.LocalDevice, error) {
	s.calls++
	return s.devices, s.err
}

type fakeAPI struct {
	mu         sync.Mutex
	config     map[string]any
	polls      int
	onlineFrom int
}

func (a *fakeAPI) register(router *mux.Router) {
	apps := []sdk.Application{
		{ID: 1, AppName: "Kitchen", Slug: "home/kitchen", IsForDeviceType: []sdk.DeviceType{{Slug: "raspberrypi4-64"}}},
		{ID: 2, AppName: "Garage", Slug: "home/garage", IsForDeviceType: []sdk.DeviceType{{Slug: "intel-nuc"}}},
		{ID: 3, AppName: "Attic", Slug: "home/attic", IsForDeviceType: []sdk.DeviceType{{Slug: "raspberrypi4-64"}}},
	}

	router.HandleFunc("/v6/application({id:[0-9]+})", func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["id"] == "3" {
			testutil.WriteData(w, apps[2:])
			return
		}
		http.Error(w, "Not Found", http.StatusNotFound)
	}).Methods(http.MethodGet)
	router.HandleFunc("/v6/application", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("$filter") {
		case "":
			testutil.WriteData(w, apps)
		case "slug eq 'home/kitchen'":
			testutil.WriteData(w, apps[:1])
		default:
			testutil.WriteData(w, []sdk.Application{})
		}
	}).Methods(http.MethodGet)
	router.HandleFunc("/download-config", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&a.config)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"applicationId":1,"apiKey":"provisioning-key","apiEndpoint":"https://api.example.com"}`))
	}).Methods(http.MethodPost)
	router.HandleFunc("/v6/device", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.polls++
		polls := a.polls
		a.mu.Unlock()

		if r.URL.Query().Get("$filter") != "uuid eq '"+testUUID+"'" || polls < 2 {
			testutil.WriteData(w, []sdk.Device{})
			return
		}
		online := a.onlineFrom > 0 && polls >= a.onlineFrom
		testutil.WriteData(w, []sdk.Device{{ID: 9, UUID: testUUID, IsOnline: online}})
	}).Methods(http.MethodGet)
}

func (a *fakeAPI) pollCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.polls
}

func newJoiner(t *testing.T, api *fakeAPI, shell *fakeShell, input string) *Joiner {
	t.Helper()

	platform := testutil.NewPlatform(t)
	api.register(platform.Router)

	client, err := sdk.NewClient(platform.URL, sdk.Options{
		Token:        "test-api-key",
		DashboardURL: "https://dashboard.example.com",
		Retry:        &retry.Config{MaxAttempts: 1},
	})
	require.NoError(t, err)

	j := &Joiner{
		Client:  client,
		Scanner: &fakeScanner{},
		Dial: func(context.Context, string) (Shell, error) {
			return shell, nil
		},
		Out:     &bytes.Buffer{},
		NewUUID: func() string { return testUUID },
	}
	if input != "" {
		j.Prompter = prompt.New(strings.NewReader(input), &bytes.Buffer{})
	}
	return j
}

func fastWait(opts Options) Options {
	opts.WaitInterval = time.Millisecond
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = 2 * time.Second
	}
	return opts
}

func TestJoinWithAddressAndFleet(t *testing.T) {
	api := &fakeAPI{onlineFrom: 3}
	shell := newFakeShell()
	j := newJoiner(t, api, shell, "")

	result, err := j.Join(context.Background(), fastWait(Options{
		DeviceAddress: "192.168.1.20",
		Fleet:         "home/kitchen",
		PollInterval:  10 * time.Minute,
	}))
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.20", result.Address)
	assert.Equal(t, "raspberrypi4-64", result.DeviceType)
	assert.Equal(t, "6.0.13", result.OSVersion)
	assert.Equal(t, testUUID, result.UUID)
	assert.Equal(t, int64(1), result.Fleet.ID)
	assert.True(t, result.Online)
	assert.Equal(t, "https://dashboard.example.com/devices/"+testUUID+"/summary", result.DashboardURL)

	assert.Equal(t, float64(1), api.config["appId"])
	assert.Equal(t, "raspberrypi4-64", api.config["deviceType"])
	assert.Equal(t, "6.0.13", api.config["version"])
	assert.Equal(t, float64(600000), api.config["appUpdatePollInterval"])

	require.Len(t, shell.commands, 3)
	push := shell.commands[2]
	require.True(t, strings.HasPrefix(push, "os-config join '"))

	var pushed map[string]any
	payload := strings.TrimSuffix(strings.TrimPrefix(push, "os-config join '"), "'")
	require.NoError(t, json.Unmarshal([]byte(payload), &pushed))
	assert.Equal(t, testUUID, pushed["uuid"])
	assert.Equal(t, "provisioning-key", pushed["apiKey"])
	assert.True(t, shell.closed)
}

func TestJoinScansAndPrompts(t *testing.T) {
	api := &fakeAPI{onlineFrom: 2}
	shell := newFakeShell()

	var dialed string
	j := newJoiner(t, api, shell, "2\n2\n")
	j.Scanner = &fakeScanner{devices: []discovery.LocalDevice{
		{Hostname: "a1b2c3d.local", Address: "192.168.1.10"},
		{Hostname: "e4f5g6h.local", Address: "192.168.1.11"},
	}}
	j.Dial = func(_ context.Context, address string) (Shell, error) {
		dialed = address
		return shell, nil
	}

	result, err := j.Join(context.Background(), fastWait(Options{}))
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.11", dialed)
	// second compatible fleet; the intel-nuc fleet is not offered
	assert.Equal(t, int64(3), result.Fleet.ID)
	assert.NotContains(t, api.config, "appUpdatePollInterval")
}

func TestJoinNoLocalDevices(t *testing.T) {
	j := newJoiner(t, &fakeAPI{}, newFakeShell(), "1\n")

	_, err := j.Join(context.Background(), fastWait(Options{}))
	require.Error(t, err)
	assert.True(t, ferrors.IsExpected(err))
	assert.Equal(t, "Could not find any local devices", err.Error())
}

func TestJoinNonInteractive(t *testing.T) {
	t.Run("no device", func(t *testing.T) {
		j := newJoiner(t, &fakeAPI{}, newFakeShell(), "")
		scanner := &fakeScanner{}
		j.Scanner = scanner

		_, err := j.Join(context.Background(), fastWait(Options{}))
		require.Error(t, err)
		assert.True(t, ferrors.IsExpected(err))
		assert.Contains(t, err.Error(), "No device specified")
		assert.Zero(t, scanner.calls)
	})

	t.Run("no fleet", func(t *testing.T) {
		j := newJoiner(t, &fakeAPI{}, newFakeShell(), "")

		_, err := j.Join(context.Background(), fastWait(Options{DeviceAddress: "10.0.0.2"}))
		require.Error(t, err)
		assert.True(t, ferrors.IsExpected(err))
		assert.Contains(t, err.Error(), "--fleet")
	})
}

func TestJoinFleetByID(t *testing.T) {
	j := newJoiner(t, &fakeAPI{onlineFrom: 2}, newFakeShell(), "")

	result, err := j.Join(context.Background(), fastWait(Options{DeviceAddress: "10.0.0.2", Fleet: "3"}))
	require.NoError(t, err)
	assert.Equal(t, "home/attic", result.Fleet.Slug)
}

func TestJoinFleetNotFound(t *testing.T) {
	api := &fakeAPI{}
	j := newJoiner(t, api, newFakeShell(), "")

	_, err := j.Join(context.Background(), fastWait(Options{DeviceAddress: "10.0.0.2", Fleet: "nope"}))
	require.Error(t, err)
	assert.True(t, ferrors.IsExpected(err))
	assert.Equal(t, "Fleet nope not found", err.Error())
	assert.Nil(t, api.config)
}

func TestJoinNoCompatibleFleet(t *testing.T) {
	shell := newFakeShell()
	shell.files[deviceTypeFile] = `{"slug":"beaglebone-black"}`
	j := newJoiner(t, &fakeAPI{}, shell, "1\n")

	_, err := j.Join(context.Background(), fastWait(Options{DeviceAddress: "10.0.0.2"}))
	require.Error(t, err)
	assert.True(t, ferrors.IsExpected(err))
	assert.Contains(t, err.Error(), "beaglebone-black")
}

func TestJoinNotAFleetDevice(t *testing.T) {
	shell := newFakeShell()
	delete(shell.files, deviceTypeFile)
	j := newJoiner(t, &fakeAPI{}, shell, "")

	_, err := j.Join(context.Background(), fastWait(Options{DeviceAddress: "10.0.0.2", Fleet: "home/kitchen"}))
	require.Error(t, err)
	assert.True(t, ferrors.IsExpected(err))
}

func TestJoinDialFailure(t *testing.T) {
	j := newJoiner(t, &fakeAPI{}, newFakeShell(), "")
	j.Dial = func(context.Context, string) (Shell, error) {
		return nil, errors.New("connection refused")
	}

	_, err := j.Join(context.Background(), fastWait(Options{DeviceAddress: "10.0.0.2", Fleet: "home/kitchen"}))
	require.Error(t, err)
	assert.True(t, ferrors.IsExpected(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestJoinWaitTimesOut(t *testing.T) {
	api := &fakeAPI{}
	j := newJoiner(t, api, newFakeShell(), "")

	result, err := j.Join(context.Background(), fastWait(Options{
		DeviceAddress: "10.0.0.2",
		Fleet:         "home/kitchen",
		WaitTimeout:   30 * time.Millisecond,
	}))
	require.NoError(t, err)
	assert.False(t, result.Online)
	assert.Positive(t, api.pollCount())
}

func TestJoinWaitIntervalPastDeadline(t *testing.T) {
	tests := []struct {
		name     string
		timeout  time.Duration
		interval time.Duration
	}{
		{"deadline between polls", 120 * time.Millisecond, 50 * time.Millisecond},
		{"interval longer than timeout", 50 * time.Millisecond, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			j := newJoiner(t, api, newFakeShell(), "")

			start := time.Now()
			result, err := j.Join(context.Background(), Options{
				DeviceAddress: "10.0.0.2",
				Fleet:         "home/kitchen",
				WaitTimeout:   tt.timeout,
				WaitInterval:  tt.interval,
			})
			require.NoError(t, err)
			assert.False(t, result.Online)
			assert.Positive(t, api.pollCount())
			assert.Less(t, time.Since(start), tt.timeout+time.Second)
		})
	}
}

func TestJoinWaitCanceled(t *testing.T) {
	api := &fakeAPI{}
	j := newJoiner(t, api, newFakeShell(), "")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	_, err := j.Join(ctx, Options{
		DeviceAddress: "10.0.0.2",
		Fleet:         "home/kitchen",
		WaitTimeout:   time.Minute,
		WaitInterval:  10 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJoinSkipWait(t *testing.T) {
	api := &fakeAPI{}
	j := newJoiner(t, api, newFakeShell(), "")

	result, err := j.Join(context.Background(), fastWait(Options{
		DeviceAddress: "10.0.0.2",
		Fleet:         "home/kitchen",
		WaitTimeout:   -1,
	}))
	require.NoError(t, err)
	assert.False(t, result.Online)
	assert.Zero(t, api.pollCount())
}

func TestParseOSRelease(t *testing.T) {
	values := parseOSRelease("# comment\nID=fleet-os\nVERSION_ID=\"6.0.13\"\nPRETTY_NAME='fleetOS 6.0.13'\nbroken\n")
	assert.Equal(t, "fleet-os", values["ID"])
	assert.Equal(t, "6.0.13", values["VERSION_ID"])
	assert.Equal(t, "fleetOS 6.0.13", values["PRETTY_NAME"])
	assert.NotContains(t, values, "broken")
}

func TestGetOSVersionFallback(t *testing.T) {
	shell := newFakeShell()
	shell.files[osReleaseFile] = "VERSION=\"2.113.4\"\n"
	v, err := getOSVersion(context.Background(), shell)
	require.NoError(t, err)
	assert.Equal(t, "2.113.4", v)

	shell.files[osReleaseFile] = "ID=other\n"
	_, err = getOSVersion(context.Background(), shell)
	assert.Error(t, err)
}

func TestNewDeviceUUID(t *testing.T) {
	id := newDeviceUUID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, newDeviceUUID())
}
