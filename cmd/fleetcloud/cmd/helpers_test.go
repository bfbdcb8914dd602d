package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"fleetcloud.sh/internal/testutil"
)

// fakeAPI serves a platform API from fixtures
type fakeAPI struct {
	platform *testutil.Platform

	mu      sync.Mutex
	patches []map[string]any

	apps     []map[string]any
	devices  []map[string]any
	releases []map[string]any
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		apps: []map[string]any{
			{"id": 42, "app_name": "Kitchen", "slug": "home/kitchen"},
		},
		devices: []map[string]any{
			{
				"id":                 1,
				"uuid":               "a1b2c3d4e5f60718293a4b5c6d7e8f90",
				"device_name":        "kitchen-pi",
				"status":             "Idle",
				"is_online":          true,
				"supervisor_version": "16.1.0",
				"os_version":         "fleetOS 6.0.13",
				"belongs_to__application": []map[string]any{
					{"id": 42, "app_name": "Kitchen"},
				},
				"is_of__device_type": []map[string]any{{"slug": "raspberrypi4-64"}},
			},
			{
				"id":                 2,
				"uuid":               "f0e1d2c3b4a5968778695a4b3c2d1e0f",
				"device_name":        "spare",
				"status":             nil,
				"is_online":          false,
				"supervisor_version": nil,
				"os_version":         nil,
			},
		},
		releases: []map[string]any{
			{
				"id":              7,
				"commit":          "a777f7345fe3d655c1c981aa642e5555",
				"created_at":      "2026-09-01T10:00:00.000Z",
				"status":          "success",
				"semver":          "1.2.0",
				"is_final":        false,
				"build_log":       nil,
				"start_timestamp": "2026-09-01T10:00:00.000Z",
				"end_timestamp":   nil,
				"release_tag": []map[string]any{
					{"tag_key": "env", "value": "prod"},
					{"tag_key": "owner", "value": "ops"},
				},
			},
			{
				"id":         8,
				"commit":     "b888f7345fe3d655c1c981aa642e6666",
				"created_at": "2026-08-01T10:00:00.000Z",
				"status":     "success",
				"semver":     nil,
				"is_final":   true,
			},
		},
	}
}

// serve starts the fake API once and returns its URL
func (f *fakeAPI) serve(t *testing.T) string {
	t.Helper()
	if f.platform != nil {
		return f.platform.URL
	}
	f.platform = testutil.NewPlatform(t)
	router := f.platform.Router

	router.HandleFunc("/v6/application", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("$filter") {
		case "", "slug eq 'home/kitchen'", "app_name eq 'Kitchen'":
			testutil.WriteData(w, f.apps)
		default:
			testutil.WriteData(w, []any{})
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/v6/device", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("$filter") {
		case "":
			testutil.WriteData(w, f.devices)
		case "belongs_to__application eq 42":
			testutil.WriteData(w, f.devices[:1])
		default:
			testutil.WriteData(w, []any{})
		}
	}).Methods(http.MethodGet)

	router.HandleFunc("/v6/release", func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("$filter")
		if filter == "belongs_to__application eq 42" {
			testutil.WriteData(w, f.releases)
			return
		}
		matched := []map[string]any{}
		for _, rel := range f.releases {
			commit := rel["commit"].(string)
			if strings.HasPrefix(filter, "startswith(commit,'") {
				prefix := strings.TrimSuffix(strings.TrimPrefix(filter, "startswith(commit,'"), "')")
				if strings.HasPrefix(commit, prefix) {
					matched = append(matched, rel)
				}
			}
		}
		testutil.WriteData(w, matched)
	}).Methods(http.MethodGet)

	router.HandleFunc("/v6/release({id:[0-9]+})", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.patches = append(f.patches, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodPatch)

	return f.platform.URL
}

func (f *fakeAPI) requests() []string {
	return f.platform.Requests()
}

func (f *fakeAPI) requestCount() int {
	return f.platform.RequestCount("")
}

func (f *fakeAPI) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patches)
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

type cliOptions struct {
	tty     bool
	noAuth  bool
	noFlags bool
}

// runCLI runs the CLI against api the way Execute does
func runCLI(t *testing.T, api *fakeAPI, opts cliOptions, args ...string) cliResult {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLEETCLOUD_API_TOKEN", "")
	t.Setenv("FLEETCLOUD_API_URL", "")

	srvURL := api.serve(t)

	a := newApp()
	a.isTerminal = func(any) bool { return opts.tty }
	root := newRootCmd(a)

	full := append([]string{}, args...)
	if !opts.noFlags {
		full = append(full, "--no-color", "--api-url", srvURL)
		if !opts.noAuth {
			full = append(full, "--token", "test-api-key")
		}
	}
	root.SetArgs(full)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))

	cmd, err := root.ExecuteContextC(context.Background())
	a.finish(err)
	if err != nil {
		a.reportError(cmd, err)
	}
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}
