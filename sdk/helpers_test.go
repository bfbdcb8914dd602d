package sdk

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"fleetcloud.sh/internal/retry"
)

const testToken = "test-api-key"

// newTestClient starts a fake API and returns a client pointed at it
func newTestClient(t *testing.T, router *mux.Router) *Client {
	t.Helper()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	fast := retry.Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}

	client, err := NewClient(srv.URL, Options{
		Token:        testToken,
		HTTPClient:   srv.Client(),
		DashboardURL: "https://dashboard.example.com",
		Retry:        &fast,
	})
	require.NoError(t, err)
	return client
}

func ptr[T any](v T) *T {
	return &v
}
