// Package testutil runs a fake platform API for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
)

// Platform is a fake platform API on an httptest server. Handlers are added
// to Router; every request is recorded as "METHOD /path".
type Platform struct {
	URL    string
	Router *mux.Router

	mu       sync.Mutex
	requests []string
}

// NewPlatform starts an empty fake API that is shut down with the test
func NewPlatform(t *testing.T) *Platform {
	t.Helper()

	p := &Platform{Router: mux.NewRouter()}

	srv := httptest.NewServer(p.record(p.Router))
	t.Cleanup(srv.Close)
	p.URL = srv.URL

	return p
}

func (p *Platform) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests = append(p.requests, r.Method+" "+r.URL.Path)
		p.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// Requests returns the requests served so far
func (p *Platform) Requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requests...)
}

// RequestCount returns how many requests matched method, or all of them
// when method is empty
func (p *Platform) RequestCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, r := range p.requests {
		if method == "" || strings.HasPrefix(r, method+" ") {
			n++
		}
	}
	return n
}

// WriteData writes records in the {"d": [...]} envelope of list responses
func WriteData(w http.ResponseWriter, records any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"d": records})
}
