package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/geometry"
)

func TestNewServer_Defaults(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, defaultBatchLimit, s.batchLimit)
	assert.Equal(t, defaultBatchWorkers, s.batchWork)
	assert.Nil(t, s.rateLimiter)
	assert.Equal(t, geometry.Size{Width: 1080, Height: 1920}, s.loader.Target())
	assert.Equal(t, 2, s.pool.Size())
}

func TestNewServer_RateLimitEnabled(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 10}
	})
	require.NotNil(t, s.rateLimiter)
	assert.Equal(t, 10, s.rateLimiter.requestsPerMinute)
}

func TestNewServer_ErrorCases(t *testing.T) {
	valid := Config{MaxUploadMB: 1, Viewport: geometry.Size{Width: 100, Height: 100}}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero viewport", func(c *Config) { c.Viewport = geometry.Size{} }},
		{"no upload budget", func(c *Config) { c.MaxUploadMB = 0 }},
		{"bad display rotation", func(c *Config) { c.DisplayRotation = 45 }},
		{"bad character set", func(c *Config) { c.Decoder.CharacterSet = "no-such-charset" }},
		{"unreadable formats only", func(c *Config) {
			c.Decoder.Formats = []barcode.Format{barcode.FormatRSS14}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			s, err := NewServer(cfg)
			require.Error(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestServer_SetupRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 0, health.Sessions)

	resp, err = http.Get(ts.URL + "/api/sessions")
	require.NoError(t, err)
	var sessions SessionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	_ = resp.Body.Close()
	assert.Equal(t, 0, sessions.Count)
	assert.NotNil(t, sessions.Sessions)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "goscan_http_requests_total")

	resp, err = http.Get(ts.URL + "/api/decode")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Close_NoSessions(t *testing.T) {
	s := newTestServer(t, nil)
	assert.NoError(t, s.Close())
}

func TestJSON_FieldNames(t *testing.T) {
	data, err := json.Marshal(DecodeResponse{
		Success: true,
		Result:  &DecodeResult{File: "a.png", Found: true, Text: "hi", Format: "QR_CODE", DurationMs: 3},
	})
	require.NoError(t, err)

	s := string(data)
	for _, field := range []string{`"success":true`, `"file":"a.png"`, `"found":true`, `"text":"hi"`,
		`"format":"QR_CODE"`, `"duration_ms":3`} {
		assert.Contains(t, s, field)
	}
	assert.NotContains(t, s, `"error"`)
}
