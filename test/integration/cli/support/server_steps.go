package support

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/goscan/internal/config"
	"github.com/MeKo-Tech/goscan/internal/server"
)

const httpTimeout = 30 * time.Second

// startScanServer runs the decode server in-process behind httptest.
func (testCtx *TestContext) startScanServer(rateLimit server.RateLimitConfig) error {
	testCtx.StopServer()

	cfg := config.DefaultConfig()
	decoder, err := cfg.DecoderOptions()
	if err != nil {
		return err
	}

	scanServer, err := server.NewServer(server.Config{
		CORSOrigin:      "*",
		MaxUploadMB:     int64(cfg.Server.MaxUploadMB),
		TimeoutSec:      cfg.Server.TimeoutSec,
		Decoder:         decoder,
		Viewport:        cfg.ViewportSize(),
		Finder:          cfg.FinderRect(),
		DisplayRotation: cfg.Camera.DisplayRotation,
		MaxPixels:       cfg.File.MaxPixels,
		PoolSize:        cfg.Scheduler.MaxWorkers,
		RateLimit:       rateLimit,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return fmt.Errorf("failed to create scan server: %w", err)
	}

	mux := http.NewServeMux()
	scanServer.SetupRoutes(mux)
	testCtx.ScanServer = scanServer
	testCtx.HTTPServer = httptest.NewServer(mux)
	return nil
}

func (testCtx *TestContext) theScanServerIsRunning() error {
	return testCtx.startScanServer(server.RateLimitConfig{})
}

func (testCtx *TestContext) theScanServerIsRunningWithRateLimit(perMinute int) error {
	return testCtx.startScanServer(server.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute})
}

func (testCtx *TestContext) do(req *http.Request) error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("scan server is not running")
	}
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) iSendAGETRequestTo(path string) error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("scan server is not running")
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, testCtx.HTTPServer.URL+path, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

// iUploadTo posts the named fixtures as one multipart form. The batch
// endpoint reads the "files" field, every other endpoint reads "file".
func (testCtx *TestContext) iUploadTo(names, path string) error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("scan server is not running")
	}
	field := "file"
	if strings.HasPrefix(path, "/api/batch") {
		field = "files"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		data, err := os.ReadFile(testCtx.TempPath(name))
		if err != nil {
			return fmt.Errorf("failed to read fixture %s: %w", name, err)
		}
		part, err := mw.CreateFormFile(field, filepath.Base(name))
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, testCtx.HTTPServer.URL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) iUploadTimesTo(name string, times int, path string) error {
	for range times {
		if err := testCtx.iUploadTo(name, path); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d\n%s", status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(expected string) error {
	expected = unquote(expected)
	if !strings.Contains(testCtx.LastHTTPResponse, expected) {
		return fmt.Errorf("response does not contain %q\n%s", expected, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, value string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != value {
		return fmt.Errorf("header %s is %q, want %q", name, got, value)
	}
	return nil
}

// RegisterServerSteps registers the HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the scan server is running$`, testCtx.theScanServerIsRunning)
	sc.Step(`^the scan server is running with a limit of (\d+) requests per minute$`,
		testCtx.theScanServerIsRunningWithRateLimit)
	sc.Step(`^I send a GET request to "([^"]*)"$`, testCtx.iSendAGETRequestTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^I upload "([^"]*)" (\d+) times to "([^"]*)"$`, testCtx.iUploadTimesTo)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "(.*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
}
