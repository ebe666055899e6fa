package support

import (
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/goscan/internal/server"
	"github.com/MeKo-Tech/goscan/internal/testutil"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastStderr   string
	LastError    error
	LastExitCode int
	LastDuration time.Duration

	// Test environment
	ProjectRoot string
	BinPath     string
	TempDir     string
	EnvVars     []string

	// In-process scan server
	HTTPServer *httptest.Server
	ScanServer *server.Server

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string
}

// NewTestContext creates a new test context with its own scratch directory.
func NewTestContext() (*TestContext, error) {
	root, err := testutil.GetProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "goscan-integration-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	binPath := os.Getenv("GOSCAN_BIN")
	if binPath == "" {
		binPath = filepath.Join(root, "bin", "goscan")
	}

	return &TestContext{
		ProjectRoot:     root,
		BinPath:         binPath,
		TempDir:         tempDir,
		LastHTTPHeaders: make(map[string]string),
	}, nil
}

// Cleanup stops the scan server and removes the scratch directory.
func (testCtx *TestContext) Cleanup() error {
	testCtx.StopServer()
	if testCtx.TempDir == "" {
		return nil
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil {
		return fmt.Errorf("failed to remove temp directory: %w", err)
	}
	testCtx.TempDir = ""
	return nil
}

// StopServer shuts down the in-process scan server if one is running.
func (testCtx *TestContext) StopServer() {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	if testCtx.ScanServer != nil {
		_ = testCtx.ScanServer.Close()
		testCtx.ScanServer = nil
	}
}

// TempPath resolves name inside the scratch directory.
func (testCtx *TestContext) TempPath(name string) string {
	return filepath.Join(testCtx.TempDir, filepath.FromSlash(name))
}

// AddEnvVar sets an environment variable for subsequent commands.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, name+"="+value)
}
