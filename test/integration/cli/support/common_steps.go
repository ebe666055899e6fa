package support

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"gopkg.in/yaml.v3"
)

const commandTimeout = 60 * time.Second

// iRunCommand runs the goscan binary inside the scratch directory. The
// command line must start with "goscan".
func (testCtx *TestContext) iRunCommand(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 || fields[0] != "goscan" {
		return fmt.Errorf("command must start with goscan: %q", command)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, testCtx.BinPath, fields[1:]...) //nolint:gosec // G204: binary under test
	cmd.Dir = testCtx.TempDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	testCtx.LastDuration = time.Since(start)
	testCtx.LastCommand = command
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	testCtx.LastError = err
	testCtx.LastExitCode = 0

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		testCtx.LastExitCode = exitErr.ExitCode()
	default:
		return fmt.Errorf("failed to run %q: %w", command, err)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command %q exited with %d\nstdout: %s\nstderr: %s",
			testCtx.LastCommand, testCtx.LastExitCode, testCtx.LastOutput, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command %q succeeded unexpectedly\nstdout: %s", testCtx.LastCommand, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theExitCodeShouldBe(code int) error {
	if testCtx.LastExitCode != code {
		return fmt.Errorf("expected exit code %d, got %d\nstderr: %s", code, testCtx.LastExitCode, testCtx.LastStderr)
	}
	return nil
}

// unquote turns the \" escapes used in feature files into quotes.
func unquote(s string) string {
	return strings.ReplaceAll(s, `\"`, `"`)
}

func (testCtx *TestContext) theOutputShouldContain(expected string) error {
	expected = unquote(expected)
	if !strings.Contains(testCtx.LastOutput, expected) {
		return fmt.Errorf("output does not contain %q\noutput: %s", expected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(unexpected string) error {
	unexpected = unquote(unexpected)
	if strings.Contains(testCtx.LastOutput, unexpected) {
		return fmt.Errorf("output contains %q\noutput: %s", unexpected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theErrorOutputShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastStderr, expected) {
		return fmt.Errorf("stderr does not contain %q\nstderr: %s", expected, testCtx.LastStderr)
	}
	return nil
}

// fileListing mirrors the JSON document written by the file and batch
// commands.
type fileListing struct {
	Files []struct {
		File  string `json:"file"`
		Found bool   `json:"found"`
		Text  string `json:"text"`
	} `json:"files"`
}

func (testCtx *TestContext) decodeListing(data string) (*fileListing, error) {
	var listing fileListing
	if err := json.Unmarshal([]byte(data), &listing); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w\n%s", err, data)
	}
	return &listing, nil
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	if !json.Valid([]byte(testCtx.LastOutput)) {
		return fmt.Errorf("output is not valid JSON: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeValidCSV() error {
	records, err := csv.NewReader(strings.NewReader(testCtx.LastOutput)).ReadAll()
	if err != nil {
		return fmt.Errorf("output is not valid CSV: %w", err)
	}
	if len(records) == 0 || records[0][0] != "file" {
		return fmt.Errorf("CSV output has no header: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeValidYAML() error {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(testCtx.LastOutput), &doc); err != nil {
		return fmt.Errorf("output is not valid YAML: %w", err)
	}
	return nil
}

func (testCtx *TestContext) theJSONShouldListFiles(total, found int) error {
	listing, err := testCtx.decodeListing(testCtx.LastOutput)
	if err != nil {
		return err
	}
	hits := 0
	for _, f := range listing.Files {
		if f.Found {
			hits++
		}
	}
	if len(listing.Files) != total || hits != found {
		return fmt.Errorf("expected %d files with %d found, got %d with %d", total, found, len(listing.Files), hits)
	}
	return nil
}

func (testCtx *TestContext) theJSONShouldReportTextFor(file, text string) error {
	listing, err := testCtx.decodeListing(testCtx.LastOutput)
	if err != nil {
		return err
	}
	for _, f := range listing.Files {
		if strings.HasSuffix(f.File, file) {
			if !f.Found || f.Text != text {
				return fmt.Errorf("%s: found=%v text=%q, want %q", file, f.Found, f.Text, text)
			}
			return nil
		}
	}
	return fmt.Errorf("%s not listed", file)
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	if _, err := os.Stat(testCtx.TempPath(name)); err != nil {
		return fmt.Errorf("file %s does not exist: %w", name, err)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(name, expected string) error {
	data, err := os.ReadFile(testCtx.TempPath(name))
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), expected) {
		return fmt.Errorf("%s does not contain %q\n%s", name, expected, data)
	}
	return nil
}

// RegisterCommonSteps registers command execution and output steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the exit code should be (\d+)$`, testCtx.theExitCodeShouldBe)
	sc.Step(`^the output should contain "(.*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "(.*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the error output should contain "(.*)"$`, testCtx.theErrorOutputShouldContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the output should be valid CSV$`, testCtx.theOutputShouldBeValidCSV)
	sc.Step(`^the output should be valid YAML$`, testCtx.theOutputShouldBeValidYAML)
	sc.Step(`^the JSON output should list (\d+) files? with (\d+) found$`, testCtx.theJSONShouldListFiles)
	sc.Step(`^the JSON output should report "([^"]*)" for "([^"]*)"$`, func(text, file string) error {
		return testCtx.theJSONShouldReportTextFor(file, text)
	})
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, func(name, value string) error {
		testCtx.AddEnvVar(name, value)
		return nil
	})
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}
