package support

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/goscan/internal/testutil"
)

const (
	fixtureSize = 400
	qrSize      = 240
)

func (testCtx *TestContext) prepareFixturePath(name string) (string, error) {
	path := testCtx.TempPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create fixture directory: %w", err)
	}
	return path, nil
}

// aQRCodeImage writes a QR code carrying text onto a white canvas.
func (testCtx *TestContext) aQRCodeImage(name, text string) error {
	path, err := testCtx.prepareFixturePath(name)
	if err != nil {
		return err
	}
	qr, err := testutil.EncodeQRCode(text, qrSize)
	if err != nil {
		return fmt.Errorf("failed to render QR code: %w", err)
	}
	offset := (fixtureSize - qrSize) / 2
	return testutil.WritePNG(testutil.Place(qr, fixtureSize, fixtureSize, image.Pt(offset, offset)), path)
}

// aBlankImage writes an image without any symbol in it.
func (testCtx *TestContext) aBlankImage(name string) error {
	path, err := testCtx.prepareFixturePath(name)
	if err != nil {
		return err
	}
	return testutil.WritePNG(testutil.BlankImage(fixtureSize/2, fixtureSize/2), path)
}

// aTextFile writes a file that no image decoder accepts.
func (testCtx *TestContext) aTextFile(name string) error {
	path, err := testCtx.prepareFixturePath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte("not an image\n"), 0o600)
}

// aConfigFile writes content verbatim as a config file.
func (testCtx *TestContext) aConfigFile(name string, content *godog.DocString) error {
	path, err := testCtx.prepareFixturePath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content.Content), 0o600)
}

// RegisterImageSteps registers fixture steps.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a QR code image "([^"]*)" containing "([^"]*)"$`, testCtx.aQRCodeImage)
	sc.Step(`^a blank image "([^"]*)"$`, testCtx.aBlankImage)
	sc.Step(`^a text file "([^"]*)"$`, testCtx.aTextFile)
	sc.Step(`^a config file "([^"]*)" with:$`, testCtx.aConfigFile)
}
