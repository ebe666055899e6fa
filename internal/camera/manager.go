package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/goscan/internal/geometry"
)

// Manager owns at most one open device and the negotiated preview settings.
// It is not safe for concurrent use; the scan session drives it from its
// control loop.
type Manager struct {
	driver          Driver
	screen          geometry.Size
	displayRotation int
	logger          *slog.Logger

	dev        Device
	settings   Settings
	negotiated bool
	previewing bool
	flash      bool
}

// NewManager returns a closed manager for driver on a screen of the given
// size and display rotation.
func NewManager(driver Driver, screen geometry.Size, displayRotation int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		driver:          driver,
		screen:          screen,
		displayRotation: displayRotation,
		logger:          logger.With("component", "camera"),
	}
}

// IsOpen reports whether a device is held.
func (m *Manager) IsOpen() bool { return m.dev != nil }

// Previewing reports whether the preview is running.
func (m *Manager) Previewing() bool { return m.previewing }

// Flash reports the requested torch state. It survives Close.
func (m *Manager) Flash() bool { return m.flash }

// Settings returns the negotiated settings and whether negotiation has
// happened.
func (m *Manager) Settings() (Settings, bool) { return m.settings, m.negotiated }

// Info returns the open device's info.
func (m *Manager) Info() (Info, bool) {
	if m.dev == nil {
		return Info{}, false
	}
	return m.dev.Info(), true
}

// Open opens and configures the device. Opening an open manager is a no-op.
// On failure the manager stays closed.
func (m *Manager) Open(ctx context.Context) error {
	if m.dev != nil {
		return nil
	}
	if m.driver == nil {
		return ErrNoCamera
	}
	dev, err := m.driver.Open(ctx)
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	if dev == nil {
		return ErrNoCamera
	}

	if !m.negotiated {
		settings, err := Negotiate(dev.Info(), m.screen, m.displayRotation)
		if err != nil {
			_ = dev.Release()
			return fmt.Errorf("negotiate camera: %w", err)
		}
		m.settings = settings
		m.negotiated = true
		m.logger.Debug("camera negotiated",
			"rotation", settings.Rotation,
			"camera_resolution", settings.CameraResolution.String(),
			"preview_resolution", settings.PreviewResolution.String())
	}

	m.configure(dev)
	m.dev = dev
	return nil
}

func (m *Manager) configure(dev Device) {
	params := Params{
		Resolution: m.settings.CameraResolution,
		Rotation:   m.settings.Rotation,
		Flash:      m.flash,
		AutoFocus:  true,
	}
	applied, err := dev.Configure(params)
	if err != nil {
		m.logger.Warn("camera rejected parameters, retrying in safe mode", "error", err)
		params.AutoFocus = false
		applied, err = dev.Configure(params)
		if err != nil {
			m.logger.Warn("camera rejected safe-mode parameters", "error", err)
			return
		}
	}
	if applied.Area() > 0 && applied != m.settings.CameraResolution {
		m.logger.Warn("camera applied a different preview size",
			"requested", m.settings.CameraResolution.String(),
			"applied", applied.String())
		m.settings.CameraResolution = applied
		m.settings.PreviewResolution = PreviewResolution(applied, m.screen)
	}
}

// Close stops the preview and releases the device.
func (m *Manager) Close() error {
	if m.dev == nil {
		return nil
	}
	var errs []error
	if m.previewing {
		errs = append(errs, m.dev.StopPreview())
		m.previewing = false
	}
	errs = append(errs, m.dev.Release())
	m.dev = nil
	return errors.Join(errs...)
}

// StartPreview starts the preview if a device is open and not previewing.
func (m *Manager) StartPreview() error {
	if m.dev == nil || m.previewing {
		return nil
	}
	if err := m.dev.StartPreview(); err != nil {
		return fmt.Errorf("start preview: %w", err)
	}
	m.previewing = true
	return nil
}

// StopPreview stops the preview if it is running.
func (m *Manager) StopPreview() error {
	if m.dev == nil || !m.previewing {
		return nil
	}
	m.previewing = false
	if err := m.dev.StopPreview(); err != nil {
		return fmt.Errorf("stop preview: %w", err)
	}
	return nil
}

// RequestFrame arms a one-shot preview callback. It reports false when no
// preview is running.
func (m *Manager) RequestFrame(cb FrameCallback) bool {
	if m.dev == nil || !m.previewing {
		return false
	}
	m.dev.RequestFrame(cb)
	return true
}

// SetFlash records the torch state and applies it to an open device.
func (m *Manager) SetFlash(on bool) error {
	m.flash = on
	if m.dev == nil {
		return nil
	}
	if err := m.dev.SetFlash(on); err != nil {
		return fmt.Errorf("set flash: %w", err)
	}
	return nil
}
