package plannerqa

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wanmail/plannerqa/safari"
)

// Defaults shared by every backend's SessionConfig.
const (
	DefaultImplicitWait = 10 * time.Second
	DefaultWidth        = 1920
	DefaultHeight       = 1080
	// DefaultUserAgent is a current desktop Chrome on Windows.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// SessionConfig holds the launch-time options of a session. Build it with the
// constructor for the backend (or ConfigFor) and treat it as read-only after.
type SessionConfig struct {
	Headless bool
	// NoSandbox disables the browser's process sandbox, which needs a setuid
	// helper that containers usually lack.
	NoSandbox bool
	// DisableDevShm makes the browser write shared memory to /tmp instead of
	// the small /dev/shm of a container.
	DisableDevShm bool
	DisableGPU    bool

	// Width and Height are the initial window size. Zero keeps the browser's
	// default.
	Width, Height int
	// UserAgent overrides the browser's User-Agent header when not empty.
	UserAgent string
	// SuppressAutomation hides the signals pages use to detect a driven
	// browser.
	SuppressAutomation bool

	// DriverPath is an explicit driver binary. It wins over automatic
	// resolution when the file exists.
	DriverPath string
	// BrowserPath is an explicit browser binary.
	BrowserPath string
	// RemoteURL points at an already running WebDriver endpoint (a grid or
	// hosted service). When set no local driver is resolved or started.
	RemoteURL string
	// Proxy routes browser traffic through an http:// or socks5:// proxy.
	Proxy string
	// FrameBuffer runs the driver and browser inside an Xvfb display, for
	// headed runs on Linux machines without a screen.
	FrameBuffer bool
	// CaptureConsole records browser console output for Snapshot.
	CaptureConsole bool

	// ImplicitWait is how long element lookups retry before failing.
	ImplicitWait time.Duration
	// ExtraArgs are appended to the browser command line.
	ExtraArgs []string
	// DriverOutput receives the driver process's stdout and stderr.
	DriverOutput io.Writer
	// VerboseLogs turns on the most detailed logging the driver offers.
	VerboseLogs bool

	// Safari holds the safari: capabilities. Other backends reject them.
	Safari safari.Options
}

// ChromeConfig returns the configuration for headless Chrome runs.
func ChromeConfig() SessionConfig {
	return SessionConfig{
		Headless:           true,
		NoSandbox:          true,
		DisableDevShm:      true,
		DisableGPU:         true,
		Width:              DefaultWidth,
		Height:             DefaultHeight,
		UserAgent:          DefaultUserAgent,
		SuppressAutomation: true,
		ImplicitWait:       DefaultImplicitWait,
	}
}

// EdgeConfig returns the configuration for headless Microsoft Edge runs.
func EdgeConfig() SessionConfig {
	return SessionConfig{
		Headless:           true,
		NoSandbox:          true,
		DisableDevShm:      true,
		DisableGPU:         true,
		Width:              DefaultWidth,
		Height:             DefaultHeight,
		UserAgent:          DefaultUserAgent,
		SuppressAutomation: true,
		ImplicitWait:       DefaultImplicitWait,
	}
}

// SafariConfig returns the configuration for Safari runs. Safari has no
// headless mode and takes no sandbox or user-agent switches.
func SafariConfig() SessionConfig {
	return SessionConfig{
		Width:        DefaultWidth,
		Height:       DefaultHeight,
		ImplicitWait: DefaultImplicitWait,
	}
}

// FirefoxConfig returns the configuration for headless Firefox runs.
func FirefoxConfig() SessionConfig {
	return SessionConfig{
		Headless:           true,
		Width:              DefaultWidth,
		Height:             DefaultHeight,
		UserAgent:          DefaultUserAgent,
		SuppressAutomation: true,
		ImplicitWait:       DefaultImplicitWait,
	}
}

// ConfigFor returns the default configuration for b.
func ConfigFor(b Backend) (SessionConfig, error) {
	switch b {
	case Chrome:
		return ChromeConfig(), nil
	case Edge:
		return EdgeConfig(), nil
	case Safari:
		return SafariConfig(), nil
	case Firefox:
		return FirefoxConfig(), nil
	}
	return SessionConfig{}, fmt.Errorf("no session configuration for %v", b)
}

// implicitWait returns the configured implicit wait, or the default if unset.
func (c SessionConfig) implicitWait() time.Duration {
	if c.ImplicitWait <= 0 {
		return DefaultImplicitWait
	}
	return c.ImplicitWait
}

// validate rejects options b cannot honour, so that a session is never
// launched with part of its configuration silently dropped.
func (c SessionConfig) validate(b Backend, goos string) error {
	var errs []error
	if c.Width < 0 || c.Height < 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must not be negative", c.Width, c.Height))
	}
	unsupported := func(option string) {
		errs = append(errs, fmt.Errorf("%s does not support %s", b, option))
	}
	switch b {
	case Firefox:
		if c.NoSandbox {
			unsupported("disabling the sandbox")
		}
		if c.DisableDevShm {
			unsupported("moving shared memory off /dev/shm")
		}
		if c.DisableGPU {
			unsupported("disabling the GPU")
		}
	case Safari:
		if c.Headless {
			unsupported("headless mode")
		}
		if c.NoSandbox {
			unsupported("disabling the sandbox")
		}
		if c.DisableDevShm {
			unsupported("moving shared memory off /dev/shm")
		}
		if c.DisableGPU {
			unsupported("disabling the GPU")
		}
		if c.UserAgent != "" {
			unsupported("a user-agent override")
		}
		if c.SuppressAutomation {
			unsupported("automation suppression")
		}
		if c.BrowserPath != "" {
			unsupported("a browser path")
		}
		if c.Proxy != "" {
			unsupported("a proxy; it takes one from the system settings")
		}
		if c.CaptureConsole {
			unsupported("console capture")
		}
		if len(c.ExtraArgs) > 0 {
			unsupported("browser arguments")
		}
	}
	if b != Safari && c.Safari != (safari.Options{}) {
		unsupported("safari options")
	}
	if c.FrameBuffer {
		if goos != "linux" {
			errs = append(errs, fmt.Errorf("an X frame buffer is not available on %s", goos))
		}
		if c.RemoteURL != "" {
			errs = append(errs, errors.New("a frame buffer cannot be used with a remote WebDriver endpoint"))
		}
	}
	return errors.Join(errs...)
}
