package plannerqa

import (
	"context"
	"fmt"
	"net"
	"runtime"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"

	"github.com/wanmail/plannerqa/safari"
)

// Replaced in tests.
var (
	newRemote = selenium.NewRemote
	hostOS    = runtime.GOOS
)

// pickUnusedPort returns a free TCP port on localhost for a driver.
var pickUnusedPort = func() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return 0, err
	}
	return port, nil
}

// Provisioner launches configured browser sessions.
type Provisioner struct {
	resolver    DriverResolver
	serviceOpts []ServiceOption
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithResolver sets the resolver consulted when no explicit driver path is
// usable. A nil resolver disables automatic resolution.
func WithResolver(r DriverResolver) ProvisionerOption {
	return func(p *Provisioner) { p.resolver = r }
}

// WithServiceOptions adds options to every driver service started.
func WithServiceOptions(opts ...ServiceOption) ProvisionerOption {
	return func(p *Provisioner) { p.serviceOpts = append(p.serviceOpts, opts...) }
}

// NewProvisioner returns a Provisioner that resolves drivers with a
// DownloadResolver on the user cache directory unless told otherwise.
func NewProvisioner(opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{resolver: NewDownloadResolver("")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision starts a session on backend b configured by cfg. Either every
// option of cfg is in effect on the returned session or Provision fails and
// leaves nothing running.
//
// Errors are *DriverResolutionError when no driver binary is found and
// *LaunchError when the driver or browser cannot be started.
func (p *Provisioner) Provision(ctx context.Context, b Backend, cfg SessionConfig) (*Session, error) {
	if err := checkHost(b, cfg); err != nil {
		return nil, err
	}
	caps, err := newCapabilities(b, cfg)
	if err != nil {
		return nil, &LaunchError{Backend: b, Err: err}
	}

	var svc *Service
	urlPrefix := cfg.RemoteURL
	if urlPrefix == "" {
		svc, err = p.startService(ctx, b, cfg)
		if err != nil {
			return nil, err
		}
		urlPrefix = svc.URL()
	}
	stop := func() {
		if svc == nil {
			return
		}
		if err := svc.Stop(); err != nil {
			glog.Warningf("stopping %s after a failed launch: %v", b.DriverName(), err)
		}
	}

	if err := ctx.Err(); err != nil {
		stop()
		return nil, err
	}
	wd, err := newRemote(caps, urlPrefix)
	if err != nil {
		stop()
		return nil, &LaunchError{Backend: b, Hint: b.launchHint(), Err: fmt.Errorf("opening session at %s: %w", urlPrefix, err)}
	}
	teardown := func(cause error) error {
		if err := wd.Quit(); err != nil {
			glog.Warningf("quitting half-configured %s session: %v", b, err)
		}
		stop()
		return &LaunchError{Backend: b, Hint: b.launchHint(), Err: cause}
	}

	// Safari takes no window size capability.
	if b == Safari && cfg.Width > 0 && cfg.Height > 0 {
		if err := wd.ResizeWindow("", cfg.Width, cfg.Height); err != nil {
			return nil, teardown(fmt.Errorf("resizing window to %dx%d: %w", cfg.Width, cfg.Height, err))
		}
	}
	if err := wd.SetImplicitWaitTimeout(cfg.implicitWait()); err != nil {
		return nil, teardown(fmt.Errorf("setting implicit wait: %w", err))
	}

	glog.Infof("provisioned %s session at %s", b, urlPrefix)
	return newSession(b, wd, svc, cfg), nil
}

func (p *Provisioner) startService(ctx context.Context, b Backend, cfg SessionConfig) (*Service, error) {
	path, err := resolveDriver(ctx, b, cfg.DriverPath, p.resolver)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("using %s at %s", b.DriverName(), path)

	port, err := pickUnusedPort()
	if err != nil {
		return nil, &LaunchError{Backend: b, Err: fmt.Errorf("picking a port: %w", err)}
	}
	var opts []ServiceOption
	if cfg.DriverOutput != nil {
		opts = append(opts, Output(cfg.DriverOutput))
	}
	if cfg.VerboseLogs {
		opts = append(opts, Verbose())
	}
	if cfg.FrameBuffer {
		var fbo FrameBufferOptions
		if cfg.Width > 0 && cfg.Height > 0 {
			fbo.ScreenSize = fmt.Sprintf("%dx%dx24", cfg.Width, cfg.Height)
		}
		opts = append(opts, StartFrameBuffer(fbo))
	}
	opts = append(opts, p.serviceOpts...)

	svc, err := NewDriverService(b, path, port, opts...)
	if err != nil {
		return nil, &LaunchError{Backend: b, Hint: b.launchHint(), Err: err}
	}
	return svc, nil
}

// Preflight reports whether a b session configured by cfg could be
// provisioned on this host, without launching anything. It returns the
// *LaunchError or *DriverResolutionError Provision would fail with for a bad
// configuration, an unsupported host or a missing driver. Resolving may
// download the driver into the resolver's cache.
func (p *Provisioner) Preflight(ctx context.Context, b Backend, cfg SessionConfig) error {
	if err := checkHost(b, cfg); err != nil {
		return err
	}
	if _, err := newCapabilities(b, cfg); err != nil {
		return &LaunchError{Backend: b, Err: err}
	}
	if cfg.RemoteURL != "" {
		return nil
	}
	_, err := resolveDriver(ctx, b, cfg.DriverPath, p.resolver)
	return err
}

// checkHost rejects a configuration b cannot honour and a local Safari
// session off macOS.
func checkHost(b Backend, cfg SessionConfig) error {
	if b == Safari && cfg.RemoteURL == "" && !safari.Supported(hostOS) {
		return &LaunchError{
			Backend: b,
			Hint:    b.launchHint(),
			Err:     fmt.Errorf("safaridriver runs only on %s, this host is %s", safari.Host, hostOS),
		}
	}
	if err := cfg.validate(b, hostOS); err != nil {
		return &LaunchError{Backend: b, Err: fmt.Errorf("invalid configuration: %w", err)}
	}
	return nil
}

// Shutdown closes s. It is idempotent and accepts a nil session, so it can be
// deferred right after a Provision call whatever its outcome.
func (p *Provisioner) Shutdown(s *Session) error {
	if s == nil {
		return nil
	}
	return s.Close()
}
