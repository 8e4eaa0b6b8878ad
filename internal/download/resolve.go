package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/blang/semver"
	"github.com/golang/glog"
	"github.com/google/go-github/v58/github"
)

// Driver is a WebDriver binary the Resolver knows how to find.
type Driver int

// The drivers. Safari's cannot be downloaded; it ships with macOS.
const (
	ChromeDriver Driver = iota + 1
	EdgeDriver
	GeckoDriver
	SafariDriver
)

// Drivers lists the drivers that can be downloaded.
var Drivers = []Driver{ChromeDriver, EdgeDriver, GeckoDriver}

// Name is the driver's executable name, without any platform suffix.
func (d Driver) Name() string {
	switch d {
	case ChromeDriver:
		return "chromedriver"
	case EdgeDriver:
		return "msedgedriver"
	case GeckoDriver:
		return "geckodriver"
	case SafariDriver:
		return "safaridriver"
	}
	return fmt.Sprintf("Driver(%d)", int(d))
}

func (d Driver) String() string { return d.Name() }

// SafariDriverPath is the only location safaridriver is looked up at.
const SafariDriverPath = "/usr/bin/safaridriver"

// ErrNoDownload is returned for drivers that cannot be downloaded.
var ErrNoDownload = errors.New("driver cannot be downloaded")

// Replaced in tests.
var (
	lookPath   = exec.LookPath
	runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).Output()
	}
)

// Resolver finds driver binaries: on PATH first, then in its cache
// directory, and finally by downloading them into the cache.
type Resolver struct {
	// Dir is the cache directory. Downloads land in Dir/<driver>/<version>.
	Dir string
	// HTTPClient is used for every download; nil means http.DefaultClient.
	HTTPClient *http.Client
	// GitHub looks up geckodriver releases; nil means a client built on
	// HTTPClient.
	GitHub *github.Client

	// ChromeForTestingURL and EdgeDriverURL override the version endpoints.
	ChromeForTestingURL string
	EdgeDriverURL       string

	// GOOS and GOARCH select the platform build; empty means the host's.
	GOOS, GOARCH string

	// SkipPath disables the PATH lookup, so only cached or downloaded
	// binaries are returned.
	SkipPath bool
}

// DefaultDir is the cache directory used when Resolver.Dir is empty.
func DefaultDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "plannerqa", "drivers")
}

func (r *Resolver) dir() string {
	if r.Dir != "" {
		return r.Dir
	}
	return DefaultDir()
}

func (r *Resolver) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}

func (r *Resolver) github() *github.Client {
	if r.GitHub != nil {
		return r.GitHub
	}
	return github.NewClient(r.httpClient())
}

func (r *Resolver) platform() (goos, goarch string) {
	goos, goarch = r.GOOS, r.GOARCH
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return goos, goarch
}

func (r *Resolver) executable(d Driver) string {
	if goos, _ := r.platform(); goos == "windows" {
		return d.Name() + ".exe"
	}
	return d.Name()
}

// Resolve returns the path of a usable binary for d.
func (r *Resolver) Resolve(ctx context.Context, d Driver) (string, error) {
	if d == SafariDriver {
		if _, err := os.Stat(SafariDriverPath); err != nil {
			return "", fmt.Errorf("%s: %w", d, err)
		}
		return SafariDriverPath, nil
	}
	if !r.SkipPath {
		if p, err := lookPath(r.executable(d)); err == nil {
			glog.V(1).Infof("using %s from PATH: %s", d, p)
			return p, nil
		}
	}

	var want *semver.Version
	if d == ChromeDriver {
		if v, err := r.chromeVersion(ctx); err == nil {
			want = &v
		} else {
			glog.V(1).Infof("cannot detect the Chrome version: %v", err)
		}
	}
	if p, ok := r.cached(d, want); ok {
		glog.V(1).Infof("using cached %s: %s", d, p)
		return p, nil
	}
	return r.Fetch(ctx, d)
}

// cached returns the newest binary for d in the cache directory. When want is
// set only a binary with the same major version qualifies.
func (r *Resolver) cached(d Driver, want *semver.Version) (string, bool) {
	root := filepath.Join(r.dir(), d.Name())
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}
	var best *semver.Version
	var bestPath string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := ParseVersion(e.Name())
		if err != nil {
			continue
		}
		if want != nil && v.Major != want.Major {
			continue
		}
		p := filepath.Join(root, e.Name(), r.executable(d))
		if fi, err := os.Stat(p); err != nil || fi.IsDir() {
			continue
		}
		if best == nil || v.GT(*best) {
			best, bestPath = &v, p
		}
	}
	return bestPath, best != nil
}

// Fetch downloads the current release of d into the cache directory and
// returns the path of the binary. It does not consult PATH.
func (r *Resolver) Fetch(ctx context.Context, d Driver) (string, error) {
	var (
		version string
		file    File
		err     error
	)
	switch d {
	case ChromeDriver:
		version, file, err = r.chromeDriverFile(ctx)
	case EdgeDriver:
		version, file, err = r.edgeDriverFile(ctx)
	case GeckoDriver:
		version, file, err = r.geckoDriverFile(ctx)
	default:
		return "", fmt.Errorf("%s: %w", d, ErrNoDownload)
	}
	if err != nil {
		return "", fmt.Errorf("finding a %s release: %w", d, err)
	}

	dir := filepath.Join(r.dir(), d.Name(), version)
	if err := Download(ctx, r.httpClient(), file, dir); err != nil {
		return "", err
	}
	return r.install(d, dir)
}

// install moves the binary unpacked somewhere under dir to dir itself and
// makes it executable.
func (r *Resolver) install(d Driver, dir string) (string, error) {
	want := filepath.Join(dir, r.executable(d))
	var found string
	err := filepath.WalkDir(dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.IsDir() && e.Name() == r.executable(d) {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no %s in the downloaded archive under %s", r.executable(d), dir)
	}
	if found != want {
		if err := os.Rename(found, want); err != nil {
			return "", err
		}
	}
	if err := os.Chmod(want, 0o755); err != nil {
		return "", err
	}
	glog.Infof("installed %s at %s", d, want)
	return want, nil
}
