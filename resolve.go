package plannerqa

import (
	"context"
	"fmt"
	"os"

	"github.com/wanmail/plannerqa/internal/download"
)

// DriverResolver finds a driver binary for a backend when no explicit path is
// configured or the configured one does not exist.
type DriverResolver interface {
	Resolve(ctx context.Context, b Backend) (string, error)
}

// DownloadResolver resolves drivers from PATH, then from a cache directory,
// and downloads missing ones into the cache.
type DownloadResolver struct {
	r *download.Resolver
}

// NewDownloadResolver returns a DownloadResolver caching into dir. An empty
// dir means the user cache directory.
func NewDownloadResolver(dir string) *DownloadResolver {
	return &DownloadResolver{r: &download.Resolver{Dir: dir}}
}

// Resolve implements DriverResolver.
func (d *DownloadResolver) Resolve(ctx context.Context, b Backend) (string, error) {
	drv, err := downloadDriver(b)
	if err != nil {
		return "", err
	}
	return d.r.Resolve(ctx, drv)
}

func downloadDriver(b Backend) (download.Driver, error) {
	switch b {
	case Chrome:
		return download.ChromeDriver, nil
	case Edge:
		return download.EdgeDriver, nil
	case Firefox:
		return download.GeckoDriver, nil
	case Safari:
		return download.SafariDriver, nil
	}
	return 0, fmt.Errorf("no driver for %v", b)
}

// resolveDriver applies the resolution precedence: an explicit path that
// exists, then the resolver, then failure.
func resolveDriver(ctx context.Context, b Backend, explicit string, r DriverResolver) (string, error) {
	var tried []string
	var lastErr error
	if explicit != "" {
		fi, err := os.Stat(explicit)
		switch {
		case err == nil && !fi.IsDir():
			return explicit, nil
		case err == nil:
			lastErr = fmt.Errorf("%s is a directory", explicit)
		default:
			lastErr = err
		}
		tried = append(tried, "configured path "+explicit)
	}
	if r != nil {
		p, err := r.Resolve(ctx, b)
		if err == nil {
			return p, nil
		}
		lastErr = err
		tried = append(tried, "automatic resolver")
	}
	return "", &DriverResolutionError{Backend: b, Tried: tried, Err: lastErr}
}
