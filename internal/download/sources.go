package download

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/blang/semver"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"google.golang.org/api/option"
)

const (
	// DefaultChromeForTestingURL serves the LATEST_RELEASE_* version files.
	DefaultChromeForTestingURL = "https://googlechromelabs.github.io/chrome-for-testing"
	// chromeForTestingBucket holds the Chrome for Testing archives.
	chromeForTestingBucket = "chrome-for-testing-public"

	// DefaultEdgeDriverURL serves LATEST_STABLE and the driver archives.
	DefaultEdgeDriverURL = "https://msedgedriver.microsoft.com"

	geckoDriverOwner = "mozilla"
	geckoDriverRepo  = "geckodriver"
)

// chromeBinaries are tried in order to learn the installed Chrome version.
var chromeBinaries = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"}

func (r *Resolver) chromeVersion(ctx context.Context) (semver.Version, error) {
	for _, name := range chromeBinaries {
		p, err := lookPath(name)
		if err != nil {
			continue
		}
		out, err := runCommand(ctx, p, "--version")
		if err != nil {
			continue
		}
		return ParseVersion(string(out))
	}
	return semver.Version{}, fmt.Errorf("none of %s found", strings.Join(chromeBinaries, ", "))
}

// chromePlatform is the Chrome for Testing platform name.
func chromePlatform(goos, goarch string) (string, error) {
	switch goos + "/" + goarch {
	case "linux/amd64":
		return "linux64", nil
	case "darwin/amd64":
		return "mac-x64", nil
	case "darwin/arm64":
		return "mac-arm64", nil
	case "windows/amd64":
		return "win64", nil
	case "windows/386":
		return "win32", nil
	}
	return "", fmt.Errorf("no chromedriver build for %s/%s", goos, goarch)
}

func (r *Resolver) getText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return decodeText(data)
}

// decodeText decodes a version file. The Edge endpoints answer in UTF-16
// with a byte order mark; the others in UTF-8.
func decodeText(data []byte) (string, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *Resolver) chromeDriverFile(ctx context.Context) (string, File, error) {
	goos, goarch := r.platform()
	platform, err := chromePlatform(goos, goarch)
	if err != nil {
		return "", File{}, err
	}

	base := r.ChromeForTestingURL
	if base == "" {
		base = DefaultChromeForTestingURL
	}
	latest := base + "/LATEST_RELEASE_STABLE"
	if v, err := r.chromeVersion(ctx); err == nil {
		latest = fmt.Sprintf("%s/LATEST_RELEASE_%d", base, v.Major)
	}
	text, err := r.getText(ctx, latest)
	if err != nil {
		return "", File{}, err
	}
	version, err := FullVersion(text)
	if err != nil {
		return "", File{}, err
	}

	client, err := storage.NewClient(ctx, option.WithHTTPClient(r.httpClient()))
	if err != nil {
		return "", File{}, fmt.Errorf("cannot create a storage client for downloading chromedriver: %v", err)
	}
	defer client.Close()

	name := "chromedriver-" + platform + ".zip"
	object := path.Join(version, platform, name)
	attrs, err := client.Bucket(chromeForTestingBucket).Object(object).Attrs(ctx)
	if err != nil {
		return "", File{}, fmt.Errorf("cannot get the chromedriver package gs://%s/%s attrs: %v", chromeForTestingBucket, object, err)
	}
	return version, File{
		URL:      attrs.MediaLink,
		Name:     name,
		Hash:     hex.EncodeToString(attrs.MD5),
		HashType: "md5",
	}, nil
}

// edgePlatform is the suffix of the msedgedriver archive name.
func edgePlatform(goos, goarch string) (string, error) {
	switch goos + "/" + goarch {
	case "linux/amd64":
		return "linux64", nil
	case "darwin/amd64":
		return "mac64", nil
	case "darwin/arm64":
		return "mac64_m1", nil
	case "windows/amd64":
		return "win64", nil
	case "windows/386":
		return "win32", nil
	case "windows/arm64":
		return "arm64", nil
	}
	return "", fmt.Errorf("no msedgedriver build for %s/%s", goos, goarch)
}

func (r *Resolver) edgeDriverFile(ctx context.Context) (string, File, error) {
	goos, goarch := r.platform()
	platform, err := edgePlatform(goos, goarch)
	if err != nil {
		return "", File{}, err
	}
	base := r.EdgeDriverURL
	if base == "" {
		base = DefaultEdgeDriverURL
	}
	text, err := r.getText(ctx, base+"/LATEST_STABLE")
	if err != nil {
		return "", File{}, err
	}
	version, err := FullVersion(text)
	if err != nil {
		return "", File{}, err
	}
	name := "edgedriver_" + platform + ".zip"
	return version, File{URL: base + "/" + version + "/" + name, Name: name}, nil
}

// geckoAssetPattern matches the release asset for a platform.
func geckoAssetPattern(goos, goarch string) (*regexp.Regexp, error) {
	var suffix string
	switch goos + "/" + goarch {
	case "linux/amd64":
		suffix = `linux64\.tar\.gz`
	case "linux/arm64":
		suffix = `linux-aarch64\.tar\.gz`
	case "darwin/amd64":
		suffix = `macos\.tar\.gz`
	case "darwin/arm64":
		suffix = `macos-aarch64\.tar\.gz`
	case "windows/amd64":
		suffix = `win64\.zip`
	case "windows/386":
		suffix = `win32\.zip`
	default:
		return nil, fmt.Errorf("no geckodriver build for %s/%s", goos, goarch)
	}
	return regexp.Compile(`^geckodriver-v[\d.]+-` + suffix + `$`)
}

func (r *Resolver) geckoDriverFile(ctx context.Context) (string, File, error) {
	goos, goarch := r.platform()
	assetNameRE, err := geckoAssetPattern(goos, goarch)
	if err != nil {
		return "", File{}, err
	}
	rel, _, err := r.github().Repositories.GetLatestRelease(ctx, geckoDriverOwner, geckoDriverRepo)
	if err != nil {
		return "", File{}, err
	}
	v, err := ParseVersion(rel.GetTagName())
	if err != nil {
		return "", File{}, err
	}
	for _, a := range rel.Assets {
		if !assetNameRE.MatchString(a.GetName()) {
			continue
		}
		u := a.GetBrowserDownloadURL()
		if u == "" {
			return "", File{}, fmt.Errorf("%s does not have a download URL", a.GetName())
		}
		return v.String(), File{URL: u, Name: a.GetName()}, nil
	}
	return "", File{}, fmt.Errorf("release %s has no asset matching %s at https://github.com/%s/%s/releases", rel.GetTagName(), assetNameRE, geckoDriverOwner, geckoDriverRepo)
}
