package plannertest

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/wanmail/plannerqa"
)

// countingRunner stands in for *testing.M.
type countingRunner struct {
	runs int
	code int
}

func (r *countingRunner) Run() int {
	r.runs++
	return r.code
}

func TestMainAbortsBeforeTests(t *testing.T) {
	missing := plannerqa.ChromeConfig()
	missing.DriverPath = filepath.Join(t.TempDir(), "chromedriver")

	type abortCase struct {
		desc    string
		backend plannerqa.Backend
		cfg     plannerqa.SessionConfig
		want    string
	}
	tests := []abortCase{
		{"missing driver", plannerqa.Chrome, missing, "chromedriver"},
	}
	if runtime.GOOS != "darwin" {
		tests = append(tests, abortCase{"safari off macOS", plannerqa.Safari, plannerqa.SafariConfig(), "safaridriver"})
	}

	for _, tc := range tests {
		for _, shared := range []bool{true, false} {
			c := &Config{
				Backend:     tc.backend,
				Session:     tc.cfg,
				Provisioner: plannerqa.NewProvisioner(plannerqa.WithResolver(nil)),
			}
			m := &countingRunner{}
			var out bytes.Buffer
			if code := Main(m, c, shared, &out); code != 1 {
				t.Errorf("%s, shared=%t: Main() = %d, want 1", tc.desc, shared, code)
			}
			if m.runs != 0 {
				t.Errorf("%s, shared=%t: tests ran %d times after provisioning failed", tc.desc, shared, m.runs)
			}
			if !strings.Contains(out.String(), tc.want) {
				t.Errorf("%s, shared=%t: Main() reported %q, want it to mention %q", tc.desc, shared, out.String(), tc.want)
			}
			if c.Run != nil {
				t.Errorf("%s, shared=%t: a failed run scope was left on the config", tc.desc, shared)
			}
		}
	}
}

func TestMainRunsTests(t *testing.T) {
	driver := filepath.Join(t.TempDir(), "chromedriver")
	if err := os.WriteFile(driver, nil, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := plannerqa.ChromeConfig()
	cfg.DriverPath = driver
	c := &Config{
		Backend:     plannerqa.Chrome,
		Session:     cfg,
		Provisioner: plannerqa.NewProvisioner(plannerqa.WithResolver(nil)),
	}
	m := &countingRunner{code: 3}
	var out bytes.Buffer
	if code := Main(m, c, false, &out); code != 3 {
		t.Errorf("Main() = %d, want the tests' exit code 3", code)
	}
	if m.runs != 1 {
		t.Errorf("tests ran %d times, want 1", m.runs)
	}
	if out.Len() != 0 {
		t.Errorf("Main() reported %q for a usable host", out.String())
	}
}
