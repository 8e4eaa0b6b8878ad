package plannerqa

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/xgbutil"
	"github.com/google/go-cmp/cmp"
)

// fakeExecCommand runs TestHelperProcess in place of the named binary.
func fakeExecCommand(command string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", command}, args...)
	cmd := exec.Command(os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

func useFakeExec(t *testing.T) {
	t.Helper()
	newExecCommand = fakeExecCommand
	t.Cleanup(func() { newExecCommand = exec.Command })
}

// TestHelperProcess impersonates Xvfb, xauth and the WebDriver binaries. A
// driver named "crashdriver" exits at once and one named "hangdriver" never
// answers /status.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "no command")
		os.Exit(2)
	}

	switch filepath.Base(args[0]) {
	case "Xvfb":
		f := os.NewFile(3, "displayfd")
		fmt.Fprintln(f, "1")
		f.Close()
		time.Sleep(time.Hour)
	case "xauth":
	case "crashdriver":
		os.Exit(3)
	case "hangdriver":
		time.Sleep(time.Hour)
	default:
		serveFakeDriver(args[1:])
	}
	os.Exit(0)
}

func serveFakeDriver(args []string) {
	var port string
	for i, a := range args {
		if strings.HasPrefix(a, "--port=") {
			port = strings.TrimPrefix(a, "--port=")
		}
		if a == "--port" && i+1 < len(args) {
			port = args[i+1]
		}
	}
	done := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":{"ready":true,"message":""}}`)
	})
	mux.HandleFunc("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Shutting down")
		close(done)
	})
	go func() {
		if err := http.ListenAndServe("localhost:"+port, mux); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}()
	<-done
	time.Sleep(100 * time.Millisecond)
}

func TestIsDisplay(t *testing.T) {
	tests := []struct {
		desc  string
		in    string
		valid bool
	}{
		{
			desc:  "valid with just display",
			in:    "2",
			valid: true,
		},
		{
			desc:  "valid with display and screen",
			in:    "2.5",
			valid: true,
		},
		{
			desc:  "invalid with non-numeric display",
			in:    "a",
			valid: false,
		},
		{
			desc:  "invalid with display and non-numeric screen",
			in:    "2.b",
			valid: false,
		},
		{
			desc:  "invalid with blank display and blank screen",
			in:    ".",
			valid: false,
		},
		{
			desc:  "blank string is invalid",
			in:    "",
			valid: false,
		},
		{
			desc:  "malformed input",
			in:    "2.5.7",
			valid: false,
		},
	}

	for _, test := range tests {
		if got, want := isDisplay(test.in), test.valid; got != want {
			t.Errorf("%s: isDisplay = %t, want %t", test.desc, got, want)
		}
	}
}

func TestFrameBufferCommand(t *testing.T) {
	useFakeExec(t)

	t.Run("Default behavior", func(t *testing.T) {
		fb, err := NewFrameBuffer(FrameBufferOptions{})
		if err != nil {
			t.Fatalf("NewFrameBuffer() returned error: %v", err)
		}
		defer fb.Stop()
		if fb.Display != "1" {
			t.Errorf("fb.Display = %s, want %s", fb.Display, "1")
		}
		want := []string{"Xvfb", "-displayfd", "3", "-nolisten", "tcp"}
		if diff := cmp.Diff(want, fb.cmd.Args[3:]); diff != "" {
			t.Errorf("Xvfb args returned diff (-want/+got):\n%s", diff)
		}
	})
	t.Run("With screen size", func(t *testing.T) {
		fb, err := NewFrameBuffer(FrameBufferOptions{ScreenSize: "1024x768x24"})
		if err != nil {
			t.Fatalf("NewFrameBuffer() returned error: %v", err)
		}
		defer fb.Stop()
		want := []string{"Xvfb", "-displayfd", "3", "-nolisten", "tcp", "-screen", "0", "1024x768x24"}
		if diff := cmp.Diff(want, fb.cmd.Args[3:]); diff != "" {
			t.Errorf("Xvfb args returned diff (-want/+got):\n%s", diff)
		}
	})
	t.Run("With bad screen size", func(t *testing.T) {
		if _, err := NewFrameBuffer(FrameBufferOptions{ScreenSize: "not a screen size"}); err == nil {
			t.Fatal("NewFrameBuffer() returned nil error, want an error about the screen size")
		}
	})
	t.Run("Stop twice", func(t *testing.T) {
		fb, err := NewFrameBuffer(FrameBufferOptions{})
		if err != nil {
			t.Fatalf("NewFrameBuffer() returned error: %v", err)
		}
		if err := fb.Stop(); err != nil {
			t.Fatalf("first Stop() returned error: %v", err)
		}
		if err := fb.Stop(); err != nil {
			t.Fatalf("second Stop() returned error: %v", err)
		}
		if _, err := os.Stat(fb.AuthPath); !os.IsNotExist(err) {
			t.Errorf("auth file %q still exists after Stop", fb.AuthPath)
		}
	})
}

// TestFrameBufferDisplay talks to a real Xvfb.
func TestFrameBufferDisplay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Xvfb test in short mode")
	}
	if _, err := exec.LookPath("Xvfb"); err != nil {
		t.Skip("Xvfb is not installed")
	}
	if _, err := exec.LookPath("xauth"); err != nil {
		t.Skip("xauth is not installed")
	}

	fb, err := NewFrameBuffer(FrameBufferOptions{ScreenSize: "1024x768x24"})
	if err != nil {
		t.Fatalf("NewFrameBuffer() returned error: %v", err)
	}
	defer fb.Stop()
	t.Setenv("XAUTHORITY", fb.AuthPath)

	d, err := xgbutil.NewConnDisplay(":" + fb.Display)
	if err != nil {
		t.Fatalf("could not connect to display %q: %v", fb.Display, err)
	}
	// Closing the connection right before the server races with Xvfb's exit.
	defer time.Sleep(time.Second)
	defer d.Conn().Close()
	s := d.Screen()
	if diff := cmp.Diff(1024, int(s.WidthInPixels)); diff != "" {
		t.Errorf("screen width returned diff (-want/+got):\n%s", diff)
	}
	if diff := cmp.Diff(768, int(s.HeightInPixels)); diff != "" {
		t.Errorf("screen height returned diff (-want/+got):\n%s", diff)
	}
}

func TestNewDriverService(t *testing.T) {
	useFakeExec(t)

	for _, tc := range []struct {
		backend Backend
		binary  string
		args    func(port int) []string
	}{
		{Chrome, "chromedriver", func(p int) []string { return []string{"chromedriver", "--port=" + strconv.Itoa(p)} }},
		{Edge, "msedgedriver", func(p int) []string { return []string{"msedgedriver", "--port=" + strconv.Itoa(p)} }},
		{Firefox, "geckodriver", func(p int) []string { return []string{"geckodriver", "--port", strconv.Itoa(p)} }},
		{Safari, "safaridriver", func(p int) []string { return []string{"safaridriver", "--port", strconv.Itoa(p)} }},
	} {
		t.Run(tc.backend.String(), func(t *testing.T) {
			port, err := pickUnusedPort()
			if err != nil {
				t.Fatalf("pickUnusedPort() returned error: %v", err)
			}
			s, err := NewDriverService(tc.backend, tc.binary, port)
			if err != nil {
				t.Fatalf("NewDriverService(%v) returned error: %v", tc.backend, err)
			}
			if diff := cmp.Diff(tc.args(port), s.cmd.Args[3:]); diff != "" {
				t.Errorf("driver args returned diff (-want/+got):\n%s", diff)
			}
			if got, want := s.URL(), fmt.Sprintf("http://localhost:%d", port); got != want {
				t.Errorf("URL() = %q, want %q", got, want)
			}
			if err := s.Stop(); err != nil {
				t.Fatalf("Stop() returned error: %v", err)
			}
			if err := s.Stop(); err != nil {
				t.Fatalf("second Stop() returned error: %v", err)
			}
			select {
			case <-s.exited:
			default:
				t.Error("driver process still running after Stop")
			}
		})
	}
}

func TestNewDriverServiceFailures(t *testing.T) {
	useFakeExec(t)

	t.Run("Driver exits", func(t *testing.T) {
		port, err := pickUnusedPort()
		if err != nil {
			t.Fatalf("pickUnusedPort() returned error: %v", err)
		}
		_, err = NewDriverService(Chrome, "crashdriver", port)
		if err == nil || !strings.Contains(err.Error(), "exited before it was ready") {
			t.Fatalf("NewDriverService() returned error %v, want an early exit error", err)
		}
	})
	t.Run("Driver never ready", func(t *testing.T) {
		port, err := pickUnusedPort()
		if err != nil {
			t.Fatalf("pickUnusedPort() returned error: %v", err)
		}
		start := time.Now()
		_, err = NewDriverService(Firefox, "hangdriver", port, StartTimeout(time.Second))
		if err == nil || !strings.Contains(err.Error(), "did not respond") {
			t.Fatalf("NewDriverService() returned error %v, want a start timeout", err)
		}
		if elapsed := time.Since(start); elapsed > 10*time.Second {
			t.Errorf("NewDriverService() took %v to give up, want about 1s", elapsed)
		}
	})
	t.Run("Bad start timeout", func(t *testing.T) {
		if _, err := NewDriverService(Chrome, "chromedriver", 4444, StartTimeout(0)); err == nil {
			t.Fatal("NewDriverService() with StartTimeout(0) returned nil error")
		}
	})
	t.Run("Display twice", func(t *testing.T) {
		_, err := NewDriverService(Chrome, "chromedriver", 4444, Display("1", ""), Display("2", ""))
		if err == nil {
			t.Fatal("NewDriverService() with two displays returned nil error")
		}
	})
}

func TestServiceEnvironment(t *testing.T) {
	cmd := exec.Command("chromedriver")
	s, err := newService(cmd, 4444, Display("7", "/tmp/xauth"))
	if err != nil {
		t.Fatalf("newService() returned error: %v", err)
	}
	env := s.cmd.Env
	for _, want := range []string{"DISPLAY=:7", "XAUTHORITY=/tmp/xauth"} {
		found := false
		for _, kv := range env {
			if kv == want {
				found = true
			}
		}
		if !found {
			t.Errorf("driver environment lacks %q", want)
		}
	}
}

func TestNewDriverServiceVerbose(t *testing.T) {
	useFakeExec(t)

	for _, tc := range []struct {
		backend Backend
		binary  string
		args    func(port int) []string
	}{
		{Chrome, "chromedriver", func(p int) []string { return []string{"chromedriver", "--port=" + strconv.Itoa(p), "--verbose"} }},
		{Edge, "msedgedriver", func(p int) []string { return []string{"msedgedriver", "--port=" + strconv.Itoa(p), "--verbose"} }},
		{Firefox, "geckodriver", func(p int) []string { return []string{"geckodriver", "--port", strconv.Itoa(p)} }},
		{Safari, "safaridriver", func(p int) []string { return []string{"safaridriver", "--port", strconv.Itoa(p), "--diagnose"} }},
	} {
		t.Run(tc.backend.String(), func(t *testing.T) {
			port, err := pickUnusedPort()
			if err != nil {
				t.Fatalf("pickUnusedPort() returned error: %v", err)
			}
			s, err := NewDriverService(tc.backend, tc.binary, port, Verbose())
			if err != nil {
				t.Fatalf("NewDriverService(%v) returned error: %v", tc.backend, err)
			}
			defer s.Stop()
			if diff := cmp.Diff(tc.args(port), s.cmd.Args[3:]); diff != "" {
				t.Errorf("driver args returned diff (-want/+got):\n%s", diff)
			}
		})
	}
}
