package plannerqa

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultStartTimeout bounds how long a driver may take to answer /status.
const DefaultStartTimeout = 30 * time.Second

const statusPollInterval = 250 * time.Millisecond

// newExecCommand is replaced in tests.
var newExecCommand = exec.Command

// ServiceOption configures a Service instance.
type ServiceOption func(*Service) error

// Display specifies the value to which set the DISPLAY environment variable,
// as well as the path to the Xauthority file containing credentials needed to
// write to that X server.
func Display(d, xauthPath string) ServiceOption {
	return func(s *Service) error {
		if s.display != "" {
			return fmt.Errorf("service display already set: %v", s.display)
		}
		if s.xauthPath != "" {
			return fmt.Errorf("service xauth path already set: %v", s.xauthPath)
		}
		if !isDisplay(d) {
			return fmt.Errorf("supplied display %q must be of the format 'x' or 'x.y' where x and y are integers", d)
		}
		s.display = d
		s.xauthPath = xauthPath
		return nil
	}
}

// isDisplay validates that the given disp is in the format "x" or "x.y", where
// x and y are both integers.
func isDisplay(disp string) bool {
	ds := strings.Split(disp, ".")
	if len(ds) > 2 {
		return false
	}
	for _, d := range ds {
		if _, err := strconv.Atoi(d); err != nil {
			return false
		}
	}
	return true
}

// FrameBufferOptions describes the options that can be used to create a frame buffer.
type FrameBufferOptions struct {
	// ScreenSize is the option for the frame buffer screen size.
	// This is of the form "{width}x{height}[x{depth}]".  For example: "1024x768x24"
	ScreenSize string
}

// StartFrameBuffer causes an X virtual frame buffer to start before the
// driver. The frame buffer process is terminated when the service itself is
// stopped.
func StartFrameBuffer(options FrameBufferOptions) ServiceOption {
	return func(s *Service) error {
		if s.display != "" {
			return fmt.Errorf("service display already set: %v", s.display)
		}
		if s.xvfb != nil {
			return errors.New("service Xvfb instance already running")
		}
		fb, err := NewFrameBuffer(options)
		if err != nil {
			return fmt.Errorf("error starting frame buffer: %v", err)
		}
		s.xvfb = fb
		return Display(fb.Display, fb.AuthPath)(s)
	}
}

// Output specifies that the driver should log to the provided writer.
func Output(w io.Writer) ServiceOption {
	return func(s *Service) error {
		s.output = w
		return nil
	}
}

// Verbose turns on the driver's most detailed logging. geckodriver takes its
// log level from the session capabilities instead.
func Verbose() ServiceOption {
	return func(s *Service) error {
		s.verbose = true
		return nil
	}
}

// StartTimeout bounds how long NewDriverService waits for the driver to come
// up.
func StartTimeout(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d <= 0 {
			return fmt.Errorf("start timeout must be positive, got %v", d)
		}
		s.startTimeout = d
		return nil
	}
}

// Service controls a locally-running WebDriver subprocess.
type Service struct {
	backend         Backend
	port            int
	addr            string
	cmd             *exec.Cmd
	shutdownURLPath string
	client          *http.Client

	display, xauthPath string
	xvfb               *FrameBuffer

	output       io.Writer
	verbose      bool
	startTimeout time.Duration

	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

// NewDriverService starts the driver binary at path for backend b, listening
// on port, and waits until it reports ready.
func NewDriverService(b Backend, path string, port int, opts ...ServiceOption) (*Service, error) {
	var cmd *exec.Cmd
	switch b {
	case Chrome, Edge:
		cmd = newExecCommand(path, "--port="+strconv.Itoa(port))
	case Firefox, Safari:
		cmd = newExecCommand(path, "--port", strconv.Itoa(port))
	default:
		return nil, fmt.Errorf("no driver service for %v", b)
	}
	s, err := newService(cmd, port, opts...)
	if err != nil {
		return nil, err
	}
	s.backend = b
	if b == Chrome || b == Edge {
		s.shutdownURLPath = "/shutdown"
	}
	if s.verbose {
		switch b {
		case Chrome, Edge:
			s.cmd.Args = append(s.cmd.Args, "--verbose")
		case Safari:
			s.cmd.Args = append(s.cmd.Args, "--diagnose")
		}
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

func newService(cmd *exec.Cmd, port int, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		port:         port,
		addr:         fmt.Sprintf("http://localhost:%d", port),
		client:       &http.Client{Transport: &http.Transport{}, Timeout: 5 * time.Second},
		startTimeout: DefaultStartTimeout,
		exited:       make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			if s.xvfb != nil {
				s.xvfb.Stop()
			}
			return nil, err
		}
	}
	cmd.Stderr = s.output
	cmd.Stdout = s.output
	cmd.Env = append(os.Environ(), cmd.Env...)
	if s.display != "" {
		cmd.Env = append(cmd.Env, "DISPLAY=:"+s.display)
	}
	if s.xauthPath != "" {
		cmd.Env = append(cmd.Env, "XAUTHORITY="+s.xauthPath)
	}
	s.cmd = cmd
	return s, nil
}

// URL is the WebDriver endpoint of the service.
func (s *Service) URL() string { return s.addr }

// FrameBuffer returns the FrameBuffer if one was started by the service and nil otherwise.
func (s *Service) FrameBuffer() *FrameBuffer { return s.xvfb }

func (s *Service) start() error {
	if err := s.cmd.Start(); err != nil {
		s.stopFrameBuffer()
		return err
	}
	glog.V(1).Infof("started %s (pid %d) on port %d", s.cmd.Path, s.cmd.Process.Pid, s.port)
	go func() {
		s.waitErr = s.cmd.Wait()
		close(s.exited)
	}()

	deadline := time.NewTimer(s.startTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(statusPollInterval)
	defer tick.Stop()
	for {
		if s.ready() {
			return nil
		}
		select {
		case <-s.exited:
			s.stopFrameBuffer()
			return fmt.Errorf("%s exited before it was ready: %v", s.cmd.Path, s.waitErr)
		case <-deadline.C:
			s.Stop()
			return fmt.Errorf("driver did not respond on port %d within %v", s.port, s.startTimeout)
		case <-tick.C:
		}
	}
}

func (s *Service) ready() bool {
	resp, err := s.client.Get(s.addr + "/status")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Stop shuts down the driver, and the X virtual frame buffer if one was
// started. Calls after the first return the first call's result.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() { s.stopErr = s.stop() })
	return s.stopErr
}

func (s *Service) stop() error {
	defer s.client.CloseIdleConnections()
	defer s.stopFrameBuffer()

	if s.shutdownURLPath != "" {
		resp, err := s.client.Get(s.addr + s.shutdownURLPath)
		if err == nil {
			resp.Body.Close()
			select {
			case <-s.exited:
				return nil
			case <-time.After(5 * time.Second):
				glog.Warningf("%s ignored %s, killing it", s.cmd.Path, s.shutdownURLPath)
			}
		}
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-s.exited
	if err := s.waitErr; err != nil && err.Error() != "signal: killed" {
		return err
	}
	return nil
}

func (s *Service) stopFrameBuffer() {
	if s.xvfb == nil {
		return
	}
	if err := s.xvfb.Stop(); err != nil {
		glog.Warningf("stopping Xvfb on display :%s: %v", s.xvfb.Display, err)
	}
}

var screenSizeExpression = regexp.MustCompile(`^\d+x\d+(?:x\d+)?$`)

// FrameBuffer controls an X virtual frame buffer running as a background
// process.
type FrameBuffer struct {
	// Display is the X11 display number that the Xvfb process is hosting
	// (without the preceding colon).
	Display string
	// AuthPath is the path to the X11 authorization file that permits X clients
	// to use the X server. This is typically provided to the client via the
	// XAUTHORITY environment variable.
	AuthPath string

	cmd      *exec.Cmd
	stopOnce sync.Once
	stopErr  error
}

// NewFrameBuffer starts an X virtual frame buffer running in the background.
func NewFrameBuffer(options FrameBufferOptions) (*FrameBuffer, error) {
	arguments := []string{"-displayfd", "3", "-nolisten", "tcp"}
	if options.ScreenSize != "" {
		if !screenSizeExpression.MatchString(options.ScreenSize) {
			return nil, fmt.Errorf("invalid screen size: expected 'WxH[xD]', got %q", options.ScreenSize)
		}
		arguments = append(arguments, "-screen", "0", options.ScreenSize)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	auth, err := os.CreateTemp("", "plannerqa-xvfb")
	if err != nil {
		w.Close()
		return nil, err
	}
	authPath := auth.Name()
	if err := auth.Close(); err != nil {
		w.Close()
		return nil, err
	}

	// Xvfb will print the display on which it is listening to file descriptor 3,
	// for which we provide a pipe.
	xvfb := newExecCommand("Xvfb", arguments...)
	xvfb.ExtraFiles = []*os.File{w}
	xvfb.Env = append(xvfb.Env, "XAUTHORITY="+authPath)
	if err := xvfb.Start(); err != nil {
		w.Close()
		os.Remove(authPath)
		return nil, err
	}
	w.Close()
	fb := &FrameBuffer{AuthPath: authPath, cmd: xvfb}

	type resp struct {
		display string
		err     error
	}
	ch := make(chan resp, 1)
	go func() {
		s, err := bufio.NewReader(r).ReadString('\n')
		ch <- resp{s, err}
	}()

	select {
	case resp := <-ch:
		if resp.err != nil {
			fb.Stop()
			return nil, resp.err
		}
		fb.Display = strings.TrimSpace(resp.display)
		if _, err := strconv.Atoi(fb.Display); err != nil {
			fb.Stop()
			return nil, errors.New("Xvfb did not print the display number")
		}
	case <-time.After(3 * time.Second):
		fb.Stop()
		return nil, errors.New("timeout waiting for Xvfb")
	}

	xauth := newExecCommand("xauth", "generate", ":"+fb.Display, ".", "trusted")
	xauth.Env = append(xauth.Env, "XAUTHORITY="+authPath)
	if out, err := xauth.CombinedOutput(); err != nil {
		fb.Stop()
		return nil, fmt.Errorf("xauth: %v: %s", err, out)
	}
	glog.V(1).Infof("Xvfb listening on display :%s", fb.Display)
	return fb, nil
}

// Stop kills the background frame buffer process and removes the X
// authorization file. It is safe to call more than once.
func (f *FrameBuffer) Stop() error {
	f.stopOnce.Do(func() {
		defer os.Remove(f.AuthPath)
		if err := f.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			f.stopErr = err
			return
		}
		if err := f.cmd.Wait(); err != nil && err.Error() != "signal: killed" {
			f.stopErr = err
		}
	})
	return f.stopErr
}
