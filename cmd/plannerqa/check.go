package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/wanmail/plannerqa"
	"github.com/wanmail/plannerqa/internal/config"
)

// Replaced in tests.
var newProvisioner = func(cfg *config.Config) *plannerqa.Provisioner {
	return plannerqa.NewProvisioner(plannerqa.WithResolver(plannerqa.NewDownloadResolver(cfg.DriverCache)))
}

func newCheckCmd() *cobra.Command {
	var (
		browser     string
		timeout     time.Duration
		admin       bool
		screenshot  string
		driverLogs  bool
		frameBuffer bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Provision a browser, log into the planner and log out again",
		Long: `Check runs the login bootstrap that every end-to-end test depends on:
it provisions a session for the configured browser, logs in with the test
account and logs out. Settings come from the environment and the .env file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envFile, err := cmd.Flags().GetString("env-file")
			if err != nil {
				return err
			}
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if browser != "" {
				cfg.Browser = browser
			}
			b, err := cfg.Backend()
			if err != nil {
				return err
			}
			sc, err := cfg.SessionConfig(b)
			if err != nil {
				return err
			}
			if frameBuffer {
				sc.Headless = false
				sc.FrameBuffer = true
			}
			if driverLogs {
				sc.DriverOutput = cmd.ErrOrStderr()
				sc.VerboseLogs = true
			}
			creds := cfg.User()
			if admin {
				creds = cfg.Admin()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runCheck(ctx, cmd.OutOrStdout(), newProvisioner(cfg), b, sc, cfg, creds, screenshot)
		},
	}
	cmd.Flags().StringVar(&browser, "browser", "", "The browser to use. Overrides TEST_BROWSER.")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "How long provisioning may take, including any driver download.")
	cmd.Flags().BoolVar(&admin, "admin", false, "If true, log in with the administrator account.")
	cmd.Flags().StringVar(&screenshot, "screenshot", "", "If set, write a screenshot of a failed login to this file.")
	cmd.Flags().BoolVar(&driverLogs, "driver_logs", false, "If true, turn on verbose driver logging and copy it to stderr.")
	cmd.Flags().BoolVar(&frameBuffer, "start_frame_buffer", false, "If true, run the browser headed inside an Xvfb display.")
	return cmd
}

func runCheck(ctx context.Context, out io.Writer, p *plannerqa.Provisioner, b plannerqa.Backend, sc plannerqa.SessionConfig, cfg *config.Config, creds plannerqa.Credentials, screenshot string) (err error) {
	start := time.Now()
	s, err := p.Provision(ctx, b, sc)
	if err != nil {
		var dre *plannerqa.DriverResolutionError
		if errors.As(err, &dre) {
			return fmt.Errorf("%w\nrun `plannerqa drivers` or set the driver path for %s", err, b)
		}
		return err
	}
	defer func() {
		if serr := p.Shutdown(s); serr != nil && err == nil {
			err = serr
		}
	}()
	fmt.Fprintf(out, "provisioned %s in %v\n", b, time.Since(start).Round(time.Millisecond))

	a := plannerqa.NewAuthenticator(cfg.BaseURL)
	waits := cfg.WaitPolicy()
	start = time.Now()
	if _, err := a.LoginAs(s, creds, waits); err != nil {
		var ate *plannerqa.AuthenticationTimeoutError
		if errors.As(err, &ate) && screenshot != "" {
			snap := s.Snapshot()
			if werr := os.WriteFile(screenshot, snap.Screenshot, 0o644); werr != nil {
				glog.Warningf("writing screenshot: %v", werr)
			} else {
				fmt.Fprintf(out, "screenshot of %s written to %s\n", snap.URL, screenshot)
			}
		}
		return err
	}
	fmt.Fprintf(out, "logged in as %s in %v\n", creds.Identifier, time.Since(start).Round(time.Millisecond))

	if err := a.Logout(s, waits); err != nil {
		return err
	}
	fmt.Fprintln(out, "logged out")
	return nil
}
