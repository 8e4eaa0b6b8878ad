package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wanmail/plannerqa"
	"github.com/wanmail/plannerqa/internal/download"
)

// fetcher downloads one driver. *download.Resolver implements it.
type fetcher interface {
	Fetch(ctx context.Context, d download.Driver) (string, error)
}

// Replaced in tests.
var newFetcher = func(dir string) fetcher {
	return &download.Resolver{Dir: dir}
}

func newDriversCmd() *cobra.Command {
	var (
		dir      string
		browsers []string
	)
	cmd := &cobra.Command{
		Use:   "drivers",
		Short: "Download the current WebDriver binaries into the driver cache",
		Long: `Download chromedriver, msedgedriver and geckodriver into the cache that
test runs resolve drivers from, so that runs need no network access.
Safari's driver ships with macOS and is never downloaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			drivers, err := parseDrivers(browsers)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = download.DefaultDir()
			}
			f := newFetcher(dir)

			var mu sync.Mutex
			paths := make(map[download.Driver]string)
			g, ctx := errgroup.WithContext(cmd.Context())
			for _, d := range drivers {
				d := d
				g.Go(func() error {
					glog.Infof("fetching %s into %s", d, dir)
					p, err := f.Fetch(ctx, d)
					if err != nil {
						return fmt.Errorf("fetching %s: %w", d, err)
					}
					mu.Lock()
					paths[d] = p
					mu.Unlock()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			for _, d := range drivers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d, paths[d])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "The driver cache directory. Defaults to the user cache directory.")
	cmd.Flags().StringSliceVar(&browsers, "browsers", []string{"chrome", "edge", "firefox"}, "The browsers to fetch drivers for.")
	return cmd
}

// parseDrivers maps browser names to the drivers to download.
func parseDrivers(browsers []string) ([]download.Driver, error) {
	var drivers []download.Driver
	seen := make(map[download.Driver]bool)
	for _, name := range browsers {
		b, err := plannerqa.ParseBackend(name)
		if err != nil {
			return nil, err
		}
		if b == plannerqa.Safari {
			glog.Warningf("skipping safari: its driver ships with macOS at %s", download.SafariDriverPath)
			continue
		}
		var found bool
		for _, d := range download.Drivers {
			if d.Name() == b.DriverName() {
				found = true
				if !seen[d] {
					seen[d] = true
					drivers = append(drivers, d)
				}
			}
		}
		if !found {
			return nil, fmt.Errorf("no downloadable driver for %s", b)
		}
	}
	if len(drivers) == 0 {
		return nil, fmt.Errorf("nothing to fetch for browsers %s", strings.Join(browsers, ","))
	}
	return drivers, nil
}
