// Binary plannerqa prepares machines for the planner's end-to-end tests and
// checks that a browser can log into a planner deployment.
package main

import (
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "plannerqa",
		Short:         "Browser session tooling for the planner's end-to-end tests",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", ".env", "The .env file with the run settings. A missing file is ignored.")
	// glog registers -v, -logtostderr and friends on the standard flag set.
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	root.AddCommand(newDriversCmd(), newCheckCmd())
	return root
}

func main() {
	defer glog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
}
