package plannertest

import (
	"context"
	"fmt"
	"io"

	"github.com/wanmail/plannerqa"
)

// Runner runs the tests of a package. *testing.M implements it.
type Runner interface {
	Run() int
}

// Main readies c for a run, runs m and returns the exit code for os.Exit.
//
// With shared set, c.Run becomes one session that is provisioned before any
// test starts and lent to every test. Otherwise tests provision their own
// sessions and Main only checks that the host can: the configuration is
// valid, the browser runs here and a driver resolves. Either way, when no
// session could be provisioned Main reports why on w and returns 1 without
// running a single test.
func Main(m Runner, c *Config, shared bool, w io.Writer) int {
	ctx := context.Background()
	if shared {
		c.Run = plannerqa.NewRunScope(c.Provisioner, c.Backend, c.Session)
		_, release, err := c.Run.Acquire(ctx)
		if err != nil {
			c.Run.Close()
			c.Run = nil
			fmt.Fprintf(w, "Exiting early: %v\n", err)
			return 1
		}
		release()
	} else if err := c.Provisioner.Preflight(ctx, c.Backend, c.Session); err != nil {
		fmt.Fprintf(w, "Exiting early: %v\n", err)
		return 1
	}

	code := m.Run()
	if c.Run != nil {
		if err := c.Run.Close(); err != nil {
			fmt.Fprintf(w, "closing the shared %v session: %v\n", c.Backend, err)
			if code == 0 {
				code = 1
			}
		}
	}
	return code
}
