package plannerqa

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/glog"
)

// DefaultCloseWait bounds how long RunScope.Close waits for a borrower to
// release the session.
const DefaultCloseWait = time.Minute

// RunScope owns at most one Session for a whole test run. The session is
// provisioned on first use and lent to one borrower at a time.
type RunScope struct {
	p       *Provisioner
	backend Backend
	cfg     SessionConfig

	once    sync.Once
	session *Session
	err     error

	// sem holds a token while the session is free.
	sem chan struct{}

	closeWait time.Duration
	closeOnce sync.Once
	closeErr  error
}

// NewRunScope returns a scope that provisions a b session configured by cfg
// when first acquired.
func NewRunScope(p *Provisioner, b Backend, cfg SessionConfig) *RunScope {
	sem := make(chan struct{}, 1)
	sem <- struct{}{}
	return &RunScope{p: p, backend: b, cfg: cfg, sem: sem, closeWait: DefaultCloseWait}
}

// Acquire waits until the session is free and lends it to the caller, who
// must call release when done. The first call provisions the session; if that
// fails every call returns the same error, since no test of the run can
// proceed.
func (r *RunScope) Acquire(ctx context.Context) (s *Session, release func(), err error) {
	select {
	case <-r.sem:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	r.once.Do(func() {
		r.session, r.err = r.p.Provision(ctx, r.backend, r.cfg)
	})
	if r.err != nil {
		r.sem <- struct{}{}
		return nil, nil, r.err
	}
	var released sync.Once
	return r.session, func() { released.Do(func() { r.sem <- struct{}{} }) }, nil
}

// Close shuts the session down if one was provisioned. It waits for a
// borrower to release the session first; if that takes longer than
// DefaultCloseWait the session is left running and Close fails. Later calls
// return the first call's result.
func (r *RunScope) Close() error {
	r.closeOnce.Do(func() {
		// Stop a later Acquire from provisioning.
		r.once.Do(func() { r.err = ErrSessionClosed })

		t := time.NewTimer(r.closeWait)
		defer t.Stop()
		select {
		case <-r.sem:
		case <-t.C:
			glog.Warningf("%s session still borrowed after %v, leaving it running", r.backend, r.closeWait)
			r.closeErr = fmt.Errorf("closing %s session: still borrowed after %v", r.backend, r.closeWait)
			return
		}
		if r.session != nil {
			r.closeErr = r.p.Shutdown(r.session)
			r.session = nil
		}
		r.err = ErrSessionClosed
		r.sem <- struct{}{}
	})
	return r.closeErr
}

// NewTestScope provisions a fresh session for t and shuts it down when t and
// its subtests finish. It fails t if the session cannot be started.
func NewTestScope(t testing.TB, p *Provisioner, b Backend, cfg SessionConfig) *Session {
	t.Helper()
	s, err := p.Provision(context.Background(), b, cfg)
	if err != nil {
		t.Fatalf("provisioning %s session: %v", b, err)
	}
	t.Cleanup(func() {
		if err := p.Shutdown(s); err != nil {
			t.Errorf("shutting down %s session: %v", b, err)
		}
	})
	return s
}
