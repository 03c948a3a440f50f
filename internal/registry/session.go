package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/pkg/sshutil"
)

// lockedSession serializes commands on one session. After Close, queued
// and future commands fail with sshutil.ErrSessionClosed.
type lockedSession struct {
	host  string
	inner sshutil.Session
	sem   chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newLockedSession(host string, inner sshutil.Session) *lockedSession {
	return &lockedSession{
		host:  host,
		inner: inner,
		sem:   make(chan struct{}, 1),
	}
}

func (s *lockedSession) Run(ctx context.Context, cmd string) (string, error) {
	if s.closed.Load() {
		return "", sshutil.ErrSessionClosed
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return "", errors.WrapWithCode(ctx.Err(), errors.ErrTransport,
			fmt.Sprintf("Timed out waiting for another command on %s", s.host), "")
	}
	defer func() { <-s.sem }()

	if s.closed.Load() {
		return "", sshutil.ErrSessionClosed
	}
	return s.inner.Run(ctx, cmd)
}

// Close waits for an in-flight command to finish, then closes the
// underlying session once.
func (s *lockedSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.sem <- struct{}{}
		s.closeErr = s.inner.Close()
		<-s.sem
	})
	return s.closeErr
}
