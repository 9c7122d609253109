// Package supervisor starts the backend and frontend as child processes and
// tears them down together on shutdown.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process describes one child to supervise.
type Process struct {
	Name string
	Path string
	Args []string
	Dir  string
	// URL is the endpoint announced when the child starts.
	URL string
}

type child struct {
	spec Process
	cmd  *exec.Cmd
	// done is closed once Wait on the child returns.
	done chan struct{}
}

// pid returns the recorded process identifier, or 0 when the child never
// launched.
func (c *child) pid() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Supervisor owns the child processes. PIDs are recorded once at launch and
// never mutated afterwards, so the shutdown path can read them without
// locking.
type Supervisor struct {
	log      *slog.Logger
	grace    time.Duration
	children []*child
	shutdown sync.Once
}

// New creates a supervisor for the given processes. grace bounds how long
// Shutdown waits after SIGTERM before escalating to SIGKILL.
func New(log *slog.Logger, grace time.Duration, procs ...Process) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if grace <= 0 {
		grace = 5 * time.Second
	}

	children := make([]*child, 0, len(procs))
	for _, p := range procs {
		children = append(children, &child{spec: p, done: make(chan struct{})})
	}

	return &Supervisor{log: log, grace: grace, children: children}
}

// Start launches every child in the background and records its PID. A child
// that fails to launch is reported in the joined error but does not stop the
// remaining children from starting.
func (s *Supervisor) Start() error {
	var errs []error

	for _, c := range s.children {
		cmd := exec.Command(c.spec.Path, c.spec.Args...)
		cmd.Dir = c.spec.Dir

		if err := cmd.Start(); err != nil {
			errs = append(errs, fmt.Errorf("start %s: %w", c.spec.Name, err))
			close(c.done)
			continue
		}
		c.cmd = cmd

		go func(c *child) {
			_ = c.cmd.Wait()
			close(c.done)
		}(c)

		if c.spec.URL != "" {
			s.log.Info(fmt.Sprintf("%s running", c.spec.Name),
				slog.Int("pid", c.pid()),
				slog.String("url", c.spec.URL),
			)
		} else {
			s.log.Info(fmt.Sprintf("%s running", c.spec.Name), slog.Int("pid", c.pid()))
		}
	}

	return errors.Join(errs...)
}

// Wait blocks until every child has exited. A child crashing on its own does
// not terminate the others; its wait simply returns.
func (s *Supervisor) Wait() {
	for _, c := range s.children {
		<-c.done
	}
}

// Pids returns the recorded process identifiers; 0 marks a child that never
// launched.
func (s *Supervisor) Pids() []int {
	pids := make([]int, 0, len(s.children))
	for _, c := range s.children {
		pids = append(pids, c.pid())
	}
	return pids
}

// Shutdown sends SIGTERM to every child whose PID was recorded, then
// escalates to SIGKILL for any child still alive after the grace period.
// Children that never launched are skipped. Safe to call more than once.
func (s *Supervisor) Shutdown() {
	s.shutdown.Do(func() {
		for _, c := range s.children {
			if c.pid() == 0 {
				continue
			}
			s.log.Info(fmt.Sprintf("terminating %s", c.spec.Name), slog.Int("pid", c.pid()))
			if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
				s.log.Warn("signal child", slog.String("name", c.spec.Name), slog.Any("err", err))
			}
		}

		deadline := time.After(s.grace)
		for _, c := range s.children {
			if c.pid() == 0 {
				continue
			}
			select {
			case <-c.done:
			case <-deadline:
				s.log.Warn(fmt.Sprintf("killing %s after grace period", c.spec.Name),
					slog.Int("pid", c.pid()),
				)
				_ = c.cmd.Process.Kill()
			}
		}
	})
}
