// Package supervisor launches the agent fleet as child processes, one per
// variant, and keeps crashed children alive with bounded exponential
// backoff. Clean exits are final; everything else restarts.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/config"
)

// Defaults for restart pacing and reporting.
const (
	DefaultBaseRestartDelay = 5 * time.Second
	DefaultMaxRestartDelay  = 5 * time.Minute
	DefaultStatusInterval   = 60 * time.Second
	DefaultGracePeriod      = 2 * time.Second
	DefaultHealthyUptime    = 60 * time.Second
)

// Spec describes one child to supervise. Delay is the offset from
// supervisor start at which the child is first launched.
type Spec struct {
	Name  string
	Path  string
	Args  []string
	Delay time.Duration
}

// Options tunes restart pacing. Zero values take the defaults.
type Options struct {
	BaseRestartDelay time.Duration
	MaxRestartDelay  time.Duration
	StatusInterval   time.Duration
	GracePeriod      time.Duration

	// HealthyUptime is how long a child must run before a crash restarts
	// the backoff ladder from the base delay.
	HealthyUptime time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaseRestartDelay <= 0 {
		o.BaseRestartDelay = DefaultBaseRestartDelay
	}
	if o.MaxRestartDelay <= 0 {
		o.MaxRestartDelay = DefaultMaxRestartDelay
	}
	if o.StatusInterval <= 0 {
		o.StatusInterval = DefaultStatusInterval
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.HealthyUptime <= 0 {
		o.HealthyUptime = DefaultHealthyUptime
	}
	return o
}

// ChildStatus is a point-in-time view of one supervised child.
type ChildStatus struct {
	Name         string
	Running      bool
	PID          int
	Uptime       time.Duration
	Restarts     int
	Status       string
	RestartDelay time.Duration
	LastStart    time.Time
	LastCrash    time.Time
}

type child struct {
	spec Spec

	mu           sync.Mutex
	cmd          *exec.Cmd
	running      bool
	restarts     int
	lastStart    time.Time
	lastCrash    time.Time
	status       string
	restartDelay time.Duration
}

// Supervisor owns the fleet's child processes.
type Supervisor struct {
	opts     Options
	children []*child
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// New builds a supervisor over the given specs.
func New(specs []Spec, opts Options) *Supervisor {
	opts = opts.withDefaults()
	s := &Supervisor{
		opts: opts,
		log:  config.NewLogger("supervisor"),
	}
	for _, spec := range specs {
		s.children = append(s.children, &child{
			spec:         spec,
			status:       "pending",
			restartDelay: opts.BaseRestartDelay,
		})
	}
	return s
}

// FilterByPath narrows specs to the one whose Path matches, with its
// launch delay cleared. Reports whether a match was found.
func FilterByPath(specs []Spec, path string) ([]Spec, bool) {
	for _, spec := range specs {
		if spec.Path == path {
			spec.Delay = 0
			return []Spec{spec}, true
		}
	}
	return nil, false
}

// Run launches every child on its staggered schedule and blocks until the
// context is cancelled, then terminates the fleet and returns.
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Info().Int("children", len(s.children)).Msg("fleet starting")

	for _, c := range s.children {
		s.wg.Add(1)
		go func(c *child) {
			defer s.wg.Done()
			s.runChild(ctx, c)
		}(c)
	}

	ticker := time.NewTicker(s.opts.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info().Msg("fleet stopped")
			return nil
		case <-ticker.C:
			s.printStatus()
		}
	}
}

// Statuses returns a snapshot of every child record.
func (s *Supervisor) Statuses() []ChildStatus {
	out := make([]ChildStatus, 0, len(s.children))
	now := time.Now()
	for _, c := range s.children {
		c.mu.Lock()
		st := ChildStatus{
			Name:         c.spec.Name,
			Running:      c.running,
			Restarts:     c.restarts,
			Status:       c.status,
			RestartDelay: c.restartDelay,
			LastStart:    c.lastStart,
			LastCrash:    c.lastCrash,
		}
		if c.running && c.cmd != nil && c.cmd.Process != nil {
			st.PID = c.cmd.Process.Pid
			st.Uptime = now.Sub(c.lastStart)
		}
		c.mu.Unlock()
		out = append(out, st)
	}
	return out
}

func (s *Supervisor) runChild(ctx context.Context, c *child) {
	if !sleepCtx(ctx, c.spec.Delay) {
		return
	}

	for {
		cmd := exec.Command(c.spec.Path, c.spec.Args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = os.Environ()

		if err := cmd.Start(); err != nil {
			s.log.Error().Err(err).Str("child", c.spec.Name).Msg("launch failed")
			if !s.crashBackoff(ctx, c) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.cmd = cmd
		c.running = true
		c.lastStart = time.Now()
		c.status = "running"
		restarts := c.restarts
		c.mu.Unlock()
		s.log.Info().Str("child", c.spec.Name).Int("pid", cmd.Process.Pid).
			Int("restarts", restarts).Msg("child started")

		waitErr := s.waitOrTerminate(ctx, cmd)

		c.mu.Lock()
		c.running = false
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.mu.Lock()
			c.status = "stopped"
			c.mu.Unlock()
			return
		}

		if waitErr == nil {
			// Clean exit is final.
			c.mu.Lock()
			c.status = "exited"
			c.mu.Unlock()
			s.log.Info().Str("child", c.spec.Name).Msg("child exited cleanly")
			return
		}

		s.log.Warn().Err(waitErr).Str("child", c.spec.Name).Msg("child crashed")

		// A crash after a long healthy run restarts the backoff ladder.
		c.mu.Lock()
		if time.Since(c.lastStart) >= s.opts.HealthyUptime {
			c.restartDelay = s.opts.BaseRestartDelay
		}
		c.mu.Unlock()

		if !s.crashBackoff(ctx, c) {
			return
		}
	}
}

// crashBackoff records a crash, sleeps the current restart delay, then
// doubles it up to the cap. Reports false when the context ended.
func (s *Supervisor) crashBackoff(ctx context.Context, c *child) bool {
	c.mu.Lock()
	c.restarts++
	c.lastCrash = time.Now()
	c.status = "backoff"
	delay := c.restartDelay
	c.restartDelay = nextDelay(c.restartDelay, s.opts.MaxRestartDelay)
	c.mu.Unlock()

	s.log.Info().Str("child", c.spec.Name).Dur("delay", delay).Msg("restart scheduled")
	return sleepCtx(ctx, delay)
}

// waitOrTerminate waits for the process; on context cancellation it sends
// SIGTERM, allows the grace period, then kills.
func (s *Supervisor) waitOrTerminate(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if cmd.Process != nil {
			cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case err := <-done:
			return err
		case <-time.After(s.opts.GracePeriod):
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
			return <-done
		}
	}
}

func (s *Supervisor) printStatus() {
	statuses := s.Statuses()
	running, totalRestarts := 0, 0
	fmt.Printf("%-4s %-20s %-10s %s\n", "RUN", "NAME", "UPTIME", "RESTARTS")
	for _, st := range statuses {
		mark := " "
		if st.Running {
			mark = "*"
			running++
		}
		totalRestarts += st.Restarts
		fmt.Printf("%-4s %-20s %-10s %d\n", mark, st.Name, st.Uptime.Truncate(time.Second), st.Restarts)
	}
	fmt.Printf("fleet: %d/%d running, %d total restarts\n", running, len(statuses), totalRestarts)
}

func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
