// Package system performs host-level actions: delayed reboot and factory reset.
package system

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/kvstore"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Runner executes a command to completion.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

// rebootCommandTimeout bounds the reboot command itself.
const rebootCommandTimeout = 30 * time.Second

// Rebooter restarts the host after a grace period.
//
// Only the first Reboot call takes effect; later calls are logged and
// ignored. Hooks registered with BeforeReboot run in order just before the
// command, e.g. to publish an offline status and close storage.
type Rebooter struct {
	command []string
	delay   time.Duration
	run     Runner
	logger  Logger

	mu      sync.Mutex
	pending bool
	reason  string
	hooks   []func()
	done    chan error
}

// NewRebooter creates a Rebooter that runs command after delay.
// A nil run uses ExecRunner.
func NewRebooter(command []string, delay time.Duration, run Runner) *Rebooter {
	if run == nil {
		run = ExecRunner
	}
	return &Rebooter{
		command: command,
		delay:   delay,
		run:     run,
		logger:  noopLogger{},
		done:    make(chan error, 1),
	}
}

// SetLogger sets the logger for the rebooter.
func (r *Rebooter) SetLogger(l Logger) {
	r.logger = l
}

// BeforeReboot registers a hook run just before the reboot command.
func (r *Rebooter) BeforeReboot(hook func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Reboot schedules a reboot and returns immediately.
func (r *Rebooter) Reboot(reason string) {
	if err := r.schedule(reason); err != nil {
		r.logger.Warn("reboot request ignored", "reason", reason, "error", err)
	}
}

// Pending reports whether a reboot is scheduled, and why.
func (r *Rebooter) Pending() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending, r.reason
}

// Done receives the reboot command's result once it has run.
func (r *Rebooter) Done() <-chan error {
	return r.done
}

func (r *Rebooter) schedule(reason string) error {
	if len(r.command) == 0 {
		return ErrNoRebootCommand
	}

	r.mu.Lock()
	if r.pending {
		r.mu.Unlock()
		return ErrRebootPending
	}
	r.pending = true
	r.reason = reason
	r.mu.Unlock()

	r.logger.Warn("reboot scheduled", "reason", reason, "delay", r.delay.String())
	time.AfterFunc(r.delay, r.execute)
	return nil
}

func (r *Rebooter) execute() {
	r.mu.Lock()
	hooks := make([]func(), len(r.hooks))
	copy(hooks, r.hooks)
	reason := r.reason
	r.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	ctx, cancel := context.WithTimeout(context.Background(), rebootCommandTimeout)
	defer cancel()

	r.logger.Info("rebooting", "reason", reason)
	err := r.run(ctx, r.command[0], r.command[1:]...)
	if err != nil {
		r.logger.Error("reboot command failed", "error", err)
	}
	r.done <- err
}

// FactoryReset erases all persisted settings (mode, interval, credentials)
// and schedules a reboot into first-boot defaults.
func FactoryReset(ctx context.Context, store kvstore.Store, r interface{ Reboot(reason string) }) error {
	if err := store.Erase(ctx); err != nil {
		return fmt.Errorf("erasing storage: %w", err)
	}
	r.Reboot("factory reset")
	return nil
}
