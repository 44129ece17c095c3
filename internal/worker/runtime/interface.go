// Package runtime runs a job's ordered steps, either as host processes or
// inside one ephemeral Docker container.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Step is one named command of a job.
type Step struct {
	Name    string
	Command string
}

// Spec describes one execution of a job.
type Spec struct {
	// Image selects container mode. Empty means host mode.
	Image string
	Steps []Step
	Env   map[string]string
}

// Sink receives output lines and lifecycle events.
// *broadcast.Broadcaster satisfies it.
type Sink interface {
	Send(msg string)
}

// Runtime executes every step of spec in order and stops at the first failure.
type Runtime interface {
	Run(ctx context.Context, spec Spec, out Sink) error
}

// StepError reports the step that aborted a run.
type StepError struct {
	Step     string
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %q failed with exit code %d", e.Step, e.ExitCode)
}

func (e *StepError) Unwrap() error { return e.Err }

// ErrNoContainerRuntime is returned when a job names an image but no container runtime is configured.
var ErrNoContainerRuntime = errors.New("container runtime not configured")

// Runner dispatches a Spec to the host or container runtime.
type Runner struct {
	Host      Runtime
	Container Runtime
}

// Run implements Runtime.
func (r *Runner) Run(ctx context.Context, spec Spec, out Sink) error {
	if spec.Image == "" {
		return r.Host.Run(ctx, spec, out)
	}
	if r.Container == nil {
		return ErrNoContainerRuntime
	}
	return r.Container.Run(ctx, spec, out)
}

func envList(m map[string]string) []string {
	env := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		env = append(env, k+"="+m[k])
	}
	return env
}

type discard struct{}

func (discard) Send(string) {}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}
