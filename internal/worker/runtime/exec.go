package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/shlex"
)

// ExecRuntime runs steps as host processes.
// Every run gets a fresh working directory under WorkDir, shared by its steps.
type ExecRuntime struct {
	WorkDir string
}

// NewExecRuntime creates a process-based runtime. An empty workDir uses the system temp dir.
func NewExecRuntime(workDir string) *ExecRuntime {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "jobdeck", "runner")
	}
	return &ExecRuntime{WorkDir: workDir}
}

// Run implements Runtime.
func (e *ExecRuntime) Run(ctx context.Context, spec Spec, out Sink) error {
	if err := os.MkdirAll(e.WorkDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(e.WorkDir, "run-")
	if err != nil {
		return fmt.Errorf("failed to create run dir: %w", err)
	}
	defer os.RemoveAll(dir)

	env := append(os.Environ(), envList(spec.Env)...)
	for _, step := range spec.Steps {
		if err := e.runStep(ctx, dir, env, step, out); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExecRuntime) runStep(ctx context.Context, dir string, env []string, step Step, out Sink) error {
	args, err := shlex.Split(step.Command)
	if err != nil {
		return &StepError{Step: step.Name, ExitCode: -1, Err: fmt.Errorf("invalid command: %w", err)}
	}
	if len(args) == 0 {
		return &StepError{Step: step.Name, ExitCode: -1, Err: errors.New("command is required")}
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &StepError{Step: step.Name, ExitCode: -1, Err: err}
	}
	stderr := newLineWriter(nil)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return &StepError{Step: step.Name, ExitCode: -1, Err: err}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		out.Send(scanner.Text())
	}
	// Keep the pipe drained so the child never blocks on a full buffer.
	_, _ = io.Copy(io.Discard, stdout)

	err = cmd.Wait()
	stderr.Flush()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		stepErr := &StepError{Step: step.Name, ExitCode: exitErr.ExitCode()}
		if tail := stderr.Tail(); tail != "" {
			stepErr.Err = fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), tail)
		}
		return stepErr
	}
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return &StepError{Step: step.Name, ExitCode: -1, Err: err}
}
