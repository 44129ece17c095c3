package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/shlex"
)

// removeTimeout bounds container removal, which runs on a context of its own
// so a cancelled run still cleans up.
const removeTimeout = 10 * time.Second

// containerAPI is the subset of the Docker engine the executor drives.
type containerAPI interface {
	EnsureImage(ctx context.Context, ref string) error
	Create(ctx context.Context, ref string, env []string) (string, error)
	Start(ctx context.Context, id string) error
	// Exec runs cmd in the container, copies its combined output to w and returns the exit code.
	Exec(ctx context.Context, id string, cmd, env []string, w io.Writer) (int, error)
	Remove(ctx context.Context, id string) error
}

// DockerRuntime runs all steps of a job inside one ephemeral container.
type DockerRuntime struct {
	api    containerAPI
	logger *slog.Logger
}

// NewDockerRuntime connects to the engine at host, or to DOCKER_HOST and friends when host is empty.
func NewDockerRuntime(host string, logger *slog.Logger) (*DockerRuntime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return newDockerRuntime(&engine{client: cli}, logger), nil
}

func newDockerRuntime(api containerAPI, logger *slog.Logger) *DockerRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerRuntime{api: api, logger: logger}
}

// Run implements Runtime. The container is removed on every path once it exists.
func (d *DockerRuntime) Run(ctx context.Context, spec Spec, out Sink) error {
	if out == nil {
		out = Discard
	}
	if err := d.api.EnsureImage(ctx, spec.Image); err != nil {
		return &StepError{Step: "pull", ExitCode: -1, Err: fmt.Errorf("failed to pull image %s: %w", spec.Image, err)}
	}

	env := envList(spec.Env)
	id, err := d.api.Create(ctx, spec.Image, env)
	if id != "" {
		defer d.remove(id)
	}
	if err != nil {
		return &StepError{Step: "create", ExitCode: -1, Err: fmt.Errorf("failed to create container: %w", err)}
	}
	if err := d.api.Start(ctx, id); err != nil {
		return &StepError{Step: "start", ExitCode: -1, Err: fmt.Errorf("failed to start container: %w", err)}
	}

	for _, step := range spec.Steps {
		args, err := shlex.Split(step.Command)
		if err != nil || len(args) == 0 {
			return &StepError{Step: step.Name, ExitCode: -1, Err: fmt.Errorf("invalid command %q", step.Command)}
		}

		lw := newLineWriter(out)
		code, err := d.api.Exec(ctx, id, args, env, lw)
		lw.Flush()
		if err != nil {
			return &StepError{Step: step.Name, ExitCode: -1, Err: err}
		}
		if code != 0 {
			return &StepError{Step: step.Name, ExitCode: code}
		}
	}
	return nil
}

func (d *DockerRuntime) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := d.api.Remove(ctx, id); err != nil {
		d.logger.Error("failed to remove container", "container_id", id, "error", err)
	}
}

// engine adapts the Docker SDK client to containerAPI.
type engine struct {
	client *client.Client
}

func (e *engine) EnsureImage(ctx context.Context, ref string) error {
	// Skip the pull when the image is already present.
	if _, err := e.client.ImageInspect(ctx, ref); err == nil {
		return nil
	}
	reader, err := e.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

func (e *engine) Create(ctx context.Context, ref string, env []string) (string, error) {
	resp, err := e.client.ContainerCreate(ctx, &container.Config{
		Image:     ref,
		Env:       env,
		Tty:       true,
		OpenStdin: true,
		Labels:    map[string]string{"managed-by": "jobdeck"},
	}, nil, nil, nil, "")
	return resp.ID, err
}

func (e *engine) Start(ctx context.Context, id string) error {
	return e.client.ContainerStart(ctx, id, container.StartOptions{})
}

func (e *engine) Exec(ctx context.Context, id string, cmd, env []string, w io.Writer) (int, error) {
	created, err := e.client.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := e.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return -1, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	if err := drainExec(ctx, attach.Reader, attach.Close, w); err != nil {
		return -1, err
	}

	for {
		info, err := e.client.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return -1, fmt.Errorf("failed to inspect exec: %w", err)
		}
		if !info.Running {
			return info.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// drainExec copies a multiplexed exec stream into w until it ends. The stream is
// a hijacked connection that ignores ctx, so cancellation closes it.
func drainExec(ctx context.Context, stream io.Reader, closeStream func(), w io.Writer) error {
	stop := context.AfterFunc(ctx, closeStream)
	defer stop()

	// Without a TTY the stream is multiplexed; stdout and stderr both go to w.
	_, err := stdcopy.StdCopy(w, w, stream)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read exec output: %w", err)
	}
	return nil
}

func (e *engine) Remove(ctx context.Context, id string) error {
	return e.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}
