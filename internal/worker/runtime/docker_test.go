package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
)

// fakeEngine is an in-memory containerAPI that tracks live containers.
type fakeEngine struct {
	mu      sync.Mutex
	live    map[string]bool
	removed []string
	execs   []string
	nextID  int

	EnsureImageFunc func(ref string) error
	CreateFunc      func(ref string) (string, error)
	ExecFunc        func(cmd []string, w io.Writer) (int, error)
	ExecCtxFunc     func(ctx context.Context, cmd []string, w io.Writer) (int, error)
	RemoveCtxErr    error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{live: map[string]bool{}}
}

func (f *fakeEngine) EnsureImage(ctx context.Context, ref string) error {
	if f.EnsureImageFunc != nil {
		return f.EnsureImageFunc(ref)
	}
	return nil
}

func (f *fakeEngine) Create(ctx context.Context, ref string, env []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateFunc != nil {
		id, err := f.CreateFunc(ref)
		if id != "" {
			f.live[id] = true
		}
		return id, err
	}
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	f.live[id] = true
	return id, nil
}

func (f *fakeEngine) Start(ctx context.Context, id string) error { return nil }

func (f *fakeEngine) Exec(ctx context.Context, id string, cmd, env []string, w io.Writer) (int, error) {
	f.mu.Lock()
	f.execs = append(f.execs, strings.Join(cmd, " "))
	f.mu.Unlock()
	if f.ExecCtxFunc != nil {
		return f.ExecCtxFunc(ctx, cmd, w)
	}
	if f.ExecFunc != nil {
		return f.ExecFunc(cmd, w)
	}
	return 0, nil
}

func (f *fakeEngine) Remove(ctx context.Context, id string) error {
	f.RemoveCtxErr = ctx.Err()
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, id)
	f.removed = append(f.removed, id)
	return nil
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Send(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, msg)
}

var threeSteps = Spec{
	Image: "alpine:3",
	Steps: []Step{
		{Name: "a", Command: "echo a"},
		{Name: "b", Command: "echo b"},
		{Name: "c", Command: "echo c"},
	},
}

func TestDockerRuntime_ContainerRemovedExactlyOnce(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(f *fakeEngine)
		wantErr     bool
		wantExecs   []string
		wantRemoved int
	}{
		{
			name:        "all steps succeed",
			setup:       func(f *fakeEngine) {},
			wantExecs:   []string{"echo a", "echo b", "echo c"},
			wantRemoved: 1,
		},
		{
			name: "second step fails",
			setup: func(f *fakeEngine) {
				f.ExecFunc = func(cmd []string, w io.Writer) (int, error) {
					if cmd[1] == "b" {
						return 2, nil
					}
					return 0, nil
				}
			},
			wantErr:     true,
			wantExecs:   []string{"echo a", "echo b"},
			wantRemoved: 1,
		},
		{
			name: "exec error",
			setup: func(f *fakeEngine) {
				f.ExecFunc = func(cmd []string, w io.Writer) (int, error) {
					return -1, errors.New("connection reset")
				}
			},
			wantErr:     true,
			wantExecs:   []string{"echo a"},
			wantRemoved: 1,
		},
		{
			name: "image pull fails",
			setup: func(f *fakeEngine) {
				f.EnsureImageFunc = func(ref string) error { return errors.New("manifest unknown") }
			},
			wantErr:     true,
			wantRemoved: 0,
		},
		{
			name: "create fails after allocating a container",
			setup: func(f *fakeEngine) {
				f.CreateFunc = func(ref string) (string, error) { return "partial", errors.New("no space left") }
			},
			wantErr:     true,
			wantRemoved: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeEngine()
			tt.setup(f)
			rt := newDockerRuntime(f, nil)

			err := rt.Run(context.Background(), threeSteps, Discard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(f.live) != 0 {
				t.Errorf("containers left behind: %v", f.live)
			}
			if len(f.removed) != tt.wantRemoved {
				t.Errorf("removed %d containers, want %d", len(f.removed), tt.wantRemoved)
			}
			if strings.Join(f.execs, ",") != strings.Join(tt.wantExecs, ",") {
				t.Errorf("execs = %v, want %v", f.execs, tt.wantExecs)
			}
		})
	}
}

func TestDockerRuntime_StepErrorCarriesExitCode(t *testing.T) {
	f := newFakeEngine()
	f.ExecFunc = func(cmd []string, w io.Writer) (int, error) { return 7, nil }

	err := newDockerRuntime(f, nil).Run(context.Background(), threeSteps, Discard)

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if stepErr.Step != "a" || stepErr.ExitCode != 7 {
		t.Errorf("unexpected step error: %+v", stepErr)
	}
}

func TestDockerRuntime_ForwardsOutputLines(t *testing.T) {
	f := newFakeEngine()
	f.ExecFunc = func(cmd []string, w io.Writer) (int, error) {
		io.WriteString(w, "first line\nsecond ")
		io.WriteString(w, "line\npartial")
		return 0, nil
	}
	rec := &recorder{}

	spec := Spec{Image: "alpine:3", Steps: []Step{{Name: "only", Command: "sh -c 'echo hi'"}}}
	if err := newDockerRuntime(f, nil).Run(context.Background(), spec, rec); err != nil {
		t.Fatal(err)
	}

	want := []string{"first line", "second line", "partial"}
	if strings.Join(rec.lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", rec.lines, want)
	}
	if f.execs[0] != "sh -c echo hi" {
		t.Errorf("command not shell-split: %q", f.execs[0])
	}
}

func TestDockerRuntime_RemovesAfterCancellation(t *testing.T) {
	f := newFakeEngine()
	ctx, cancel := context.WithCancel(context.Background())
	f.ExecFunc = func(cmd []string, w io.Writer) (int, error) {
		cancel()
		return -1, context.Canceled
	}

	err := newDockerRuntime(f, nil).Run(ctx, threeSteps, Discard)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(f.removed) != 1 {
		t.Fatalf("expected container removal, got %v", f.removed)
	}
	if f.RemoveCtxErr != nil {
		t.Errorf("removal ran on a cancelled context: %v", f.RemoveCtxErr)
	}
}

func TestDrainExec(t *testing.T) {
	var framed bytes.Buffer
	stdcopy.NewStdWriter(&framed, stdcopy.Stdout).Write([]byte("out line\n"))
	stdcopy.NewStdWriter(&framed, stdcopy.Stderr).Write([]byte("err line\n"))

	t.Run("Copies both streams", func(t *testing.T) {
		var out bytes.Buffer
		if err := drainExec(context.Background(), &framed, func() {}, &out); err != nil {
			t.Fatal(err)
		}
		if out.String() != "out line\nerr line\n" {
			t.Errorf("unexpected output: %q", out.String())
		}
	})

	t.Run("Cancellation closes a stream that ignores ctx", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer pw.Close()
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		done := make(chan error, 1)
		go func() { done <- drainExec(ctx, pr, func() { pr.Close() }, io.Discard) }()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("drain still blocked after cancellation")
		}
	})
}

func TestDockerRuntime_CancelUnblocksLongRunningStep(t *testing.T) {
	f := newFakeEngine()
	// The stream only ends when closed, like a hijacked exec connection running sleep 3600.
	f.ExecCtxFunc = func(ctx context.Context, cmd []string, w io.Writer) (int, error) {
		pr, pw := io.Pipe()
		defer pw.Close()
		if err := drainExec(ctx, pr, func() { pr.Close() }, w); err != nil {
			return -1, err
		}
		return 0, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- newDockerRuntime(f, nil).Run(ctx, threeSteps, Discard) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.removed) != 1 || len(f.live) != 0 {
		t.Errorf("container not removed: removed=%v live=%v", f.removed, f.live)
	}
}

func TestRunner_Dispatch(t *testing.T) {
	f := newFakeEngine()
	r := &Runner{Host: NewExecRuntime(t.TempDir()), Container: newDockerRuntime(f, nil)}

	if err := r.Run(context.Background(), threeSteps, Discard); err != nil {
		t.Fatal(err)
	}
	if len(f.execs) != 3 {
		t.Errorf("container mode not used: %v", f.execs)
	}

	noDocker := &Runner{Host: NewExecRuntime(t.TempDir())}
	if err := noDocker.Run(context.Background(), threeSteps, Discard); !errors.Is(err, ErrNoContainerRuntime) {
		t.Errorf("expected ErrNoContainerRuntime, got %v", err)
	}
}
