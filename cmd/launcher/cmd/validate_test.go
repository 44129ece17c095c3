package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobdeck.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, `
jobs:
  ping:
    source:
      cron: "@every 5m"
    task:
      steps:
        echo: echo hello
  orders:
    source:
      http:
        backend: postgres://app:s3cret@db:5432/jobs
    task:
      docker: alpine:3
      steps:
        fetch: echo fetch
        ship: echo ship
  local:
    source:
      http: {}
    task:
      steps:
        run: "true"
`)

	out, err := execute("validate", "--config", path)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}

	for _, want := range []string{
		"cron @every 5m",
		"queue postgres://app:xxxxx@db:5432/jobs",
		"docker alpine:3",
		"queue default",
		"3 job(s) OK",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "s3cret") {
		t.Errorf("password leaked into output:\n%s", out)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 || !strings.HasPrefix(lines[1], "ping") || !strings.HasPrefix(lines[2], "orders") {
		t.Errorf("jobs must be listed in document order, got:\n%s", out)
	}
}

func TestValidateCommand_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "No jobs",
			content: "server:\n  addr: :9000\n",
			errText: "no jobs configured",
		},
		{
			name: "Bad cron",
			content: `
jobs:
  ping:
    source:
      cron: "not a schedule"
    task:
      steps:
        echo: echo hello
`,
			errText: `job "ping"`,
		},
		{
			name: "Unknown backend scheme",
			content: `
jobs:
  orders:
    source:
      http:
        backend: kafka://broker:9092
    task:
      steps:
        echo: echo hello
`,
			errText: "unsupported backend scheme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute("validate", "--config", writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("expected error, got output:\n%s", out)
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("expected error containing %q, got %v", tt.errText, err)
			}
		})
	}
}

func TestValidateCommand_MissingFile(t *testing.T) {
	_, err := execute("validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	want := map[string]bool{"run": false, "validate": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q subcommand to be registered", name)
		}
	}
}
