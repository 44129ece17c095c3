package config

import (
	"errors"
	"fmt"
	"regexp"

	"jobdeck/internal/store"

	"github.com/google/shlex"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// CronParser accepts five-field expressions, six-field ones with leading seconds,
// and descriptors such as @every 5m.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var jobNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Job is one job definition.
type Job struct {
	Name    string
	Trigger Trigger
	// Steps run in document order.
	Steps []Step
	// Image selects container mode when set.
	Image string
}

// Trigger is exactly one of Cron or Queue.
type Trigger struct {
	Cron  string
	Queue *QueueTrigger
}

// QueueTrigger binds a job to a backend store.
type QueueTrigger struct {
	Locator     store.Locator
	MaxAttempts int
}

// Step is one named command.
type Step struct {
	Name    string
	Command string
}

type jobDoc struct {
	Source yaml.Node `yaml:"source"`
	Task   struct {
		Steps  yaml.Node `yaml:"steps"`
		Docker string    `yaml:"docker"`
	} `yaml:"task"`
}

type httpDoc struct {
	Backend     string `yaml:"backend"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// ParseJobs decodes and validates the jobs section of a YAML document.
// Job and step order follow the document.
func ParseJobs(data []byte) ([]Job, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, errors.New("no jobs configured")
	}

	top, err := pairs(root.Content[0])
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var jobsNode *yaml.Node
	for _, p := range top {
		if p.key == "jobs" {
			jobsNode = p.value
		}
	}
	if jobsNode == nil {
		return nil, errors.New("no jobs configured")
	}

	entries, err := pairs(jobsNode)
	if err != nil {
		return nil, fmt.Errorf("invalid jobs section: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("no jobs configured")
	}

	jobs := make([]Job, 0, len(entries))
	for _, e := range entries {
		job, err := parseJob(e.key, e.value)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", e.key, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func parseJob(name string, node *yaml.Node) (Job, error) {
	job := Job{Name: name}
	if !jobNamePattern.MatchString(name) {
		return job, errors.New("name must match [A-Za-z0-9_.-]+")
	}

	var doc jobDoc
	if err := node.Decode(&doc); err != nil {
		return job, err
	}
	job.Image = doc.Task.Docker

	trigger, err := parseSource(&doc.Source)
	if err != nil {
		return job, err
	}
	job.Trigger = trigger

	steps, err := pairs(&doc.Task.Steps)
	if err != nil {
		return job, fmt.Errorf("task.steps: %w", err)
	}
	if len(steps) == 0 {
		return job, errors.New("task.steps must list at least one step")
	}
	for _, s := range steps {
		var command string
		if err := s.value.Decode(&command); err != nil {
			return job, fmt.Errorf("step %q: command must be a string", s.key)
		}
		words, err := shlex.Split(command)
		if err != nil {
			return job, fmt.Errorf("step %q: %w", s.key, err)
		}
		if len(words) == 0 {
			return job, fmt.Errorf("step %q: command is empty", s.key)
		}
		job.Steps = append(job.Steps, Step{Name: s.key, Command: command})
	}
	return job, nil
}

func parseSource(node *yaml.Node) (Trigger, error) {
	var t Trigger
	entries, err := pairs(node)
	if err != nil {
		return t, fmt.Errorf("source: %w", err)
	}

	var sawHTTP, sawCron bool
	for _, e := range entries {
		switch e.key {
		case "http":
			sawHTTP = true
			var h httpDoc
			// "http:" with no body means the default backend.
			if e.value.Kind == yaml.MappingNode {
				if err := e.value.Decode(&h); err != nil {
					return t, fmt.Errorf("source.http: %w", err)
				}
			}
			loc, err := store.ParseLocator(h.Backend)
			if err != nil {
				return t, fmt.Errorf("source.http.backend: %w", err)
			}
			if h.MaxAttempts < 0 {
				return t, errors.New("source.http.max_attempts must not be negative")
			}
			t.Queue = &QueueTrigger{Locator: loc, MaxAttempts: h.MaxAttempts}
		case "cron":
			sawCron = true
			if err := e.value.Decode(&t.Cron); err != nil {
				return t, errors.New("source.cron must be a string")
			}
			if _, err := CronParser.Parse(t.Cron); err != nil {
				return t, fmt.Errorf("source.cron: %w", err)
			}
		default:
			return t, fmt.Errorf("unknown source %q", e.key)
		}
	}
	if sawHTTP == sawCron {
		return t, errors.New("source must set exactly one of http or cron")
	}
	return t, nil
}

type pair struct {
	key   string
	value *yaml.Node
}

// pairs returns the entries of a mapping node in document order.
// A missing or null node yields no entries.
func pairs(node *yaml.Node) ([]pair, error) {
	if node == nil || node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Tag == "!!null") {
		return nil, nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	seen := make(map[string]bool, len(node.Content)/2)
	out := make([]pair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if seen[key] {
			return nil, fmt.Errorf("line %d: duplicate key %q", node.Content[i].Line, key)
		}
		seen[key] = true
		out = append(out, pair{key: key, value: node.Content[i+1]})
	}
	return out, nil
}
