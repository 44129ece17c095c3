package cmd

import (
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"

	"jobdeck/internal/config"
	"jobdeck/internal/store"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file and list its jobs",
	Long:  `Load the settings and job definitions without connecting to any backend. Exits non-zero when the file is invalid.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		printJobs(cmd.OutOrStdout(), cfg.Jobs)
		return nil
	},
}

func printJobs(out io.Writer, jobs []config.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tTRIGGER\tMODE\tSTEPS")
	for _, job := range jobs {
		mode := "host"
		if job.Image != "" {
			mode = "docker " + job.Image
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", job.Name, describeTrigger(job.Trigger), mode, len(job.Steps))
	}
	w.Flush()
	fmt.Fprintf(out, "%d job(s) OK\n", len(jobs))
}

func describeTrigger(t config.Trigger) string {
	if t.Queue == nil {
		return "cron " + t.Cron
	}
	loc := t.Queue.Locator
	if loc.Kind == store.KindDefault {
		return "queue default"
	}
	// Keep credentials out of terminal output.
	if u, err := url.Parse(loc.URL); err == nil {
		return "queue " + u.Redacted()
	}
	return "queue " + string(loc.Kind)
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
