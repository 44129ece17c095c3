package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	jobsStatus string
	jobsPage   int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [namespace]",
	Short: "List one page of jobs of a queue",
	Long: `List jobs of a queue in one state, newest first, 10 per page.

Examples:
  deckctl jobs orders
  deckctl jobs orders --status Dead --page 2`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := newClient().Backend(args[0], jobsStatus, jobsPage)
		if err != nil {
			cmd.Printf("Failed to list jobs: %v\n", err)
			return
		}

		if len(resp.Jobs) == 0 {
			cmd.Printf("No %s jobs on page %d.\n", resp.Status, resp.Page)
		} else {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tATTEMPTS\tENQUEUED\tDONE\tERROR")
			for _, job := range resp.Jobs {
				done := "-"
				if job.DoneAt != nil {
					done = relativeTime(*job.DoneAt)
				}
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
					job.ID, job.Status, job.Attempts, job.MaxAttempts,
					relativeTime(job.EnqueuedAt), done, job.LastError)
			}
			w.Flush()
		}

		if resp.Skipped > 0 {
			cmd.Printf("%s%d record(s) on this page could not be decoded%s\n", colorRed, resp.Skipped, colorReset)
		}
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().StringVarP(&jobsStatus, "status", "s", "Pending", "Job state: Pending, Scheduled, Running, Success, Failed or Dead")
	jobsCmd.Flags().IntVarP(&jobsPage, "page", "p", 1, "Page number, starting at 1")
}
