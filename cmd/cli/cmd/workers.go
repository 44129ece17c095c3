package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var workersCmd = &cobra.Command{
	Use:   "workers [namespace]",
	Short: "List live workers of a queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workers, err := newClient().Workers(args[0])
		if err != nil {
			cmd.Printf("Failed to list workers: %v\n", err)
			return
		}
		if len(workers) == 0 {
			cmd.Println("No live workers.")
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WORKER\tJOB\tBACKEND\tLAST SEEN")
		for _, wk := range workers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", wk.WorkerID, wk.JobName, wk.Backend, relativeTime(wk.LastSeen))
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(workersCmd)
}
