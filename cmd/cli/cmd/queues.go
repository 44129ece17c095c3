package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "List the queue namespaces served by the launcher",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		namespaces, err := newClient().Namespaces()
		if err != nil {
			cmd.Printf("Failed to list queues: %v\n", err)
			return
		}
		if len(namespaces) == 0 {
			cmd.Println("No queues configured.")
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAMESPACE\tBACKEND")
		for _, ns := range namespaces {
			fmt.Fprintf(w, "%s\t%s\n", ns.Name, ns.Backend)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(queuesCmd)
}
