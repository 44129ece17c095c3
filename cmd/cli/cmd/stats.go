package cmd

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats [namespace]",
	Short: "Show job counts per state for a queue",
	Long:  `Show how many jobs of a queue are pending (including scheduled), running, failed and waiting for retry, dead, or done.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := newClient().Backend(args[0], "", 1)
		if err != nil {
			cmd.Printf("Failed to fetch stats: %v\n", err)
			return
		}

		s := resp.Stats
		cmd.Printf("%sQueue %s%s\n", colorBold, resp.Namespace, colorReset)
		cmd.Println("──────────────────────────────")
		cmd.Printf("%s Pending:  %d\n", stateIcon("Pending"), s.Pending)
		cmd.Printf("%s Running:  %d\n", stateIcon("Running"), s.Running)
		cmd.Printf("%s Failed:   %d\n", stateIcon("Failed"), s.Failed)
		cmd.Printf("%s Dead:     %d\n", stateIcon("Dead"), s.Dead)
		cmd.Printf("%s Success:  %d\n", stateIcon("Success"), s.Success)
		cmd.Printf("%sTotal:%s      %d\n", colorDim, colorReset, s.Pending+s.Running+s.Failed+s.Dead+s.Success)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
