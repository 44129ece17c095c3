package cmd

import (
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var pushDelay time.Duration

var pushCmd = &cobra.Command{
	Use:   "push [namespace] [payload]",
	Short: "Enqueue a JSON payload",
	Long: `Enqueue a job on a queue. The payload must be valid JSON; use - to read it from stdin.

Examples:
  deckctl push orders '{"sku":"A1"}'
  deckctl push orders --delay 10m '{"sku":"A1"}'
  cat order.json | deckctl push orders -`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		payload := []byte(args[1])
		if args[1] == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				cmd.Printf("Failed to read payload: %v\n", err)
				return
			}
			payload = data
		}
		if !json.Valid(payload) {
			cmd.Println("Payload must be valid JSON")
			return
		}

		resp, err := newClient().Push(args[0], payload, pushDelay)
		if err != nil {
			cmd.Printf("Failed to enqueue job: %v\n", err)
			return
		}

		cmd.Printf("%s Job enqueued\n", stateIcon(resp.Status))
		cmd.Printf("%sID:%s      %s\n", colorDim, colorReset, resp.ID)
		cmd.Printf("%sStatus:%s  %s\n", colorDim, colorReset, colorizeState(resp.Status))
		cmd.Printf("%sRuns:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(&resp.RunAt))
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().DurationVar(&pushDelay, "delay", 0, "Delay before the job becomes due (e.g. 30s, 10m)")
}
