package cmd

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"jobdeck/pkg/api"

	"github.com/spf13/cobra"
)

var showPings bool

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow the live event stream",
	Long:  `Print job output and lifecycle events as the launcher broadcasts them. Stops on Ctrl+C or when the launcher shuts down.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err := newClient().StreamEvents(ctx, func(event string) {
			if event == "ping" && !showPings {
				return
			}
			cmd.Println(formatEvent(event))
		})
		if err != nil {
			cmd.Printf("Event stream failed: %v\n", err)
		}
	},
}

// formatEvent decorates lifecycle events; everything else is printed verbatim.
func formatEvent(event string) string {
	var ev api.JobEvent
	if err := json.Unmarshal([]byte(event), &ev); err != nil || ev.Event == "" || ev.Job == "" {
		return event
	}
	switch ev.Event {
	case api.EventStarted:
		return colorCyan + "▶" + colorReset + " " + ev.Job + " " + colorDim + ev.ID + colorReset
	case api.EventCompleted:
		return stateIcon("Success") + " " + ev.Job + " " + colorDim + ev.ID + colorReset + " " + formatDuration(msDuration(ev.DurationMS))
	case api.EventFailed:
		return stateIcon("Dead") + " " + ev.Job + " " + colorDim + ev.ID + colorReset + " " + colorRed + ev.Error + colorReset
	}
	return event
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().BoolVar(&showPings, "pings", false, "Also print heartbeat pings")
}
