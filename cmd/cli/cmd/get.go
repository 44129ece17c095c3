package cmd

import (
	"jobdeck/pkg/api"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [namespace] [job_id]",
	Short: "Show one job",
	Long:  `Retrieve a job record, including its state (Pending, Scheduled, Running, Success, Failed, Dead), attempts, payload and timestamps.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		job, err := newClient().GetJob(args[0], args[1])
		if err != nil {
			cmd.Printf("Failed to fetch job: %v\n", err)
			return
		}
		printJob(cmd, *job)
	},
}

func printJob(cmd *cobra.Command, job api.JobResponse) {
	cmd.Printf("%s %sJob Details%s\n", stateIcon(job.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
	cmd.Printf("%sQueue:%s       %s\n", colorDim, colorReset, job.Namespace)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeState(job.Status))
	cmd.Printf("%sAttempts:%s    %d/%d\n", colorDim, colorReset, job.Attempts, job.MaxAttempts)

	if job.LastError != "" {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, job.LastError, colorReset)
	}
	if job.LockBy != "" {
		cmd.Printf("%sWorker:%s      %s\n", colorDim, colorReset, job.LockBy)
	}

	cmd.Printf("%sPayload:%s     %s\n", colorDim, colorReset, string(job.Payload))
	cmd.Printf("%sEnqueued:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(&job.EnqueuedAt))
	cmd.Printf("%sRun at:%s      %s\n", colorDim, colorReset, formatTimeWithRelative(&job.RunAt))

	if job.DoneAt != nil {
		cmd.Printf("%sFinished:%s    %s %s(%s after enqueue)%s\n", colorDim, colorReset,
			formatTimeWithRelative(job.DoneAt),
			colorCyan, formatDuration(job.DoneAt.Sub(job.EnqueuedAt)), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    -\n", colorDim, colorReset)
	}
}

func init() {
	rootCmd.AddCommand(getCmd)
}
