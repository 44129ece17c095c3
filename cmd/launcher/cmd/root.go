package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "jobdeck",
	Short: "jobdeck runs configured jobs from queues and cron schedules",
	Long: `jobdeck is a configuration-driven job launcher.

Every job in the configuration file is bound to a trigger: a queue on a backend
store (in-process, redis, mysql, postgres or sqlite) or a cron schedule. Each run
executes the job's steps in order, on the host or inside a Docker container.
Output and lifecycle events are streamed live over the read API.

  Check a configuration file:
    jobdeck validate --config jobdeck.yaml

  Start the launcher:
    jobdeck run --config jobdeck.yaml

Settings can be overridden with JOBDECK_* environment variables,
for example JOBDECK_SERVER_ADDR or JOBDECK_LOG_LEVEL.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "jobdeck.yaml", "Path to config file")
}
