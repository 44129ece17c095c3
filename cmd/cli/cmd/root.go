package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "deckctl",
	Short: "deckctl inspects and feeds the queues of a running jobdeck launcher",
	Long: `deckctl is the command-line client for the jobdeck read API.

A jobdeck launcher runs the jobs declared in its configuration file. Queue jobs
pull work from a backend store (in-process, redis, mysql, postgres or sqlite),
cron jobs fire on a schedule. deckctl talks to the launcher's HTTP API to look
at those queues and to enqueue new work.

Common workflows:

  List the queues:
    deckctl queues

  Inspect one queue:
    deckctl stats orders
    deckctl jobs orders --status Failed --page 2
    deckctl workers orders

  Enqueue and look up a job:
    deckctl push orders '{"sku":"A1"}'
    deckctl get orders <job-id>

  Follow the live event stream:
    deckctl events

Configuration:
  Set the API endpoint and credentials via flags, environment variables or a config file:
    JOBDECK_URL      API endpoint (default: http://127.0.0.1:8000)
    JOBDECK_TOKEN    Bearer token for enqueue, when the launcher requires one`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".deckctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".deckctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "JOBDECK_VARNAME"
	viper.SetEnvPrefix("JOBDECK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds a client from the resolved url and token.
func newClient() *DeckClient {
	return NewDeckClient(viper.GetString("url"), viper.GetString("token"))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.deckctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://127.0.0.1:8000", "jobdeck launcher URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API token for enqueue")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
