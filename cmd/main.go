package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-stake/cmd/cli"
	"github.com/theblitlabs/parity-stake/internal/core/config"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

var (
	logMode    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "parity-stake",
	Short: "Parity worker staking and allocation service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		mode, err := logger.ParseMode(logMode)
		if err != nil {
			mode = logger.LogModePretty
		}
		logger.InitWithMode(mode)
		config.GetConfigManager().SetConfigPath(configPath)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "pretty", "Log mode: debug, pretty, info, prod, test")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".env", "Path to the env config file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(cli.MigrateCommand())
	rootCmd.AddCommand(cli.TokenCommand())
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the staking server",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer()
	},
}
