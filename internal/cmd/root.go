package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/orchid-dev/orchid/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "orchid",
	Short: "Task orchestration engine for software-maintenance agents",
	Long: `Orchid coordinates long-running software-maintenance tasks (error
reproduction, fix validation, test execution) by routing them to typed
worker agents, tracking external workflows to completion, and streaming
live state to subscribers.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/orchid/config.yaml)")
	rootCmd.PersistentFlags().String("server", "http://localhost:8787", "engine address for client commands")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("client.server", rootCmd.PersistentFlags().Lookup("server"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ORCHID")
	// ORCHID_MONITOR_CHECK_INTERVAL_SECONDS for monitor.check_interval_seconds
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
