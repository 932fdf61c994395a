// Package cli provides the roomctl command-line client for a roomgate server.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	applicationName = "roomctl"
	configFileName  = ".roomctl.yaml"
)

var (
	cfgFile      string
	outputFormat string
	verbose      bool
	version      = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   applicationName,
	Short: "roomctl - sign in to roomgate and chat in rooms from the terminal",
	Long: `roomctl is a command-line client for a roomgate server.

It starts the GitHub login flow, stores the resulting session token in a
profile, shows the signed-in user and joins rooms for interactive chat.`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command. It only needs to happen once.
func ExecuteContext(ctx context.Context, buildVersion string) error {
	if buildVersion != "" {
		version = buildVersion
	}
	rootCmd.Version = version
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/"+configFileName+")")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("profile", "", "profile to use instead of the default")

	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".roomctl")
	}

	// ROOMCTL_PROFILE, ROOMCTL_OUTPUT, ...
	viper.SetEnvPrefix("ROOMCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	if cfgFile != "" {
		absPath, err := filepath.Abs(cfgFile)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path for config file: %w", err)
		}
		return absPath, nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, configFileName), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: both UserHomeDir and UserConfigDir failed")
	}

	return filepath.Join(configDir, configFileName), nil
}
