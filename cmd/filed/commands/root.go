// Package commands implements the filed CLI: a cobra root command
// carrying a persistent --config flag, with one subcommand per server
// lifecycle action.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "filed",
	Short: "filed - encrypted file-transfer server",
	Long: `filed accepts client connections over the protocol's binary wire
format, registers clients, exchanges AES keys wrapped under client-supplied
RSA public keys, and stores verified file uploads on disk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it. This is
// called by main.main and needs to happen only once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: none, built-in defaults apply)")
	rootCmd.AddCommand(startCmd)
}

// GetConfigFile returns the config file path from the global --config flag.
func GetConfigFile() string {
	return cfgFile
}
