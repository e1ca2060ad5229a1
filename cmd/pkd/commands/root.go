// Package commands implements the CLI commands for the pkd daemon.
package commands

import "github.com/spf13/cobra"

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "pkd",
	Short: "pK - pseudo-kernel IPC daemon",
	Long: `pkd is the pK pseudo-kernel: a user-space daemon providing the
message-passing IPC fabric by which every process in the environment
communicates. Clients open ports, send, and receive messages over a
single framed TCP stream to this daemon.

Use "pkd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/pk/config.yaml)")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}
