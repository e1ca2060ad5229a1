// Package commands implements the CLI commands for the pkctl operator
// client.
package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Flags holds the persistent flag values shared by every subcommand.
var Flags struct {
	AdminAddr string // base URL of pkd's admin HTTP surface
	PKAddr    string // TCP address of pkd's client-facing listener
}

var rootCmd = &cobra.Command{
	Use:   "pkctl",
	Short: "pkctl - operator client for the pK daemon",
	Long: `pkctl is the command-line operator client for a running pkd. It
reports status from pkd's admin HTTP surface and can issue Reboot/Shutdown
requests directly over the pK wire protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		Flags.AdminAddr, _ = cmd.Flags().GetString("admin")
		Flags.PKAddr, _ = cmd.Flags().GetString("pk-addr")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Accept underscore spellings (--pk_addr) for every dashed flag.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	rootCmd.PersistentFlags().String("admin", "http://localhost:11099", "pkd admin HTTP base URL")
	rootCmd.PersistentFlags().String("pk-addr", "localhost:11000", "pkd client-facing TCP address")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(versionCmd)
}
