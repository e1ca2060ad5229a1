// Command pkctl is the operator CLI for a running pkd: it reports status
// from the admin HTTP surface and can request reboot/shutdown over the
// wire protocol directly.
package main

import (
	"fmt"
	"os"

	"github.com/darqos/pk/cmd/pkctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
