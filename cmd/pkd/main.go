// Command pkd is the pK daemon: it binds the client-facing TCP listener
// and the admin HTTP surface, and routes messages between ports until
// asked to shut down.
package main

import (
	"fmt"
	"os"

	"github.com/darqos/pk/cmd/pkd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
