package commands

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/darqos/pk/internal/pkwire"
)

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Ask pkd to close every session and reboot",
	Long: `Sends a Reboot frame directly over the pK wire protocol: no
open_port/close_port handshake is required since Reboot and Shutdown
carry no request_id and expect no response.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendControlFrame(Flags.PKAddr, pkwire.Reboot{})
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask pkd to close every session and stop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendControlFrame(Flags.PKAddr, pkwire.Shutdown{})
	},
}

func sendControlFrame(addr string, msg pkwire.Message) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	encoded, err := pkwire.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if _, err := conn.Write(encoded); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
