package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pkd status and the live port registry",
	Long: `Fetches /healthz and /debug/ports from pkd's admin HTTP surface
and renders them as a table.`,
	RunE: runStatus,
}

type healthzResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type portEntry struct {
	Port      uint64 `json:"port"`
	SessionID uint64 `json:"session_id"`
}

type portsResponse struct {
	Sessions int         `json:"sessions"`
	Ports    []portEntry `json:"ports"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	var health healthzResponse
	if err := getJSON(client, Flags.AdminAddr+"/healthz", &health); err != nil {
		return fmt.Errorf("pkd unreachable at %s: %w", Flags.AdminAddr, err)
	}

	var ports portsResponse
	if err := getJSON(client, Flags.AdminAddr+"/debug/ports", &ports); err != nil {
		return fmt.Errorf("fetch port registry: %w", err)
	}

	fmt.Printf("pkd: %s  uptime: %s  sessions: %d\n\n", health.Status, health.Uptime, ports.Sessions)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Port", "Session"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, p := range ports.Ports {
		table.Append([]string{fmt.Sprintf("%d", p.Port), fmt.Sprintf("%d", p.SessionID)})
	}
	table.Render()
	return nil
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
