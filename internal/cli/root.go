// Package cli implements relayctl, the operator command line for the
// relaybot admin API.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"relaybot/pkg/client"
)

const requestTimeout = 10 * time.Second

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Relaybot admin CLI",
	Long:  "Command line interface for the relaybot admin API: inspect jobs, request cancellation and clear stale downloads.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", defaultServerAddr(),
		"Admin API address in host:port form")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newCancelCmd())
	rootCmd.AddCommand(newClearCmd())
	rootCmd.AddCommand(newHealthCmd())
}

// defaultServerAddr mirrors the daemon's listener defaults and env
// overrides, so a plain `relayctl status` finds a locally running bot.
func defaultServerAddr() string {
	host := "127.0.0.1"
	port := "8091"
	if v := os.Getenv("RELAYBOT_SERVER_ADDRESS"); v != "" {
		host = v
	}
	if v := os.Getenv("RELAYBOT_SERVER_PORT"); v != "" {
		port = v
	}
	return host + ":" + port
}

func apiClient() *client.Client {
	return client.New(baseURL(serverAddr), requestTimeout)
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func fileSummary(f client.FileStats) string {
	parts := []string{fmt.Sprintf("%d relayed", f.Relayed)}
	if f.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", f.Skipped))
	}
	if f.Abandoned > 0 {
		parts = append(parts, fmt.Sprintf("%d abandoned", f.Abandoned))
	}
	if f.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", f.Failed))
	}
	return strings.Join(parts, ", ")
}
