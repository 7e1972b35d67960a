package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
)

var statsFlags struct {
	address string
	format  string
	ip      string
	user    string
	tool    string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Query statistics from a running instance",
	Long: `Query the admin API of a running ganymede instance.

Without filters the full monitoring snapshot is printed. With --ip,
--user, or --tool the per-key statistics for that identity are printed
instead.

Examples:
  # Full snapshot
  ganymede stats --address http://localhost:8080

  # One client's statistics
  ganymede stats --ip 203.0.113.7

  # JSON for scripting
  ganymede stats --format json | jq .rules`,
	RunE: fetchStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVar(&statsFlags.address, "address", "http://localhost:8080", "server base URL")
	statsCmd.Flags().StringVar(&statsFlags.format, "format", "json", "output format: text, json")
	statsCmd.Flags().StringVar(&statsFlags.ip, "ip", "", "show statistics for one IP")
	statsCmd.Flags().StringVar(&statsFlags.user, "user", "", "show statistics for one user")
	statsCmd.Flags().StringVar(&statsFlags.tool, "tool", "", "show statistics for one tool")
}

func fetchStats(cmd *cobra.Command, args []string) error {
	url := statsFlags.address + "/admin/stats"
	switch {
	case statsFlags.ip != "":
		url += "/ip?ip=" + statsFlags.ip
	case statsFlags.user != "":
		url += "/user?user=" + statsFlags.user
	case statsFlags.tool != "":
		url += "/tool?tool=" + statsFlags.tool
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return cli.NewCommandError("stats", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cli.NewCommandError("stats", err)
	}
	if resp.StatusCode != http.StatusOK {
		return cli.NewCommandError("stats", fmt.Errorf("server returned %d: %s", resp.StatusCode, body))
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return cli.NewCommandError("stats", fmt.Errorf("invalid response: %w", err))
	}

	formatter := cli.NewFormatter(cli.OutputFormat(statsFlags.format))
	return formatter.FormatTo(os.Stdout, data)
}
