package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/agentgate/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionDeleteCmd, sessionStatsCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions on the running daemon",
}

// apiClient builds requests against the running daemon, attaching the
// configured API key. Sessions live in the daemon's memory, so the CLI
// goes through the HTTP API rather than any on-disk state.
func apiRequest(method, path string) (*http.Response, error) {
	cfg := loadConfig()
	listen := cfg.Listen
	if listen == "" {
		listen = ":8000"
	}
	if listen[0] == ':' {
		listen = "localhost" + listen
	}

	req, err := http.NewRequest(method, "http://"+listen+path, nil)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", listen, err)
	}
	return resp, nil
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiRequest(http.MethodGet, "/v1/sessions")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var out struct {
			Sessions []types.SessionSummary `json:"sessions"`
			Total    int                    `json:"total"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode session list: %w", err)
		}

		if out.Total == 0 {
			fmt.Println("No active sessions.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tTURNS\tCREATED\tEXPIRES")
		for _, s := range out.Sessions {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
				s.Key,
				s.Turns,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
				s.ExpiresAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiRequest(http.MethodDelete, "/v1/sessions/"+args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("session not found: %s", args[0])
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("delete session: unexpected status %d", resp.StatusCode)
		}
		fmt.Fprintf(os.Stdout, "Session %s deleted.\n", args[0])
		return nil
	},
}

var sessionStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiRequest(http.MethodGet, "/v1/sessions/stats")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var out struct {
			SessionStats types.SessionStats `json:"session_stats"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode session stats: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Active sessions: %d\n", out.SessionStats.ActiveSessions)
		fmt.Fprintf(os.Stdout, "Total turns:     %d\n", out.SessionStats.TotalTurns)
		fmt.Fprintf(os.Stdout, "Oldest age:      %s\n", out.SessionStats.OldestAge)
		return nil
	},
}
