// Command cli is the operator tool for the whisper match service. It
// talks to the admin HTTP endpoints and can mint development tokens.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/veilchat/whispermatch/internal/auth"
)

var (
	serverAddr string
	adminToken string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "whispermatch-cli",
		Short: "Operator CLI for the whisper match service",
	}

	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr",
		envOr("WHISPERMATCH_ADDR", "http://localhost:8788"),
		"base URL of the whisper match server")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token",
		os.Getenv("WHISPERMATCH_ADMIN_TOKEN"),
		"admin bearer token")

	rootCmd.AddCommand(statusCmd(), sessionsCmd(), tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show wait pool and session counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminGet("/api/v1/admin/match/status")
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions currently held by the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminGet("/api/v1/admin/match/sessions")
		},
	}
}

func tokenCmd() *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a development JWT (requires JWT_SECRET in the environment)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			token, err := auth.IssueToken([]byte(secret), args[0], admin)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "include the admin claim")
	return cmd
}

func adminGet(path string) error {
	req, err := http.NewRequest(http.MethodGet, serverAddr+path, nil)
	if err != nil {
		return err
	}
	if adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
