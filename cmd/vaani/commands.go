package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/vaani/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed article",
	Long: `Ask a question about the indexed article.

Creates a new chat session unless --session is given, so follow-up
questions can reuse the printed session ID.

Examples:
  vaani ask "When was Gandhi born?"
  vaani ask --session 4f8a12b0 "And where?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if sessionID == "" {
			resp, err := client.post(cmd.Context(), "/api/session", nil)
			if err != nil {
				return err
			}
			var created map[string]string
			if err := decodeJSON(resp, &created); err != nil {
				return err
			}
			sessionID = created["session_id"]
			printStep("Session %s", sessionID)
		}

		resp, err := client.post(cmd.Context(), "/api/chat", map[string]string{
			"session_id": sessionID,
			"message":    question,
		})
		if err != nil {
			return err
		}

		var result struct {
			Answer string `json:"answer"`
			Source string `json:"source"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		fmt.Printf("\n%s %s\n", colorize(colorBold, "source:"), result.Source)
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "session ID to continue")
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/sessions")
		if err != nil {
			return err
		}

		var result struct {
			Sessions []struct {
				ID          string `json:"id"`
				LastMessage string `json:"lastMessage"`
				UpdatedAt   string `json:"updated_at"`
			} `json:"sessions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		for _, s := range result.Sessions {
			preview := s.LastMessage
			if len(preview) > 80 {
				preview = preview[:80] + "..."
			}
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, s.ID[:8]),
				s.UpdatedAt,
				preview,
			)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/session/"+args[0]+"/history")
		if err != nil {
			return err
		}

		var result struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Messages) == 0 {
			fmt.Println("Empty session.")
			return nil
		}

		for _, m := range result.Messages {
			label := "User"
			color := colorCyan
			if m.Role == "assistant" {
				label = "Assistant"
				color = colorGreen
			}
			fmt.Printf("%s %s\n\n", colorize(color, label+":"), m.Content)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/session/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted session %s", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
