package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crispai/crisp/internal/config"
)

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage interview sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List interview sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := client.get(ctx, "/sessions")
		if err != nil {
			return err
		}

		var sessions []struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			Candidate *struct {
				Name  string `json:"name"`
				Score *int   `json:"score"`
			} `json:"candidate"`
			Questions []json.RawMessage `json:"questions"`
		}
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		for _, s := range sessions {
			name := "(unknown)"
			score := "-"
			if s.Candidate != nil {
				if s.Candidate.Name != "" {
					name = s.Candidate.Name
				}
				if s.Candidate.Score != nil {
					score = fmt.Sprintf("%d", *s.Candidate.Score)
				}
			}
			fmt.Printf("%s  %-14s  %d/6  score %-4s %s\n",
				colorize(colorCyan, s.ID[:8]),
				s.Status,
				len(s.Questions),
				score,
				name,
			)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := client.get(ctx, "/sessions/"+args[0])
		if err != nil {
			return err
		}

		var sess any
		if err := decodeJSON(resp, &sess); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new interview session",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		phone, _ := cmd.Flags().GetString("phone")
		role, _ := cmd.Flags().GetString("role")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := client.post(ctx, "/sessions", map[string]string{
			"name":  name,
			"email": email,
			"phone": phone,
			"role":  role,
		})
		if err != nil {
			return err
		}

		var created struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		printSuccess("Created session %s", created.ID)
		return nil
	},
}

func init() {
	sessionsNewCmd.Flags().String("name", "", "candidate name")
	sessionsNewCmd.Flags().String("email", "", "candidate email")
	sessionsNewCmd.Flags().String("phone", "", "candidate phone")
	sessionsNewCmd.Flags().String("role", "", "role being hired for")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
}

// --- candidates ---

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List interviewed candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := client.get(ctx, "/candidates")
		if err != nil {
			return err
		}

		var candidates []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Status  string `json:"status"`
			Score   *int   `json:"score"`
			Summary string `json:"summary"`
		}
		if err := decodeJSON(resp, &candidates); err != nil {
			return err
		}

		if len(candidates) == 0 {
			fmt.Println("No candidates found.")
			return nil
		}

		for _, c := range candidates {
			name := c.Name
			if name == "" {
				name = "(no name yet)"
			}
			score := "-"
			if c.Score != nil {
				score = fmt.Sprintf("%d", *c.Score)
			}
			fmt.Printf("%s  %-15s  score %-4s %s\n",
				colorize(colorCyan, c.ID[:8]),
				c.Status,
				score,
				colorize(colorBold, name),
			)
			if c.Summary != "" {
				summary := c.Summary
				if len(summary) > 120 {
					summary = summary[:120] + "..."
				}
				fmt.Printf("          %s\n", summary)
			}
		}
		return nil
	},
}

// --- transcript ---

var transcriptCmd = &cobra.Command{
	Use:   "transcript <session-id>",
	Short: "Show a session's chat transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := client.get(ctx, "/sessions/"+args[0]+"/transcript")
		if err != nil {
			return err
		}

		var messages []struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			CreatedAt string `json:"createdAt"`
			Meta      struct {
				Type  string `json:"type"`
				Score *int   `json:"score"`
			} `json:"meta"`
		}
		if err := decodeJSON(resp, &messages); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(messages)
		}

		for _, m := range messages {
			label := m.Role
			if m.Meta.Type != "" {
				label = fmt.Sprintf("%s/%s", m.Role, m.Meta.Type)
			}
			fmt.Printf("%s %s\n", colorize(colorBold, "["+label+"]"), m.Content)
			if m.Meta.Score != nil {
				fmt.Printf("  %s\n", colorize(colorYellow, fmt.Sprintf("score: %d", *m.Meta.Score)))
			}
		}
		return nil
	},
}

var transcriptDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session's chat transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete the transcript permanently. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := client.delete(ctx, "/sessions/"+args[0]+"/transcript")
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Transcript deleted")
		return nil
	},
}

func init() {
	transcriptCmd.Flags().Bool("json", false, "output raw JSON")
	transcriptDeleteCmd.Flags().Bool("confirm", false, "confirm transcript deletion")
	transcriptCmd.AddCommand(transcriptDeleteCmd)
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
