package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/inspirepan/cadagent/internal/history"
	"github.com/inspirepan/cadagent/transcript"
)

var sessionsExportDir string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored chat sessions",
	Long: `List, export and delete stored chat sessions.

Subcommands:
  list     - list all sessions
  export   - write a session as JSON and Markdown
  delete   - remove a session`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		w := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(w, "No saved sessions found.")
			return nil
		}
		fmt.Fprintln(w, strings.Repeat("─", 60))
		for _, s := range list {
			fmt.Fprintf(w, "%s  %s  %3d msgs  %s\n",
				s.ID, s.UpdatedAt.Format("2006-01-02 15:04"), s.Messages, s.Title)
		}
		fmt.Fprintln(w, strings.Repeat("─", 60))
		fmt.Fprintf(w, "Total: %d sessions\n", len(list))
		return nil
	},
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session as JSON and Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		msgs, err := store.Messages(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		files, err := transcript.Export(sessionsExportDir, "chat_history", msgs, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nWrote %s\n", files.JSON, files.Markdown)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	sessionsExportCmd.Flags().StringVarP(&sessionsExportDir, "dir", "d", ".", "output directory")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsExportCmd, sessionsDeleteCmd)
}
