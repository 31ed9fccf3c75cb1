// Command mindatlasctl is a thin CLI client for MindAtlas's HTTP API,
// mirrored on the memory service's own memoryctl: one root command, one
// subcommand per REST operation worth scripting from a terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var apiFlag string

var rootCmd = &cobra.Command{
	Use:   "mindatlasctl",
	Short: "CLI client for MindAtlas's HTTP API",
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "MindAtlas server base URL")

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Run a retrieval query against the knowledge graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, _ := cmd.Flags().GetString("query")
			mode, _ := cmd.Flags().GetString("mode")
			topK, _ := cmd.Flags().GetInt("topk")
			if q == "" {
				return fmt.Errorf("--query is required")
			}
			return runQuery(apiFlag, q, mode, topK, os.Stdout)
		},
	}
	queryCmd.Flags().StringP("query", "q", "", "Query text (required)")
	queryCmd.Flags().String("mode", "hybrid", "Retrieval mode: naive|local|global|hybrid|mix")
	queryCmd.Flags().IntP("topk", "k", 10, "Number of sources to retrieve")
	rootCmd.AddCommand(queryCmd)

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a conversation and send one message, printing the SSE stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, _ := cmd.Flags().GetString("message")
			if msg == "" {
				return fmt.Errorf("--message is required")
			}
			return runChat(apiFlag, msg, os.Stdout)
		},
	}
	chatCmd.Flags().StringP("message", "m", "", "Message to send (required)")
	rootCmd.AddCommand(chatCmd)

	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay dead-lettered entry outbox rows",
	}

	outboxLSCmd := &cobra.Command{
		Use:   "ls",
		Short: "List dead entry_index_outbox rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runOutboxLS(apiFlag, limit, os.Stdout)
		},
	}
	outboxLSCmd.Flags().Int("limit", 50, "Maximum number of dead rows to list")
	outboxCmd.AddCommand(outboxLSCmd)

	outboxRequeueCmd := &cobra.Command{
		Use:   "requeue <id>",
		Short: "Force a dead outbox row back to pending for a fresh attempt cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid outbox row id %q: %w", args[0], err)
			}
			return runOutboxRequeue(apiFlag, id, os.Stdout)
		},
	}
	outboxCmd.AddCommand(outboxRequeueCmd)
	rootCmd.AddCommand(outboxCmd)

	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect and trigger weekly/monthly AI reports",
	}
	reportsLatestCmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent report for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			period, _ := cmd.Flags().GetString("period")
			return runReportsLatest(apiFlag, period, os.Stdout)
		},
	}
	reportsLatestCmd.Flags().String("period", "weekly", "Report period: weekly|monthly")
	reportsCmd.AddCommand(reportsLatestCmd)

	reportsGenerateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the weekly report (week starting at the latest Monday before today) or the previous month's report",
		RunE: func(cmd *cobra.Command, args []string) error {
			period, _ := cmd.Flags().GetString("period")
			return runReportsGenerate(apiFlag, period, os.Stdout)
		},
	}
	reportsGenerateCmd.Flags().String("period", "weekly", "Report period: weekly|monthly")
	reportsCmd.AddCommand(reportsGenerateCmd)
	rootCmd.AddCommand(reportsCmd)

	skillsCmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect the assistant skill catalogue",
	}
	skillsLSCmd := &cobra.Command{
		Use:   "ls",
		Short: "List the merged system and DB skill catalogue the router sees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkillsLS(apiFlag, os.Stdout)
		},
	}
	skillsCmd.AddCommand(skillsLSCmd)
	rootCmd.AddCommand(skillsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
