package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/convo-memory/internal/dedup"
	"github.com/rcliao/convo-memory/internal/query"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Assemble prompt context for a user and session",
		Long:  "Returns the session summary plus the user's most relevant memories, packed into a character budget.",
		Run:   runContext,
	}

	cmd.Flags().StringP("user", "u", "", "User id (required)")
	cmd.Flags().StringP("session", "s", "", "Session whose summary leads the context")
	cmd.Flags().StringP("topics", "t", "", "Prefer memories with these topics (comma list or JSON array)")
	cmd.Flags().IntP("budget", "b", query.DefaultContextBudget, "Character budget")

	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")
	session, _ := cmd.Flags().GetString("session")
	topics, _ := cmd.Flags().GetString("topics")
	budget, _ := cmd.Flags().GetInt("budget")

	svc, done := openService(cmd)
	defer done()

	res, err := svc.Context(cmd.Context(), query.ContextParams{
		UserID:    user,
		SessionID: session,
		Topics:    dedup.ParseTopics(topics),
		Budget:    budget,
	})
	if err != nil {
		exitErr("context", err)
	}
	printJSON(res)
}
