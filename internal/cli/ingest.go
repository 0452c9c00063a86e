package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/convo-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [turn]",
		Short: "Extract facts from a turn and fold it into the session summary",
		Run:   runIngest,
	}

	cmd.Flags().StringP("user", "u", "", "User id (required)")
	cmd.Flags().StringP("session", "s", "", "Session id (required)")
	cmd.Flags().String("agent", "", "Agent that handled the turn")

	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("session")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")
	session, _ := cmd.Flags().GetString("session")
	agent, _ := cmd.Flags().GetString("agent")

	text := strings.TrimSpace(readContent(args))
	if text == "" {
		exitErr("ingest", fmt.Errorf("turn text is required (positional arg or stdin)"))
	}

	svc, done := openService(cmd)
	defer done()

	res, err := svc.Ingest(cmd.Context(), model.Turn{UserID: user, SessionID: session, AgentID: agent, Text: text})
	if err != nil {
		exitErr("ingest", err)
	}
	printJSON(res)
}
