package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/convo-memory/internal/codec"
	"github.com/rcliao/convo-memory/internal/dedup"
	"github.com/rcliao/convo-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [fact]",
		Short: "Store a fact about a user",
		Long: "Submit a fact about a user. It is inserted, merged into an overlapping fact, or skipped as a duplicate. " +
			"The fact can be a positional arg or piped via stdin. With --batch, stdin holds a JSON array of candidates.",
		Run: runRemember,
	}

	cmd.Flags().StringP("user", "u", "", "User id (required)")
	cmd.Flags().StringP("topics", "t", "", "Topics as a comma list or JSON array")
	cmd.Flags().StringP("session", "s", "", "Session the fact came from")
	cmd.Flags().String("agent", "", "Agent that observed the fact")
	cmd.Flags().Bool("batch", false, "Read a JSON array of candidates from stdin")

	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")
	topics, _ := cmd.Flags().GetString("topics")
	session, _ := cmd.Flags().GetString("session")
	agent, _ := cmd.Flags().GetString("agent")
	batch, _ := cmd.Flags().GetBool("batch")

	if batch {
		var cands []model.Candidate
		if err := codec.Decode(os.Stdin, &cands); err != nil {
			exitErr("parse candidates", err)
		}
		svc, done := openService(cmd)
		defer done()
		res, err := svc.RememberBatch(cmd.Context(), user, cands)
		if err != nil {
			exitErr("remember batch", err)
		}
		printJSON(res)
		return
	}

	text := strings.TrimSpace(readContent(args))
	if text == "" {
		exitErr("remember", fmt.Errorf("fact is required (positional arg or stdin)"))
	}

	svc, done := openService(cmd)
	defer done()

	res, err := svc.Remember(cmd.Context(), user, model.Candidate{
		Text:      text,
		Topics:    dedup.ParseTopics(topics),
		SessionID: session,
		AgentID:   agent,
	})
	if err != nil {
		exitErr("remember", err)
	}
	printJSON(res)
}
