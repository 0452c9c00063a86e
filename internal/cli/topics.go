package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/convo-memory/internal/dedup"
)

func init() {
	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "List indexed topics",
		Run:   runTopics,
	}

	setCmd := &cobra.Command{
		Use:   "set <id> <topics>",
		Short: "Replace a memory's topics",
		Long:  "Replace a memory's topics. Topics are a comma list or a JSON array; an empty string clears them.",
		Args:  cobra.ExactArgs(2),
		Run:   runTopicsSet,
	}
	setCmd.Flags().StringP("user", "u", "", "User id (required)")
	setCmd.MarkFlagRequired("user")

	topicsCmd.AddCommand(setCmd)
	RootCmd.AddCommand(topicsCmd)
}

func runTopics(cmd *cobra.Command, args []string) {
	svc, done := openService(cmd)
	defer done()

	printJSON(svc.Topics())
}

func runTopicsSet(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")

	svc, done := openService(cmd)
	defer done()

	rec, err := svc.UpdateTopics(cmd.Context(), user, args[0], dedup.ParseTopics(args[1]))
	if err != nil {
		exitErr("set topics", err)
	}
	printJSON(rec)
}
