package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/convo-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's memories",
		Long:  "List a user's memories, oldest first. Narrow by exact topic with --topic or by topic prefix with --prefix.",
		Run:   runList,
	}

	cmd.Flags().StringP("user", "u", "", "User id (required)")
	cmd.Flags().StringP("topic", "t", "", "Only memories tagged with this topic")
	cmd.Flags().String("prefix", "", "Only memories with a topic starting with this prefix")

	cmd.MarkFlagRequired("user")
	cmd.MarkFlagsMutuallyExclusive("topic", "prefix")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")
	topic, _ := cmd.Flags().GetString("topic")
	prefix, _ := cmd.Flags().GetString("prefix")

	svc, done := openService(cmd)
	defer done()

	var (
		recs []model.MemoryRecord
		err  error
	)
	switch {
	case topic != "":
		recs, err = svc.GetMemoriesByTopic(cmd.Context(), user, topic)
	case prefix != "":
		recs, err = svc.GetMemoriesByTopicPrefix(cmd.Context(), user, prefix)
	default:
		recs, err = svc.GetMemories(cmd.Context(), user)
	}
	if err != nil {
		exitErr("list", err)
	}
	if recs == nil {
		recs = []model.MemoryRecord{}
	}
	printJSON(recs)
}
