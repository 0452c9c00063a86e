package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the topic index from stored memories",
		Run:   runReindex,
	}

	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	svc, done := openService(cmd)
	defer done()

	if err := svc.RebuildIndex(cmd.Context()); err != nil {
		exitErr("reindex", err)
	}
	printJSON(map[string]any{"ok": true, "topics": len(svc.Topics())})
}
