package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/convo-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "summary <session>",
		Short: "Show or delete a session summary",
		Args:  cobra.ExactArgs(1),
		Run:   runSummary,
	}

	cmd.Flags().Bool("delete", false, "Delete the summary instead of showing it")

	RootCmd.AddCommand(cmd)
}

type summaryOutput struct {
	State   model.SessionState    `json:"state"`
	Summary *model.SessionSummary `json:"summary"`
}

func runSummary(cmd *cobra.Command, args []string) {
	del, _ := cmd.Flags().GetBool("delete")

	svc, done := openService(cmd)
	defer done()

	if del {
		if err := svc.DeleteSummary(cmd.Context(), args[0]); err != nil {
			exitErr("delete summary", err)
		}
		printJSON(summaryOutput{State: model.SessionEmpty})
		return
	}

	sum, err := svc.GetSummary(cmd.Context(), args[0])
	if err != nil {
		exitErr("summary", err)
	}
	out := summaryOutput{State: model.SessionEmpty, Summary: sum}
	if sum != nil {
		out.State = model.SessionActive
	}
	printJSON(out)
}
