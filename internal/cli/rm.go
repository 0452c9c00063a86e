package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	cmd.Flags().StringP("user", "u", "", "User id (required)")
	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")

	svc, done := openService(cmd)
	defer done()

	if err := svc.DeleteMemory(cmd.Context(), user, args[0]); err != nil {
		exitErr("rm", err)
	}
	printJSON(map[string]any{"ok": true, "deleted": args[0]})
}
