package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve one memory",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	cmd.Flags().StringP("user", "u", "", "User id (required)")
	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")

	svc, done := openService(cmd)
	defer done()

	rec, err := svc.GetMemory(cmd.Context(), user, args[0])
	if err != nil {
		exitErr("get", err)
	}
	printJSON(rec)
}
