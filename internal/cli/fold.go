package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "fold [turn]",
		Short: "Fold a turn into the session summary",
		Run:   runFold,
	}

	cmd.Flags().StringP("user", "u", "", "User id (required)")
	cmd.Flags().StringP("session", "s", "", "Session id (required)")

	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("session")

	RootCmd.AddCommand(cmd)
}

func runFold(cmd *cobra.Command, args []string) {
	user, _ := cmd.Flags().GetString("user")
	session, _ := cmd.Flags().GetString("session")

	text := strings.TrimSpace(readContent(args))
	if text == "" {
		exitErr("fold", fmt.Errorf("turn text is required (positional arg or stdin)"))
	}

	svc, done := openService(cmd)
	defer done()

	sum, err := svc.Fold(cmd.Context(), session, user, text)
	if err != nil {
		exitErr("fold", err)
	}
	printJSON(sum)
}
