package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Session helpers",
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Print a fresh session id",
		Run:   runSessionNew,
	}

	sessionCmd.AddCommand(newCmd)
	RootCmd.AddCommand(sessionCmd)
}

func runSessionNew(cmd *cobra.Command, args []string) {
	printJSON(map[string]string{"session_id": uuid.NewString()})
}
