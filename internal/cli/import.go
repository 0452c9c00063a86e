package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import memories and summaries from JSON",
		Long:  "Import from a file or stdin. Expects the format produced by export; existing ids are overwritten.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var r io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open import file", err)
		}
		defer f.Close()
		r = f
	}

	svc, done := openService(cmd)
	defer done()

	res, err := svc.Import(cmd.Context(), r)
	if err != nil {
		exitErr("import", err)
	}
	printJSON(res)
}
