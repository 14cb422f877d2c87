package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danmuck/provectl/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "provectl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "provectl",
		Short:         "Proving worker for program execution, fee estimation and transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.ConfigureRuntime()
		},
	}
	root.AddCommand(
		serveCommand(),
		execCommand(),
		estimateDeployCommand(),
		keygenCommand(),
		callCommand(),
	)
	return root
}
