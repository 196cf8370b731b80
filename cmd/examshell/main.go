package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "examshell",
		Short:         "Session integrity and policy mediation for the exam browser",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		runCmd(),
		keysCmd(),
		policyCmd(),
	)
	return root
}
