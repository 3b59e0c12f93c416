package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sirta-ingest",
		Short:         "Bulk ingest tool for resolution and route spreadsheets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newProcessCmd())
	cmd.AddCommand(newTemplateCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}
