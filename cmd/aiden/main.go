// Command aiden runs the personal assistant: an HTTP server exposing chat
// and voice endpoints, plus a one-shot chat mode for quick checks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "aiden",
		Short:         "aiden: streaming personal assistant with tools, memory and voice",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file")

	rootCmd.AddCommand(
		newServeCmd(&cfgPath),
		newChatCmd(&cfgPath),
	)

	return rootCmd
}
