package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidenhq/aiden/core"
)

func newChatCmd(cfgPath *string) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant from the terminal",
		Long: `Chat sends a single message when one is given as an argument, or starts
an interactive session reading messages from stdin otherwise.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(*cfgPath)
			if err != nil {
				return err
			}

			if sessionID == "" {
				sessionID = core.NewID()
			}

			if len(args) == 1 {
				return runTurn(cmd.Context(), a, sessionID, args[0])
			}

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}
				if err := runTurn(cmd.Context(), a, sessionID, line); err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
				}
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session ID to continue (defaults to a fresh session)")

	return cmd
}

// runTurn streams one assistant turn to stdout, showing tool activity as it
// happens and the response text as it arrives.
func runTurn(ctx context.Context, a *app, sessionID, message string) error {
	events, err := a.loop.Run(ctx, sessionID, message)
	if err != nil {
		return err
	}

	streamed := false
	for ev := range events {
		switch ev.Type {
		case core.EventToolStart:
			fmt.Fprintf(os.Stderr, "[tool %s ...]\n", ev.Name)
		case core.EventLLMChunk:
			streamed = true
			fmt.Print(ev.Content)
		case core.EventFinalResponse:
			if !streamed {
				fmt.Print(ev.Content)
			}
			fmt.Println()
		case core.EventError:
			return fmt.Errorf("%s", ev.Detail)
		}
	}

	return nil
}
