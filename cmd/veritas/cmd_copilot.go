package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"veritas/internal/copilot"
	"veritas/internal/logging"
)

func (a *app) conversation(claimID string) *copilot.Conversation {
	conv := copilot.New(a.client, a.live.User.FirstName, copilot.WithLogger(logging.New("copilot")))
	conv.Select(claimID)
	return conv
}

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <claim-id> <question...>",
		Short: "Ask the investigation co-pilot one question about a claim",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			conv := a.conversation(args[0])
			reply, err := conv.Ask(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				if reply.Text != "" {
					return errors.New(reply.Text)
				}
				return err
			}
			if a.flags.output == "json" {
				convID, parentID := conv.IDs()
				return a.render(cmd.OutOrStdout(), map[string]string{
					"answer":            reply.Text,
					"conversation_id":   convID,
					"parent_message_id": parentID,
				}, nil)
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
			return nil
		},
	}
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <claim-id>",
		Short: "Talk to the investigation co-pilot about a claim",
		Long: "Start an interactive conversation. Each line is sent as a question;\n" +
			"the conversation continues from the previous answer.\n\n" +
			"  /claim <id>   switch to another claim (starts a new conversation)\n" +
			"  /quit         leave",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			return chat(cmd, a.conversation(args[0]))
		},
	}
}

// chat runs the line-oriented loop until /quit or end of input. Failed
// questions are shown inline and the loop continues.
func chat(cmd *cobra.Command, conv *copilot.Conversation) error {
	out := cmd.OutOrStdout()
	for _, m := range conv.Transcript() {
		fmt.Fprintf(out, "copilot> %s\n", m.Text)
	}
	prompt(out, conv)

	sc := bufio.NewScanner(cmd.InOrStdin())
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		fields := strings.Fields(line)
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return nil
		case fields[0] == "/claim":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: /claim <id>")
				break
			}
			conv.Select(fields[1])
			fmt.Fprintf(out, "Now investigating claim %s.\n", fields[1])
		case strings.HasPrefix(line, "/"):
			fmt.Fprintf(out, "unknown command %s (try /claim <id> or /quit)\n", fields[0])
		default:
			reply, err := conv.Ask(cmd.Context(), line)
			switch {
			case err == nil:
				fmt.Fprintf(out, "copilot> %s\n", reply.Text)
			case reply.Sender == copilot.SenderError:
				fmt.Fprintf(out, "error> %s\n", reply.Text)
			default:
				fmt.Fprintf(out, "error> %v\n", err)
			}
		}
		prompt(out, conv)
	}
	return sc.Err()
}

func prompt(w io.Writer, conv *copilot.Conversation) {
	fmt.Fprintf(w, "[%s] you> ", conv.ClaimID())
}
