package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/stream"
)

func newChatCmd(a *app) *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message, or start an interactive session with no arguments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) > 0 {
				_, err := runTurn(a, cmd, strings.Join(args, " "), conversationID)
				return err
			}

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprintln(cmd.OutOrStdout(), "agentdesk chat (empty line to exit)")
			for {
				fmt.Fprint(cmd.OutOrStdout(), "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					return nil
				}
				convID, err := runTurn(a, cmd, line, conversationID)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					continue
				}
				conversationID = convID
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")
	return cmd
}

func runTurn(a *app, cmd *cobra.Command, text, conversationID string) (string, error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, convID, err := a.desk.RouteAndRun(ctx, []core.Message{core.UserMessage(text)}, a.uc, conversationID)
	if err != nil {
		return "", err
	}

	var approvals []core.ApprovalRequired
	for ev := range st.Events() {
		switch e := ev.(type) {
		case stream.Handoff:
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", e.Decision.TargetAgent, e.Decision.Reason)
		case stream.TextDelta:
			fmt.Fprint(out, e.Text)
		case stream.ToolCallBegin:
			fmt.Fprintf(cmd.ErrOrStderr(), "[tool %s]\n", e.Name)
		case stream.ToolProgress:
			fmt.Fprintf(cmd.ErrOrStderr(), "[tool %s: %s]\n", e.Name, e.Progress.Stage)
		case stream.ToolResult:
			if ar, ok := e.Outcome.(core.ApprovalRequired); ok {
				approvals = append(approvals, ar)
			}
		}
	}
	fmt.Fprintln(out)

	if err := st.Err(); err != nil {
		return convID, err
	}
	for _, ar := range approvals {
		fmt.Fprintf(out, "\nDraft staged: %s\n  %s\n  approve with: agentdesk approvals approve %s\n",
			ar.Action, ar.Summary, ar.ApprovalID)
	}
	usage := st.Usage()
	if usage.TotalTokens > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "[conversation %s, %d tokens]\n", convID, usage.TotalTokens)
	}
	return convID, nil
}
