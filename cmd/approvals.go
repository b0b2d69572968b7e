package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/crmforge/agentdesk/approval"
	"github.com/crmforge/agentdesk/core"
)

func newApprovalsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Review, approve and apply staged write drafts",
	}
	cmd.AddCommand(
		newApprovalsListCmd(a),
		newApprovalsShowCmd(a),
		newApprovalsApproveCmd(a),
		newApprovalsRejectCmd(a),
		newApprovalsCancelCmd(a),
		newApprovalsApplyCmd(a),
	)
	return cmd
}

func newApprovalsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending drafts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := a.workflow.ListPending(cmd.Context(), a.uc)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending drafts")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tACTION\tAGENT\tCREATED\tEXPIRES")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Action, r.Agent,
					r.CreatedAt.Format(time.RFC3339),
					r.ExpiresAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newApprovalsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a draft with its diff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.workflow.Get(cmd.Context(), a.uc, args[0])
			if err != nil {
				return err
			}
			return printRecord(cmd, rec)
		},
	}
}

func newApprovalsApproveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.workflow.Approve(cmd.Context(), a.uc, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %s (%s); apply with: agentdesk approvals apply %s\n",
				rec.ID, rec.Action, rec.ID)
			return nil
		},
	}
}

func newApprovalsRejectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.workflow.Reject(cmd.Context(), a.uc, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rejected %s (%s)\n", rec.ID, rec.Action)
			return nil
		},
	}
}

func newApprovalsCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or approved draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.workflow.Cancel(cmd.Context(), a.uc, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s (%s)\n", rec.ID, rec.Action)
			return nil
		},
	}
}

func newApprovalsApplyCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "apply <id>",
		Short: "Apply an approved draft to the CRM data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.workflow.Apply(cmd.Context(), a.uc, args[0], approval.ApplyOptions{Force: force})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s (%s)\n", rec.ID, rec.Action)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip the optimistic version check")
	return cmd
}

func printRecord(cmd *cobra.Command, rec *core.ApprovalRecord) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:       %s\n", rec.ID)
	fmt.Fprintf(out, "action:   %s\n", rec.Action)
	fmt.Fprintf(out, "agent:    %s\n", rec.Agent)
	fmt.Fprintf(out, "status:   %s\n", rec.Status)
	fmt.Fprintf(out, "created:  %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "expires:  %s\n", rec.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(out, "draft:    %s\n", indentJSON(rec.Draft))
	if rec.Diff != nil {
		if len(rec.Diff.Before) > 0 {
			fmt.Fprintf(out, "before:   %s\n", indentJSON(rec.Diff.Before))
		}
		if len(rec.Diff.After) > 0 {
			fmt.Fprintf(out, "after:    %s\n", indentJSON(rec.Diff.After))
		}
	}
	return nil
}

func indentJSON(raw json.RawMessage) string {
	var buf []byte
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	buf, err := json.MarshalIndent(v, "          ", "  ")
	if err != nil {
		return string(raw)
	}
	return string(buf)
}
