package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
)

const approvalCols = "org_id, id, user_id, conversation_id, action, agent, draft, diff_before, diff_after, status, created_at, expires_at, reviewed_by, applied_by"

// Approvals is the approval-store view of a Store.
type Approvals struct {
	s *Store
}

// Approvals returns the approval.Store implementation backed by this database.
func (s *Store) Approvals() *Approvals { return &Approvals{s: s} }

// Stage implements approval.Store.
func (v *Approvals) Stage(ctx context.Context, rec *core.ApprovalRecord) error {
	var before, after any
	if rec.Diff != nil {
		if len(rec.Diff.Before) > 0 {
			before = string(rec.Diff.Before)
		}
		if len(rec.Diff.After) > 0 {
			after = string(rec.Diff.After)
		}
	}
	_, err := v.s.db.ExecContext(ctx,
		`INSERT INTO approvals (`+approvalCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '')`,
		rec.OrganizationID, rec.ID, rec.UserID, rec.ConversationID, rec.Action, rec.Agent,
		string(rec.Draft), before, after, string(rec.Status),
		fmtTime(rec.CreatedAt), fmtTime(rec.ExpiresAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return &core.ConflictError{Entity: "approval", ID: rec.ID}
	}
	return err
}

func scanApproval(scan func(dest ...any) error) (*core.ApprovalRecord, error) {
	var rec core.ApprovalRecord
	var draft, status, created, expires string
	var before, after sql.NullString
	err := scan(&rec.OrganizationID, &rec.ID, &rec.UserID, &rec.ConversationID,
		&rec.Action, &rec.Agent, &draft, &before, &after, &status,
		&created, &expires, &rec.ReviewedBy, &rec.AppliedBy)
	if err != nil {
		return nil, err
	}
	rec.Draft = json.RawMessage(draft)
	rec.Status = core.ApprovalStatus(status)
	rec.CreatedAt = parseTime(created)
	rec.ExpiresAt = parseTime(expires)
	if before.Valid || after.Valid {
		rec.Diff = &core.Diff{}
		if before.Valid {
			rec.Diff.Before = json.RawMessage(before.String)
		}
		if after.Valid {
			rec.Diff.After = json.RawMessage(after.String)
		}
	}
	return &rec, nil
}

// Get implements approval.Store.
func (v *Approvals) Get(ctx context.Context, orgID, id string) (*core.ApprovalRecord, error) {
	row := v.s.db.QueryRowContext(ctx,
		"SELECT "+approvalCols+" FROM approvals WHERE org_id = ? AND id = ?", orgID, id)
	rec, err := scanApproval(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Entity: "approval", ID: id}
	}
	return rec, err
}

// List implements approval.Store.
func (v *Approvals) List(ctx context.Context, orgID string, statuses ...core.ApprovalStatus) ([]*core.ApprovalRecord, error) {
	query := "SELECT " + approvalCols + " FROM approvals WHERE org_id = ?"
	args := []any{orgID}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at DESC"

	rows, err := v.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.ApprovalRecord
	for rows.Next() {
		rec, err := scanApproval(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetStatus implements approval.Store.
func (v *Approvals) SetStatus(ctx context.Context, orgID, id string, status core.ApprovalStatus, reviewedBy string) error {
	res, err := v.s.db.ExecContext(ctx,
		"UPDATE approvals SET status = ?, reviewed_by = ? WHERE org_id = ? AND id = ?",
		string(status), reviewedBy, orgID, id)
	if err != nil {
		return err
	}
	return requireRow(res, "approval", id)
}

// Apply implements approval.Store: the domain mutations and the transition to
// applied commit in one SQLite transaction.
func (v *Approvals) Apply(ctx context.Context, orgID, id, appliedBy string, mutate func(tx domain.Tx) error) error {
	return v.s.withTx(ctx, func(tx *sql.Tx) error {
		if err := mutate(&domainTx{tx: tx}); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE approvals SET status = ?, applied_by = ? WHERE org_id = ? AND id = ?",
			string(core.StatusApplied), appliedBy, orgID, id)
		if err != nil {
			return err
		}
		return requireRow(res, "approval", id)
	})
}
