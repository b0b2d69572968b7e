package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/session"
)

// Sessions is the conversation-store view of a Store.
type Sessions struct {
	s *Store
}

// Sessions returns the session.Store implementation backed by this database.
func (s *Store) Sessions() *Sessions { return &Sessions{s: s} }

// Create implements session.Store.
func (v *Sessions) Create(ctx context.Context, uc core.UserContext, id string) (*core.ConversationRecord, error) {
	rec := session.NewRecord(uc, id)
	_, err := v.s.db.ExecContext(ctx,
		`INSERT INTO conversations (org_id, id, user_id, active_agent, agent_history, messages, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, '', '[]', '[]', '{}', ?, ?)`,
		rec.OrganizationID, rec.ID, rec.UserID, fmtTime(rec.CreatedAt), fmtTime(rec.UpdatedAt))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get implements session.Store.
func (v *Sessions) Get(ctx context.Context, orgID, id string) (*core.ConversationRecord, error) {
	row := v.s.db.QueryRowContext(ctx,
		`SELECT org_id, id, user_id, active_agent, agent_history, messages, metadata, created_at, updated_at
		 FROM conversations WHERE org_id = ? AND id = ?`, orgID, id)

	var rec core.ConversationRecord
	var history, messages, metadata, created, updated string
	err := row.Scan(&rec.OrganizationID, &rec.ID, &rec.UserID, &rec.ActiveAgent,
		&history, &messages, &metadata, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Entity: "conversation", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(history), &rec.AgentHistory); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}

// AppendMessages implements session.Store.
func (v *Sessions) AppendMessages(ctx context.Context, orgID, id string, msgs ...core.Message) error {
	return v.s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		row := tx.QueryRowContext(ctx,
			"SELECT messages FROM conversations WHERE org_id = ? AND id = ?", orgID, id)
		if err := row.Scan(&raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &core.NotFoundError{Entity: "conversation", ID: id}
			}
			return err
		}
		var existing []core.Message
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return err
		}
		existing = append(existing, msgs...)
		updated, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE conversations SET messages = ?, updated_at = ? WHERE org_id = ? AND id = ?",
			string(updated), fmtTime(time.Now()), orgID, id)
		return err
	})
}

// SetActiveAgent implements session.Store.
func (v *Sessions) SetActiveAgent(ctx context.Context, orgID, id string, agent string) error {
	return v.s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		row := tx.QueryRowContext(ctx,
			"SELECT agent_history FROM conversations WHERE org_id = ? AND id = ?", orgID, id)
		if err := row.Scan(&raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &core.NotFoundError{Entity: "conversation", ID: id}
			}
			return err
		}
		var history []string
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return err
		}
		history = append(history, agent)
		updated, err := json.Marshal(history)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE conversations SET active_agent = ?, agent_history = ?, updated_at = ? WHERE org_id = ? AND id = ?",
			agent, string(updated), fmtTime(time.Now()), orgID, id)
		return err
	})
}

// SetMetadata implements session.Store.
func (v *Sessions) SetMetadata(ctx context.Context, orgID, id string, md map[string]string) error {
	return v.s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		row := tx.QueryRowContext(ctx,
			"SELECT metadata FROM conversations WHERE org_id = ? AND id = ?", orgID, id)
		if err := row.Scan(&raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &core.NotFoundError{Entity: "conversation", ID: id}
			}
			return err
		}
		existing := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return err
		}
		for k, v := range md {
			existing[k] = v
		}
		updated, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE conversations SET metadata = ?, updated_at = ? WHERE org_id = ? AND id = ?",
			string(updated), fmtTime(time.Now()), orgID, id)
		return err
	})
}
