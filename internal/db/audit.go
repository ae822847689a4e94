package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InsertAudit appends one audit record. Append-only; records are never
// updated or deleted.
func (c *Client) InsertAudit(ctx context.Context, rec *AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO memory_audit_log (id, agent_id, action, resource_type, resource_id, details_json, timestamp)
		VALUES (:id, :agent_id, :action, :resource_type, :resource_id, :details_json, :timestamp)
	`, rec)
	return err
}

// Audit writes an audit record after the primary operation committed.
// Failures are logged and never propagate to the caller.
func (c *Client) Audit(ctx context.Context, agentID, action string, resourceType, resourceID string, details JSONB) {
	rec := &AuditRecord{
		AgentID: agentID,
		Action:  action,
		Details: details,
	}
	if resourceType != "" {
		rec.ResourceType = &resourceType
	}
	if resourceID != "" {
		rec.ResourceID = &resourceID
	}
	if err := c.InsertAudit(ctx, rec); err != nil {
		c.logger.Error("Audit write failed",
			zap.String("agent_id", agentID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// ListAuditRecords returns recent audit records for the admin surface.
func (c *Client) ListAuditRecords(ctx context.Context, limit, offset int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	out := []AuditRecord{}
	err := c.db.SelectContext(ctx, &out,
		`SELECT * FROM memory_audit_log ORDER BY timestamp DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	return out, err
}
