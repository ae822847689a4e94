package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openclaw/memoryd/internal/apperr"
)

// InsertAgent inserts a new agent credential record.
func (c *Client) InsertAgent(ctx context.Context, a *Agent) error {
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO memory_agents (id, name, description, api_key_hash, api_key_preview, access_level, is_active, created_at)
		VALUES (:id, :name, :description, :api_key_hash, :api_key_preview, :access_level, :is_active, :created_at)
	`, a)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "insert agent", err)
	}
	return nil
}

// GetAgentByKeyHash looks up an active agent by its stored key digest.
func (c *Client) GetAgentByKeyHash(ctx context.Context, keyHash string) (*Agent, error) {
	var a Agent
	err := c.db.GetContext(ctx, &a,
		`SELECT * FROM memory_agents WHERE api_key_hash = $1 AND is_active = TRUE`, keyHash)
	if err == sql.ErrNoRows {
		return nil, apperr.E(apperr.KindAuth, "invalid API key")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "agent lookup", err)
	}
	return &a, nil
}

// GetAgent returns an agent by id.
func (c *Client) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	err := c.db.GetContext(ctx, &a, `SELECT * FROM memory_agents WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.Ef(apperr.KindNotFound, "agent %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "get agent", err)
	}
	return &a, nil
}

// ListAgents returns all agents, newest first.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	out := []Agent{}
	err := c.db.SelectContext(ctx, &out,
		`SELECT * FROM memory_agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list agents", err)
	}
	return out, nil
}

// TouchAgentLastUsed updates last_used; callers fire this asynchronously.
func (c *Client) TouchAgentLastUsed(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE memory_agents SET last_used = NOW() WHERE id = $1`, id)
	return err
}

// UpdateAgent applies a partial update to the mutable agent fields.
// Nil pointers leave the column untouched.
func (c *Client) UpdateAgent(ctx context.Context, id string, active *bool, accessLevel *string) error {
	set := ""
	args := []interface{}{id}
	idx := 2
	if active != nil {
		set += fmt.Sprintf("is_active = $%d", idx)
		args = append(args, *active)
		idx++
	}
	if accessLevel != nil {
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("access_level = $%d", idx)
		args = append(args, *accessLevel)
		idx++
	}
	if set == "" {
		return nil
	}

	res, err := c.db.ExecContext(ctx,
		`UPDATE memory_agents SET `+set+` WHERE id = $1`, args...)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update agent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "agent %s not found", id)
	}
	return nil
}

// SetAgentActive flips the active flag. Deactivated keys stop
// authenticating immediately.
func (c *Client) SetAgentActive(ctx context.Context, id string, active bool) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE memory_agents SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "update agent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Ef(apperr.KindNotFound, "agent %s not found", id)
	}
	return nil
}
