package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/metrics"
)

// Service authenticates agent API keys and issues new credentials.
// Raw keys are never stored; only the SHA-256 digest survives creation.
type Service struct {
	store  *db.Client
	logger *zap.Logger
}

// NewService creates an authentication service.
func NewService(store *db.Client, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// ValidateAgentKey resolves a raw API key to an active agent.
// The last_used timestamp is touched asynchronously so validation
// stays on the read path.
func (s *Service) ValidateAgentKey(ctx context.Context, rawKey string) (*db.Agent, error) {
	if rawKey == "" {
		metrics.AuthFailures.WithLabelValues("agent_key").Inc()
		return nil, apperr.E(apperr.KindAuth, "API key is required")
	}

	agent, err := s.store.GetAgentByKeyHash(ctx, hashKey(rawKey))
	if err != nil {
		metrics.AuthFailures.WithLabelValues("agent_key").Inc()
		return nil, err
	}

	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchAgentLastUsed(touchCtx, agent.ID); err != nil {
			s.logger.Warn("Failed to update agent last_used",
				zap.String("agent_id", agent.ID),
				zap.Error(err))
		}
	}()

	return agent, nil
}

// CreateAgent registers a new agent and returns the record together
// with the raw API key. The raw key is shown exactly once.
func (s *Service) CreateAgent(ctx context.Context, name, description, accessLevel string) (*db.Agent, string, error) {
	if name == "" {
		return nil, "", apperr.Field(apperr.KindInput, "name", "name is required")
	}
	if accessLevel == "" {
		accessLevel = db.AccessLevelPrivate
	}

	rawKey, keyHash, err := generateAgentKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate API key: %w", err)
	}

	agent := &db.Agent{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   description,
		APIKeyHash:    keyHash,
		APIKeyPreview: keyPreview(rawKey),
		AccessLevel:   accessLevel,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.InsertAgent(ctx, agent); err != nil {
		return nil, "", err
	}

	s.logger.Info("Agent created",
		zap.String("agent_id", agent.ID),
		zap.String("name", agent.Name),
		zap.String("access_level", agent.AccessLevel))

	return agent, rawKey, nil
}

// DeactivateAgent revokes an agent key. Takes effect on the next
// validation; no sessions exist to invalidate.
func (s *Service) DeactivateAgent(ctx context.Context, agentID string) error {
	if err := s.store.SetAgentActive(ctx, agentID, false); err != nil {
		return err
	}
	s.logger.Info("Agent deactivated", zap.String("agent_id", agentID))
	return nil
}

// generateAgentKey returns a new raw key and its storage digest.
func generateAgentKey() (key, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	key = "mem_" + base64.RawURLEncoding.EncodeToString(b)
	return key, hashKey(key), nil
}

// hashKey creates the SHA-256 digest stored in place of the raw key.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// keyPreview renders the admin-visible hint, e.g. "mem_abc...xyz9".
func keyPreview(key string) string {
	if len(key) < 11 {
		return key
	}
	return key[:7] + "..." + key[len(key)-4:]
}
