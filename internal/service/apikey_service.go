package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prreel/api/internal/auth"
	"github.com/prreel/api/internal/logger"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/internal/store"
	"github.com/prreel/api/pkg/errno"
)

// Reasons reported to API clients on a rejected key
const (
	ReasonMissingKey = "Missing API key"
	ReasonBadFormat  = "Invalid API key format"
	ReasonUnknownKey = "Invalid API key"
	ReasonRevoked    = "API key has been revoked"
)

const touchTimeout = 5 * time.Second

// AuthFailure is a rejected API key with a client-facing reason. It
// unwraps to errno.ErrUnauthorized.
type AuthFailure struct {
	Reason string
}

func (e *AuthFailure) Error() string { return e.Reason }
func (e *AuthFailure) Unwrap() error { return errno.ErrUnauthorized }

// APIKeyService issues, lists, revokes and validates API keys
type APIKeyService struct {
	creds     *store.CredentialStore
	salt      string
	maxActive int
	now       func() time.Time
}

func NewAPIKeyService(creds *store.CredentialStore, salt string, maxActive int) *APIKeyService {
	return &APIKeyService{
		creds:     creds,
		salt:      salt,
		maxActive: maxActive,
		now:       time.Now,
	}
}

// Create issues a new key. The plaintext is only ever present in the returned value.
func (s *APIKeyService) Create(ctx context.Context, ownerID, name string) (*model.CreateAPIKeyResponse, error) {
	key, display, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Default"
	}

	cred := &model.APICredential{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		KeyHash:   auth.HashAPIKey(s.salt, key),
		Prefix:    display,
		CreatedAt: s.now(),
	}
	if err := s.creds.CreateWithLimit(ctx, cred, s.maxActive); err != nil {
		return nil, err
	}

	logger.Log.WithFields(map[string]interface{}{"owner": ownerID, "key_id": cred.ID}).Info("api key created")
	return &model.CreateAPIKeyResponse{APIKeyView: cred.View(), Key: key}, nil
}

func (s *APIKeyService) List(ctx context.Context, ownerID string) ([]model.APIKeyView, error) {
	creds, err := s.creds.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	views := make([]model.APIKeyView, 0, len(creds))
	for _, c := range creds {
		views = append(views, c.View())
	}
	return views, nil
}

// Revoke is one-way. Revoking an already revoked key returns it unchanged.
func (s *APIKeyService) Revoke(ctx context.Context, ownerID, keyID string) (*model.APIKeyView, error) {
	cred, err := s.creds.Update(ctx, keyID, func(c *model.APICredential) error {
		if c.OwnerID != ownerID {
			return errno.ErrCredentialNotFound
		}
		if c.RevokedAt == nil {
			now := s.now()
			c.RevokedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := cred.View()
	return &view, nil
}

// Validate resolves a presented key to its active credential. On success
// the last-used timestamp is updated in the background.
func (s *APIKeyService) Validate(ctx context.Context, key string) (*model.APICredential, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, &AuthFailure{Reason: ReasonMissingKey}
	}
	if !auth.WellFormedAPIKey(key) {
		return nil, &AuthFailure{Reason: ReasonBadFormat}
	}

	cred, err := s.creds.FindByHash(ctx, auth.HashAPIKey(s.salt, key))
	if err != nil {
		if errors.Is(err, errno.ErrCredentialNotFound) {
			return nil, &AuthFailure{Reason: ReasonUnknownKey}
		}
		return nil, err
	}
	if !cred.Active() {
		return nil, &AuthFailure{Reason: ReasonRevoked}
	}

	go s.touch(cred.ID)
	return cred, nil
}

func (s *APIKeyService) touch(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()

	_, err := s.creds.Update(ctx, id, func(c *model.APICredential) error {
		now := s.now()
		c.LastUsedAt = &now
		return nil
	})
	if err != nil {
		logger.Log.WithError(err).WithField("key_id", id).Warn("failed to update api key last used")
	}
}
