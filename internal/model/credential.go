package model

import "time"

// APICredential is a bearer credential for the public ingestion API. Only
// the salted hash of the secret is stored.
type APICredential struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"keyHash"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
}

// Active reports whether the credential has not been revoked.
func (c *APICredential) Active() bool {
	return c.RevokedAt == nil
}

// View strips the hash for API responses.
func (c *APICredential) View() APIKeyView {
	return APIKeyView{
		ID:         c.ID,
		Name:       c.Name,
		Prefix:     c.Prefix,
		CreatedAt:  c.CreatedAt,
		LastUsedAt: c.LastUsedAt,
		RevokedAt:  c.RevokedAt,
	}
}

type APIKeyView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
}
