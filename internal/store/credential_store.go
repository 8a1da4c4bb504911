package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/pkg/errno"
)

// CredentialStore keeps API credentials in Redis, indexed by id, by key
// hash and by owner.
type CredentialStore struct {
	redis *redis.Client
}

func NewCredentialStore(redisClient *redis.Client) *CredentialStore {
	return &CredentialStore{redis: redisClient}
}

func credentialKey(id string) string    { return fmt.Sprintf("apikey:%s", id) }
func credentialHashKey(h string) string { return fmt.Sprintf("apikey:hash:%s", h) }
func ownerKeysKey(owner string) string  { return fmt.Sprintf("apikeys:owner:%s", owner) }

// CreateWithLimit stores cred unless its owner already holds maxActive
// active credentials. The owner index is watched so two concurrent creates
// cannot both pass the check.
func (s *CredentialStore) CreateWithLimit(ctx context.Context, cred *model.APICredential, maxActive int) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	ownerKey := ownerKeysKey(cred.OwnerID)

	txf := func(tx *redis.Tx) error {
		ids, err := tx.SMembers(ctx, ownerKey).Result()
		if err != nil {
			return err
		}
		creds, err := s.getMany(ctx, tx, ids)
		if err != nil {
			return err
		}
		active := 0
		for _, c := range creds {
			if c.Active() {
				active++
			}
		}
		if maxActive > 0 && active >= maxActive {
			return errno.ErrCredentialLimitReached
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, credentialKey(cred.ID), data, 0)
			pipe.Set(ctx, credentialHashKey(cred.KeyHash), cred.ID, 0)
			pipe.SAdd(ctx, ownerKey, cred.ID)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := s.redis.Watch(ctx, txf, ownerKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("owner %s: too many concurrent key creations", cred.OwnerID)
}

// Update applies fn to the stored credential under optimistic locking
func (s *CredentialStore) Update(ctx context.Context, id string, fn func(cred *model.APICredential) error) (*model.APICredential, error) {
	key := credentialKey(id)
	var updated *model.APICredential

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errno.ErrCredentialNotFound
			}
			return err
		}
		var cred model.APICredential
		if err := json.Unmarshal(data, &cred); err != nil {
			return fmt.Errorf("failed to unmarshal credential: %w", err)
		}
		if err := fn(&cred); err != nil {
			return err
		}
		out, err := json.Marshal(&cred)
		if err != nil {
			return fmt.Errorf("failed to marshal credential: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			updated = &cred
		}
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("credential %s: too many concurrent updates", id)
}

func (s *CredentialStore) Get(ctx context.Context, id string) (*model.APICredential, error) {
	data, err := s.redis.Get(ctx, credentialKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errno.ErrCredentialNotFound
		}
		return nil, err
	}
	var cred model.APICredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

// FindByHash looks up a credential by its key hash
func (s *CredentialStore) FindByHash(ctx context.Context, hash string) (*model.APICredential, error) {
	id, err := s.redis.Get(ctx, credentialHashKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errno.ErrCredentialNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// ListByOwner returns the owner's credentials, newest first
func (s *CredentialStore) ListByOwner(ctx context.Context, ownerID string) ([]*model.APICredential, error) {
	ids, err := s.redis.SMembers(ctx, ownerKeysKey(ownerID)).Result()
	if err != nil {
		return nil, err
	}
	creds, err := s.getMany(ctx, s.redis, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(creds, func(i, j int) bool {
		return creds[i].CreatedAt.After(creds[j].CreatedAt)
	})
	return creds, nil
}

type multiGetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (s *CredentialStore) getMany(ctx context.Context, c multiGetter, ids []string) ([]*model.APICredential, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = credentialKey(id)
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	creds := make([]*model.APICredential, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var cred model.APICredential
		if err := json.Unmarshal([]byte(raw), &cred); err != nil {
			return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
		}
		creds = append(creds, &cred)
	}
	return creds, nil
}
