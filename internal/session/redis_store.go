package session

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"trid/internal/identity"
)

const redisKeyPrefix = "trid:session:"

// RedisStore keeps each session as a flat hash that Redis expires on its own.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a store on top of an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Load reads the hash stored under keyHash.
func (s *RedisStore) Load(ctx context.Context, keyHash string) (identity.Identity, bool, error) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+keyHash).Result()
	if err != nil {
		return identity.Identity{}, false, err
	}
	if len(fields) == 0 {
		return identity.Identity{}, false, nil
	}

	return identity.Identity{
		Email:        fields["email"],
		FullName:     fields["fullName"],
		Roles:        splitRoles(fields["roles"]),
		AccessToken:  fields["accessToken"],
		RefreshToken: fields["refreshToken"],
	}, true, nil
}

// Save replaces the hash inside a MULTI/EXEC so no partially written hash is visible.
func (s *RedisStore) Save(ctx context.Context, keyHash string, id identity.Identity, expiresAt time.Time) error {
	key := redisKeyPrefix + keyHash
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			"email":        id.Email,
			"fullName":     id.FullName,
			"roles":        strings.Join(id.Roles, ","),
			"accessToken":  id.AccessToken,
			"refreshToken": id.RefreshToken,
		})
		pipe.ExpireAt(ctx, key, expiresAt)
		return nil
	})
	return err
}

// Delete removes the hash.
func (s *RedisStore) Delete(ctx context.Context, keyHash string) error {
	return s.client.Del(ctx, redisKeyPrefix+keyHash).Err()
}

// DeleteExpired is a no-op: Redis evicts expired keys itself.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func splitRoles(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
