package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/openfolio/identity/pkg/config"
)

const keyPrefix = "folio:session:"

// Store holds per-session values in a Redis hash per session id. Values
// expire with the session timeout, refreshed on every write.
type Store struct {
	client  *redis.Client
	timeout time.Duration
}

// NewStore creates a session store from the Redis configuration.
func NewStore(cfg config.RedisConfig, timeout time.Duration) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	return &Store{client: client, timeout: timeout}
}

// NewStoreWithClient wraps an existing Redis client, used by tests.
func NewStoreWithClient(client *redis.Client, timeout time.Duration) *Store {
	return &Store{client: client, timeout: timeout}
}

// Ping verifies connectivity to the session backend.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping session store: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

// SetValue writes one session value and refreshes the session expiry.
func (s *Store) SetValue(ctx context.Context, sessionID, field, value string) error {
	k := key(sessionID)
	if err := s.client.HSet(ctx, k, field, value).Err(); err != nil {
		return fmt.Errorf("failed to write session value %q: %w", field, err)
	}
	return s.touch(ctx, k)
}

// SetValues writes a batch of session values and refreshes the expiry.
func (s *Store) SetValues(ctx context.Context, sessionID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	k := key(sessionID)
	args := make([]interface{}, 0, len(values)*2)
	for field, value := range values {
		args = append(args, field, value)
	}
	if err := s.client.HSet(ctx, k, args...).Err(); err != nil {
		return fmt.Errorf("failed to write session values: %w", err)
	}
	return s.touch(ctx, k)
}

// Value reads one session value. A missing field reads as the empty string.
func (s *Store) Value(ctx context.Context, sessionID, field string) (string, error) {
	v, err := s.client.HGet(ctx, key(sessionID), field).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session value %q: %w", field, err)
	}
	return v, nil
}

// Values reads all values of a session.
func (s *Store) Values(ctx context.Context, sessionID string) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session values: %w", err)
	}
	return values, nil
}

// DeleteValues removes the named fields from the session.
func (s *Store) DeleteValues(ctx context.Context, sessionID string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, key(sessionID), fields...).Err(); err != nil {
		return fmt.Errorf("failed to delete session values: %w", err)
	}
	return nil
}

// ClearPrefix removes every session field whose name starts with prefix,
// e.g. the viewaccess: grants cleared at logout.
func (s *Store) ClearPrefix(ctx context.Context, sessionID, prefix string) error {
	fields, err := s.client.HKeys(ctx, key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list session fields: %w", err)
	}
	var matched []string
	for _, field := range fields {
		if strings.HasPrefix(field, prefix) {
			matched = append(matched, field)
		}
	}
	return s.DeleteValues(ctx, sessionID, matched...)
}

// Migrate moves a session's values under a new session id, used for the
// fixation-defense id regeneration at login. Migrating a session with no
// stored values is a no-op.
func (s *Store) Migrate(ctx context.Context, oldID, newID string) error {
	exists, err := s.client.Exists(ctx, key(oldID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session existence: %w", err)
	}
	if exists == 0 {
		return nil
	}
	if err := s.client.Rename(ctx, key(oldID), key(newID)).Err(); err != nil {
		return fmt.Errorf("failed to migrate session: %w", err)
	}
	return s.touch(ctx, key(newID))
}

// Destroy removes the whole session.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// Touch refreshes the session expiry without writing a value.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	return s.touch(ctx, key(sessionID))
}

func (s *Store) touch(ctx context.Context, k string) error {
	if err := s.client.Expire(ctx, k, s.timeout).Err(); err != nil {
		return fmt.Errorf("failed to refresh session expiry: %w", err)
	}
	return nil
}
