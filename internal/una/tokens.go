package una

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gmfloripa/patrol-relay/internal/tracer"
)

// Authenticator performs a full login.
type Authenticator interface {
	Authenticate(ctx context.Context, log *tracer.Log) (Token, error)
}

// TokenSource hands out session tokens to the relay.
type TokenSource interface {
	Token(ctx context.Context, log *tracer.Log) (Token, error)
	// Invalidate drops any cached token, e.g. after the platform refused it.
	Invalidate(ctx context.Context) error
}

// Reauthenticate logs in again for every token request. It is the default
// source: no session outlives the relay call that created it.
type Reauthenticate struct {
	Auth Authenticator
}

// Token performs a fresh login.
func (r Reauthenticate) Token(ctx context.Context, log *tracer.Log) (Token, error) {
	return r.Auth.Authenticate(ctx, log)
}

// Invalidate is a no-op.
func (Reauthenticate) Invalidate(context.Context) error { return nil }

// TokenStore persists tokens between relay calls.
type TokenStore interface {
	Get(ctx context.Context, key string) (Token, bool, error)
	Set(ctx context.Context, key string, token Token, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheKey derives the store key for a login without storing it in clear.
func CacheKey(login string) string {
	sum := sha256.Sum256([]byte(login))
	return "una:token:" + hex.EncodeToString(sum[:])
}

// CachedTokens reuses a token until its TTL expires. Cache hits add no
// entries to the trace log.
type CachedTokens struct {
	auth   Authenticator
	store  TokenStore
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedTokens wraps auth with store, keyed by login.
func NewCachedTokens(auth Authenticator, store TokenStore, login string, ttl time.Duration, logger *slog.Logger) *CachedTokens {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedTokens{
		auth:   auth,
		store:  store,
		key:    CacheKey(login),
		ttl:    ttl,
		logger: logger,
	}
}

// Token returns a cached token or logs in and caches the new one. Store
// failures fall back to a fresh login.
func (c *CachedTokens) Token(ctx context.Context, log *tracer.Log) (Token, error) {
	tok, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.logger.Warn("token cache read failed", slog.String("error", err.Error()))
	}
	if ok {
		c.logger.Debug("reusing cached session token")
		return tok, nil
	}

	tok, err = c.auth.Authenticate(ctx, log)
	if err != nil {
		return "", err
	}

	if err := c.store.Set(ctx, c.key, tok, c.ttl); err != nil {
		c.logger.Warn("token cache write failed", slog.String("error", err.Error()))
	}
	return tok, nil
}

// Invalidate removes the cached token.
func (c *CachedTokens) Invalidate(ctx context.Context) error {
	return c.store.Delete(ctx, c.key)
}

// MemoryTokenStore keeps tokens in process memory.
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memoryToken
	now     func() time.Time
}

type memoryToken struct {
	token   Token
	expires time.Time
}

// NewMemoryTokenStore returns an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		entries: make(map[string]memoryToken),
		now:     time.Now,
	}
}

func (s *MemoryTokenStore) Get(_ context.Context, key string) (Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.token, true, nil
}

func (s *MemoryTokenStore) Set(_ context.Context, key string, token Token, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryToken{token: token, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// RedisTokenStore shares tokens between relay instances through Redis.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore wraps an existing client.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) Get(ctx context.Context, key string) (Token, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return Token(val), true, nil
}

func (s *RedisTokenStore) Set(ctx context.Context, key string, token Token, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, string(token), ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
