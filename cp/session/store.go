package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v7"
)

const (
	sessionPrefix   = "session:"
	referencePrefix = "consent:submitted:"
)

var ErrNotFound = errors.New("session not found")

// Store persists sessions and remembers which consent references already got a decision.
type Store interface {
	Save(ctx context.Context, s *Session) (string, error)
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// ClaimReference returns false when reference was already claimed and not released.
	ClaimReference(ctx context.Context, reference string, ttl time.Duration) (bool, error)
	ReleaseReference(ctx context.Context, reference string) error
}

// RedisStore keeps sessions as JSON documents in redis.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	return &RedisStore{client: client, timeout: timeout}
}

func (r *RedisStore) Save(ctx context.Context, s *Session) (string, error) {
	sessionJSON, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	if err := r.client.WithContext(ctx).Set(sessionPrefix+s.ID, sessionJSON, r.timeout).Err(); err != nil {
		return "", err
	}
	return s.ID, nil
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	val, err := r.client.WithContext(ctx).Get(sessionPrefix + id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s := new(Session)
	if err := json.Unmarshal([]byte(val), s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.WithContext(ctx).Del(sessionPrefix + id).Err()
}

func (r *RedisStore) ClaimReference(ctx context.Context, reference string, ttl time.Duration) (bool, error) {
	return r.client.WithContext(ctx).SetNX(referencePrefix+reference, time.Now().Unix(), ttl).Result()
}

func (r *RedisStore) ReleaseReference(ctx context.Context, reference string) error {
	return r.client.WithContext(ctx).Del(referencePrefix + reference).Err()
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryStore is a Store for a single process, used when no redis address is configured.
type MemoryStore struct {
	mu         sync.Mutex
	timeout    time.Duration
	now        func() time.Time
	sessions   map[string]memoryEntry
	references map[string]time.Time
}

func NewMemoryStore(timeout time.Duration) *MemoryStore {
	return &MemoryStore{
		timeout:    timeout,
		now:        time.Now,
		sessions:   make(map[string]memoryEntry),
		references: make(map[string]time.Time),
	}
}

func (m *MemoryStore) Save(_ context.Context, s *Session) (string, error) {
	sessionJSON, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = memoryEntry{value: sessionJSON, expires: m.now().Add(m.timeout)}
	return s.ID, nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if ok && !m.now().Before(entry.expires) {
		delete(m.sessions, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	s := new(Session)
	if err := json.Unmarshal(entry.value, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) ClaimReference(_ context.Context, reference string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expires, ok := m.references[reference]; ok && m.now().Before(expires) {
		return false, nil
	}
	m.references[reference] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryStore) ReleaseReference(_ context.Context, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.references, reference)
	return nil
}
