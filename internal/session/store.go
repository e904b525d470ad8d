package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pnl-arena/internal/errs"

	"github.com/redis/go-redis/v9"
)

// Store is a TTL key-value store for draft payloads.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Take returns the value and removes the key in one step. Of several concurrent
	// callers at most one observes found.
	Take(ctx context.Context, key string) (value []byte, found bool, err error)
}

type memItem struct {
	v       []byte
	expires time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memItem{}, now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !it.expires.IsZero() && !s.now().Before(it.expires) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), it.v...), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	it := memItem{v: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = it
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	delete(s.items, key)
	if !it.expires.IsZero() && !s.now().Before(it.expires) {
		return nil, false, nil
	}
	return it.v, true, nil
}

// RedisStore keeps drafts in redis so any API replica can continue a setup.
type RedisStore struct {
	Client *redis.Client
}

func NewRedisStore(opt *redis.Options) *RedisStore {
	return &RedisStore{Client: redis.NewClient(opt)}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.Client.Del(ctx, key).Err()
}

func (s *RedisStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.Client.GetDel(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

const keyPrefix = "arena:setup:"

// Drafts stores drafts as JSON under a fixed key prefix.
type Drafts struct {
	store Store
	ttl   time.Duration
}

// NewDrafts creates a draft repository. Drafts expire ttl after their last save.
func NewDrafts(store Store, ttl time.Duration) *Drafts {
	return &Drafts{store: store, ttl: ttl}
}

// Load returns the draft with id, or errs.ErrNotFound once it expired or was discarded.
func (d *Drafts) Load(ctx context.Context, id string) (Draft, error) {
	b, found, err := d.store.Get(ctx, keyPrefix+id)
	if err != nil {
		return Draft{}, fmt.Errorf("load draft %s: %w: %w", id, errs.ErrTransientStore, err)
	}
	return decode(id, b, found)
}

// Claim loads the draft and removes it atomically, so only one caller can act on it.
// The loser of a race gets errs.ErrNotFound.
func (d *Drafts) Claim(ctx context.Context, id string) (Draft, error) {
	b, found, err := d.store.Take(ctx, keyPrefix+id)
	if err != nil {
		return Draft{}, fmt.Errorf("claim draft %s: %w: %w", id, errs.ErrTransientStore, err)
	}
	return decode(id, b, found)
}

func decode(id string, b []byte, found bool) (Draft, error) {
	if !found {
		return Draft{}, fmt.Errorf("draft %s: %w", id, errs.ErrNotFound)
	}
	var draft Draft
	if err := json.Unmarshal(b, &draft); err != nil {
		return Draft{}, fmt.Errorf("failed to decode draft %s: %w", id, err)
	}
	return draft, nil
}

func (d *Drafts) Save(ctx context.Context, draft Draft) error {
	b, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft %s: %w", draft.ID, err)
	}
	if err := d.store.Set(ctx, keyPrefix+draft.ID, b, d.ttl); err != nil {
		return fmt.Errorf("save draft %s: %w: %w", draft.ID, errs.ErrTransientStore, err)
	}
	return nil
}

func (d *Drafts) Discard(ctx context.Context, id string) error {
	if err := d.store.Delete(ctx, keyPrefix+id); err != nil {
		return fmt.Errorf("discard draft %s: %w: %w", id, errs.ErrTransientStore, err)
	}
	return nil
}
