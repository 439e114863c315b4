package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"

	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/store"
	"turtle-trader/internal/types"
)

// New returns the state backend selected in the config.
func New(ctx context.Context, cfg *store.Config) (interfaces.StateStore, error) {
	switch cfg.State.Backend {
	case "FILE":
		return NewFileStore(cfg.State.Path), nil
	case "REDIS":
		return NewRedisStore(ctx, cfg.State.RedisAddr, os.Getenv("REDIS_PASSWORD"), cfg.State.RedisDB, cfg.State.RedisKey)
	case "NONE":
		logger.Warn(ctx, "Engine state is not persisted; stops and counters reset on restart")
		return None{}, nil
	default:
		return nil, fmt.Errorf("unsupported state backend '%s'", cfg.State.Backend)
	}
}

// FileStore keeps the snapshot as a JSON document. Writes go to a temp file
// that is renamed over the target.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(ctx context.Context) (types.EngineSnapshot, bool, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return types.EngineSnapshot{}, false, nil
	}
	if err != nil {
		return types.EngineSnapshot{}, false, fmt.Errorf("read state: %w", err)
	}
	snap, err := decode(b)
	if err != nil {
		return types.EngineSnapshot{}, false, fmt.Errorf("%s: %w", f.path, err)
	}
	logger.Debug(ctx, "Engine state loaded", "path", f.path, "saved_at", snap.SavedAt)
	return snap, true, nil
}

func (f *FileStore) Save(ctx context.Context, snap types.EngineSnapshot) error {
	b, err := encode(snap)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

// kv is the part of the redis client the store needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisStore keeps the snapshot under a single key with no expiry.
type RedisStore struct {
	client kv
	key    string
}

func NewRedisStore(ctx context.Context, addr, password string, db int, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info(ctx, "Connected to Redis state store", "addr", addr, "db", db, "key", key)
	return &RedisStore{client: client, key: key}, nil
}

func (r *RedisStore) Load(ctx context.Context) (types.EngineSnapshot, bool, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.EngineSnapshot{}, false, nil
	}
	if err != nil {
		return types.EngineSnapshot{}, false, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	snap, err := decode(b)
	if err != nil {
		return types.EngineSnapshot{}, false, fmt.Errorf("redis %s: %w", r.key, err)
	}
	return snap, true, nil
}

func (r *RedisStore) Save(ctx context.Context, snap types.EngineSnapshot) error {
	b, err := encode(snap)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

// None never persists anything.
type None struct{}

func (None) Load(context.Context) (types.EngineSnapshot, bool, error) {
	return types.EngineSnapshot{}, false, nil
}

func (None) Save(context.Context, types.EngineSnapshot) error { return nil }

func (None) Close() error { return nil }

func encode(snap types.EngineSnapshot) ([]byte, error) {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return b, nil
}

func decode(b []byte) (types.EngineSnapshot, error) {
	var snap types.EngineSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return types.EngineSnapshot{}, fmt.Errorf("decode state: %w", err)
	}
	return snap, nil
}
