package store

import (
	"context"
	"errors"
	"time"

	"github.com/omaldonado/snapfield-backend/pkg/logger"
	"github.com/omaldonado/snapfield-backend/pkg/redis"
)

// Remote is the surface of the optional remote KV backend.
type Remote interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// FacadeParams groups dependencies for the persistence facade.
type FacadeParams struct {
	Remote      Remote
	FallbackDir string
	Logger      *logger.Logger
}

// Facade offers get/set-with-expiry over the remote backend, degrading per
// call to a local file map. Transport failures never reach callers: reads
// degrade to absent, writes to best-effort.
type Facade struct {
	remote Remote
	files  *fileStore
	logg   *logger.Logger
}

// NewFacade builds a facade. A nil remote means file-only operation; an empty
// fallback dir means writes are silently dropped when the remote is down.
func NewFacade(params FacadeParams) (*Facade, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Facade{
		remote: params.Remote,
		files:  newFileStore(params.FallbackDir),
		logg:   params.Logger,
	}, nil
}

// Get returns the bytes stored at key, or ok=false when absent. A remote
// transport error falls back to the file store for this call only.
func (f *Facade) Get(ctx context.Context, key string) ([]byte, bool) {
	if f.remote != nil {
		val, err := f.remote.Get(ctx, key)
		if err == nil {
			return []byte(val), true
		}
		if errors.Is(err, redis.Nil) {
			return nil, false
		}
		f.logg.Warn(f.logg.WithFields(ctx, map[string]any{
			"key":   key,
			"error": err.Error(),
		}), "store.remote_read_failed")
	}
	return f.files.get(key)
}

// SetWithTTL persists value under key. The TTL is advisory on the remote
// backend and ignored by the file store. Failures are logged, never returned.
func (f *Facade) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if f.remote != nil {
		err := f.remote.Set(ctx, key, string(value), ttl)
		if err == nil {
			return
		}
		f.logg.Warn(f.logg.WithFields(ctx, map[string]any{
			"key":   key,
			"error": err.Error(),
		}), "store.remote_write_failed")
	}
	if err := f.files.set(key, value); err != nil {
		f.logg.Debug(f.logg.WithField(ctx, "key", key), "store.fallback_write_dropped")
	}
}

// Delete removes key from whichever stores hold it, best-effort.
func (f *Facade) Delete(ctx context.Context, key string) {
	if f.remote != nil {
		if remover, ok := f.remote.(interface {
			Del(ctx context.Context, keys ...string) error
		}); ok {
			if err := remover.Del(ctx, key); err != nil {
				f.logg.Warn(f.logg.WithField(ctx, "key", key), "store.remote_delete_failed")
			}
		}
	}
	f.files.delete(key)
}
