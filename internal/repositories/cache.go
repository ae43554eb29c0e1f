package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/pubkytree/internal/metrics"
	"github.com/desertthunder/pubkytree/internal/models"
	"github.com/desertthunder/pubkytree/internal/shared"
)

const (
	ProfileKey = "pubkytree_profile"
	LinksKey   = "pubkytree_links"
	SessionKey = "pubkytree_session"
	ImportKey  = "pubkytree_session_imported"
)

// LocalCache stores the canonical documents and the session snapshot in a [Store].
type LocalCache struct {
	store   Store
	metrics *metrics.Metrics
}

// NewLocalCache wraps store. m may be nil.
func NewLocalCache(store Store, m *metrics.Metrics) *LocalCache {
	return &LocalCache{store: store, metrics: m}
}

func (c *LocalCache) read(ctx context.Context, key string, v any) (err error) {
	defer func() { c.metrics.ObserveCache("get", err) }()

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrCacheMiss, key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrCacheCorrupt, key, err)
	}
	return nil
}

func (c *LocalCache) write(ctx context.Context, key string, v any) (err error) {
	defer func() { c.metrics.ObserveCache("set", err) }()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.store.Set(ctx, key, data)
}

func (c *LocalCache) Profile(ctx context.Context) (models.Profile, error) {
	var p models.Profile
	err := c.read(ctx, ProfileKey, &p)
	return p, err
}

func (c *LocalCache) SaveProfile(ctx context.Context, p models.Profile) error {
	return c.write(ctx, ProfileKey, p)
}

// Links returns the cached list. A stored JSON null reads as an empty list.
func (c *LocalCache) Links(ctx context.Context) (models.LinkList, error) {
	var l models.LinkList
	if err := c.read(ctx, LinksKey, &l); err != nil {
		return nil, err
	}
	if l == nil {
		l = models.LinkList{}
	}
	return l, nil
}

func (c *LocalCache) SaveLinks(ctx context.Context, l models.LinkList) error {
	if l == nil {
		l = models.LinkList{}
	}
	return c.write(ctx, LinksKey, l)
}

// SessionSnapshot returns the opaque token produced by a session export.
func (c *LocalCache) SessionSnapshot(ctx context.Context) (snapshot string, err error) {
	defer func() { c.metrics.ObserveCache("get", err) }()

	data, ok, err := c.store.Get(ctx, SessionKey)
	if err != nil {
		return "", err
	}
	if !ok || len(data) == 0 {
		return "", fmt.Errorf("%w: %s", shared.ErrCacheMiss, SessionKey)
	}
	return string(data), nil
}

// SaveSessionSnapshot stores the snapshot of a new session and drops the import marker of the previous one.
func (c *LocalCache) SaveSessionSnapshot(ctx context.Context, snapshot string) (err error) {
	defer func() { c.metrics.ObserveCache("set", err) }()
	if err := c.store.Set(ctx, SessionKey, []byte(snapshot)); err != nil {
		return err
	}
	return c.store.Delete(ctx, ImportKey)
}

// ClearSessionSnapshot forgets the session and its import marker.
func (c *LocalCache) ClearSessionSnapshot(ctx context.Context) (err error) {
	defer func() { c.metrics.ObserveCache("delete", err) }()
	if err := c.store.Delete(ctx, SessionKey); err != nil {
		return err
	}
	return c.store.Delete(ctx, ImportKey)
}

// SessionImported reports whether the cached session already ran its social import.
func (c *LocalCache) SessionImported(ctx context.Context) (imported bool, err error) {
	defer func() { c.metrics.ObserveCache("get", err) }()

	_, ok, err := c.store.Get(ctx, ImportKey)
	return ok, err
}

func (c *LocalCache) MarkSessionImported(ctx context.Context) (err error) {
	defer func() { c.metrics.ObserveCache("set", err) }()
	return c.store.Set(ctx, ImportKey, []byte("1"))
}
