package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

// DefaultMaxAge is how long a successful refresh stays authoritative.
const DefaultMaxAge = 15 * time.Minute

// ErrNoCache is returned when a remote registry is unreachable and no prior
// refresh ever succeeded, so there is nothing to fall back to.
var ErrNoCache = errors.New("registry unavailable and no cached data exists")

// Cache is a read-through cache over one or more registry Sources, in a
// stable configured order. While a registry's cache is fresh it is served
// as-is (an empty fresh result set included); once stale, a remote refresh
// is attempted and on failure the stale data keeps serving. A provider
// removed upstream can therefore linger until the next successful refresh;
// that availability trade-off is deliberate.
type Cache struct {
	store   *store.Store
	sources []Source
	maxAge  time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewCache composes a Cache over the given sources. maxAge <= 0 selects
// DefaultMaxAge.
func NewCache(st *store.Store, sources []Source, maxAge time.Duration, logger *zap.Logger) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{
		store:   st,
		sources: sources,
		maxAge:  maxAge,
		logger:  logger.Named("registry"),
		now:     time.Now,
	}
}

// Sources returns the configured source names in order.
func (c *Cache) Sources() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}

// Search returns cached providers across all registries whose id, name, or
// description contains query (case-insensitive), up to limit. limit <= 0
// means unbounded.
func (c *Cache) Search(ctx context.Context, query string, limit int) ([]store.Provider, error) {
	all, err := c.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var matches []store.Provider
	for _, p := range all {
		if q == "" ||
			strings.Contains(strings.ToLower(p.ID), q) ||
			strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) {
			matches = append(matches, p)
			if limit > 0 && len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}

// ListAll returns the cached listing of every configured registry, refreshing
// stale registries first. A registry that cannot refresh and has no cache at
// all is skipped; it only becomes an error when no registry could answer.
func (c *Cache) ListAll(ctx context.Context) ([]store.Provider, error) {
	var all []store.Provider
	var lastErr error
	answered := false

	for _, src := range c.sources {
		entries, err := c.entriesFor(ctx, src)
		if err != nil {
			lastErr = err
			continue
		}
		answered = true
		for _, e := range entries {
			all = append(all, e.Payload)
		}
	}

	if !answered && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

// GetDetails returns the cached provider with the given id, searching the
// configured registries in order. Returns nil when no registry knows the id.
func (c *Cache) GetDetails(ctx context.Context, id string) (*store.Provider, error) {
	for _, src := range c.sources {
		if err := c.ensureFresh(ctx, src); err != nil {
			continue
		}
		e, err := c.store.GetCacheEntry(ctx, src.Name(), id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return &e.Payload, nil
		}
	}
	return nil, nil
}

// Resolve looks up idOrName first as an exact id, then as a case-insensitive
// name, across registries in configured order. The first match wins. This is
// the reconciler's identity-resolution hook.
func (c *Cache) Resolve(ctx context.Context, idOrName string) (*store.Provider, error) {
	for _, src := range c.sources {
		entries, err := c.entriesFor(ctx, src)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.Payload.ID == idOrName {
				p := e.Payload
				return &p, nil
			}
		}
		for _, e := range entries {
			if strings.EqualFold(e.Payload.Name, idOrName) {
				p := e.Payload
				return &p, nil
			}
		}
	}
	return nil, nil
}

// RefreshAll forces a refresh attempt for every registry regardless of
// staleness. Failures are recorded in metadata and returned per registry.
func (c *Cache) RefreshAll(ctx context.Context) map[string]error {
	results := make(map[string]error, len(c.sources))
	for _, src := range c.sources {
		results[src.Name()] = c.refresh(ctx, src)
	}
	return results
}

// Status returns refresh metadata for every configured registry. Registries
// never refreshed yield a nil entry.
func (c *Cache) Status(ctx context.Context) (map[string]*store.RegistryMeta, error) {
	status := make(map[string]*store.RegistryMeta, len(c.sources))
	for _, src := range c.sources {
		meta, err := c.store.GetRegistryMeta(ctx, src.Name())
		if err != nil {
			return nil, err
		}
		status[src.Name()] = meta
	}
	return status, nil
}

// entriesFor returns the cached entries for one source after ensuring
// freshness. The error is non-nil only when there is no data at all.
func (c *Cache) entriesFor(ctx context.Context, src Source) ([]store.CacheEntry, error) {
	if err := c.ensureFresh(ctx, src); err != nil {
		return nil, err
	}
	return c.store.ListCacheEntries(ctx, src.Name())
}

// ensureFresh refreshes a stale registry. On remote failure the stale cache
// keeps serving and the error is swallowed; ErrNoCache surfaces only when no
// successful refresh ever happened.
func (c *Cache) ensureFresh(ctx context.Context, src Source) error {
	meta, err := c.store.GetRegistryMeta(ctx, src.Name())
	if err != nil {
		return err
	}

	if meta != nil && meta.LastRefreshSuccessful && c.now().Sub(meta.LastRefreshAt) < c.maxAge {
		// Fresh: serve from cache only, even when the cached set is empty.
		return nil
	}

	refreshErr := c.refresh(ctx, src)
	if refreshErr == nil {
		return nil
	}

	if c.hasStaleData(ctx, src.Name()) {
		c.logger.Warn("serving stale registry cache",
			zap.String("registry", src.Name()), zap.Error(refreshErr))
		return nil
	}
	return errors.Join(ErrNoCache, refreshErr)
}

func (c *Cache) refresh(ctx context.Context, src Source) error {
	providers, err := src.List(ctx)
	if err != nil {
		if recErr := c.store.RecordRefreshFailure(ctx, src.Name(), err, c.now()); recErr != nil {
			c.logger.Error("recording refresh failure",
				zap.String("registry", src.Name()), zap.Error(recErr))
		}
		return err
	}

	if err := c.store.ReplaceRegistryCache(ctx, src.Name(), providers, c.now()); err != nil {
		return err
	}
	c.logger.Debug("registry refreshed",
		zap.String("registry", src.Name()), zap.Int("providers", len(providers)))
	return nil
}

// hasStaleData reports whether stale-but-present fallback entries exist.
// An empty cache counts as "no cache at all", so unavailability surfaces.
func (c *Cache) hasStaleData(ctx context.Context, registryName string) bool {
	entries, err := c.store.ListCacheEntries(ctx, registryName)
	return err == nil && len(entries) > 0
}
