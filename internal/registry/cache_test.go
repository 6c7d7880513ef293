package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

// fakeSource is a scriptable Source for cache tests.
type fakeSource struct {
	name      string
	providers []store.Provider
	err       error
	calls     int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) List(context.Context) ([]store.Provider, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.providers, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func provider(id, name string) store.Provider {
	return store.Provider{ID: id, Name: name, InstalledAt: time.Now().UTC()}
}

func TestCacheRefreshesOnFirstRead(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{name: "official", providers: []store.Provider{
		provider("github", "GitHub"),
		provider("fetch", "Fetch"),
	}}
	cache := NewCache(st, []Source{src}, time.Hour, zap.NewNop())

	got, err := cache.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, src.calls)
}

func TestCacheServesFreshWithoutRemoteCall(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{name: "official", providers: []store.Provider{provider("github", "GitHub")}}
	cache := NewCache(st, []Source{src}, time.Hour, zap.NewNop())
	ctx := context.Background()

	_, err := cache.ListAll(ctx)
	require.NoError(t, err)
	_, err = cache.ListAll(ctx)
	require.NoError(t, err)
	_, err = cache.Search(ctx, "git", 10)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls, "fresh cache must not call the remote")
}

func TestCacheEmptyFreshResultIsServed(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{name: "official"} // remote has nothing
	cache := NewCache(st, []Source{src}, time.Hour, zap.NewNop())
	ctx := context.Background()

	got, err := cache.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Empty is a valid fresh answer; no second remote call.
	_, err = cache.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestCacheFailOpenServesStale(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{name: "official", providers: []store.Provider{
		provider("a", "A"), provider("b", "B"), provider("c", "C"),
		provider("d", "D"), provider("e", "E"),
	}}
	cache := NewCache(st, []Source{src}, time.Hour, zap.NewNop())
	ctx := context.Background()

	_, err := cache.ListAll(ctx)
	require.NoError(t, err)

	// Time passes, the cache goes stale, and the remote starts failing.
	cache.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	src.err = errors.New("connection refused")

	got, err := cache.Search(ctx, "", 0)
	require.NoError(t, err, "remote failure must not surface when stale data exists")
	assert.Len(t, got, 5)

	meta, err := st.GetRegistryMeta(ctx, "official")
	require.NoError(t, err)
	assert.False(t, meta.LastRefreshSuccessful)
	assert.Contains(t, meta.LastRefreshError, "connection refused")
}

func TestCacheNoFallbackSurfacesError(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{name: "official", err: errors.New("dns failure")}
	cache := NewCache(st, []Source{src}, time.Hour, zap.NewNop())

	_, err := cache.ListAll(context.Background())
	require.ErrorIs(t, err, ErrNoCache)
}

func TestCacheStaleRefreshReplacesWholeSet(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{name: "official", providers: []store.Provider{provider("old", "Old")}}
	cache := NewCache(st, []Source{src}, time.Hour, zap.NewNop())
	ctx := context.Background()

	_, err := cache.ListAll(ctx)
	require.NoError(t, err)

	cache.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	src.providers = []store.Provider{provider("new", "New")}

	got, err := cache.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestCacheSearchFilters(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{name: "official", providers: []store.Provider{
		provider("github", "GitHub"),
		provider("gitlab", "GitLab"),
		provider("fetch", "Fetch"),
	}}
	cache := NewCache(st, []Source{src}, time.Hour, zap.NewNop())
	ctx := context.Background()

	got, err := cache.Search(ctx, "git", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = cache.Search(ctx, "git", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = cache.Search(ctx, "FETCH", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fetch", got[0].ID)
}

func TestCacheResolveByIDThenName(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{name: "official", providers: []store.Provider{
		provider("reg-9f3", "Github"),
		provider("github", "Something Else"),
	}}
	cache := NewCache(st, []Source{src}, time.Hour, zap.NewNop())
	ctx := context.Background()

	// Exact id match wins over name match.
	got, err := cache.Resolve(ctx, "github")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "github", got.ID)

	// Falls back to case-insensitive name.
	got, err = cache.Resolve(ctx, "GITHUB")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "reg-9f3", got.ID)

	got, err = cache.Resolve(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheResolveRespectsRegistryOrder(t *testing.T) {
	st := newTestStore(t)
	first := &fakeSource{name: "first", providers: []store.Provider{provider("dup", "From First")}}
	second := &fakeSource{name: "second", providers: []store.Provider{provider("dup", "From Second")}}
	cache := NewCache(st, []Source{first, second}, time.Hour, zap.NewNop())

	got, err := cache.Resolve(context.Background(), "dup")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "From First", got.Name)
}

func TestCacheGetDetails(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{name: "official", providers: []store.Provider{provider("github", "GitHub")}}
	cache := NewCache(st, []Source{src}, time.Hour, zap.NewNop())
	ctx := context.Background()

	got, err := cache.GetDetails(ctx, "github")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "GitHub", got.Name)

	got, err = cache.GetDetails(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheRefreshAll(t *testing.T) {
	st := newTestStore(t)
	ok := &fakeSource{name: "good", providers: []store.Provider{provider("a", "A")}}
	bad := &fakeSource{name: "bad", err: errors.New("boom")}
	cache := NewCache(st, []Source{ok, bad}, time.Hour, zap.NewNop())

	results := cache.RefreshAll(context.Background())
	assert.NoError(t, results["good"])
	assert.Error(t, results["bad"])

	status, err := cache.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status["good"])
	assert.True(t, status["good"].LastRefreshSuccessful)
	require.NotNil(t, status["bad"])
	assert.False(t, status["bad"].LastRefreshSuccessful)
}
