package core

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JerrettDavis/McpManager-sub000/internal/core/agent"
	"github.com/JerrettDavis/McpManager-sub000/internal/registry"
	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

// fakeConnector is an in-memory agent.Connector for exercising the
// reconciler and manager without touching real config files.
type fakeConnector struct {
	id      string
	present bool
	entries map[string]agent.ProviderSpec
	enabled map[string]bool
}

func newFakeConnector(id string, declared ...string) *fakeConnector {
	f := &fakeConnector{
		id:      id,
		present: true,
		entries: make(map[string]agent.ProviderSpec),
		enabled: make(map[string]bool),
	}
	for _, d := range declared {
		f.entries[d] = agent.ProviderSpec{ID: d}
		f.enabled[d] = true
	}
	return f
}

func (f *fakeConnector) ID() string          { return f.id }
func (f *fakeConnector) DisplayName() string { return f.id }
func (f *fakeConnector) IsPresent() bool     { return f.present }
func (f *fakeConnector) ConfigPath() string  { return "/fake/" + f.id + ".json" }

func (f *fakeConnector) DeclaredProviderIDs() []string {
	var ids []string
	for id := range f.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeConnector) AddProvider(spec agent.ProviderSpec) error {
	f.entries[spec.ID] = spec
	f.enabled[spec.ID] = true
	return nil
}

func (f *fakeConnector) RemoveProvider(id string) (bool, error) {
	if _, ok := f.entries[id]; !ok {
		return false, nil
	}
	delete(f.entries, id)
	delete(f.enabled, id)
	return true, nil
}

func (f *fakeConnector) SetEnabled(id string, enabled bool) (bool, error) {
	if _, ok := f.entries[id]; !ok {
		return false, nil
	}
	f.enabled[id] = enabled
	return true, nil
}

// fakeSource is a scriptable registry source.
type fakeSource struct {
	name      string
	providers []store.Provider
	err       error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) List(context.Context) ([]store.Provider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.providers, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "core.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestManager(t *testing.T, st *store.Store, connectors []agent.Connector, sources ...registry.Source) *Manager {
	t.Helper()
	cache := registry.NewCache(st, sources, time.Hour, zap.NewNop())
	return NewManager(st, cache, connectors, time.Minute, zap.NewNop())
}
