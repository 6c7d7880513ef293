package core

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

func TestEffectiveConfig(t *testing.T) {
	provider := &store.Provider{GlobalConfig: map[string]string{"k": "global"}}

	// No installation: global wins.
	assert.Equal(t, map[string]string{"k": "global"}, EffectiveConfig(provider, nil))

	// Empty override inherits global.
	inst := &store.Installation{Config: map[string]string{}}
	assert.Equal(t, map[string]string{"k": "global"}, EffectiveConfig(provider, inst))

	// Non-empty override wins.
	inst.Config = map[string]string{"k": "override"}
	assert.Equal(t, map[string]string{"k": "override"}, EffectiveConfig(provider, inst))
}

func TestMatchesGlobal(t *testing.T) {
	provider := &store.Provider{GlobalConfig: map[string]string{"a": "1", "b": "2"}}

	tracking := &store.Installation{Config: map[string]string{"b": "2", "a": "1"}}
	assert.True(t, MatchesGlobal(provider, tracking))

	diverged := &store.Installation{Config: map[string]string{"a": "1", "b": "other"}}
	assert.False(t, MatchesGlobal(provider, diverged))

	extraKey := &store.Installation{Config: map[string]string{"a": "1", "b": "2", "c": "3"}}
	assert.False(t, MatchesGlobal(provider, extraKey))

	bothEmpty := &store.Installation{Config: map[string]string{}}
	assert.True(t, MatchesGlobal(&store.Provider{}, bothEmpty))
}

func TestValidateConfig(t *testing.T) {
	assert.Empty(t, ValidateConfig(map[string]string{"key": "value"}))
	assert.Empty(t, ValidateConfig(map[string]string{}))

	issues := ValidateConfig(nil)
	require.Len(t, issues, 1)
	assert.Equal(t, "configuration is missing", issues[0].Problem)

	issues = ValidateConfig(map[string]string{"": "v", "  ": "w", "ok": ""})
	assert.Len(t, issues, 3)
}

func TestPropagateGlobalUpdatePreservesCustomOverrides(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	r := NewResolver(st, zap.NewNop())

	oldGlobal := map[string]string{"k": "old"}
	newGlobal := map[string]string{"k": "new"}

	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "p", Name: "p", GlobalConfig: oldGlobal, InstalledAt: time.Now(),
	}))

	now := time.Now()
	tracking := &store.Installation{
		ID: uuid.NewString(), ProviderID: "p", AgentID: "agent-a",
		IsEnabled: true, Config: map[string]string{"k": "old"},
		CreatedAt: now, UpdatedAt: now,
	}
	diverged := &store.Installation{
		ID: uuid.NewString(), ProviderID: "p", AgentID: "agent-b",
		IsEnabled: true, Config: map[string]string{"k": "custom"},
		CreatedAt: now, UpdatedAt: now,
	}
	inheriting := &store.Installation{
		ID: uuid.NewString(), ProviderID: "p", AgentID: "agent-c",
		IsEnabled: true, CreatedAt: now, UpdatedAt: now,
	}
	for _, inst := range []*store.Installation{tracking, diverged, inheriting} {
		require.NoError(t, st.CreateInstallation(ctx, inst))
	}

	result, err := r.PropagateGlobalUpdate(ctx, "p", oldGlobal, newGlobal)
	require.NoError(t, err)
	assert.Equal(t, []string{tracking.ID}, result.UpdatedInstallationIDs)
	assert.Empty(t, result.Errors)

	got, err := st.GetInstallation(ctx, tracking.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "new"}, got.Config)

	got, err = st.GetInstallation(ctx, diverged.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "custom"}, got.Config)

	got, err = st.GetInstallation(ctx, inheriting.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Config)
}

func TestPropagateGlobalUpdateOtherProvidersUntouched(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	r := NewResolver(st, zap.NewNop())

	now := time.Now()
	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "p", Name: "p", InstalledAt: now,
	}))
	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "q", Name: "q", InstalledAt: now,
	}))
	other := &store.Installation{
		ID: uuid.NewString(), ProviderID: "q", AgentID: "agent-a",
		IsEnabled: true, Config: map[string]string{"k": "old"},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateInstallation(ctx, other))

	result, err := r.PropagateGlobalUpdate(ctx, "p",
		map[string]string{"k": "old"}, map[string]string{"k": "new"})
	require.NoError(t, err)
	assert.Empty(t, result.UpdatedInstallationIDs)

	got, err := st.GetInstallation(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "old"}, got.Config)
}
