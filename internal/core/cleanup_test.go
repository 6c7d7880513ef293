package core

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JerrettDavis/McpManager-sub000/internal/core/agent"
	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

func TestDuplicateRemovalKeepsTrackedProvider(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := newTestManager(t, st, nil)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "mcp_abc", Name: "Github", InstalledAt: base,
	}))
	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "github", Name: "github", InstalledAt: base.Add(time.Minute),
	}))

	now := time.Now()
	require.NoError(t, st.CreateInstallation(ctx, &store.Installation{
		ID: uuid.NewString(), ProviderID: "github", AgentID: "claude-code",
		IsEnabled: true, CreatedAt: now, UpdatedAt: now,
	}))

	result, err := m.CleanupNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mcp_abc"}, result.DuplicatesRemoved)
	assert.Empty(t, result.Errors)

	providers, err := st.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "github", providers[0].ID)
}

func TestDuplicateRemovalNoneReferencedKeepsOldest(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := newTestManager(t, st, nil)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "older", Name: "Search", InstalledAt: base,
	}))
	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "newer", Name: "search", InstalledAt: base.Add(time.Minute),
	}))

	result, err := m.CleanupNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"newer"}, result.DuplicatesRemoved)

	p, err := st.GetProvider(ctx, "older")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestFindDuplicatesIgnoresUniqueNames(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := newTestManager(t, st, nil)

	now := time.Now()
	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "a", Name: "Alpha", InstalledAt: now,
	}))
	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "b", Name: "Beta", InstalledAt: now,
	}))

	dups, err := m.FindDuplicates(ctx)
	require.NoError(t, err)
	assert.Empty(t, dups)
}

func TestOrphanRemoval(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := newTestManager(t, st, nil)

	now := time.Now()
	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "alive", Name: "alive", InstalledAt: now,
	}))
	kept := &store.Installation{
		ID: uuid.NewString(), ProviderID: "alive", AgentID: "cursor",
		IsEnabled: true, CreatedAt: now, UpdatedAt: now,
	}
	orphan := &store.Installation{
		ID: uuid.NewString(), ProviderID: "ghost", AgentID: "cursor",
		IsEnabled: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateInstallation(ctx, kept))
	require.NoError(t, st.CreateInstallation(ctx, orphan))

	result, err := m.CleanupNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan.ID}, result.OrphansRemoved)

	remaining, err := st.ListInstallations(ctx, store.InstallationFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, kept.ID, remaining[0].ID)
}

func TestForceResyncOnlyCreatesMissing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	conn := newFakeConnector("claude-code", "tracked", "untracked")
	m := newTestManager(t, st, []agent.Connector{conn})

	now := time.Now().Add(-time.Hour)
	require.NoError(t, st.InsertProvider(ctx, &store.Provider{
		ID: "tracked", Name: "tracked", InstalledAt: now,
	}))
	existing := &store.Installation{
		ID: uuid.NewString(), ProviderID: "tracked", AgentID: "claude-code",
		IsEnabled: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateInstallation(ctx, existing))

	summary, err := m.ForceResync(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Agents, 1)
	assert.Equal(t, 1, summary.InstallationsCreated())
	assert.Empty(t, summary.Errors())

	// The pre-existing row is untouched.
	got, err := st.GetInstallation(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, existing.UpdatedAt.UTC().Truncate(time.Second),
		got.UpdatedAt.UTC().Truncate(time.Second))

	inst, err := st.GetInstallationForPair(ctx, "untracked", "claude-code")
	require.NoError(t, err)
	assert.NotNil(t, inst)
}
