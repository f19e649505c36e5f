package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dubbadge/internal/settings"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "settings.db")
	store, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	_, ok, err := store.Get(ctx, settings.KeyLanguage)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, settings.KeyLanguage, "german"))
	require.NoError(t, store.Set(ctx, settings.KeyLanguage, "french"))

	v, ok, err := store.Get(ctx, settings.KeyLanguage)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "french", v)
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	first, err := Open(ctx, path)
	require.NoError(t, err)
	p := settings.NewProvider(first, nil)
	snap := settings.Snapshot{
		Language:   "spanish",
		Confidence: "high",
		Position:   settings.PositionBelow,
		Color:      settings.ColorOrange,
		Debug:      true,
	}
	require.NoError(t, p.Save(ctx, snap))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, second.Close()) })
	require.Equal(t, path, second.Path())
	require.Equal(t, snap, settings.NewProvider(second, nil).Load(ctx))
}

func TestStoreClosedReturnsError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, _, err = store.Get(ctx, settings.KeyColor)
	require.Error(t, err)
	require.Error(t, store.Set(ctx, settings.KeyColor, "red"))
}
