package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreCopiesSeed(t *testing.T) {
	t.Parallel()

	seed := map[string]string{"dub-badge-lang": "thai"}
	s := New(seed)
	seed["dub-badge-lang"] = "korean"

	v, ok, err := s.Get(context.Background(), "dub-badge-lang")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "thai", v)

	require.NoError(t, s.Set(context.Background(), "dub-badge-color", "blue"))
	v, ok, _ = s.Get(context.Background(), "dub-badge-color")
	require.True(t, ok)
	require.Equal(t, "blue", v)

	_, ok, _ = s.Get(context.Background(), "missing")
	require.False(t, ok)
}
