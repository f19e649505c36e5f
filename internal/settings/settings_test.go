package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	d := Defaults()
	require.Equal(t, Snapshot{
		Language:   "english",
		Confidence: "normal",
		Position:   PositionBeside,
		Color:      ColorDefault,
	}, d)
	require.NoError(t, d.Validate())
	require.Len(t, Languages, 27)
}

func TestDefaultConfidence(t *testing.T) {
	t.Parallel()

	require.Equal(t, "normal", DefaultConfidence("english"))
	require.Equal(t, "low", DefaultConfidence("japanese"))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"language", func(s *Snapshot) { s.Language = "klingon" }},
		{"confidence", func(s *Snapshot) { s.Confidence = "extreme" }},
		{"position", func(s *Snapshot) { s.Position = "above" }},
		{"color", func(s *Snapshot) { s.Color = "purple" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := Defaults()
			tc.mutate(&s)
			err := s.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			require.Contains(t, err.Error(), tc.name)
		})
	}
}

func TestFromValues(t *testing.T) {
	t.Parallel()

	t.Run("empty uses defaults", func(t *testing.T) {
		t.Parallel()
		s, err := FromValues(nil)
		require.NoError(t, err)
		require.Equal(t, Defaults(), s)
	})

	t.Run("non-english language defaults to low", func(t *testing.T) {
		t.Parallel()
		s, err := FromValues(map[string]string{KeyLanguage: "french"})
		require.NoError(t, err)
		require.Equal(t, "low", s.Confidence)
	})

	t.Run("empty strings fall back", func(t *testing.T) {
		t.Parallel()
		s, err := FromValues(map[string]string{KeyLanguage: "", KeyColor: ""})
		require.NoError(t, err)
		require.Equal(t, Defaults(), s)
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		want := Snapshot{Language: "korean", Confidence: "very-high", Position: PositionBelow, Color: ColorGreen, Debug: true}
		got, err := FromValues(want.Values())
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("invalid values replaced", func(t *testing.T) {
		t.Parallel()
		s, err := FromValues(map[string]string{
			KeyLanguage:   "elvish",
			KeyConfidence: "meh",
			KeyPosition:   "left",
			KeyColor:      "teal",
			KeyDebug:      "perhaps",
		})
		require.ErrorIs(t, err, ErrInvalid)
		require.Equal(t, Defaults(), s)
	})
}

func TestSameEpoch(t *testing.T) {
	t.Parallel()

	a := Defaults()
	b := a
	b.Color = ColorRed
	b.Position = PositionBelow
	require.True(t, a.SameEpoch(b))
	b.Confidence = "high"
	require.False(t, a.SameEpoch(b))
}

type flakyStore struct {
	values  map[string]string
	failGet bool
	failSet bool
	sets    int
}

func (f *flakyStore) Get(_ context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errors.New("storage unavailable")
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *flakyStore) Set(_ context.Context, key, value string) error {
	f.sets++
	if f.failSet {
		return errors.New("storage unavailable")
	}
	f.values[key] = value
	return nil
}

func TestProviderLoadFallsBackOnStoreFailure(t *testing.T) {
	t.Parallel()

	p := NewProvider(&flakyStore{failGet: true}, nil)
	require.Equal(t, Defaults(), p.Load(context.Background()))
	require.Equal(t, Defaults(), p.Current())
}

func TestProviderSave(t *testing.T) {
	t.Parallel()

	store := &flakyStore{values: map[string]string{}}
	p := NewProvider(store, nil)
	snap := Snapshot{Language: "italian", Confidence: "high", Position: PositionBelow, Color: ColorBlue}
	require.NoError(t, p.Save(context.Background(), snap))
	require.Equal(t, snap, p.Current())
	require.Equal(t, "italian", store.values[KeyLanguage])
	require.Equal(t, "false", store.values[KeyDebug])

	bad := snap
	bad.Color = "magenta"
	require.ErrorIs(t, p.Save(context.Background(), bad), ErrInvalid)
	require.Equal(t, snap, p.Current())
}

func TestProviderSaveSwallowsWriteFailures(t *testing.T) {
	t.Parallel()

	store := &flakyStore{values: map[string]string{}, failSet: true}
	p := NewProvider(store, nil)
	snap := Defaults()
	snap.Debug = true
	require.NoError(t, p.Save(context.Background(), snap))
	require.Equal(t, snap, p.Current())
	require.Equal(t, len(Keys), store.sets)
}
