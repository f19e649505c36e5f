package scan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		checked    string
		hasChecked bool
		retries    string
		hasRetries bool
		want       Record
	}{
		{"no attributes", "", false, "", false, Record{Phase: Unseen}},
		{"retrying", "", false, "3", true, Record{Phase: Retrying, Retries: 3}},
		{"garbage retries", "", false, "x", true, Record{Phase: Unseen}},
		{"zero retries", "", false, "0", true, Record{Phase: Unseen}},
		{"checked", "true", true, "", false, Record{Phase: Terminal}},
		{"checked after retries", "true", true, "11", true, Record{Phase: Terminal, Retries: 11}},
		{"checked false", "false", true, "2", true, Record{Phase: Retrying, Retries: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Decode(tc.checked, tc.hasChecked, tc.retries, tc.hasRetries))
		})
	}
}

func TestUnresolvedTerminatesAfterBound(t *testing.T) {
	t.Parallel()

	rec := Record{Phase: Unseen}
	for i := 1; i <= 10; i++ {
		next := rec.Unresolved(10)
		require.Equal(t, Retrying, next.Phase, "pass %d", i)
		require.Equal(t, i, next.Retries)
		require.Greater(t, next.Retries, rec.Retries)
		rec = next
	}
	rec = rec.Unresolved(10)
	require.Equal(t, Record{Phase: Terminal, Retries: 11}, rec)
}

func TestResolvedKeepsRetries(t *testing.T) {
	t.Parallel()

	require.Equal(t, Record{Phase: Terminal, Retries: 4}, Record{Phase: Retrying, Retries: 4}.Resolved())
	require.Equal(t, "retrying", Retrying.String())
	require.Equal(t, "phase(9)", Phase(9).String())
}

func TestPendingSelector(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"[data-media-entry-card-body='true']:not([data-dub-badge-checked='true']), "+
			"[data-media-entry-card-hover-popup-banner-container='true']:not([data-dub-badge-checked='true'])",
		PendingSelector(DefaultCardSelector))
	require.Equal(t,
		"a[title='x, y']:not([data-dub-badge-checked='true']), :is(b, c):not([data-dub-badge-checked='true'])",
		PendingSelector(" a[title='x, y'] , :is(b, c),"))
}
