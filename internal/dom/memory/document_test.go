package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dubbadge/internal/dom"
)

const fixture = `<html><body>
<div id="grid">
  <a href="/entry?id=21"><div class="card" data-media-id="21"><img src="/bx21-a.jpg"></div></a>
  <div class="card"><span>no id</span></div>
</div>
</body></html>`

func TestQueryAttributesAndInnerHTML(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	doc := MustParse(fixture)

	els, err := doc.Query(ctx, ".card", dom.QueryOptions{IncludeNested: true, WithInnerHTML: true})
	require.NoError(t, err)
	require.Len(t, els, 2)
	require.Contains(t, els[0].InnerHTML(), `src="/bx21-a.jpg"`)

	v, ok, err := els[0].GetAttribute(ctx, "data-media-id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "21", v)

	_, ok, err = els[1].GetAttribute(ctx, "data-media-id")
	require.NoError(t, err)
	require.False(t, ok)

	parent, err := els[0].Parent(ctx)
	require.NoError(t, err)
	href, ok, err := parent.GetAttribute(ctx, "href")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/entry?id=21", href)
}

func TestQueryKeysAreStable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	doc := MustParse(fixture)
	first, err := doc.Query(ctx, ".card", dom.QueryOptions{IncludeNested: true})
	require.NoError(t, err)
	second, err := doc.Query(ctx, ".card", dom.QueryOptions{IncludeNested: true})
	require.NoError(t, err)
	require.Equal(t, first[0].Key(), second[0].Key())
	require.NotEqual(t, first[0].Key(), first[1].Key())
}

func TestQueryInvalidSelector(t *testing.T) {
	t.Parallel()

	_, err := MustParse(fixture).Query(context.Background(), "[[", dom.QueryOptions{})
	require.Error(t, err)
}

func TestQueryOutermostOnly(t *testing.T) {
	t.Parallel()

	doc := MustParse(`<div class="x" id="outer"><div class="x" id="inner"></div></div>`)
	els, err := doc.Query(context.Background(), ".x", dom.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, els, 1)

	els, err = doc.Query(context.Background(), ".x", dom.QueryOptions{IncludeNested: true})
	require.NoError(t, err)
	require.Len(t, els, 2)
}

func TestAppendRemoveAndStyle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	doc := MustParse(fixture)
	els, err := doc.Query(ctx, "#grid", dom.QueryOptions{})
	require.NoError(t, err)
	grid := els[0]

	require.NoError(t, grid.Append(ctx, dom.Fragment{
		Tag:       "div",
		ClassName: "badge",
		Style:     "top: 8px;",
		InnerHTML: `<span class="label">Dubbed</span>`,
	}))
	require.Equal(t, 1, doc.Count("#grid > .badge > span.label"))

	require.NoError(t, grid.SetStyle(ctx, "position", "relative"))
	require.NoError(t, grid.SetStyle(ctx, "position", "absolute"))
	style, _, err := grid.GetAttribute(ctx, "style")
	require.NoError(t, err)
	require.Equal(t, "position: absolute;", style)

	badges, err := doc.Query(ctx, ".badge", dom.QueryOptions{})
	require.NoError(t, err)
	require.NoError(t, badges[0].Remove(ctx))
	require.Zero(t, doc.Count(".badge"))
	require.ErrorIs(t, badges[0].SetAttribute(ctx, "x", "y"), dom.ErrDetached)
}

func TestObserveDeliversOnlyNewMatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	doc := MustParse(fixture)
	var batches [][]dom.Element
	sub, err := doc.Observe(ctx, ".card", func(_ context.Context, els []dom.Element) {
		batches = append(batches, els)
	}, dom.QueryOptions{IncludeNested: true, WithInnerHTML: true})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)

	require.NoError(t, doc.Insert(ctx, "#grid", `<div class="card" data-media-id="42"></div>`))
	require.Len(t, batches, 2)
	require.Len(t, batches[1], 1)

	require.NoError(t, sub.Close())
	require.NoError(t, doc.Insert(ctx, "#grid", `<div class="card"></div>`))
	require.Len(t, batches, 2)
}

func TestMergeStyle(t *testing.T) {
	t.Parallel()

	require.Equal(t, "top: 8px; right: 4px;", mergeStyle("top: 8px", "right", "4px"))
	require.Equal(t, "top: 40px;", mergeStyle("top: 8px;", "TOP", "40px"))
}
