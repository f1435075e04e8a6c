package words

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProviderWordsNeverShrinks(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(&StaticWordSource{Words: []string{"a", "b", "c", "d"}})

	first, err := p.Words(ctx)
	require.NoError(t, err)
	require.Len(t, first, PageSize)

	require.NoError(t, p.EnsureLength(ctx, PageSize+1))
	second, err := p.Words(ctx)
	require.NoError(t, err)
	require.Len(t, second, 2*PageSize)
	require.Equal(t, first, second[:PageSize])
}

func TestProviderNextWordAdvancesOneAtATime(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(&StaticWordSource{Words: []string{"cat", "dog"}})

	w1, err := p.NextWord(ctx)
	require.NoError(t, err)
	require.Equal(t, "cat", w1)

	w2, err := p.NextWord(ctx)
	require.NoError(t, err)
	require.Equal(t, "dog", w2)
}

func TestProviderNextWordDoesNotTouchInitialWordsPage(t *testing.T) {
	// Mirrors the provider's init behavior: the first page fetched for
	// Words() does not pre-seed the NextWord cursor.
	ctx := context.Background()
	source := &StaticWordSource{Words: []string{"x"}}
	p := NewProvider(source)

	_, err := p.Words(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, source.pagesServed)

	_, err = p.NextWord(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, source.pagesServed)
}
