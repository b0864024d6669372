package search

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestScheduler/internal/domain"
)

type namedSearcher string

func (n namedSearcher) Name() string { return string(n) }

func (n namedSearcher) Search(context.Context, Query) ([]domain.Article, error) { return nil, nil }

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	reg.Register(namedSearcher("serpapi"))
	reg.Register(namedSearcher("newsapi"))

	got, err := reg.Resolve("newsapi")
	require.NoError(t, err)
	assert.Equal(t, "newsapi", got.Name())

	def, err := reg.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "serpapi", def.Name())

	_, err = reg.Resolve("gnews")
	assert.ErrorContains(t, err, "gnews")

	names := reg.Names()
	sort.Strings(names)
	assert.Equal(t, []string{"newsapi", "serpapi"}, names)
}

func TestEmptyRegistryFails(t *testing.T) {
	var reg Registry
	_, err := reg.Resolve("")
	assert.Error(t, err)
}
