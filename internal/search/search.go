package search

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"DigestScheduler/internal/domain"
)

// Query carries everything a provider needs to look up one topic.
type Query struct {
	Text     string
	Language string
	Country  string
	// Window limits results to articles newer than now minus Window; zero disables it.
	Window time.Duration
	Limit  int
}

// Searcher is a single news provider implementation (SerpAPI, NewsAPI, ...).
type Searcher interface {
	Name() string
	Search(ctx context.Context, q Query) ([]domain.Article, error)
}

// Registry keeps a mapping from provider names to their implementations.
type Registry struct {
	searchers map[string]Searcher
	fallback  string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{searchers: map[string]Searcher{}}
}

// Register adds or replaces a provider. The first registered provider becomes
// the default for topics that do not name one.
func (r *Registry) Register(s Searcher) {
	if r.searchers == nil {
		r.searchers = map[string]Searcher{}
	}
	if r.fallback == "" {
		r.fallback = s.Name()
	}
	r.searchers[s.Name()] = s
}

// Resolve returns a provider by name; an empty name resolves to the default.
func (r *Registry) Resolve(name string) (Searcher, error) {
	if name == "" {
		name = r.fallback
	}
	if s, ok := r.searchers[name]; ok {
		return s, nil
	}
	return nil, errors.Newf("search provider %q is not registered", name)
}

// Names lists registered providers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.searchers))
	for name := range r.searchers {
		names = append(names, name)
	}
	return names
}
