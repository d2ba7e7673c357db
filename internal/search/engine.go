package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
)

// Provider is a single game catalog backend
type Provider interface {
	// Search queries the catalog by game name
	Search(ctx context.Context, query string) ([]domain.ProviderResult, error)
}

// Engine defines the interface for the merged catalog search to enable mocking
type Engine interface {
	// Search fans a query out to all providers concurrently and merges the
	// results into one deduplicated list
	Search(ctx context.Context, query string) ([]domain.MergedResult, error)

	// Close gracefully shuts down the engine and its worker pool
	Close() error
}

// engine is the implementation of the Engine interface
type engine struct {
	// providers in priority order: when two providers return the same game,
	// the earlier provider's entry wins and later ones only fill gaps
	providers []Provider
	pool      pond.ResultPool[[]domain.ProviderResult]
}

// NewEngine creates a new search engine over the given providers. The
// provider order is the merge priority order.
func NewEngine(providers ...Provider) Engine {
	return &engine{
		providers: providers,
		pool:      pond.NewResultPool[[]domain.ProviderResult](len(providers)),
	}
}

// Search fans a query out to all providers concurrently and merges the
// results into one deduplicated list. A failing provider is logged and
// skipped, never failing the whole search.
func (e *engine) Search(ctx context.Context, query string) ([]domain.MergedResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	tasks := make([]pond.Result[[]domain.ProviderResult], len(e.providers))
	for i, provider := range e.providers {
		provider := provider
		tasks[i] = e.pool.SubmitErr(func() ([]domain.ProviderResult, error) {
			return provider.Search(ctx, query)
		})
	}

	// Collect in submission order so merge priority stays deterministic
	// regardless of which provider finishes first
	merged := make([]domain.MergedResult, 0)
	index := make(map[string]int)
	for i, task := range tasks {
		results, err := task.Wait()
		if err != nil {
			logger.Warn("catalog provider search failed",
				zap.Int("provider", i),
				zap.String("query", query),
				zap.Error(err))
			continue
		}
		merge(&merged, index, results)
	}

	return merged, nil
}

// Close gracefully shuts down the engine and its worker pool
func (e *engine) Close() error {
	e.pool.StopAndWait()
	return nil
}

// merge folds one provider's results into the merged list. Games are
// deduplicated by lowercased name, first seen wins; duplicates only fill
// fields the winning entry is missing.
func merge(merged *[]domain.MergedResult, index map[string]int, results []domain.ProviderResult) {
	for _, result := range results {
		key := strings.ToLower(result.Name)

		pos, seen := index[key]
		if !seen {
			index[key] = len(*merged)
			*merged = append(*merged, domain.MergedResult{
				ID:          result.ID,
				Name:        result.Name,
				ReleaseDate: result.ReleaseDate,
				CoverURL:    result.CoverURL,
				Source:      result.Source,
				SteamAppID:  result.SteamAppID,
			})
			continue
		}

		entry := &(*merged)[pos]
		if entry.SteamAppID == nil && result.SteamAppID != nil {
			entry.SteamAppID = result.SteamAppID
		}
		if entry.CoverURL == nil && result.CoverURL != nil {
			entry.CoverURL = result.CoverURL
		}
		if entry.ReleaseDate == nil && result.ReleaseDate != nil {
			entry.ReleaseDate = result.ReleaseDate
		}
	}
}
