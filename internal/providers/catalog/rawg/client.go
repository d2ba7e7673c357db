package rawg

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/ratelimit"
)

const PROVIDER_NAME = "rawg"

// steamStoreID is the RAWG store id for Steam
const steamStoreID = 1

var steamAppIDPattern = regexp.MustCompile(`/app/(\d+)`)

// game represents a game entry from the RAWG search API
type game struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Released        *string `json:"released"`
	BackgroundImage *string `json:"background_image"`
}

// searchResponse represents the RAWG search response
type searchResponse struct {
	Results []game `json:"results"`
}

// detailResponse represents the RAWG game detail response
type detailResponse struct {
	Stores []storeEntry `json:"stores"`
}

type storeEntry struct {
	URLEn string `json:"url_en"`
	Store *store `json:"store"`
}

type store struct {
	ID int `json:"id"`
}

// Client defines the interface for RAWG client operations to enable mocking
type Client interface {
	// Search queries the RAWG catalog by game name
	Search(ctx context.Context, query string) ([]domain.ProviderResult, error)
}

// RAWGClient implements the RAWG client
type RAWGClient struct {
	httpClient     adapter.HTTPClient
	rateLimitProxy ratelimit.Proxy
	json           adapter.JSON
	apiURL         string
	apiKey         string
}

// NewClient creates a new RAWG client
func NewClient(httpClient adapter.HTTPClient, rateLimitProxy ratelimit.Proxy, apiURL string, apiKey string, json adapter.JSON) Client {
	return &RAWGClient{
		httpClient:     httpClient,
		rateLimitProxy: rateLimitProxy,
		json:           json,
		apiURL:         apiURL,
		apiKey:         apiKey,
	}
}

// Search queries the RAWG catalog by game name
func (c *RAWGClient) Search(ctx context.Context, query string) ([]domain.ProviderResult, error) {
	searchURL := fmt.Sprintf("%s/games?key=%s&search=%s&page_size=10",
		c.apiURL,
		url.QueryEscape(c.apiKey),
		url.QueryEscape(query),
	)

	respBody, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) ([]byte, error) {
		return c.httpClient.GetBytes(ctx, searchURL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call RAWG API: %w", err)
	}

	var response searchResponse
	if err := c.json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal RAWG response: %w", err)
	}

	results := make([]domain.ProviderResult, 0, len(response.Results))
	for _, g := range response.Results {
		if g.Name == "" {
			continue
		}

		result := domain.ProviderResult{
			ID:     fmt.Sprintf("rawg_%d", g.ID),
			Name:   g.Name,
			Source: domain.CatalogSourceRAWG,
		}
		if g.Released != nil && *g.Released != "" {
			result.ReleaseDate = g.Released
		}
		if g.BackgroundImage != nil && *g.BackgroundImage != "" {
			result.CoverURL = g.BackgroundImage
		}

		// The search response carries no store links, so the Steam app id
		// needs a detail lookup per game. Failures just leave it empty.
		result.SteamAppID = c.steamAppID(ctx, g.ID)

		results = append(results, result)
	}

	return results, nil
}

// steamAppID fetches the game detail and extracts the Steam app id from the
// Steam store link, if any
func (c *RAWGClient) steamAppID(ctx context.Context, gameID int64) *string {
	detailURL := fmt.Sprintf("%s/games/%d?key=%s", c.apiURL, gameID, url.QueryEscape(c.apiKey))

	respBody, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) ([]byte, error) {
		return c.httpClient.GetBytes(ctx, detailURL, nil)
	})
	if err != nil {
		return nil
	}

	var detail detailResponse
	if err := c.json.Unmarshal(respBody, &detail); err != nil {
		return nil
	}

	for _, entry := range detail.Stores {
		if entry.Store == nil || entry.Store.ID != steamStoreID || entry.URLEn == "" {
			continue
		}
		if match := steamAppIDPattern.FindStringSubmatch(entry.URLEn); match != nil {
			return &match[1]
		}
	}

	return nil
}
