package gamesdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/ratelimit"
)

const PROVIDER_NAME = "gamesdb"

const defaultImageBase = "https://cdn.thegamesdb.net/images/"

var ErrNoAPIKey = errors.New("no API key provided")

// game represents a game entry from the TheGamesDB API
type game struct {
	ID          int64  `json:"id"`
	GameTitle   string `json:"game_title"`
	ReleaseDate string `json:"release_date"`
}

// boxartImage represents a boxart entry from the include section
type boxartImage struct {
	Side     string `json:"side"`
	Filename string `json:"filename"`
}

// response represents the TheGamesDB ByGameName response
type response struct {
	Data struct {
		Games []game `json:"games"`
	} `json:"data"`
	Include struct {
		Boxart struct {
			BaseURL map[string]string        `json:"base_url"`
			Data    map[string][]boxartImage `json:"data"`
		} `json:"boxart"`
	} `json:"include"`
}

// Client defines the interface for TheGamesDB client operations to enable mocking
type Client interface {
	// Search queries the TheGamesDB catalog by game name
	Search(ctx context.Context, query string) ([]domain.ProviderResult, error)
}

// GamesDBClient implements the TheGamesDB client
type GamesDBClient struct {
	httpClient     adapter.HTTPClient
	rateLimitProxy ratelimit.Proxy
	json           adapter.JSON
	apiURL         string
	apiKey         string
}

// NewClient creates a new TheGamesDB client
func NewClient(httpClient adapter.HTTPClient, rateLimitProxy ratelimit.Proxy, apiURL string, apiKey string, json adapter.JSON) Client {
	return &GamesDBClient{
		httpClient:     httpClient,
		rateLimitProxy: rateLimitProxy,
		json:           json,
		apiURL:         apiURL,
		apiKey:         apiKey,
	}
}

// Search queries the TheGamesDB catalog by game name
func (c *GamesDBClient) Search(ctx context.Context, query string) ([]domain.ProviderResult, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	searchURL := fmt.Sprintf("%s/Games/ByGameName?apikey=%s&name=%s&include=boxart",
		c.apiURL,
		url.QueryEscape(c.apiKey),
		url.QueryEscape(query),
	)

	respBody, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) ([]byte, error) {
		return c.httpClient.GetBytes(ctx, searchURL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call TheGamesDB API: %w", err)
	}

	var resp response
	if err := c.json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal TheGamesDB response: %w", err)
	}

	baseURL := resp.Include.Boxart.BaseURL["medium"]
	if baseURL == "" {
		baseURL = resp.Include.Boxart.BaseURL["original"]
	}
	if baseURL == "" {
		baseURL = defaultImageBase
	}

	games := resp.Data.Games
	if len(games) > 10 {
		games = games[:10]
	}

	results := make([]domain.ProviderResult, 0, len(games))
	for _, g := range games {
		if g.GameTitle == "" {
			continue
		}

		result := domain.ProviderResult{
			ID:     fmt.Sprintf("thegamesdb_%d", g.ID),
			Name:   g.GameTitle,
			Source: domain.CatalogSourceGamesDB,
			// TheGamesDB carries no Steam app ids
		}

		if date := parseReleaseDate(g.ReleaseDate); date != "" {
			result.ReleaseDate = &date
		}
		if coverURL := frontBoxart(resp.Include.Boxart.Data[fmt.Sprintf("%d", g.ID)], baseURL); coverURL != "" {
			result.CoverURL = &coverURL
		}

		results = append(results, result)
	}

	return results, nil
}

// frontBoxart picks the front cover of a game, falling back to the first image
func frontBoxart(images []boxartImage, baseURL string) string {
	for _, img := range images {
		if img.Side == "front" && img.Filename != "" {
			return baseURL + img.Filename
		}
	}
	if len(images) > 0 && images[0].Filename != "" {
		return baseURL + images[0].Filename
	}
	return ""
}

// parseReleaseDate normalizes the varying TheGamesDB date formats to YYYY-MM-DD
func parseReleaseDate(raw string) string {
	if raw == "" {
		return ""
	}

	layouts := []string{domain.DateLayout, "2006-01-02 15:04:05", "01/02/2006"}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format(domain.DateLayout)
		}
	}

	return ""
}
