package igdb

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/ratelimit"
)

const PROVIDER_NAME = "igdb"

const coverURLTemplate = "https://images.igdb.com/igdb/image/upload/t_cover_big/%s.jpg"

// steamCategory is the external_games category IGDB uses for Steam
const steamCategory = 1

// game represents a game entry from the IGDB API
type game struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	FirstReleaseDate int64          `json:"first_release_date"`
	Cover            *cover         `json:"cover"`
	ExternalGames    []externalGame `json:"external_games"`
}

type cover struct {
	ImageID string `json:"image_id"`
}

type externalGame struct {
	Category int    `json:"category"`
	UID      string `json:"uid"`
}

// tokenResponse represents the Twitch OAuth client-credentials response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client defines the interface for IGDB client operations to enable mocking
type Client interface {
	// Search queries the IGDB catalog by game name
	Search(ctx context.Context, query string) ([]domain.ProviderResult, error)
}

// IGDBClient implements the IGDB client
type IGDBClient struct {
	httpClient     adapter.HTTPClient
	rateLimitProxy ratelimit.Proxy
	json           adapter.JSON
	clock          adapter.Clock
	tokenURL       string
	apiURL         string
	clientID       string
	clientSecret   string

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a new IGDB client
func NewClient(httpClient adapter.HTTPClient, rateLimitProxy ratelimit.Proxy, tokenURL, apiURL, clientID, clientSecret string, json adapter.JSON, clock adapter.Clock) Client {
	return &IGDBClient{
		httpClient:     httpClient,
		rateLimitProxy: rateLimitProxy,
		json:           json,
		clock:          clock,
		tokenURL:       tokenURL,
		apiURL:         apiURL,
		clientID:       clientID,
		clientSecret:   clientSecret,
	}
}

// Search queries the IGDB catalog by game name
func (c *IGDBClient) Search(ctx context.Context, query string) ([]domain.ProviderResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get IGDB access token: %w", err)
	}

	body := fmt.Sprintf("search %q; fields id,name,first_release_date,cover.image_id,external_games.category,external_games.uid; limit 10;", query)
	headers := map[string]string{
		"Client-ID":     c.clientID,
		"Authorization": "Bearer " + token,
		"Accept":        "application/json",
	}

	respBody, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) ([]byte, error) {
		return c.httpClient.PostBytes(ctx, c.apiURL+"/games", headers, []byte(body))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call IGDB API: %w", err)
	}

	var games []game
	if err := c.json.Unmarshal(respBody, &games); err != nil {
		return nil, fmt.Errorf("failed to unmarshal IGDB response: %w", err)
	}

	results := make([]domain.ProviderResult, 0, len(games))
	for _, g := range games {
		if g.Name == "" {
			continue
		}

		result := domain.ProviderResult{
			ID:     fmt.Sprintf("igdb_%d", g.ID),
			Name:   g.Name,
			Source: domain.CatalogSourceIGDB,
		}

		if g.FirstReleaseDate > 0 {
			date := time.Unix(g.FirstReleaseDate, 0).UTC().Format(domain.DateLayout)
			result.ReleaseDate = &date
		}
		if g.Cover != nil && g.Cover.ImageID != "" {
			coverURL := fmt.Sprintf(coverURLTemplate, g.Cover.ImageID)
			result.CoverURL = &coverURL
		}
		for _, ext := range g.ExternalGames {
			if ext.Category == steamCategory && ext.UID != "" {
				uid := ext.UID
				result.SteamAppID = &uid
				break
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// accessToken returns a cached Twitch OAuth token, refreshing it when it is
// missing or about to expire
func (c *IGDBClient) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && c.clock.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	tokenURL := fmt.Sprintf("%s?client_id=%s&client_secret=%s&grant_type=client_credentials",
		c.tokenURL,
		url.QueryEscape(c.clientID),
		url.QueryEscape(c.clientSecret),
	)

	respBody, err := c.httpClient.PostBytes(ctx, tokenURL, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to call token endpoint: %w", err)
	}

	var token tokenResponse
	if err := c.json.Unmarshal(respBody, &token); err != nil {
		return "", fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	c.token = token.AccessToken
	// Refresh a minute early to avoid using a token that expires mid-request
	c.tokenExpiry = c.clock.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)

	return c.token, nil
}
