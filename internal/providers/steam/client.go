package steam

import (
	"context"
	"fmt"
	"net/url"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/ratelimit"
)

const PROVIDER_NAME = "steam"

// appDetails represents a single entry of the Steam appdetails response
type appDetails struct {
	Success bool `json:"success"`
	Data    struct {
		PriceOverview *priceOverview `json:"price_overview"`
	} `json:"data"`
}

type priceOverview struct {
	FinalFormatted   string `json:"final_formatted"`
	Currency         string `json:"currency"`
	DiscountPercent  int    `json:"discount_percent"`
	InitialFormatted string `json:"initial_formatted"`
}

// Client defines the interface for Steam store client operations to enable mocking
type Client interface {
	// GetPrice fetches the current store price for a Steam app
	GetPrice(ctx context.Context, appID string) (*domain.PriceInfo, error)
}

// SteamClient implements the Steam store client
type SteamClient struct {
	httpClient     adapter.HTTPClient
	rateLimitProxy ratelimit.Proxy
	json           adapter.JSON
	apiURL         string
	countryCode    string
}

// NewClient creates a new Steam store client
func NewClient(httpClient adapter.HTTPClient, rateLimitProxy ratelimit.Proxy, apiURL string, countryCode string, json adapter.JSON) Client {
	return &SteamClient{
		httpClient:     httpClient,
		rateLimitProxy: rateLimitProxy,
		json:           json,
		apiURL:         apiURL,
		countryCode:    countryCode,
	}
}

// GetPrice fetches the current store price for a Steam app.
// Returns domain.ErrPriceNotFound when the app is unknown or has no price
// (free to play, unreleased, delisted).
func (c *SteamClient) GetPrice(ctx context.Context, appID string) (*domain.PriceInfo, error) {
	detailsURL := fmt.Sprintf("%s/appdetails?appids=%s&cc=%s&l=en",
		c.apiURL,
		url.QueryEscape(appID),
		url.QueryEscape(c.countryCode),
	)

	respBody, err := ratelimit.Request(ctx, c.rateLimitProxy, PROVIDER_NAME, func(ctx context.Context) ([]byte, error) {
		return c.httpClient.GetBytes(ctx, detailsURL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call Steam API: %w", err)
	}

	var response map[string]appDetails
	if err := c.json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Steam response: %w", err)
	}

	details, ok := response[appID]
	if !ok || !details.Success {
		return nil, domain.ErrPriceNotFound
	}
	if details.Data.PriceOverview == nil {
		return nil, domain.ErrPriceNotFound
	}

	return &domain.PriceInfo{
		Price:           details.Data.PriceOverview.FinalFormatted,
		Currency:        details.Data.PriceOverview.Currency,
		DiscountPercent: details.Data.PriceOverview.DiscountPercent,
		OriginalPrice:   details.Data.PriceOverview.InitialFormatted,
	}, nil
}
