package steam_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/providers/steam"
)

type fakeHTTPClient struct {
	responses map[string][]byte
}

func (f *fakeHTTPClient) Get(ctx context.Context, url string, headers map[string]string, result interface{}) error {
	panic("not used")
}

func (f *fakeHTTPClient) GetBytes(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return f.responses[url], nil
}

func (f *fakeHTTPClient) PostBytes(ctx context.Context, url string, headers map[string]string, body []byte) ([]byte, error) {
	panic("not used")
}

const apiURL = "https://store.steampowered.com/api"

func newTestClient(responses map[string][]byte) steam.Client {
	return steam.NewClient(&fakeHTTPClient{responses: responses}, nil, apiURL, "de", adapter.NewJSON())
}

func TestSteamClient_GetPrice(t *testing.T) {
	client := newTestClient(map[string][]byte{
		apiURL + "/appdetails?appids=367520&cc=de&l=en": []byte(`{
			"367520": {
				"success": true,
				"data": {
					"price_overview": {
						"final_formatted": "7,37€",
						"currency": "EUR",
						"discount_percent": 50,
						"initial_formatted": "14,79€"
					}
				}
			}
		}`),
	})

	price, err := client.GetPrice(context.Background(), "367520")
	require.NoError(t, err)
	assert.Equal(t, &domain.PriceInfo{
		Price:           "7,37€",
		Currency:        "EUR",
		DiscountPercent: 50,
		OriginalPrice:   "14,79€",
	}, price)
}

func TestSteamClient_GetPrice_NotFound(t *testing.T) {
	testCases := []struct {
		name     string
		appID    string
		response []byte
	}{
		{
			name:     "unknown app",
			appID:    "999999",
			response: []byte(`{"999999": {"success": false}}`),
		},
		{
			name:     "free to play",
			appID:    "570",
			response: []byte(`{"570": {"success": true, "data": {}}}`),
		},
		{
			name:     "missing entry",
			appID:    "123",
			response: []byte(`{}`),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(map[string][]byte{
				apiURL + "/appdetails?appids=" + tc.appID + "&cc=de&l=en": tc.response,
			})

			_, err := client.GetPrice(context.Background(), tc.appID)
			assert.ErrorIs(t, err, domain.ErrPriceNotFound)
		})
	}
}
