package rawg_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/providers/catalog/rawg"
)

type fakeHTTPClient struct {
	responses map[string][]byte
	errs      map[string]error
	getCalls  []string
}

func (f *fakeHTTPClient) Get(ctx context.Context, url string, headers map[string]string, result interface{}) error {
	panic("not used")
}

func (f *fakeHTTPClient) GetBytes(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	f.getCalls = append(f.getCalls, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.responses[url], nil
}

func (f *fakeHTTPClient) PostBytes(ctx context.Context, url string, headers map[string]string, body []byte) ([]byte, error) {
	panic("not used")
}

const apiURL = "https://api.rawg.io/api"

func TestRAWGClient_Search(t *testing.T) {
	httpClient := &fakeHTTPClient{
		responses: map[string][]byte{
			apiURL + "/games?key=test-key&search=hollow+knight&page_size=10": []byte(`{
				"results": [
					{
						"id": 9767,
						"name": "Hollow Knight",
						"released": "2017-02-23",
						"background_image": "https://media.rawg.io/media/games/hk.jpg"
					},
					{
						"id": 100,
						"name": "No Steam Game"
					}
				]
			}`),
			apiURL + "/games/9767?key=test-key": []byte(`{
				"stores": [
					{"url_en": "https://www.gog.com/game/hollow_knight", "store": {"id": 5}},
					{"url_en": "https://store.steampowered.com/app/367520/Hollow_Knight/", "store": {"id": 1}}
				]
			}`),
			apiURL + "/games/100?key=test-key": []byte(`{"stores": []}`),
		},
	}

	client := rawg.NewClient(httpClient, nil, apiURL, "test-key", adapter.NewJSON())

	results, err := client.Search(context.Background(), "hollow knight")
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "rawg_9767", first.ID)
	assert.Equal(t, "Hollow Knight", first.Name)
	assert.Equal(t, domain.CatalogSourceRAWG, first.Source)
	require.NotNil(t, first.ReleaseDate)
	assert.Equal(t, "2017-02-23", *first.ReleaseDate)
	require.NotNil(t, first.CoverURL)
	assert.Equal(t, "https://media.rawg.io/media/games/hk.jpg", *first.CoverURL)
	require.NotNil(t, first.SteamAppID)
	assert.Equal(t, "367520", *first.SteamAppID)

	second := results[1]
	assert.Equal(t, "rawg_100", second.ID)
	assert.Nil(t, second.ReleaseDate)
	assert.Nil(t, second.CoverURL)
	assert.Nil(t, second.SteamAppID)
}

func TestRAWGClient_Search_DetailLookupFailure(t *testing.T) {
	httpClient := &fakeHTTPClient{
		responses: map[string][]byte{
			apiURL + "/games?key=test-key&search=celeste&page_size=10": []byte(`{
				"results": [{"id": 42, "name": "Celeste", "released": "2018-01-25"}]
			}`),
		},
		errs: map[string]error{
			apiURL + "/games/42?key=test-key": fmt.Errorf("service unavailable"),
		},
	}

	client := rawg.NewClient(httpClient, nil, apiURL, "test-key", adapter.NewJSON())

	results, err := client.Search(context.Background(), "celeste")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].SteamAppID)
}
