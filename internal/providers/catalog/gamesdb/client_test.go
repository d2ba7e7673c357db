package gamesdb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/providers/catalog/gamesdb"
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

const apiURL = "https://api.thegamesdb.net/v1"

func TestGamesDBClient_Search(t *testing.T) {
	httpClient := &fakeHTTPClient{
		responses: map[string][]byte{
			apiURL + "/Games/ByGameName?apikey=test-key&name=hollow+knight&include=boxart": []byte(`{
				"data": {
					"games": [
						{"id": 51122, "game_title": "Hollow Knight", "release_date": "2017-02-24"},
						{"id": 51123, "game_title": "Hollow Knight: Silksong", "release_date": "2025-09-04 00:00:00"},
						{"id": 51124, "game_title": "Unknown Date Game", "release_date": "sometime"}
					]
				},
				"include": {
					"boxart": {
						"base_url": {"medium": "https://cdn.thegamesdb.net/images/medium/"},
						"data": {
							"51122": [
								{"side": "back", "filename": "boxart/back/51122-1.jpg"},
								{"side": "front", "filename": "boxart/front/51122-1.jpg"}
							],
							"51123": [
								{"side": "back", "filename": "boxart/back/51123-1.jpg"}
							]
						}
					}
				}
			}`),
		},
	}

	client := gamesdb.NewClient(httpClient, nil, apiURL, "test-key", adapter.NewJSON())

	results, err := client.Search(context.Background(), "hollow knight")
	require.NoError(t, err)
	require.Len(t, results, 3)

	first := results[0]
	assert.Equal(t, "thegamesdb_51122", first.ID)
	assert.Equal(t, "Hollow Knight", first.Name)
	assert.Equal(t, domain.CatalogSourceGamesDB, first.Source)
	require.NotNil(t, first.ReleaseDate)
	assert.Equal(t, "2017-02-24", *first.ReleaseDate)
	require.NotNil(t, first.CoverURL)
	assert.Equal(t, "https://cdn.thegamesdb.net/images/medium/boxart/front/51122-1.jpg", *first.CoverURL)
	assert.Nil(t, first.SteamAppID)

	// Timestamp dates get normalized, back boxart is the fallback
	second := results[1]
	require.NotNil(t, second.ReleaseDate)
	assert.Equal(t, "2025-09-04", *second.ReleaseDate)
	require.NotNil(t, second.CoverURL)
	assert.Equal(t, "https://cdn.thegamesdb.net/images/medium/boxart/back/51123-1.jpg", *second.CoverURL)

	third := results[2]
	assert.Nil(t, third.ReleaseDate)
	assert.Nil(t, third.CoverURL)
}

func TestGamesDBClient_Search_NoAPIKey(t *testing.T) {
	client := gamesdb.NewClient(&fakeHTTPClient{}, nil, apiURL, "", adapter.NewJSON())

	_, err := client.Search(context.Background(), "anything")
	assert.ErrorIs(t, err, gamesdb.ErrNoAPIKey)
}
