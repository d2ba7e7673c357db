package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/providers/directory"
	"github.com/questlog/questlog/internal/store"
	"github.com/questlog/questlog/internal/store/schema"
	"github.com/questlog/questlog/internal/sweeper"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time                  { return c.now }
func (c *fakeClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }
func (c *fakeClock) Sleep(d time.Duration)           {}
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now.Add(d)
	return ch
}

// fakeAuth issues no real JWTs; tokens are looked up verbatim
type fakeAuth struct {
	tokens     map[string]*auth.Claims
	loginErr   error
	loginUser  *schema.User
	loginToken string
}

func (f *fakeAuth) Login(ctx context.Context, username, password, clientIP string) (string, *schema.User, error) {
	if f.loginErr != nil {
		return "", nil, f.loginErr
	}
	return f.loginToken, f.loginUser, nil
}

func (f *fakeAuth) ValidateToken(tokenString string) (*auth.Claims, error) {
	claims, ok := f.tokens[tokenString]
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return claims, nil
}

func (f *fakeAuth) HashPassword(password string) (string, error) {
	return "hashed:" + password, nil
}

func (f *fakeAuth) EnsureAdmin(ctx context.Context) error { return nil }

type fakeStore struct {
	store.Store

	users  map[string]*schema.User
	games  map[int64]*schema.TrackedGame
	shares map[int64][]int64
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[string]*schema.User),
		games:  make(map[int64]*schema.TrackedGame),
		shares: make(map[int64][]int64),
		nextID: 1,
	}
}

func (f *fakeStore) addUser(user *schema.User) *schema.User {
	user.ID = f.nextID
	f.nextID++
	f.users[user.Username] = user
	return user
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID int64) (*schema.User, error) {
	for _, user := range f.users {
		if user.ID == userID {
			return user, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*schema.User, error) {
	return f.users[domain.NormalizeUsername(username)], nil
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]*schema.User, error) {
	out := make([]*schema.User, 0, len(f.users))
	for _, user := range f.users {
		out = append(out, user)
	}
	return out, nil
}

func (f *fakeStore) CreateUser(ctx context.Context, user *schema.User) error {
	if _, ok := f.users[user.Username]; ok {
		return domain.ErrUserExists
	}
	f.addUser(user)
	return nil
}

func (f *fakeStore) UpdateUserEmail(ctx context.Context, userID int64, email *string) error {
	return nil
}

func (f *fakeStore) UpdateDirectoryProfile(ctx context.Context, userID int64, displayName, email *string) error {
	for _, user := range f.users {
		if user.ID == userID {
			if displayName != nil {
				user.DisplayName = displayName
			}
			if email != nil {
				user.Email = email
			}
		}
	}
	return nil
}

func (f *fakeStore) UpdateUserPushTopic(ctx context.Context, userID int64, topic *string) error {
	return nil
}

func (f *fakeStore) UpdateUserSharing(ctx context.Context, userID int64, sharesLibrary bool) error {
	for _, user := range f.users {
		if user.ID == userID {
			user.SharesLibrary = sharesLibrary
		}
	}
	return nil
}

func (f *fakeStore) ListGames(ctx context.Context, userID int64) ([]*schema.TrackedGame, error) {
	var out []*schema.TrackedGame
	for _, game := range f.games {
		if game.UserID == userID {
			out = append(out, game)
		}
	}
	return out, nil
}

func (f *fakeStore) GetGame(ctx context.Context, userID, gameID int64) (*schema.TrackedGame, error) {
	game, ok := f.games[gameID]
	if !ok || game.UserID != userID {
		return nil, nil
	}
	return game, nil
}

func (f *fakeStore) AddGame(ctx context.Context, game *schema.TrackedGame) error {
	game.ID = f.nextID
	f.nextID++
	f.games[game.ID] = game
	return nil
}

func (f *fakeStore) UpdateGame(ctx context.Context, game *schema.TrackedGame) error {
	f.games[game.ID] = game
	return nil
}

func (f *fakeStore) DeleteGame(ctx context.Context, userID, gameID int64) error {
	game, ok := f.games[gameID]
	if !ok || game.UserID != userID {
		return domain.ErrGameNotFound
	}
	delete(f.games, gameID)
	return nil
}

func (f *fakeStore) ListSharesFrom(ctx context.Context, fromUserID int64) ([]*schema.LibraryShare, error) {
	var out []*schema.LibraryShare
	for _, toID := range f.shares[fromUserID] {
		out = append(out, &schema.LibraryShare{FromUserID: fromUserID, ToUserID: toID})
	}
	return out, nil
}

func (f *fakeStore) SetShares(ctx context.Context, fromUserID int64, toUserIDs []int64) error {
	f.shares[fromUserID] = toUserIDs
	return nil
}

func (f *fakeStore) HasShare(ctx context.Context, fromUserID, toUserID int64) (bool, error) {
	for _, id := range f.shares[fromUserID] {
		if id == toUserID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) Counts(ctx context.Context) (*store.Counts, error) {
	return &store.Counts{Users: int64(len(f.users)), Games: int64(len(f.games))}, nil
}

type fakeEngine struct {
	results map[string][]domain.MergedResult
	err     error
}

func (f *fakeEngine) Search(ctx context.Context, query string) ([]domain.MergedResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

func (f *fakeEngine) Close() error { return nil }

type fakeDispatcher struct {
	events []domain.LibraryEvent
	result domain.DispatchResult
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, user *schema.User, event domain.LibraryEvent) domain.DispatchResult {
	f.events = append(f.events, event)
	return f.result
}

type fakeSteam struct {
	price *domain.PriceInfo
	err   error
}

func (f *fakeSteam) GetPrice(ctx context.Context, appID string) (*domain.PriceInfo, error) {
	return f.price, f.err
}

type fakeReleaseSweeper struct {
	report sweeper.SweepReport
	runs   int
}

func (f *fakeReleaseSweeper) Start(ctx context.Context) error { return nil }
func (f *fakeReleaseSweeper) Stop(ctx context.Context) error  { return nil }
func (f *fakeReleaseSweeper) Name() string                    { return "release" }
func (f *fakeReleaseSweeper) RunOnce(ctx context.Context) (*sweeper.SweepReport, error) {
	f.runs++
	return &f.report, nil
}

type fakePriceSweeper struct {
	report sweeper.PriceReport
}

func (f *fakePriceSweeper) Start(ctx context.Context) error { return nil }
func (f *fakePriceSweeper) Stop(ctx context.Context) error  { return nil }
func (f *fakePriceSweeper) Name() string                    { return "price" }
func (f *fakePriceSweeper) RunOnce(ctx context.Context) (*sweeper.PriceReport, error) {
	return &f.report, nil
}

type fakeDirectory struct {
	enabled bool
	entries map[string]*directory.User
}

func (f *fakeDirectory) Enabled() bool { return f.enabled }

func (f *fakeDirectory) Authenticate(ctx context.Context, username, password string) (*directory.User, error) {
	return nil, directory.ErrUserNotFound
}

func (f *fakeDirectory) Lookup(ctx context.Context, username string) (*directory.User, error) {
	entry, ok := f.entries[username]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return entry, nil
}

type fixture struct {
	router     *gin.Engine
	store      *fakeStore
	authSvc    *fakeAuth
	engine     *fakeEngine
	dispatcher *fakeDispatcher
	steam      *fakeSteam
	releases   *fakeReleaseSweeper
	prices     *fakePriceSweeper
	directory  *fakeDirectory
	clock      *fakeClock
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)

	f := &fixture{
		store:      newFakeStore(),
		authSvc:    &fakeAuth{tokens: make(map[string]*auth.Claims)},
		engine:     &fakeEngine{results: make(map[string][]domain.MergedResult)},
		dispatcher: &fakeDispatcher{},
		steam:      &fakeSteam{},
		releases:   &fakeReleaseSweeper{},
		prices:     &fakePriceSweeper{},
		directory:  &fakeDirectory{entries: make(map[string]*directory.User)},
		clock:      &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
	}

	handler := NewHandler(f.store, f.authSvc, f.engine, f.dispatcher, f.steam,
		f.releases, f.prices, f.directory, f.clock)

	f.router = gin.New()
	SetupRoutes(f.router, handler, f.authSvc)
	return f
}

// user registers an account and a token for it
func (f *fixture) user(username string, isAdmin bool) *schema.User {
	user := f.store.addUser(&schema.User{
		Username: username,
		Origin:   domain.OriginLocal,
		IsAdmin:  isAdmin,
	})
	f.authSvc.tokens["token-"+username] = &auth.Claims{
		Username: username,
		IsAdmin:  isAdmin,
		Origin:   domain.OriginLocal,
	}
	return user
}

func (f *fixture) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func strPtr(s string) *string {
	return &s
}

func TestLogin(t *testing.T) {
	f := newFixture()
	f.authSvc.loginToken = "issued-token"
	f.authSvc.loginUser = &schema.User{ID: 1, Username: "alice", Origin: domain.OriginLocal}

	rec := f.request(t, http.MethodPost, "/api/v1/auth/login", "",
		gin.H{"username": "alice", "password": "hunter22"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.JSONEq(t, `"issued-token"`, string(resp["token"]))
}

func TestLogin_Locked(t *testing.T) {
	f := newFixture()
	f.authSvc.loginErr = domain.ErrLoginLocked

	rec := f.request(t, http.MethodPost, "/api/v1/auth/login", "",
		gin.H{"username": "alice", "password": "hunter22"})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture()
	f.authSvc.loginErr = domain.ErrInvalidCredentials

	rec := f.request(t, http.MethodPost, "/api/v1/auth/login", "",
		gin.H{"username": "alice", "password": "wrong"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodGet, "/api/v1/games/search?q=hollow", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/v1/games/search?q=hollow", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminGate(t *testing.T) {
	f := newFixture()
	f.user("alice", false)

	rec := f.request(t, http.MethodGet, "/api/v1/users", "token-alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.user("root", true)
	rec = f.request(t, http.MethodGet, "/api/v1/users", "token-root", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateUser(t *testing.T) {
	f := newFixture()
	f.user("root", true)

	rec := f.request(t, http.MethodPost, "/api/v1/users", "token-root",
		gin.H{"username": "NewUser", "password": "longenough"})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := f.store.users["newuser"]
	require.NotNil(t, created)
	assert.Equal(t, domain.OriginLocal, created.Origin)
	require.NotNil(t, created.PasswordHash)
	assert.Equal(t, "hashed:longenough", *created.PasswordHash)

	// Short passwords are rejected
	rec = f.request(t, http.MethodPost, "/api/v1/users", "token-root",
		gin.H{"username": "other", "password": "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Duplicates are rejected
	rec = f.request(t, http.MethodPost, "/api/v1/users", "token-root",
		gin.H{"username": "newuser", "password": "longenough"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAddGame_DispatchesEvent(t *testing.T) {
	f := newFixture()
	f.user("alice", false)

	rec := f.request(t, http.MethodPost, "/api/v1/users/alice/games", "token-alice",
		gin.H{"name": "Hollow Knight", "status": "playing", "releaseDate": "2017-02-24"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, f.dispatcher.events, 1)
	event := f.dispatcher.events[0]
	assert.Equal(t, domain.EventGameAdded, event.Type)
	assert.Equal(t, "alice", event.Username)
	assert.Equal(t, "Hollow Knight", event.GameName)
	assert.Equal(t, domain.GameStatusPlaying, event.Status)
}

func TestAddGame_NoDateForcesUnreleased(t *testing.T) {
	f := newFixture()
	f.user("alice", false)

	rec := f.request(t, http.MethodPost, "/api/v1/users/alice/games", "token-alice",
		gin.H{"name": "Silksong", "status": "playing"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, f.store.games, 1)
	for _, game := range f.store.games {
		assert.Equal(t, domain.GameStatusUnreleased, game.Status)
		assert.Nil(t, game.ReleaseDate)
	}
	require.Len(t, f.dispatcher.events, 1)
	assert.Equal(t, domain.GameStatusUnreleased, f.dispatcher.events[0].Status)
}

func TestAddGame_OtherLibraryForbidden(t *testing.T) {
	f := newFixture()
	f.user("alice", false)
	f.user("bob", false)

	rec := f.request(t, http.MethodPost, "/api/v1/users/bob/games", "token-alice",
		gin.H{"name": "Hollow Knight"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admins may manage any library
	f.user("root", true)
	rec = f.request(t, http.MethodPost, "/api/v1/users/bob/games", "token-root",
		gin.H{"name": "Hollow Knight"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUpdateGame_StatusChangeEmitsEvents(t *testing.T) {
	f := newFixture()
	alice := f.user("alice", false)
	game := &schema.TrackedGame{
		UserID:      alice.ID,
		Name:        "Silksong",
		Status:      domain.GameStatusUnreleased,
		ReleaseDate: strPtr("2026-03-01"), // past relative to the fixture clock
	}
	require.NoError(t, f.store.AddGame(context.Background(), game))

	rec := f.request(t, http.MethodPut,
		"/api/v1/users/alice/games/"+jsonNumber(game.ID), "token-alice",
		gin.H{"status": "playing"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Unreleased to released status with a past date emits both events
	require.Len(t, f.dispatcher.events, 2)
	assert.Equal(t, domain.EventStatusChanged, f.dispatcher.events[0].Type)
	assert.Equal(t, domain.EventGameReleased, f.dispatcher.events[1].Type)
}

func TestUpdateGame_FutureDateNoReleaseEvent(t *testing.T) {
	f := newFixture()
	alice := f.user("alice", false)
	game := &schema.TrackedGame{
		UserID:      alice.ID,
		Name:        "Silksong",
		Status:      domain.GameStatusUnreleased,
		ReleaseDate: strPtr("2026-06-01"),
	}
	require.NoError(t, f.store.AddGame(context.Background(), game))

	rec := f.request(t, http.MethodPut,
		"/api/v1/users/alice/games/"+jsonNumber(game.ID), "token-alice",
		gin.H{"status": "wishlist"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.dispatcher.events, 1)
	assert.Equal(t, domain.EventStatusChanged, f.dispatcher.events[0].Type)
}

func TestUpdateGame_ClearingDateForcesUnreleased(t *testing.T) {
	f := newFixture()
	alice := f.user("alice", false)
	game := &schema.TrackedGame{
		UserID:      alice.ID,
		Name:        "Silksong",
		Status:      domain.GameStatusWishlist,
		ReleaseDate: strPtr("2026-06-01"),
	}
	require.NoError(t, f.store.AddGame(context.Background(), game))

	rec := f.request(t, http.MethodPut,
		"/api/v1/users/alice/games/"+jsonNumber(game.ID), "token-alice",
		gin.H{"releaseDate": ""})
	require.Equal(t, http.StatusOK, rec.Code)

	stored := f.store.games[game.ID]
	assert.Nil(t, stored.ReleaseDate)
	assert.Equal(t, domain.GameStatusUnreleased, stored.Status)

	// The forced status change is reported like any other
	require.Len(t, f.dispatcher.events, 1)
	assert.Equal(t, domain.EventStatusChanged, f.dispatcher.events[0].Type)
}

func TestListGames_AccessRules(t *testing.T) {
	f := newFixture()
	alice := f.user("alice", false)
	bob := f.user("bob", false)
	f.user("carol", false)
	require.NoError(t, f.store.AddGame(context.Background(),
		&schema.TrackedGame{UserID: alice.ID, Name: "Hades", Status: domain.GameStatusDone}))

	// Owner sees their own library
	rec := f.request(t, http.MethodGet, "/api/v1/users/alice/games", "token-alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Strangers are rejected
	rec = f.request(t, http.MethodGet, "/api/v1/users/alice/games", "token-bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A grant opens the library for its holder only
	require.NoError(t, f.store.SetShares(context.Background(), alice.ID, []int64{bob.ID}))
	rec = f.request(t, http.MethodGet, "/api/v1/users/alice/games", "token-bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.request(t, http.MethodGet, "/api/v1/users/alice/games", "token-carol", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The sharing flag opens it for everyone
	alice.SharesLibrary = true
	rec = f.request(t, http.MethodGet, "/api/v1/users/alice/games", "token-carol", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshMetadata(t *testing.T) {
	f := newFixture()
	alice := f.user("alice", false)
	game := &schema.TrackedGame{
		UserID: alice.ID,
		Name:   "Hollow Knight",
		Status: domain.GameStatusWishlist,
	}
	require.NoError(t, f.store.AddGame(context.Background(), game))
	require.NoError(t, f.store.AddGame(context.Background(),
		&schema.TrackedGame{UserID: alice.ID, Name: "Obscure Indie", Status: domain.GameStatusWishlist}))

	f.engine.results["Hollow Knight"] = []domain.MergedResult{
		{
			ID:          "igdb_1942",
			Name:        "HOLLOW KNIGHT", // case differences still match
			ReleaseDate: strPtr("2017-02-24"),
			CoverURL:    strPtr("https://img.example.org/hk.jpg"),
			SteamAppID:  strPtr("367520"),
			Source:      domain.CatalogSourceIGDB,
		},
	}

	rec := f.request(t, http.MethodPost, "/api/v1/users/alice/games/refresh", "token-alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Checked int `json:"checked"`
		Updated int `json:"updated"`
		Items   []struct {
			Name    string `json:"name"`
			Outcome string `json:"outcome"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Updated)

	outcomes := make(map[string]string)
	for _, item := range report.Items {
		outcomes[item.Name] = item.Outcome
	}
	assert.Equal(t, "updated", outcomes["Hollow Knight"])
	assert.Equal(t, "no_match", outcomes["Obscure Indie"])

	updated := f.store.games[game.ID]
	assert.Equal(t, "2017-02-24", *updated.ReleaseDate)
	assert.Equal(t, "367520", *updated.SteamAppID)
}

func TestSearchGames(t *testing.T) {
	f := newFixture()
	f.user("alice", false)
	f.engine.results["silksong"] = []domain.MergedResult{
		{ID: "igdb_7", Name: "Silksong", Source: domain.CatalogSourceIGDB},
	}

	rec := f.request(t, http.MethodGet, "/api/v1/games/search?q=silksong", "token-alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Silksong"`)

	rec = f.request(t, http.MethodGet, "/api/v1/games/search?q=", "token-alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPrice_NotFound(t *testing.T) {
	f := newFixture()
	f.user("alice", false)
	f.steam.err = domain.ErrPriceNotFound

	rec := f.request(t, http.MethodGet, "/api/v1/games/price/367520", "token-alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShares_ReplaceAndRevoke(t *testing.T) {
	f := newFixture()
	alice := f.user("alice", false)
	bob := f.user("bob", false)
	carol := f.user("carol", false)

	rec := f.request(t, http.MethodPost, "/api/v1/users/alice/shares", "token-alice",
		gin.H{"usernames": []string{"bob", "carol"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []int64{bob.ID, carol.ID}, f.store.shares[alice.ID])

	rec = f.request(t, http.MethodDelete, "/api/v1/users/alice/shares/bob", "token-alice", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{carol.ID}, f.store.shares[alice.ID])

	// Unknown grantees fail the whole replace
	rec = f.request(t, http.MethodPost, "/api/v1/users/alice/shares", "token-alice",
		gin.H{"usernames": []string{"nobody"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSharedWithMe_RecipientRevokes(t *testing.T) {
	f := newFixture()
	alice := f.user("alice", false)
	bob := f.user("bob", false)
	carol := f.user("carol", false)
	f.store.shares[alice.ID] = []int64{bob.ID, carol.ID}

	// Bob rejects the share Alice made to him
	rec := f.request(t, http.MethodDelete, "/api/v1/me/shared-with-me/alice", "token-bob", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{carol.ID}, f.store.shares[alice.ID])

	// A second revoke finds nothing
	rec = f.request(t, http.MethodDelete, "/api/v1/me/shared-with-me/alice", "token-bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The share to Carol is untouched by Bob
	rec = f.request(t, http.MethodDelete, "/api/v1/me/shared-with-me/nobody", "token-carol", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []int64{carol.ID}, f.store.shares[alice.ID])
}

func TestAdminReleasesCheck(t *testing.T) {
	f := newFixture()
	f.user("root", true)
	f.releases.report = sweeper.SweepReport{GamesChecked: 4, RemindersSent: 2, Released: 1}

	rec := f.request(t, http.MethodPost, "/api/v1/admin/releases/check", "token-root", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.releases.runs)
	assert.Contains(t, rec.Body.String(), `"remindersSent":2`)
}

func TestAdminTestNotification(t *testing.T) {
	f := newFixture()
	f.user("root", true)
	f.user("alice", false)
	f.dispatcher.result = domain.DispatchResult{
		Email: domain.ChannelOutcome{Status: domain.ChannelSent},
		Push:  domain.ChannelOutcome{Status: domain.ChannelSkipped},
	}

	rec := f.request(t, http.MethodPost, "/api/v1/admin/notifications/test", "token-root",
		gin.H{"username": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.dispatcher.events, 1)
	assert.Equal(t, domain.EventTestNotification, f.dispatcher.events[0].Type)

	var result domain.DispatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.ChannelSent, result.Email.Status)
	assert.Equal(t, domain.ChannelSkipped, result.Push.Status)
}

func TestAdminDirectorySync(t *testing.T) {
	f := newFixture()
	f.user("root", true)
	dirUser := f.store.addUser(&schema.User{Username: "erin", Origin: domain.OriginDirectory})
	f.directory.enabled = true
	f.directory.entries["erin"] = &directory.User{
		Username:    "erin",
		DisplayName: "Erin Example",
		Email:       strPtr("erin@corp.example.org"),
	}

	rec := f.request(t, http.MethodPost, "/api/v1/admin/directory/sync", "token-root", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"updated":1`)
	_ = dirUser
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	f.user("alice", false)

	rec := f.request(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"users":1`)
}

func jsonNumber(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}
