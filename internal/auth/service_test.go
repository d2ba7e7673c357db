package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/providers/directory"
	"github.com/questlog/questlog/internal/store"
	"github.com/questlog/questlog/internal/store/schema"
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

type fakeStore struct {
	store.Store

	users    map[string]*schema.User
	attempts map[string][]time.Time
	profiles map[int64][2]*string
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*schema.User),
		attempts: make(map[string][]time.Time),
		profiles: make(map[int64][2]*string),
		nextID:   1,
	}
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*schema.User, error) {
	return f.users[domain.NormalizeUsername(username)], nil
}

func (f *fakeStore) CreateUser(ctx context.Context, user *schema.User) error {
	if _, ok := f.users[user.Username]; ok {
		return domain.ErrUserExists
	}
	user.ID = f.nextID
	f.nextID++
	f.users[user.Username] = user
	return nil
}

func (f *fakeStore) GetOrCreateDirectoryUser(ctx context.Context, username string) (*schema.User, error) {
	username = domain.NormalizeUsername(username)
	if user, ok := f.users[username]; ok {
		return user, nil
	}
	user := &schema.User{ID: f.nextID, Username: username, Origin: domain.OriginDirectory}
	f.nextID++
	f.users[username] = user
	return user, nil
}

func (f *fakeStore) UpdateDirectoryProfile(ctx context.Context, userID int64, displayName, email *string) error {
	f.profiles[userID] = [2]*string{displayName, email}
	return nil
}

func (f *fakeStore) CountLoginAttempts(ctx context.Context, clientIP string, since time.Time) (int64, error) {
	var count int64
	for _, at := range f.attempts[clientIP] {
		if !at.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) RecordLoginAttempt(ctx context.Context, clientIP string, at time.Time) error {
	f.attempts[clientIP] = append(f.attempts[clientIP], at)
	return nil
}

func (f *fakeStore) ClearLoginAttempts(ctx context.Context, clientIP string) error {
	delete(f.attempts, clientIP)
	return nil
}

type fakeDirectory struct {
	enabled bool
	user    *directory.User
	err     error
}

func (f *fakeDirectory) Enabled() bool { return f.enabled }

func (f *fakeDirectory) Authenticate(ctx context.Context, username, password string) (*directory.User, error) {
	return f.user, f.err
}

func (f *fakeDirectory) Lookup(ctx context.Context, username string) (*directory.User, error) {
	return f.user, f.err
}

func strPtr(s string) *string {
	return &s
}

var authCfg = config.AuthConfig{
	JWTSecret:        "test-secret",
	TokenTTL:         12 * time.Hour,
	LoginMaxAttempts: 5,
	LoginWindow:      15 * time.Minute,
}

func localUser(t *testing.T, st *fakeStore, username, password string) *schema.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	hashStr := string(hash)
	user := &schema.User{Username: username, PasswordHash: &hashStr, Origin: domain.OriginLocal}
	require.NoError(t, st.CreateUser(context.Background(), user))
	return user
}

func TestLogin_Local(t *testing.T) {
	st := newFakeStore()
	localUser(t, st, "alice", "hunter22")
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	svc := NewService(st, &fakeDirectory{}, clock, authCfg)

	token, user, err := svc.Login(context.Background(), "Alice", "hunter22", "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, domain.OriginLocal, claims.Origin)
	assert.False(t, claims.IsAdmin)
	assert.Equal(t, clock.now.Add(12*time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestLogin_WrongPassword(t *testing.T) {
	st := newFakeStore()
	localUser(t, st, "alice", "hunter22")
	svc := NewService(st, &fakeDirectory{}, &fakeClock{now: time.Now()}, authCfg)

	_, _, err := svc.Login(context.Background(), "alice", "wrong", "10.0.0.5")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Len(t, st.attempts["10.0.0.5"], 1)
}

func TestLogin_UnknownUser(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, &fakeDirectory{}, &fakeClock{now: time.Now()}, authCfg)

	_, _, err := svc.Login(context.Background(), "nobody", "whatever", "10.0.0.5")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_Lockout(t *testing.T) {
	st := newFakeStore()
	localUser(t, st, "alice", "hunter22")
	clock := &fakeClock{now: time.Now()}
	svc := NewService(st, &fakeDirectory{}, clock, authCfg)

	for i := 0; i < 5; i++ {
		_, _, err := svc.Login(context.Background(), "alice", "wrong", "10.0.0.5")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}

	// Even the right password is rejected while the address is locked
	_, _, err := svc.Login(context.Background(), "alice", "hunter22", "10.0.0.5")
	assert.ErrorIs(t, err, domain.ErrLoginLocked)

	// A different address is unaffected
	_, _, err = svc.Login(context.Background(), "alice", "hunter22", "10.0.0.9")
	assert.NoError(t, err)
}

func TestLogin_LockoutExpires(t *testing.T) {
	st := newFakeStore()
	localUser(t, st, "alice", "hunter22")
	clock := &fakeClock{now: time.Now()}
	svc := NewService(st, &fakeDirectory{}, clock, authCfg)

	for i := 0; i < 5; i++ {
		_, _, _ = svc.Login(context.Background(), "alice", "wrong", "10.0.0.5")
	}

	clock.now = clock.now.Add(16 * time.Minute)
	_, _, err := svc.Login(context.Background(), "alice", "hunter22", "10.0.0.5")
	assert.NoError(t, err)
}

func TestLogin_Directory(t *testing.T) {
	st := newFakeStore()
	dir := &fakeDirectory{
		enabled: true,
		user: &directory.User{
			Username:    "alice",
			DisplayName: "Alice Liddell",
			Email:       strPtr("alice@corp.example.org"),
		},
	}
	clock := &fakeClock{now: time.Now()}
	svc := NewService(st, dir, clock, authCfg)

	token, user, err := svc.Login(context.Background(), "Alice", "secret", "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, domain.OriginDirectory, user.Origin)

	profile := st.profiles[user.ID]
	require.NotNil(t, profile[0])
	assert.Equal(t, "Alice Liddell", *profile[0])
	require.NotNil(t, profile[1])
	assert.Equal(t, "alice@corp.example.org", *profile[1])

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.OriginDirectory, claims.Origin)
	assert.Equal(t, "Alice Liddell", claims.DisplayName)
}

func TestLogin_DirectoryUnknownFallsBackToLocal(t *testing.T) {
	st := newFakeStore()
	localUser(t, st, "bob", "hunter22")
	dir := &fakeDirectory{enabled: true, err: directory.ErrUserNotFound}
	svc := NewService(st, dir, &fakeClock{now: time.Now()}, authCfg)

	_, user, err := svc.Login(context.Background(), "bob", "hunter22", "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, domain.OriginLocal, user.Origin)
}

func TestLogin_DirectoryRejectionDoesNotFallBack(t *testing.T) {
	st := newFakeStore()
	localUser(t, st, "alice", "hunter22")
	dir := &fakeDirectory{enabled: true, err: domain.ErrInvalidCredentials}
	svc := NewService(st, dir, &fakeClock{now: time.Now()}, authCfg)

	// The directory knows the account and said no; the local hash must not
	// offer a second guess
	_, _, err := svc.Login(context.Background(), "alice", "hunter22", "10.0.0.5")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestValidateToken_Expired(t *testing.T) {
	st := newFakeStore()
	localUser(t, st, "alice", "hunter22")
	clock := &fakeClock{now: time.Now()}
	svc := NewService(st, &fakeDirectory{}, clock, authCfg)

	token, _, err := svc.Login(context.Background(), "alice", "hunter22", "10.0.0.5")
	require.NoError(t, err)

	clock.now = clock.now.Add(13 * time.Hour)
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	st := newFakeStore()
	localUser(t, st, "alice", "hunter22")
	clock := &fakeClock{now: time.Now()}
	svc := NewService(st, &fakeDirectory{}, clock, authCfg)

	token, _, err := svc.Login(context.Background(), "alice", "hunter22", "10.0.0.5")
	require.NoError(t, err)

	otherCfg := authCfg
	otherCfg.JWTSecret = "other-secret"
	other := NewService(st, &fakeDirectory{}, clock, otherCfg)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestEnsureAdmin(t *testing.T) {
	st := newFakeStore()
	cfg := authCfg
	cfg.AdminUsername = "Admin"
	cfg.AdminPassword = "bootstrap-secret"
	svc := NewService(st, &fakeDirectory{}, &fakeClock{now: time.Now()}, cfg)

	require.NoError(t, svc.EnsureAdmin(context.Background()))

	admin := st.users["admin"]
	require.NotNil(t, admin)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, domain.OriginLocal, admin.Origin)
	require.NotNil(t, admin.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*admin.PasswordHash), []byte("bootstrap-secret")))

	// Idempotent
	require.NoError(t, svc.EnsureAdmin(context.Background()))
	assert.Len(t, st.users, 1)
}
