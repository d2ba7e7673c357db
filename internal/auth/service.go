package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/providers/directory"
	"github.com/questlog/questlog/internal/store"
	"github.com/questlog/questlog/internal/store/schema"
)

// Claims is the JWT payload issued on login
type Claims struct {
	jwt.RegisteredClaims
	Username    string            `json:"username"`
	DisplayName string            `json:"displayName,omitempty"`
	IsAdmin     bool              `json:"isAdmin"`
	Origin      domain.UserOrigin `json:"origin"`
}

// Service defines the interface for authentication operations to enable mocking
type Service interface {
	// Login authenticates a user against the directory (when configured) with
	// a local password fallback, enforcing the per-address attempt budget
	Login(ctx context.Context, username, password, clientIP string) (string, *schema.User, error)

	// ValidateToken parses and verifies a JWT issued by Login
	ValidateToken(tokenString string) (*Claims, error)

	// HashPassword hashes a plaintext password for storage
	HashPassword(password string) (string, error)

	// EnsureAdmin creates the configured bootstrap admin account if it does
	// not exist yet
	EnsureAdmin(ctx context.Context) error
}

// service is the implementation of the Service interface
type service struct {
	store     store.Store
	directory directory.Client
	clock     adapter.Clock
	cfg       config.AuthConfig
}

// NewService creates a new authentication service
func NewService(st store.Store, dir directory.Client, clock adapter.Clock, cfg config.AuthConfig) Service {
	return &service{
		store:     st,
		directory: dir,
		clock:     clock,
		cfg:       cfg,
	}
}

// Login authenticates a user and returns a signed token together with the
// user record
func (s *service) Login(ctx context.Context, username, password, clientIP string) (string, *schema.User, error) {
	username = domain.NormalizeUsername(username)
	if username == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	locked, err := s.isLocked(ctx, clientIP)
	if err != nil {
		return "", nil, err
	}
	if locked {
		return "", nil, domain.ErrLoginLocked
	}

	user, err := s.authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			if recordErr := s.store.RecordLoginAttempt(ctx, clientIP, s.clock.Now()); recordErr != nil {
				logger.ErrorCtx(ctx, fmt.Errorf("failed to record login attempt: %w", recordErr),
					zap.String("client_ip", clientIP))
			}
		}
		return "", nil, err
	}

	if err := s.store.ClearLoginAttempts(ctx, clientIP); err != nil {
		logger.WarnCtx(ctx, "failed to clear login attempts",
			zap.String("client_ip", clientIP),
			zap.Error(err))
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}

// isLocked reports whether the client address burned its failed-attempt
// budget inside the rolling window
func (s *service) isLocked(ctx context.Context, clientIP string) (bool, error) {
	since := s.clock.Now().Add(-s.cfg.LoginWindow)
	count, err := s.store.CountLoginAttempts(ctx, clientIP, since)
	if err != nil {
		return false, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return count >= int64(s.cfg.LoginMaxAttempts), nil
}

// authenticate tries the directory first, falling back to the local password
// hash. Directory infrastructure failures degrade to local auth; a definite
// directory rejection does not.
func (s *service) authenticate(ctx context.Context, username, password string) (*schema.User, error) {
	if s.directory != nil && s.directory.Enabled() {
		entry, err := s.directory.Authenticate(ctx, username, password)
		switch {
		case err == nil:
			return s.provisionDirectoryUser(ctx, entry)
		case errors.Is(err, domain.ErrInvalidCredentials):
			return nil, domain.ErrInvalidCredentials
		case errors.Is(err, directory.ErrNotInRequiredGroup):
			logger.InfoCtx(ctx, "directory user lacks required group",
				zap.String("username", username))
			return nil, domain.ErrInvalidCredentials
		case errors.Is(err, directory.ErrUserNotFound):
			// Not a directory account, try local
		default:
			logger.WarnCtx(ctx, "directory authentication unavailable, falling back to local",
				zap.String("username", username),
				zap.Error(err))
		}
	}

	return s.authenticateLocal(ctx, username, password)
}

// provisionDirectoryUser get-or-creates the local row for a directory account
// and refreshes its directory-sourced profile fields
func (s *service) provisionDirectoryUser(ctx context.Context, entry *directory.User) (*schema.User, error) {
	user, err := s.store.GetOrCreateDirectoryUser(ctx, entry.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to provision directory user: %w", err)
	}

	var displayName *string
	if entry.DisplayName != "" {
		displayName = &entry.DisplayName
	}
	if displayName != nil || entry.Email != nil {
		if err := s.store.UpdateDirectoryProfile(ctx, user.ID, displayName, entry.Email); err != nil {
			logger.WarnCtx(ctx, "failed to refresh directory profile",
				zap.String("username", user.Username),
				zap.Error(err))
		} else {
			if displayName != nil {
				user.DisplayName = displayName
			}
			if entry.Email != nil {
				user.Email = entry.Email
			}
		}
	}

	return user, nil
}

// authenticateLocal verifies the password against the stored bcrypt hash
func (s *service) authenticateLocal(ctx context.Context, username, password string) (*schema.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || user.PasswordHash == nil {
		// Burn the same bcrypt cost for unknown users to keep timing flat
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
		return nil, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return user, nil
}

// issueToken signs a JWT for the user
func (s *service) issueToken(user *schema.User) (string, error) {
	now := s.clock.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		Origin:   user.Origin,
	}
	if user.DisplayName != nil {
		claims.DisplayName = *user.DisplayName
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and verifies a JWT issued by Login
func (s *service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// HashPassword hashes a plaintext password for storage
func (s *service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// EnsureAdmin creates the configured bootstrap admin account if missing
func (s *service) EnsureAdmin(ctx context.Context) error {
	if s.cfg.AdminUsername == "" || s.cfg.AdminPassword == "" {
		return nil
	}

	username := domain.NormalizeUsername(s.cfg.AdminUsername)
	existing, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}
	if existing != nil {
		return nil
	}

	hash, err := s.HashPassword(s.cfg.AdminPassword)
	if err != nil {
		return err
	}

	admin := &schema.User{
		Username:     username,
		PasswordHash: &hash,
		Origin:       domain.OriginLocal,
		IsAdmin:      true,
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil
		}
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.InfoCtx(ctx, "Bootstrap admin account created", zap.String("username", username))
	return nil
}
