package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
)

const defaultUserFilter = "(sAMAccountName=%s)"

var (
	// ErrUserNotFound is returned when the directory has no entry for the username
	ErrUserNotFound = errors.New("user not found in directory")
	// ErrNotInRequiredGroup is returned when the user authenticated but lacks the required group
	ErrNotInRequiredGroup = errors.New("user is not a member of the required group")
)

// User is a directory entry reduced to the attributes the application uses
type User struct {
	DN          string
	Username    string
	DisplayName string
	Email       *string
	Groups      []string
}

// Client defines the interface for directory operations to enable mocking
type Client interface {
	// Enabled reports whether a directory server is configured
	Enabled() bool

	// Authenticate verifies the user's password using search-then-bind and
	// checks required group membership
	Authenticate(ctx context.Context, username, password string) (*User, error)

	// Lookup fetches a directory entry without verifying credentials
	Lookup(ctx context.Context, username string) (*User, error)
}

// LDAPClient implements Client against an LDAP directory
type LDAPClient struct {
	cfg config.DirectoryConfig
}

// NewClient creates a new directory client
func NewClient(cfg config.DirectoryConfig) Client {
	return &LDAPClient{cfg: cfg}
}

func (c *LDAPClient) Enabled() bool {
	return c.cfg.Enabled()
}

// Authenticate verifies the user's password using search-then-bind.
// The service account finds the user's DN first, then a second bind with the
// user's own credentials proves the password.
func (c *LDAPClient) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if !c.Enabled() {
		return nil, domain.ErrDirectoryNotConfigured
	}
	if password == "" {
		// An empty password would turn the user bind into an anonymous bind
		return nil, domain.ErrInvalidCredentials
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	user, err := c.search(conn, username)
	if err != nil {
		return nil, err
	}

	if err := conn.Bind(user.DN, password); err != nil {
		logger.Info("directory password bind failed",
			zap.String("username", domain.NormalizeUsername(username)),
			zap.Error(err))
		return nil, domain.ErrInvalidCredentials
	}

	if c.cfg.RequiredGroup != "" && !memberOf(user.Groups, c.cfg.RequiredGroup) {
		return nil, ErrNotInRequiredGroup
	}

	return user, nil
}

// Lookup fetches a directory entry without verifying credentials
func (c *LDAPClient) Lookup(ctx context.Context, username string) (*User, error) {
	if !c.Enabled() {
		return nil, domain.ErrDirectoryNotConfigured
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return c.search(conn, username)
}

func (c *LDAPClient) dial(ctx context.Context) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := ldap.DialURL(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to directory: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			conn.SetTimeout(remaining)
		}
	}

	if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
		conn.Close()
		return nil, fmt.Errorf("service account bind failed: %w", err)
	}

	return conn, nil
}

func (c *LDAPClient) search(conn *ldap.Conn, username string) (*User, error) {
	username = domain.NormalizeUsername(username)

	filter := c.cfg.UserFilter
	if filter == "" {
		filter = defaultUserFilter
	}
	filter = fmt.Sprintf(filter, ldap.EscapeFilter(username))

	emailAttr := c.cfg.EmailAttr
	if emailAttr == "" {
		emailAttr = "mail"
	}

	req := ldap.NewSearchRequest(
		c.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		filter,
		[]string{"dn", "memberOf", "displayName", "cn", emailAttr},
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("directory search failed: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, ErrUserNotFound
	}

	entry := result.Entries[0]

	user := &User{
		DN:          entry.DN,
		Username:    username,
		DisplayName: entry.GetAttributeValue("displayName"),
		Groups:      entry.GetAttributeValues("memberOf"),
	}
	if user.DisplayName == "" {
		user.DisplayName = entry.GetAttributeValue("cn")
	}
	if user.DisplayName == "" {
		user.DisplayName = username
	}
	if email := entry.GetAttributeValue(emailAttr); email != "" {
		user.Email = &email
	}

	return user, nil
}

// memberOf checks group membership by exact DN match or by CN inside the DN
func memberOf(groups []string, required string) bool {
	required = strings.ToLower(required)
	for _, group := range groups {
		group = strings.ToLower(group)
		if group == required || strings.Contains(group, "cn="+required) {
			return true
		}
	}
	return false
}
