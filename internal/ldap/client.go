// Package ldap authenticates REST API callers against a directory server.
// This daemon has no local user or session store of its own, so an LDAP
// bind is the only identity check behind the mutating VIF/MFC endpoints;
// unlike the teacher's directory client, it does not map groups to any
// local role table — the REST gate only needs to know a bind succeeded.
package ldap

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	ldap "github.com/go-ldap/ldap/v3"
)

// Config holds the directory connection and lookup settings needed to bind
// a username/password pair and resolve the user's group memberships.
type Config struct {
	Enabled            bool   `json:"enabled"`
	Server             string `json:"server"`
	Port               int    `json:"port"`
	UseTLS             bool   `json:"use_tls"`
	BindDN             string `json:"bind_dn"`
	BindPassword       string `json:"bind_password"`
	BaseDN             string `json:"base_dn"`
	UserFilter         string `json:"user_filter"`
	UserIDAttribute    string `json:"user_id_attribute"`
	UserNameAttribute  string `json:"user_name_attribute"`
	UserEmailAttribute string `json:"user_email_attribute"`
	GroupBaseDN        string `json:"group_base_dn"`
	GroupFilter        string `json:"group_filter"`
	Timeout            int    `json:"timeout"` // seconds
}

// User is the identity Authenticate resolves. restapi's auth gate attaches
// only Username to the request (and from there to the audit trail); Groups
// is filled in but not used by the gate or recorded in the audit trail.
type User struct {
	DN       string
	Username string
	Email    string
	FullName string
	Groups   []string
}

// Client wraps a directory connection used once per Authenticate call.
type Client struct {
	config *Config
	conn   *ldap.Conn
}

// NewClient constructs a Client bound to config. It does not connect yet.
func NewClient(config *Config) (*Client, error) {
	return &Client{config: config}, nil
}

// Connect dials the directory server, using TLS if configured.
func (c *Client) Connect() error {
	address := fmt.Sprintf("%s:%d", c.config.Server, c.config.Port)

	var conn *ldap.Conn
	var err error

	if c.config.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: c.config.Server,
			MinVersion: tls.VersionTLS12,
		}
		conn, err = ldap.DialTLS("tcp", address, tlsConfig)
	} else {
		conn, err = ldap.Dial("tcp", address)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to LDAP server: %w", err)
	}

	if c.config.Timeout > 0 {
		conn.SetTimeout(time.Duration(c.config.Timeout) * time.Second)
	}

	c.conn = conn
	return nil
}

// Close closes the directory connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Bind authenticates the connection as the configured service account.
func (c *Client) Bind() error {
	if c.conn == nil {
		return fmt.Errorf("not connected to LDAP server")
	}
	if err := c.conn.Bind(c.config.BindDN, c.config.BindPassword); err != nil {
		return fmt.Errorf("bind failed: %w", err)
	}
	return nil
}

// Authenticate verifies username/password against the directory: bind as
// the service account, look up the user's DN, then rebind as that DN with
// password to confirm it. Returns the user's identity and group list on
// success.
func (c *Client) Authenticate(username, password string) (*User, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.Bind(); err != nil {
		return nil, err
	}

	user, err := c.searchUser(username)
	if err != nil {
		return nil, err
	}

	if err := c.conn.Bind(user.DN, password); err != nil {
		return nil, fmt.Errorf("authentication failed: invalid credentials")
	}

	// Re-bind as the service account: the user's own bind may lack
	// permission to search the group tree.
	if err := c.Bind(); err != nil {
		return nil, err
	}

	groups, err := c.getUserGroups(user.DN)
	if err != nil {
		return nil, err
	}
	user.Groups = groups

	return user, nil
}

func (c *Client) searchUser(username string) (*User, error) {
	filter := strings.ReplaceAll(c.config.UserFilter, "{username}", username)

	searchRequest := ldap.NewSearchRequest(
		c.config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		[]string{
			c.config.UserIDAttribute,
			c.config.UserNameAttribute,
			c.config.UserEmailAttribute,
			"cn",
			"displayName",
			"memberOf",
		},
		nil,
	)

	result, err := c.conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("user search failed: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("user not found: %s", username)
	}
	if len(result.Entries) > 1 {
		return nil, fmt.Errorf("multiple users found for: %s", username)
	}

	entry := result.Entries[0]
	user := &User{
		DN:       entry.DN,
		Username: entry.GetAttributeValue(c.config.UserIDAttribute),
		Email:    entry.GetAttributeValue(c.config.UserEmailAttribute),
		FullName: entry.GetAttributeValue("displayName"),
	}
	if user.FullName == "" {
		user.FullName = entry.GetAttributeValue("cn")
	}
	if user.Username == "" {
		user.Username = username
	}
	return user, nil
}

func (c *Client) getUserGroups(userDN string) ([]string, error) {
	if c.config.GroupBaseDN == "" {
		return []string{}, nil
	}

	filter := strings.ReplaceAll(c.config.GroupFilter, "{user_dn}", userDN)
	searchRequest := ldap.NewSearchRequest(
		c.config.GroupBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		[]string{"cn", "distinguishedName"},
		nil,
	)

	result, err := c.conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("group search failed: %w", err)
	}

	var groups []string
	for _, entry := range result.Entries {
		if groupName := entry.GetAttributeValue("cn"); groupName != "" {
			groups = append(groups, groupName)
		}
	}
	return groups, nil
}

// ValidateConfig rejects a Config that Authenticate could not use: a
// disabled config is always valid since the REST gate then runs
// unauthenticated.
func ValidateConfig(config *Config) error {
	if !config.Enabled {
		return nil
	}
	if config.Server == "" {
		return fmt.Errorf("LDAP server is required")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("invalid port number")
	}
	if config.BindDN == "" {
		return fmt.Errorf("bind DN is required")
	}
	if config.BaseDN == "" {
		return fmt.Errorf("base DN is required")
	}
	if config.UserFilter == "" {
		return fmt.Errorf("user filter is required")
	}
	if !strings.Contains(config.UserFilter, "{username}") {
		return fmt.Errorf("user filter must contain {username} placeholder")
	}
	return nil
}
